package handlers

import (
	"github.com/gofiber/fiber/v2"

	"zines/internal/metrics"
	"zines/internal/middleware"
	"zines/internal/services"
)

// Services bundles the services the HTTP API is built on.
type Services struct {
	Auth         *services.AuthService
	Publications *services.PublicationService
	Social       *services.SocialService
	Analytics    *services.AnalyticsService
}

// Mount registers every API route on router. The caller identity is resolved
// once per request; editing routes additionally require it.
func Mount(router fiber.Router, svc Services, m *metrics.Metrics) {
	router.Use(middleware.OptionalAuth(svc.Auth))
	requireAuth := middleware.AuthRequired(svc.Auth)

	// Static /creators/search must come before /creators/:username.
	NewAuthHandler(svc.Auth, m).RegisterRoutes(router, requireAuth)
	NewPublicationHandler(svc.Publications, svc.Auth, m).RegisterRoutes(router, requireAuth)
	NewSocialHandler(svc.Social, m).RegisterRoutes(router, requireAuth)
	NewAnalyticsHandler(svc.Analytics, m).RegisterRoutes(router, requireAuth)
}
