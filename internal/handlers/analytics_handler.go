package handlers

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"zines/internal/metrics"
	"zines/internal/middleware"
	"zines/internal/services"
)

// SessionCookie holds the anonymous reader session across views.
const SessionCookie = "zine_session"

// AnalyticsHandler handles view tracking and the creator dashboard.
type AnalyticsHandler struct {
	analyticsService *services.AnalyticsService
	validate         *validator.Validate
	errors           errorResponder
}

// NewAnalyticsHandler creates a new AnalyticsHandler.
func NewAnalyticsHandler(analyticsService *services.AnalyticsService, m *metrics.Metrics) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyticsService: analyticsService,
		validate:         validator.New(),
		errors:           errorResponder{metrics: m},
	}
}

// RegisterRoutes registers the analytics routes.
func (h *AnalyticsHandler) RegisterRoutes(router fiber.Router, requireAuth fiber.Handler) {
	router.Post("/publications/:id/views", h.RecordView)
	router.Post("/publications/:id/read-time", h.UpdateReadTime)
	router.Get("/publications/:id/analytics", requireAuth, h.Summary)
}

// ViewRequest represents the request body for a page view.
type ViewRequest struct {
	SessionID string `json:"session_id" validate:"omitempty,max=100"`
	Referrer  string `json:"referrer" validate:"omitempty,max=2048"`
}

// RecordView counts a view of a zine and returns the reader session.
func (h *AnalyticsHandler) RecordView(c *fiber.Ctx) error {
	var req ViewRequest
	if len(c.Body()) > 0 {
		if ok, err := parseAndValidate(c, h.validate, &req); !ok {
			return err
		}
	}
	if req.SessionID == "" {
		req.SessionID = c.Cookies(SessionCookie)
	}
	if req.Referrer == "" {
		req.Referrer = c.Get(fiber.HeaderReferer)
	}

	result, err := h.analyticsService.RecordView(c.UserContext(), services.ViewInput{
		PublicationID: c.Params("id"),
		SessionID:     req.SessionID,
		UserID:        middleware.CallerID(c),
		Referrer:      req.Referrer,
	})
	if err != nil {
		return h.errors.respond(c, err)
	}
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookie,
		Value:    result.SessionID,
		Expires:  time.Now().Add(30 * 24 * time.Hour),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.JSON(result)
}

// ReadTimeRequest reports the seconds a session spent reading.
type ReadTimeRequest struct {
	SessionID string   `json:"session_id" validate:"required,max=100"`
	Seconds   *float64 `json:"seconds" validate:"required,gte=0"`
}

// UpdateReadTime attaches a read duration to a session's view.
func (h *AnalyticsHandler) UpdateReadTime(c *fiber.Ctx) error {
	var req ReadTimeRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	if err := h.analyticsService.UpdateReadTime(c.UserContext(), c.Params("id"), req.SessionID, *req.Seconds); err != nil {
		return h.errors.respond(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Summary returns the dashboard numbers of a zine for its owner.
func (h *AnalyticsHandler) Summary(c *fiber.Ctx) error {
	summary, err := h.analyticsService.Summary(c.UserContext(), middleware.CallerID(c), c.Params("id"))
	if err != nil {
		return h.errors.respond(c, err)
	}
	return c.JSON(summary)
}
