package handlers

import (
	"github.com/gofiber/fiber/v2"

	"zines/internal/metrics"
	"zines/internal/middleware"
	"zines/internal/services"
)

// SocialHandler handles follows, the feed and notifications.
type SocialHandler struct {
	socialService *services.SocialService
	errors        errorResponder
}

// NewSocialHandler creates a new SocialHandler.
func NewSocialHandler(socialService *services.SocialService, m *metrics.Metrics) *SocialHandler {
	return &SocialHandler{
		socialService: socialService,
		errors:        errorResponder{metrics: m},
	}
}

// RegisterRoutes registers the social routes.
func (h *SocialHandler) RegisterRoutes(router fiber.Router, requireAuth fiber.Handler) {
	router.Get("/creators/:username/followers", h.ListFollowers)
	router.Get("/creators/:username/following", h.ListFollowing)

	router.Post("/users/:id/follow", requireAuth, h.Follow)
	router.Delete("/users/:id/follow", requireAuth, h.Unfollow)
	router.Get("/users/:id/follow", requireAuth, h.IsFollowing)

	router.Get("/feed", requireAuth, h.Feed)
	router.Get("/notifications", requireAuth, h.Notifications)
	router.Get("/notifications/unread", requireAuth, h.UnreadCount)
}

// Follow makes the caller follow a user.
func (h *SocialHandler) Follow(c *fiber.Ctx) error {
	created, err := h.socialService.Follow(c.UserContext(), middleware.CallerID(c), c.Params("id"))
	if err != nil {
		return h.errors.respond(c, err)
	}
	return c.JSON(fiber.Map{"following": true, "created": created})
}

// Unfollow removes the caller's follow edge.
func (h *SocialHandler) Unfollow(c *fiber.Ctx) error {
	removed, err := h.socialService.Unfollow(c.UserContext(), middleware.CallerID(c), c.Params("id"))
	if err != nil {
		return h.errors.respond(c, err)
	}
	return c.JSON(fiber.Map{"following": false, "removed": removed})
}

// IsFollowing reports whether the caller follows a user.
func (h *SocialHandler) IsFollowing(c *fiber.Ctx) error {
	following, err := h.socialService.IsFollowing(c.UserContext(), middleware.CallerID(c), c.Params("id"))
	if err != nil {
		return h.errors.respond(c, err)
	}
	return c.JSON(fiber.Map{"following": following})
}

// ListFollowers lists the users following a creator.
func (h *SocialHandler) ListFollowers(c *fiber.Ctx) error {
	users, err := h.socialService.ListFollowers(c.UserContext(), c.Params("username"))
	if err != nil {
		return h.errors.respond(c, err)
	}
	return c.JSON(users)
}

// ListFollowing lists the users a creator follows.
func (h *SocialHandler) ListFollowing(c *fiber.Ctx) error {
	users, err := h.socialService.ListFollowing(c.UserContext(), c.Params("username"))
	if err != nil {
		return h.errors.respond(c, err)
	}
	return c.JSON(users)
}

// Feed returns recent zines from the caller and the creators they follow.
func (h *SocialHandler) Feed(c *fiber.Ctx) error {
	pubs, err := h.socialService.Feed(c.UserContext(), middleware.CallerID(c))
	if err != nil {
		return h.errors.respond(c, err)
	}
	return c.JSON(pubs)
}

// Notifications returns the caller's latest notifications and marks them read.
func (h *SocialHandler) Notifications(c *fiber.Ctx) error {
	notifications, err := h.socialService.Notifications(c.UserContext(), middleware.CallerID(c))
	if err != nil {
		return h.errors.respond(c, err)
	}
	return c.JSON(notifications)
}

// UnreadCount returns the number of unread notifications.
func (h *SocialHandler) UnreadCount(c *fiber.Ctx) error {
	count, err := h.socialService.UnreadCount(c.UserContext(), middleware.CallerID(c))
	if err != nil {
		return h.errors.respond(c, err)
	}
	return c.JSON(fiber.Map{"unread": count})
}
