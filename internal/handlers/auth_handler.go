package handlers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"zines/internal/metrics"
	"zines/internal/middleware"
	"zines/internal/services"
)

// AuthHandler handles sign-in and profile requests.
type AuthHandler struct {
	authService *services.AuthService
	validate    *validator.Validate
	errors      errorResponder
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *services.AuthService, m *metrics.Metrics) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		validate:    validator.New(),
		errors:      errorResponder{metrics: m},
	}
}

// RegisterRoutes registers the authentication and profile routes. Routes that
// need a signed-in caller are guarded by requireAuth.
func (h *AuthHandler) RegisterRoutes(router fiber.Router, requireAuth fiber.Handler) {
	authRoutes := router.Group("/auth")
	authRoutes.Post("/login", h.HandleLogin)
	authRoutes.Post("/check-username", h.HandleCheckUsername)

	router.Get("/me", requireAuth, h.HandleMe)
	router.Put("/me/username", requireAuth, h.HandleUpdateUsername)
	router.Patch("/me/profile", requireAuth, h.HandleUpdateProfile)

	router.Get("/creators/search", h.HandleSearchCreators)
	router.Get("/creators/:username", h.HandleGetProfile)
}

// LoginRequest carries the identity provider token.
type LoginRequest struct {
	IDToken string `json:"id_token" validate:"required"`
}

// HandleLogin verifies an identity token and returns the matching user,
// registering it on first sign-in.
func (h *AuthHandler) HandleLogin(c *fiber.Ctx) error {
	var req LoginRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	user, err := h.authService.Login(c.UserContext(), req.IDToken)
	if errors.Is(err, services.ErrUnauthorized) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"message": "Authentication failed",
		})
	}
	if err != nil {
		return h.errors.respond(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Login successful",
		"user":    user,
	})
}

// UsernameRequest carries a username to check or claim.
type UsernameRequest struct {
	Username string `json:"username" validate:"required,min=3,max=20"`
}

// HandleCheckUsername reports whether a username is free.
func (h *AuthHandler) HandleCheckUsername(c *fiber.Ctx) error {
	var req UsernameRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	available, err := h.authService.CheckUsername(c.UserContext(), req.Username)
	if err != nil {
		return h.errors.respond(c, err)
	}
	return c.JSON(fiber.Map{"available": available})
}

// HandleMe returns the signed-in user.
func (h *AuthHandler) HandleMe(c *fiber.Ctx) error {
	user, err := h.authService.GetUser(c.UserContext(), middleware.CallerID(c))
	if err != nil {
		return h.errors.respond(c, err)
	}
	return c.JSON(user)
}

// HandleUpdateUsername changes the caller's username.
func (h *AuthHandler) HandleUpdateUsername(c *fiber.Ctx) error {
	var req UsernameRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	user, err := h.authService.UpdateUsername(c.UserContext(), middleware.CallerID(c), req.Username)
	if err != nil {
		return h.errors.respond(c, err)
	}
	return c.JSON(user)
}

// ProfileRequest carries the editable profile fields. Omitted fields are left
// unchanged.
type ProfileRequest struct {
	DisplayName        *string `json:"display_name" validate:"omitempty,max=255"`
	Bio                *string `json:"bio" validate:"omitempty,max=2000"`
	Website            *string `json:"website" validate:"omitempty,url,max=255"`
	EmailNotifications *bool   `json:"email_notifications"`
}

// HandleUpdateProfile edits the caller's profile.
func (h *AuthHandler) HandleUpdateProfile(c *fiber.Ctx) error {
	var req ProfileRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	user, err := h.authService.UpdateProfile(c.UserContext(), middleware.CallerID(c), services.ProfileInput{
		DisplayName:        req.DisplayName,
		Bio:                req.Bio,
		Website:            req.Website,
		EmailNotifications: req.EmailNotifications,
	})
	if err != nil {
		return h.errors.respond(c, err)
	}
	return c.JSON(user)
}

// HandleGetProfile returns a creator's public profile.
func (h *AuthHandler) HandleGetProfile(c *fiber.Ctx) error {
	user, err := h.authService.GetProfile(c.UserContext(), c.Params("username"))
	if err != nil {
		return h.errors.respond(c, err)
	}
	return c.JSON(user)
}

// HandleSearchCreators matches creators by username or display name.
func (h *AuthHandler) HandleSearchCreators(c *fiber.Ctx) error {
	users, err := h.authService.SearchCreators(c.UserContext(), c.Query("q"))
	if err != nil {
		return h.errors.respond(c, err)
	}
	return c.JSON(users)
}
