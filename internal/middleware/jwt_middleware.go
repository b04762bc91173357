package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"zines/internal/models"
)

// Locals keys set for an authenticated request.
const (
	LocalUserID   = "user_id"
	LocalUsername = "username"
)

// Authenticator resolves a bearer token to a registered user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(c *fiber.Ctx) (string, bool) {
	parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// OptionalAuth attaches the caller's identity when a valid token is present.
// A missing or invalid token leaves the request anonymous.
func OptionalAuth(auth Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := bearerToken(c)
		if !ok {
			return c.Next()
		}
		user, err := auth.Authenticate(c.UserContext(), token)
		if err != nil {
			log.Debug().Err(err).Msg("ignoring unverified token")
			return c.Next()
		}
		c.Locals(LocalUserID, user.ID)
		c.Locals(LocalUsername, user.Username)
		return c.Next()
	}
}

// AuthRequired is a Fiber middleware that rejects requests without a valid
// token of a registered user.
func AuthRequired(auth Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Already resolved by OptionalAuth.
		if CallerID(c) != "" {
			return c.Next()
		}

		token, ok := bearerToken(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header format must be 'Bearer <token>'",
			})
		}

		user, err := auth.Authenticate(c.UserContext(), token)
		if err != nil {
			log.Debug().Err(err).Msg("token rejected")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Invalid or expired token",
			})
		}

		// Store the caller in Fiber context for subsequent handlers
		c.Locals(LocalUserID, user.ID)
		c.Locals(LocalUsername, user.Username)
		return c.Next()
	}
}

// CallerID returns the authenticated user's id, or "" for anonymous requests.
func CallerID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}
