package handlers

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"zines/internal/metrics"
	"zines/internal/repositories"
	"zines/internal/services"
)

// errorResponder maps core errors to HTTP responses. Backend details only go
// to the log.
type errorResponder struct {
	metrics *metrics.Metrics
}

func (r errorResponder) respond(c *fiber.Ctx, err error) error {
	var (
		status  int
		message string
		kind    string
	)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		status, message, kind = fiber.StatusNotFound, "Not found", "not_found"
	case errors.Is(err, services.ErrUnauthorized):
		status, message = fiber.StatusForbidden, "Forbidden"
	case errors.Is(err, services.ErrValidation), errors.Is(err, repositories.ErrInvalidInput):
		status, message = fiber.StatusBadRequest, "Validation failed"
	case errors.Is(err, services.ErrInvalidPage):
		status, message = fiber.StatusBadRequest, "Invalid page"
	case errors.Is(err, repositories.ErrConflict), errors.Is(err, services.ErrSlugExhausted):
		status, message, kind = fiber.StatusConflict, "Already exists", "conflict"
	case errors.Is(err, repositories.ErrUnavailable):
		status, message, kind = fiber.StatusInternalServerError, "operation failed", "unavailable"
	default:
		status, message, kind = fiber.StatusInternalServerError, "operation failed", "other"
	}

	if kind != "" {
		r.metrics.RepositoryError(kind)
	}
	if status == fiber.StatusInternalServerError {
		log.Error().Err(err).Str("method", c.Method()).Str("route", c.Route().Path).Msg("request failed")
	} else {
		log.Debug().Err(err).Int("status", status).Str("route", c.Route().Path).Msg("request rejected")
	}

	body := fiber.Map{"message": message}
	if errors.Is(err, services.ErrValidation) {
		body["error"] = err.Error()
	}
	return c.Status(status).JSON(body)
}

// parseAndValidate parses the JSON body into req and runs its validate tags.
// It writes the 400 response itself and reports whether the handler may go on.
func parseAndValidate(c *fiber.Ctx, validate *validator.Validate, req interface{}) (bool, error) {
	if err := c.BodyParser(req); err != nil {
		log.Debug().Err(err).Msg("error parsing request body")
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
		})
	}

	if err := validate.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": "Validation failed",
			})
		}
		errorMessages := make(map[string]string)
		for _, e := range validationErrors {
			errorMessages[e.Field()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
		}
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  errorMessages,
		})
	}
	return true, nil
}
