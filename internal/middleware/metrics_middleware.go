package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"zines/internal/metrics"
)

// RequestMetrics records the latency of every request by route pattern.
func RequestMetrics(m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		m.ObserveRequest(c.Route().Path, strconv.Itoa(status), time.Since(start))
		return err
	}
}
