package middlewares

import (
	"time"

	"fakturierung-recurring/logger"

	"github.com/gofiber/fiber/v2"
)

const slowRequest = 200 * time.Millisecond

// RequestLogger logs every request with its status and latency, and warns
// about slow ones.
func RequestLogger() fiber.Handler {
	log := logger.WithComponent("http")

	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			// let the error handler write the status before we log it
			if e := c.App().ErrorHandler(c, err); e != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		latency := time.Since(start)

		event := log.Info()
		if latency > slowRequest {
			event = log.Warn().Bool("slow", true)
		}
		event.
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Dur("latency", latency).
			Msg("request")
		return nil
	}
}
