package middlewares

import (
	"errors"

	"fakturierung-recurring/logger"
	"fakturierung-recurring/recurring"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// ErrorHandler centralizes error responses and keeps messages sanitized.
func ErrorHandler(c *fiber.Ctx, err error) error {
	// 1) Fiber errors (use their status code + message)
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"message": fe.Message})
	}

	// 2) Validation errors (422 + per-field info)
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		out := make(map[string]string, len(ve))
		for _, f := range ve {
			out[f.Field()] = f.Tag()
		}
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"message": "validation failed",
			"errors":  out,
		})
	}
	var rve *recurring.ValidationError
	if errors.As(err, &rve) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"message": "validation failed",
			"errors":  map[string]string{rve.Field: rve.Message},
		})
	}

	// 3) Engine errors
	var nf *recurring.NotFoundError
	switch {
	case errors.As(err, &nf):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": nf.Error()})
	case errors.Is(err, recurring.ErrNotFound), errors.Is(err, recurring.ErrClientNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": err.Error()})
	case errors.Is(err, recurring.ErrInvalidTransition),
		errors.Is(err, recurring.ErrDefinitionCanceled),
		errors.Is(err, recurring.ErrScheduleConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"message": conflictMessage(err)})
	}

	var ge *recurring.GenerationError
	if errors.As(err, &ge) {
		log := logger.WithComponent("http")
		log.Error().Err(err).Str("definition_id", ge.DefinitionID).Msg("invoice generation failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message":       "invoice generation failed",
			"definition_id": ge.DefinitionID,
		})
	}

	// 4) Unknown errors (500)
	log := logger.WithComponent("http")
	log.Error().Err(err).Str("method", c.Method()).Str("path", c.Path()).Msg("internal error")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"message": "internal server error",
	})
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, recurring.ErrDefinitionCanceled):
		return recurring.ErrDefinitionCanceled.Error()
	case errors.Is(err, recurring.ErrScheduleConflict):
		return "the schedule changed concurrently, reload and retry"
	}
	return err.Error()
}
