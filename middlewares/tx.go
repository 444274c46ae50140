package middlewares

import (
	"fakturierung-recurring/database"
	"fakturierung-recurring/logger"

	"github.com/gofiber/fiber/v2"
)

// RequestTx opens a per-request DB transaction for authenticated requests.
// Order: run AFTER IsAuthenticatedHeader() (so accountID is present),
// and AFTER Idempotency() (so idempotency records aren't tied to the handler TX).
// Handlers reach it through database.GetDB(c).
func RequestTx() fiber.Handler {
	log := logger.WithComponent("http")

	return func(c *fiber.Ctx) (err error) {
		if accountID, _ := c.Locals("accountID").(string); accountID == "" {
			return c.Next()
		}

		tx := database.DB.WithContext(c.UserContext()).Begin()
		if tx.Error != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to begin transaction")
		}

		defer func() {
			if r := recover(); r != nil {
				_ = tx.Rollback()
				panic(r) // re-panic after rollback so Fiber's handler can catch
			}
			if err != nil {
				_ = tx.Rollback()
				return
			}
			if e := tx.Commit().Error; e != nil {
				log.Error().Err(e).Str("path", c.Path()).Msg("tx commit failed")
				err = fiber.NewError(fiber.StatusInternalServerError, "transaction commit failed")
			}
		}()

		c.Locals("tx", tx)
		return c.Next()
	}
}
