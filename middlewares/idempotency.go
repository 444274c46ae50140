package middlewares

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"fakturierung-recurring/database"
	"fakturierung-recurring/logger"
	"fakturierung-recurring/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const idempotencyHeader = "Idempotency-Key"

// Idempotency processes Idempotency-Key for mutating HTTP methods. Keys are
// scoped to the account. A completed response is replayed; a key whose
// request is still running is rejected with 409; a key whose request failed
// is released so the client can retry.
// Order: run AFTER IsAuthenticatedHeader() and BEFORE RequestTx().
func Idempotency() fiber.Handler {
	log := logger.WithComponent("idempotency")

	return func(c *fiber.Ctx) error {
		method := strings.ToUpper(c.Method())
		if method != fiber.MethodPost && method != fiber.MethodPut && method != fiber.MethodPatch && method != fiber.MethodDelete {
			return c.Next()
		}

		key := strings.TrimSpace(c.Get(idempotencyHeader))
		if key == "" {
			return c.Next()
		}
		if len(key) > 128 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Idempotency-Key too long"})
		}

		accountID, _ := c.Locals("accountID").(string)
		userID, _ := c.Locals("userID").(string)
		if accountID == "" || userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "auth context missing"})
		}

		path := c.OriginalURL()
		reqHash := requestHash(method, path, c.Body(), accountID, userID)
		db := database.DB.WithContext(c.UserContext())

		// ---- Phase 1: claim the key or replay the stored response
		var (
			existing models.IdempotencyKey
			replay   bool
		)
		err := db.Transaction(func(tx *gorm.DB) error {
			err := tx.Where("account_id = ? AND key = ?", accountID, key).First(&existing).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				rec := models.IdempotencyKey{
					AccountId:   accountID,
					Key:         key,
					RequestHash: reqHash,
					Method:      method,
					Path:        path,
					UserID:      userID,
				}
				if tx.Create(&rec).Error == nil {
					return nil
				}
				// lost a race against a concurrent request with the same key
				return fiber.NewError(fiber.StatusConflict, "request with this Idempotency-Key is in progress")
			}
			if err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "idempotency lookup failed")
			}

			if existing.RequestHash != reqHash {
				return fiber.NewError(fiber.StatusConflict, "Idempotency-Key reuse with different request")
			}
			if existing.ResponseStatus == 0 {
				return fiber.NewError(fiber.StatusConflict, "request with this Idempotency-Key is in progress")
			}
			replay = true
			return nil
		})
		if err != nil {
			return err
		}
		if replay {
			c.Set("Idempotent-Replayed", "true")
			c.Status(existing.ResponseStatus)
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Send(existing.ResponseBody)
		}

		// ---- Phase 2: run the handler once
		if err := c.Next(); err != nil {
			if e := db.Where("account_id = ? AND key = ? AND response_status = 0", accountID, key).
				Delete(&models.IdempotencyKey{}).Error; e != nil {
				log.Warn().Err(e).Str("key", key).Msg("could not release idempotency key")
			}
			return err
		}

		// ---- Phase 3: store the response (best-effort)
		now := time.Now().UTC()
		resp := c.Response().Body()
		blob := make([]byte, len(resp))
		copy(blob, resp)
		if e := db.Model(&models.IdempotencyKey{}).
			Where("account_id = ? AND key = ?", accountID, key).
			Updates(map[string]any{
				"response_status": c.Response().StatusCode(),
				"response_body":   blob,
				"completed_at":    &now,
			}).Error; e != nil {
			log.Warn().Err(e).Str("key", key).Msg("could not store idempotent response")
		}
		return nil
	}
}

// requestHash is sha256 of method|path|body|account|user.
func requestHash(method, path string, body []byte, accountID, userID string) string {
	h := sha256.New()
	for _, part := range [][]byte{[]byte(method), []byte(path), body, []byte(accountID), []byte(userID)} {
		h.Write(part)
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
