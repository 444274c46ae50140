package database

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// GetDB returns the per-request transaction opened by middlewares.RequestTx
// when there is one, else a session on the shared pool bound to the request
// context.
func GetDB(c *fiber.Ctx) (*gorm.DB, error) {
	if v := c.Locals("tx"); v != nil {
		if tx, ok := v.(*gorm.DB); ok && tx != nil {
			return tx, nil
		}
	}
	if DB == nil {
		return nil, errors.New("database not initialized")
	}
	return DB.WithContext(c.UserContext()), nil
}
