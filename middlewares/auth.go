package middlewares

import (
	"crypto/subtle"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

const (
	authHeader       = "Authorization"
	bearerPrefix     = "Bearer "
	cronSecretHeader = "X-Cron-Secret"
)

// Claims is our custom JWT payload (subject=userID, plus owning account).
type Claims struct {
	AccountID string `json:"account_id"`
	jwt.RegisteredClaims
}

var (
	secretOnce sync.Once
	jwtSecret  []byte
	secretErr  error
)

func loadJWTSecret() error {
	secretOnce.Do(func() {
		// Prefer JWT_SECRET_KEY, fallback to JWT_SECRET
		sec := os.Getenv("JWT_SECRET_KEY")
		if strings.TrimSpace(sec) == "" {
			sec = os.Getenv("JWT_SECRET")
		}
		if strings.TrimSpace(sec) == "" {
			secretErr = errors.New("JWT secret not configured (set JWT_SECRET_KEY or JWT_SECRET)")
			return
		}
		jwtSecret = []byte(sec)
	})
	return secretErr
}

// IsAuthenticatedHeader validates a Bearer token, enforces HS256, and populates c.Locals("userID","accountID").
func IsAuthenticatedHeader() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := loadJWTSecret(); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"message": "server auth not configured",
			})
		}

		h := c.Get(authHeader)
		if len(h) < len(bearerPrefix) || !strings.EqualFold(h[:len(bearerPrefix)], bearerPrefix) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "missing/invalid Authorization header"})
		}
		raw := strings.TrimSpace(h[len(bearerPrefix):])
		if raw == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "invalid bearer token"})
		}

		parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		var claims Claims
		token, err := parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
			return jwtSecret, nil
		})
		if err != nil || !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "invalid or expired token"})
		}
		if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.AccountID) == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "token missing subject/account"})
		}

		c.Locals("userID", claims.Subject)
		c.Locals("accountID", claims.AccountID)

		return c.Next()
	}
}

// GenerateJWT signs a new HS256 token for the given user & account, expiring in 24h.
func GenerateJWT(userID, accountID string) (string, error) {
	if err := loadJWTSecret(); err != nil {
		return "", err
	}
	now := time.Now()
	claims := &Claims{
		AccountID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// AccountID returns the authenticated account of the request.
func AccountID(c *fiber.Ctx) (string, error) {
	accountID, _ := c.Locals("accountID").(string)
	if accountID == "" {
		return "", fiber.NewError(fiber.StatusUnauthorized, "account context missing")
	}
	return accountID, nil
}

// CronSecret guards account-agnostic trigger endpoints. An empty secret
// disables the endpoint.
func CronSecret(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return fiber.NewError(fiber.StatusNotFound, "not found")
		}
		got := c.Get(cronSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid cron secret")
		}
		return c.Next()
	}
}
