package middleware

import (
	"sharehouse-backend/internal/pkg/apperrors"
	"sharehouse-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

const ExtSecretHeader = "X-User-Secret"

// RequireExtSecret guards bot and automation endpoints. The header is
// compared against a bcrypt hash; an empty hash disables the endpoints.
func RequireExtSecret(hash string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		secret := c.Get(ExtSecretHeader)
		if hash == "" || secret == "" {
			return response.Unauthorized(c)
		}
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
			return response.Fail(c, apperrors.ErrForbidden)
		}
		return c.Next()
	}
}
