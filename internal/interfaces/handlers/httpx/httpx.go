// Package httpx holds the request plumbing shared by the fiber handlers.
package httpx

import (
	"encoding/json"
	"strconv"

	"sharehouse-backend/internal/middleware"
	"sharehouse-backend/internal/pkg/apperrors"
	"sharehouse-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// User returns the session user or AUTH_REQUIRED.
func User(c *fiber.Ctx) (middleware.SessionUser, error) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return middleware.SessionUser{}, apperrors.ErrUnauthorized
	}
	return u, nil
}

// ParamID parses the route parameter name as a UUID.
func ParamID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	return validation.UUID(name, c.Params(name))
}

// Bind decodes the JSON body into v and validates it. An empty body leaves v
// at its zero value so optional-only bodies can be omitted.
func Bind(c *fiber.Ctx, v interface{}, codes validation.Codes) error {
	if body := c.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, v); err != nil {
			return apperrors.Wrap(apperrors.ErrBadRequest, err)
		}
	}
	return validation.Struct(v, codes)
}

// OptionalID parses s as a UUID when it is not empty.
func OptionalID(field, s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := validation.UUID(field, s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// QueryInt reads a non-negative integer query parameter, def when absent.
func QueryInt(c *fiber.Ctx, name string, def int) (int, error) {
	s := c.Query(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, apperrors.WithDetails(apperrors.ErrBadRequest, map[string]any{"field": name})
	}
	return n, nil
}
