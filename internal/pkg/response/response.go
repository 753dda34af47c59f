package response

import (
	"sharehouse-backend/internal/pkg/apperrors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Every mutating endpoint answers {"ok": true, ...} or
// {"ok": false, "error": CODE, "message": ..., ...details}.

// OK sends 200 with ok=true merged into fields.
func OK(c *fiber.Ctx, fields fiber.Map) error {
	return c.Status(fiber.StatusOK).JSON(withOK(fields, true))
}

// Created sends 201 with ok=true merged into fields.
func Created(c *fiber.Ctx, fields fiber.Map) error {
	return c.Status(fiber.StatusCreated).JSON(withOK(fields, true))
}

// Error sends a failure envelope with an explicit code and status.
func Error(c *fiber.Ctx, code string, statusCode int, details fiber.Map) error {
	body := withOK(details, false)
	body["error"] = code
	return c.Status(statusCode).JSON(body)
}

// Fail renders err. Coded errors keep their status and details; anything
// else is logged and reported as INTERNAL_ERROR.
func Fail(c *fiber.Ctx, err error) error {
	ae := apperrors.As(err)
	if ae.StatusCode >= fiber.StatusInternalServerError {
		log.Error().Err(err).Str("code", ae.Code).Str("path", c.Path()).Msg("request failed")
	}
	body := fiber.Map{"message": ae.Message}
	for k, v := range ae.Details {
		body[k] = v
	}
	if ae.Retryable {
		body["retryable"] = true
	}
	if ae.Code == apperrors.ErrProvider.Code && ae.Internal != nil {
		body["detail"] = ae.Internal.Error()
	}
	return Error(c, ae.Code, ae.StatusCode, body)
}

// Unauthorized sends 401 with the same envelope as other failures.
func Unauthorized(c *fiber.Ctx) error {
	return Fail(c, apperrors.ErrUnauthorized)
}

func withOK(fields fiber.Map, ok bool) fiber.Map {
	out := make(fiber.Map, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["ok"] = ok
	return out
}
