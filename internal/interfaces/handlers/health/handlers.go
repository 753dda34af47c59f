package health

import (
	"crypto/subtle"

	"sharehouse-backend/internal/health"
	"sharehouse-backend/internal/pkg/apperrors"
	"sharehouse-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const errorLogLimit = 50

// Handlers holds dependencies for health endpoints.
type Handlers struct {
	Rdb            *redis.Client
	DB             health.DBPinger
	Options        health.Options
	HealthAdminKey string
}

// GET /reset?key=HEALTH_ADMIN_KEY clears the traffic counters.
func (h *Handlers) Reset(c *fiber.Ctx) error {
	key := c.Query("key")
	if h.HealthAdminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.HealthAdminKey)) != 1 {
		return response.Fail(c, apperrors.ErrForbidden)
	}
	if h.Rdb == nil {
		return response.Error(c, "REDIS_UNAVAILABLE", fiber.StatusServiceUnavailable, nil)
	}
	if err := health.Reset(c.UserContext(), h.Rdb); err != nil {
		return response.Fail(c, err)
	}
	return response.OK(c, fiber.Map{"message": "Stats reset successfully"})
}

// GET /health/json
func (h *Handlers) JSON(c *fiber.Ctx) error {
	report := health.Collect(c.UserContext(), h.Rdb, h.DB, h.Options)
	status := fiber.StatusOK
	if report.Status != "ok" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{
		"service":      "sharehouse-api",
		"status":       report.Status,
		"runtime":      report.Runtime,
		"traffic":      report.Traffic,
		"dependencies": report.Dependencies,
	})
}

// GET /health/errors returns the newest error log entries.
func (h *Handlers) Errors(c *fiber.Ctx) error {
	if h.Rdb == nil {
		return c.JSON([]interface{}{})
	}
	entries, err := health.Errors(c.UserContext(), h.Rdb, errorLogLimit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON([]interface{}{})
	}
	return c.JSON(entries)
}
