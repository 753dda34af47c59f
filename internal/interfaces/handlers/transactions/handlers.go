package transactions

import (
	"sharehouse-backend/internal/application/transactions"
	"sharehouse-backend/internal/domain"
	"sharehouse-backend/internal/interfaces/handlers/httpx"
	"sharehouse-backend/internal/pkg/apperrors"
	"sharehouse-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service *transactions.Service
}

var statuses = map[string]bool{
	"":                 true,
	domain.TxPending:   true,
	domain.TxCompleted: true,
	domain.TxFailed:    true,
	domain.TxRefunded:  true,
}

// GET /payments/transactions?status=
func (h *Handlers) History(c *fiber.Ctx) error {
	user, err := httpx.User(c)
	if err != nil {
		return response.Fail(c, err)
	}
	status := c.Query("status")
	if !statuses[status] {
		return response.Fail(c, apperrors.WithDetails(apperrors.ErrBadRequest, map[string]any{"field": "status"}))
	}
	entries, err := h.Service.History(c.UserContext(), user.ID, status)
	if err != nil {
		return response.Fail(c, err)
	}
	return response.OK(c, fiber.Map{"transactions": entries})
}
