package houses

import (
	"sharehouse-backend/internal/application/ledger"
	"sharehouse-backend/internal/interfaces/handlers/httpx"
	"sharehouse-backend/internal/pkg/apperrors"
	"sharehouse-backend/internal/pkg/response"
	"sharehouse-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Ledger *ledger.Service
}

// POST /house/:id/occupy
func (h *Handlers) Occupy(c *fiber.Ctx) error {
	user, err := httpx.User(c)
	if err != nil {
		return response.Fail(c, err)
	}
	houseID, err := httpx.ParamID(c, "id")
	if err != nil {
		return response.Fail(c, err)
	}
	rec, err := h.Ledger.ClaimUnowned(c.UserContext(), houseID, user.ID)
	if err != nil {
		return response.Fail(c, err)
	}
	return response.Created(c, fiber.Map{"ownership": rec})
}

type extOccupyRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// POST /ext/house/:id/occupy, guarded by the ext secret.
func (h *Handlers) ExtOccupy(c *fiber.Ctx) error {
	houseID, err := httpx.ParamID(c, "id")
	if err != nil {
		return response.Fail(c, err)
	}
	var req extOccupyRequest
	if err := httpx.Bind(c, &req, validation.Codes{"user_id": apperrors.ErrMissingUserID}); err != nil {
		return response.Fail(c, err)
	}
	userID, err := validation.UUID("user_id", req.UserID)
	if err != nil {
		return response.Fail(c, err)
	}
	rec, err := h.Ledger.ClaimUnowned(c.UserContext(), houseID, userID)
	if err != nil {
		return response.Fail(c, err)
	}
	return response.Created(c, fiber.Map{"ownership": rec})
}

// GET /house/:id
func (h *Handlers) Detail(c *fiber.Ctx) error {
	houseID, err := httpx.ParamID(c, "id")
	if err != nil {
		return response.Fail(c, err)
	}
	detail, err := h.Ledger.Detail(c.UserContext(), houseID)
	if err != nil {
		return response.Fail(c, err)
	}
	return response.OK(c, fiber.Map{"house": detail})
}

// GET /houses/owned
func (h *Handlers) Owned(c *fiber.Ctx) error {
	user, err := httpx.User(c)
	if err != nil {
		return response.Fail(c, err)
	}
	houses, err := h.Ledger.OwnedHouses(c.UserContext(), user.ID)
	if err != nil {
		return response.Fail(c, err)
	}
	return response.OK(c, fiber.Map{"houses": houses})
}
