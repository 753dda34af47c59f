package trading

import (
	"sharehouse-backend/internal/application/trading"
	"sharehouse-backend/internal/interfaces/handlers/httpx"
	"sharehouse-backend/internal/pkg/apperrors"
	"sharehouse-backend/internal/pkg/response"
	"sharehouse-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service *trading.Service
}

type buyRequest struct {
	ListingID string `json:"listing_id"`
}

// POST /house/:id/buy buys the given listing, or the cheapest active listing
// on the house when listing_id is omitted.
func (h *Handlers) Buy(c *fiber.Ctx) error {
	user, err := httpx.User(c)
	if err != nil {
		return response.Fail(c, err)
	}
	houseID, err := httpx.ParamID(c, "id")
	if err != nil {
		return response.Fail(c, err)
	}
	var req buyRequest
	if err := httpx.Bind(c, &req, nil); err != nil {
		return response.Fail(c, err)
	}
	listingID, err := httpx.OptionalID("listing_id", req.ListingID)
	if err != nil {
		return response.Fail(c, err)
	}
	return h.settle(c, trading.BuyInput{BuyerID: user.ID, ListingID: listingID, HouseID: &houseID})
}

type finalizeRequest struct {
	ListingID string `json:"listing_id" validate:"required"`
}

// POST /trade/finalize
func (h *Handlers) Finalize(c *fiber.Ctx) error {
	user, err := httpx.User(c)
	if err != nil {
		return response.Fail(c, err)
	}
	var req finalizeRequest
	if err := httpx.Bind(c, &req, validation.Codes{"listing_id": apperrors.ErrBadID}); err != nil {
		return response.Fail(c, err)
	}
	listingID, err := validation.UUID("listing_id", req.ListingID)
	if err != nil {
		return response.Fail(c, err)
	}
	return h.settle(c, trading.BuyInput{BuyerID: user.ID, ListingID: &listingID})
}

func (h *Handlers) settle(c *fiber.Ctx, in trading.BuyInput) error {
	out, err := h.Service.Buy(c.UserContext(), in)
	if err != nil {
		return response.Fail(c, err)
	}
	return response.OK(c, fiber.Map{
		"trade":        out.Trade,
		"listing":      out.Listing,
		"house_status": out.HouseStatus,
	})
}

// GET /trades/mine?status=archived&page=
func (h *Handlers) Mine(c *fiber.Ctx) error {
	user, err := httpx.User(c)
	if err != nil {
		return response.Fail(c, err)
	}
	page, err := httpx.QueryInt(c, "page", 1)
	if err != nil {
		return response.Fail(c, err)
	}
	rows, err := h.Service.Mine(c.UserContext(), user.ID, c.Query("status"), page)
	if err != nil {
		return response.Fail(c, err)
	}
	return response.OK(c, fiber.Map{"trades": rows, "page": page})
}
