package listings

import (
	"sharehouse-backend/internal/application/listings"
	"sharehouse-backend/internal/interfaces/handlers/httpx"
	"sharehouse-backend/internal/pkg/apperrors"
	"sharehouse-backend/internal/pkg/response"
	"sharehouse-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type Handlers struct {
	Service *listings.Service
}

type listRequest struct {
	Price    decimal.Decimal `json:"price" validate:"gt=0"`
	Currency string          `json:"currency"`
	Shares   int             `json:"shares" validate:"gte=1"`
}

var listCodes = validation.Codes{
	"price":  apperrors.ErrBadPrice,
	"shares": apperrors.ErrBadShares,
}

// POST /house/:id/list creates or replaces the caller's listing on the house.
func (h *Handlers) List(c *fiber.Ctx) error {
	user, err := httpx.User(c)
	if err != nil {
		return response.Fail(c, err)
	}
	houseID, err := httpx.ParamID(c, "id")
	if err != nil {
		return response.Fail(c, err)
	}
	var req listRequest
	if err := httpx.Bind(c, &req, listCodes); err != nil {
		return response.Fail(c, err)
	}
	currency, err := validation.Currency(req.Currency, "")
	if err != nil {
		return response.Fail(c, err)
	}
	l, err := h.Service.List(c.UserContext(), listings.ListInput{
		HouseID:  houseID,
		SellerID: user.ID,
		Price:    req.Price,
		Currency: currency,
		Shares:   req.Shares,
	})
	if err != nil {
		return response.Fail(c, err)
	}
	return response.OK(c, fiber.Map{"listing": l})
}

// POST /house/:id/unlist
func (h *Handlers) Unlist(c *fiber.Ctx) error {
	user, err := httpx.User(c)
	if err != nil {
		return response.Fail(c, err)
	}
	houseID, err := httpx.ParamID(c, "id")
	if err != nil {
		return response.Fail(c, err)
	}
	l, err := h.Service.Unlist(c.UserContext(), houseID, user.ID)
	if err != nil {
		return response.Fail(c, err)
	}
	return response.OK(c, fiber.Map{"listing": l})
}

// GET /listings?status=&house_id=&min_price=&max_price=&order_by=&limit=&offset=
func (h *Handlers) Browse(c *fiber.Ctx) error {
	q, err := query(c)
	if err != nil {
		return response.Fail(c, err)
	}
	houseID, err := httpx.OptionalID("house_id", c.Query("house_id"))
	if err != nil {
		return response.Fail(c, err)
	}
	q.HouseID = houseID
	return h.browse(c, q)
}

// GET /house/:id/listings
func (h *Handlers) ForHouse(c *fiber.Ctx) error {
	houseID, err := httpx.ParamID(c, "id")
	if err != nil {
		return response.Fail(c, err)
	}
	q, err := query(c)
	if err != nil {
		return response.Fail(c, err)
	}
	q.HouseID = &houseID
	return h.browse(c, q)
}

// GET /listings/mine lists the caller's listings in every status.
func (h *Handlers) Mine(c *fiber.Ctx) error {
	user, err := httpx.User(c)
	if err != nil {
		return response.Fail(c, err)
	}
	q, err := query(c)
	if err != nil {
		return response.Fail(c, err)
	}
	if c.Query("status") == "" {
		q.Status = "all"
	}
	q.SellerID = &user.ID
	return h.browse(c, q)
}

// GET /listings/cheapest?house_id=
func (h *Handlers) Cheapest(c *fiber.Ctx) error {
	houseID, err := httpx.OptionalID("house_id", c.Query("house_id"))
	if err != nil {
		return response.Fail(c, err)
	}
	l, err := h.Service.Cheapest(c.UserContext(), houseID)
	if err != nil {
		return response.Fail(c, err)
	}
	return response.OK(c, fiber.Map{"listing": l})
}

// GET /listings/:id
func (h *Handlers) Get(c *fiber.Ctx) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return response.Fail(c, err)
	}
	l, err := h.Service.Get(c.UserContext(), id)
	if err != nil {
		return response.Fail(c, err)
	}
	return response.OK(c, fiber.Map{"listing": l})
}

func (h *Handlers) browse(c *fiber.Ctx, q listings.Query) error {
	page, err := h.Service.Browse(c.UserContext(), q)
	if err != nil {
		return response.Fail(c, err)
	}
	return response.OK(c, fiber.Map{"listings": page.Items, "total": page.Total, "limit": page.Limit, "offset": page.Offset})
}

func query(c *fiber.Ctx) (listings.Query, error) {
	q := listings.Query{Status: c.Query("status"), OrderBy: c.Query("order_by")}
	var err error
	if q.Limit, err = httpx.QueryInt(c, "limit", 0); err != nil {
		return q, err
	}
	if q.Offset, err = httpx.QueryInt(c, "offset", 0); err != nil {
		return q, err
	}
	if q.MinPrice, err = price(c, "min_price"); err != nil {
		return q, err
	}
	if q.MaxPrice, err = price(c, "max_price"); err != nil {
		return q, err
	}
	return q, nil
}

func price(c *fiber.Ctx, name string) (*decimal.Decimal, error) {
	s := c.Query(name)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return nil, apperrors.WithDetails(apperrors.ErrBadPrice, map[string]any{"field": name})
	}
	return &d, nil
}
