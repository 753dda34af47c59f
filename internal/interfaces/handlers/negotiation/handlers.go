package negotiation

import (
	"context"

	"sharehouse-backend/internal/application/negotiation"
	"sharehouse-backend/internal/interfaces/handlers/httpx"
	"sharehouse-backend/internal/pkg/apperrors"
	"sharehouse-backend/internal/pkg/response"
	"sharehouse-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Handlers struct {
	Service *negotiation.Service
}

type openRequest struct {
	SellerID string `json:"seller_id"`
}

// POST /house/:id/conversations
func (h *Handlers) Open(c *fiber.Ctx) error {
	user, err := httpx.User(c)
	if err != nil {
		return response.Fail(c, err)
	}
	houseID, err := httpx.ParamID(c, "id")
	if err != nil {
		return response.Fail(c, err)
	}
	var req openRequest
	if err := httpx.Bind(c, &req, nil); err != nil {
		return response.Fail(c, err)
	}
	sellerID, err := httpx.OptionalID("seller_id", req.SellerID)
	if err != nil {
		return response.Fail(c, err)
	}
	conv, err := h.Service.Open(c.UserContext(), houseID, user.ID, sellerID)
	if err != nil {
		return response.Fail(c, err)
	}
	return response.OK(c, fiber.Map{"conversation": conv})
}

// GET /messages?archived=true
func (h *Handlers) Inbox(c *fiber.Ctx) error {
	user, err := httpx.User(c)
	if err != nil {
		return response.Fail(c, err)
	}
	convs, err := h.Service.ListMine(c.UserContext(), user.ID, c.QueryBool("archived"))
	if err != nil {
		return response.Fail(c, err)
	}
	return response.OK(c, fiber.Map{"conversations": convs})
}

// GET /messages/:conv
func (h *Handlers) Thread(c *fiber.Ctx) error {
	user, err := httpx.User(c)
	if err != nil {
		return response.Fail(c, err)
	}
	convID, err := httpx.ParamID(c, "conv")
	if err != nil {
		return response.Fail(c, err)
	}
	thread, err := h.Service.Get(c.UserContext(), convID, user.ID)
	if err != nil {
		return response.Fail(c, err)
	}
	return response.OK(c, fiber.Map{"thread": thread})
}

type sendRequest struct {
	Body string `json:"body" validate:"required"`
}

// POST /messages/:conv/send
func (h *Handlers) Send(c *fiber.Ctx) error {
	return h.withConversation(c, func(ctx context.Context, convID, userID uuid.UUID) (fiber.Map, error) {
		var req sendRequest
		if err := httpx.Bind(c, &req, nil); err != nil {
			return nil, err
		}
		msg, err := h.Service.Send(ctx, convID, userID, req.Body)
		return fiber.Map{"message": msg}, err
	})
}

type offerRequest struct {
	Price  decimal.Decimal `json:"price" validate:"gt=0"`
	Shares *int            `json:"shares"`
}

var offerCodes = validation.Codes{"price": apperrors.ErrBadPrice}

// POST /messages/:conv/offer
func (h *Handlers) Offer(c *fiber.Ctx) error {
	return h.withConversation(c, func(ctx context.Context, convID, userID uuid.UUID) (fiber.Map, error) {
		var req offerRequest
		if err := httpx.Bind(c, &req, offerCodes); err != nil {
			return nil, err
		}
		offer, err := h.Service.Offer(ctx, convID, userID, req.Price, req.Shares)
		return fiber.Map{"offer": offer}, err
	})
}

// POST /messages/:conv/counter
func (h *Handlers) Counter(c *fiber.Ctx) error {
	return h.withConversation(c, func(ctx context.Context, convID, userID uuid.UUID) (fiber.Map, error) {
		var req offerRequest
		if err := httpx.Bind(c, &req, offerCodes); err != nil {
			return nil, err
		}
		offer, err := h.Service.Counter(ctx, convID, userID, req.Price, req.Shares)
		return fiber.Map{"offer": offer}, err
	})
}

// POST /messages/:conv/accept
func (h *Handlers) Accept(c *fiber.Ctx) error {
	return h.withConversation(c, func(ctx context.Context, convID, userID uuid.UUID) (fiber.Map, error) {
		agreement, err := h.Service.Accept(ctx, convID, userID)
		return fiber.Map{"agreement": agreement}, err
	})
}

type finalizeRequest struct {
	Confirm bool `json:"confirm"`
}

// POST /messages/:conv/finalize. Confirm overrides the public listing guard.
func (h *Handlers) Finalize(c *fiber.Ctx) error {
	return h.withConversation(c, func(ctx context.Context, convID, userID uuid.UUID) (fiber.Map, error) {
		var req finalizeRequest
		if err := httpx.Bind(c, &req, nil); err != nil {
			return nil, err
		}
		agreement, err := h.Service.Finalize(ctx, convID, userID, req.Confirm)
		return fiber.Map{"agreement": agreement}, err
	})
}

// POST /messages/:conv/stop
func (h *Handlers) Stop(c *fiber.Ctx) error {
	return h.withConversation(c, func(ctx context.Context, convID, userID uuid.UUID) (fiber.Map, error) {
		conv, err := h.Service.Stop(ctx, convID, userID)
		return fiber.Map{"conversation": conv}, err
	})
}

// POST /messages/:conv/resume
func (h *Handlers) Resume(c *fiber.Ctx) error {
	return h.withConversation(c, func(ctx context.Context, convID, userID uuid.UUID) (fiber.Map, error) {
		conv, err := h.Service.Resume(ctx, convID, userID)
		return fiber.Map{"conversation": conv}, err
	})
}

func (h *Handlers) withConversation(c *fiber.Ctx, fn func(ctx context.Context, convID, userID uuid.UUID) (fiber.Map, error)) error {
	user, err := httpx.User(c)
	if err != nil {
		return response.Fail(c, err)
	}
	convID, err := httpx.ParamID(c, "conv")
	if err != nil {
		return response.Fail(c, err)
	}
	out, err := fn(c.UserContext(), convID, user.ID)
	if err != nil {
		return response.Fail(c, err)
	}
	return response.OK(c, out)
}
