package payments

import (
	"sharehouse-backend/internal/application/payments"
	"sharehouse-backend/internal/interfaces/handlers/httpx"
	"sharehouse-backend/internal/pkg/apperrors"
	"sharehouse-backend/internal/pkg/response"
	"sharehouse-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

type Handlers struct {
	Service *payments.Service
}

// POST /payments/onboard
func (h *Handlers) Onboard(c *fiber.Ctx) error {
	user, err := httpx.User(c)
	if err != nil {
		return response.Fail(c, err)
	}
	res, err := h.Service.Onboard(c.UserContext(), user.ID)
	if err != nil {
		return response.Fail(c, err)
	}
	return response.OK(c, fiber.Map{"account": res})
}

// GET /payments/status
func (h *Handlers) Status(c *fiber.Ctx) error {
	user, err := httpx.User(c)
	if err != nil {
		return response.Fail(c, err)
	}
	res, err := h.Service.Status(c.UserContext(), user.ID)
	if err != nil {
		return response.Fail(c, err)
	}
	return response.OK(c, fiber.Map{"account": res})
}

type checkoutRequest struct {
	ListingID string `json:"listing_id" validate:"required"`
	Shares    int    `json:"shares" validate:"gte=0"`
}

// POST /checkout. Shares zero buys everything left on the listing.
func (h *Handlers) Checkout(c *fiber.Ctx) error {
	user, err := httpx.User(c)
	if err != nil {
		return response.Fail(c, err)
	}
	var req checkoutRequest
	if err := httpx.Bind(c, &req, validation.Codes{"listing_id": apperrors.ErrBadID, "shares": apperrors.ErrBadShares}); err != nil {
		return response.Fail(c, err)
	}
	listingID, err := validation.UUID("listing_id", req.ListingID)
	if err != nil {
		return response.Fail(c, err)
	}
	res, err := h.Service.Checkout(c.UserContext(), payments.CheckoutInput{
		ListingID: listingID,
		BuyerID:   user.ID,
		Shares:    req.Shares,
	})
	if err != nil {
		return response.Fail(c, err)
	}
	return response.OK(c, fiber.Map{"checkout": res, "checkout_url": res.CheckoutURL})
}

// POST /stripe/webhook. Public; the raw body is verified against the
// Stripe-Signature header before anything is parsed.
func (h *Handlers) Webhook(c *fiber.Ctx) error {
	raw := c.BodyRaw()
	sig := c.Get("Stripe-Signature")
	if len(raw) == 0 {
		log.Warn().Msg("stripe webhook received empty body")
		return response.Fail(c, apperrors.WithMessage(apperrors.ErrBadRequest, "empty body"))
	}
	res, err := h.Service.HandleEvent(c.UserContext(), raw, sig)
	if err != nil {
		if apperrors.As(err).Code == apperrors.ErrInvalidSignature.Code {
			log.Warn().Err(err).Bool("has_sig", sig != "").Msg("stripe webhook signature verification failed")
		}
		return response.Fail(c, err)
	}
	return response.OK(c, fiber.Map{"received": true, "result": res})
}
