package splits

import (
	"encoding/json"
	"strings"

	"sharehouse-backend/internal/application/splits"
	"sharehouse-backend/internal/interfaces/handlers/httpx"
	"sharehouse-backend/internal/pkg/apperrors"
	"sharehouse-backend/internal/pkg/response"
	"sharehouse-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service *splits.Service
}

type targetRequest struct {
	TotalShares int `json:"total_shares" validate:"gte=1"`
}

var targetCodes = validation.Codes{"total_shares": apperrors.ErrInvalidTotalShares}

// POST /houses/:id/split_shares and /houses/:id/split_direct
func (h *Handlers) Direct(c *fiber.Ctx) error {
	user, err := httpx.User(c)
	if err != nil {
		return response.Fail(c, err)
	}
	houseID, err := httpx.ParamID(c, "id")
	if err != nil {
		return response.Fail(c, err)
	}
	var req targetRequest
	if err := httpx.Bind(c, &req, targetCodes); err != nil {
		return response.Fail(c, err)
	}
	res, err := h.Service.Direct(c.UserContext(), houseID, user.ID, req.TotalShares)
	if err != nil {
		return response.Fail(c, err)
	}
	return response.OK(c, fiber.Map{"split": res})
}

// POST /houses/:id/split_proposals
func (h *Handlers) Propose(c *fiber.Ctx) error {
	user, err := httpx.User(c)
	if err != nil {
		return response.Fail(c, err)
	}
	houseID, err := httpx.ParamID(c, "id")
	if err != nil {
		return response.Fail(c, err)
	}
	var req targetRequest
	if err := httpx.Bind(c, &req, targetCodes); err != nil {
		return response.Fail(c, err)
	}
	tally, err := h.Service.Propose(c.UserContext(), houseID, user.ID, req.TotalShares)
	if err != nil {
		return response.Fail(c, err)
	}
	return response.Created(c, fiber.Map{"proposal": tally})
}

// GET /houses/:id/split_proposals returns the open proposal, or null.
func (h *Handlers) Current(c *fiber.Ctx) error {
	user, err := httpx.User(c)
	if err != nil {
		return response.Fail(c, err)
	}
	houseID, err := httpx.ParamID(c, "id")
	if err != nil {
		return response.Fail(c, err)
	}
	tally, err := h.Service.Proposal(c.UserContext(), houseID, user.ID)
	if err != nil {
		return response.Fail(c, err)
	}
	return response.OK(c, fiber.Map{"proposal": tally})
}

type voteRequest struct {
	Vote json.RawMessage `json:"vote"`
}

// parseVote accepts "yes"/"no" or a JSON boolean.
func parseVote(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "yes", "y", "true":
			return true, nil
		case "no", "n", "false":
			return false, nil
		}
	}
	return false, apperrors.WithDetails(apperrors.ErrBadRequest, map[string]any{"field": "vote"})
}

// POST /houses/:id/split_proposals/:pid/vote
func (h *Handlers) Vote(c *fiber.Ctx) error {
	user, err := httpx.User(c)
	if err != nil {
		return response.Fail(c, err)
	}
	proposalID, err := httpx.ParamID(c, "pid")
	if err != nil {
		return response.Fail(c, err)
	}
	var req voteRequest
	if err := httpx.Bind(c, &req, nil); err != nil {
		return response.Fail(c, err)
	}
	yes, err := parseVote(req.Vote)
	if err != nil {
		return response.Fail(c, err)
	}
	tally, err := h.Service.Vote(c.UserContext(), proposalID, user.ID, yes)
	if err != nil {
		return response.Fail(c, err)
	}
	return response.OK(c, fiber.Map{"proposal": tally})
}

// POST /houses/:id/split_proposals/:pid/cancel
func (h *Handlers) Cancel(c *fiber.Ctx) error {
	user, err := httpx.User(c)
	if err != nil {
		return response.Fail(c, err)
	}
	proposalID, err := httpx.ParamID(c, "pid")
	if err != nil {
		return response.Fail(c, err)
	}
	p, err := h.Service.Cancel(c.UserContext(), proposalID, user.ID)
	if err != nil {
		return response.Fail(c, err)
	}
	return response.OK(c, fiber.Map{"proposal": p})
}

type limitRequest struct {
	RequestedMax int `json:"requested_max" validate:"gte=1"`
}

// POST /houses/:id/split_limit_requests. Staff requests are approved at once.
func (h *Handlers) RequestLimit(c *fiber.Ctx) error {
	user, err := httpx.User(c)
	if err != nil {
		return response.Fail(c, err)
	}
	houseID, err := httpx.ParamID(c, "id")
	if err != nil {
		return response.Fail(c, err)
	}
	var req limitRequest
	if err := httpx.Bind(c, &req, validation.Codes{"requested_max": apperrors.ErrLimitTooLow}); err != nil {
		return response.Fail(c, err)
	}
	r, err := h.Service.RequestLimit(c.UserContext(), houseID, user.ID, req.RequestedMax, user.IsStaff)
	if err != nil {
		return response.Fail(c, err)
	}
	return response.Created(c, fiber.Map{"request": r})
}

type decideRequest struct {
	Approve *bool `json:"approve" validate:"required"`
}

// POST /ext/split_limit_requests/:rid/decide, guarded by the ext secret.
func (h *Handlers) DecideLimit(c *fiber.Ctx) error {
	requestID, err := httpx.ParamID(c, "rid")
	if err != nil {
		return response.Fail(c, err)
	}
	var req decideRequest
	if err := httpx.Bind(c, &req, nil); err != nil {
		return response.Fail(c, err)
	}
	r, err := h.Service.DecideLimit(c.UserContext(), requestID, *req.Approve)
	if err != nil {
		return response.Fail(c, err)
	}
	return response.OK(c, fiber.Map{"request": r})
}
