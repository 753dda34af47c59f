package payments

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"sharehouse-backend/internal/application/trading"
	"sharehouse-backend/internal/domain"
	"sharehouse-backend/internal/infrastructure/database"
	"sharehouse-backend/internal/pkg/apperrors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76/webhook"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const signatureTolerance = 300 * time.Second

const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventPaymentFailed     = "payment_intent.payment_failed"
	EventChargeRefunded    = "charge.refunded"
)

// Webhook outcomes, also used as the metrics label.
const (
	OutcomeCompleted = "completed"
	OutcomeDuplicate = "duplicate"
	OutcomeRefunded  = "refunded"
	OutcomeFailed    = "failed"
	OutcomeIgnored   = "ignored"
)

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type sessionObject struct {
	ID            string            `json:"id"`
	PaymentIntent string            `json:"payment_intent"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
	TotalDetails  struct {
		AmountFee int64 `json:"amount_fee"`
	} `json:"total_details"`
}

type paymentIntentObject struct {
	ID string `json:"id"`
}

type chargeObject struct {
	ID            string `json:"id"`
	PaymentIntent string `json:"payment_intent"`
}

// EventResult reports what a delivery did.
type EventResult struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
}

// VerifySignature checks the Stripe-Signature header against the endpoint
// secret.
func (s *Service) VerifySignature(payload []byte, signature string) error {
	if s.Settings.WebhookSecret == "" {
		return apperrors.ErrProviderNotConfigured
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, signature, s.Settings.WebhookSecret, signatureTolerance); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalidSignature, err)
	}
	return nil
}

// HandleEvent verifies and applies one webhook delivery. Replays are no-ops.
// Domain failures are reported in the result, not as errors, so the
// processor stops retrying; only infrastructure errors are returned.
func (s *Service) HandleEvent(ctx context.Context, payload []byte, signature string) (*EventResult, error) {
	if err := s.VerifySignature(payload, signature); err != nil {
		return nil, err
	}
	var ev stripeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrBadRequest, err)
	}

	res := &EventResult{EventID: ev.ID, Type: ev.Type}
	var err error
	switch ev.Type {
	case EventCheckoutCompleted:
		var obj sessionObject
		if err = json.Unmarshal(ev.Data.Object, &obj); err == nil {
			err = s.handleCompleted(ctx, obj, payload, res)
		}
	case EventPaymentFailed:
		var obj paymentIntentObject
		if err = json.Unmarshal(ev.Data.Object, &obj); err == nil {
			err = s.handleFailed(ctx, obj, res)
		}
	case EventChargeRefunded:
		var obj chargeObject
		if err = json.Unmarshal(ev.Data.Object, &obj); err == nil {
			err = s.handleRefunded(ctx, obj, res)
		}
	default:
		res.Outcome = OutcomeIgnored
	}

	var syntax *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntax) || errors.As(err, &typeErr) {
		log.Warn().Err(err).Str("event_id", ev.ID).Str("type", ev.Type).Msg("webhook object not understood")
		res.Outcome, res.Reason, err = OutcomeIgnored, "BAD_OBJECT", nil
	}
	if err != nil {
		s.Metrics.ObserveWebhook(ev.Type, "error")
		return nil, err
	}
	s.Metrics.ObserveWebhook(ev.Type, res.Outcome)
	log.Info().Str("event_id", ev.ID).Str("type", ev.Type).Str("outcome", res.Outcome).Str("reason", res.Reason).Msg("webhook processed")
	return res, nil
}

// refundable are the settlement failures that mean the buyer paid for shares
// that are no longer available.
var refundable = []*apperrors.AppError{
	apperrors.ErrListingNotFound,
	apperrors.ErrAlreadySold,
	apperrors.ErrNoSharesLeft,
	apperrors.ErrNotEnoughShares,
	apperrors.ErrNotEnoughSellerShares,
	apperrors.ErrCannotBuyOwn,
}

func isRefundable(err error) bool {
	for _, sentinel := range refundable {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func (s *Service) handleCompleted(ctx context.Context, obj sessionObject, payload []byte, res *EventResult) error {
	start := time.Now()
	var settlement *trading.Settlement
	refund := false

	err := database.Transaction(ctx, s.DB, s.LockTimeout, func(tx *gorm.DB) error {
		var txn domain.Transaction
		err := database.ForUpdate(tx).Where("stripe_session_id = ?", obj.ID).Take(&txn).Error
		switch {
		case err == nil:
			// The session completing is authoritative over an earlier
			// failed attempt; only a settled or refunded row is a replay.
			if !txn.CanMoveTo(domain.TxCompleted) {
				res.Outcome, res.Reason = OutcomeDuplicate, txn.Status
				return nil
			}
		case database.IsNotFound(err):
			created, ok, err := transactionFromSession(tx, obj)
			if err != nil {
				return err
			}
			if !ok {
				res.Outcome, res.Reason = OutcomeIgnored, "MISSING_METADATA"
				return nil
			}
			txn = *created
		default:
			return err
		}

		var pi *string
		if obj.PaymentIntent != "" {
			pi = &obj.PaymentIntent
		}
		if txn.ListingID == nil || txn.BuyerID == nil {
			res.Outcome, res.Reason = OutcomeIgnored, "MISSING_METADATA"
			return nil
		}

		// Savepoint so a rejected settlement leaves nothing behind but the
		// refund marker.
		settleErr := tx.Transaction(func(inner *gorm.DB) error {
			var err error
			settlement, err = trading.Settle(inner, trading.SettleInput{
				ListingID: *txn.ListingID,
				BuyerID:   *txn.BuyerID,
				Shares:    txn.Shares,
				Amount:    txn.Amount,
				Source:    trading.SourceCheckout,
			})
			return err
		})
		now := time.Now().UTC()
		updates := map[string]interface{}{
			"stripe_payment_intent": pi,
			"raw_event":             datatypes.JSON(payload),
			"updated_at":            now,
		}
		switch {
		case settleErr == nil:
			updates["status"] = domain.TxCompleted
			updates["completed_at"] = now
			res.Outcome = OutcomeCompleted
		case isRefundable(settleErr):
			settlement = nil
			updates["status"] = domain.TxRefunded
			res.Outcome, res.Reason = OutcomeRefunded, apperrors.As(settleErr).Code
			refund = pi != nil
		default:
			return settleErr
		}
		return tx.Model(&domain.Transaction{}).Where("id = ?", txn.ID).Updates(updates).Error
	})
	if err != nil {
		s.Metrics.ObserveSettlement(trading.SourceCheckout, time.Since(start), apperrors.As(err).Code)
		return err
	}

	if settlement != nil {
		s.Metrics.ObserveSettlement(trading.SourceCheckout, time.Since(start), "")
		log.Info().Str("session_id", obj.ID).Str("trade_id", settlement.Trade.ID.String()).
			Int("shares", settlement.Trade.Shares).Msg("checkout settled")
		if s.Notifier != nil {
			s.Notifier.OnTradeSettled(ctx, settlement.Event(trading.SourceCheckout))
		}
	}
	if res.Outcome == OutcomeRefunded {
		s.Metrics.ObserveSettlement(trading.SourceCheckout, time.Since(start), res.Reason)
		log.Warn().Str("session_id", obj.ID).Str("reason", res.Reason).Msg("checkout cannot settle, refunding")
	}
	if refund {
		s.issueRefund(ctx, obj.ID, obj.PaymentIntent)
	}
	return nil
}

// issueRefund runs after the refunded status has committed. The idempotency
// key makes a replayed delivery safe.
func (s *Service) issueRefund(ctx context.Context, sessionID, paymentIntent string) {
	if s.Provider == nil {
		log.Error().Str("session_id", sessionID).Msg("refund needed but payment provider is not configured")
		return
	}
	if err := s.Provider.CreateRefund(ctx, paymentIntent, "refund_"+sessionID); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Str("payment_intent", paymentIntent).Msg("refund failed")
		return
	}
	s.Metrics.IncRefund()
	log.Info().Str("session_id", sessionID).Str("payment_intent", paymentIntent).Msg("refund issued")
}

// transactionFromSession rebuilds a transaction from session metadata when
// the checkout row is missing. ok is false when metadata is incomplete.
func transactionFromSession(tx *gorm.DB, obj sessionObject) (*domain.Transaction, bool, error) {
	listingID, err1 := uuid.Parse(obj.Metadata["listing_id"])
	buyerID, err2 := uuid.Parse(obj.Metadata["buyer_id"])
	if err1 != nil || err2 != nil {
		return nil, false, nil
	}
	shares, err := strconv.Atoi(obj.Metadata["shares"])
	if err != nil || shares < 1 {
		shares = 1
	}
	txn := &domain.Transaction{
		StripeSessionID: obj.ID,
		ListingID:       &listingID,
		BuyerID:         &buyerID,
		Shares:          shares,
		Amount:          decimal.New(obj.AmountTotal, -2),
		PlatformFee:     decimal.New(obj.TotalDetails.AmountFee, -2),
		Currency:        "PLN",
		Status:          domain.TxPending,
	}
	if obj.Currency != "" {
		txn.Currency = strings.ToUpper(obj.Currency)
	}
	if id, err := uuid.Parse(obj.Metadata["seller_id"]); err == nil {
		txn.SellerID = &id
	}
	if id, err := uuid.Parse(obj.Metadata["house_id"]); err == nil {
		txn.HouseID = &id
	}
	if err := tx.Create(txn).Error; err != nil {
		return nil, false, err
	}
	return txn, true, nil
}

// handleFailed only touches a row already tied to the intent. A declined card
// leaves the checkout session open for another attempt, so a pending row
// without an intent stays pending.
func (s *Service) handleFailed(ctx context.Context, obj paymentIntentObject, res *EventResult) error {
	return database.Transaction(ctx, s.DB, s.LockTimeout, func(tx *gorm.DB) error {
		txn, err := lockByPaymentIntent(tx, obj.ID)
		if err != nil {
			return err
		}
		return move(tx, txn, domain.TxFailed, obj.ID, res, OutcomeFailed)
	})
}

func (s *Service) handleRefunded(ctx context.Context, obj chargeObject, res *EventResult) error {
	if obj.PaymentIntent == "" {
		res.Outcome, res.Reason = OutcomeIgnored, "NO_PAYMENT_INTENT"
		return nil
	}
	return database.Transaction(ctx, s.DB, s.LockTimeout, func(tx *gorm.DB) error {
		txn, err := lockByPaymentIntent(tx, obj.PaymentIntent)
		if err != nil {
			return err
		}
		// Shares already transferred stay with the buyer.
		return move(tx, txn, domain.TxRefunded, obj.PaymentIntent, res, OutcomeRefunded)
	})
}

func move(tx *gorm.DB, txn *domain.Transaction, next, paymentIntent string, res *EventResult, outcome string) error {
	if txn == nil {
		res.Outcome, res.Reason = OutcomeIgnored, apperrors.ErrTransactionNotFound.Code
		return nil
	}
	if txn.Status == next {
		res.Outcome = OutcomeDuplicate
		return nil
	}
	if !txn.CanMoveTo(next) {
		res.Outcome, res.Reason = OutcomeIgnored, "STATUS_"+txn.Status
		return nil
	}
	res.Outcome = outcome
	return tx.Model(&domain.Transaction{}).Where("id = ?", txn.ID).Updates(map[string]interface{}{
		"status":                next,
		"stripe_payment_intent": paymentIntent,
		"updated_at":            time.Now().UTC(),
	}).Error
}

func lockByPaymentIntent(tx *gorm.DB, paymentIntent string) (*domain.Transaction, error) {
	if paymentIntent == "" {
		return nil, nil
	}
	var txn domain.Transaction
	err := database.ForUpdate(tx).Where("stripe_payment_intent = ?", paymentIntent).Order("created_at DESC").Take(&txn).Error
	if database.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}
