// Package payments takes card payments for listings through a hosted checkout
// and reconciles the processor's webhook events with the share ledger.
package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sharehouse-backend/internal/application/notifications"
	"sharehouse-backend/internal/application/trading"
	"sharehouse-backend/internal/domain"
	"sharehouse-backend/internal/infrastructure/database"
	"sharehouse-backend/internal/infrastructure/metrics"
	"sharehouse-backend/internal/pkg/apperrors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Settings are the payment knobs loaded from configuration.
type Settings struct {
	WebhookSecret      string
	PlatformFeePercent decimal.Decimal
	IdempotencyWindow  time.Duration
	SuccessURL         string
	CancelURL          string
	OnboardReturnURL   string
	OnboardRefreshURL  string
}

type Service struct {
	DB          *gorm.DB
	LockTimeout time.Duration
	Provider    Provider
	Settings    Settings
	Notifier    notifications.Notifier
	Metrics     *metrics.Metrics

	// Now is overridable in tests.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func providerError(err error) error {
	return apperrors.Wrap(apperrors.ErrProvider, err)
}

// OnboardResult points the user at the processor's hosted onboarding.
type OnboardResult struct {
	AccountID      string `json:"account_id"`
	URL            string `json:"url"`
	ChargesEnabled bool   `json:"charges_enabled"`
	PayoutsEnabled bool   `json:"payouts_enabled"`
}

// Onboard creates the user's connected account on first use and returns a
// fresh onboarding link.
func (s *Service) Onboard(ctx context.Context, userID uuid.UUID) (*OnboardResult, error) {
	if s.Provider == nil {
		return nil, apperrors.ErrProviderNotConfigured
	}
	user, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}

	var acct *Account
	if user.StripeAccountID == nil || *user.StripeAccountID == "" {
		acct, err = s.Provider.CreateAccount(ctx, user.Email)
		if err != nil {
			return nil, providerError(err)
		}
		err = database.Transaction(ctx, s.DB, s.LockTimeout, func(tx *gorm.DB) error {
			var locked domain.User
			if err := database.ForUpdate(tx).Where("id = ?", userID).Take(&locked).Error; err != nil {
				return err
			}
			if locked.StripeAccountID != nil && *locked.StripeAccountID != "" {
				// A concurrent request won; keep its account.
				acct = &Account{ID: *locked.StripeAccountID}
				return nil
			}
			return tx.Model(&domain.User{}).Where("id = ?", userID).Update("stripe_account_id", acct.ID).Error
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("user_id", userID.String()).Str("account_id", acct.ID).Msg("payment account created")
	} else {
		acct, err = s.Provider.RetrieveAccount(ctx, *user.StripeAccountID)
		if err != nil {
			return nil, providerError(err)
		}
	}

	refresh := s.Settings.OnboardRefreshURL
	if refresh == "" {
		refresh = s.Settings.OnboardReturnURL
	}
	url, err := s.Provider.CreateAccountLink(ctx, acct.ID, refresh, s.Settings.OnboardReturnURL)
	if err != nil {
		return nil, providerError(err)
	}
	return &OnboardResult{AccountID: acct.ID, URL: url, ChargesEnabled: acct.ChargesEnabled, PayoutsEnabled: acct.PayoutsEnabled}, nil
}

// AccountStatus reports the user's onboarding state.
type AccountStatus struct {
	Onboarded        bool   `json:"onboarded"`
	AccountID        string `json:"account_id,omitempty"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

func (s *Service) Status(ctx context.Context, userID uuid.UUID) (*AccountStatus, error) {
	user, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.StripeAccountID == nil || *user.StripeAccountID == "" {
		return &AccountStatus{}, nil
	}
	if s.Provider == nil {
		return nil, apperrors.ErrProviderNotConfigured
	}
	acct, err := s.Provider.RetrieveAccount(ctx, *user.StripeAccountID)
	if err != nil {
		return nil, providerError(err)
	}
	return &AccountStatus{
		Onboarded:        acct.ChargesEnabled && acct.PayoutsEnabled,
		AccountID:        acct.ID,
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
	}, nil
}

type CheckoutInput struct {
	ListingID uuid.UUID
	BuyerID   uuid.UUID
	Shares    int
}

type CheckoutResult struct {
	SessionID   string          `json:"session_id"`
	CheckoutURL string          `json:"checkout_url"`
	Shares      int             `json:"shares"`
	Amount      decimal.Decimal `json:"amount"`
	PlatformFee decimal.Decimal `json:"platform_fee"`
	Currency    string          `json:"currency"`
}

// Checkout validates the purchase, opens a hosted checkout session and
// records a pending transaction keyed by the session id.
func (s *Service) Checkout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	res, err := s.checkout(ctx, in)
	outcome := "created"
	if err != nil {
		outcome = apperrors.As(err).Code
	}
	s.Metrics.ObserveCheckout(outcome)
	return res, err
}

func (s *Service) checkout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	if s.Provider == nil {
		return nil, apperrors.ErrProviderNotConfigured
	}
	if in.Shares < 0 {
		return nil, apperrors.ErrBadShares
	}
	db := s.DB.WithContext(ctx)
	var l domain.Listing
	if err := db.Where("id = ?", in.ListingID).Take(&l).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperrors.ErrListingNotFound
		}
		return nil, err
	}
	if l.Status != domain.ListingActive {
		return nil, apperrors.WithDetails(apperrors.ErrListingNotActive, map[string]any{"status": l.Status})
	}
	remaining := l.Remaining()
	if remaining == 0 && l.LeftShares == nil {
		// Rows written before share_count existed sell the whole holding,
		// as settlement does.
		var rec domain.OwnershipRecord
		err := db.Where("house_id = ? AND user_id = ?", l.HouseID, l.SellerID).Take(&rec).Error
		if err != nil && !database.IsNotFound(err) {
			return nil, err
		}
		remaining = rec.Shares
	}
	if remaining <= 0 {
		return nil, apperrors.ErrNoSharesLeft
	}
	if l.SellerID == in.BuyerID {
		return nil, apperrors.ErrCannotBuyOwn
	}
	shares := in.Shares
	if shares == 0 {
		shares = remaining
	}
	if shares > remaining {
		return nil, apperrors.WithDetails(apperrors.ErrNotEnoughShares, map[string]any{"remaining": remaining, "requested": shares})
	}

	seller, err := s.user(ctx, l.SellerID)
	if err != nil {
		return nil, err
	}
	if seller.StripeAccountID == nil || *seller.StripeAccountID == "" {
		return nil, apperrors.ErrSellerNotOnboarded
	}
	sellerAcct, err := s.Provider.RetrieveAccount(ctx, *seller.StripeAccountID)
	if err != nil {
		return nil, providerError(err)
	}
	if !sellerAcct.ChargesEnabled {
		return nil, apperrors.ErrSellerChargesDisabled
	}
	if !sellerAcct.PayoutsEnabled {
		return nil, apperrors.ErrSellerPayoutsDisabled
	}

	buyer, err := s.user(ctx, in.BuyerID)
	if err != nil {
		return nil, err
	}
	if buyer.StripeAccountID == nil || *buyer.StripeAccountID == "" {
		return nil, apperrors.ErrBuyerNotOnboarded
	}
	buyerAcct, err := s.Provider.RetrieveAccount(ctx, *buyer.StripeAccountID)
	if err != nil {
		return nil, providerError(err)
	}
	if !buyerAcct.ChargesEnabled {
		return nil, apperrors.ErrBuyerChargesDisabled
	}

	amount := trading.ProRata(l.Price, shares, l.ShareCount)
	fee := amount.Mul(s.Settings.PlatformFeePercent).Round(2)
	var house domain.House
	if err := db.Select("id", "name").Where("id = ?", l.HouseID).Take(&house).Error; err != nil && !database.IsNotFound(err) {
		return nil, err
	}
	name := house.Name
	if name == "" {
		name = "Property"
	}

	session, err := s.Provider.CreateCheckoutSession(ctx, CheckoutRequest{
		IdempotencyKey:  s.idempotencyKey(l.ID, in.BuyerID, shares, amount),
		Currency:        strings.ToLower(l.Currency),
		ProductName:     fmt.Sprintf("%s - %d shares", name, shares),
		Description:     fmt.Sprintf("Purchase of %d shares in property %s", shares, l.HouseID),
		AmountCents:     amount.Shift(2).IntPart(),
		FeeCents:        fee.Shift(2).IntPart(),
		SellerAccountID: sellerAcct.ID,
		CustomerEmail:   buyer.Email,
		SuccessURL:      s.Settings.SuccessURL,
		CancelURL:       s.Settings.CancelURL,
		Metadata: map[string]string{
			"listing_id": l.ID.String(),
			"buyer_id":   in.BuyerID.String(),
			"seller_id":  l.SellerID.String(),
			"house_id":   l.HouseID.String(),
			"shares":     fmt.Sprint(shares),
		},
	})
	if err != nil {
		return nil, providerError(err)
	}

	err = database.Transaction(ctx, s.DB, s.LockTimeout, func(tx *gorm.DB) error {
		var existing domain.Transaction
		err := tx.Where("stripe_session_id = ?", session.ID).Take(&existing).Error
		if err == nil {
			return nil
		}
		if !database.IsNotFound(err) {
			return err
		}
		return tx.Create(&domain.Transaction{
			StripeSessionID: session.ID,
			ListingID:       &l.ID,
			HouseID:         &l.HouseID,
			BuyerID:         &in.BuyerID,
			SellerID:        &l.SellerID,
			Shares:          shares,
			Amount:          amount,
			Currency:        l.Currency,
			PlatformFee:     fee,
			Status:          domain.TxPending,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("session_id", session.ID).Str("listing_id", l.ID.String()).Str("buyer_id", in.BuyerID.String()).
		Int("shares", shares).Str("amount", amount.String()).Msg("checkout session created")
	return &CheckoutResult{
		SessionID:   session.ID,
		CheckoutURL: session.URL,
		Shares:      shares,
		Amount:      amount,
		PlatformFee: fee,
		Currency:    l.Currency,
	}, nil
}

// idempotencyKey is stable for one buyer, listing and purchase within a
// window, so a double submit yields the same session while a different share
// count opens a new one.
func (s *Service) idempotencyKey(listingID, buyerID uuid.UUID, shares int, amount decimal.Decimal) string {
	window := s.Settings.IdempotencyWindow
	if window <= 0 {
		window = 5 * time.Minute
	}
	if window < time.Second {
		window = time.Second
	}
	bucket := s.now().Unix() / int64(window/time.Second)
	return fmt.Sprintf("checkout_%s_%s_%d_%d_%d", listingID, buyerID, shares, amount.Shift(2).IntPart(), bucket)
}

func (s *Service) user(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	if err := s.DB.WithContext(ctx).Where("id = ?", id).Take(&u).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}
