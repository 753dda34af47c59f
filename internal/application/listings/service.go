package listings

import (
	"context"
	"time"

	"sharehouse-backend/internal/application/ledger"
	"sharehouse-backend/internal/domain"
	"sharehouse-backend/internal/infrastructure/database"
	"sharehouse-backend/internal/pkg/apperrors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service struct {
	DB              *gorm.DB
	LockTimeout     time.Duration
	DefaultCurrency string
}

type ListInput struct {
	HouseID  uuid.UUID
	SellerID uuid.UUID
	Price    decimal.Decimal
	Currency string
	Shares   int
}

// List publishes the seller's shares, replacing the terms of an existing
// active listing on the same house.
func (s *Service) List(ctx context.Context, in ListInput) (*domain.Listing, error) {
	if !in.Price.IsPositive() {
		return nil, apperrors.ErrBadPrice
	}
	if in.Shares < 1 {
		return nil, apperrors.ErrBadShares
	}
	if in.Currency == "" {
		in.Currency = s.currency()
	}
	var out *domain.Listing
	err := database.Transaction(ctx, s.DB, s.LockTimeout, func(tx *gorm.DB) error {
		if _, err := ledger.LockHouse(tx, in.HouseID); err != nil {
			return err
		}
		existing, err := LockActive(tx, in.HouseID, in.SellerID)
		if err != nil {
			return err
		}
		held, err := lockedHolding(tx, in.HouseID, in.SellerID)
		if err != nil {
			return err
		}
		if held == 0 {
			return apperrors.ErrNotOwner
		}
		if in.Shares > held {
			return apperrors.WithDetails(apperrors.ErrNotEnoughShares, map[string]any{"my_shares": held})
		}
		if existing != nil {
			existing.Price = in.Price
			existing.Currency = in.Currency
			existing.ShareCount = in.Shares
			existing.LeftShares = nil
			if err := tx.Save(existing).Error; err != nil {
				return err
			}
			out = existing
		} else {
			out = &domain.Listing{
				HouseID:    in.HouseID,
				SellerID:   in.SellerID,
				Price:      in.Price,
				Currency:   in.Currency,
				ShareCount: in.Shares,
				Status:     domain.ListingActive,
			}
			if err := tx.Create(out).Error; err != nil {
				return err
			}
		}
		_, err = ledger.RecomputeStatus(tx, in.HouseID)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("listing_id", out.ID.String()).Str("house_id", in.HouseID.String()).
		Str("price", out.Price.String()).Int("shares", out.ShareCount).Msg("listing published")
	return out, nil
}

// Unlist cancels the seller's active listing on the house.
func (s *Service) Unlist(ctx context.Context, houseID, sellerID uuid.UUID) (*domain.Listing, error) {
	var out *domain.Listing
	err := database.Transaction(ctx, s.DB, s.LockTimeout, func(tx *gorm.DB) error {
		if _, err := ledger.LockHouse(tx, houseID); err != nil {
			return err
		}
		l, err := LockActive(tx, houseID, sellerID)
		if err != nil {
			return err
		}
		if l == nil {
			return apperrors.ErrListingNotFound
		}
		now := time.Now().UTC()
		l.Status = domain.ListingCancelled
		l.ValidTo = &now
		if err := tx.Save(l).Error; err != nil {
			return err
		}
		out = l
		_, err = ledger.RecomputeStatus(tx, houseID)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("listing_id", out.ID.String()).Msg("listing cancelled")
	return out, nil
}

// Terms is a (price, shares) pair agreed in negotiation.
type Terms struct {
	Price  decimal.Decimal
	Shares int
}

// SyncInput asks SyncFromAgreement to make the seller's public listing match
// agreed terms. Guard refuses to silently change an existing listing unless
// Confirm is set.
type SyncInput struct {
	HouseID  uuid.UUID
	SellerID uuid.UUID
	Terms    Terms
	Currency string
	Guard    bool
	Confirm  bool
}

// SyncFromAgreement creates or updates the seller's active listing. The
// caller holds the house lock.
func (s *Service) SyncFromAgreement(tx *gorm.DB, in SyncInput) (*domain.Listing, error) {
	existing, err := LockActive(tx, in.HouseID, in.SellerID)
	if err != nil {
		return nil, err
	}
	held, err := lockedHolding(tx, in.HouseID, in.SellerID)
	if err != nil {
		return nil, err
	}
	if held == 0 {
		return nil, apperrors.ErrNotOwner
	}
	if in.Terms.Shares > held {
		return nil, apperrors.WithDetails(apperrors.ErrNotEnoughShares, map[string]any{"my_shares": held})
	}

	if existing != nil {
		same := existing.Price.Equal(in.Terms.Price) && existing.Remaining() == in.Terms.Shares
		if same {
			return existing, nil
		}
		if in.Guard && !in.Confirm {
			return nil, apperrors.WithDetails(apperrors.ErrPublicListingWillChange, map[string]any{
				"listing_id":       existing.ID,
				"current_price":    existing.Price,
				"current_shares":   existing.Remaining(),
				"requested_price":  in.Terms.Price,
				"requested_shares": in.Terms.Shares,
			})
		}
		existing.Price = in.Terms.Price
		existing.ShareCount = in.Terms.Shares
		existing.LeftShares = nil
		if err := tx.Save(existing).Error; err != nil {
			return nil, err
		}
		return existing, nil
	}

	currency := in.Currency
	if currency == "" {
		currency = s.currency()
	}
	l := &domain.Listing{
		HouseID:    in.HouseID,
		SellerID:   in.SellerID,
		Price:      in.Terms.Price,
		Currency:   currency,
		ShareCount: in.Terms.Shares,
		Status:     domain.ListingActive,
	}
	if err := tx.Create(l).Error; err != nil {
		return nil, err
	}
	if _, err := ledger.RecomputeStatus(tx, in.HouseID); err != nil {
		return nil, err
	}
	return l, nil
}

// LockActive locks the seller's active listing on the house, nil when none.
func LockActive(tx *gorm.DB, houseID, sellerID uuid.UUID) (*domain.Listing, error) {
	var l domain.Listing
	err := database.ForUpdate(tx).
		Where("house_id = ? AND seller_id = ? AND status = ?", houseID, sellerID, domain.ListingActive).
		Order("valid_from DESC").Take(&l).Error
	if database.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// LockByID locks a listing row, LISTING_NOT_FOUND when absent.
func LockByID(tx *gorm.DB, id uuid.UUID) (*domain.Listing, error) {
	var l domain.Listing
	if err := database.ForUpdate(tx).Where("id = ?", id).Take(&l).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperrors.ErrListingNotFound
		}
		return nil, err
	}
	return &l, nil
}

func lockedHolding(tx *gorm.DB, houseID, userID uuid.UUID) (int, error) {
	rows, err := ledger.LockOwnerships(tx, houseID, userID)
	if err != nil {
		return 0, err
	}
	if rec := rows[userID]; rec != nil {
		return rec.Shares, nil
	}
	return 0, nil
}

func (s *Service) currency() string {
	if s.DefaultCurrency == "" {
		return "PLN"
	}
	return s.DefaultCurrency
}
