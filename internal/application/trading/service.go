// Package trading settles purchases of listed shares and reports a user's
// trades.
package trading

import (
	"context"
	"time"

	"sharehouse-backend/internal/application/notifications"
	"sharehouse-backend/internal/domain"
	"sharehouse-backend/internal/infrastructure/database"
	"sharehouse-backend/internal/infrastructure/metrics"
	"sharehouse-backend/internal/pkg/apperrors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type Service struct {
	DB          *gorm.DB
	LockTimeout time.Duration
	Notifier    notifications.Notifier
	Metrics     *metrics.Metrics
}

// BuyInput names a listing directly, or a house whose cheapest active listing
// is bought.
type BuyInput struct {
	BuyerID   uuid.UUID
	ListingID *uuid.UUID
	HouseID   *uuid.UUID
}

// Buy settles everything that remains on the chosen listing.
func (s *Service) Buy(ctx context.Context, in BuyInput) (*Settlement, error) {
	start := time.Now()
	listingID, err := s.pick(ctx, in)
	if err != nil {
		s.Metrics.ObserveSettlement(SourceTrade, time.Since(start), apperrors.As(err).Code)
		return nil, err
	}

	var out *Settlement
	err = database.Transaction(ctx, s.DB, s.LockTimeout, func(tx *gorm.DB) error {
		var err error
		out, err = Settle(tx, SettleInput{ListingID: listingID, BuyerID: in.BuyerID, Source: SourceTrade})
		return err
	})
	if err != nil {
		s.Metrics.ObserveSettlement(SourceTrade, time.Since(start), apperrors.As(err).Code)
		log.Warn().Err(err).Str("listing_id", listingID.String()).Str("buyer_id", in.BuyerID.String()).Msg("trade rejected")
		return nil, err
	}
	s.Metrics.ObserveSettlement(SourceTrade, time.Since(start), "")
	log.Info().Str("trade_id", out.Trade.ID.String()).Str("listing_id", listingID.String()).
		Int("shares", out.Trade.Shares).Str("price", out.Trade.Price.String()).Msg("trade settled")
	s.notify(ctx, out)
	return out, nil
}

func (s *Service) notify(ctx context.Context, out *Settlement) {
	if s.Notifier == nil {
		return
	}
	s.Notifier.OnTradeSettled(ctx, out.Event(SourceTrade))
}

// pick resolves the listing to buy. A house purchase takes its cheapest
// active listing that the buyer did not post.
func (s *Service) pick(ctx context.Context, in BuyInput) (uuid.UUID, error) {
	db := s.DB.WithContext(ctx)
	if in.ListingID != nil {
		if in.HouseID == nil {
			return *in.ListingID, nil
		}
		var l domain.Listing
		err := db.Select("id").Where("id = ? AND house_id = ?", *in.ListingID, *in.HouseID).Take(&l).Error
		if database.IsNotFound(err) {
			return uuid.Nil, apperrors.ErrListingNotFound
		}
		return l.ID, err
	}
	if in.HouseID == nil {
		return uuid.Nil, apperrors.WithMessage(apperrors.ErrBadRequest, "listing_id is required")
	}
	var house domain.House
	if err := db.Select("id").Where("id = ?", *in.HouseID).Take(&house).Error; err != nil {
		if database.IsNotFound(err) {
			return uuid.Nil, apperrors.ErrHouseNotFound
		}
		return uuid.Nil, err
	}
	var l domain.Listing
	err := db.Where("house_id = ? AND status = ? AND seller_id <> ?", house.ID, domain.ListingActive, in.BuyerID).
		Order("price ASC, valid_from ASC").Take(&l).Error
	if database.IsNotFound(err) {
		return uuid.Nil, apperrors.ErrListingNotFound
	}
	return l.ID, err
}
