// Package negotiation runs the private buyer/seller conversation about a
// house: offers from the buyer, acceptance by the seller, and finalization
// into a public listing the buyer can settle against.
package negotiation

import (
	"context"
	"fmt"
	"time"

	"sharehouse-backend/internal/application/ledger"
	"sharehouse-backend/internal/application/listings"
	"sharehouse-backend/internal/domain"
	"sharehouse-backend/internal/infrastructure/database"
	"sharehouse-backend/internal/pkg/apperrors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	DB          *gorm.DB
	LockTimeout time.Duration
	Listings    *listings.Service
}

// Open returns the conversation between buyerID and the seller of a house,
// creating it on first contact. With no sellerID the main owner is used.
func (s *Service) Open(ctx context.Context, houseID, buyerID uuid.UUID, sellerID *uuid.UUID) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := database.Transaction(ctx, s.DB, s.LockTimeout, func(tx *gorm.DB) error {
		var house domain.House
		if err := tx.Where("id = ?", houseID).Take(&house).Error; err != nil {
			if database.IsNotFound(err) {
				return apperrors.ErrHouseNotFound
			}
			return err
		}
		seller, err := resolveSeller(tx, houseID, sellerID)
		if err != nil {
			return err
		}
		if seller == buyerID {
			return apperrors.ErrCannotMessageSelf
		}
		fresh := domain.Conversation{ID: uuid.New(), HouseID: houseID, BuyerID: buyerID, SellerID: &seller, Status: domain.ConversationActive}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh).Error; err != nil {
			return err
		}
		return tx.Where("house_id = ? AND buyer_id = ? AND seller_id = ?", houseID, buyerID, seller).Take(&conv).Error
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// resolveSeller returns sellerID when it holds shares, otherwise the owner
// with the largest holding.
func resolveSeller(tx *gorm.DB, houseID uuid.UUID, sellerID *uuid.UUID) (uuid.UUID, error) {
	q := tx.Where("house_id = ? AND shares > 0", houseID)
	if sellerID != nil {
		q = q.Where("user_id = ?", *sellerID)
	}
	var rec domain.OwnershipRecord
	if err := q.Order("shares DESC, created_at ASC").Take(&rec).Error; err != nil {
		if database.IsNotFound(err) {
			return uuid.Nil, apperrors.ErrNoSeller
		}
		return uuid.Nil, err
	}
	return rec.UserID, nil
}

// Send appends a chat line from a participant.
func (s *Service) Send(ctx context.Context, convID, userID uuid.UUID, body string) (*domain.ConversationMessage, error) {
	if body == "" {
		return nil, apperrors.WithMessage(apperrors.ErrBadRequest, "Message body is required")
	}
	var msg domain.ConversationMessage
	err := database.Transaction(ctx, s.DB, s.LockTimeout, func(tx *gorm.DB) error {
		conv, err := lockConversation(tx, convID)
		if err != nil {
			return err
		}
		if !conv.IsParticipant(userID) {
			return apperrors.ErrNotParticipant
		}
		if conv.Status == domain.ConversationStopped {
			return apperrors.ErrConversationStopped
		}
		msg = domain.ConversationMessage{ConversationID: conv.ID, SenderID: &userID, Body: body}
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		return touch(tx, conv)
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// Offer records a buyer proposal. When the house has more than one share the
// buyer must say how many shares the price is for.
func (s *Service) Offer(ctx context.Context, convID, userID uuid.UUID, price decimal.Decimal, shares *int) (*domain.Offer, error) {
	if !price.IsPositive() {
		return nil, apperrors.ErrBadPrice
	}
	var offer domain.Offer
	err := database.Transaction(ctx, s.DB, s.LockTimeout, func(tx *gorm.DB) error {
		conv, err := lockConversation(tx, convID)
		if err != nil {
			return err
		}
		if conv.BuyerID != userID {
			return apperrors.ErrNotBuyer
		}
		if err := ensureOpen(conv); err != nil {
			return err
		}
		var house domain.House
		if err := tx.Where("id = ?", conv.HouseID).Take(&house).Error; err != nil {
			return err
		}
		n := 1
		if house.TotalShares > 1 {
			if shares == nil {
				return apperrors.ErrMissingShares
			}
			n = *shares
			if n < 1 || n > house.TotalShares {
				return apperrors.WithDetails(apperrors.ErrBadShares, map[string]any{"total_shares": house.TotalShares})
			}
		}
		offer = domain.Offer{ConversationID: conv.ID, UserID: userID, Price: price, Shares: &n, Type: domain.OfferTypeOffer}
		if err := tx.Create(&offer).Error; err != nil {
			return err
		}
		if conv.Status == domain.ConversationAgreed {
			conv.Status = domain.ConversationActive
			if err := tx.Model(conv).Update("status", conv.Status).Error; err != nil {
				return err
			}
		}
		return touch(tx, conv)
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("conversation_id", convID.String()).Str("price", price.String()).Int("shares", *offer.Shares).Msg("offer placed")
	return &offer, nil
}

// Counter is kept for API compatibility. Sellers respond by accepting or
// finalizing.
func (s *Service) Counter(ctx context.Context, convID, userID uuid.UUID, price decimal.Decimal, shares *int) (*domain.Offer, error) {
	return nil, apperrors.ErrCounterDisabled
}

// Agreement is the outcome of Accept and Finalize.
type Agreement struct {
	Conversation domain.Conversation `json:"conversation"`
	Offer        *domain.Offer       `json:"offer,omitempty"`
	Listing      *domain.Listing     `json:"listing"`
	ListingID    uuid.UUID           `json:"listing_id"`
}

// Accept marks the buyer's latest open offer accepted and publishes matching
// listing terms.
func (s *Service) Accept(ctx context.Context, convID, userID uuid.UUID) (*Agreement, error) {
	var out Agreement
	err := s.withHouseLocked(ctx, convID, func(tx *gorm.DB, conv *domain.Conversation) error {
		if !conv.IsSeller(userID) {
			return apperrors.ErrNotSeller
		}
		if err := ensureOpen(conv); err != nil {
			return err
		}
		offer, err := latestBuyerOffer(tx, conv, false)
		if err != nil {
			return err
		}
		if offer == nil {
			return apperrors.ErrNoOffer
		}
		l, err := s.agree(tx, conv, offer, false, false)
		if err != nil {
			return err
		}
		out = Agreement{Conversation: *conv, Offer: offer, Listing: l, ListingID: l.ID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("conversation_id", convID.String()).Str("listing_id", out.ListingID.String()).Msg("offer accepted")
	return &out, nil
}

// Finalize turns the negotiated terms into the public listing. For the seller
// it re-accepts the buyer's latest offer and refuses to silently change an
// existing listing unless confirm is set. For the buyer the accepted offer
// governs; otherwise the seller's latest priced signal is accepted. Either
// way the conversation ends up agreed.
func (s *Service) Finalize(ctx context.Context, convID, userID uuid.UUID, confirm bool) (*Agreement, error) {
	var out Agreement
	err := s.withHouseLocked(ctx, convID, func(tx *gorm.DB, conv *domain.Conversation) error {
		if !conv.IsParticipant(userID) {
			return apperrors.ErrNotParticipant
		}
		if err := ensureOpen(conv); err != nil {
			return err
		}
		if conv.IsSeller(userID) {
			offer, err := latestBuyerOffer(tx, conv, true)
			if err != nil {
				return err
			}
			if offer == nil {
				return apperrors.ErrNoOffer
			}
			l, err := s.agree(tx, conv, offer, true, confirm)
			if err != nil {
				return err
			}
			out = Agreement{Conversation: *conv, Offer: offer, Listing: l, ListingID: l.ID}
			return nil
		}

		terms, offer, err := s.buyerTerms(tx, conv)
		if err != nil {
			return err
		}
		if offer != nil && !offer.Accepted {
			// The seller's priced signal becomes the accepted terms.
			l, err := s.agree(tx, conv, offer, false, false)
			if err != nil {
				return err
			}
			out = Agreement{Conversation: *conv, Offer: offer, Listing: l, ListingID: l.ID}
			return nil
		}
		l, err := s.Listings.SyncFromAgreement(tx, listings.SyncInput{
			HouseID:  conv.HouseID,
			SellerID: *conv.SellerID,
			Terms:    terms,
		})
		if err != nil {
			return err
		}
		if err := markAgreed(tx, conv); err != nil {
			return err
		}
		out = Agreement{Conversation: *conv, Offer: offer, Listing: l, ListingID: l.ID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("conversation_id", convID.String()).Str("listing_id", out.ListingID.String()).
		Str("user_id", userID.String()).Msg("conversation finalized")
	return &out, nil
}

// agree accepts offer, syncs the seller's listing to it and marks the
// conversation agreed.
func (s *Service) agree(tx *gorm.DB, conv *domain.Conversation, offer *domain.Offer, guard, confirm bool) (*domain.Listing, error) {
	terms := listings.Terms{Price: offer.Price, Shares: offerShares(offer)}
	l, err := s.Listings.SyncFromAgreement(tx, listings.SyncInput{
		HouseID:  conv.HouseID,
		SellerID: *conv.SellerID,
		Terms:    terms,
		Guard:    guard,
		Confirm:  confirm,
	})
	if err != nil {
		return nil, err
	}
	if !offer.Accepted {
		offer.Accepted = true
		if err := tx.Model(&domain.Offer{}).Where("id = ?", offer.ID).Update("accepted", true).Error; err != nil {
			return nil, err
		}
	}
	if err := markAgreed(tx, conv); err != nil {
		return nil, err
	}
	body := fmt.Sprintf("Offer accepted: %s %s for %d share(s).", offer.Price.StringFixed(2), l.Currency, terms.Shares)
	if err := SystemMessage(tx, conv.ID, body); err != nil {
		return nil, err
	}
	return l, touch(tx, conv)
}

func markAgreed(tx *gorm.DB, conv *domain.Conversation) error {
	if conv.Status == domain.ConversationAgreed {
		return nil
	}
	conv.Status = domain.ConversationAgreed
	return tx.Model(conv).Update("status", conv.Status).Error
}

// buyerTerms picks the pair a buyer finalizes against: the accepted offer,
// else the seller's latest offer row, else the seller's active listing.
func (s *Service) buyerTerms(tx *gorm.DB, conv *domain.Conversation) (listings.Terms, *domain.Offer, error) {
	var accepted domain.Offer
	err := tx.Where("conversation_id = ? AND accepted = ?", conv.ID, true).Order("created_at DESC").Take(&accepted).Error
	if err == nil {
		return listings.Terms{Price: accepted.Price, Shares: offerShares(&accepted)}, &accepted, nil
	}
	if !database.IsNotFound(err) {
		return listings.Terms{}, nil, err
	}

	var signal domain.Offer
	err = tx.Where("conversation_id = ? AND user_id = ?", conv.ID, *conv.SellerID).Order("created_at DESC").Take(&signal).Error
	if err == nil {
		return listings.Terms{Price: signal.Price, Shares: offerShares(&signal)}, &signal, nil
	}
	if !database.IsNotFound(err) {
		return listings.Terms{}, nil, err
	}

	l, err := listings.LockActive(tx, conv.HouseID, *conv.SellerID)
	if err != nil {
		return listings.Terms{}, nil, err
	}
	if l == nil {
		return listings.Terms{}, nil, apperrors.ErrNoOffer
	}
	return listings.Terms{Price: l.Price, Shares: l.Remaining()}, nil, nil
}

// Stop ends the negotiation for both sides. Stopping twice is a no-op.
func (s *Service) Stop(ctx context.Context, convID, userID uuid.UUID) (*domain.Conversation, error) {
	return s.setStopped(ctx, convID, userID, true)
}

// Resume reopens a stopped conversation. Other states are returned as is.
func (s *Service) Resume(ctx context.Context, convID, userID uuid.UUID) (*domain.Conversation, error) {
	return s.setStopped(ctx, convID, userID, false)
}

func (s *Service) setStopped(ctx context.Context, convID, userID uuid.UUID, stop bool) (*domain.Conversation, error) {
	var out domain.Conversation
	err := database.Transaction(ctx, s.DB, s.LockTimeout, func(tx *gorm.DB) error {
		conv, err := lockConversation(tx, convID)
		if err != nil {
			return err
		}
		if !conv.IsParticipant(userID) {
			return apperrors.ErrNotParticipant
		}
		out = *conv
		var next, body string
		switch {
		case stop && conv.Status == domain.ConversationSold:
			return apperrors.ErrConversationSold
		case stop && conv.Status != domain.ConversationStopped:
			next, body = domain.ConversationStopped, "Conversation stopped."
		case !stop && conv.Status == domain.ConversationStopped:
			next, body = domain.ConversationActive, "Conversation resumed."
		default:
			return nil
		}
		out.Status = next
		if err := tx.Model(conv).Update("status", next).Error; err != nil {
			return err
		}
		return SystemMessage(tx, conv.ID, body)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// withHouseLocked loads the conversation, locks its house and then the
// conversation row, keeping the house-first lock order of settlement.
func (s *Service) withHouseLocked(ctx context.Context, convID uuid.UUID, fn func(tx *gorm.DB, conv *domain.Conversation) error) error {
	return database.Transaction(ctx, s.DB, s.LockTimeout, func(tx *gorm.DB) error {
		var peek domain.Conversation
		if err := tx.Where("id = ?", convID).Take(&peek).Error; err != nil {
			if database.IsNotFound(err) {
				return apperrors.ErrConversationNotFound
			}
			return err
		}
		if _, err := ledger.LockHouse(tx, peek.HouseID); err != nil {
			return err
		}
		conv, err := lockConversation(tx, convID)
		if err != nil {
			return err
		}
		if conv.SellerID == nil {
			return apperrors.ErrNoSeller
		}
		return fn(tx, conv)
	})
}

func lockConversation(tx *gorm.DB, id uuid.UUID) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := database.ForUpdate(tx).Where("id = ?", id).Take(&conv).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperrors.ErrConversationNotFound
		}
		return nil, err
	}
	return &conv, nil
}

func ensureOpen(conv *domain.Conversation) error {
	switch conv.Status {
	case domain.ConversationStopped:
		return apperrors.ErrConversationStopped
	case domain.ConversationSold:
		return apperrors.ErrConversationSold
	}
	return nil
}

// latestBuyerOffer returns the buyer's newest offer. With includeAccepted
// false an already accepted newest offer counts as none.
func latestBuyerOffer(tx *gorm.DB, conv *domain.Conversation, includeAccepted bool) (*domain.Offer, error) {
	var o domain.Offer
	err := tx.Where("conversation_id = ? AND user_id = ? AND type = ?", conv.ID, conv.BuyerID, domain.OfferTypeOffer).
		Order("created_at DESC").Take(&o).Error
	if database.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if o.Accepted && !includeAccepted {
		return nil, nil
	}
	return &o, nil
}

func offerShares(o *domain.Offer) int {
	if o.Shares == nil || *o.Shares < 1 {
		return 1
	}
	return *o.Shares
}

// SystemMessage appends a line without a sender to the conversation.
func SystemMessage(tx *gorm.DB, convID uuid.UUID, body string) error {
	return tx.Create(&domain.ConversationMessage{ConversationID: convID, Body: body, System: true}).Error
}

func touch(tx *gorm.DB, conv *domain.Conversation) error {
	return tx.Model(&domain.Conversation{}).Where("id = ?", conv.ID).Update("updated_at", time.Now().UTC()).Error
}
