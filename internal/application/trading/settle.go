package trading

import (
	"fmt"
	"time"

	"sharehouse-backend/internal/application/ledger"
	"sharehouse-backend/internal/application/listings"
	"sharehouse-backend/internal/application/negotiation"
	"sharehouse-backend/internal/application/notifications"
	"sharehouse-backend/internal/domain"
	"sharehouse-backend/internal/infrastructure/database"
	"sharehouse-backend/internal/pkg/apperrors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	SourceTrade    = "trade"
	SourceCheckout = "checkout"
)

// SettleInput describes one purchase against a listing. Shares zero buys
// whatever remains; Amount zero charges the listing price pro rata.
type SettleInput struct {
	ListingID uuid.UUID
	BuyerID   uuid.UUID
	Shares    int
	Amount    decimal.Decimal
	Source    string
}

type Settlement struct {
	Trade       domain.Trade   `json:"trade"`
	Listing     domain.Listing `json:"listing"`
	HouseStatus string         `json:"house_status"`
}

// Event is the notification payload for a committed settlement.
func (s *Settlement) Event(source string) notifications.TradeSettled {
	return notifications.TradeSettled{
		TradeID:   s.Trade.ID,
		ListingID: s.Trade.ListingID,
		HouseID:   s.Trade.HouseID,
		BuyerID:   s.Trade.BuyerID,
		SellerID:  s.Trade.SellerID,
		Shares:    s.Trade.Shares,
		Price:     s.Trade.Price,
		Currency:  s.Trade.Currency,
		Source:    source,
		SettledAt: s.Trade.CreatedAt,
	}
}

// Settle moves shares from the listing's seller to the buyer inside tx. Locks
// are taken house first, then the listing, then both ownership rows. Every
// check runs before the first write.
func Settle(tx *gorm.DB, in SettleInput) (*Settlement, error) {
	var peek domain.Listing
	if err := tx.Select("id", "house_id").Where("id = ?", in.ListingID).Take(&peek).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperrors.ErrListingNotFound
		}
		return nil, err
	}
	if _, err := ledger.LockHouse(tx, peek.HouseID); err != nil {
		return nil, err
	}
	l, err := listings.LockByID(tx, in.ListingID)
	if err != nil {
		return nil, err
	}
	if l.Status != domain.ListingActive {
		return nil, apperrors.WithDetails(apperrors.ErrAlreadySold, map[string]any{"status": l.Status})
	}
	if l.SellerID == in.BuyerID {
		return nil, apperrors.ErrCannotBuyOwn
	}

	rows, err := ledger.LockOwnerships(tx, l.HouseID, l.SellerID, in.BuyerID)
	if err != nil {
		return nil, err
	}
	held := 0
	if rec := rows[l.SellerID]; rec != nil {
		held = rec.Shares
	}

	remaining := l.Remaining()
	if remaining == 0 && l.LeftShares == nil {
		// Rows written before share_count existed sell the whole holding.
		remaining = held
	}
	whole := in.Shares == 0
	n := in.Shares
	if whole {
		n = remaining
	}
	if n <= 0 || remaining <= 0 {
		return nil, apperrors.ErrNoSharesLeft
	}
	if n > remaining {
		return nil, apperrors.WithDetails(apperrors.ErrNotEnoughShares, map[string]any{"remaining": remaining, "requested": n})
	}
	if held < n {
		return nil, apperrors.WithDetails(apperrors.ErrNotEnoughSellerShares, map[string]any{
			"seller_shares": held,
			"requested":     n,
		})
	}

	cost := in.Amount
	if cost.IsZero() {
		cost = ProRata(l.Price, n, l.ShareCount)
	}

	if err := ledger.TransferShares(tx, ledger.Transfer{
		HouseID: l.HouseID,
		From:    l.SellerID,
		To:      in.BuyerID,
		Shares:  n,
		Cost:    cost,
	}); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	left := remaining - n
	updates := map[string]interface{}{}
	switch {
	case left > 0:
		updates["left_shares"] = left
		l.LeftShares = &left
	case whole && l.LeftShares == nil:
		updates["status"] = domain.ListingClosed
		updates["valid_to"] = now
		l.Status = domain.ListingClosed
		l.ValidTo = &now
	default:
		updates["status"] = domain.ListingSold
		updates["left_shares"] = 0
		updates["valid_to"] = now
		l.Status = domain.ListingSold
		l.LeftShares = &left
		l.ValidTo = &now
	}
	if err := tx.Model(&domain.Listing{}).Where("id = ?", l.ID).Updates(updates).Error; err != nil {
		return nil, err
	}

	trade := domain.Trade{
		ListingID: l.ID,
		HouseID:   l.HouseID,
		BuyerID:   in.BuyerID,
		SellerID:  l.SellerID,
		Shares:    n,
		Price:     cost,
		Currency:  l.Currency,
		Status:    domain.TradeSettled,
		CreatedAt: now,
	}
	if err := tx.Create(&trade).Error; err != nil {
		return nil, err
	}

	if err := closeConversation(tx, l, in.BuyerID, n, cost); err != nil {
		return nil, err
	}
	status, err := ledger.RecomputeStatus(tx, l.HouseID)
	if err != nil {
		return nil, err
	}
	return &Settlement{Trade: trade, Listing: *l, HouseStatus: status}, nil
}

// ProRata is price * shares / shareCount rounded to cents. A listing price
// covers the whole listing.
func ProRata(price decimal.Decimal, shares, shareCount int) decimal.Decimal {
	if shareCount <= 0 || shares == shareCount {
		return price
	}
	return price.Mul(decimal.NewFromInt(int64(shares))).Div(decimal.NewFromInt(int64(shareCount))).Round(2)
}

func closeConversation(tx *gorm.DB, l *domain.Listing, buyerID uuid.UUID, shares int, cost decimal.Decimal) error {
	var conv domain.Conversation
	err := database.ForUpdate(tx).
		Where("house_id = ? AND buyer_id = ? AND seller_id = ?", l.HouseID, buyerID, l.SellerID).
		Take(&conv).Error
	if database.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := tx.Model(&domain.Conversation{}).Where("id = ?", conv.ID).
		Updates(map[string]interface{}{"status": domain.ConversationSold, "updated_at": time.Now().UTC()}).Error; err != nil {
		return err
	}
	body := fmt.Sprintf("Trade settled: %d share(s) for %s %s.", shares, cost.StringFixed(2), l.Currency)
	return negotiation.SystemMessage(tx, conv.ID, body)
}
