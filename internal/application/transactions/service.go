// Package transactions reports a user's card payments for listings.
package transactions

import (
	"context"
	"time"

	"sharehouse-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service struct {
	DB *gorm.DB
}

// Entry is one payment as seen by the caller.
type Entry struct {
	ID           uuid.UUID       `json:"id"`
	Role         string          `json:"role"`
	Status       string          `json:"status"`
	Shares       int             `json:"shares"`
	Amount       decimal.Decimal `json:"amount"`
	PlatformFee  decimal.Decimal `json:"platform_fee"`
	Currency     string          `json:"currency"`
	HouseID      *uuid.UUID      `json:"house_id"`
	HouseName    *string         `json:"house_name"`
	Counterparty *string         `json:"counterparty"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at"`
}

// History lists the payments where userID is buyer or seller, newest first.
// An empty status returns every status.
func (s *Service) History(ctx context.Context, userID uuid.UUID, status string) ([]Entry, error) {
	db := s.DB.WithContext(ctx)
	q := db.Where("buyer_id = ? OR seller_id = ?", userID, userID)
	if status != "" {
		q = db.Where("(buyer_id = ? OR seller_id = ?) AND status = ?", userID, userID, status)
	}
	var txs []domain.Transaction
	if err := q.Order("created_at DESC").Find(&txs).Error; err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return []Entry{}, nil
	}

	houseIDs := map[uuid.UUID]bool{}
	userIDs := map[uuid.UUID]bool{}
	for _, t := range txs {
		if t.HouseID != nil {
			houseIDs[*t.HouseID] = true
		}
		if t.BuyerID != nil {
			userIDs[*t.BuyerID] = true
		}
		if t.SellerID != nil {
			userIDs[*t.SellerID] = true
		}
	}

	houseNames := map[uuid.UUID]string{}
	if len(houseIDs) > 0 {
		var houses []domain.House
		if err := db.Select("id", "name").Where("id IN ?", keys(houseIDs)).Find(&houses).Error; err != nil {
			return nil, err
		}
		for _, h := range houses {
			houseNames[h.ID] = h.Name
		}
	}
	usernames := map[uuid.UUID]string{}
	if len(userIDs) > 0 {
		var users []domain.User
		if err := db.Select("id", "username").Where("id IN ?", keys(userIDs)).Find(&users).Error; err != nil {
			return nil, err
		}
		for _, u := range users {
			usernames[u.ID] = u.Username
		}
	}

	out := make([]Entry, len(txs))
	for i, t := range txs {
		e := Entry{
			ID:          t.ID,
			Role:        "buyer",
			Status:      t.Status,
			Shares:      t.Shares,
			Amount:      t.Amount,
			PlatformFee: t.PlatformFee,
			Currency:    t.Currency,
			HouseID:     t.HouseID,
			CreatedAt:   t.CreatedAt,
			CompletedAt: t.CompletedAt,
		}
		other := t.SellerID
		if t.SellerID != nil && *t.SellerID == userID {
			e.Role = "seller"
			other = t.BuyerID
		}
		if t.HouseID != nil {
			if name, ok := houseNames[*t.HouseID]; ok {
				e.HouseName = &name
			}
		}
		if other != nil {
			if name, ok := usernames[*other]; ok {
				e.Counterparty = &name
			}
		}
		out[i] = e
	}
	return out, nil
}

func keys(m map[uuid.UUID]bool) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	return out
}
