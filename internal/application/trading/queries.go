package trading

import (
	"context"
	"sort"
	"time"

	"sharehouse-backend/internal/application/ledger"
	"sharehouse-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const minePageSize = 20

// Row is one line of the caller's trade panel. Active listings appear as
// rows with status listing_active and no counterparty.
type Row struct {
	Date           time.Time       `json:"date"`
	HouseID        uuid.UUID       `json:"house_id"`
	HouseName      string          `json:"house_name"`
	HouseIDFme     string          `json:"house_id_fme"`
	Role           string          `json:"role"`
	Counterparty   *string         `json:"counterparty"`
	Shares         int             `json:"shares"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Percent        float64         `json:"percent"`
	Status         string          `json:"status"`
	ConversationID *uuid.UUID      `json:"conversation_id"`
}

// Mine lists the caller's trades. "archived" returns settled trades, anything
// else returns unsettled trades plus the caller's active listings. Pages are
// 1-based.
func (s *Service) Mine(ctx context.Context, userID uuid.UUID, status string, page int) ([]Row, error) {
	db := s.DB.WithContext(ctx)
	if page < 1 {
		page = 1
	}

	var trades []domain.Trade
	q := db.Where("(buyer_id = ? OR seller_id = ?)", userID, userID)
	if status == "archived" {
		q = q.Where("status = ?", domain.TradeSettled)
	} else {
		q = q.Where("status <> ?", domain.TradeSettled)
	}
	if err := q.Order("created_at DESC").Find(&trades).Error; err != nil {
		return nil, err
	}
	var active []domain.Listing
	if status != "archived" {
		if err := db.Where("seller_id = ? AND status = ?", userID, domain.ListingActive).
			Order("valid_from DESC").Find(&active).Error; err != nil {
			return nil, err
		}
	}

	houseIDs := make([]uuid.UUID, 0, len(trades)+len(active))
	userIDs := make([]uuid.UUID, 0, len(trades))
	for _, t := range trades {
		houseIDs = append(houseIDs, t.HouseID)
		userIDs = append(userIDs, t.BuyerID, t.SellerID)
	}
	for _, l := range active {
		houseIDs = append(houseIDs, l.HouseID)
	}
	houses := map[uuid.UUID]domain.House{}
	if len(houseIDs) > 0 {
		var hs []domain.House
		if err := db.Where("id IN ?", houseIDs).Find(&hs).Error; err != nil {
			return nil, err
		}
		for _, h := range hs {
			houses[h.ID] = h
		}
	}
	names := map[uuid.UUID]string{}
	if len(userIDs) > 0 {
		var us []domain.User
		if err := db.Select("id", "username").Where("id IN ?", userIDs).Find(&us).Error; err != nil {
			return nil, err
		}
		for _, u := range us {
			names[u.ID] = u.Username
		}
	}

	rows := make([]Row, 0, len(trades)+len(active))
	for _, t := range trades {
		h, ok := houses[t.HouseID]
		if !ok {
			continue
		}
		row := Row{
			Date: t.CreatedAt, HouseID: h.ID, HouseName: h.Name, HouseIDFme: h.IDFme,
			Shares: t.Shares, Amount: t.Price, Currency: t.Currency,
			Percent: ledger.Percent(t.Shares, h.TotalShares), Status: t.Status,
		}
		other := t.BuyerID
		row.Role = "seller"
		if t.BuyerID == userID {
			row.Role = "buyer"
			other = t.SellerID
		}
		if name, ok := names[other]; ok {
			row.Counterparty = &name
		}
		var conv domain.Conversation
		err := db.Select("id").Where("house_id = ? AND buyer_id = ? AND seller_id = ?", t.HouseID, t.BuyerID, t.SellerID).
			Take(&conv).Error
		if err == nil {
			row.ConversationID = &conv.ID
		}
		rows = append(rows, row)
	}
	for _, l := range active {
		h, ok := houses[l.HouseID]
		if !ok {
			continue
		}
		rows = append(rows, Row{
			Date: l.ValidFrom, HouseID: h.ID, HouseName: h.Name, HouseIDFme: h.IDFme,
			Role: "seller", Shares: l.Remaining(), Amount: l.Price, Currency: l.Currency,
			Percent: ledger.Percent(l.Remaining(), h.TotalShares), Status: "listing_active",
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.After(rows[j].Date) })

	start := (page - 1) * minePageSize
	if start >= len(rows) {
		return []Row{}, nil
	}
	end := start + minePageSize
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end], nil
}
