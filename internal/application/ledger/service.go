package ledger

import (
	"context"
	"time"

	"sharehouse-backend/internal/domain"
	"sharehouse-backend/internal/infrastructure/database"
	"sharehouse-backend/internal/pkg/apperrors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service struct {
	DB          *gorm.DB
	LockTimeout time.Duration
}

// ClaimUnowned gives userID every share of a house nobody owns.
func (s *Service) ClaimUnowned(ctx context.Context, houseID, userID uuid.UUID) (*domain.OwnershipRecord, error) {
	var rec domain.OwnershipRecord
	err := database.Transaction(ctx, s.DB, s.LockTimeout, func(tx *gorm.DB) error {
		house, err := LockHouse(tx, houseID)
		if err != nil {
			return err
		}
		var user domain.User
		if err := tx.Select("id").Where("id = ?", userID).Take(&user).Error; err != nil {
			if database.IsNotFound(err) {
				return apperrors.ErrUserNotFound
			}
			return err
		}
		var owners int64
		if err := tx.Model(&domain.OwnershipRecord{}).Where("house_id = ?", houseID).Count(&owners).Error; err != nil {
			return err
		}
		if owners > 0 {
			return apperrors.ErrAlreadyOccupied
		}
		rec = domain.OwnershipRecord{
			HouseID:   houseID,
			UserID:    userID,
			Shares:    house.TotalShares,
			BoughtFor: decimal.Zero,
		}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		_, err = RecomputeStatus(tx, houseID)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("house_id", houseID.String()).Str("user_id", userID.String()).Int("shares", rec.Shares).Msg("house claimed")
	return &rec, nil
}

// Transfer is the standalone form of TransferShares: it takes the house lock
// itself and refreshes the status afterwards.
func (s *Service) Transfer(ctx context.Context, t Transfer) error {
	return database.Transaction(ctx, s.DB, s.LockTimeout, func(tx *gorm.DB) error {
		if _, err := LockHouse(tx, t.HouseID); err != nil {
			return err
		}
		if err := TransferShares(tx, t); err != nil {
			return err
		}
		_, err := RecomputeStatus(tx, t.HouseID)
		return err
	})
}

// Owners returns the ownership rows of a house, largest holder first.
func (s *Service) Owners(ctx context.Context, houseID uuid.UUID) ([]domain.OwnershipRecord, error) {
	var recs []domain.OwnershipRecord
	err := s.DB.WithContext(ctx).Where("house_id = ?", houseID).Order("shares DESC, user_id").Find(&recs).Error
	return recs, err
}

// OwnerShare is one holder in the house detail view.
type OwnerShare struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Shares   int       `json:"shares"`
	Percent  float64   `json:"percent"`
}

// HouseListing is an active listing as shown on the house page.
type HouseListing struct {
	ID       uuid.UUID       `json:"id"`
	SellerID uuid.UUID       `json:"seller_id"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Shares   int             `json:"shares"`
}

type HouseDetail struct {
	ID                uuid.UUID      `json:"id"`
	IDFme             string         `json:"id_fme"`
	Name              string         `json:"name"`
	Status            string         `json:"status"`
	TotalShares       int            `json:"total_shares"`
	Owners            []OwnerShare   `json:"owners"`
	MainOwnerID       *uuid.UUID     `json:"main_owner_id"`
	MainOwnerUsername string         `json:"main_owner_username,omitempty"`
	Listings          []HouseListing `json:"listings"`
}

// Detail returns a house with its holders, largest first, and its active
// listings, cheapest first.
func (s *Service) Detail(ctx context.Context, houseID uuid.UUID) (*HouseDetail, error) {
	db := s.DB.WithContext(ctx)
	var h domain.House
	if err := db.Where("id = ?", houseID).Take(&h).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperrors.ErrHouseNotFound
		}
		return nil, err
	}
	recs, err := s.Owners(ctx, houseID)
	if err != nil {
		return nil, err
	}

	userIDs := make([]uuid.UUID, 0, len(recs))
	for _, rec := range recs {
		userIDs = append(userIDs, rec.UserID)
	}
	names := make(map[uuid.UUID]string, len(recs))
	if len(userIDs) > 0 {
		var users []domain.User
		if err := db.Select("id", "username").Where("id IN ?", userIDs).Find(&users).Error; err != nil {
			return nil, err
		}
		for _, u := range users {
			names[u.ID] = u.Username
		}
	}

	out := &HouseDetail{
		ID:          h.ID,
		IDFme:       h.IDFme,
		Name:        h.Name,
		Status:      h.Status,
		TotalShares: h.TotalShares,
		Owners:      make([]OwnerShare, 0, len(recs)),
		Listings:    []HouseListing{},
	}
	for _, rec := range recs {
		out.Owners = append(out.Owners, OwnerShare{
			UserID:   rec.UserID,
			Username: names[rec.UserID],
			Shares:   rec.Shares,
			Percent:  Percent(rec.Shares, h.TotalShares),
		})
	}
	if len(out.Owners) > 0 {
		main := out.Owners[0]
		out.MainOwnerID = &main.UserID
		out.MainOwnerUsername = main.Username
	}

	var active []domain.Listing
	if err := db.Where("house_id = ? AND status = ?", houseID, domain.ListingActive).
		Order("price ASC, valid_from ASC").Find(&active).Error; err != nil {
		return nil, err
	}
	for _, l := range active {
		out.Listings = append(out.Listings, HouseListing{
			ID:       l.ID,
			SellerID: l.SellerID,
			Price:    l.Price,
			Currency: l.Currency,
			Shares:   l.Remaining(),
		})
	}
	return out, nil
}

// ListingSummary is the caller's own active listing on a house.
type ListingSummary struct {
	ID       uuid.UUID       `json:"id"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Shares   int             `json:"shares"`
}

// ProposalSummary is the open split proposal with its current tally.
type ProposalSummary struct {
	ID                   uuid.UUID `json:"id"`
	Status               string    `json:"status"`
	InitiatorID          uuid.UUID `json:"initiator_id"`
	RequestedTotalShares int       `json:"requested_total_shares"`
	YesPercent           float64   `json:"yes_percent"`
	NoPercent            float64   `json:"no_percent"`
	MyVote               *string   `json:"my_vote"`
}

// OwnedHouse is one row of the "my houses" view.
type OwnedHouse struct {
	ID                  uuid.UUID        `json:"id"`
	IDFme               string           `json:"id_fme"`
	Name                string           `json:"name"`
	Status              string           `json:"status"`
	TotalShares         int              `json:"total_shares"`
	MyShares            int              `json:"my_shares"`
	CanSplitDirect      bool             `json:"can_split_direct"`
	MaxAvailTotalShares int              `json:"max_avail_total_shares"`
	Listing             *ListingSummary  `json:"listing"`
	SplitProposal       *ProposalSummary `json:"split_proposal"`
}

// OwnedHouses lists every house the user holds shares in.
func (s *Service) OwnedHouses(ctx context.Context, userID uuid.UUID) ([]OwnedHouse, error) {
	db := s.DB.WithContext(ctx)
	var recs []domain.OwnershipRecord
	if err := db.Where("user_id = ?", userID).Order("created_at").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]OwnedHouse, 0, len(recs))
	for _, rec := range recs {
		var h domain.House
		if err := db.Where("id = ?", rec.HouseID).Take(&h).Error; err != nil {
			return nil, err
		}
		row := OwnedHouse{
			ID:                  h.ID,
			IDFme:               h.IDFme,
			Name:                h.Name,
			Status:              h.Status,
			TotalShares:         h.TotalShares,
			MyShares:            rec.Shares,
			CanSplitDirect:      rec.Shares*2 > h.TotalShares,
			MaxAvailTotalShares: h.SplitCeiling(),
		}

		var lst domain.Listing
		err := db.Where("house_id = ? AND seller_id = ? AND status = ?", h.ID, userID, domain.ListingActive).
			Order("valid_from DESC").Take(&lst).Error
		if err == nil {
			row.Listing = &ListingSummary{ID: lst.ID, Price: lst.Price, Currency: lst.Currency, Shares: lst.Remaining()}
		} else if !database.IsNotFound(err) {
			return nil, err
		}

		var p domain.SplitProposal
		err = db.Where("house_id = ? AND status = ?", h.ID, domain.ProposalOpen).Order("created_at DESC").Take(&p).Error
		if err == nil {
			summary, err := s.proposalSummary(db, &h, &p, userID)
			if err != nil {
				return nil, err
			}
			row.SplitProposal = summary
		} else if !database.IsNotFound(err) {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *Service) proposalSummary(db *gorm.DB, h *domain.House, p *domain.SplitProposal, userID uuid.UUID) (*ProposalSummary, error) {
	yes, no, err := VoteShares(db, h.ID, p.ID)
	if err != nil {
		return nil, err
	}
	sum := &ProposalSummary{
		ID:                   p.ID,
		Status:               p.Status,
		InitiatorID:          p.InitiatorID,
		RequestedTotalShares: p.RequestedTotalShares,
		YesPercent:           Percent(yes, h.TotalShares),
		NoPercent:            Percent(no, h.TotalShares),
	}
	var mine domain.SplitVote
	err = db.Where("proposal_id = ? AND user_id = ?", p.ID, userID).Take(&mine).Error
	if err == nil {
		v := "no"
		if mine.Vote {
			v = "yes"
		}
		sum.MyVote = &v
	} else if !database.IsNotFound(err) {
		return nil, err
	}
	return sum, nil
}

// Percent is part/total*100 rounded to two places.
func Percent(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	f, _ := decimal.NewFromInt(int64(part)).Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).Round(2).Float64()
	return f
}
