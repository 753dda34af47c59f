// Package splits implements share-split governance: proposals voted by share
// weight, direct splits by a majority owner, and the split-limit requests that
// raise a house's ceiling.
package splits

import (
	"context"
	"time"

	"sharehouse-backend/internal/application/ledger"
	"sharehouse-backend/internal/domain"
	"sharehouse-backend/internal/infrastructure/database"
	"sharehouse-backend/internal/infrastructure/metrics"
	"sharehouse-backend/internal/pkg/apperrors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	DB          *gorm.DB
	LockTimeout time.Duration
	Metrics     *metrics.Metrics
}

// Tally is the share-weighted state of a proposal after a vote.
type Tally struct {
	Proposal    domain.SplitProposal `json:"proposal"`
	YesShares   int                  `json:"yes_shares"`
	NoShares    int                  `json:"no_shares"`
	TotalShares int                  `json:"total_shares"`
	YesPercent  float64              `json:"yes_percent"`
	NoPercent   float64              `json:"no_percent"`
	MyVote      *bool                `json:"my_vote,omitempty"`
}

// ValidateTarget checks that requested rescales current exactly and stays
// within the ceiling.
func ValidateTarget(current, requested, ceiling int) error {
	if requested <= current || current < 1 || requested%current != 0 {
		return apperrors.WithDetails(apperrors.ErrInvalidTotalShares, map[string]any{
			"current_total_shares":   current,
			"requested_total_shares": requested,
		})
	}
	if requested > ceiling {
		return apperrors.WithDetails(apperrors.ErrLimitTooLow, map[string]any{
			"max_avail_total_shares": ceiling,
			"requested_total_shares": requested,
		})
	}
	return nil
}

// Propose opens a split vote. The initiator's YES is recorded in the same
// transaction.
func (s *Service) Propose(ctx context.Context, houseID, userID uuid.UUID, requested int) (*Tally, error) {
	var tally *Tally
	err := database.Transaction(ctx, s.DB, s.LockTimeout, func(tx *gorm.DB) error {
		house, err := ledger.LockHouse(tx, houseID)
		if err != nil {
			return err
		}
		mine, err := ledger.SharesOf(tx, houseID, userID)
		if err != nil {
			return err
		}
		if mine <= 0 {
			return apperrors.ErrNotOwner
		}
		if mine*2 > house.TotalShares {
			return apperrors.WithDetails(apperrors.ErrUseDirectSplit, map[string]any{"my_shares": mine})
		}
		if err := ValidateTarget(house.TotalShares, requested, house.SplitCeiling()); err != nil {
			return err
		}
		var open int64
		if err := tx.Model(&domain.SplitProposal{}).
			Where("house_id = ? AND status = ?", houseID, domain.ProposalOpen).Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return apperrors.ErrProposalAlreadyOpen
		}
		p := domain.SplitProposal{
			HouseID:              houseID,
			InitiatorID:          userID,
			CurrentTotalShares:   house.TotalShares,
			RequestedTotalShares: requested,
			Status:               domain.ProposalOpen,
		}
		if err := tx.Create(&p).Error; err != nil {
			return err
		}
		if err := tx.Create(&domain.SplitVote{ProposalID: p.ID, UserID: userID, Vote: true}).Error; err != nil {
			return err
		}
		tally, err = tallyOf(tx, house, &p)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("house_id", houseID.String()).Str("proposal_id", tally.Proposal.ID.String()).
		Int("requested_total_shares", requested).Msg("split proposed")
	return tally, nil
}

// Vote records or changes userID's vote and resolves the proposal when one
// side holds a strict majority of all shares.
func (s *Service) Vote(ctx context.Context, proposalID, userID uuid.UUID, yes bool) (*Tally, error) {
	var tally *Tally
	err := database.Transaction(ctx, s.DB, s.LockTimeout, func(tx *gorm.DB) error {
		var p domain.SplitProposal
		if err := tx.Where("id = ?", proposalID).Take(&p).Error; err != nil {
			if database.IsNotFound(err) {
				return apperrors.ErrProposalNotFound
			}
			return err
		}
		house, err := ledger.LockHouse(tx, p.HouseID)
		if err != nil {
			return err
		}
		// Re-read under the house lock; a concurrent vote may have closed it.
		if err := tx.Where("id = ?", proposalID).Take(&p).Error; err != nil {
			return err
		}
		if p.Status != domain.ProposalOpen {
			return apperrors.WithDetails(apperrors.ErrProposalNotOpen, map[string]any{"status": p.Status})
		}
		mine, err := ledger.SharesOf(tx, p.HouseID, userID)
		if err != nil {
			return err
		}
		if mine <= 0 {
			return apperrors.ErrNotOwner
		}
		vote := domain.SplitVote{ID: uuid.New(), ProposalID: p.ID, UserID: userID, Vote: yes}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "proposal_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"vote", "updated_at"}),
		}).Create(&vote).Error; err != nil {
			return err
		}

		tally, err = tallyOf(tx, house, &p)
		if err != nil {
			return err
		}
		switch {
		case tally.YesShares*2 > house.TotalShares:
			if err := s.apply(tx, &p); err != nil {
				return err
			}
			tally.Proposal = p
		case tally.NoShares*2 > house.TotalShares:
			if err := tx.Model(&p).Update("status", domain.ProposalCancelled).Error; err != nil {
				return err
			}
			tally.Proposal.Status = domain.ProposalCancelled
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("proposal_id", proposalID.String()).Str("user_id", userID.String()).Bool("yes", yes).
		Str("status", tally.Proposal.Status).Msg("split vote recorded")
	if tally.Proposal.Status == domain.ProposalApplied {
		s.Metrics.IncSplit("vote")
	}
	return tally, nil
}

// Cancel withdraws an open proposal. Only the initiator may cancel.
func (s *Service) Cancel(ctx context.Context, proposalID, userID uuid.UUID) (*domain.SplitProposal, error) {
	var p domain.SplitProposal
	err := database.Transaction(ctx, s.DB, s.LockTimeout, func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", proposalID).Take(&p).Error; err != nil {
			if database.IsNotFound(err) {
				return apperrors.ErrProposalNotFound
			}
			return err
		}
		if _, err := ledger.LockHouse(tx, p.HouseID); err != nil {
			return err
		}
		if err := tx.Where("id = ?", proposalID).Take(&p).Error; err != nil {
			return err
		}
		if p.InitiatorID != userID {
			return apperrors.ErrNotInitiator
		}
		if p.Status != domain.ProposalOpen {
			return apperrors.WithDetails(apperrors.ErrProposalNotOpen, map[string]any{"status": p.Status})
		}
		p.Status = domain.ProposalCancelled
		return tx.Model(&p).Update("status", p.Status).Error
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("proposal_id", proposalID.String()).Msg("split proposal cancelled")
	return &p, nil
}

// DirectResult reports the rescale applied by a majority owner.
type DirectResult struct {
	HouseID    uuid.UUID `json:"house_id"`
	OldTotal   int       `json:"old_total_shares"`
	NewTotal   int       `json:"new_total_shares"`
	Factor     int       `json:"factor"`
	MyShares   int       `json:"my_shares"`
	ProposalID uuid.UUID `json:"proposal_id"`
}

// Direct applies a split immediately for an owner holding more than half of
// the shares. It is recorded as an applied proposal.
func (s *Service) Direct(ctx context.Context, houseID, userID uuid.UUID, requested int) (*DirectResult, error) {
	var res DirectResult
	err := database.Transaction(ctx, s.DB, s.LockTimeout, func(tx *gorm.DB) error {
		house, err := ledger.LockHouse(tx, houseID)
		if err != nil {
			return err
		}
		mine, err := ledger.SharesOf(tx, houseID, userID)
		if err != nil {
			return err
		}
		if mine <= 0 {
			return apperrors.ErrNotOwner
		}
		if mine*2 <= house.TotalShares {
			return apperrors.WithDetails(apperrors.ErrNotMajorityOwner, map[string]any{
				"my_shares":    mine,
				"total_shares": house.TotalShares,
			})
		}
		if err := ValidateTarget(house.TotalShares, requested, house.SplitCeiling()); err != nil {
			return err
		}
		var open int64
		if err := tx.Model(&domain.SplitProposal{}).
			Where("house_id = ? AND status = ?", houseID, domain.ProposalOpen).Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return apperrors.ErrProposalAlreadyOpen
		}
		p := domain.SplitProposal{
			HouseID:              houseID,
			InitiatorID:          userID,
			CurrentTotalShares:   house.TotalShares,
			RequestedTotalShares: requested,
			Status:               domain.ProposalOpen,
		}
		if err := tx.Create(&p).Error; err != nil {
			return err
		}
		if err := s.apply(tx, &p); err != nil {
			return err
		}
		after, err := ledger.SharesOf(tx, houseID, userID)
		if err != nil {
			return err
		}
		res = DirectResult{
			HouseID:    houseID,
			OldTotal:   p.CurrentTotalShares,
			NewTotal:   requested,
			Factor:     requested / p.CurrentTotalShares,
			MyShares:   after,
			ProposalID: p.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("house_id", houseID.String()).Int("old_total_shares", res.OldTotal).
		Int("new_total_shares", res.NewTotal).Msg("direct split applied")
	s.Metrics.IncSplit("direct")
	return &res, nil
}

// apply rescales every holding and active listing of the proposal's house by
// requested/current. It re-locks the house and compares the snapshot so a
// concurrent split surfaces as HOUSE_TOTAL_CHANGED; any error rolls back the
// whole rescale.
func (s *Service) apply(tx *gorm.DB, p *domain.SplitProposal) error {
	house, err := ledger.LockHouse(tx, p.HouseID)
	if err != nil {
		return err
	}
	if house.TotalShares != p.CurrentTotalShares {
		return apperrors.WithDetails(apperrors.ErrHouseTotalChanged, map[string]any{
			"current_total_shares":  house.TotalShares,
			"snapshot_total_shares": p.CurrentTotalShares,
		})
	}
	if err := ValidateTarget(house.TotalShares, p.RequestedTotalShares, house.SplitCeiling()); err != nil {
		return err
	}
	factor := p.RequestedTotalShares / house.TotalShares

	var active []domain.Listing
	if err := database.ForUpdate(tx).
		Where("house_id = ? AND status = ?", house.ID, domain.ListingActive).
		Order("id").Find(&active).Error; err != nil {
		return err
	}
	owners, err := ledger.LockAllOwnerships(tx, house.ID)
	if err != nil {
		return err
	}

	for _, l := range active {
		updates := map[string]interface{}{"share_count": l.ShareCount * factor}
		if l.LeftShares != nil {
			updates["left_shares"] = *l.LeftShares * factor
		}
		if err := tx.Model(&domain.Listing{}).Where("id = ?", l.ID).Updates(updates).Error; err != nil {
			return err
		}
	}
	for _, o := range owners {
		if err := tx.Model(&domain.OwnershipRecord{}).Where("id = ?", o.ID).
			Update("shares", o.Shares*factor).Error; err != nil {
			return err
		}
	}
	if err := tx.Model(&domain.House{}).Where("id = ?", house.ID).
		Update("total_shares", p.RequestedTotalShares).Error; err != nil {
		return err
	}
	now := time.Now().UTC()
	p.Status = domain.ProposalApplied
	p.AppliedAt = &now
	return tx.Model(&domain.SplitProposal{}).Where("id = ?", p.ID).
		Updates(map[string]interface{}{"status": p.Status, "applied_at": now}).Error
}

func tallyOf(tx *gorm.DB, house *domain.House, p *domain.SplitProposal) (*Tally, error) {
	yes, no, err := ledger.VoteShares(tx, house.ID, p.ID)
	if err != nil {
		return nil, err
	}
	return &Tally{
		Proposal:    *p,
		YesShares:   yes,
		NoShares:    no,
		TotalShares: house.TotalShares,
		YesPercent:  ledger.Percent(yes, house.TotalShares),
		NoPercent:   ledger.Percent(no, house.TotalShares),
	}, nil
}

// Proposal returns the open proposal of a house with its tally and the
// caller's vote, nil when none is open.
func (s *Service) Proposal(ctx context.Context, houseID, userID uuid.UUID) (*Tally, error) {
	db := s.DB.WithContext(ctx)
	var house domain.House
	if err := db.Where("id = ?", houseID).Take(&house).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperrors.ErrHouseNotFound
		}
		return nil, err
	}
	var p domain.SplitProposal
	err := db.Where("house_id = ? AND status = ?", houseID, domain.ProposalOpen).Order("created_at DESC").Take(&p).Error
	if database.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tally, err := tallyOf(db, &house, &p)
	if err != nil {
		return nil, err
	}
	var mine domain.SplitVote
	err = db.Where("proposal_id = ? AND user_id = ?", p.ID, userID).Take(&mine).Error
	switch {
	case err == nil:
		v := mine.Vote
		tally.MyVote = &v
	case !database.IsNotFound(err):
		return nil, err
	}
	return tally, nil
}
