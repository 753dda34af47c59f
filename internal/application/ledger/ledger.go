// Package ledger is the authoritative store of who owns how many shares of
// which house. The package-level functions take an open transaction so that
// settlement and splits can compose them under a single commit; callers lock
// in the order house, listing, ownerships.
package ledger

import (
	"bytes"
	"sort"

	"sharehouse-backend/internal/domain"
	"sharehouse-backend/internal/infrastructure/database"
	"sharehouse-backend/internal/pkg/apperrors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Transfer moves Shares of HouseID from From to To. Cost is added to the
// receiver's cost basis.
type Transfer struct {
	HouseID uuid.UUID
	From    uuid.UUID
	To      uuid.UUID
	Shares  int
	Cost    decimal.Decimal
}

// LockHouse takes the row lock on the house. It is always the first lock in a
// transaction.
func LockHouse(tx *gorm.DB, houseID uuid.UUID) (*domain.House, error) {
	var h domain.House
	if err := database.ForUpdate(tx).Where("id = ?", houseID).Take(&h).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperrors.ErrHouseNotFound
		}
		return nil, err
	}
	return &h, nil
}

// SortOwnerIDs orders ids ascending, the lock order for ownership rows.
func SortOwnerIDs(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// LockOwnerships locks the ownership rows of userIDs in ascending owner id
// order. Owners without a row are absent from the result.
func LockOwnerships(tx *gorm.DB, houseID uuid.UUID, userIDs ...uuid.UUID) (map[uuid.UUID]*domain.OwnershipRecord, error) {
	out := make(map[uuid.UUID]*domain.OwnershipRecord, len(userIDs))
	for _, uid := range SortOwnerIDs(userIDs) {
		var rec domain.OwnershipRecord
		err := database.ForUpdate(tx).Where("house_id = ? AND user_id = ?", houseID, uid).Take(&rec).Error
		if database.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[uid] = &rec
	}
	return out, nil
}

// LockAllOwnerships locks every ownership row of the house in owner id order.
func LockAllOwnerships(tx *gorm.DB, houseID uuid.UUID) ([]domain.OwnershipRecord, error) {
	var recs []domain.OwnershipRecord
	err := database.ForUpdate(tx).Where("house_id = ?", houseID).Order("user_id").Find(&recs).Error
	return recs, err
}

// TransferShares debits from and credits to. The debit row is deleted when it
// reaches zero; the credit row is created when absent. Fails with
// INSUFFICIENT_SHARES before any write.
func TransferShares(tx *gorm.DB, t Transfer) error {
	if t.Shares <= 0 || t.From == t.To {
		return apperrors.WithDetails(apperrors.ErrBadShares, map[string]any{"shares": t.Shares})
	}
	rows, err := LockOwnerships(tx, t.HouseID, t.From, t.To)
	if err != nil {
		return err
	}
	from := rows[t.From]
	held := 0
	if from != nil {
		held = from.Shares
	}
	if held < t.Shares {
		return apperrors.WithDetails(apperrors.ErrInsufficientShares, map[string]any{
			"held":      held,
			"requested": t.Shares,
		})
	}

	if from.Shares == t.Shares {
		if err := tx.Delete(&domain.OwnershipRecord{}, "id = ?", from.ID).Error; err != nil {
			return err
		}
	} else {
		left := from.Shares - t.Shares
		basis := from.BoughtFor.Mul(decimal.NewFromInt(int64(left))).Div(decimal.NewFromInt(int64(from.Shares))).Round(2)
		if err := tx.Model(&domain.OwnershipRecord{}).Where("id = ?", from.ID).
			Updates(map[string]interface{}{"shares": left, "bought_for": basis}).Error; err != nil {
			return err
		}
	}

	if to := rows[t.To]; to != nil {
		return tx.Model(&domain.OwnershipRecord{}).Where("id = ?", to.ID).
			Updates(map[string]interface{}{
				"shares":     to.Shares + t.Shares,
				"bought_for": to.BoughtFor.Add(t.Cost),
			}).Error
	}
	return tx.Create(&domain.OwnershipRecord{
		HouseID:   t.HouseID,
		UserID:    t.To,
		Shares:    t.Shares,
		BoughtFor: t.Cost,
	}).Error
}

// SharesOf returns the user's holding, zero when there is no row.
func SharesOf(tx *gorm.DB, houseID, userID uuid.UUID) (int, error) {
	var rec domain.OwnershipRecord
	err := tx.Where("house_id = ? AND user_id = ?", houseID, userID).Take(&rec).Error
	if database.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return rec.Shares, nil
}

// DeriveStatus computes the display status from the owner rows and whether
// any listing is active.
func DeriveStatus(total int, owners []domain.OwnershipRecord, hasActiveListing bool) string {
	switch {
	case hasActiveListing:
		return domain.HouseForSale
	case len(owners) == 0:
		return domain.HouseFree
	case len(owners) == 1 && owners[0].Shares == total:
		return domain.HouseSold
	default:
		return domain.HouseFractional
	}
}

// RecomputeStatus refreshes the cached house status.
func RecomputeStatus(tx *gorm.DB, houseID uuid.UUID) (string, error) {
	var h domain.House
	if err := tx.Where("id = ?", houseID).Take(&h).Error; err != nil {
		return "", err
	}
	var owners []domain.OwnershipRecord
	if err := tx.Where("house_id = ?", houseID).Find(&owners).Error; err != nil {
		return "", err
	}
	var active int64
	if err := tx.Model(&domain.Listing{}).
		Where("house_id = ? AND status = ?", houseID, domain.ListingActive).
		Count(&active).Error; err != nil {
		return "", err
	}
	status := DeriveStatus(h.TotalShares, owners, active > 0)
	if status != h.Status {
		if err := tx.Model(&domain.House{}).Where("id = ?", houseID).Update("status", status).Error; err != nil {
			return "", err
		}
	}
	return status, nil
}

// VoteShares weighs the votes on a proposal by the voters' current holdings.
// Votes from users without shares weigh nothing.
func VoteShares(tx *gorm.DB, houseID, proposalID uuid.UUID) (yes, no int, err error) {
	var votes []domain.SplitVote
	if err = tx.Where("proposal_id = ?", proposalID).Find(&votes).Error; err != nil {
		return 0, 0, err
	}
	var owners []domain.OwnershipRecord
	if err = tx.Where("house_id = ?", houseID).Find(&owners).Error; err != nil {
		return 0, 0, err
	}
	weight := make(map[uuid.UUID]int, len(owners))
	for _, o := range owners {
		weight[o.UserID] = o.Shares
	}
	for _, v := range votes {
		if v.Vote {
			yes += weight[v.UserID]
		} else {
			no += weight[v.UserID]
		}
	}
	return yes, no, nil
}
