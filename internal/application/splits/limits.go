package splits

import (
	"context"
	"time"

	"sharehouse-backend/internal/application/ledger"
	"sharehouse-backend/internal/domain"
	"sharehouse-backend/internal/infrastructure/database"
	"sharehouse-backend/internal/pkg/apperrors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// RequestLimit asks for the split ceiling of a house to be raised to
// requestedMax. Privileged requesters are approved on the spot; everyone else
// waits for DecideLimit. A house has at most one pending request.
func (s *Service) RequestLimit(ctx context.Context, houseID, userID uuid.UUID, requestedMax int, privileged bool) (*domain.SplitLimitRequest, error) {
	var req domain.SplitLimitRequest
	err := database.Transaction(ctx, s.DB, s.LockTimeout, func(tx *gorm.DB) error {
		house, err := ledger.LockHouse(tx, houseID)
		if err != nil {
			return err
		}
		if requestedMax <= house.SplitCeiling() {
			return apperrors.WithDetails(apperrors.ErrLimitTooLow, map[string]any{
				"max_avail_total_shares": house.SplitCeiling(),
				"requested_max":          requestedMax,
			})
		}
		mine, err := ledger.SharesOf(tx, houseID, userID)
		if err != nil {
			return err
		}
		if mine <= 0 {
			return apperrors.ErrNotOwner
		}
		var pending int64
		if err := tx.Model(&domain.SplitLimitRequest{}).
			Where("house_id = ? AND status = ?", houseID, domain.LimitPending).Count(&pending).Error; err != nil {
			return err
		}
		if pending > 0 && !privileged {
			return apperrors.ErrRequestAlreadyPending
		}

		req = domain.SplitLimitRequest{
			HouseID:      houseID,
			RequesterID:  userID,
			RequestedMax: requestedMax,
			Status:       domain.LimitPending,
		}
		if privileged {
			now := time.Now().UTC()
			req.Status = domain.LimitApproved
			req.DecidedAt = &now
		}
		if err := tx.Create(&req).Error; err != nil {
			return err
		}
		if privileged {
			return raiseCeiling(tx, house, requestedMax)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("house_id", houseID.String()).Str("request_id", req.ID.String()).
		Int("requested_max", requestedMax).Str("status", req.Status).Msg("split limit requested")
	return &req, nil
}

// DecideLimit approves or rejects a pending request. Approval raises the
// ceiling unless it already exceeds the requested value.
func (s *Service) DecideLimit(ctx context.Context, requestID uuid.UUID, approve bool) (*domain.SplitLimitRequest, error) {
	var req domain.SplitLimitRequest
	err := database.Transaction(ctx, s.DB, s.LockTimeout, func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", requestID).Take(&req).Error; err != nil {
			if database.IsNotFound(err) {
				return apperrors.ErrRequestNotFound
			}
			return err
		}
		house, err := ledger.LockHouse(tx, req.HouseID)
		if err != nil {
			return err
		}
		if err := database.ForUpdate(tx).Where("id = ?", requestID).Take(&req).Error; err != nil {
			return err
		}
		if req.Status != domain.LimitPending {
			return apperrors.WithDetails(apperrors.ErrRequestNotPending, map[string]any{"status": req.Status})
		}
		now := time.Now().UTC()
		req.DecidedAt = &now
		req.Status = domain.LimitRejected
		if approve {
			req.Status = domain.LimitApproved
		}
		if err := tx.Model(&domain.SplitLimitRequest{}).Where("id = ?", req.ID).
			Updates(map[string]interface{}{"status": req.Status, "decided_at": now}).Error; err != nil {
			return err
		}
		if approve {
			return raiseCeiling(tx, house, req.RequestedMax)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("request_id", requestID.String()).Str("status", req.Status).Msg("split limit decided")
	return &req, nil
}

func raiseCeiling(tx *gorm.DB, house *domain.House, max int) error {
	if max <= house.SplitCeiling() {
		return nil
	}
	return tx.Model(&domain.House{}).Where("id = ?", house.ID).Update("max_avail_total_shares", max).Error
}
