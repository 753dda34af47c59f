package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"sharehouse-backend/internal/domain"
	"sharehouse-backend/internal/pkg/apperrors"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMapError_LockNotAvailable(t *testing.T) {
	err := MapError(fmt.Errorf("select: %w", &pgconn.PgError{Code: "55P03", Message: "canceling statement due to lock timeout"}))
	ae := apperrors.As(err)
	assert.Equal(t, "LOCK_TIMEOUT", ae.Code)
	assert.True(t, ae.Retryable)
}

func TestMapError_Deadlock(t *testing.T) {
	err := MapError(&pgconn.PgError{Code: "40P01"})
	assert.True(t, errors.Is(err, apperrors.ErrLockTimeout))
}

func TestMapError_PassThrough(t *testing.T) {
	assert.Nil(t, MapError(nil))
	assert.Equal(t, apperrors.ErrAlreadySold, MapError(apperrors.ErrAlreadySold))
	plain := errors.New("plain")
	assert.Equal(t, plain, MapError(plain))
	assert.Equal(t, "INTERNAL_ERROR", apperrors.As(MapError(&pgconn.PgError{Code: "23505"})).Code)
}

func TestTransaction_RollsBackOnError(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	err = Transaction(context.Background(), db, 0, func(tx *gorm.DB) error {
		if err := tx.Create(&domain.House{IDFme: "h-1", TotalShares: 4}).Error; err != nil {
			return err
		}
		return apperrors.ErrHouseTotalChanged
	})
	assert.True(t, errors.Is(err, apperrors.ErrHouseTotalChanged))

	var n int64
	require.NoError(t, db.Model(&domain.House{}).Count(&n).Error)
	assert.Equal(t, int64(0), n)
}

func TestForUpdate_IgnoredBySQLite(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	h := domain.House{IDFme: "h-2", TotalShares: 2}
	require.NoError(t, db.Create(&h).Error)

	var got domain.House
	require.NoError(t, ForUpdate(db).Where("id = ?", h.ID).Take(&got).Error)
	assert.Equal(t, 2, got.TotalShares)
}
