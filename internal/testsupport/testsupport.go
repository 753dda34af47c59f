// Package testsupport builds in-memory databases and seed rows for service
// and handler tests.
package testsupport

import (
	"testing"

	"sharehouse-backend/internal/domain"
	"sharehouse-backend/internal/infrastructure/database"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a migrated in-memory SQLite database. A single connection keeps
// the memory database alive and serialises concurrent transactions, which
// stands in for Postgres row locks.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))
	return db
}

func User(t *testing.T, db *gorm.DB, username string) *domain.User {
	t.Helper()
	u := &domain.User{Username: username, Email: username + "@example.com"}
	require.NoError(t, db.Create(u).Error)
	return u
}

// OnboardedUser is a user with a payment account id.
func OnboardedUser(t *testing.T, db *gorm.DB, username, accountID string) *domain.User {
	t.Helper()
	u := &domain.User{Username: username, Email: username + "@example.com", StripeAccountID: &accountID}
	require.NoError(t, db.Create(u).Error)
	return u
}

func House(t *testing.T, db *gorm.DB, total int) *domain.House {
	t.Helper()
	h := &domain.House{IDFme: uuid.NewString(), Name: "house", TotalShares: total}
	require.NoError(t, db.Create(h).Error)
	return h
}

func Own(t *testing.T, db *gorm.DB, houseID, userID uuid.UUID, shares int) *domain.OwnershipRecord {
	t.Helper()
	rec := &domain.OwnershipRecord{HouseID: houseID, UserID: userID, Shares: shares, BoughtFor: decimal.Zero}
	require.NoError(t, db.Create(rec).Error)
	return rec
}

func Listing(t *testing.T, db *gorm.DB, houseID, sellerID uuid.UUID, price string, shares int) *domain.Listing {
	t.Helper()
	l := &domain.Listing{
		HouseID:    houseID,
		SellerID:   sellerID,
		Price:      decimal.RequireFromString(price),
		Currency:   "PLN",
		ShareCount: shares,
		Status:     domain.ListingActive,
	}
	require.NoError(t, db.Create(l).Error)
	return l
}

// Shares returns the persisted holding, zero when no row exists.
func Shares(t *testing.T, db *gorm.DB, houseID, userID uuid.UUID) int {
	t.Helper()
	var rec domain.OwnershipRecord
	err := db.Where("house_id = ? AND user_id = ?", houseID, userID).Take(&rec).Error
	if database.IsNotFound(err) {
		return 0
	}
	require.NoError(t, err)
	return rec.Shares
}

// AssertLedgerInvariants checks that no row is non-positive and the holdings
// never exceed total_shares.
func AssertLedgerInvariants(t *testing.T, db *gorm.DB, houseID uuid.UUID) {
	t.Helper()
	var h domain.House
	require.NoError(t, db.Where("id = ?", houseID).Take(&h).Error)
	var recs []domain.OwnershipRecord
	require.NoError(t, db.Where("house_id = ?", houseID).Find(&recs).Error)
	sum := 0
	for _, r := range recs {
		require.Greater(t, r.Shares, 0, "ownership row with non-positive shares")
		sum += r.Shares
	}
	require.LessOrEqual(t, sum, h.TotalShares, "holdings exceed total_shares")
}
