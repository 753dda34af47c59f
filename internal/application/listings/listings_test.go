package listings

import (
	"context"
	"errors"
	"testing"

	"sharehouse-backend/internal/domain"
	"sharehouse-backend/internal/pkg/apperrors"
	"sharehouse-backend/internal/testsupport"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupListings(t *testing.T) (*Service, *gorm.DB) {
	db := testsupport.NewDB(t)
	return &Service{DB: db, DefaultCurrency: "PLN"}, db
}

func houseStatus(t *testing.T, db *gorm.DB, id uuid.UUID) string {
	t.Helper()
	var h domain.House
	require.NoError(t, db.Where("id = ?", id).Take(&h).Error)
	return h.Status
}

func TestList_CreateThenUpdate(t *testing.T) {
	svc, db := setupListings(t)
	ctx := context.Background()
	a := testsupport.User(t, db, "alice")
	h := testsupport.House(t, db, 10)
	testsupport.Own(t, db, h.ID, a.ID, 10)

	l, err := svc.List(ctx, ListInput{HouseID: h.ID, SellerID: a.ID, Price: decimal.NewFromInt(100), Shares: 4})
	require.NoError(t, err)
	assert.Equal(t, domain.ListingActive, l.Status)
	assert.Equal(t, "PLN", l.Currency)
	assert.Equal(t, domain.HouseForSale, houseStatus(t, db, h.ID))

	again, err := svc.List(ctx, ListInput{HouseID: h.ID, SellerID: a.ID, Price: decimal.NewFromInt(90), Shares: 6, Currency: "EUR"})
	require.NoError(t, err)
	assert.Equal(t, l.ID, again.ID)

	var n int64
	require.NoError(t, db.Model(&domain.Listing{}).Where("house_id = ? AND status = ?", h.ID, domain.ListingActive).Count(&n).Error)
	assert.Equal(t, int64(1), n)

	var stored domain.Listing
	require.NoError(t, db.Where("id = ?", l.ID).Take(&stored).Error)
	assert.True(t, stored.Price.Equal(decimal.NewFromInt(90)))
	assert.Equal(t, 6, stored.ShareCount)
	assert.Equal(t, "EUR", stored.Currency)
}

func TestList_Rejections(t *testing.T) {
	svc, db := setupListings(t)
	ctx := context.Background()
	a := testsupport.User(t, db, "alice")
	stranger := testsupport.User(t, db, "bob")
	h := testsupport.House(t, db, 10)
	testsupport.Own(t, db, h.ID, a.ID, 3)

	_, err := svc.List(ctx, ListInput{HouseID: h.ID, SellerID: a.ID, Price: decimal.Zero, Shares: 1})
	assert.True(t, errors.Is(err, apperrors.ErrBadPrice))

	_, err = svc.List(ctx, ListInput{HouseID: h.ID, SellerID: a.ID, Price: decimal.NewFromInt(1), Shares: 0})
	assert.True(t, errors.Is(err, apperrors.ErrBadShares))

	_, err = svc.List(ctx, ListInput{HouseID: h.ID, SellerID: stranger.ID, Price: decimal.NewFromInt(1), Shares: 1})
	assert.True(t, errors.Is(err, apperrors.ErrNotOwner))

	_, err = svc.List(ctx, ListInput{HouseID: h.ID, SellerID: a.ID, Price: decimal.NewFromInt(1), Shares: 4})
	require.True(t, errors.Is(err, apperrors.ErrNotEnoughShares))
	assert.Equal(t, 3, apperrors.As(err).Details["my_shares"])

	_, err = svc.List(ctx, ListInput{HouseID: uuid.New(), SellerID: a.ID, Price: decimal.NewFromInt(1), Shares: 1})
	assert.True(t, errors.Is(err, apperrors.ErrHouseNotFound))
}

func TestUnlist(t *testing.T) {
	svc, db := setupListings(t)
	ctx := context.Background()
	a := testsupport.User(t, db, "alice")
	h := testsupport.House(t, db, 10)
	testsupport.Own(t, db, h.ID, a.ID, 10)

	_, err := svc.Unlist(ctx, h.ID, a.ID)
	assert.True(t, errors.Is(err, apperrors.ErrListingNotFound))

	_, err = svc.List(ctx, ListInput{HouseID: h.ID, SellerID: a.ID, Price: decimal.NewFromInt(10), Shares: 2})
	require.NoError(t, err)
	l, err := svc.Unlist(ctx, h.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ListingCancelled, l.Status)
	assert.NotNil(t, l.ValidTo)
	assert.Equal(t, domain.HouseSold, houseStatus(t, db, h.ID))
}

func TestSyncFromAgreement_GuardsPublicListing(t *testing.T) {
	svc, db := setupListings(t)
	a := testsupport.User(t, db, "alice")
	h := testsupport.House(t, db, 20)
	testsupport.Own(t, db, h.ID, a.ID, 20)
	existing := testsupport.Listing(t, db, h.ID, a.ID, "60", 10)

	in := SyncInput{
		HouseID:  h.ID,
		SellerID: a.ID,
		Terms:    Terms{Price: decimal.NewFromInt(50), Shares: 5},
		Guard:    true,
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.SyncFromAgreement(tx, in)
		return err
	})
	require.True(t, errors.Is(err, apperrors.ErrPublicListingWillChange))
	details := apperrors.As(err).Details
	assert.True(t, decimal.NewFromInt(60).Equal(details["current_price"].(decimal.Decimal)))
	assert.Equal(t, 10, details["current_shares"])
	assert.True(t, decimal.NewFromInt(50).Equal(details["requested_price"].(decimal.Decimal)))
	assert.Equal(t, 5, details["requested_shares"])
	assert.Equal(t, existing.ID, details["listing_id"])

	in.Confirm = true
	var synced *domain.Listing
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		synced, err = svc.SyncFromAgreement(tx, in)
		return err
	}))
	assert.Equal(t, existing.ID, synced.ID)

	var stored domain.Listing
	require.NoError(t, db.Where("id = ?", existing.ID).Take(&stored).Error)
	assert.True(t, stored.Price.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, 5, stored.ShareCount)

	// Identical terms are a no-op even under the guard.
	in.Confirm = false
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.SyncFromAgreement(tx, in)
		return err
	}))
}

func TestSyncFromAgreement_CreatesWhenNoListing(t *testing.T) {
	svc, db := setupListings(t)
	a := testsupport.User(t, db, "alice")
	h := testsupport.House(t, db, 20)
	testsupport.Own(t, db, h.ID, a.ID, 20)

	var l *domain.Listing
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		l, err = svc.SyncFromAgreement(tx, SyncInput{
			HouseID:  h.ID,
			SellerID: a.ID,
			Terms:    Terms{Price: decimal.NewFromInt(50), Shares: 10},
			Guard:    true,
		})
		return err
	}))
	assert.Equal(t, 10, l.ShareCount)
	assert.Equal(t, "PLN", l.Currency)
	assert.Equal(t, domain.HouseForSale, houseStatus(t, db, h.ID))
}

func TestBrowseAndCheapest(t *testing.T) {
	svc, db := setupListings(t)
	ctx := context.Background()
	a := testsupport.User(t, db, "alice")
	b := testsupport.User(t, db, "bob")
	h1 := testsupport.House(t, db, 10)
	h2 := testsupport.House(t, db, 10)
	testsupport.Listing(t, db, h1.ID, a.ID, "120", 2)
	cheap := testsupport.Listing(t, db, h1.ID, b.ID, "80", 1)
	other := testsupport.Listing(t, db, h2.ID, a.ID, "50", 3)
	closed := testsupport.Listing(t, db, h2.ID, b.ID, "10", 3)
	require.NoError(t, db.Model(&domain.Listing{}).Where("id = ?", closed.ID).Update("status", domain.ListingClosed).Error)

	page, err := svc.Browse(ctx, Query{OrderBy: "price"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Items, 3)
	assert.Equal(t, other.ID, page.Items[0].ID)

	page, err = svc.Browse(ctx, Query{HouseID: &h1.ID, OrderBy: "-price", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	require.Len(t, page.Items, 1)
	assert.True(t, page.Items[0].Price.Equal(decimal.NewFromInt(120)))

	min := decimal.NewFromInt(60)
	page, err = svc.Browse(ctx, Query{MinPrice: &min, SellerID: &b.ID})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, cheap.ID, page.Items[0].ID)

	page, err = svc.Browse(ctx, Query{Status: "all"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.Total)

	l, err := svc.Cheapest(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, other.ID, l.ID)

	l, err = svc.Cheapest(ctx, &h1.ID)
	require.NoError(t, err)
	assert.Equal(t, cheap.ID, l.ID)

	_, err = svc.Cheapest(ctx, &uuid.Nil)
	assert.True(t, errors.Is(err, apperrors.ErrListingNotFound))
}
