package ledger

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

func setupLedger(t *testing.T) (*Service, *gorm.DB) {
	db := testsupport.NewDB(t)
	return &Service{DB: db}, db
}

func TestTransferShares_PartialAndFull(t *testing.T) {
	svc, db := setupLedger(t)
	a := testsupport.User(t, db, "alice")
	b := testsupport.User(t, db, "bob")
	h := testsupport.House(t, db, 10)
	testsupport.Own(t, db, h.ID, a.ID, 10)

	require.NoError(t, svc.Transfer(context.Background(), Transfer{HouseID: h.ID, From: a.ID, To: b.ID, Shares: 4, Cost: decimal.NewFromInt(40)}))
	assert.Equal(t, 6, testsupport.Shares(t, db, h.ID, a.ID))
	assert.Equal(t, 4, testsupport.Shares(t, db, h.ID, b.ID))
	testsupport.AssertLedgerInvariants(t, db, h.ID)

	var house domain.House
	require.NoError(t, db.Take(&house, "id = ?", h.ID).Error)
	assert.Equal(t, domain.HouseFractional, house.Status)

	// Seller drains to zero: the row disappears instead of persisting at 0.
	require.NoError(t, svc.Transfer(context.Background(), Transfer{HouseID: h.ID, From: a.ID, To: b.ID, Shares: 6}))
	var n int64
	require.NoError(t, db.Model(&domain.OwnershipRecord{}).Where("house_id = ? AND user_id = ?", h.ID, a.ID).Count(&n).Error)
	assert.Equal(t, int64(0), n)
	assert.Equal(t, 10, testsupport.Shares(t, db, h.ID, b.ID))

	var rec domain.OwnershipRecord
	require.NoError(t, db.Take(&rec, "house_id = ? AND user_id = ?", h.ID, b.ID).Error)
	assert.True(t, rec.BoughtFor.Equal(decimal.NewFromInt(40)))

	require.NoError(t, db.Take(&house, "id = ?", h.ID).Error)
	assert.Equal(t, domain.HouseSold, house.Status)
	testsupport.AssertLedgerInvariants(t, db, h.ID)
}

func TestTransferShares_Insufficient(t *testing.T) {
	svc, db := setupLedger(t)
	a := testsupport.User(t, db, "alice")
	b := testsupport.User(t, db, "bob")
	h := testsupport.House(t, db, 10)
	testsupport.Own(t, db, h.ID, a.ID, 3)

	err := svc.Transfer(context.Background(), Transfer{HouseID: h.ID, From: a.ID, To: b.ID, Shares: 4})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientShares))
	assert.Equal(t, 3, apperrors.As(err).Details["held"])
	assert.Equal(t, 3, testsupport.Shares(t, db, h.ID, a.ID))
	assert.Equal(t, 0, testsupport.Shares(t, db, h.ID, b.ID))
}

func TestTransferShares_RejectsBadInput(t *testing.T) {
	svc, db := setupLedger(t)
	a := testsupport.User(t, db, "alice")
	h := testsupport.House(t, db, 10)
	testsupport.Own(t, db, h.ID, a.ID, 10)

	err := svc.Transfer(context.Background(), Transfer{HouseID: h.ID, From: a.ID, To: a.ID, Shares: 1})
	assert.True(t, errors.Is(err, apperrors.ErrBadShares))
	err = svc.Transfer(context.Background(), Transfer{HouseID: h.ID, From: a.ID, To: uuid.New(), Shares: 0})
	assert.True(t, errors.Is(err, apperrors.ErrBadShares))
}

func TestClaimUnowned(t *testing.T) {
	svc, db := setupLedger(t)
	a := testsupport.User(t, db, "alice")
	b := testsupport.User(t, db, "bob")
	h := testsupport.House(t, db, 5)

	rec, err := svc.ClaimUnowned(context.Background(), h.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, rec.Shares)

	var house domain.House
	require.NoError(t, db.Take(&house, "id = ?", h.ID).Error)
	assert.Equal(t, domain.HouseSold, house.Status)

	_, err = svc.ClaimUnowned(context.Background(), h.ID, b.ID)
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyOccupied))

	_, err = svc.ClaimUnowned(context.Background(), uuid.New(), b.ID)
	assert.True(t, errors.Is(err, apperrors.ErrHouseNotFound))

	other := testsupport.House(t, db, 1)
	_, err = svc.ClaimUnowned(context.Background(), other.ID, uuid.New())
	assert.True(t, errors.Is(err, apperrors.ErrUserNotFound))
}

func TestDeriveStatus(t *testing.T) {
	one := []domain.OwnershipRecord{{Shares: 4}}
	two := []domain.OwnershipRecord{{Shares: 2}, {Shares: 2}}
	assert.Equal(t, domain.HouseFree, DeriveStatus(4, nil, false))
	assert.Equal(t, domain.HouseSold, DeriveStatus(4, one, false))
	assert.Equal(t, domain.HouseFractional, DeriveStatus(4, two, false))
	assert.Equal(t, domain.HouseFractional, DeriveStatus(5, one, false))
	assert.Equal(t, domain.HouseForSale, DeriveStatus(4, one, true))
}

func TestSortOwnerIDs_DeterministicAndDeduplicated(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	b := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	assert.Equal(t, []uuid.UUID{b, a}, SortOwnerIDs([]uuid.UUID{a, b, a}))
	assert.Equal(t, SortOwnerIDs([]uuid.UUID{a, b}), SortOwnerIDs([]uuid.UUID{b, a}))
}

func TestOwnedHouses(t *testing.T) {
	svc, db := setupLedger(t)
	a := testsupport.User(t, db, "alice")
	b := testsupport.User(t, db, "bob")
	h := testsupport.House(t, db, 100)
	testsupport.Own(t, db, h.ID, a.ID, 60)
	testsupport.Own(t, db, h.ID, b.ID, 40)
	testsupport.Listing(t, db, h.ID, b.ID, "500", 10)
	p := domain.SplitProposal{HouseID: h.ID, InitiatorID: b.ID, CurrentTotalShares: 100, RequestedTotalShares: 200}
	require.NoError(t, db.Create(&p).Error)
	require.NoError(t, db.Create(&domain.SplitVote{ProposalID: p.ID, UserID: b.ID, Vote: true}).Error)

	rows, err := svc.OwnedHouses(context.Background(), b.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, 40, row.MyShares)
	assert.False(t, row.CanSplitDirect)
	assert.Equal(t, 100, row.MaxAvailTotalShares)
	require.NotNil(t, row.Listing)
	assert.Equal(t, 10, row.Listing.Shares)
	require.NotNil(t, row.SplitProposal)
	assert.Equal(t, 40.0, row.SplitProposal.YesPercent)
	require.NotNil(t, row.SplitProposal.MyVote)
	assert.Equal(t, "yes", *row.SplitProposal.MyVote)

	rows, err = svc.OwnedHouses(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].CanSplitDirect)
	assert.Nil(t, rows[0].Listing)
	assert.Nil(t, rows[0].SplitProposal.MyVote)
}

func TestDetail(t *testing.T) {
	svc, db := setupLedger(t)
	ctx := context.Background()
	a := testsupport.User(t, db, "alice")
	b := testsupport.User(t, db, "bob")
	h := testsupport.House(t, db, 3)
	testsupport.Own(t, db, h.ID, b.ID, 1)
	testsupport.Own(t, db, h.ID, a.ID, 2)
	testsupport.Listing(t, db, h.ID, b.ID, "90", 1)
	cheaper := testsupport.Listing(t, db, h.ID, a.ID, "50", 1)

	d, err := svc.Detail(ctx, h.ID)
	require.NoError(t, err)
	require.Len(t, d.Owners, 2)
	assert.Equal(t, a.ID, d.Owners[0].UserID)
	assert.Equal(t, "alice", d.Owners[0].Username)
	assert.Equal(t, 66.67, d.Owners[0].Percent)
	assert.Equal(t, 33.33, d.Owners[1].Percent)
	require.NotNil(t, d.MainOwnerID)
	assert.Equal(t, a.ID, *d.MainOwnerID)
	assert.Equal(t, "alice", d.MainOwnerUsername)
	require.Len(t, d.Listings, 2)
	assert.Equal(t, cheaper.ID, d.Listings[0].ID)

	empty := testsupport.House(t, db, 1)
	d, err = svc.Detail(ctx, empty.ID)
	require.NoError(t, err)
	assert.Empty(t, d.Owners)
	assert.Nil(t, d.MainOwnerID)
	assert.Empty(t, d.Listings)

	_, err = svc.Detail(ctx, uuid.New())
	assert.True(t, errors.Is(err, apperrors.ErrHouseNotFound))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 33.33, Percent(1, 3))
	assert.Equal(t, 0.0, Percent(1, 0))
}
