package transactions

import (
	"context"
	"testing"

	"sharehouse-backend/internal/domain"
	"sharehouse-backend/internal/testsupport"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory(t *testing.T) {
	db := testsupport.NewDB(t)
	seller := testsupport.User(t, db, "seller")
	buyer := testsupport.User(t, db, "buyer")
	other := testsupport.User(t, db, "other")
	house := testsupport.House(t, db, 10)

	for i, status := range []string{domain.TxCompleted, domain.TxRefunded} {
		require.NoError(t, db.Create(&domain.Transaction{
			StripeSessionID: []string{"cs_1", "cs_2"}[i],
			HouseID:         &house.ID,
			BuyerID:         &buyer.ID,
			SellerID:        &seller.ID,
			Shares:          2,
			Amount:          decimal.RequireFromString("200.00"),
			Currency:        "PLN",
			Status:          status,
		}).Error)
	}
	svc := &Service{DB: db}
	ctx := context.Background()

	entries, err := svc.History(ctx, buyer.ID, "")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "buyer", entries[0].Role)
	require.NotNil(t, entries[0].Counterparty)
	assert.Equal(t, "seller", *entries[0].Counterparty)
	require.NotNil(t, entries[0].HouseName)
	assert.Equal(t, "house", *entries[0].HouseName)

	entries, err = svc.History(ctx, seller.ID, domain.TxRefunded)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "seller", entries[0].Role)
	assert.Equal(t, "buyer", *entries[0].Counterparty)

	entries, err = svc.History(ctx, other.ID, "")
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}
