package lending_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookshare-backend/internal/lending"
	"bookshare-backend/internal/listings"
	"bookshare-backend/internal/platform/apierr"
	"bookshare-backend/internal/testutil"
	"bookshare-backend/internal/users"
)

func f(v float64) *float64 { return &v }

// 出品 → 検索 → 申請 → 承認 → 双方受け渡し確認 → 返却 → 評価
func TestLendingEndToEnd(t *testing.T) {
	ctx := context.Background()
	d := testutil.NewDB(t)
	userSvc := users.NewService(d)
	books := listings.NewService(d, 14)
	loans := lending.NewService(d, userSvc)

	a := testutil.CreateUser(t, d, testutil.UserOpts{Name: "A", AvgRating: 4.0, RatingCount: 2})
	b := testutil.CreateUser(t, d, testutil.UserOpts{Name: "B"})

	book, err := books.Create(ctx, a, listings.CreateListingRequest{
		Title: "Dune", Author: "Frank Herbert", Condition: "Good",
		Latitude: f(40.0), Longitude: f(-74.0),
	})
	require.NoError(t, err)

	found, err := books.Search(ctx, listings.SearchParams{Lat: f(40.01), Lon: f(-74.01), RadiusMiles: f(5), SearcherID: b})
	require.NoError(t, err)
	require.Len(t, found.Items, 1)
	assert.Equal(t, book.ID, found.Items[0].ID)
	assert.InDelta(t, 0.86, found.Items[0].DistanceMiles, 0.02)
	assert.Equal(t, "A", found.Items[0].OwnerName)

	tx, err := loans.Request(ctx, b, lending.CreateTransactionRequest{BookID: book.ID})
	require.NoError(t, err)
	assert.Equal(t, "Requested", tx.Status)

	tx, err = loans.Approve(ctx, tx.ID, a)
	require.NoError(t, err)
	assert.Equal(t, "Approved", tx.Status)
	got, err := books.Get(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "PendingPickup", got.Status)

	tx, err = loans.ConfirmPickup(ctx, tx.ID, a)
	require.NoError(t, err)
	assert.Equal(t, "Approved", tx.Status, "one side is not enough")

	before := time.Now().UTC()
	tx, err = loans.ConfirmPickup(ctx, tx.ID, b)
	require.NoError(t, err)
	assert.Equal(t, "PickedUp", tx.Status)
	require.NotNil(t, tx.DueDate)
	assert.WithinDuration(t, before.AddDate(0, 0, 14), *tx.DueDate, 2*time.Second)
	got, err = books.Get(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "InTransit", got.Status)

	_, err = loans.ConfirmReturn(ctx, tx.ID, b)
	assert.Equal(t, apierr.CodeForbidden, apierr.CodeOf(err), "only the owner confirms return")

	tx, err = loans.ConfirmReturn(ctx, tx.ID, a)
	require.NoError(t, err)
	assert.Equal(t, "Completed", tx.Status)
	got, err = books.Get(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Available", got.Status)

	for _, id := range []string{a, b} {
		me, err := userSvc.Me(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1, me.CompletedTransactions)
	}

	_, err = loans.Rate(ctx, tx.ID, b, lending.RateRequest{Score: 5})
	require.NoError(t, err)

	me, err := userSvc.Me(ctx, a)
	require.NoError(t, err)
	assert.InDelta(t, 4.33, me.AvgRating, 0.01)
	assert.Equal(t, 3, me.TotalRatings)

	var cached int
	require.NoError(t, d.QueryRow(`SELECT reputation_score FROM users WHERE id = ?`, a).Scan(&cached))
	assert.Equal(t, me.Reputation.Score, cached, "refresh stores the computed score")

	_, err = loans.Rate(ctx, tx.ID, b, lending.RateRequest{Score: 1})
	assert.Equal(t, apierr.CodeAlreadyExists, apierr.CodeOf(err))
}
