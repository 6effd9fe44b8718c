package listings

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookshare-backend/internal/geo"
	"bookshare-backend/internal/platform/apierr"
	"bookshare-backend/internal/platform/db"
	"bookshare-backend/internal/platform/httpx"
	"bookshare-backend/internal/platform/ids"
	"bookshare-backend/internal/testutil"
)

var t0 = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *db.DB, *testutil.Clock) {
	t.Helper()
	d := testutil.NewDB(t)
	clk := testutil.NewClock(t0)
	return &Service{store: NewStore(d), clock: clk, id: ids.NewULIDGen(), defaultDuration: DefaultDurationDays}, d, clk
}

func ptr[T any](v T) *T { return &v }

func TestCreateComputesGeohashAndDefaults(t *testing.T) {
	svc, d, _ := newTestService(t)
	owner := testutil.CreateUser(t, d, testutil.UserOpts{})
	ctx := context.Background()

	res, err := svc.Create(ctx, owner, CreateListingRequest{
		Title:     "  Dune ",
		Author:    "Frank Herbert",
		Condition: "Good",
		Latitude:  ptr(40.0),
		Longitude: ptr(-74.0),
		Tags:      []string{"scifi", " SciFi ", "", "classic"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Dune", res.Title)
	assert.Equal(t, "Lend", res.ListingType)
	assert.Equal(t, "Available", res.Status)
	assert.Equal(t, 14, res.LendingDurationDays)
	require.NotNil(t, res.Geohash)
	assert.Equal(t, geo.Encode(40, -74, geo.StoredPrecision), *res.Geohash)
	assert.Equal(t, []string{"scifi", "classic"}, res.Tags)

	got, err := svc.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Geohash, got.Geohash)
	assert.Equal(t, []string{"scifi", "classic"}, got.Tags)
	assert.True(t, got.CreatedAt.Equal(t0))
}

func TestCreateWithoutCoordinatesHasNoKey(t *testing.T) {
	svc, d, _ := newTestService(t)
	owner := testutil.CreateUser(t, d, testutil.UserOpts{})

	res, err := svc.Create(context.Background(), owner, CreateListingRequest{Title: "T", Author: "A", Condition: "New"})
	require.NoError(t, err)
	assert.Nil(t, res.Geohash)
	assert.Nil(t, res.Latitude)
}

func TestCreateValidation(t *testing.T) {
	svc, d, _ := newTestService(t)
	owner := testutil.CreateUser(t, d, testutil.UserOpts{})
	base := func() CreateListingRequest {
		return CreateListingRequest{Title: "T", Author: "A", Condition: "Good"}
	}

	cases := map[string]func(r *CreateListingRequest){
		"empty title":     func(r *CreateListingRequest) { r.Title = " " },
		"bad condition":   func(r *CreateListingRequest) { r.Condition = "Mint" },
		"bad type":        func(r *CreateListingRequest) { r.ListingType = ptr("Sell") },
		"duration zero":   func(r *CreateListingRequest) { r.LendingDurationDays = ptr(0) },
		"duration 91":     func(r *CreateListingRequest) { r.LendingDurationDays = ptr(91) },
		"lat only":        func(r *CreateListingRequest) { r.Latitude = ptr(10.0) },
		"lat out of band": func(r *CreateListingRequest) { r.Latitude, r.Longitude = ptr(91.0), ptr(0.0) },
		"lon out of band": func(r *CreateListingRequest) { r.Latitude, r.Longitude = ptr(0.0), ptr(-181.0) },
		"page count":      func(r *CreateListingRequest) { r.PageCount = ptr(0) },
	}
	for name, mut := range cases {
		t.Run(name, func(t *testing.T) {
			req := base()
			mut(&req)
			_, err := svc.Create(context.Background(), owner, req)
			assert.Equal(t, apierr.CodeInvalidArgument, apierr.CodeOf(err))
		})
	}
}

func TestUpdateRecomputesGeohash(t *testing.T) {
	svc, d, clk := newTestService(t)
	owner := testutil.CreateUser(t, d, testutil.UserOpts{})
	ctx := context.Background()

	res, err := svc.Create(ctx, owner, CreateListingRequest{Title: "T", Author: "A", Condition: "Good",
		Latitude: ptr(40.0), Longitude: ptr(-74.0)})
	require.NoError(t, err)

	clk.Advance(time.Hour)
	up, err := svc.Update(ctx, res.ID, owner, UpdateListingRequest{Longitude: ptr(-73.5), Title: ptr("T2")})
	require.NoError(t, err)
	assert.Equal(t, "T2", up.Title)
	assert.Equal(t, geo.Encode(40, -73.5, geo.StoredPrecision), *up.Geohash)
	assert.True(t, up.UpdatedAt.Equal(t0.Add(time.Hour)))

	// 座標が変わらなければ geohash もそのまま
	up2, err := svc.Update(ctx, res.ID, owner, UpdateListingRequest{Description: ptr("worn cover")})
	require.NoError(t, err)
	assert.Equal(t, up.Geohash, up2.Geohash)
}

func TestUpdateGuards(t *testing.T) {
	svc, d, _ := newTestService(t)
	owner := testutil.CreateUser(t, d, testutil.UserOpts{})
	other := testutil.CreateUser(t, d, testutil.UserOpts{})
	ctx := context.Background()

	held := testutil.CreateBook(t, d, owner, testutil.BookOpts{Status: "InTransit"}, "")
	_, err := svc.Update(ctx, held, owner, UpdateListingRequest{Status: ptr("Unavailable")})
	assert.Equal(t, apierr.CodeConflict, apierr.CodeOf(err))

	pending := testutil.CreateBook(t, d, owner, testutil.BookOpts{Status: "PendingPickup"}, "")
	_, err = svc.Update(ctx, pending, owner, UpdateListingRequest{Title: ptr("x")})
	assert.Equal(t, apierr.CodeConflict, apierr.CodeOf(err))

	free := testutil.CreateBook(t, d, owner, testutil.BookOpts{}, "")
	_, err = svc.Update(ctx, free, owner, UpdateListingRequest{Status: ptr("InTransit")})
	assert.Equal(t, apierr.CodeInvalidArgument, apierr.CodeOf(err))

	_, err = svc.Update(ctx, free, other, UpdateListingRequest{Title: ptr("mine now")})
	assert.Equal(t, apierr.CodeForbidden, apierr.CodeOf(err))

	up, err := svc.Update(ctx, free, owner, UpdateListingRequest{Status: ptr("Unavailable")})
	require.NoError(t, err)
	assert.Equal(t, "Unavailable", up.Status)

	_, err = svc.Update(ctx, "missing", owner, UpdateListingRequest{Title: ptr("x")})
	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(err))
}

func TestDelete(t *testing.T) {
	svc, d, _ := newTestService(t)
	owner := testutil.CreateUser(t, d, testutil.UserOpts{})
	other := testutil.CreateUser(t, d, testutil.UserOpts{})
	ctx := context.Background()

	for _, st := range []string{"PendingPickup", "InTransit"} {
		id := testutil.CreateBook(t, d, owner, testutil.BookOpts{Status: st}, "")
		assert.Equal(t, apierr.CodeConflict, apierr.CodeOf(svc.Delete(ctx, id, owner)), st)
	}

	id := testutil.CreateBook(t, d, owner, testutil.BookOpts{Status: "Unavailable"}, "")
	assert.Equal(t, apierr.CodeForbidden, apierr.CodeOf(svc.Delete(ctx, id, other)))
	require.NoError(t, svc.Delete(ctx, id, owner))

	_, err := svc.Get(ctx, id)
	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(err))
	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(svc.Delete(ctx, id, owner)))
}

func TestListMine(t *testing.T) {
	svc, d, clk := newTestService(t)
	owner := testutil.CreateUser(t, d, testutil.UserOpts{})
	other := testutil.CreateUser(t, d, testutil.UserOpts{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, owner, CreateListingRequest{Title: "T", Author: "A", Condition: "Good"})
		require.NoError(t, err)
		clk.Advance(time.Minute)
	}
	_, err := svc.Create(ctx, other, CreateListingRequest{Title: "T", Author: "A", Condition: "Good"})
	require.NoError(t, err)

	res, err := svc.ListMine(ctx, owner, httpx.Page{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Total)
	assert.Len(t, res.Items, 2)
	assert.Equal(t, 2, res.NextOffset)
	assert.True(t, res.Items[0].CreatedAt.After(res.Items[1].CreatedAt))
}
