package geo

import (
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookshare-backend/internal/testutil"
)

func TestEncodeKnownValues(t *testing.T) {
	assert.Equal(t, "ezs42", Encode(42.6, -5.6, 5))
	assert.Equal(t, "u4pruydqqvj", Encode(57.64911, 10.40744, 11))
	assert.Equal(t, "x", Encode(0, 179.99, 1))
	assert.Len(t, Encode(40, -74, StoredPrecision), StoredPrecision)
}

func TestEncodeOptionalMissingCoordinate(t *testing.T) {
	lat, lon := 40.0, -74.0
	assert.Equal(t, "", EncodeOptional(nil, &lon, 7))
	assert.Equal(t, "", EncodeOptional(&lat, nil, 7))
	assert.Equal(t, Encode(lat, lon, 7), EncodeOptional(&lat, &lon, 7))
}

func TestDecodeRoundTrip(t *testing.T) {
	h := Encode(40.7128, -74.0060, 9)
	lat, lon, latErr, lonErr, err := Decode(h)
	require.NoError(t, err)
	assert.InDelta(t, 40.7128, lat, latErr)
	assert.InDelta(t, -74.0060, lon, lonErr)

	_, _, _, _, err = Decode("abc") // 'a' は base32 に無い
	assert.ErrorIs(t, err, ErrInvalidHash)
	_, _, _, _, err = Decode("")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestNeighbor(t *testing.T) {
	h := Encode(40.0, -74.0, 6)
	n, err := Neighbor(h, North)
	require.NoError(t, err)
	back, err := Neighbor(n, South)
	require.NoError(t, err)
	assert.Equal(t, h, back)

	e, err := Neighbor(h, East)
	require.NoError(t, err)
	w, err := Neighbor(e, West)
	require.NoError(t, err)
	assert.Equal(t, h, w)

	// antimeridian
	wrapped, err := Neighbor("x", East)
	require.NoError(t, err)
	assert.Equal(t, "8", wrapped)

	// 北極側は自セルのまま
	top := Encode(89.99, 0, 3)
	same, err := Neighbor(top, North)
	require.NoError(t, err)
	assert.Equal(t, top, same)
}

func TestPrecisionForRadiusTable(t *testing.T) {
	cases := map[float64]int{
		0.1: 8, 0.5: 8, 0.6: 7, 2: 7, 3: 6, 5: 6, 10: 5, 20: 5, 50: 4, 80: 4, 81: 3, 100: 3,
	}
	for r, want := range cases {
		assert.Equal(t, want, PrecisionForRadius(r), "radius %v", r)
	}
}

func TestCoverPrecisionNeverFinerThanTable(t *testing.T) {
	for _, r := range []float64{0.5, 1, 2, 5, 10, 20, 50, 80, 100} {
		p := CoverPrecision(40, r)
		assert.LessOrEqual(t, p, PrecisionForRadius(r))
		assert.LessOrEqual(t, p, StoredPrecision)
		assert.GreaterOrEqual(t, p, 1)
	}
}

func TestCandidateKeysAlwaysNine(t *testing.T) {
	for _, r := range []float64{0.5, 2, 5, 20, 80, 100} {
		keys := CandidateKeys(40.0, -74.0, r)
		require.Len(t, keys, 9)
		for _, k := range keys {
			assert.Len(t, k, len(keys[0]))
		}
	}
}

func inArea(a Area, lat, lon float64) bool {
	if lat < a.MinLat || lat > a.MaxLat {
		return false
	}
	switch {
	case a.AllLon:
		return true
	case a.CrossesAntimeridian():
		return lon >= a.MinLon || lon <= a.MaxLon
	default:
		return lon >= a.MinLon && lon <= a.MaxLon
	}
}

// Every point inside the radius must pass the storage filter, poles included.
func TestSearchAreaNoFalseNegatives(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 4000; i++ {
		lat := rng.Float64()*180 - 90
		if i%4 == 0 {
			// 極の近くを多めに
			lat = 88 + rng.Float64()*2
			if i%8 == 0 {
				lat = -lat
			}
		}
		lon := rng.Float64()*360 - 180
		radius := 0.5 + rng.Float64()*99.5

		a := SearchArea(lat, lon, radius)

		plat, plon := testutil.Destination(lat, lon, rng.Float64()*360, rng.Float64()*radius*0.999)
		require.LessOrEqual(t, DistanceMiles(lat, lon, plat, plon), radius)
		assert.True(t, inArea(a, plat, plon),
			"box miss center=(%v,%v) r=%v point=(%v,%v)", lat, lon, radius, plat, plon)
		if a.Keys != nil {
			assert.True(t, slices.Contains(a.Keys, Encode(plat, plon, len(a.Keys[0]))),
				"key miss center=(%v,%v) r=%v point=(%v,%v)", lat, lon, radius, plat, plon)
		}
	}
}

func TestSearchAreaMidLatitude(t *testing.T) {
	a := SearchArea(40, -74, 5)
	assert.False(t, a.AllLon)
	assert.False(t, a.CrossesAntimeridian())
	assert.Equal(t, CandidateKeys(40, -74, 5), a.Keys)
	assert.InDelta(t, 40-a.MinLat, a.MaxLat-40, 1e-9)
	assert.InDelta(t, -74-a.MinLon, a.MaxLon+74, 1e-9)
	// 経度方向は緯度 40 度で広がる
	assert.Greater(t, a.MaxLon+74, a.MaxLat-40)
}

func TestSearchAreaAcrossAntimeridian(t *testing.T) {
	a := SearchArea(0, 179.99, 5)
	require.True(t, a.CrossesAntimeridian())
	assert.True(t, inArea(a, 0, -179.99))
	assert.False(t, inArea(a, 0, 0))
	require.NotNil(t, a.Keys)
	assert.Contains(t, a.Keys, Encode(0, -179.99, len(a.Keys[0])))
}

// Near the pole the 3x3 block cannot span the circle, so only the latitude band is used.
func TestSearchAreaAtPoleUsesLatitudeBand(t *testing.T) {
	a := SearchArea(89.5, 0, 100)
	assert.Nil(t, a.Keys)
	assert.True(t, a.AllLon)
	assert.Equal(t, 90.0, a.MaxLat)
	assert.InDelta(t, 89.5-100/EarthRadiusMiles*180/math.Pi, a.MinLat, 1e-5)

	// 極の反対側
	require.Less(t, DistanceMiles(89.5, 0, 89.5, 180), 100.0)
	assert.True(t, inArea(a, 89.5, 180))
	assert.NotContains(t, CandidateKeys(89.5, 0, 100), Encode(89.5, 180, 1))
}

func TestDistanceMiles(t *testing.T) {
	assert.Equal(t, 0.0, DistanceMiles(40, -74, 40, -74))

	ab := DistanceMiles(40.0, -74.0, 40.01, -74.01)
	ba := DistanceMiles(40.01, -74.01, 40.0, -74.0)
	assert.InDelta(t, ab, ba, 1e-12)
	assert.InDelta(t, 0.86, ab, 0.02)

	// NYC - LA ≈ 2445 mi
	assert.InDelta(t, 2445, DistanceMiles(40.7128, -74.0060, 34.0522, -118.2437), 2445*0.005)
}

func TestCellSize(t *testing.T) {
	latDeg, lonDeg := CellSize(1)
	assert.Equal(t, 45.0, latDeg)
	assert.Equal(t, 45.0, lonDeg)
	latDeg, lonDeg = CellSize(2)
	assert.Equal(t, 45.0/8, latDeg)
	assert.Equal(t, 45.0/4, lonDeg)
}

func TestDestinationDistance(t *testing.T) {
	lat, lon := testutil.Destination(40, -74, 45, 10)
	assert.InDelta(t, 10, DistanceMiles(40, -74, lat, lon), 1e-6)
}

func TestValidCoordinates(t *testing.T) {
	assert.True(t, ValidCoordinates(90, 180))
	assert.True(t, ValidCoordinates(-90, -180))
	assert.Len(t, Encode(90, 180, StoredPrecision), StoredPrecision)
	assert.False(t, ValidCoordinates(90.1, 0))
	assert.False(t, ValidCoordinates(0, -180.5))
}
