// Package geo holds the spatial index used by book search: geohash keys,
// the candidate prefix set for a radius query and haversine distance.
package geo

import (
	"errors"
	"math"
	"strings"

	"github.com/mmcloughlin/geohash"
)

// StoredPrecision is the key length persisted on each listing.
const StoredPrecision = 7

var ErrInvalidHash = errors.New("invalid geohash")

type Direction = geohash.Direction

const (
	North     = geohash.North
	NorthEast = geohash.NorthEast
	East      = geohash.East
	SouthEast = geohash.SouthEast
	South     = geohash.South
	SouthWest = geohash.SouthWest
	West      = geohash.West
	NorthWest = geohash.NorthWest
)

// 各方向の (dLat, dLon) セル単位
var offsets = map[Direction][2]float64{
	North:     {1, 0},
	NorthEast: {1, 1},
	East:      {0, 1},
	SouthEast: {-1, 1},
	South:     {-1, 0},
	SouthWest: {-1, -1},
	West:      {0, -1},
	NorthWest: {1, -1},
}

func ValidCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180 &&
		!math.IsNaN(lat) && !math.IsNaN(lon)
}

// Encode returns the base-32 geohash of (lat, lon) with the given number of characters.
func Encode(lat, lon float64, precision int) string {
	if precision < 1 {
		precision = 1
	}
	// 上端 (90, 180) はライブラリの整数化で桁あふれするので内側に寄せる
	lat = math.Max(-90, math.Min(lat, math.Nextafter(90, 0)))
	lon = math.Max(-180, math.Min(lon, math.Nextafter(180, 0)))
	return geohash.EncodeWithPrecision(lat, lon, uint(precision))
}

// EncodeOptional は座標が欠けていれば "" を返す。キー無しの本は範囲検索に出てこない
func EncodeOptional(lat, lon *float64, precision int) string {
	if lat == nil || lon == nil {
		return ""
	}
	return Encode(*lat, *lon, precision)
}

// Decode returns the cell center and its half extents in degrees.
func Decode(hash string) (lat, lon, latErr, lonErr float64, err error) {
	if hash == "" || geohash.Validate(hash) != nil {
		return 0, 0, 0, 0, ErrInvalidHash
	}
	box := geohash.BoundingBox(hash)
	lat, lon = box.Center()
	return lat, lon, (box.MaxLat - box.MinLat) / 2, (box.MaxLng - box.MinLng) / 2, nil
}

// Neighbor returns the adjacent cell of the same length.
// Longitude wraps at the antimeridian; latitude stops at the poles,
// so the north neighbor of a top row cell is the cell itself.
func Neighbor(hash string, dir Direction) (string, error) {
	lat, lon, latErr, lonErr, err := Decode(hash)
	if err != nil {
		return "", err
	}
	off := offsets[dir]
	nlat := lat + off[0]*latErr*2
	nlon := lon + off[1]*lonErr*2

	if nlat > 90 || nlat < -90 {
		nlat = lat
	}
	if nlon > 180 {
		nlon -= 360
	} else if nlon < -180 {
		nlon += 360
	}
	return Encode(nlat, nlon, len(hash)), nil
}

// CellSize returns the full cell height and width in degrees at the given precision.
func CellSize(precision int) (latDeg, lonDeg float64) {
	box := geohash.BoundingBox(strings.Repeat("0", precision))
	return box.MaxLat - box.MinLat, box.MaxLng - box.MinLng
}
