package geo

import "math"

// PrecisionForRadius maps a search radius to a key length.
// Wider radius means a coarser (shorter) key.
func PrecisionForRadius(radiusMiles float64) int {
	switch {
	case radiusMiles <= 0.5:
		return 8
	case radiusMiles <= 2:
		return 7
	case radiusMiles <= 5:
		return 6
	case radiusMiles <= 20:
		return 5
	case radiusMiles <= 80:
		return 4
	default:
		return 3
	}
}

// CoverPrecision starts from PrecisionForRadius and coarsens until one cell is
// at least as tall and as wide as the radius at this latitude. Only then is every
// point within the radius guaranteed to sit in the 3x3 block around the center.
// It never exceeds StoredPrecision, since longer prefixes cannot match stored keys.
// Near the poles even precision 1 may not be wide enough; see SearchArea.
func CoverPrecision(lat, radiusMiles float64) int {
	p := PrecisionForRadius(radiusMiles)
	if p > StoredPrecision {
		p = StoredPrecision
	}
	for p > 1 && !covers(lat, radiusMiles, p) {
		p--
	}
	return p
}

// covers reports whether one cell at precision p spans the radius in both axes.
func covers(lat, radiusMiles float64, p int) bool {
	delta := radiusMiles / EarthRadiusMiles
	latDeg, lonDeg := CellSize(p)
	return latDeg >= delta*180/math.Pi && lonDeg >= lonSpan(lat, delta)
}

// lonSpan is the widest longitude offset (degrees) reached by a circle of
// angular radius delta centered at lat. 360 when the circle holds a pole.
func lonSpan(lat, delta float64) float64 {
	s := math.Sin(delta) / math.Cos(lat*math.Pi/180)
	if s >= 1 || math.IsNaN(s) || math.IsInf(s, 0) {
		return 360
	}
	return math.Asin(s) * 180 / math.Pi
}

// CandidateKeys returns the center key and its 8 neighbors, in the order
// center, N, NE, E, SE, S, SW, W, NW. Callers prefix-match stored keys
// against these, then post-filter by DistanceMiles.
func CandidateKeys(lat, lon, radiusMiles float64) []string {
	p := CoverPrecision(lat, radiusMiles)
	center := Encode(lat, lon, p)

	keys := make([]string, 0, 9)
	keys = append(keys, center)
	for d := North; d <= NorthWest; d++ {
		n, _ := Neighbor(center, d) // center は Encode 済みなので失敗しない
		keys = append(keys, n)
	}
	return keys
}

// boxSlack widens the bounding box a little so float rounding never drops
// a point sitting exactly on the radius.
const boxSlack = 1e-6

// Area is what storage filters on for a radius query. The lat/lon box always
// holds the whole circle. Keys holds the 9 candidate prefixes when the 3x3
// block covers the circle, and is nil otherwise (near the poles), in which case
// the box alone is the candidate filter.
type Area struct {
	Keys []string

	MinLat, MaxLat float64
	// MinLon > MaxLon のときは antimeridian を跨ぐ
	MinLon, MaxLon float64
	AllLon         bool
}

// CrossesAntimeridian reports a longitude range that wraps past 180.
func (a Area) CrossesAntimeridian() bool {
	return !a.AllLon && a.MinLon > a.MaxLon
}

// SearchArea builds the candidate filter for a radius query around (lat, lon).
func SearchArea(lat, lon, radiusMiles float64) Area {
	delta := radiusMiles / EarthRadiusMiles
	dLat := delta*180/math.Pi + boxSlack

	a := Area{MinLat: lat - dLat, MaxLat: lat + dLat, MinLon: -180, MaxLon: 180}
	if a.MinLat <= -90 || a.MaxLat >= 90 {
		// 極を含む: 緯度帯だけで絞る
		a.MinLat = math.Max(a.MinLat, -90)
		a.MaxLat = math.Min(a.MaxLat, 90)
		a.AllLon = true
	} else if dLon := lonSpan(lat, delta) + boxSlack; dLon >= 180 {
		a.AllLon = true
	} else {
		a.MinLon, a.MaxLon = lon-dLon, lon+dLon
		if a.MinLon < -180 {
			a.MinLon += 360
		}
		if a.MaxLon > 180 {
			a.MaxLon -= 360
		}
	}

	if covers(lat, radiusMiles, CoverPrecision(lat, radiusMiles)) {
		a.Keys = CandidateKeys(lat, lon, radiusMiles)
	}
	return a
}
