package listings

import (
	"context"
	"math"
	"sort"
	"strings"

	"bookshare-backend/internal/geo"
	"bookshare-backend/internal/platform/apierr"
	"bookshare-backend/internal/platform/textkey"
)

const (
	DefaultRadiusMiles = 10.0
	MinRadiusMiles     = 0.5
	MaxRadiusMiles     = 100.0

	// 上限は距離で絞った後にだけかける
	resultLimit = 50
)

// GET /books/search
func (s *Service) Search(ctx context.Context, p SearchParams) (SearchResult, error) {
	lat, lon := p.Lat, p.Lon
	if lat == nil && lon == nil && p.SearcherID != "" {
		var err error
		if lat, lon, err = s.store.DefaultLocation(ctx, p.SearcherID); err != nil {
			return SearchResult{}, err
		}
	}
	if lat == nil || lon == nil {
		return SearchResult{}, apierr.Invalid("lat and lon are required")
	}
	if !geo.ValidCoordinates(*lat, *lon) {
		return SearchResult{}, apierr.Invalid("Invalid coordinates")
	}

	radius := DefaultRadiusMiles
	if p.RadiusMiles != nil {
		radius = *p.RadiusMiles
	}
	if radius < MinRadiusMiles || radius > MaxRadiusMiles || math.IsNaN(radius) {
		return SearchResult{}, apierr.Invalid("radius must be between 0.5 and 100 miles")
	}

	m := newTextMatcher(p.Query)
	f := candidateFilter{
		Area:         geo.SearchArea(*lat, *lon, radius),
		Text:         m.needle,
		ISBN:         m.isbn,
		ExcludeOwner: p.SearcherID,
	}
	if p.Condition != "" {
		f.Condition = Condition(p.Condition)
		if !f.Condition.Valid() {
			return SearchResult{}, apierr.Invalid("condition must be one of New, Good, Acceptable")
		}
	}
	if p.ListingType != "" {
		f.ListingType = ListingType(p.ListingType)
		if !f.ListingType.Valid() {
			return SearchResult{}, apierr.Invalid("listing_type must be one of Lend, Exchange, Both")
		}
	}

	rows, err := s.store.SearchCandidates(ctx, f)
	if err != nil {
		return SearchResult{}, err
	}

	hits := refine(rows, m, *lat, *lon, radius)
	if len(hits) > resultLimit {
		hits = hits[:resultLimit]
	}
	return SearchResult{
		Items:       hits,
		Total:       len(hits),
		RadiusMiles: radius,
		Center:      [2]float64{*lat, *lon},
	}, nil
}

// refine drops candidates outside the radius or not matching the query and
// orders the rest by ascending distance.
func refine(rows []candidateRow, m textMatcher, lat, lon, radius float64) []SearchHit {
	type scored struct {
		hit  SearchHit
		dist float64
	}
	var kept []scored
	for i := range rows {
		r := &rows[i]
		if !r.Latitude.Valid || !r.Longitude.Valid {
			continue
		}
		if !m.match(r.Title, r.Author, r.ISBN.String) {
			continue
		}
		d := geo.DistanceMiles(lat, lon, r.Latitude.Float64, r.Longitude.Float64)
		if d > radius {
			continue
		}
		kept = append(kept, scored{
			hit: SearchHit{
				ListingResponse: toResponse(&r.Listing),
				DistanceMiles:   math.Round(d*100) / 100,
				OwnerName:       r.OwnerName,
				OwnerAvgRating:  r.OwnerAvgRating,
			},
			dist: d,
		})
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].dist != kept[j].dist {
			return kept[i].dist < kept[j].dist
		}
		return kept[i].hit.ID < kept[j].hit.ID
	})

	out := make([]SearchHit, 0, len(kept))
	for _, k := range kept {
		out = append(out, k.hit)
	}
	return out
}

// textMatcher は NFKC 正規化 + case folding した部分一致。空クエリは全件一致。
// storage 側の LIKE は照合順序次第で緩いことがあるので最後にここで確定させる
type textMatcher struct {
	needle string
	isbn   string
}

func newTextMatcher(q string) textMatcher {
	return textMatcher{needle: textkey.Fold(q), isbn: textkey.ISBN(q)}
}

func (m textMatcher) match(title, author, isbn string) bool {
	if m.needle == "" {
		return true
	}
	if strings.Contains(textkey.Fold(title), m.needle) || strings.Contains(textkey.Fold(author), m.needle) {
		return true
	}
	// ISBN はハイフン有無を吸収
	return m.isbn != "" && isbn != "" && strings.Contains(textkey.ISBN(isbn), m.isbn)
}
