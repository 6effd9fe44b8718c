package listings

import (
	"context"
	"database/sql"
	"strings"

	"bookshare-backend/internal/geo"
	"bookshare-backend/internal/platform/apierr"
	"bookshare-backend/internal/platform/db"
	"bookshare-backend/internal/platform/httpx"
	"bookshare-backend/internal/platform/ids"
)

type Service struct {
	store           *Store
	clock           ids.Clock
	id              ids.IDGen
	defaultDuration int
}

func NewService(d *db.DB, defaultDurationDays int) *Service {
	if defaultDurationDays <= 0 {
		defaultDurationDays = DefaultDurationDays
	}
	return &Service{
		store:           NewStore(d),
		clock:           ids.RealClock{},
		id:              ids.NewULIDGen(),
		defaultDuration: defaultDurationDays,
	}
}

// POST /books
func (s *Service) Create(ctx context.Context, ownerID string, in CreateListingRequest) (ListingResponse, error) {
	title, author := strings.TrimSpace(in.Title), strings.TrimSpace(in.Author)
	if title == "" || author == "" {
		return ListingResponse{}, apierr.Invalid("title and author are required")
	}
	cond := Condition(in.Condition)
	if !cond.Valid() {
		return ListingResponse{}, apierr.Invalid("condition must be one of New, Good, Acceptable")
	}
	lt := TypeLend
	if in.ListingType != nil && *in.ListingType != "" {
		lt = ListingType(*in.ListingType)
		if !lt.Valid() {
			return ListingResponse{}, apierr.Invalid("listing_type must be one of Lend, Exchange, Both")
		}
	}
	duration := s.defaultDuration
	if in.LendingDurationDays != nil {
		duration = *in.LendingDurationDays
	}
	if err := validateDuration(duration); err != nil {
		return ListingResponse{}, err
	}
	if err := validateCoords(in.Latitude, in.Longitude); err != nil {
		return ListingResponse{}, err
	}
	if in.PageCount != nil && *in.PageCount <= 0 {
		return ListingResponse{}, apierr.Invalid("page_count must be > 0")
	}
	tags, err := cleanTags(in.Tags)
	if err != nil {
		return ListingResponse{}, err
	}

	now := s.clock.Now()
	l := &Listing{
		ID:                  s.id.NewULID(now),
		OwnerID:             ownerID,
		Title:               title,
		Author:              author,
		ISBN:                toNullString(in.ISBN),
		Publisher:           toNullString(in.Publisher),
		CoverURL:            toNullString(in.CoverURL),
		Description:         toNullString(in.Description),
		PageCount:           toNullInt(in.PageCount),
		Condition:           cond,
		ListingType:         lt,
		Status:              StatusAvailable,
		LendingDurationDays: duration,
		Tags:                tags,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	setCoords(l, in.Latitude, in.Longitude)

	if err := s.store.Insert(ctx, l); err != nil {
		return ListingResponse{}, err
	}
	return toResponse(l), nil
}

func (s *Service) Get(ctx context.Context, id string) (ListingResponse, error) {
	l, err := s.store.GetByID(ctx, id)
	if err != nil {
		return ListingResponse{}, err
	}
	return toResponse(l), nil
}

// PUT /books/:id
// 貸出中（PendingPickup/InTransit）は所有者でも触れない
func (s *Service) Update(ctx context.Context, id, actorID string, in UpdateListingRequest) (ListingResponse, error) {
	if in.Status != nil {
		st := Status(*in.Status)
		if st != StatusAvailable && st != StatusUnavailable {
			return ListingResponse{}, apierr.Invalid("status can only be set to Available or Unavailable")
		}
	}
	tags, err := cleanTags(in.Tags)
	if err != nil {
		return ListingResponse{}, err
	}

	l, err := s.store.ExecUpdate(ctx, id, actorID, s.clock.Now(), func(l *Listing) error {
		if l.Status.Held() {
			return apierr.Conflict("Cannot update a book that is in an active transaction")
		}
		return applyUpdate(l, in, tags)
	})
	if err != nil {
		return ListingResponse{}, err
	}
	return toResponse(l), nil
}

func applyUpdate(l *Listing, in UpdateListingRequest, tags []string) error {
	if in.Title != nil {
		if strings.TrimSpace(*in.Title) == "" {
			return apierr.Invalid("title cannot be empty")
		}
		l.Title = strings.TrimSpace(*in.Title)
	}
	if in.Author != nil {
		if strings.TrimSpace(*in.Author) == "" {
			return apierr.Invalid("author cannot be empty")
		}
		l.Author = strings.TrimSpace(*in.Author)
	}
	if in.ISBN != nil {
		l.ISBN = toNullString(in.ISBN)
	}
	if in.Publisher != nil {
		l.Publisher = toNullString(in.Publisher)
	}
	if in.CoverURL != nil {
		l.CoverURL = toNullString(in.CoverURL)
	}
	if in.Description != nil {
		l.Description = toNullString(in.Description)
	}
	if in.PageCount != nil {
		if *in.PageCount <= 0 {
			return apierr.Invalid("page_count must be > 0")
		}
		l.PageCount = toNullInt(in.PageCount)
	}
	if in.Condition != nil {
		c := Condition(*in.Condition)
		if !c.Valid() {
			return apierr.Invalid("condition must be one of New, Good, Acceptable")
		}
		l.Condition = c
	}
	if in.ListingType != nil {
		t := ListingType(*in.ListingType)
		if !t.Valid() {
			return apierr.Invalid("listing_type must be one of Lend, Exchange, Both")
		}
		l.ListingType = t
	}
	if in.Status != nil {
		l.Status = Status(*in.Status)
	}
	if in.LendingDurationDays != nil {
		if err := validateDuration(*in.LendingDurationDays); err != nil {
			return err
		}
		l.LendingDurationDays = *in.LendingDurationDays
	}
	if in.Tags != nil {
		l.Tags = tags
	}

	// 座標は片方だけの更新も受け付け、既存値と合わせて検証してから geohash を引き直す
	if in.Latitude != nil || in.Longitude != nil {
		lat, lon := nullToFloat(l.Latitude), nullToFloat(l.Longitude)
		if in.Latitude != nil {
			lat = in.Latitude
		}
		if in.Longitude != nil {
			lon = in.Longitude
		}
		if err := validateCoords(lat, lon); err != nil {
			return err
		}
		setCoords(l, lat, lon)
	}
	return nil
}

// DELETE /books/:id
func (s *Service) Delete(ctx context.Context, id, actorID string) error {
	return s.store.ExecDelete(ctx, id, actorID, s.clock.Now())
}

// GET /books/mine
func (s *Service) ListMine(ctx context.Context, ownerID string, p httpx.Page) (ListResult, error) {
	p = p.Normalize()
	rows, total, err := s.store.ListByOwner(ctx, ownerID, p)
	if err != nil {
		return ListResult{}, err
	}
	items := make([]ListingResponse, 0, len(rows))
	for i := range rows {
		items = append(items, toResponse(&rows[i]))
	}
	return ListResult{Items: items, Total: total, NextOffset: p.NextOffset(total)}, nil
}

// -------------- validation & helpers --------------

func validateDuration(days int) error {
	if days < 1 || days > MaxDurationDays {
		return apierr.Invalid("lending_duration_days must be between 1 and 90")
	}
	return nil
}

func validateCoords(lat, lon *float64) error {
	if lat == nil && lon == nil {
		return nil
	}
	if lat == nil || lon == nil {
		return apierr.Invalid("latitude and longitude must be provided together")
	}
	if !geo.ValidCoordinates(*lat, *lon) {
		return apierr.Invalid("Invalid coordinates")
	}
	return nil
}

func setCoords(l *Listing, lat, lon *float64) {
	l.Latitude, l.Longitude = toNullFloat(lat), toNullFloat(lon)
	l.Geohash = sql.NullString{}
	if gh := geo.EncodeOptional(lat, lon, geo.StoredPrecision); gh != "" {
		l.Geohash = sql.NullString{String: gh, Valid: true}
	}
}

func cleanTags(in []string) ([]string, error) {
	if in == nil {
		return nil, nil
	}
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		out = append(out, t)
	}
	if len(out) > maxTags {
		return nil, apierr.Invalid("at most 20 tags are allowed")
	}
	return out, nil
}

func toResponse(l *Listing) ListingResponse {
	tags := l.Tags
	if tags == nil {
		tags = []string{}
	}
	r := ListingResponse{
		ID:                  l.ID,
		OwnerID:             l.OwnerID,
		Title:               l.Title,
		Author:              l.Author,
		ISBN:                nullToPtr(l.ISBN),
		Publisher:           nullToPtr(l.Publisher),
		CoverURL:            nullToPtr(l.CoverURL),
		Description:         nullToPtr(l.Description),
		Condition:           string(l.Condition),
		ListingType:         string(l.ListingType),
		Status:              string(l.Status),
		Latitude:            nullToFloat(l.Latitude),
		Longitude:           nullToFloat(l.Longitude),
		Geohash:             nullToPtr(l.Geohash),
		LendingDurationDays: l.LendingDurationDays,
		Tags:                tags,
		CreatedAt:           l.CreatedAt,
		UpdatedAt:           l.UpdatedAt,
	}
	if l.PageCount.Valid {
		v := l.PageCount.Int64
		r.PageCount = &v
	}
	return r
}

func toNullString(s *string) (ns sql.NullString) {
	if s != nil && strings.TrimSpace(*s) != "" {
		ns.Valid, ns.String = true, strings.TrimSpace(*s)
	}
	return
}

func toNullInt(v *int) (n sql.NullInt64) {
	if v != nil {
		n.Valid, n.Int64 = true, int64(*v)
	}
	return
}

func toNullFloat(v *float64) (n sql.NullFloat64) {
	if v != nil {
		n.Valid, n.Float64 = true, *v
	}
	return
}

func nullToPtr(ns sql.NullString) *string {
	if ns.Valid {
		v := ns.String
		return &v
	}
	return nil
}

func nullToFloat(n sql.NullFloat64) *float64 {
	if n.Valid {
		v := n.Float64
		return &v
	}
	return nil
}
