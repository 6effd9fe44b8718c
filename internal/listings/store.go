package listings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookshare-backend/internal/platform/apierr"
	"bookshare-backend/internal/platform/db"
	"bookshare-backend/internal/platform/httpx"
	"bookshare-backend/internal/platform/textkey"
)

const listingCols = `b.id, b.owner_id, b.title, b.author, b.isbn, b.publisher, b.cover_url, b.description, b.page_count,
	b.book_condition, b.listing_type, b.status, b.latitude, b.longitude, b.geohash, b.lending_duration_days,
	b.tags, b.created_at, b.updated_at`

type Store struct {
	db *db.DB
}

func NewStore(d *db.DB) *Store { return &Store{db: d} }

type scanner interface {
	Scan(dest ...any) error
}

func scanListing(sc scanner, l *Listing, extra ...any) error {
	var tags sql.NullString
	dest := []any{
		&l.ID, &l.OwnerID, &l.Title, &l.Author, &l.ISBN, &l.Publisher, &l.CoverURL, &l.Description, &l.PageCount,
		&l.Condition, &l.ListingType, &l.Status, &l.Latitude, &l.Longitude, &l.Geohash, &l.LendingDurationDays,
		&tags, &l.CreatedAt, &l.UpdatedAt,
	}
	if err := sc.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	l.Tags = []string{}
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &l.Tags); err != nil {
			return fmt.Errorf("books.tags: %w", err)
		}
	}
	return nil
}

func tagsJSON(tags []string) (any, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// searchKeys は検索用に畳んだ title/author と ISBN
func searchKeys(l *Listing) (text string, isbn any) {
	if l.ISBN.Valid && l.ISBN.String != "" {
		isbn = textkey.ISBN(l.ISBN.String)
	}
	return textkey.Listing(l.Title, l.Author), isbn
}

func (s *Store) Insert(ctx context.Context, l *Listing) error {
	tags, err := tagsJSON(l.Tags)
	if err != nil {
		return err
	}
	const q = `
	INSERT INTO books
	(id, owner_id, title, author, isbn, publisher, cover_url, description, page_count,
	 book_condition, listing_type, status, latitude, longitude, geohash, lending_duration_days, tags,
	 search_text, isbn_key, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	text, isbn := searchKeys(l)
	return s.db.WithRetry(ctx, func(ctx context.Context, q2 db.DBTX) error {
		_, err := q2.ExecContext(ctx, q,
			l.ID, l.OwnerID, l.Title, l.Author, l.ISBN, l.Publisher, l.CoverURL, l.Description, l.PageCount,
			l.Condition, l.ListingType, l.Status, l.Latitude, l.Longitude, l.Geohash, l.LendingDurationDays,
			tags, text, isbn, l.CreatedAt, l.UpdatedAt,
		)
		if db.IsForeignKey(err) {
			return apierr.NotFound("owner not found")
		}
		return err
	})
}

func (s *Store) GetByID(ctx context.Context, id string) (*Listing, error) {
	q := `SELECT ` + listingCols + ` FROM books b WHERE b.id = ? AND b.deleted_at IS NULL`
	var l Listing
	err := s.db.WithRetry(ctx, func(ctx context.Context, q2 db.DBTX) error {
		return scanListing(q2.QueryRowContext(ctx, q, id), &l)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.NotFound("Book not found")
		}
		return nil, err
	}
	return &l, nil
}

func (s *Store) getForUpdate(ctx context.Context, tx db.DBTX, id string) (*Listing, error) {
	q := `SELECT ` + listingCols + ` FROM books b WHERE b.id = ? AND b.deleted_at IS NULL` + s.db.ForUpdate()
	var l Listing
	if err := scanListing(tx.QueryRowContext(ctx, q, id), &l); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.NotFound("Book not found")
		}
		return nil, err
	}
	return &l, nil
}

// ---- Transactional Methods ----

// ExecUpdate locks the row, checks ownership, applies fn and writes the result back.
func (s *Store) ExecUpdate(ctx context.Context, id, actorID string, now time.Time, apply func(l *Listing) error) (*Listing, error) {
	var out *Listing
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		l, err := s.getForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if l.OwnerID != actorID {
			return apierr.Forbidden("Not authorized to update this book")
		}
		if err := apply(l); err != nil {
			return err
		}
		l.UpdatedAt = now

		tags, err := tagsJSON(l.Tags)
		if err != nil {
			return err
		}
		const q = `
		UPDATE books SET
		  title = ?, author = ?, isbn = ?, publisher = ?, cover_url = ?, description = ?, page_count = ?,
		  book_condition = ?, listing_type = ?, status = ?, latitude = ?, longitude = ?, geohash = ?,
		  lending_duration_days = ?, tags = ?, search_text = ?, isbn_key = ?, updated_at = ?
		WHERE id = ?`
		text, isbn := searchKeys(l)
		if _, err := tx.ExecContext(ctx, q,
			l.Title, l.Author, l.ISBN, l.Publisher, l.CoverURL, l.Description, l.PageCount,
			l.Condition, l.ListingType, l.Status, l.Latitude, l.Longitude, l.Geohash,
			l.LendingDurationDays, tags, text, isbn, l.UpdatedAt, l.ID,
		); err != nil {
			return err
		}
		out = l
		return nil
	})
	return out, err
}

// ExecDelete soft-removes the listing; past transactions keep pointing at it.
func (s *Store) ExecDelete(ctx context.Context, id, actorID string, now time.Time) error {
	return s.db.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		l, err := s.getForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if l.OwnerID != actorID {
			return apierr.Forbidden("Not authorized to delete this book")
		}
		if l.Status.Held() {
			return apierr.Conflict("Cannot delete a book that is in an active transaction")
		}
		const q = `UPDATE books SET deleted_at = ?, status = ?, updated_at = ? WHERE id = ?`
		_, err = tx.ExecContext(ctx, q, now, StatusUnavailable, now, id)
		return err
	})
}

func (s *Store) ListByOwner(ctx context.Context, ownerID string, p httpx.Page) ([]Listing, int64, error) {
	q := fmt.Sprintf(`SELECT %s FROM books b WHERE b.owner_id = ? AND b.deleted_at IS NULL
		ORDER BY b.created_at %s, b.id %s LIMIT ? OFFSET ?`, listingCols, p.Order, p.Order)
	const cq = `SELECT COUNT(*) FROM books WHERE owner_id = ? AND deleted_at IS NULL`

	var (
		out   []Listing
		total int64
	)
	err := s.db.WithRetry(ctx, func(ctx context.Context, q2 db.DBTX) error {
		out = out[:0]
		rows, err := q2.QueryContext(ctx, q, ownerID, p.Limit, p.Offset)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var l Listing
			if err := scanListing(rows, &l); err != nil {
				return err
			}
			out = append(out, l)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		return q2.QueryRowContext(ctx, cq, ownerID).Scan(&total)
	})
	return out, total, err
}

// SearchCandidates returns available books inside the search area that match
// the folded query text. The area over-includes; callers refine by exact distance.
// No row cap here: a cap before the distance filter would drop real hits.
func (s *Store) SearchCandidates(ctx context.Context, f candidateFilter) ([]candidateRow, error) {
	sb := strings.Builder{}
	sb.WriteString(`
	SELECT ` + listingCols + `, u.name, u.avg_rating
	FROM books b
	JOIN users u ON u.id = b.owner_id
	WHERE b.status = ? AND u.status = 'active' AND b.deleted_at IS NULL AND b.geohash IS NOT NULL`)
	args := []any{StatusAvailable}

	if f.ExcludeOwner != "" {
		sb.WriteString(` AND b.owner_id <> ?`)
		args = append(args, f.ExcludeOwner)
	}

	// 緯度経度の範囲。極付近で 3x3 セルが覆えないときはこれだけで絞る
	a := f.Area
	sb.WriteString(` AND b.latitude BETWEEN ? AND ?`)
	args = append(args, a.MinLat, a.MaxLat)
	switch {
	case a.AllLon:
	case a.CrossesAntimeridian():
		sb.WriteString(` AND (b.longitude >= ? OR b.longitude <= ?)`)
		args = append(args, a.MinLon, a.MaxLon)
	default:
		sb.WriteString(` AND b.longitude BETWEEN ? AND ?`)
		args = append(args, a.MinLon, a.MaxLon)
	}
	if len(a.Keys) > 0 {
		likes := make([]string, 0, len(a.Keys))
		for _, p := range a.Keys {
			likes = append(likes, `b.geohash LIKE ?`)
			args = append(args, p+"%")
		}
		sb.WriteString(` AND (` + strings.Join(likes, " OR ") + `)`)
	}

	if f.Text != "" {
		if f.ISBN != "" {
			sb.WriteString(` AND (b.search_text LIKE ? ESCAPE '!' OR b.isbn_key LIKE ? ESCAPE '!')`)
			args = append(args, textkey.LikePattern(f.Text), textkey.LikePattern(f.ISBN))
		} else {
			sb.WriteString(` AND b.search_text LIKE ? ESCAPE '!'`)
			args = append(args, textkey.LikePattern(f.Text))
		}
	}
	if f.Condition != "" {
		sb.WriteString(` AND b.book_condition = ?`)
		args = append(args, f.Condition)
	}
	if f.ListingType != "" {
		// Both はどちらの検索にも出す
		sb.WriteString(` AND (b.listing_type = ? OR b.listing_type = ?)`)
		args = append(args, f.ListingType, TypeBoth)
	}

	var out []candidateRow
	err := s.db.WithRetry(ctx, func(ctx context.Context, q2 db.DBTX) error {
		out = out[:0]
		rows, err := q2.QueryContext(ctx, sb.String(), args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r candidateRow
			if err := scanListing(rows, &r.Listing, &r.OwnerName, &r.OwnerAvgRating); err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}

// DefaultLocation は検索者の登録済み既定位置（未登録なら nil）
func (s *Store) DefaultLocation(ctx context.Context, userID string) (lat, lon *float64, err error) {
	const q = `SELECT default_latitude, default_longitude FROM users WHERE id = ?`
	var la, lo sql.NullFloat64
	err = s.db.WithRetry(ctx, func(ctx context.Context, q2 db.DBTX) error {
		return q2.QueryRowContext(ctx, q, userID).Scan(&la, &lo)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	if la.Valid && lo.Valid {
		return &la.Float64, &lo.Float64, nil
	}
	return nil, nil, nil
}
