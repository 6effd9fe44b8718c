// Package testutil provides helpers shared by package tests: a migrated
// SQLite database in a temp dir, a controllable clock and row fixtures.
package testutil

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"bookshare-backend/internal/platform/db"
	"bookshare-backend/internal/platform/ids"
	"bookshare-backend/internal/platform/textkey"
)

// NewDB opens a fresh migrated SQLite database for one test.
func NewDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := db.Migrate(context.Background(), d); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	return d
}

// Clock is a fixed clock that only moves when told to.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{t: t.UTC()} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var idGen = ids.NewULIDGen()

type UserOpts struct {
	Name        string
	Email       string
	Role        string
	Status      string
	AvgRating   float64
	RatingCount int
	CreatedAt   time.Time
}

// CreateUser inserts a user row and returns its id.
func CreateUser(t *testing.T, d *db.DB, o UserOpts) string {
	t.Helper()
	id := idGen.NewULID(time.Now())
	if o.Name == "" {
		o.Name = "user-" + id[len(id)-6:]
	}
	if o.Email == "" {
		o.Email = id + "@example.com"
	}
	if o.Role == "" {
		o.Role = "user"
	}
	if o.Status == "" {
		o.Status = "active"
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	_, err := d.Exec(`INSERT INTO users (id, email, password_hash, name, role, status, avg_rating, total_ratings, created_at)
		VALUES (?, ?, 'x', ?, ?, ?, ?, ?, ?)`,
		id, o.Email, o.Name, o.Role, o.Status, o.AvgRating, o.RatingCount, o.CreatedAt)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return id
}

type BookOpts struct {
	Title        string
	Author       string
	Lat, Lon     *float64
	Status       string
	ListingType  string
	Condition    string
	DurationDays int
}

// CreateBook inserts a listing row directly, bypassing validation.
func CreateBook(t *testing.T, d *db.DB, ownerID string, o BookOpts, geohash string) string {
	t.Helper()
	id := idGen.NewULID(time.Now())
	if o.Title == "" {
		o.Title = "Book " + id[len(id)-4:]
	}
	if o.Author == "" {
		o.Author = "Anon"
	}
	if o.Status == "" {
		o.Status = "Available"
	}
	if o.ListingType == "" {
		o.ListingType = "Lend"
	}
	if o.Condition == "" {
		o.Condition = "Good"
	}
	if o.DurationDays == 0 {
		o.DurationDays = 14
	}
	var gh any
	if geohash != "" {
		gh = geohash
	}
	now := time.Now().UTC()
	_, err := d.Exec(`INSERT INTO books (id, owner_id, title, author, book_condition, listing_type, status,
		latitude, longitude, geohash, lending_duration_days, search_text, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, ownerID, o.Title, o.Author, o.Condition, o.ListingType, o.Status,
		o.Lat, o.Lon, gh, o.DurationDays, textkey.Listing(o.Title, o.Author), now, now)
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}
	return id
}

// Token mints an HS256 bearer token the auth middleware accepts.
func Token(t *testing.T, secret []byte, userID, role string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}

func Float(v float64) *float64 { return &v }

// Destination moves distanceMiles from (lat, lon) along bearingDeg.
func Destination(lat, lon, bearingDeg, distanceMiles float64) (float64, float64) {
	const (
		rad        = math.Pi / 180
		earthMiles = 3959.0
	)
	d := distanceMiles / earthMiles
	phi1, lam1, th := lat*rad, lon*rad, bearingDeg*rad

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(d) + math.Cos(phi1)*math.Sin(d)*math.Cos(th))
	lam2 := lam1 + math.Atan2(math.Sin(th)*math.Sin(d)*math.Cos(phi1), math.Cos(d)-math.Sin(phi1)*math.Sin(phi2))

	lon2 := math.Mod(lam2/rad+540, 360) - 180
	return phi2 / rad, lon2
}
