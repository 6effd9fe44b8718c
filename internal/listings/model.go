package listings

import (
	"database/sql"
	"time"

	"bookshare-backend/internal/geo"
)

type Condition string

const (
	ConditionNew        Condition = "New"
	ConditionGood       Condition = "Good"
	ConditionAcceptable Condition = "Acceptable"
)

func (c Condition) Valid() bool {
	switch c {
	case ConditionNew, ConditionGood, ConditionAcceptable:
		return true
	}
	return false
}

type ListingType string

const (
	TypeLend     ListingType = "Lend"
	TypeExchange ListingType = "Exchange"
	TypeBoth     ListingType = "Both"
)

func (t ListingType) Valid() bool {
	switch t {
	case TypeLend, TypeExchange, TypeBoth:
		return true
	}
	return false
}

type Status string

const (
	StatusAvailable     Status = "Available"
	StatusPendingPickup Status = "PendingPickup"
	StatusInTransit     Status = "InTransit"
	StatusUnavailable   Status = "Unavailable"
)

// Held reports whether a lending transaction currently owns the status.
func (s Status) Held() bool {
	return s == StatusPendingPickup || s == StatusInTransit
}

const (
	DefaultDurationDays = 14
	MaxDurationDays     = 90
	maxTags             = 20
)

// Listing は books テーブルの1行を表す
type Listing struct {
	ID                  string
	OwnerID             string
	Title               string
	Author              string
	ISBN                sql.NullString
	Publisher           sql.NullString
	CoverURL            sql.NullString
	Description         sql.NullString
	PageCount           sql.NullInt64
	Condition           Condition
	ListingType         ListingType
	Status              Status
	Latitude            sql.NullFloat64
	Longitude           sql.NullFloat64
	Geohash             sql.NullString
	LendingDurationDays int
	Tags                []string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// 検索候補（オーナー情報付き）
type candidateRow struct {
	Listing
	OwnerName      string
	OwnerAvgRating float64
}

type candidateFilter struct {
	Area geo.Area

	// Text と ISBN は textkey で畳んだ検索語。空なら絞らない
	Text         string
	ISBN         string
	ExcludeOwner string
	Condition    Condition
	ListingType  ListingType
}
