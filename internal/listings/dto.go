package listings

import "time"

type CreateListingRequest struct {
	Title               string   `json:"title" binding:"required"`
	Author              string   `json:"author" binding:"required"`
	ISBN                *string  `json:"isbn,omitempty"`
	Publisher           *string  `json:"publisher,omitempty"`
	CoverURL            *string  `json:"cover_url,omitempty"`
	Description         *string  `json:"description,omitempty"`
	PageCount           *int     `json:"page_count,omitempty"`
	Condition           string   `json:"condition" binding:"required"`
	ListingType         *string  `json:"listing_type,omitempty"` // 未指定なら Lend
	Latitude            *float64 `json:"latitude,omitempty"`
	Longitude           *float64 `json:"longitude,omitempty"`
	LendingDurationDays *int     `json:"lending_duration_days,omitempty"`
	Tags                []string `json:"tags,omitempty"`
}

// 部分更新。nil のフィールドは変更しない
type UpdateListingRequest struct {
	Title               *string  `json:"title,omitempty"`
	Author              *string  `json:"author,omitempty"`
	ISBN                *string  `json:"isbn,omitempty"`
	Publisher           *string  `json:"publisher,omitempty"`
	CoverURL            *string  `json:"cover_url,omitempty"`
	Description         *string  `json:"description,omitempty"`
	PageCount           *int     `json:"page_count,omitempty"`
	Condition           *string  `json:"condition,omitempty"`
	ListingType         *string  `json:"listing_type,omitempty"`
	Status              *string  `json:"status,omitempty"`
	Latitude            *float64 `json:"latitude,omitempty"`
	Longitude           *float64 `json:"longitude,omitempty"`
	LendingDurationDays *int     `json:"lending_duration_days,omitempty"`
	Tags                []string `json:"tags,omitempty"`
}

type ListingResponse struct {
	ID                  string    `json:"id"`
	OwnerID             string    `json:"owner_id"`
	Title               string    `json:"title"`
	Author              string    `json:"author"`
	ISBN                *string   `json:"isbn,omitempty"`
	Publisher           *string   `json:"publisher,omitempty"`
	CoverURL            *string   `json:"cover_url,omitempty"`
	Description         *string   `json:"description,omitempty"`
	PageCount           *int64    `json:"page_count,omitempty"`
	Condition           string    `json:"condition"`
	ListingType         string    `json:"listing_type"`
	Status              string    `json:"status"`
	Latitude            *float64  `json:"latitude,omitempty"`
	Longitude           *float64  `json:"longitude,omitempty"`
	Geohash             *string   `json:"geohash,omitempty"`
	LendingDurationDays int       `json:"lending_duration_days"`
	Tags                []string  `json:"tags"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type SearchParams struct {
	Query       string
	Lat         *float64
	Lon         *float64
	RadiusMiles *float64
	Condition   string
	ListingType string
	SearcherID  string
}

type SearchHit struct {
	ListingResponse
	DistanceMiles  float64 `json:"distance_miles"`
	OwnerName      string  `json:"owner_name"`
	OwnerAvgRating float64 `json:"owner_avg_rating"`
}

type SearchResult struct {
	Items       []SearchHit `json:"items"`
	Total       int         `json:"total"`
	RadiusMiles float64     `json:"radius_miles"`
	Center      [2]float64  `json:"center"`
}

type ListResult struct {
	Items      []ListingResponse `json:"items"`
	Total      int64             `json:"total"`
	NextOffset int               `json:"next_offset"`
}
