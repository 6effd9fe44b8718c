package users

import (
	"time"

	"bookshare-backend/internal/reputation"
)

type MeResponse struct {
	ID                    string                `json:"id"`
	Email                 string                `json:"email"`
	Name                  string                `json:"name"`
	Phone                 *string               `json:"phone,omitempty"`
	Role                  string                `json:"role"`
	DefaultLatitude       *float64              `json:"default_latitude,omitempty"`
	DefaultLongitude      *float64              `json:"default_longitude,omitempty"`
	DefaultAddress        *string               `json:"default_address,omitempty"`
	AvgRating             float64               `json:"avg_rating"`
	TotalRatings          int                   `json:"total_ratings"`
	CompletedTransactions int                   `json:"completed_transactions"`
	Status                string                `json:"status"`
	CreatedAt             time.Time             `json:"created_at"`
	Reputation            reputation.Reputation `json:"reputation"`
}

// 部分更新。latitude / longitude はセットで指定する
type UpdateMeRequest struct {
	Name      *string  `json:"name,omitempty"`
	Phone     *string  `json:"phone,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Address   *string  `json:"address,omitempty"`
}

type PublicProfile struct {
	ID                     string                `json:"id"`
	Name                   string                `json:"name"`
	AvgRating              float64               `json:"avg_rating"`
	TotalRatings           int                   `json:"total_ratings"`
	CompletedTransactions  int                   `json:"completed_transactions"`
	OnTimeReturnPercentage int                   `json:"on_time_return_percentage"`
	CreatedAt              time.Time             `json:"created_at"`
	Reputation             reputation.Reputation `json:"reputation"`
}

type RatingItem struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transaction_id"`
	RaterID       string    `json:"rater_id"`
	RaterName     string    `json:"rater_name"`
	Score         int       `json:"score"`
	Comment       *string   `json:"comment,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type RatingList struct {
	Items      []RatingItem `json:"items"`
	Total      int64        `json:"total"`
	NextOffset int          `json:"next_offset"`
}
