package lending

import "time"

type CreateTransactionRequest struct {
	BookID  string  `json:"book_id" binding:"required"`
	Message *string `json:"message,omitempty"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

type RateRequest struct {
	Score             int     `json:"score" binding:"required"`
	Timeliness        *int    `json:"timeliness,omitempty"`
	ConditionAccuracy *int    `json:"condition_accuracy,omitempty"`
	Communication     *int    `json:"communication,omitempty"`
	Comment           *string `json:"comment,omitempty"`
}

type TransactionResponse struct {
	ID                      string     `json:"id"`
	BookID                  string     `json:"book_id"`
	OwnerID                 string     `json:"owner_id"`
	BorrowerID              string     `json:"borrower_id"`
	Status                  string     `json:"status"`
	OwnerConfirmedPickup    bool       `json:"owner_confirmed_pickup"`
	BorrowerConfirmedPickup bool       `json:"borrower_confirmed_pickup"`
	ReturnConfirmed         bool       `json:"return_confirmed"`
	DueDate                 *time.Time `json:"due_date,omitempty"`
	PickedUpAt              *time.Time `json:"picked_up_at,omitempty"`
	ReturnedAt              *time.Time `json:"returned_at,omitempty"`
	RejectionReason         *string    `json:"rejection_reason,omitempty"`
	Message                 *string    `json:"message,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`

	BookTitle      string  `json:"book_title"`
	BookAuthor     string  `json:"book_author"`
	BookCover      *string `json:"book_cover,omitempty"`
	OwnerName      string  `json:"owner_name"`
	OwnerRating    float64 `json:"owner_rating"`
	BorrowerName   string  `json:"borrower_name"`
	BorrowerRating float64 `json:"borrower_rating"`
}

type RatingResponse struct {
	ID                string    `json:"id"`
	RaterID           string    `json:"rater_id"`
	RaterName         string    `json:"rater_name"`
	RatedID           string    `json:"rated_id"`
	Score             int       `json:"score"`
	Timeliness        *int64    `json:"timeliness,omitempty"`
	ConditionAccuracy *int64    `json:"condition_accuracy,omitempty"`
	Communication     *int64    `json:"communication,omitempty"`
	Comment           *string   `json:"comment,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

type TransactionDetail struct {
	TransactionResponse
	Ratings []RatingResponse `json:"ratings"`
}

type ListResult struct {
	Items      []TransactionResponse `json:"items"`
	Total      int64                 `json:"total"`
	NextOffset int                   `json:"next_offset"`
}

type SweepResult struct {
	Marked int64 `json:"marked"`
}
