package users

import (
	"database/sql"
	"time"
)

// User は users テーブルの1行（password_hash は除く）
type User struct {
	ID                    string
	Email                 string
	Name                  string
	Phone                 sql.NullString
	Role                  string
	DefaultLatitude       sql.NullFloat64
	DefaultLongitude      sql.NullFloat64
	DefaultAddress        sql.NullString
	AvgRating             float64
	TotalRatings          int
	CompletedTransactions int
	ReputationScore       int
	Status                string
	Strikes               int
	CreatedAt             time.Time
}

type receivedRating struct {
	ID            string
	TransactionID string
	RaterID       string
	RaterName     string
	Score         int
	Comment       sql.NullString
	CreatedAt     time.Time
}

// 借り手としての完了取引（期限内返却率の計算用）
type returnRecord struct {
	DueDate    sql.NullTime
	ReturnedAt sql.NullTime
}
