package disputes

import (
	"database/sql"
	"time"
)

type Status string

const (
	StatusOpen        Status = "Open"
	StatusUnderReview Status = "UnderReview"
	StatusResolved    Status = "Resolved"
	StatusClosed      Status = "Closed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusUnderReview, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// Dispute は disputes テーブルの1行を表す
type Dispute struct {
	ID            string
	TransactionID string
	ReporterID    string
	ReportedID    string
	Reason        string
	Description   sql.NullString
	EvidenceURLs  []string
	Status        Status
	Resolution    sql.NullString
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (d *Dispute) IsParty(userID string) bool {
	return userID != "" && (userID == d.ReporterID || userID == d.ReportedID)
}

type disputeView struct {
	Dispute
	BookID            string
	BookTitle         string
	TransactionStatus string
	ReporterName      string
	ReportedName      string
}
