package lending

import (
	"database/sql"
	"fmt"
	"time"

	"bookshare-backend/internal/platform/apierr"
)

type State string

const (
	StateRequested State = "Requested"
	StateApproved  State = "Approved"
	StatePickedUp  State = "PickedUp"
	StateCompleted State = "Completed"
	StateRejected  State = "Rejected"
	StateCancelled State = "Cancelled"
	StateDisputed  State = "Disputed"
	StateOverdue   State = "Overdue"
)

func (s State) Valid() bool {
	switch s {
	case StateRequested, StateApproved, StatePickedUp, StateCompleted,
		StateRejected, StateCancelled, StateDisputed, StateOverdue:
		return true
	}
	return false
}

// Possession は本が借り手側に渡っている（または渡す約束がある）状態
func (s State) Possession() bool {
	return s == StateApproved || s == StatePickedUp || s == StateOverdue
}

type Op string

const (
	OpApprove       Op = "approve"
	OpReject        Op = "reject"
	OpCancel        Op = "cancel"
	OpConfirmPickup Op = "confirm pickup for"
	OpConfirmReturn Op = "confirm return for"
	OpMarkOverdue   Op = "mark overdue"
	OpDispute       Op = "dispute"
)

// transitions は唯一の正規遷移表。ここに無い (state, op) は全て不正
// dispute はどの状態からでも Disputed に落とせる
var transitions = map[State]map[Op]State{
	StateRequested: {OpApprove: StateApproved, OpReject: StateRejected, OpCancel: StateCancelled, OpDispute: StateDisputed},
	StateApproved:  {OpConfirmPickup: StatePickedUp, OpCancel: StateCancelled, OpDispute: StateDisputed},
	StatePickedUp:  {OpConfirmReturn: StateCompleted, OpMarkOverdue: StateOverdue, OpDispute: StateDisputed},
	StateOverdue:   {OpConfirmReturn: StateCompleted, OpDispute: StateDisputed},
	StateCompleted: {OpDispute: StateDisputed},
	StateRejected:  {OpDispute: StateDisputed},
	StateCancelled: {OpDispute: StateDisputed},
	StateDisputed:  {OpDispute: StateDisputed},
}

// Next returns the state op leads to from s, or a Conflict naming s.
func Next(s State, op Op) (State, error) {
	if to, ok := transitions[s][op]; ok {
		return to, nil
	}
	return s, apierr.Conflict(fmt.Sprintf("Cannot %s transaction in %s status", op, s))
}

// LoanLimit is the number of concurrent loans a borrower may hold,
// tiered by the average rating they have received.
func LoanLimit(avgRating float64) int {
	switch {
	case avgRating >= 4:
		return 5
	case avgRating >= 3:
		return 3
	default:
		return 2
	}
}

// Transaction は transactions テーブルの1行を表す
type Transaction struct {
	ID                      string
	BookID                  string
	OwnerID                 string
	BorrowerID              string
	Status                  State
	OwnerConfirmedPickup    bool
	BorrowerConfirmedPickup bool
	ReturnConfirmed         bool
	DueDate                 sql.NullTime
	PickedUpAt              sql.NullTime
	ReturnedAt              sql.NullTime
	RejectionReason         sql.NullString
	Message                 sql.NullString
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// EffectiveStatus は読み出し時点での状態。期限切れの PickedUp は Overdue として扱う
func (t *Transaction) EffectiveStatus(now time.Time) State {
	if t.Status == StatePickedUp && t.DueDate.Valid && now.After(t.DueDate.Time) {
		return StateOverdue
	}
	return t.Status
}

func (t *Transaction) IsParticipant(userID string) bool {
	return userID != "" && (userID == t.OwnerID || userID == t.BorrowerID)
}

// Counterparty returns the other side of the loan.
func (t *Transaction) Counterparty(userID string) string {
	if userID == t.OwnerID {
		return t.BorrowerID
	}
	return t.OwnerID
}

// 一覧・詳細用（本とユーザ名付き）
type txView struct {
	Transaction
	BookTitle      string
	BookAuthor     string
	BookCover      sql.NullString
	OwnerName      string
	OwnerRating    float64
	BorrowerName   string
	BorrowerRating float64
}

type Rating struct {
	ID                string
	TransactionID     string
	RaterID           string
	RatedID           string
	Score             int
	Timeliness        sql.NullInt64
	ConditionAccuracy sql.NullInt64
	Communication     sql.NullInt64
	Comment           sql.NullString
	CreatedAt         time.Time
}

type ratingView struct {
	Rating
	RaterName string
}

type ListFilter struct {
	ActorID string
	Role    string // owner | borrower | all
	Status  State
	Now     time.Time
	Limit   int
	Offset  int
}
