package lending

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookshare-backend/internal/listings"
	"bookshare-backend/internal/platform/apierr"
	"bookshare-backend/internal/platform/db"
)

const txCols = `t.id, t.book_id, t.owner_id, t.borrower_id, t.status,
	t.owner_confirmed_pickup, t.borrower_confirmed_pickup, t.return_confirmed,
	t.due_date, t.picked_up_at, t.returned_at, t.rejection_reason, t.message, t.created_at, t.updated_at`

const siblingRejectReason = "Another request for this book was approved"

type Store struct {
	db *db.DB
}

func NewStore(d *db.DB) *Store { return &Store{db: d} }

type scanner interface {
	Scan(dest ...any) error
}

func scanTx(sc scanner, t *Transaction, extra ...any) error {
	dest := []any{
		&t.ID, &t.BookID, &t.OwnerID, &t.BorrowerID, &t.Status,
		&t.OwnerConfirmedPickup, &t.BorrowerConfirmedPickup, &t.ReturnConfirmed,
		&t.DueDate, &t.PickedUpAt, &t.ReturnedAt, &t.RejectionReason, &t.Message, &t.CreatedAt, &t.UpdatedAt,
	}
	return sc.Scan(append(dest, extra...)...)
}

func (s *Store) lockTx(ctx context.Context, tx db.DBTX, id string) (*Transaction, error) {
	q := `SELECT ` + txCols + ` FROM transactions t WHERE t.id = ?` + s.db.ForUpdate()
	var t Transaction
	if err := scanTx(tx.QueryRowContext(ctx, q, id), &t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.NotFound("Transaction not found")
		}
		return nil, err
	}
	return &t, nil
}

type bookRow struct {
	OwnerID      string
	Status       listings.Status
	DurationDays int
}

func (s *Store) lockBook(ctx context.Context, tx db.DBTX, id string) (*bookRow, error) {
	q := `SELECT owner_id, status, lending_duration_days FROM books WHERE id = ? AND deleted_at IS NULL` + s.db.ForUpdate()
	var b bookRow
	if err := tx.QueryRowContext(ctx, q, id).Scan(&b.OwnerID, &b.Status, &b.DurationDays); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.NotFound("Book not found")
		}
		return nil, err
	}
	return &b, nil
}

func (s *Store) setBookStatus(ctx context.Context, tx db.DBTX, id string, st listings.Status, now time.Time) error {
	const q = `UPDATE books SET status = ?, updated_at = ? WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, st, now, id)
	return err
}

func (s *Store) userState(ctx context.Context, tx db.DBTX, id string, lock bool) (status string, avg float64, err error) {
	q := `SELECT status, avg_rating FROM users WHERE id = ?`
	if lock {
		q += s.db.ForUpdate()
	}
	if err = tx.QueryRowContext(ctx, q, id).Scan(&status, &avg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", 0, apierr.NotFound("User not found")
		}
		return "", 0, err
	}
	return status, avg, nil
}

// transition は状態と更新日時を書き戻す
func (s *Store) transition(ctx context.Context, tx db.DBTX, t *Transaction, to State, now time.Time) error {
	const q = `UPDATE transactions SET status = ?, updated_at = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, q, to, now, t.ID); err != nil {
		return err
	}
	t.Status, t.UpdatedAt = to, now
	return nil
}

// ---- Transactional Methods ----

// ExecRequest checks every borrow precondition against locked rows and inserts t as Requested.
func (s *Store) ExecRequest(ctx context.Context, t *Transaction) error {
	return s.db.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		b, err := s.lockBook(ctx, tx, t.BookID)
		if err != nil {
			return err
		}
		if b.Status != listings.StatusAvailable {
			return apierr.Invalid("Book is not available for borrowing")
		}
		if b.OwnerID == t.BorrowerID {
			return apierr.Invalid("Cannot borrow your own book")
		}

		ownerStatus, _, err := s.userState(ctx, tx, b.OwnerID, false)
		if err != nil {
			return err
		}
		if ownerStatus != "active" {
			return apierr.Invalid("Book owner is not active")
		}
		// 借り手行をロックして同一借り手の同時リクエストを直列化
		borrowerStatus, avg, err := s.userState(ctx, tx, t.BorrowerID, true)
		if err != nil {
			return err
		}
		if borrowerStatus != "active" {
			return apierr.Invalid("Your account is not active")
		}

		const activeQ = `SELECT COUNT(*) FROM transactions WHERE borrower_id = ? AND status IN (?, ?, ?)`
		var active int
		if err := tx.QueryRowContext(ctx, activeQ, t.BorrowerID, StateApproved, StatePickedUp, StateOverdue).Scan(&active); err != nil {
			return err
		}
		if limit := LoanLimit(avg); active >= limit {
			return apierr.Invalid(fmt.Sprintf("You have reached your maximum concurrent loans (%d). Return some books first.", limit))
		}

		const pendingQ = `SELECT COUNT(*) FROM transactions WHERE book_id = ? AND borrower_id = ? AND status = ?`
		var pending int
		if err := tx.QueryRowContext(ctx, pendingQ, t.BookID, t.BorrowerID, StateRequested).Scan(&pending); err != nil {
			return err
		}
		if pending > 0 {
			return apierr.Invalid("You already have a pending request for this book")
		}

		t.OwnerID = b.OwnerID
		t.Status = StateRequested
		const q = `
		INSERT INTO transactions
		(id, book_id, owner_id, borrower_id, status, message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
		_, err = tx.ExecContext(ctx, q, t.ID, t.BookID, t.OwnerID, t.BorrowerID, t.Status, t.Message, t.CreatedAt, t.UpdatedAt)
		return err
	})
}

// ExecApprove moves t to Approved, reserves the book and rejects the sibling requests.
func (s *Store) ExecApprove(ctx context.Context, id, actorID string, now time.Time) (*Transaction, error) {
	var out *Transaction
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		t, err := s.lockTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if t.OwnerID != actorID {
			return apierr.Forbidden("Only the owner can approve this request")
		}
		to, err := Next(t.Status, OpApprove)
		if err != nil {
			return err
		}
		b, err := s.lockBook(ctx, tx, t.BookID)
		if err != nil {
			return err
		}
		if b.Status != listings.StatusAvailable {
			return apierr.Conflict("Book is not available for borrowing")
		}

		if err := s.transition(ctx, tx, t, to, now); err != nil {
			return err
		}
		if err := s.setBookStatus(ctx, tx, t.BookID, listings.StatusPendingPickup, now); err != nil {
			return err
		}

		const q = `
		UPDATE transactions SET status = ?, rejection_reason = ?, updated_at = ?
		WHERE book_id = ? AND status = ? AND id <> ?`
		if _, err := tx.ExecContext(ctx, q, StateRejected, siblingRejectReason, now, t.BookID, StateRequested, t.ID); err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}

func (s *Store) ExecReject(ctx context.Context, id, actorID, reason string, now time.Time) (*Transaction, error) {
	var out *Transaction
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		t, err := s.lockTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if t.OwnerID != actorID {
			return apierr.Forbidden("Only the owner can reject this request")
		}
		to, err := Next(t.Status, OpReject)
		if err != nil {
			return err
		}
		const q = `UPDATE transactions SET status = ?, rejection_reason = ?, updated_at = ? WHERE id = ?`
		if _, err := tx.ExecContext(ctx, q, to, reason, now, t.ID); err != nil {
			return err
		}
		t.Status, t.UpdatedAt = to, now
		t.RejectionReason = sql.NullString{String: reason, Valid: true}
		out = t
		return nil
	})
	return out, err
}

// ExecCancel: Requested は借り手のみ、Approved は双方が取り消せる
func (s *Store) ExecCancel(ctx context.Context, id, actorID string, now time.Time) (*Transaction, error) {
	var out *Transaction
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		t, err := s.lockTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if !t.IsParticipant(actorID) {
			return apierr.Forbidden("Not authorized for this transaction")
		}
		from := t.Status
		to, err := Next(from, OpCancel)
		if err != nil {
			return err
		}
		if from == StateRequested && actorID != t.BorrowerID {
			return apierr.Forbidden("Only the borrower can cancel a pending request")
		}
		if err := s.transition(ctx, tx, t, to, now); err != nil {
			return err
		}
		if from == StateApproved {
			if err := s.setBookStatus(ctx, tx, t.BookID, listings.StatusAvailable, now); err != nil {
				return err
			}
		}
		out = t
		return nil
	})
	return out, err
}

// ExecConfirmPickup sets the actor's flag; the call that observes both flags
// moves the loan to PickedUp. Flags are read and written under the row lock.
func (s *Store) ExecConfirmPickup(ctx context.Context, id, actorID string, now time.Time) (*Transaction, error) {
	var out *Transaction
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		t, err := s.lockTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if !t.IsParticipant(actorID) {
			return apierr.Forbidden("Not authorized for this transaction")
		}
		out = t
		// 受け渡し済みなら何もしない
		if t.Status == StatePickedUp || t.Status == StateOverdue {
			return nil
		}
		to, err := Next(t.Status, OpConfirmPickup)
		if err != nil {
			return err
		}

		mine := &t.BorrowerConfirmedPickup
		if actorID == t.OwnerID {
			mine = &t.OwnerConfirmedPickup
		}
		if *mine {
			return nil
		}
		*mine = true
		t.UpdatedAt = now

		if !(t.OwnerConfirmedPickup && t.BorrowerConfirmedPickup) {
			const q = `UPDATE transactions SET owner_confirmed_pickup = ?, borrower_confirmed_pickup = ?, updated_at = ? WHERE id = ?`
			_, err := tx.ExecContext(ctx, q, t.OwnerConfirmedPickup, t.BorrowerConfirmedPickup, now, t.ID)
			return err
		}

		b, err := s.lockBook(ctx, tx, t.BookID)
		if err != nil {
			return err
		}
		t.Status = to
		t.PickedUpAt = sql.NullTime{Time: now, Valid: true}
		t.DueDate = sql.NullTime{Time: now.AddDate(0, 0, b.DurationDays), Valid: true}

		const q = `
		UPDATE transactions
		SET status = ?, owner_confirmed_pickup = ?, borrower_confirmed_pickup = ?, picked_up_at = ?, due_date = ?, updated_at = ?
		WHERE id = ?`
		if _, err := tx.ExecContext(ctx, q, t.Status, true, true, t.PickedUpAt, t.DueDate, now, t.ID); err != nil {
			return err
		}
		return s.setBookStatus(ctx, tx, t.BookID, listings.StatusInTransit, now)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExecConfirmReturn is owner-only; the borrower cannot complete a loan on their own.
func (s *Store) ExecConfirmReturn(ctx context.Context, id, actorID string, now time.Time) (*Transaction, error) {
	var out *Transaction
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		t, err := s.lockTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if t.OwnerID != actorID {
			return apierr.Forbidden("Only the owner can confirm return")
		}
		to, err := Next(t.Status, OpConfirmReturn)
		if err != nil {
			return err
		}

		const q = `UPDATE transactions SET status = ?, return_confirmed = ?, returned_at = ?, updated_at = ? WHERE id = ?`
		if _, err := tx.ExecContext(ctx, q, to, true, now, now, t.ID); err != nil {
			return err
		}
		t.Status, t.ReturnConfirmed, t.UpdatedAt = to, true, now
		t.ReturnedAt = sql.NullTime{Time: now, Valid: true}

		if err := s.setBookStatus(ctx, tx, t.BookID, listings.StatusAvailable, now); err != nil {
			return err
		}
		const uq = `UPDATE users SET completed_transactions = completed_transactions + 1 WHERE id IN (?, ?)`
		if _, err := tx.ExecContext(ctx, uq, t.OwnerID, t.BorrowerID); err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}

// ExecRate inserts r and folds its score into the rated user's running mean.
// r.RatedID is filled in from the transaction.
func (s *Store) ExecRate(ctx context.Context, r *Rating) error {
	return s.db.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		t, err := s.lockTx(ctx, tx, r.TransactionID)
		if err != nil {
			return err
		}
		if !t.IsParticipant(r.RaterID) {
			return apierr.Forbidden("Not authorized for this transaction")
		}
		if t.Status != StateCompleted {
			return apierr.Conflict("Can only rate completed transactions")
		}
		r.RatedID = t.Counterparty(r.RaterID)

		const q = `
		INSERT INTO ratings
		(id, transaction_id, rater_id, rated_id, score, timeliness, condition_accuracy, communication, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, q,
			r.ID, r.TransactionID, r.RaterID, r.RatedID, r.Score,
			r.Timeliness, r.ConditionAccuracy, r.Communication, r.Comment, r.CreatedAt,
		); err != nil {
			if db.IsDuplicate(err) {
				return apierr.Duplicate("You have already rated this transaction")
			}
			return err
		}

		// avg_rating を先に書くこと（MySQL は SET を左から評価し、更新後の値を後続で参照する）
		const uq = `
		UPDATE users
		SET avg_rating = (avg_rating * total_ratings + ?) / (total_ratings + 1),
		    total_ratings = total_ratings + 1
		WHERE id = ?`
		_, err = tx.ExecContext(ctx, uq, r.Score, r.RatedID)
		return err
	})
}

// SweepOverdue persists Overdue on PickedUp loans whose due date has passed.
func (s *Store) SweepOverdue(ctx context.Context, now time.Time) (int64, error) {
	to, err := Next(StatePickedUp, OpMarkOverdue)
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.db.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		const q = `UPDATE transactions SET status = ?, updated_at = ? WHERE status = ? AND due_date IS NOT NULL AND due_date < ?`
		res, err := tx.ExecContext(ctx, q, to, now, StatePickedUp, now)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// ---- Reads ----

const viewSelect = `SELECT ` + txCols + `,
	b.title, b.author, b.cover_url, o.name, o.avg_rating, br.name, br.avg_rating
	FROM transactions t
	JOIN books b ON b.id = t.book_id
	JOIN users o ON o.id = t.owner_id
	JOIN users br ON br.id = t.borrower_id`

func scanView(sc scanner, v *txView) error {
	return scanTx(sc, &v.Transaction,
		&v.BookTitle, &v.BookAuthor, &v.BookCover, &v.OwnerName, &v.OwnerRating, &v.BorrowerName, &v.BorrowerRating)
}

func (s *Store) GetView(ctx context.Context, id string) (*txView, error) {
	q := viewSelect + ` WHERE t.id = ?`
	var v txView
	err := s.db.WithRetry(ctx, func(ctx context.Context, q2 db.DBTX) error {
		return scanView(q2.QueryRowContext(ctx, q, id), &v)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.NotFound("Transaction not found")
		}
		return nil, err
	}
	return &v, nil
}

// List は role / status で絞る。status の Overdue / PickedUp は期限から導出する
func (s *Store) List(ctx context.Context, f ListFilter) ([]txView, int64, error) {
	var (
		where []string
		args  []any
	)
	switch f.Role {
	case "owner":
		where = append(where, `t.owner_id = ?`)
		args = append(args, f.ActorID)
	case "borrower":
		where = append(where, `t.borrower_id = ?`)
		args = append(args, f.ActorID)
	default:
		where = append(where, `(t.owner_id = ? OR t.borrower_id = ?)`)
		args = append(args, f.ActorID, f.ActorID)
	}
	switch f.Status {
	case "":
	case StateOverdue:
		where = append(where, `(t.status = ? OR (t.status = ? AND t.due_date < ?))`)
		args = append(args, StateOverdue, StatePickedUp, f.Now)
	case StatePickedUp:
		where = append(where, `t.status = ? AND (t.due_date IS NULL OR t.due_date >= ?)`)
		args = append(args, StatePickedUp, f.Now)
	default:
		where = append(where, `t.status = ?`)
		args = append(args, f.Status)
	}
	cond := strings.Join(where, " AND ")

	q := viewSelect + ` WHERE ` + cond + ` ORDER BY t.updated_at DESC, t.id DESC LIMIT ? OFFSET ?`
	cq := `SELECT COUNT(*) FROM transactions t WHERE ` + cond

	var (
		out   []txView
		total int64
	)
	err := s.db.WithRetry(ctx, func(ctx context.Context, q2 db.DBTX) error {
		out = out[:0]
		rows, err := q2.QueryContext(ctx, q, append(args, f.Limit, f.Offset)...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var v txView
			if err := scanView(rows, &v); err != nil {
				return err
			}
			out = append(out, v)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		return q2.QueryRowContext(ctx, cq, args...).Scan(&total)
	})
	return out, total, err
}

func (s *Store) Ratings(ctx context.Context, txID string) ([]ratingView, error) {
	const q = `
	SELECT r.id, r.transaction_id, r.rater_id, r.rated_id, r.score, r.timeliness, r.condition_accuracy,
	       r.communication, r.comment, r.created_at, u.name
	FROM ratings r
	JOIN users u ON u.id = r.rater_id
	WHERE r.transaction_id = ?
	ORDER BY r.created_at ASC, r.id ASC`

	var out []ratingView
	err := s.db.WithRetry(ctx, func(ctx context.Context, q2 db.DBTX) error {
		out = out[:0]
		rows, err := q2.QueryContext(ctx, q, txID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r ratingView
			if err := rows.Scan(&r.ID, &r.TransactionID, &r.RaterID, &r.RatedID, &r.Score, &r.Timeliness,
				&r.ConditionAccuracy, &r.Communication, &r.Comment, &r.CreatedAt, &r.RaterName); err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}
