package messaging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bookshare-backend/internal/lending"
	"bookshare-backend/internal/platform/apierr"
	"bookshare-backend/internal/platform/db"
	"bookshare-backend/internal/platform/httpx"
)

const viewCols = `m.id, m.transaction_id, m.sender_id, m.content, m.message_type, m.created_at, u.name`

type Store struct {
	db *db.DB
}

func NewStore(d *db.DB) *Store { return &Store{db: d} }

func scanView(sc interface{ Scan(...any) error }, v *messageView) error {
	return sc.Scan(&v.ID, &v.TransactionID, &v.SenderID, &v.Content, &v.MessageType, &v.CreatedAt, &v.SenderName)
}

func (s *Store) loadTx(ctx context.Context, q db.DBTX, id, suffix string) (*lending.Transaction, error) {
	query := `SELECT id, owner_id, borrower_id, status, due_date FROM transactions WHERE id = ?` + suffix
	var t lending.Transaction
	if err := q.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.OwnerID, &t.BorrowerID, &t.Status, &t.DueDate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.NotFound("Transaction not found")
		}
		return nil, err
	}
	return &t, nil
}

// Transaction reads the participants and status of a loan.
func (s *Store) Transaction(ctx context.Context, id string) (*lending.Transaction, error) {
	var t *lending.Transaction
	err := s.db.WithRetry(ctx, func(ctx context.Context, q db.DBTX) error {
		var err error
		t, err = s.loadTx(ctx, q, id, "")
		return err
	})
	return t, err
}

// ExecSend は取引行をロックして送信可否を確認してから追記する
func (s *Store) ExecSend(ctx context.Context, m *Message) error {
	return s.db.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		t, err := s.loadTx(ctx, tx, m.TransactionID, s.db.ForUpdate())
		if err != nil {
			return err
		}
		if !t.IsParticipant(m.SenderID) {
			return apierr.Forbidden("Cannot send message to this transaction")
		}
		if st := t.EffectiveStatus(m.CreatedAt); !st.Possession() {
			return apierr.Conflict(fmt.Sprintf("Cannot send message to a transaction in %s status", st))
		}
		const q = `
		INSERT INTO messages (id, transaction_id, sender_id, content, message_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
		_, err = tx.ExecContext(ctx, q, m.ID, m.TransactionID, m.SenderID, m.Content, m.MessageType, m.CreatedAt)
		return err
	})
}

func (s *Store) GetView(ctx context.Context, id string) (*messageView, error) {
	q := `SELECT ` + viewCols + ` FROM messages m JOIN users u ON u.id = m.sender_id WHERE m.id = ?`
	var v messageView
	err := s.db.WithRetry(ctx, func(ctx context.Context, q2 db.DBTX) error {
		return scanView(q2.QueryRowContext(ctx, q, id), &v)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("Message not found")
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// History は古い順。ページングの order は無視する
func (s *Store) History(ctx context.Context, txID string, p httpx.Page) ([]messageView, int64, error) {
	q := `SELECT ` + viewCols + ` FROM messages m JOIN users u ON u.id = m.sender_id
	WHERE m.transaction_id = ?
	ORDER BY m.created_at ASC, m.id ASC
	LIMIT ? OFFSET ?`

	var (
		out   []messageView
		total int64
	)
	err := s.db.WithRetry(ctx, func(ctx context.Context, q2 db.DBTX) error {
		out, total = nil, 0
		if err := q2.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE transaction_id = ?`, txID).Scan(&total); err != nil {
			return err
		}
		rows, err := q2.QueryContext(ctx, q, txID, p.Limit, p.Offset)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var v messageView
			if err := scanView(rows, &v); err != nil {
				return err
			}
			out = append(out, v)
		}
		return rows.Err()
	})
	return out, total, err
}
