package users

import (
	"context"
	"database/sql"
	"errors"

	"bookshare-backend/internal/platform/apierr"
	"bookshare-backend/internal/platform/db"
	"bookshare-backend/internal/platform/httpx"
	"bookshare-backend/internal/reputation"
)

const userCols = `id, email, name, phone, role, default_latitude, default_longitude, default_address,
	avg_rating, total_ratings, completed_transactions, reputation_score, status, strikes, created_at`

type Store struct {
	db *db.DB
}

func NewStore(d *db.DB) *Store { return &Store{db: d} }

func scanUser(sc interface{ Scan(...any) error }, u *User) error {
	return sc.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.Role, &u.DefaultLatitude, &u.DefaultLongitude,
		&u.DefaultAddress, &u.AvgRating, &u.TotalRatings, &u.CompletedTransactions, &u.ReputationScore,
		&u.Status, &u.Strikes, &u.CreatedAt)
}

func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	q := `SELECT ` + userCols + ` FROM users WHERE id = ?`
	var u User
	err := s.db.WithRetry(ctx, func(ctx context.Context, q2 db.DBTX) error {
		return scanUser(q2.QueryRowContext(ctx, q, id), &u)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.NotFound("User not found")
		}
		return nil, err
	}
	return &u, nil
}

// ExecUpdate locks the user row, applies fn and writes the profile fields back.
func (s *Store) ExecUpdate(ctx context.Context, id string, apply func(u *User) error) (*User, error) {
	var out *User
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		q := `SELECT ` + userCols + ` FROM users WHERE id = ?` + s.db.ForUpdate()
		var u User
		if err := scanUser(tx.QueryRowContext(ctx, q, id), &u); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apierr.NotFound("User not found")
			}
			return err
		}
		if err := apply(&u); err != nil {
			return err
		}
		const uq = `
		UPDATE users SET name = ?, phone = ?, default_latitude = ?, default_longitude = ?, default_address = ?
		WHERE id = ?`
		if _, err := tx.ExecContext(ctx, uq, u.Name, u.Phone, u.DefaultLatitude, u.DefaultLongitude, u.DefaultAddress, u.ID); err != nil {
			return err
		}
		out = &u
		return nil
	})
	return out, err
}

// ReputationStats は ratings / transactions / disputes の事実から集計する（キャッシュ列は見ない）
func (s *Store) ReputationStats(ctx context.Context, id string) (reputation.Stats, error) {
	var st reputation.Stats
	err := s.db.WithRetry(ctx, func(ctx context.Context, q db.DBTX) error {
		if err := q.QueryRowContext(ctx, `SELECT created_at FROM users WHERE id = ?`, id).Scan(&st.CreatedAt); err != nil {
			return err
		}
		const rq = `SELECT COALESCE(AVG(score), 0), COUNT(*) FROM ratings WHERE rated_id = ?`
		if err := q.QueryRowContext(ctx, rq, id).Scan(&st.AvgRating, &st.RatingCount); err != nil {
			return err
		}
		const tq = `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = 'Completed' THEN 1 ELSE 0 END), 0)
		FROM transactions WHERE owner_id = ? OR borrower_id = ?`
		if err := q.QueryRowContext(ctx, tq, id, id).Scan(&st.TotalTx, &st.CompletedTx); err != nil {
			return err
		}
		const dq = `SELECT COUNT(*) FROM disputes WHERE reported_id = ?`
		return q.QueryRowContext(ctx, dq, id).Scan(&st.DisputesAgainst)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return reputation.Stats{}, apierr.NotFound("User not found")
		}
		return reputation.Stats{}, err
	}
	return st, nil
}

func (s *Store) SetReputationScore(ctx context.Context, id string, score int) error {
	return s.db.WithRetry(ctx, func(ctx context.Context, q db.DBTX) error {
		_, err := q.ExecContext(ctx, `UPDATE users SET reputation_score = ? WHERE id = ?`, score, id)
		return err
	})
}

// ExecRecomputeAggregates rebuilds the cached counters from the ratings and transactions rows.
func (s *Store) ExecRecomputeAggregates(ctx context.Context, id string) error {
	return s.db.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = ?`, id).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return apierr.NotFound("User not found")
		}
		const q = `
		UPDATE users SET
		  avg_rating = (SELECT COALESCE(AVG(score), 0) FROM ratings WHERE rated_id = ?),
		  total_ratings = (SELECT COUNT(*) FROM ratings WHERE rated_id = ?),
		  completed_transactions = (
		    SELECT COUNT(*) FROM transactions
		    WHERE status = 'Completed' AND (owner_id = ? OR borrower_id = ?))
		WHERE id = ?`
		_, err := tx.ExecContext(ctx, q, id, id, id, id, id)
		return err
	})
}

func (s *Store) BorrowerReturns(ctx context.Context, id string) ([]returnRecord, error) {
	const q = `SELECT due_date, returned_at FROM transactions WHERE borrower_id = ? AND status = 'Completed'`
	var out []returnRecord
	err := s.db.WithRetry(ctx, func(ctx context.Context, q2 db.DBTX) error {
		out = out[:0]
		rows, err := q2.QueryContext(ctx, q, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r returnRecord
			if err := rows.Scan(&r.DueDate, &r.ReturnedAt); err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}

func (s *Store) ReceivedRatings(ctx context.Context, id string, p httpx.Page) ([]receivedRating, int64, error) {
	q := `
	SELECT r.id, r.transaction_id, r.rater_id, u.name, r.score, r.comment, r.created_at
	FROM ratings r
	JOIN users u ON u.id = r.rater_id
	WHERE r.rated_id = ?
	ORDER BY r.created_at ` + p.Order + `, r.id ` + p.Order + `
	LIMIT ? OFFSET ?`
	const cq = `SELECT COUNT(*) FROM ratings WHERE rated_id = ?`

	var (
		out   []receivedRating
		total int64
	)
	err := s.db.WithRetry(ctx, func(ctx context.Context, q2 db.DBTX) error {
		out = out[:0]
		rows, err := q2.QueryContext(ctx, q, id, p.Limit, p.Offset)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r receivedRating
			if err := rows.Scan(&r.ID, &r.TransactionID, &r.RaterID, &r.RaterName, &r.Score, &r.Comment, &r.CreatedAt); err != nil {
				return err
			}
			out = append(out, r)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		return q2.QueryRowContext(ctx, cq, id).Scan(&total)
	})
	return out, total, err
}
