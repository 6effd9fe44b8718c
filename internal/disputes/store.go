package disputes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bookshare-backend/internal/lending"
	"bookshare-backend/internal/platform/apierr"
	"bookshare-backend/internal/platform/db"
	"bookshare-backend/internal/platform/httpx"
)

const disputeCols = `d.id, d.transaction_id, d.reporter_id, d.reported_id, d.reason, d.description,
	d.evidence_urls, d.status, d.resolution, d.created_at, d.updated_at`

const viewSelect = `SELECT ` + disputeCols + `, t.book_id, b.title, t.status, rp.name, rd.name
	FROM disputes d
	JOIN transactions t ON t.id = d.transaction_id
	JOIN books b ON b.id = t.book_id
	JOIN users rp ON rp.id = d.reporter_id
	JOIN users rd ON rd.id = d.reported_id`

type Store struct {
	db *db.DB
}

func NewStore(d *db.DB) *Store { return &Store{db: d} }

func scanDispute(sc interface{ Scan(...any) error }, d *Dispute, extra ...any) error {
	var evidence string
	dest := []any{&d.ID, &d.TransactionID, &d.ReporterID, &d.ReportedID, &d.Reason, &d.Description,
		&evidence, &d.Status, &d.Resolution, &d.CreatedAt, &d.UpdatedAt}
	if err := sc.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	d.EvidenceURLs = []string{}
	if evidence != "" {
		if err := json.Unmarshal([]byte(evidence), &d.EvidenceURLs); err != nil {
			return fmt.Errorf("disputes.evidence_urls: %w", err)
		}
	}
	return nil
}

func evidenceJSON(urls []string) (string, error) {
	if urls == nil {
		urls = []string{}
	}
	b, err := json.Marshal(urls)
	return string(b), err
}

func (s *Store) lockDispute(ctx context.Context, tx db.DBTX, id string) (*Dispute, error) {
	q := `SELECT ` + disputeCols + ` FROM disputes d WHERE d.id = ?` + s.db.ForUpdate()
	var d Dispute
	if err := scanDispute(tx.QueryRowContext(ctx, q, id), &d); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.NotFound("Dispute not found")
		}
		return nil, err
	}
	return &d, nil
}

// ---- Transactional Methods ----

// ExecFile inserts d and freezes the loan in Disputed within the same storage transaction.
// d.ReportedID is derived from the transaction.
func (s *Store) ExecFile(ctx context.Context, d *Dispute) error {
	return s.db.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		q := `SELECT owner_id, borrower_id, status FROM transactions WHERE id = ?` + s.db.ForUpdate()
		var t lending.Transaction
		if err := tx.QueryRowContext(ctx, q, d.TransactionID).Scan(&t.OwnerID, &t.BorrowerID, &t.Status); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apierr.NotFound("Transaction not found")
			}
			return err
		}
		if !t.IsParticipant(d.ReporterID) {
			return apierr.Forbidden("Not authorized for this transaction")
		}

		const openQ = `SELECT COUNT(*) FROM disputes WHERE transaction_id = ? AND status <> ?`
		var open int
		if err := tx.QueryRowContext(ctx, openQ, d.TransactionID, StatusClosed).Scan(&open); err != nil {
			return err
		}
		if open > 0 {
			return apierr.Conflict("An open dispute already exists for this transaction")
		}

		to, err := lending.Next(t.Status, lending.OpDispute)
		if err != nil {
			return err
		}
		d.ReportedID = t.Counterparty(d.ReporterID)
		d.Status = StatusOpen

		evidence, err := evidenceJSON(d.EvidenceURLs)
		if err != nil {
			return err
		}
		const ins = `
		INSERT INTO disputes
		(id, transaction_id, reporter_id, reported_id, reason, description, evidence_urls, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, ins, d.ID, d.TransactionID, d.ReporterID, d.ReportedID, d.Reason,
			d.Description, evidence, d.Status, d.CreatedAt, d.UpdatedAt); err != nil {
			return err
		}

		const upd = `UPDATE transactions SET status = ?, updated_at = ? WHERE id = ?`
		_, err = tx.ExecContext(ctx, upd, to, d.UpdatedAt, d.TransactionID)
		return err
	})
}

// ExecAddEvidence appends url; evidence is never deduplicated or removed.
func (s *Store) ExecAddEvidence(ctx context.Context, id, actorID, url string, now time.Time) error {
	return s.db.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		d, err := s.lockDispute(ctx, tx, id)
		if err != nil {
			return err
		}
		if !d.IsParty(actorID) {
			return apierr.Forbidden("Not authorized for this dispute")
		}
		if d.Status != StatusOpen {
			return apierr.Conflict(fmt.Sprintf("Cannot add evidence to a dispute in %s status", d.Status))
		}
		evidence, err := evidenceJSON(append(d.EvidenceURLs, url))
		if err != nil {
			return err
		}
		const q = `UPDATE disputes SET evidence_urls = ?, updated_at = ? WHERE id = ?`
		_, err = tx.ExecContext(ctx, q, evidence, now, id)
		return err
	})
}

// ExecSetStatus はモデレーション用。遷移の制約は設けない
func (s *Store) ExecSetStatus(ctx context.Context, id string, st Status, resolution sql.NullString, now time.Time) error {
	return s.db.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		d, err := s.lockDispute(ctx, tx, id)
		if err != nil {
			return err
		}
		if !resolution.Valid {
			resolution = d.Resolution
		}
		// 同じ取引に未クローズの別件がある状態で再オープンはさせない
		if st != StatusClosed && d.Status == StatusClosed {
			const q = `SELECT COUNT(*) FROM disputes WHERE transaction_id = ? AND status <> ? AND id <> ?`
			var open int
			if err := tx.QueryRowContext(ctx, q, d.TransactionID, StatusClosed, id).Scan(&open); err != nil {
				return err
			}
			if open > 0 {
				return apierr.Conflict("An open dispute already exists for this transaction")
			}
		}
		const q = `UPDATE disputes SET status = ?, resolution = ?, updated_at = ? WHERE id = ?`
		_, err = tx.ExecContext(ctx, q, st, resolution, now, id)
		return err
	})
}

// ---- Reads ----

func scanView(sc interface{ Scan(...any) error }, v *disputeView) error {
	return scanDispute(sc, &v.Dispute, &v.BookID, &v.BookTitle, &v.TransactionStatus, &v.ReporterName, &v.ReportedName)
}

func (s *Store) GetView(ctx context.Context, id string) (*disputeView, error) {
	q := viewSelect + ` WHERE d.id = ?`
	var v disputeView
	err := s.db.WithRetry(ctx, func(ctx context.Context, q2 db.DBTX) error {
		return scanView(q2.QueryRowContext(ctx, q, id), &v)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.NotFound("Dispute not found")
		}
		return nil, err
	}
	return &v, nil
}

// ListForUser は通報した側・された側の両方を返す
func (s *Store) ListForUser(ctx context.Context, userID string, p httpx.Page) ([]disputeView, int64, error) {
	q := viewSelect + ` WHERE d.reporter_id = ? OR d.reported_id = ?
	ORDER BY d.created_at ` + p.Order + `, d.id ` + p.Order + ` LIMIT ? OFFSET ?`
	const cq = `SELECT COUNT(*) FROM disputes WHERE reporter_id = ? OR reported_id = ?`

	var (
		out   []disputeView
		total int64
	)
	err := s.db.WithRetry(ctx, func(ctx context.Context, q2 db.DBTX) error {
		out = out[:0]
		if err := q2.QueryRowContext(ctx, cq, userID, userID).Scan(&total); err != nil {
			return err
		}
		rows, err := q2.QueryContext(ctx, q, userID, userID, p.Limit, p.Offset)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var v disputeView
			if err := scanView(rows, &v); err != nil {
				return err
			}
			out = append(out, v)
		}
		return rows.Err()
	})
	return out, total, err
}
