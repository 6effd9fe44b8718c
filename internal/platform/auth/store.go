package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"bookshare-backend/internal/platform/db"
)

type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Role         string
	Status       string
	CreatedAt    time.Time
}

type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (*Account, error)
	Create(ctx context.Context, a *Account) error
}

type Store struct{ db *db.DB }

func NewStore(d *db.DB) AccountStore {
	return &Store{db: d}
}

// GetByEmail は未登録なら (nil, nil)
func (s *Store) GetByEmail(ctx context.Context, email string) (*Account, error) {
	const q = `
SELECT id, email, password_hash, name, role, status, created_at
FROM users
WHERE email = ?
LIMIT 1
`
	var a Account
	err := s.db.WithRetry(ctx, func(ctx context.Context, q2 db.DBTX) error {
		return q2.QueryRowContext(ctx, q, email).Scan(
			&a.ID, &a.Email, &a.PasswordHash, &a.Name, &a.Role, &a.Status, &a.CreatedAt,
		)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) Create(ctx context.Context, a *Account) error {
	const q = `
INSERT INTO users (id, email, password_hash, name, role, status, created_at)
VALUES (?, ?, ?, ?, ?, 'active', ?)
`
	return s.db.WithRetry(ctx, func(ctx context.Context, q2 db.DBTX) error {
		_, err := q2.ExecContext(ctx, q, a.ID, a.Email, a.PasswordHash, a.Name, a.Role, a.CreatedAt)
		if db.IsDuplicate(err) {
			return ErrAlreadyExists
		}
		return err
	})
}
