package db

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Txを開始して fn を実行。fn が nil を返せば COMMIT、エラーなら ROLLBACK。
// 一時的なエラー（デッドロック等）の場合は fn ごと再実行するので、
// fn の中で状態チェックをやり直すこと。
func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
	return Retry(ctx, func() error {
		tx, err := d.BeginTx(ctx, &sql.TxOptions{})
		if err != nil {
			return err
		}
		if err := fn(ctx, tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

// WithRetry runs fn against the pool (outside any Tx) with the same retry policy.
func (d *DB) WithRetry(ctx context.Context, fn func(ctx context.Context, q DBTX) error) error {
	return Retry(ctx, func() error { return fn(ctx, d.DB) })
}
