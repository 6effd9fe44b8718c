package db

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookshare-backend/internal/platform/apierr"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	require.NoError(t, Migrate(context.Background(), d))
	return d
}

func TestMigrateIsIdempotent(t *testing.T) {
	d := openTestDB(t)
	require.NoError(t, Migrate(context.Background(), d))

	var n int
	err := d.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN
		('users','books','transactions','ratings','disputes','messages')`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("-- header\nCREATE TABLE a (x INT);\n\n-- only a comment;\nCREATE INDEX i ON a (x);\n")
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE a")
	assert.Equal(t, "CREATE INDEX i ON a (x)", stmts[1])

	// 両方言とも6テーブル分以上の文がある
	assert.GreaterOrEqual(t, len(splitStatements(schemaMySQL)), 6)
	assert.GreaterOrEqual(t, len(splitStatements(schemaSQLite)), 6)
}

func TestForUpdate(t *testing.T) {
	assert.Equal(t, "", (&DB{Driver: DriverSQLite}).ForUpdate())
	assert.Equal(t, " FOR UPDATE", (&DB{Driver: DriverMySQL}).ForUpdate())
}

func insertUser(ctx context.Context, q DBTX, id, email string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, name, created_at) VALUES (?, ?, 'x', 'n', ?)`,
		id, email, time.Now().UTC())
	return err
}

func TestIsDuplicateOnUniqueEmail(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, insertUser(ctx, d, "u1", "a@example.com"))
	err := insertUser(ctx, d, "u2", "a@example.com")
	require.Error(t, err)
	assert.True(t, IsDuplicate(err))
	assert.False(t, IsTransient(err))

	assert.True(t, IsDuplicate(&mysql.MySQLError{Number: 1062}))
	assert.False(t, IsDuplicate(errors.New("x")))
}

func TestIsForeignKey(t *testing.T) {
	d := openTestDB(t)
	_, err := d.Exec(`INSERT INTO books (id, owner_id, title, author, book_condition, created_at, updated_at)
		VALUES ('b1', 'missing', 't', 'a', 'Good', ?, ?)`, time.Now(), time.Now())
	require.Error(t, err)
	assert.True(t, IsForeignKey(err))
	assert.True(t, IsForeignKey(&mysql.MySQLError{Number: 1452}))
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := d.RunInTx(ctx, func(ctx context.Context, tx DBTX) error {
		if err := insertUser(ctx, tx, "u1", "a@example.com"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, d.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n))
	assert.Equal(t, 0, n)

	require.NoError(t, d.RunInTx(ctx, func(ctx context.Context, tx DBTX) error {
		return insertUser(ctx, tx, "u1", "a@example.com")
	}))
	require.NoError(t, d.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestRetryTransient(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return sqlite3.Error{Code: sqlite3.ErrBusy}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUpAsUnavailable(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return fmt.Errorf("exec: %w", &mysql.MySQLError{Number: 1213, Message: "Deadlock found"})
	})
	require.Error(t, err)
	assert.Equal(t, apierr.CodeUnavailable, apierr.CodeOf(err))
	assert.Equal(t, maxRetries+1, calls)
}

func TestRetryDoesNotRetryPermanent(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return apierr.Conflict("Transaction is not pending")
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, apierr.CodeConflict, apierr.CodeOf(err))
}
