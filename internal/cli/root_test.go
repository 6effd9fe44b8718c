package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookshare-backend/internal/platform/db"
	"bookshare-backend/internal/testutil"
)

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "bookshare", cmd.Use)

	for _, name := range []string{"serve", "migrate", "sweep-overdue"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()
	f := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, f)
	assert.Equal(t, "c", f.Shorthand)
	assert.Equal(t, "config/config.yaml", f.DefValue)

	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	assert.NotNil(t, serve.Flags().Lookup("migrate"))
}

func writeConfig(t *testing.T) (cfgPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "cli.db")
	cfgPath = filepath.Join(dir, "config.yaml")
	body := "mode: dev\ndatabase:\n  driver: sqlite3\n  path: " + dbPath + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))
	return cfgPath, dbPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrateThenSweep(t *testing.T) {
	cfgPath, dbPath := writeConfig(t)

	out, err := run(t, "--config", cfgPath, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema applied (sqlite3)")

	// 期限切れの PickedUp を1件仕込む
	d, err := db.OpenSQLite(dbPath)
	require.NoError(t, err)
	owner := testutil.CreateUser(t, d, testutil.UserOpts{})
	borrower := testutil.CreateUser(t, d, testutil.UserOpts{})
	book := testutil.CreateBook(t, d, owner, testutil.BookOpts{Status: "InTransit"}, "")
	now := time.Now().UTC()
	_, err = d.Exec(`INSERT INTO transactions (id, book_id, owner_id, borrower_id, status, due_date, created_at, updated_at)
		VALUES ('tx-late', ?, ?, ?, 'PickedUp', ?, ?, ?)`, book, owner, borrower, now.Add(-48*time.Hour), now, now)
	require.NoError(t, err)
	require.NoError(t, d.Close())

	out, err = run(t, "--config", cfgPath, "sweep-overdue")
	require.NoError(t, err)
	assert.Contains(t, out, "marked 1 transaction(s) overdue")

	out, err = run(t, "--config", cfgPath, "sweep-overdue")
	require.NoError(t, err)
	assert.Contains(t, out, "marked 0 transaction(s) overdue")
}

func TestMissingConfig(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "migrate")
	assert.Error(t, err)
}
