package db

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed schema_mysql.sql
var schemaMySQL string

//go:embed schema_sqlite.sql
var schemaSQLite string

// Migrate applies the embedded schema for the connection's dialect.
// Every statement is CREATE ... IF NOT EXISTS, so it is safe to re-run.
func Migrate(ctx context.Context, d *DB) error {
	schema := schemaSQLite
	if d.Driver == DriverMySQL {
		schema = schemaMySQL
	}
	for _, stmt := range splitStatements(schema) {
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
	}
	return nil
}

// MySQL ドライバは multiStatements 無しだと1文ずつしか流せない
func splitStatements(schema string) []string {
	var out []string
	for _, s := range strings.Split(schema, ";") {
		if strings.TrimSpace(stripComments(s)) == "" {
			continue
		}
		out = append(out, strings.TrimSpace(s))
	}
	return out
}

func stripComments(s string) string {
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
