package service

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects placeholder style and schema for a database driver.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

func ParseDialect(s string) (Dialect, error) {
	switch Dialect(strings.ToLower(s)) {
	case DialectPostgres, "postgresql":
		return DialectPostgres, nil
	case DialectSQLite, "sqlite3":
		return DialectSQLite, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", s)
}

// rebind rewrites ? placeholders to $n for postgres.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) schema() []string {
	if d == DialectPostgres {
		return []string{
			`CREATE TABLE IF NOT EXISTS projects (
				id               UUID PRIMARY KEY,
				user_id          UUID NOT NULL,
				name             TEXT NOT NULL,
				style_id         TEXT NOT NULL,
				timeline         JSONB NOT NULL,
				version          INTEGER NOT NULL DEFAULT 1,
				status           TEXT NOT NULL DEFAULT 'draft',
				render_job_id    TEXT NOT NULL DEFAULT '',
				final_video_url  TEXT NOT NULL DEFAULT '',
				export_error     TEXT NOT NULL DEFAULT '',
				last_exported_at TIMESTAMPTZ,
				created_at       TIMESTAMPTZ NOT NULL,
				updated_at       TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_projects_recent ON projects (user_id, status, last_exported_at DESC)`,
		}
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id               TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL,
			name             TEXT NOT NULL,
			style_id         TEXT NOT NULL,
			timeline         TEXT NOT NULL,
			version          INTEGER NOT NULL DEFAULT 1,
			status           TEXT NOT NULL DEFAULT 'draft',
			render_job_id    TEXT NOT NULL DEFAULT '',
			final_video_url  TEXT NOT NULL DEFAULT '',
			export_error     TEXT NOT NULL DEFAULT '',
			last_exported_at TIMESTAMP,
			created_at       TIMESTAMP NOT NULL,
			updated_at       TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_projects_recent ON projects (user_id, status, last_exported_at DESC)`,
	}
}

// Open connects to the database and verifies it is reachable. SQLite files
// get their directory created and run in WAL mode on a single connection.
func Open(ctx context.Context, d Dialect, dsn string) (*sql.DB, error) {
	if d == DialectSQLite && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open(string(d), dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if d == DialectSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if d == DialectSQLite {
		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout=5000",
		} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("execute %s: %w", pragma, err)
			}
		}
	}
	return db, nil
}
