package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"dashboard/internal/storage"
)

// Repo implements storage.Repository for SQLite.
//
// SQLite has no timestamp type; fetched_at is stored as RFC3339Nano UTC
// text, which also sorts chronologically.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", Open)
}

// Open opens and pings the database at cfg.DSN.
func Open(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureSnapshotTable creates table. SQLite has no schemas, so a qualified
// name is rejected.
func (r *Repo) EnsureSnapshotTable(ctx context.Context, table string) error {
	if err := storage.ValidateTable(table); err != nil {
		return err
	}
	if strings.Contains(table, ".") {
		return fmt.Errorf("sqlite: schema-qualified table %q not supported", table)
	}
	if _, err := r.db.ExecContext(ctx, buildCreateSQL(table)); err != nil {
		return fmt.Errorf("sqlite: create %s: %w", table, err)
	}
	return nil
}

// UpsertSnapshots writes snaps in one transaction.
func (r *Repo) UpsertSnapshots(ctx context.Context, table string, snaps []storage.Snapshot) (int64, error) {
	if err := storage.ValidateTable(table); err != nil {
		return 0, err
	}
	snaps = storage.Dedupe(snaps)
	if len(snaps) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, buildUpsertSQL(table))
	if err != nil {
		return 0, fmt.Errorf("sqlite: prepare upsert %s: %w", table, err)
	}
	defer stmt.Close()

	var n int64
	for _, s := range snaps {
		res, err := stmt.ExecContext(ctx, s.Resource, s.ID, string(s.Payload), formatSQLiteTime(s.FetchedAt))
		if err != nil {
			return 0, fmt.Errorf("sqlite: upsert %s %s/%s: %w", table, s.Resource, s.ID, err)
		}
		if k, err := res.RowsAffected(); err == nil {
			n += k
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return n, nil
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func buildCreateSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	resource   TEXT NOT NULL,
	id         TEXT NOT NULL,
	payload    TEXT NOT NULL,
	fetched_at TEXT NOT NULL,
	PRIMARY KEY (resource, id)
)`, sqlIdent(table))
}

func buildUpsertSQL(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (resource, id, payload, fetched_at) VALUES (?, ?, ?, ?)
ON CONFLICT (resource, id) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`, sqlIdent(table))
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
