package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dashboard/internal/storage"
)

/*
Repo implements storage.Repository for Postgres.

Payloads are stored as jsonb and fetched_at as timestamptz. An upsert call
queues one INSERT ... ON CONFLICT per snapshot in a pgx.Batch and sends the
batch inside a single transaction.
*/
type Repo struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", Open)
}

// Open creates a connection pool for cfg.DSN and pings it.
func Open(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// EnsureSnapshotTable creates the schema (for qualified names) and table.
func (r *Repo) EnsureSnapshotTable(ctx context.Context, table string) error {
	if err := storage.ValidateTable(table); err != nil {
		return err
	}
	schemaSQL, tableSQL := buildCreateSQL(table)
	if schemaSQL != "" {
		if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("postgres: create schema for %s: %w", table, err)
		}
	}
	if _, err := r.pool.Exec(ctx, tableSQL); err != nil {
		return fmt.Errorf("postgres: create %s: %w", table, err)
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

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := buildUpsertBatch(table, snaps)
	br := tx.SendBatch(ctx, batch)

	var n int64
	for i := range snaps {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("postgres: upsert %s %s/%s: %w", table, snaps[i].Resource, snaps[i].ID, err)
		}
		n += tag.RowsAffected()
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("postgres: batch close: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit: %w", err)
	}
	return n, nil
}

func buildUpsertBatch(table string, snaps []storage.Snapshot) *pgx.Batch {
	q := buildUpsertSQL(table)
	b := &pgx.Batch{}
	for _, s := range snaps {
		b.Queue(q, s.Resource, s.ID, string(s.Payload), s.FetchedAt.UTC())
	}
	return b
}

// quoteTable quotes each part of a possibly schema-qualified name.
func quoteTable(name string) string {
	schema, table := splitQualifiedName(name)
	if schema == "" {
		return pgx.Identifier{table}.Sanitize()
	}
	return pgx.Identifier{schema, table}.Sanitize()
}

// splitQualifiedName splits "schema.table". Anything without exactly one
// dot is treated as unqualified.
func splitQualifiedName(name string) (schema string, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

func buildCreateSQL(name string) (schemaSQL, tableSQL string) {
	if schema, _ := splitQualifiedName(name); schema != "" {
		schemaSQL = "CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{schema}.Sanitize()
	}
	tableSQL = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	resource   text        NOT NULL,
	id         text        NOT NULL,
	payload    jsonb       NOT NULL,
	fetched_at timestamptz NOT NULL,
	PRIMARY KEY (resource, id)
)`, quoteTable(name))
	return schemaSQL, tableSQL
}

func buildUpsertSQL(name string) string {
	return fmt.Sprintf(`INSERT INTO %s (resource, id, payload, fetched_at) VALUES ($1, $2, $3::jsonb, $4)
ON CONFLICT (resource, id) DO UPDATE SET payload = EXCLUDED.payload, fetched_at = EXCLUDED.fetched_at`, quoteTable(name))
}
