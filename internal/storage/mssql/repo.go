package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"dashboard/internal/storage"
)

// Repo implements storage.Repository for Microsoft SQL Server.
//
// Each snapshot is written with a MERGE ... WITH (HOLDLOCK) so concurrent
// exporters of the same key serialize instead of racing to INSERT. All
// MERGEs of one call share a transaction.
type Repo struct {
	db dbConn
}

func init() {
	storage.Register("mssql", Open)
}

// Open connects with the "sqlserver" driver and pings the server.
func Open(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mssql: open: %w", err)
	}
	raw.SetMaxOpenConns(16)
	raw.SetMaxIdleConns(16)

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("mssql: ping: %w", err)
	}
	return &Repo{db: &sqlDB{db: raw}}, nil
}

// Close releases database resources held by this repository.
func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

// EnsureSnapshotTable creates table when it does not exist.
func (r *Repo) EnsureSnapshotTable(ctx context.Context, table string) error {
	if err := storage.ValidateTable(table); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, buildCreateSQL(table)); err != nil {
		return fmt.Errorf("mssql: create %s: %w", table, err)
	}
	return nil
}

// UpsertSnapshots merges snaps in one transaction.
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
		return 0, fmt.Errorf("mssql: begin: %w", err)
	}

	q := buildMergeSQL(table)
	var n int64
	for _, s := range snaps {
		res, err := tx.ExecContext(ctx, q,
			sql.Named("resource", s.Resource),
			sql.Named("id", s.ID),
			sql.Named("payload", string(s.Payload)),
			sql.Named("fetched_at", s.FetchedAt.UTC()),
		)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("mssql: merge %s %s/%s: %w", table, s.Resource, s.ID, err)
		}
		if k, err := res.RowsAffected(); err == nil {
			n += k
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mssql: commit: %w", err)
	}
	return n, nil
}

func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent returns a bracket-quoted identifier for schema-qualified names.
//
// Example:
//
//	"dbo.dash_orders" -> [dbo].[dash_orders]
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

func buildCreateSQL(table string) string {
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s ("+
			"[resource] NVARCHAR(128) NOT NULL, "+
			"[id] NVARCHAR(256) NOT NULL, "+
			"[payload] NVARCHAR(MAX) NOT NULL, "+
			"[fetched_at] DATETIME2 NOT NULL, "+
			"PRIMARY KEY ([resource], [id])); END;",
		table,
		mssqlTableIdent(table),
	)
}

func buildMergeSQL(table string) string {
	return fmt.Sprintf(
		"MERGE %s WITH (HOLDLOCK) AS tgt "+
			"USING (SELECT @resource AS [resource], @id AS [id], @payload AS [payload], @fetched_at AS [fetched_at]) AS src "+
			"ON tgt.[resource] = src.[resource] AND tgt.[id] = src.[id] "+
			"WHEN MATCHED THEN UPDATE SET tgt.[payload] = src.[payload], tgt.[fetched_at] = src.[fetched_at] "+
			"WHEN NOT MATCHED THEN INSERT ([resource], [id], [payload], [fetched_at]) "+
			"VALUES (src.[resource], src.[id], src.[payload], src.[fetched_at]);",
		mssqlTableIdent(table),
	)
}

// ---- database/sql seam types ----

// dbConn is the slice of *sql.DB this package uses.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error)
	Close() error
}

// txConn is the slice of *sql.Tx this package uses.
type txConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Commit() error
	Rollback() error
}

type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqlDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *sqlDB) Close() error { return s.db.Close() }

var (
	_ dbConn = (*sqlDB)(nil)
	_ txConn = (*sql.Tx)(nil)
)
