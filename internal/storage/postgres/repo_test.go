package postgres

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"dashboard/internal/storage"
)

func TestBuildCreateSQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		table      string
		wantSchema string
		wantTable  string
	}{
		{name: "unqualified", table: "dash_orders", wantSchema: "", wantTable: `CREATE TABLE IF NOT EXISTS "dash_orders"`},
		{name: "qualified", table: "admin.dash_orders", wantSchema: `CREATE SCHEMA IF NOT EXISTS "admin"`, wantTable: `CREATE TABLE IF NOT EXISTS "admin"."dash_orders"`},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			schemaSQL, tableSQL := buildCreateSQL(tc.table)
			if schemaSQL != tc.wantSchema {
				t.Fatalf("schemaSQL=%q, want %q", schemaSQL, tc.wantSchema)
			}
			if !strings.HasPrefix(tableSQL, tc.wantTable) {
				t.Fatalf("tableSQL=%q, want prefix %q", tableSQL, tc.wantTable)
			}
			for _, frag := range []string{"payload    jsonb", "fetched_at timestamptz", "PRIMARY KEY (resource, id)"} {
				if !strings.Contains(tableSQL, frag) {
					t.Fatalf("tableSQL missing %q: %s", frag, tableSQL)
				}
			}
		})
	}
}

func TestBuildUpsertSQL(t *testing.T) {
	t.Parallel()

	q := buildUpsertSQL("dash_users")
	for _, frag := range []string{`INSERT INTO "dash_users"`, "$3::jsonb", "ON CONFLICT (resource, id) DO UPDATE", "EXCLUDED.payload", "EXCLUDED.fetched_at"} {
		if !strings.Contains(q, frag) {
			t.Fatalf("upsert SQL missing %q: %s", frag, q)
		}
	}
}

func TestBuildUpsertBatch(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.FixedZone("x", -7200))
	snaps := []storage.Snapshot{
		{Resource: "users", ID: "1", Payload: json.RawMessage(`{"a":1}`), FetchedAt: at},
		{Resource: "users", ID: "2", Payload: json.RawMessage(`{"a":2}`), FetchedAt: at},
	}
	b := buildUpsertBatch("dash_users", snaps)
	if b.Len() != 2 {
		t.Fatalf("batch len=%d, want 2", b.Len())
	}
	qq := b.QueuedQueries[1]
	if qq.Arguments[1] != "2" || qq.Arguments[2] != `{"a":2}` {
		t.Fatalf("queued args=%v", qq.Arguments)
	}
	if ts, ok := qq.Arguments[3].(time.Time); !ok || ts.Location() != time.UTC || !ts.Equal(at) {
		t.Fatalf("fetched_at arg=%v, want UTC instant", qq.Arguments[3])
	}
}

func TestSplitQualifiedName(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, schema, table string }{
		{in: "t", schema: "", table: "t"},
		{in: " s . t ", schema: "s", table: "t"},
		{in: "a.b.c", schema: "", table: "a.b.c"},
	}
	for _, tc := range tests {
		s, tb := splitQualifiedName(tc.in)
		if s != tc.schema || tb != tc.table {
			t.Fatalf("splitQualifiedName(%q)=(%q,%q), want (%q,%q)", tc.in, s, tb, tc.schema, tc.table)
		}
	}
}
