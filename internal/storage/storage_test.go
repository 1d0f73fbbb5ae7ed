package storage

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type fakeRepo struct{ closed int }

func (f *fakeRepo) Close() { f.closed++ }

func (f *fakeRepo) EnsureSnapshotTable(context.Context, string) error { return nil }

func (f *fakeRepo) UpsertSnapshots(_ context.Context, _ string, s []Snapshot) (int64, error) {
	return int64(len(s)), nil
}

func TestRegisterAndNew(t *testing.T) {
	var gotDSN string
	Register("fake-test", func(_ context.Context, cfg Config) (Repository, error) {
		gotDSN = cfg.DSN
		return &fakeRepo{}, nil
	})

	r, err := New(context.Background(), Config{Kind: "fake-test", DSN: "mem"})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	defer r.Close()
	if gotDSN != "mem" {
		t.Fatalf("factory DSN=%q, want mem", gotDSN)
	}

	found := false
	for _, k := range Kinds() {
		if k == "fake-test" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Kinds()=%v missing fake-test", Kinds())
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("New(empty kind) err=nil")
	}
	_, err := New(context.Background(), Config{Kind: "nope"})
	if err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("New(unknown) err=%v, want unsupported", err)
	}
}

func TestRegister_Panics(t *testing.T) {
	f := func(context.Context, Config) (Repository, error) { return nil, nil }
	Register("dup-test", f)

	tests := []struct {
		name string
		kind string
		f    Factory
	}{
		{name: "empty_kind", kind: "", f: f},
		{name: "nil_factory", kind: "x-test", f: nil},
		{name: "duplicate", kind: "dup-test", f: f},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatalf("Register(%q) did not panic", tc.kind)
				}
			}()
			Register(tc.kind, tc.f)
		})
	}
}

func TestNewSnapshots(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	recs := []map[string]any{
		{"id": "1", "name": "a"},
		{"name": "no id"},
		{"id": " 2 ", "name": "b"},
	}
	snaps, skipped, err := NewSnapshots("addons", recs, func(m map[string]any) string {
		s, _ := m["id"].(string)
		return s
	}, at)
	if err != nil {
		t.Fatalf("NewSnapshots() err=%v", err)
	}
	if skipped != 1 || len(snaps) != 2 {
		t.Fatalf("snaps=%d skipped=%d, want 2 and 1", len(snaps), skipped)
	}
	if snaps[1].ID != "2" || !snaps[1].FetchedAt.Equal(at) || snaps[1].FetchedAt.Location() != time.UTC {
		t.Fatalf("snap=%+v", snaps[1])
	}
	var back map[string]any
	if err := json.Unmarshal(snaps[0].Payload, &back); err != nil || back["name"] != "a" {
		t.Fatalf("payload=%s err=%v", snaps[0].Payload, err)
	}

	_, _, err = NewSnapshots("x", []map[string]any{{"id": "1", "bad": func() {}}}, func(map[string]any) string { return "1" }, at)
	if err == nil {
		t.Fatalf("NewSnapshots(unencodable) err=nil")
	}
}

func TestDedupe_LastWinsFirstPosition(t *testing.T) {
	t.Parallel()

	in := []Snapshot{
		{Resource: "a", ID: "1", Payload: json.RawMessage(`1`)},
		{Resource: "a", ID: "2", Payload: json.RawMessage(`2`)},
		{Resource: "a", ID: "1", Payload: json.RawMessage(`3`)},
		{Resource: "b", ID: "1", Payload: json.RawMessage(`4`)},
	}
	got := Dedupe(in)
	var payloads []string
	for _, s := range got {
		payloads = append(payloads, string(s.Payload))
	}
	if diff := cmp.Diff([]string{"3", "2", "4"}, payloads); diff != "" {
		t.Fatalf("Dedupe mismatch (-want +got):\n%s", diff)
	}
}

func TestTableNameAndValidate(t *testing.T) {
	t.Parallel()

	if got := TableName("Recipe-Suggestions"); got != "dash_recipe_suggestions" {
		t.Fatalf("TableName()=%q", got)
	}
	for _, ok := range []string{"dash_orders", "public.dash_orders", "_t1"} {
		if err := ValidateTable(ok); err != nil {
			t.Fatalf("ValidateTable(%q) err=%v", ok, err)
		}
	}
	for _, bad := range []string{"", "a.b.c", "1abc", "orders;drop", "a.", `x"y`} {
		if err := ValidateTable(bad); err == nil {
			t.Fatalf("ValidateTable(%q) err=nil", bad)
		}
	}
}
