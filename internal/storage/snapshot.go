package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Snapshot is one backend record as fetched.
type Snapshot struct {
	Resource  string
	ID        string
	Payload   json.RawMessage
	FetchedAt time.Time
}

// NewSnapshots encodes records of resource fetched at at.
//
// id extracts a record's identity. Records whose id is empty are skipped
// and counted in skipped.
//
// Errors:
//   - A record that cannot be JSON-encoded.
func NewSnapshots(resource string, records []map[string]any, id func(map[string]any) string, at time.Time) (snaps []Snapshot, skipped int, err error) {
	at = at.UTC()
	snaps = make([]Snapshot, 0, len(records))
	for i, rec := range records {
		key := strings.TrimSpace(id(rec))
		if key == "" {
			skipped++
			continue
		}
		b, err := json.Marshal(rec)
		if err != nil {
			return nil, 0, fmt.Errorf("storage: encode %s record %d: %w", resource, i, err)
		}
		snaps = append(snaps, Snapshot{Resource: resource, ID: key, Payload: b, FetchedAt: at})
	}
	return snaps, skipped, nil
}

// Dedupe keeps the last snapshot per (Resource, ID), in order of first
// appearance. A single upsert statement may not touch the same key twice.
func Dedupe(snaps []Snapshot) []Snapshot {
	type key struct{ resource, id string }
	pos := make(map[key]int, len(snaps))
	out := make([]Snapshot, 0, len(snaps))
	for _, s := range snaps {
		k := key{s.Resource, s.ID}
		if i, ok := pos[k]; ok {
			out[i] = s
			continue
		}
		pos[k] = len(out)
		out = append(out, s)
	}
	return out
}

// TableName returns the snapshot table of resource: "dash_" followed by the
// resource with every character outside [a-z0-9_] replaced by "_".
func TableName(resource string) string {
	var b strings.Builder
	b.WriteString("dash_")
	for _, r := range strings.ToLower(resource) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// ValidateTable rejects table names that are not plain or schema-qualified
// identifiers ([A-Za-z_][A-Za-z0-9_]*, optionally "schema.table").
func ValidateTable(name string) error {
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return fmt.Errorf("storage: table %q has more than one qualifier", name)
	}
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("storage: table %q has an empty part", name)
		}
		for i, r := range p {
			ok := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (i > 0 && r >= '0' && r <= '9')
			if !ok {
				return fmt.Errorf("storage: table %q contains invalid character %q", name, r)
			}
		}
	}
	return nil
}
