// Package storage persists fetched backend records as JSON snapshots.
//
// A snapshot table holds one row per (resource, id). Re-exporting the same
// record replaces its payload and fetch time, so exports are idempotent.
// Backends register themselves by kind from an init function; import
// dashboard/internal/storage/all to link every backend.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config selects and configures a backend.
//
// Edge cases:
//   - Kind must match a registered backend kind.
//   - DSN is passed through to the backend; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Repository is the backend-agnostic snapshot store.
type Repository interface {
	// Close releases backend resources. Call once.
	Close()

	// EnsureSnapshotTable creates table if it does not exist.
	EnsureSnapshotTable(ctx context.Context, table string) error

	// UpsertSnapshots inserts or replaces snaps keyed by (Resource, ID) and
	// returns how many rows were written. The write is atomic per call.
	UpsertSnapshots(ctx context.Context, table string, snaps []Snapshot) (int64, error)
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind.
//
// When to use:
//   - From an init() function in a backend package.
//
// Panics:
//   - If kind is empty, f is nil, or kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New opens a Repository with the backend registered for cfg.Kind.
//
// Errors:
//   - cfg.Kind is empty or not registered.
//   - Whatever the backend factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported kind=%q (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backend kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
