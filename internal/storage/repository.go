// Package storage mirrors the menu corpus into a SQL database so the lookup
// API can serve it without the JSON file.
//
// Backends register themselves by kind from an init function; import
// menuscrape/internal/storage/all to get every backend.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"menuscrape/internal/records"
)

// Config selects and configures a backend.
//
// Kind must match a registered backend ("sqlite", "postgres", "mssql").
// DSN is passed through to the backend. Table defaults to ProductsTable and
// may be schema-qualified where the backend supports it.
type Config struct {
	Kind  string
	DSN   string
	Table string
}

// TableName returns the configured table, or ProductsTable.
func (c Config) TableName() string {
	if c.Table == "" {
		return ProductsTable
	}
	return c.Table
}

// Repository stores one corpus.
type Repository interface {
	// Close releases backend resources. Call once.
	Close()

	// EnsureSchema creates the products table when it does not exist.
	EnsureSchema(ctx context.Context) error

	// ReplaceAll swaps the stored corpus for c in one transaction and returns
	// the number of rows written. Corpus order is kept in the position column.
	ReplaceAll(ctx context.Context, c records.Corpus) (int64, error)

	// LoadAll returns the stored corpus in position order.
	LoadAll(ctx context.Context) (records.Corpus, error)
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. It is meant to be called
// from a backend's init function and panics on an empty kind, a nil factory
// or a duplicate registration.
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

// New opens the repository registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s (registered: %v)", cfg.Kind, Kinds())
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
