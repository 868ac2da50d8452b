// Package store is the durable key/value layer the session is persisted to. Values are
// opaque strings; every multi-key change goes through a Batch that lands atomically.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/olimtoy/olimtoy/internal/database/repository"
)

// Store is the persistence contract the identity core needs.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Apply(ctx context.Context, b *Batch) error
}

// Batch collects writes that must become visible together.
type Batch struct {
	ops []repository.KVOp
}

func NewBatch() *Batch { return &Batch{} }

func (b *Batch) Set(key, value string) *Batch {
	b.ops = append(b.ops, repository.KVOp{Key: key, Value: value})
	return b
}

func (b *Batch) Delete(key string) *Batch {
	b.ops = append(b.ops, repository.KVOp{Key: key, Delete: true})
	return b
}

func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ops)
}

// Ops returns the queued writes in order.
func (b *Batch) Ops() []repository.KVOp {
	if b == nil {
		return nil
	}
	out := make([]repository.KVOp, len(b.ops))
	copy(out, b.ops)
	return out
}

// Set writes a single key.
func Set(ctx context.Context, s Store, key, value string) error {
	return s.Apply(ctx, NewBatch().Set(key, value))
}

// Delete removes a single key.
func Delete(ctx context.Context, s Store, key string) error {
	return s.Apply(ctx, NewBatch().Delete(key))
}

// SQLite persists entries in the kv_entries table.
type SQLite struct {
	repo *repository.KVRepo
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{repo: repository.NewKVRepo(db)}
}

func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	e, err := s.repo.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("store get %s: %w", key, err)
	}
	if e == nil {
		return "", false, nil
	}
	return e.Value, true, nil
}

func (s *SQLite) Apply(ctx context.Context, b *Batch) error {
	if err := s.repo.Apply(ctx, b.Ops()); err != nil {
		return fmt.Errorf("store apply: %w", err)
	}
	return nil
}

// UsesDatabase reports whether backend keeps its entries in sqlite.
func UsesDatabase(backend string) bool {
	b := strings.ToLower(strings.TrimSpace(backend))
	return b == "sqlite" || b == ""
}

// Open builds the store named by backend. db is only used by the sqlite backend.
func Open(backend string, db *sql.DB, filePath string) (Store, error) {
	if UsesDatabase(backend) {
		if db == nil {
			return nil, fmt.Errorf("store: sqlite backend needs a database")
		}
		return NewSQLite(db), nil
	}
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "file":
		return NewFile(filePath), nil
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q", backend)
	}
}
