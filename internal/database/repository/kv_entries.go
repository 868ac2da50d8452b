package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/olimtoy/olimtoy/internal/database"
)

// KVRepo handles kv_entries.
type KVRepo struct {
	db *sql.DB
}

func NewKVRepo(db *sql.DB) *KVRepo {
	return &KVRepo{db: db}
}

// Get returns the entry for key, or nil when absent. UpdatedAt is only filled by List.
func (r *KVRepo) Get(ctx context.Context, key string) (*KVEntry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT key, value FROM kv_entries WHERE key = ?`, key)
	e := KVEntry{}
	if err := row.Scan(&e.Key, &e.Value); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (r *KVRepo) Upsert(ctx context.Context, key, value string) error {
	return r.Apply(ctx, []KVOp{{Key: key, Value: value}})
}

func (r *KVRepo) Delete(ctx context.Context, key string) error {
	return r.Apply(ctx, []KVOp{{Key: key, Delete: true}})
}

// Apply runs every op in one transaction; either all land or none do.
func (r *KVRepo) Apply(ctx context.Context, ops []KVOp) error {
	if len(ops) == 0 {
		return nil
	}
	return database.WithTx(r.db, func(tx *sql.Tx) error {
		for _, op := range ops {
			if op.Delete {
				if _, err := tx.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, op.Key); err != nil {
					return fmt.Errorf("delete %s: %w", op.Key, err)
				}
				continue
			}
			_, err := tx.ExecContext(ctx, `
	INSERT INTO kv_entries(key, value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
	 value=excluded.value,
	 updated_at=excluded.updated_at;
	`, op.Key, op.Value, database.Now())
			if err != nil {
				return fmt.Errorf("upsert %s: %w", op.Key, err)
			}
		}
		return nil
	})
}

func (r *KVRepo) List(ctx context.Context) ([]KVEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value, updated_at FROM kv_entries ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []KVEntry
	for rows.Next() {
		var e KVEntry
		if err := rows.Scan(&e.Key, &e.Value, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
