package repository

import "time"

// KVEntry represents a kv_entries row.
type KVEntry struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// KVOp is one write in an atomic batch. Delete wins over Value.
type KVOp struct {
	Key    string
	Value  string
	Delete bool
}
