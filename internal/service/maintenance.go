package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/olimtoy/olimtoy/internal/database"
	"github.com/olimtoy/olimtoy/internal/database/repository"
)

// MaintenanceService houses destructive/ops actions surfaced through the TUI.
type MaintenanceService struct {
	DB *sql.DB
}

// Stats describes what is stored locally.
type Stats struct {
	Entries   int
	Keys      []string
	LastWrite time.Time
}

// Reset wipes every stored entry. It keeps the schema intact so the app can continue running.
func (s *MaintenanceService) Reset(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("maintenance: db not configured")
	}
	if err := database.WithTx(s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM kv_entries"); err != nil {
			return fmt.Errorf("reset kv_entries: %w", err)
		}
		return nil
	}); err != nil {
		return err
	}
	_, _ = s.DB.ExecContext(ctx, "VACUUM")
	return nil
}

// Stats lists the stored keys and when the newest one was written.
func (s *MaintenanceService) Stats(ctx context.Context) (Stats, error) {
	if s.DB == nil {
		return Stats{}, fmt.Errorf("maintenance: db not configured")
	}
	entries, err := repository.NewKVRepo(s.DB).List(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	var st Stats
	for _, e := range entries {
		st.Keys = append(st.Keys, e.Key)
		if e.UpdatedAt.After(st.LastWrite) {
			st.LastWrite = e.UpdatedAt
		}
	}
	st.Entries = len(st.Keys)
	return st, nil
}
