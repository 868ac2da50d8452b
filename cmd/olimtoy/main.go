package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/olimtoy/olimtoy/internal/capability"
	"github.com/olimtoy/olimtoy/internal/config"
	"github.com/olimtoy/olimtoy/internal/database"
	"github.com/olimtoy/olimtoy/internal/flow"
	"github.com/olimtoy/olimtoy/internal/identity"
	"github.com/olimtoy/olimtoy/internal/service"
	"github.com/olimtoy/olimtoy/internal/sms"
	"github.com/olimtoy/olimtoy/internal/store"
	"github.com/olimtoy/olimtoy/internal/tui"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// the TUI owns the terminal, so logs go to a file
	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755); err != nil {
			log.Fatalf("mkdir log dir: %v", err)
		}
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("open log: %v", err)
		}
		defer f.Close()
		log.SetOutput(f)
	}

	// file and memory backends never touch sqlite
	var db *sql.DB
	if store.UsesDatabase(cfg.Store.Backend) {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			log.Fatalf("mkdir db dir: %v", err)
		}
		db, err = database.Open(cfg.Database.Driver, cfg.Database.Path)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer db.Close()

		if err := database.RunMigrations(db, cfg.Database.MigrationsPath); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

	st, err := store.Open(cfg.Store.Backend, db, cfg.Store.FilePath)
	if err != nil {
		log.Fatalf("store: %v", err)
	}

	session := identity.NewSession(st, identity.WithActivationCode(cfg.Onboarding.ActivationCode))
	if acct, ok := session.RestoreSession(ctx); ok {
		log.Printf("restored %s session %s", acct.Role, acct.ID)
	}

	sender := sms.NewLogSender()
	ctl := flow.NewController(session, sender, flow.Config{
		VerificationCode:  cfg.Onboarding.VerificationCode,
		ResendCountdown:   cfg.Onboarding.ResendCountdown,
		DeviceAutoAdvance: cfg.Onboarding.DeviceAutoAdvance,
	})

	acquirers := map[capability.Kind]capability.Acquirer{}
	for k, s := range capability.Stubs() {
		acquirers[k] = s
	}

	var maintenance *service.MaintenanceService
	if db != nil {
		maintenance = &service.MaintenanceService{DB: db}
	}

	loc, err := time.LoadLocation(cfg.UI.Timezone)
	if err != nil {
		log.Printf("warn: using local timezone due to load failure: %v", err)
		loc = time.Local
	}

	p := tea.NewProgram(tui.New(ctx, cfg, tui.Deps{
		Controller:  ctl,
		Acquirers:   acquirers,
		Maintenance: maintenance,
		Support:     sender,
	}, loc), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("error: %v\n", err)
	}
}
