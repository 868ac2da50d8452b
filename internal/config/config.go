package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database   DatabaseConfig
	Store      StoreConfig
	Onboarding OnboardingConfig
	Log        LogConfig
	UI         UIConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path           string
	Driver         string
	MigrationsPath string `mapstructure:"migrations_path"`
}

// StoreConfig selects where the session is persisted.
type StoreConfig struct {
	Backend  string
	FilePath string `mapstructure:"file_path"`
}

// OnboardingConfig holds the shared secrets and timers of the onboarding flow.
type OnboardingConfig struct {
	VerificationCode  string        `mapstructure:"verification_code"`
	ResendCountdown   time.Duration `mapstructure:"resend_countdown"`
	DeviceAutoAdvance time.Duration `mapstructure:"device_auto_advance"`
	ActivationCode    string        `mapstructure:"activation_code"`
}

// LogConfig points the standard logger at a file; the TUI owns the terminal.
type LogConfig struct {
	File string
}

// UIConfig holds presentation settings.
type UIConfig struct {
	DateFormat string `mapstructure:"date_format"`
	Timezone   string
}

func dataDir() string {
	return filepath.Join(os.Getenv("HOME"), ".local", "share", "olimtoy")
}

// Load reads configuration from .env, file and env. Env var overrides use prefix OLIMTOY_.
func Load() (Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("database.path", filepath.Join(dataDir(), "olimtoy.db"))
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.migrations_path", "internal/database/migrations")
	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.file_path", filepath.Join(dataDir(), "session.json"))
	v.SetDefault("onboarding.verification_code", "123456")
	v.SetDefault("onboarding.resend_countdown", 60*time.Second)
	v.SetDefault("onboarding.device_auto_advance", 8*time.Second)
	v.SetDefault("onboarding.activation_code", "bbu2025")
	v.SetDefault("log.file", filepath.Join(dataDir(), "olimtoy.log"))
	v.SetDefault("ui.date_format", "2006-01-02")
	v.SetDefault("ui.timezone", "Asia/Tashkent")

	v.SetConfigType("toml")

	cfgPath := os.Getenv("OLIMTOY_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "olimtoy"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("OLIMTOY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// Save writes the non-secret parts of cfg to disk, creating the config directory if needed.
// Onboarding codes are not written; they come from defaults or env.
func Save(cfg Config) error {
	path := os.Getenv("OLIMTOY_CONFIG")
	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".config", "olimtoy", "config.toml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("database.path", cfg.Database.Path)
	v.Set("database.driver", cfg.Database.Driver)
	v.Set("database.migrations_path", cfg.Database.MigrationsPath)
	v.Set("store.backend", cfg.Store.Backend)
	v.Set("store.file_path", cfg.Store.FilePath)
	v.Set("log.file", cfg.Log.File)
	v.Set("ui.date_format", cfg.UI.DateFormat)
	v.Set("ui.timezone", cfg.UI.Timezone)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
