// Package config loads the service configuration from a TOML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full service configuration.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Log         LogConfig         `toml:"log"`
	Pluggy      PluggyConfig      `toml:"pluggy"`
	Sync        SyncConfig        `toml:"sync"`
	Store       StoreConfig       `toml:"store"`
	Warehouse   WarehouseConfig   `toml:"warehouse"`
	Archive     ArchiveConfig     `toml:"archive"`
	Categorizer CategorizerConfig `toml:"categorizer"`
	Auth        AuthConfig        `toml:"auth"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            int      `toml:"port"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

// LogConfig selects log level and format.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// PluggyConfig holds aggregator API settings.
type PluggyConfig struct {
	BaseURL           string   `toml:"base_url"`
	ClientID          string   `toml:"client_id"`
	ClientSecret      string   `toml:"client_secret"`
	MaxAttempts       int      `toml:"max_attempts"`
	RetryBaseDelay    Duration `toml:"retry_base_delay"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	PageSize          int      `toml:"page_size"`
}

// SyncConfig tunes the sync engine.
type SyncConfig struct {
	BatchCeiling       int `toml:"batch_ceiling"`
	LookbackDays       int `toml:"lookback_days"`
	AccountConcurrency int `toml:"account_concurrency"`
	Workers            int `toml:"workers"`
	QueueSize          int `toml:"queue_size"`
}

// StoreConfig selects the document store.
type StoreConfig struct {
	Driver string `toml:"driver"` // sqlite or memory
	Path   string `toml:"path"`
}

// WarehouseConfig enables the BigQuery export of synced transactions.
type WarehouseConfig struct {
	Enabled   bool   `toml:"enabled"`
	ProjectID string `toml:"project_id"`
	DatasetID string `toml:"dataset_id"`
}

// ArchiveConfig enables archiving raw aggregator payloads to Cloud Storage.
type ArchiveConfig struct {
	Enabled bool   `toml:"enabled"`
	Bucket  string `toml:"bucket"`
}

// CategorizerConfig enables Gemini categorization of uncategorized transactions.
type CategorizerConfig struct {
	Enabled bool   `toml:"enabled"`
	Model   string `toml:"model"`
}

// AuthConfig maps static bearer tokens to user ids (development only).
type AuthConfig struct {
	Tokens map[string]string `toml:"tokens"`
}

// Duration is a time.Duration that decodes from TOML strings like "500ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: Duration{30 * time.Second},
		},
		Log: LogConfig{Level: "info", Format: "console"},
		Pluggy: PluggyConfig{
			BaseURL:           "https://api.pluggy.ai",
			MaxAttempts:       3,
			RetryBaseDelay:    Duration{500 * time.Millisecond},
			RequestsPerSecond: 10,
			PageSize:          500,
		},
		Sync: SyncConfig{
			BatchCeiling:       450,
			LookbackDays:       90,
			AccountConcurrency: 1,
			Workers:            4,
			QueueSize:          100,
		},
		Store: StoreConfig{Driver: "sqlite", Path: "openfinance.db"},
		Warehouse: WarehouseConfig{
			DatasetID: "finance",
		},
		Categorizer: CategorizerConfig{Model: "gemini-2.5-flash"},
	}
}

// Load reads the TOML file at path over the defaults and applies environment
// overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: decoding %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PLUGGY_CLIENT_ID"); v != "" {
		c.Pluggy.ClientID = v
	}
	if v := os.Getenv("PLUGGY_CLIENT_SECRET"); v != "" {
		c.Pluggy.ClientSecret = v
	}
	if v := os.Getenv("PLUGGY_BASE_URL"); v != "" {
		c.Pluggy.BaseURL = v
	}
	if v := os.Getenv("GCS_BUCKET"); v != "" {
		c.Archive.Bucket = v
	}
	if v := os.Getenv("GCP_PROJECT"); v != "" {
		c.Warehouse.ProjectID = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	return nil
}

// Validate reports every missing or out-of-range setting.
func (c Config) Validate() error {
	var errs []error
	if c.Pluggy.ClientID == "" || c.Pluggy.ClientSecret == "" {
		errs = append(errs, errors.New("pluggy client_id and client_secret are required"))
	}
	if c.Pluggy.MaxAttempts < 1 {
		errs = append(errs, errors.New("pluggy max_attempts must be at least 1"))
	}
	if c.Sync.BatchCeiling < 1 || c.Sync.BatchCeiling > 500 {
		errs = append(errs, fmt.Errorf("sync batch_ceiling %d must be within 1..500", c.Sync.BatchCeiling))
	}
	if c.Sync.AccountConcurrency < 1 {
		errs = append(errs, errors.New("sync account_concurrency must be at least 1"))
	}
	if c.Store.Driver != "sqlite" && c.Store.Driver != "memory" {
		errs = append(errs, fmt.Errorf("store driver %q must be sqlite or memory", c.Store.Driver))
	}
	if c.Warehouse.Enabled && c.Warehouse.ProjectID == "" {
		errs = append(errs, errors.New("warehouse project_id is required when enabled"))
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		errs = append(errs, errors.New("archive bucket is required when enabled"))
	}
	return errors.Join(errs...)
}
