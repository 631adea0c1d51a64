package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Sync.BatchCeiling != 450 {
		t.Errorf("Sync.BatchCeiling = %d, want %d", cfg.Sync.BatchCeiling, 450)
	}
	if cfg.Sync.LookbackDays != 90 {
		t.Errorf("Sync.LookbackDays = %d, want %d", cfg.Sync.LookbackDays, 90)
	}
	if cfg.Sync.AccountConcurrency != 1 {
		t.Errorf("Sync.AccountConcurrency = %d, want 1 (sequential)", cfg.Sync.AccountConcurrency)
	}
	if cfg.Pluggy.MaxAttempts != 3 {
		t.Errorf("Pluggy.MaxAttempts = %d, want %d", cfg.Pluggy.MaxAttempts, 3)
	}
	if cfg.Pluggy.RetryBaseDelay.Duration != 500*time.Millisecond {
		t.Errorf("Pluggy.RetryBaseDelay = %v, want 500ms", cfg.Pluggy.RetryBaseDelay)
	}
	if cfg.Warehouse.Enabled || cfg.Archive.Enabled || cfg.Categorizer.Enabled {
		t.Error("optional integrations should be disabled by default")
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[pluggy]
client_id = "file-id"
client_secret = "file-secret"
retry_base_delay = "250ms"

[sync]
batch_ceiling = 300
account_concurrency = 4

[auth.tokens]
dev-token = "user-1"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PLUGGY_CLIENT_SECRET", "env-secret")
	t.Setenv("PORT", "9090")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Pluggy.ClientID != "file-id" {
		t.Errorf("ClientID = %q, want file-id", cfg.Pluggy.ClientID)
	}
	if cfg.Pluggy.ClientSecret != "env-secret" {
		t.Errorf("ClientSecret = %q, want env override", cfg.Pluggy.ClientSecret)
	}
	if cfg.Pluggy.RetryBaseDelay.Duration != 250*time.Millisecond {
		t.Errorf("RetryBaseDelay = %v, want 250ms", cfg.Pluggy.RetryBaseDelay)
	}
	if cfg.Sync.BatchCeiling != 300 || cfg.Sync.AccountConcurrency != 4 {
		t.Errorf("Sync = %+v", cfg.Sync)
	}
	if cfg.Sync.LookbackDays != 90 {
		t.Errorf("LookbackDays = %d, default should survive a partial file", cfg.Sync.LookbackDays)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Auth.Tokens["dev-token"] != "user-1" {
		t.Errorf("Auth.Tokens = %v", cfg.Auth.Tokens)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing credentials", func(c *Config) { c.Pluggy.ClientSecret = "" }, true},
		{"ceiling above store limit", func(c *Config) { c.Sync.BatchCeiling = 501 }, true},
		{"zero concurrency", func(c *Config) { c.Sync.AccountConcurrency = 0 }, true},
		{"unknown driver", func(c *Config) { c.Store.Driver = "postgres" }, true},
		{"warehouse without project", func(c *Config) { c.Warehouse.Enabled = true }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Pluggy.ClientID = "id"
			cfg.Pluggy.ClientSecret = "secret"
			tt.mutate(&cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
