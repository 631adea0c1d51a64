package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dvloznov/openfinance-sync/internal/config"
)

func TestOpenStore(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.StoreConfig
		wantErr bool
	}{
		{"memory", config.StoreConfig{Driver: "memory"}, false},
		{"sqlite", config.StoreConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "docs.db")}, false},
		{"unknown", config.StoreConfig{Driver: "postgres"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := OpenStore(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("OpenStore() error = %v, wantErr %v", err, tt.wantErr)
			}
			if store != nil {
				store.Close()
			}
		})
	}
}

func TestNew_WithoutCloudComponents(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store = config.StoreConfig{Driver: "memory"}
	cfg.Pluggy.ClientID = "id"
	cfg.Pluggy.ClientSecret = "secret"

	a, err := New(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if a.Orchestrator == nil || a.Pluggy == nil || a.Jobs == nil {
		t.Errorf("app is missing collaborators: %+v", a)
	}
	if a.Warehouse != nil {
		t.Error("warehouse should be disabled by default")
	}
}
