// Package app builds the sync service's object graph from a Config. Both
// the HTTP server and the operator CLI start from here.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"

	"github.com/dvloznov/openfinance-sync/internal/archive"
	"github.com/dvloznov/openfinance-sync/internal/banksync"
	"github.com/dvloznov/openfinance-sync/internal/categorize"
	"github.com/dvloznov/openfinance-sync/internal/config"
	"github.com/dvloznov/openfinance-sync/internal/docstore"
	docmem "github.com/dvloznov/openfinance-sync/internal/docstore/inmemory"
	"github.com/dvloznov/openfinance-sync/internal/docstore/sqlite"
	infraBQ "github.com/dvloznov/openfinance-sync/internal/infra/bigquery"
	"github.com/dvloznov/openfinance-sync/internal/jobs"
	"github.com/dvloznov/openfinance-sync/internal/pluggy"
)

// App holds the long-lived collaborators of the service.
type App struct {
	Config       config.Config
	Docs         docstore.Store
	Pluggy       *pluggy.Client
	Jobs         *jobs.Store
	Orchestrator *banksync.Orchestrator

	// Warehouse is nil unless the BigQuery export is enabled.
	Warehouse *infraBQ.Warehouse

	closers []func() error
}

// New opens the document store and the optional cloud clients and wires the
// orchestrator. Call Close when done.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg}

	docs, err := OpenStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	a.Docs = docs
	a.closers = append(a.closers, docs.Close)

	httpClient := &http.Client{Timeout: 60 * time.Second}
	tokens := pluggy.NewTokenCache(cfg.Pluggy.BaseURL, cfg.Pluggy.ClientID, cfg.Pluggy.ClientSecret, httpClient)
	a.Pluggy = pluggy.NewClient(cfg.Pluggy.BaseURL, tokens, pluggy.Options{
		HTTPClient:        httpClient,
		MaxAttempts:       cfg.Pluggy.MaxAttempts,
		RetryBaseDelay:    cfg.Pluggy.RetryBaseDelay.Duration,
		RequestsPerSecond: cfg.Pluggy.RequestsPerSecond,
		PageSize:          cfg.Pluggy.PageSize,
	})
	a.Jobs = jobs.NewStore(docs)

	var opts []banksync.Option

	if cfg.Warehouse.Enabled {
		wh, err := infraBQ.NewWarehouse(ctx, cfg.Warehouse.ProjectID, cfg.Warehouse.DatasetID)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Warehouse = wh
		a.closers = append(a.closers, wh.Close)
		opts = append(opts, banksync.WithSink(wh))
		log.Info().Str("project", cfg.Warehouse.ProjectID).Str("dataset", cfg.Warehouse.DatasetID).Msg("Warehouse export enabled")
	}

	if cfg.Archive.Enabled {
		client, err := storage.NewClient(ctx)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		opts = append(opts, banksync.WithArchiver(archive.New(archive.NewGCSBucket(client, cfg.Archive.Bucket))))
		log.Info().Str("bucket", cfg.Archive.Bucket).Msg("Raw payload archive enabled")
	}

	if cfg.Categorizer.Enabled {
		gen, err := categorize.NewGeminiGenerator(ctx, cfg.Categorizer.Model)
		if err != nil {
			a.Close()
			return nil, err
		}
		opts = append(opts, banksync.WithCategorizer(categorize.New(gen, nil)))
		log.Info().Str("model", cfg.Categorizer.Model).Msg("Transaction categorizer enabled")
	}

	a.Orchestrator = banksync.New(a.Pluggy, docs, a.Jobs, banksync.Config{
		BatchCeiling:       cfg.Sync.BatchCeiling,
		LookbackDays:       cfg.Sync.LookbackDays,
		AccountConcurrency: cfg.Sync.AccountConcurrency,
	}, opts...)

	return a, nil
}

// OpenStore opens the configured document store.
func OpenStore(cfg config.StoreConfig) (docstore.Store, error) {
	switch cfg.Driver {
	case "memory":
		return docmem.NewStore(), nil
	case "sqlite", "":
		store, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// Close releases every opened client, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
