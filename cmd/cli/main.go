package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/dvloznov/openfinance-sync/internal/app"
	"github.com/dvloznov/openfinance-sync/internal/config"
	"github.com/dvloznov/openfinance-sync/internal/docstore"
	"github.com/dvloznov/openfinance-sync/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "openfinance",
	Short: "Operate the Open Finance sync service",
	Long: `Operator commands for the Open Finance sync service. They use the same
config file and document store as the API server.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", os.Getenv("OPENFINANCE_CONFIG"), "Path to the TOML config file")
	rootCmd.PersistentFlags().StringP("user", "u", "", "User id the command acts for")
}

func main() {
	// Stored amounts are JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the --config file and sets up the logger.
func loadConfig(cmd *cobra.Command) (config.Config, zerolog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	log := logger.NewWithConfig(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	return cfg, log, nil
}

// openApp loads the config and builds the full service.
func openApp(cmd *cobra.Command) (context.Context, *app.App, error) {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx := logger.WithContext(cmd.Context(), log)
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return ctx, a, nil
}

func requireUser(cmd *cobra.Command) (string, error) {
	user, _ := cmd.Flags().GetString("user")
	if user == "" {
		return "", fmt.Errorf("--user is required")
	}
	return user, nil
}

// openStore opens only the document store, for read-only commands.
func openStore(cfg config.Config) (docstore.Store, error) {
	return app.OpenStore(cfg.Store)
}
