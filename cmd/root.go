package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kozaktomas/customer-recognition/internal/config"
	"github.com/kozaktomas/customer-recognition/internal/database"
	"github.com/kozaktomas/customer-recognition/internal/database/postgres"
	"github.com/kozaktomas/customer-recognition/internal/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "customer-recognition",
	Short: "Recognize returning customers and predict their bills",
	Long: `Customer Recognition identifies returning customers from face embeddings,
keeps their visit and purchase history in PostgreSQL and predicts the bill
of every detected customer for the cashier.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig reads the configuration and installs the default logger.
func loadConfig() *config.Config {
	cfg := config.Load()
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logging.SetDefault(logging.New(cfg.Log.Level, os.Stderr))
	return cfg
}

// openStore connects to PostgreSQL, runs migrations and returns the customer store.
// The returned pool must be closed by the caller.
func openStore(ctx context.Context, cfg *config.Config) (*postgres.Pool, database.CustomerStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logging.From(ctx).Info("connecting to PostgreSQL")
	pool, err := postgres.Initialize(ctx, &cfg.Database)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to initialize PostgreSQL")
	}

	store, err := database.GetCustomerStore(ctx)
	if err != nil {
		pool.Close()
		return nil, nil, goerr.Wrap(err, "failed to get customer store")
	}
	return pool, store, nil
}
