package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"tokens.hh/internal/config"
	"tokens.hh/internal/store"
)

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "tokenledger",
	Short: "Token ledger and withdrawal engine",
	Long: `tokenledger records every token movement between companies and designers
as an append-only ledger and runs the designer withdrawal workflow.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("config error: %w", err)
	}
	level, _ := cfg.LogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func openStore(ctx context.Context, cfg config.Config) (*store.Store, *pgxpool.Pool, error) {
	dsn, err := cfg.DatabaseURL()
	if err != nil {
		return nil, nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("db error: %w", err)
	}
	return store.New(pool), pool, nil
}
