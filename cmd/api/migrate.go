package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		st, pool, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}
		logger.Info("schema applied")
		return nil
	},
}
