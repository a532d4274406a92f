package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cloudpdf/internal/config"
	"cloudpdf/internal/pkg/logger"
	mysqlClient "cloudpdf/internal/platform/mysql"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the users and theses tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config failed: %w", err)
			}
			log := logger.New(cfg.App.Env)

			db, err := mysqlClient.New(cmd.Context(), cfg.MySQLDSN(), false)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}

			if err := mysqlClient.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			log.WithField("database", cfg.MySQL.DB).Info("migration complete")
			return nil
		},
	}
}
