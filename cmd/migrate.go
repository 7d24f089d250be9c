package cmd

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmehdipour/payroll-projector/internal/config"
	"github.com/jmehdipour/payroll-projector/internal/db"
	"github.com/jmehdipour/payroll-projector/internal/logger"
	"github.com/jmehdipour/payroll-projector/migrations"
)

var migrateSkipClickHouse bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the MySQL projection tables and the ClickHouse change archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log := logger.Init(cfg.Log.Level)
		ctx := cmd.Context()

		mysqlDB, err := db.OpenMySQL(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("open mysql: %w", err)
		}
		defer mysqlDB.Close()

		stmts, err := migrations.MySQL()
		if err != nil {
			return fmt.Errorf("read mysql migrations: %w", err)
		}
		if err := apply(ctx, mysqlDB, stmts); err != nil {
			return fmt.Errorf("mysql migration: %w", err)
		}
		log.Info("mysql migration complete", zap.Int("statements", len(stmts)))

		if migrateSkipClickHouse {
			return nil
		}

		chDB, err := db.OpenClickHouse(cfg.ClickHouse)
		if err != nil {
			return fmt.Errorf("open clickhouse: %w", err)
		}
		defer chDB.Close()

		stmts, err = migrations.ClickHouse()
		if err != nil {
			return fmt.Errorf("read clickhouse migrations: %w", err)
		}
		if err := apply(ctx, chDB, stmts); err != nil {
			return fmt.Errorf("clickhouse migration: %w", err)
		}
		log.Info("clickhouse migration complete", zap.Int("statements", len(stmts)))
		return nil
	},
}

func apply(ctx context.Context, dbx *sqlx.DB, stmts []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for i, s := range stmts {
		if _, err := dbx.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("statement %d: %w", i+1, err)
		}
	}
	return nil
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateSkipClickHouse, "skip-clickhouse", false, "only migrate MySQL")
}
