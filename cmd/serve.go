package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmehdipour/payroll-projector/internal/app"
	"github.com/jmehdipour/payroll-projector/internal/config"
	"github.com/jmehdipour/payroll-projector/internal/db"
	httpSrv "github.com/jmehdipour/payroll-projector/internal/http"
	"github.com/jmehdipour/payroll-projector/internal/logger"
)

var serveMemory bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP query layer, change feed and push ingestion endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log := logger.Init(cfg.Log.Level)
		defer func() { _ = log.Sync() }()

		var (
			pipe *app.Pipeline
			deps httpSrv.Deps
		)
		if serveMemory {
			log.Warn("serving from the in-memory store; state is lost on exit")
			pipe = app.NewMemoryPipeline(cfg, log)
		} else {
			mysqlDB, err := db.OpenMySQL(cfg.MySQL)
			if err != nil {
				return fmt.Errorf("mysql connect: %w", err)
			}
			defer mysqlDB.Close()

			redisClient, err := db.OpenRedis(cfg.Redis)
			if err != nil {
				return fmt.Errorf("redis connect: %w", err)
			}
			defer func() { _ = redisClient.Close() }()

			chDB, err := db.OpenClickHouse(cfg.ClickHouse)
			if err != nil {
				return fmt.Errorf("clickhouse connect: %w", err)
			}
			defer func() { _ = chDB.Close() }()

			pipe = app.NewPipeline(cfg, app.Backends{MySQL: mysqlDB, ClickHouse: chDB, Redis: redisClient}, log)
			deps.Redis = redisClient
		}

		deps.Employees = pipe.Employees
		deps.PayAttributes = pipe.PayAttributes
		deps.Changes = pipe.Changes
		deps.Ingest = pipe.Ingest
		deps.Log = log.Named("http")
		if pipe.Feed != nil {
			deps.Feed = pipe.Feed
		}

		server := httpSrv.NewServer(cfg, deps)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() { errCh <- server.Start(cfg.HTTP.Addr) }()

		select {
		case <-ctx.Done():
			log.Info("signal received, shutting down")
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server exited", zap.Error(err))
				return err
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveMemory, "memory", false, "use the in-memory store instead of MySQL/Redis/ClickHouse")
}
