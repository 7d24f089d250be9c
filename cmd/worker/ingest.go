package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmehdipour/payroll-projector/internal/app"
	"github.com/jmehdipour/payroll-projector/internal/config"
	"github.com/jmehdipour/payroll-projector/internal/db"
	"github.com/jmehdipour/payroll-projector/internal/kafka"
	"github.com/jmehdipour/payroll-projector/internal/logger"
	"github.com/jmehdipour/payroll-projector/internal/metrics"
	"github.com/jmehdipour/payroll-projector/internal/worker"
)

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Consume an ingestion topic (employee | netpay)",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "employee",
		Short: "Project employee domain events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, metrics.ChannelEmployee)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "netpay",
		Short: "Project net-pay snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, metrics.ChannelNetPay)
		},
	})
	return cmd
}

func runIngest(cmd *cobra.Command, channel string) error {
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.Init(cfg.Log.Level).Named("worker")
	defer func() { _ = log.Sync() }()

	metrics.MustRegister(prometheus.DefaultRegisterer)

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

	backends := app.Backends{MySQL: mysqlDB, Redis: redisClient}
	if cfg.Fanout.ArchiveEnabled {
		chDB, err := db.OpenClickHouse(cfg.ClickHouse)
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}
		defer func() { _ = chDB.Close() }()
		backends.ClickHouse = chDB
	}
	pipe := app.NewPipeline(cfg, backends, log)

	topic := cfg.Kafka.Topics.EmployeeEvents
	handle := pipe.Ingest.HandleEmployeeEvent
	if channel == metrics.ChannelNetPay {
		topic = cfg.Kafka.Topics.NetPay
		handle = pipe.Ingest.HandlePaySnapshot
	}
	groupID := cfg.Kafka.GroupID
	if groupID == "" {
		groupID = "payroll-projector"
	}
	groupID = groupID + "-" + channel

	consumer := kafka.NewConsumerFromConfig(kafka.Config{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       cfg.Kafka.MinBytes,
		MaxBytes:       cfg.Kafka.MaxBytes,
		CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
	})
	defer consumer.Close()

	w := worker.NewIngestKafka(consumer, channel, handle, log)
	if cfg.Worker.Count > 0 {
		w.Workers = cfg.Worker.Count
	}
	if cfg.Worker.RetryInitial > 0 {
		w.RetryInitial = cfg.Worker.RetryInitial
	}
	if cfg.Worker.RetryMax > 0 {
		w.RetryMax = cfg.Worker.RetryMax
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("ingest worker started",
		zap.String("channel", channel),
		zap.String("topic", consumer.Topic()),
		zap.String("group", groupID),
		zap.Int("workers", w.Workers),
	)
	return w.Run(ctx)
}
