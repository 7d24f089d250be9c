// Package app wires the ingestion pipeline from configured backends so the
// HTTP server and the Kafka workers share one construction path.
package app

import (
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jmehdipour/payroll-projector/internal/config"
	"github.com/jmehdipour/payroll-projector/internal/envelope"
	"github.com/jmehdipour/payroll-projector/internal/fanout"
	"github.com/jmehdipour/payroll-projector/internal/projection"
	"github.com/jmehdipour/payroll-projector/internal/repository"
	"github.com/jmehdipour/payroll-projector/internal/service/ingest"
)

// Backends are the opened connections. ClickHouse and Redis are optional.
type Backends struct {
	MySQL      *sqlx.DB
	ClickHouse *sqlx.DB
	Redis      *redis.Client
}

type Pipeline struct {
	Employees     repository.EmployeesRepository
	PayAttributes repository.PayAttributesRepository
	Changes       repository.CHChangesRepository // nil without ClickHouse
	Bus           *fanout.RedisPublisher         // nil without Redis
	Local         *fanout.LocalBus               // memory mode only
	Feed          fanout.Subscriber              // whichever bus is live, or nil
	Processor     *projection.Processor
	Ingest        *ingest.Service
}

func NewPipeline(cfg config.Config, b Backends, log *zap.Logger) *Pipeline {
	p := &Pipeline{
		Employees:     repository.NewEmployeesRepository(b.MySQL),
		PayAttributes: repository.NewPayAttributesRepository(b.MySQL),
	}
	if b.ClickHouse != nil {
		p.Changes = repository.NewCHChangesRepository(b.ClickHouse)
	}
	if b.Redis != nil {
		breaker := fanout.NewBreaker(cfg.Fanout.Breaker.FailThreshold, cfg.Fanout.Breaker.OpenFor())
		p.Bus = fanout.NewRedisPublisher(b.Redis, cfg.Fanout.Channel, breaker, log)
		log.Info("change bus configured", zap.String("channel", p.Bus.Channel()))
	}
	p.build(cfg, log)
	return p
}

// NewMemoryPipeline runs the whole pipeline on the in-process store with an
// in-process change bus. It backs `serve --memory`.
func NewMemoryPipeline(cfg config.Config, log *zap.Logger) *Pipeline {
	store := repository.NewMemoryStore()
	p := &Pipeline{
		Employees:     store.Employees(),
		PayAttributes: store.PayAttributes(),
		Local:         fanout.NewLocalBus(log.Named("bus")),
	}
	p.build(cfg, log)
	return p
}

func (p *Pipeline) build(cfg config.Config, log *zap.Logger) {
	var sinks []fanout.Sink
	if p.Bus != nil {
		sinks = append(sinks, fanout.Sink{Name: "redis", Publisher: p.Bus})
		p.Feed = p.Bus
	}
	if p.Local != nil {
		sinks = append(sinks, fanout.Sink{Name: "local", Publisher: p.Local})
		p.Feed = p.Local
	}
	if p.Changes != nil && cfg.Fanout.ArchiveEnabled {
		sinks = append(sinks, fanout.Sink{Name: "clickhouse", Publisher: fanout.NewArchiveSink(p.Changes)})
	}

	p.Processor = projection.NewProcessor(
		p.Employees,
		p.PayAttributes,
		fanout.NewMulti(log, sinks...),
		projection.WithLogger(log.Named("projection")),
		projection.WithMaxAttempts(cfg.Worker.ApplyAttempts),
	)
	codec := envelope.NewCodec(envelope.WithLogger(log.Named("envelope")))
	p.Ingest = ingest.New(codec, p.Processor, log.Named("ingest"))
}
