package worker

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jmehdipour/payroll-projector/internal/kafka"
	"github.com/jmehdipour/payroll-projector/internal/service/ingest"
)

// Consumer is the part of kafka.Consumer the worker needs.
type Consumer interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

// HandlerFunc processes one payload. Errors that ingest.Acknowledged
// accepts are final; anything else is retried.
type HandlerFunc func(ctx context.Context, value []byte) error

// IngestKafka:
// - fetches records from one topic,
// - hands each partition to a fixed processor so offsets commit in order,
// - retries unacknowledged records in place with exponential backoff,
// - commits only acknowledged records.
type IngestKafka struct {
	Consumer Consumer
	Handle   HandlerFunc
	Channel  string // employee | netpay, for logs

	Workers      int
	RetryInitial time.Duration
	RetryMax     time.Duration
	Log          *zap.Logger
}

func NewIngestKafka(consumer Consumer, channel string, handle HandlerFunc, log *zap.Logger) *IngestKafka {
	return &IngestKafka{
		Consumer:     consumer,
		Handle:       handle,
		Channel:      channel,
		Workers:      8,
		RetryInitial: 200 * time.Millisecond,
		RetryMax:     30 * time.Second,
		Log:          log,
	}
}

// Run blocks until ctx is cancelled and every goroutine has returned.
func (w *IngestKafka) Run(ctx context.Context) error {
	if w.Consumer == nil || w.Handle == nil {
		return errors.New("ingest-kafka: consumer and handler are required")
	}
	if w.Workers <= 0 {
		w.Workers = 8
	}
	if w.Log == nil {
		w.Log = zap.NewNop()
	}
	log := w.Log.With(zap.String("channel", w.Channel))

	lanes := make([]chan kafka.Message, w.Workers)
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 16)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer func() {
			for _, l := range lanes {
				close(l)
			}
		}()
		for {
			m, err := w.Consumer.Fetch(gctx)
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				log.Warn("kafka fetch failed", zap.Error(err))
				select {
				case <-gctx.Done():
					return nil
				case <-time.After(200 * time.Millisecond):
				}
				continue
			}

			lane := lanes[m.Partition%len(lanes)]
			select {
			case lane <- m:
			case <-gctx.Done():
				return nil
			}
		}
	})

	for i := range lanes {
		in := lanes[i]
		g.Go(func() error {
			w.runProcessor(gctx, log, in)
			return nil
		})
	}

	log.Info("ingest worker started", zap.Int("workers", w.Workers))
	err := g.Wait()
	log.Info("ingest worker stopped")
	return err
}

func (w *IngestKafka) runProcessor(ctx context.Context, log *zap.Logger, in <-chan kafka.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			w.processOne(ctx, log, m)
		}
	}
}

func (w *IngestKafka) processOne(ctx context.Context, log *zap.Logger, m kafka.Message) {
	log = log.With(zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset))

	b := backoff.NewExponentialBackOff()
	if w.RetryInitial > 0 {
		b.InitialInterval = w.RetryInitial
	}
	if w.RetryMax > 0 {
		b.MaxInterval = w.RetryMax
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := w.Handle(ctx, m.Value)
		if ingest.Acknowledged(err) {
			return struct{}{}, nil
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("message not applied, retrying", zap.Duration("in", next), zap.Error(err))
		}),
	)
	if err != nil {
		// only reachable on shutdown; the record is redelivered after restart
		log.Info("leaving message uncommitted", zap.Error(err))
		return
	}

	if err := w.Consumer.Commit(ctx, m); err != nil {
		log.Error("kafka commit failed", zap.Error(err))
	}
}
