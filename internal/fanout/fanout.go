// Package fanout delivers change notifications to live subscribers and to
// the reporting archive. Delivery is best effort: callers log and count
// failures but never undo the stored projection because of them.
package fanout

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jmehdipour/payroll-projector/internal/metrics"
	"github.com/jmehdipour/payroll-projector/internal/model"
	"github.com/jmehdipour/payroll-projector/internal/repository"
)

var ErrBreakerOpen = errors.New("fanout: circuit breaker open")

type Publisher interface {
	Publish(ctx context.Context, n model.ChangeNotification) error
}

// Subscriber is the live side of a bus.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan model.ChangeNotification, error)
}

// Sink names a publisher for logs and the failure counter.
type Sink struct {
	Name      string
	Publisher Publisher
}

// Multi publishes to every sink, even after one fails, and joins the errors.
type Multi struct {
	sinks []Sink
	log   *zap.Logger
}

func NewMulti(log *zap.Logger, sinks ...Sink) *Multi {
	if log == nil {
		log = zap.NewNop()
	}
	return &Multi{sinks: sinks, log: log}
}

func (m *Multi) Publish(ctx context.Context, n model.ChangeNotification) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Publisher.Publish(ctx, n); err != nil {
			metrics.PublishFailuresTotal.WithLabelValues(s.Name).Inc()
			m.log.Warn("sink rejected change notification",
				zap.String("sink", s.Name),
				zap.String("notification_id", n.ID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// ArchiveSink appends notifications to the ClickHouse change history.
type ArchiveSink struct {
	repo repository.CHChangesRepository
}

func NewArchiveSink(repo repository.CHChangesRepository) *ArchiveSink {
	return &ArchiveSink{repo: repo}
}

func (a *ArchiveSink) Publish(ctx context.Context, n model.ChangeNotification) error {
	if err := a.repo.Insert(ctx, n); err != nil {
		return fmt.Errorf("archive change %s: %w", n.ID, err)
	}
	return nil
}
