// Package ingest is the single entry point for both ingestion channels. It
// decodes, applies, counts, and tells the transport whether to acknowledge.
package ingest

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/jmehdipour/payroll-projector/internal/envelope"
	"github.com/jmehdipour/payroll-projector/internal/metrics"
	"github.com/jmehdipour/payroll-projector/internal/model"
	"github.com/jmehdipour/payroll-projector/internal/projection"
)

const (
	outcomeDecodeError = "decode_error"
	outcomeTombstone   = "tombstone"
	outcomeError       = "error"
)

// Applier is the projection side of the pipeline.
type Applier interface {
	ApplyEmployeeEvent(ctx context.Context, ev model.CanonicalEvent) (projection.Outcome, error)
	ApplyPaySnapshot(ctx context.Context, snap model.PaySnapshot) (projection.Outcome, error)
}

type Service struct {
	codec *envelope.Codec
	proj  Applier
	log   *zap.Logger
}

func New(codec *envelope.Codec, proj Applier, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{codec: codec, proj: proj, log: log}
}

// Acknowledged reports whether a message that produced err may be dropped
// by the transport. Only store failures ask for redelivery; a publish
// failure follows a committed write and a redelivery would be absorbed as
// a duplicate.
func Acknowledged(err error) bool {
	return err == nil || errors.Is(err, projection.ErrPublish)
}

// HandleEmployeeEvent processes one employee-events payload. A nil error
// means the message is finished, including rejections and bad payloads.
func (s *Service) HandleEmployeeEvent(ctx context.Context, raw []byte) error {
	start := time.Now()
	defer func() {
		metrics.ApplySeconds.WithLabelValues(metrics.ChannelEmployee).Observe(time.Since(start).Seconds())
	}()

	ev, shape, err := s.codec.DecodeEmployeeEvent(raw)
	if err != nil {
		s.decodeFailed(metrics.ChannelEmployee, raw, err)
		return nil
	}

	out, err := s.proj.ApplyEmployeeEvent(ctx, ev)
	return s.finish(metrics.ChannelEmployee, out, err,
		zap.String("employee_id", ev.EntityID.String()),
		zap.String("event_id", ev.EventID),
		zap.String("shape", string(shape)),
	)
}

// HandlePaySnapshot processes one employee-net-pay payload.
func (s *Service) HandlePaySnapshot(ctx context.Context, raw []byte) error {
	start := time.Now()
	defer func() {
		metrics.ApplySeconds.WithLabelValues(metrics.ChannelNetPay).Observe(time.Since(start).Seconds())
	}()

	snap, err := s.codec.DecodePaySnapshot(raw)
	if errors.Is(err, envelope.ErrTombstone) {
		metrics.EventsTotal.WithLabelValues(metrics.ChannelNetPay, outcomeTombstone).Inc()
		s.log.Debug("skipping net-pay tombstone")
		return nil
	}
	if err != nil {
		s.decodeFailed(metrics.ChannelNetPay, raw, err)
		return nil
	}

	out, err := s.proj.ApplyPaySnapshot(ctx, snap)
	return s.finish(metrics.ChannelNetPay, out, err,
		zap.String("employee_id", snap.EmployeeID),
		zap.Int64("pay_period", snap.PayPeriodNumber),
	)
}

func (s *Service) decodeFailed(channel string, raw []byte, err error) {
	metrics.DecodeFailuresTotal.WithLabelValues(channel).Inc()
	metrics.EventsTotal.WithLabelValues(channel, outcomeDecodeError).Inc()
	s.log.Warn("dropping undecodable payload",
		zap.String("channel", channel),
		zap.Int("bytes", len(raw)),
		zap.Error(err),
	)
}

func (s *Service) finish(channel string, out projection.Outcome, err error, fields ...zap.Field) error {
	switch {
	case err == nil:
		metrics.EventsTotal.WithLabelValues(channel, out.String()).Inc()
	case errors.Is(err, projection.ErrPublish):
		metrics.EventsTotal.WithLabelValues(channel, out.String()).Inc()
		s.log.Error("stored but not published", append(fields, zap.Error(err))...)
	default:
		metrics.EventsTotal.WithLabelValues(channel, outcomeError).Inc()
		s.log.Error("apply failed, leaving message for redelivery", append(fields, zap.Error(err))...)
	}
	return err
}
