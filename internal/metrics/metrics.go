package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ChannelEmployee = "employee"
	ChannelNetPay   = "netpay"
)

var (
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "projector_events_total",
			Help: "Ingested messages by channel and outcome",
		},
		[]string{"channel", "outcome"}, // employee|netpay , applied|duplicate|stale|unknown_type|invalid_id|decode_error|tombstone|error
	)

	PublishFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "projector_publish_failures_total",
			Help: "Change notifications that a fan-out sink failed to accept",
		},
		[]string{"sink"},
	)

	DecodeFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "projector_decode_failures_total",
			Help: "Payloads that could not be decoded",
		},
		[]string{"channel"},
	)

	ApplySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "projector_apply_seconds",
			Help:    "Time spent applying one message, decode to publish",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)
)

var once sync.Once

// MustRegister registers the collectors once per process; serve and the
// workers may both call it.
func MustRegister(r prometheus.Registerer) {
	once.Do(func() {
		r.MustRegister(
			EventsTotal,
			PublishFailuresTotal,
			DecodeFailuresTotal,
			ApplySeconds,
		)
	})
}
