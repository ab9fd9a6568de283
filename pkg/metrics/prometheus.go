package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	messagesSent     *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	dropped          *prometheus.CounterVec
	lastPrice        *prometheus.GaugeVec
	score            *prometheus.GaugeVec
	latency          *prometheus.HistogramVec
	sessionRemaining prometheus.Gauge
	connections      prometheus.Gauge
}

// New registers the collectors with the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the collectors with reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockpulse_messages_sent_total",
				Help: "Total number of ticks accepted per backend",
			},
			[]string{"backend", "symbol"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		dropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockpulse_ticks_dropped_total",
				Help: "Ticks ignored before reaching the engine",
			},
			[]string{"reason"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stockpulse_last_price",
				Help: "Last traded price per symbol",
			},
			[]string{"symbol"},
		),
		score: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stockpulse_score",
				Help: "Latest composite score per symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		sessionRemaining: f.NewGauge(prometheus.GaugeOpts{
			Name: "stockpulse_session_remaining_seconds",
			Help: "Seconds until the broker session expires",
		}),
		connections: f.NewGauge(prometheus.GaugeOpts{
			Name: "stockpulse_stream_connections",
			Help: "Open broker stream connections",
		}),
	}
}

func (r *Recorder) RecordMessageSent(backend, symbol string) {
	r.messagesSent.WithLabelValues(backend, symbol).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordScore(symbol string, value float64) {
	r.score.WithLabelValues(symbol).Set(value)
}

func (r *Recorder) RecordSessionRemaining(seconds float64) {
	r.sessionRemaining.Set(seconds)
}

func (r *Recorder) RecordConnections(n int) {
	r.connections.Set(float64(n))
}

func (r *Recorder) RecordDropped(reason string) {
	r.dropped.WithLabelValues(reason).Inc()
}
