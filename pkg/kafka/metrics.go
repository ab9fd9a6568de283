package kafka

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsReg  prometheus.Registerer = prometheus.DefaultRegisterer
	metricsOnce sync.Once

	producerMsgsTotal   *prometheus.CounterVec
	producerErrsTotal   *prometheus.CounterVec
	producerBytesTotal  *prometheus.CounterVec
	producerLatencyHist *prometheus.HistogramVec

	consumerQueueDepth    *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec
	consumerDLQTotal      *prometheus.CounterVec
)

// SetMetricsRegisterer replaces the registry used for producer and consumer
// metrics. It must be called before the first producer or consumer is built.
func SetMetricsRegisterer(reg prometheus.Registerer) { metricsReg = reg }

func initMetrics() {
	metricsOnce.Do(func() {
		f := promauto.With(metricsReg)
		producerMsgsTotal = f.NewCounterVec(
			prometheus.CounterOpts{Name: "stockpulse_kafka_producer_messages_total", Help: "Messages published to Kafka"},
			[]string{"topic", "compression", "result"},
		)
		producerErrsTotal = f.NewCounterVec(
			prometheus.CounterOpts{Name: "stockpulse_kafka_producer_errors_total", Help: "Producer errors"},
			[]string{"topic"},
		)
		producerBytesTotal = f.NewCounterVec(
			prometheus.CounterOpts{Name: "stockpulse_kafka_producer_bytes_total", Help: "Payload bytes published"},
			[]string{"topic", "compression"},
		)
		producerLatencyHist = f.NewHistogramVec(
			prometheus.HistogramOpts{Name: "stockpulse_kafka_producer_publish_seconds", Help: "Publish latency", Buckets: prometheus.DefBuckets},
			[]string{"topic"},
		)
		consumerQueueDepth = f.NewGaugeVec(
			prometheus.GaugeOpts{Name: "stockpulse_kafka_consumer_queue_depth", Help: "Messages waiting for a consumer worker"},
			[]string{"topic"},
		)
		consumerHandleLatency = f.NewHistogramVec(
			prometheus.HistogramOpts{Name: "stockpulse_kafka_consumer_handle_seconds", Help: "Handling time per message"},
			[]string{"topic"},
		)
		consumerDLQTotal = f.NewCounterVec(
			prometheus.CounterOpts{Name: "stockpulse_kafka_consumer_dlq_total", Help: "Messages routed to the dead letter topic"},
			[]string{"topic"},
		)
	})
}

func observeProducer(topic, comp string, bytes int64, count int, dur time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		producerErrsTotal.WithLabelValues(topic).Inc()
	}
	producerMsgsTotal.WithLabelValues(topic, comp, result).Add(float64(count))
	producerBytesTotal.WithLabelValues(topic, comp).Add(float64(bytes))
	producerLatencyHist.WithLabelValues(topic).Observe(dur.Seconds())
}
