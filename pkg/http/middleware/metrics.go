package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	applogger "StockPulse/pkg/logger"
)

type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
	size     *prometheus.HistogramVec
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	f := promauto.With(reg)
	return &httpMetrics{
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockpulse_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockpulse_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"route", "method", "class"},
		),
		inFlight: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stockpulse_http_in_flight_requests",
				Help: "Current number of in-flight HTTP requests",
			},
			[]string{"route"},
		),
		size: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockpulse_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{200, 500, 1_000, 2_000, 5_000, 10_000, 50_000, 100_000, 500_000, 1_000_000},
			},
			[]string{"route", "class"},
		),
	}
}

// Metrics records request metrics labelled by the route template, so
// /api/symbols/:symbol/score is one series whatever the symbol. Requests
// slower than slow are logged as warnings.
func Metrics(reg prometheus.Registerer, l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	m := newHTTPMetrics(reg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := routeOf(c)
			method := c.Request().Method
			m.inFlight.WithLabelValues(route).Inc()
			defer m.inFlight.WithLabelValues(route).Dec()

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			dur := time.Since(start)

			res := c.Response()
			class := statusClass(res.Status)
			m.requests.WithLabelValues(route, method, strconv.Itoa(res.Status)).Inc()
			m.duration.WithLabelValues(route, method, class).Observe(dur.Seconds())
			m.size.WithLabelValues(route, class).Observe(float64(res.Size))

			if l != nil && slow > 0 && dur >= slow {
				l.Warn("http request slow",
					applogger.String("route", route),
					applogger.String("method", method),
					applogger.Int("status", res.Status),
					applogger.Duration("duration", dur),
				)
			}
			return nil
		}
	}
}

func statusClass(code int) string {
	switch {
	case code >= 100 && code < 200:
		return "1xx"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
