package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"StockPulse/pkg/http/middleware"
	applogger "StockPulse/pkg/logger"
)

// Handler mounts its routes on the server's echo instance.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

type ServerOption func(*ServerConfig)

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORS            bool
	RateLimitRPS    float64
	RateLimitBurst  int
	SlowRequest     time.Duration
	MetricsPath     string
	Registerer      prometheus.Registerer
	Gatherer        prometheus.Gatherer
}

// Server wraps the echo instance serving the API, the push stream and
// /metrics.
type Server struct {
	echo   *echo.Echo
	config *ServerConfig
	log    *applogger.Logger
	errCh  chan error
	ln     net.Listener
}

func NewServer(handler Handler, log *applogger.Logger, opts ...ServerOption) *Server {
	cfg := &ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		CORS:            true,
		SlowRequest:     time.Second,
		MetricsPath:     "/metrics",
		Registerer:      prometheus.DefaultRegisterer,
		Gatherer:        prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if log == nil {
		log = applogger.Nop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	e.Use(middleware.Recover(log))
	e.Use(middleware.RequestLogging(log))
	e.Use(middleware.Metrics(cfg.Registerer, log, cfg.SlowRequest))
	if cfg.CORS {
		e.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	}
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RPS:   cfg.RateLimitRPS,
		Burst: cfg.RateLimitBurst,
		Skipper: func(c echo.Context) bool {
			return c.Path() == cfg.MetricsPath
		},
	}, log))

	if handler != nil {
		handler.RegisterRoutes(e)
	}
	if cfg.MetricsPath != "" {
		e.GET(cfg.MetricsPath, echo.WrapHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	return &Server{echo: e, config: cfg, log: log, errCh: make(chan error, 1)}
}

func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
}

// Start listens in the background. A listen failure is reported on Err.
func (s *Server) Start() error {
	addr := s.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen %s: %w", addr, err)
	}
	s.echo.Listener = ln
	s.ln = ln
	addr = ln.Addr().String()

	go func() {
		s.log.Info("http server listening", applogger.String("addr", addr))
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", applogger.Error(err))
			s.errCh <- err
		}
	}()
	return nil
}

// Err delivers a fatal serve error.
func (s *Server) Err() <-chan error { return s.errCh }

// Stop drains in-flight requests for at most the shutdown timeout.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func WithHost(host string) ServerOption {
	return func(c *ServerConfig) { c.Host = host }
}

func WithPort(port int) ServerOption {
	return func(c *ServerConfig) { c.Port = port }
}

// WithTimeouts sets read/write timeouts and the graceful shutdown budget.
// Zero values keep the defaults.
func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(c *ServerConfig) {
		if read > 0 {
			c.ReadTimeout = read
		}
		if write > 0 {
			c.WriteTimeout = write
		}
		if shutdown > 0 {
			c.ShutdownTimeout = shutdown
		}
	}
}

func WithCORS(enabled bool) ServerOption {
	return func(c *ServerConfig) { c.CORS = enabled }
}

// WithRateLimit caps requests per client IP.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(c *ServerConfig) {
		c.RateLimitRPS = rps
		c.RateLimitBurst = burst
	}
}

// WithMetrics sets where HTTP metrics are registered and what /metrics serves.
func WithMetrics(reg prometheus.Registerer, g prometheus.Gatherer) ServerOption {
	return func(c *ServerConfig) {
		if reg != nil {
			c.Registerer = reg
		}
		if g != nil {
			c.Gatherer = g
		}
	}
}
