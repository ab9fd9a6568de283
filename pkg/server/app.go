package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"StockPulse/internal/handler/api"
	"StockPulse/internal/usecase"
	"StockPulse/pkg/cache"
	pkgch "StockPulse/pkg/clickhouse"
	"StockPulse/pkg/config"
	xhttp "StockPulse/pkg/http"
	pkgkafka "StockPulse/pkg/kafka"
	applogger "StockPulse/pkg/logger"
)

// Components are the long-lived parts the App starts and stops. Optional
// infrastructure is nil when the config does not use it.
type Components struct {
	Session   *usecase.SessionManager
	Engine    *usecase.ScoringEngine
	Collector *usecase.Collector
	Processor *usecase.TickProcessor
	Stream    *api.StreamHub
	HTTP      *xhttp.Server

	Consumer   *pkgkafka.Consumer
	Producer   *pkgkafka.Producer
	ClickHouse *pkgch.Client
	Cache      cache.Service
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg *config.Config
	l   *applogger.Logger
	c   Components

	wg sync.WaitGroup
}

func New(cfg *config.Config, l *applogger.Logger, c Components) *App {
	return &App{cfg: cfg, l: l, c: c}
}

// Run starts every component and blocks until SIGINT/SIGTERM, ctx
// cancellation or an HTTP server failure, then shuts down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.c.Session.Restore(ctx); err != nil {
		a.l.Warn("session restore failed", applogger.Error(err))
	}

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.c.Session.Run(ctx)
	}()
	go func() {
		defer a.wg.Done()
		a.c.Engine.Run(ctx)
	}()

	if err := a.c.Stream.Start(); err != nil {
		stop()
		return a.shutdown(err)
	}

	if a.c.Consumer != nil {
		if err := a.c.Consumer.Start(ctx); err != nil {
			a.l.Error("kafka consumer start failed", applogger.Error(err))
			stop()
			return a.shutdown(err)
		}
	}

	if err := a.c.HTTP.Start(); err != nil {
		a.l.Error("http server start failed", applogger.Error(err))
		stop()
		return a.shutdown(err)
	}
	a.l.Info("stockpulse started",
		applogger.String("addr", a.c.HTTP.Addr()),
		applogger.String("backend", a.cfg.Backend.Type),
		applogger.Int("symbols", len(a.cfg.Collector.Symbols)),
	)

	if a.cfg.Collector.AutoStart {
		a.autoStart(ctx)
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.l.Info("shutdown signal received")
	case err := <-a.c.HTTP.Err():
		a.l.Error("http server failed", applogger.Error(err))
		runErr = err
	}
	stop()
	return a.shutdown(runErr)
}

// autoStart begins collection once a usable session exists, so a session
// connected later through the API still triggers it.
func (a *App) autoStart(ctx context.Context) {
	start := func() bool {
		if !a.c.Session.Usable() {
			return false
		}
		err := a.c.Collector.Start(ctx)
		if err != nil && !errors.Is(err, usecase.ErrAlreadyCollecting) {
			a.l.Warn("collection auto-start failed", applogger.Error(err))
			return false
		}
		return true
	}
	if start() {
		return
	}
	a.l.Info("collection will start once a broker session is connected")

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if start() {
					return
				}
			}
		}
	}()
}

// shutdown gracefully stops all services in reverse dependency order. The
// run context must already be cancelled.
func (a *App) shutdown(cause error) error {
	a.l.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.c.HTTP.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}
	a.c.Stream.Close()

	// Stop drains the pipeline and flushes the processor batch.
	if err := a.c.Collector.Stop(ctx); err != nil {
		a.l.Warn("collector stop error", applogger.Error(err))
	}
	if err := a.c.Processor.Close(ctx); err != nil {
		a.l.Warn("tick processor close error", applogger.Error(err))
	}

	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	a.wg.Wait()

	// the log collector publishes through the producer
	a.l.RemoveCollector()
	if a.c.Producer != nil {
		if err := a.c.Producer.Close(); err != nil {
			a.l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.c.ClickHouse != nil {
		if err := a.c.ClickHouse.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.c.Cache != nil {
		if err := a.c.Cache.Close(); err != nil {
			a.l.Warn("cache close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return cause
}
