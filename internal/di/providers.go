package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
	"StockPulse/internal/handler/api"
	mid "StockPulse/internal/middleware"
	internalrepo "StockPulse/internal/repository"
	"StockPulse/internal/service/broker"
	"StockPulse/internal/services/scoring"
	"StockPulse/internal/usecase"
	"StockPulse/pkg/cache"
	pkgch "StockPulse/pkg/clickhouse"
	"StockPulse/pkg/config"
	"StockPulse/pkg/events"
	xhttp "StockPulse/pkg/http"
	pkgkafka "StockPulse/pkg/kafka"
	applogger "StockPulse/pkg/logger"
	"StockPulse/pkg/metrics"
	"StockPulse/pkg/secrets"
	"StockPulse/pkg/server"
)

const initTimeout = 15 * time.Second

// ProvideLogger builds the root logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideRegistry creates the registry behind /metrics. Kafka collectors
// register on it too.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	pkgkafka.SetMetricsRegisterer(reg)
	return reg
}

func ProvideMetrics(reg *prometheus.Registry) domrepo.Metrics {
	return metrics.NewWithRegisterer(reg)
}

func ProvideEventBus() *events.Bus {
	return events.New()
}

// ProvideCache returns a Redis-backed layered cache when Redis is enabled,
// otherwise an in-process LRU.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(cache.WithMaxEntries(cfg.Cache.MemorySize)), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	remote, err := cache.NewRedisCache(ctx, cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return cache.NewLayeredCache(remote, cfg.Cache.MemorySize, cfg.Cache.MarketTTL), nil
}

// ProvideClickHouseClient connects when a component needs ClickHouse and
// returns nil otherwise.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.UsesClickHouse() {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	ch := cfg.ClickHouse
	client, err := pkgch.NewClient(ctx, pkgch.Config{
		Host:             ch.Host,
		Port:             ch.Port,
		Database:         ch.Database,
		User:             ch.User,
		Password:         ch.Password,
		UseHTTP:          ch.UseHTTP,
		AsyncInsert:      ch.AsyncInsert,
		WaitForAsync:     ch.WaitForAsync,
		DialTimeout:      ch.DialTimeout,
		ReadTimeout:      ch.ReadTimeout,
		MaxExecutionTime: ch.MaxExecutionTime,
		MaxOpenConns:     ch.MaxOpenConns,
		MaxIdleConns:     ch.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer builds the producer when a component needs Kafka and
// attaches the error-log collector to it when a log topic is configured. The
// registry argument orders it after SetMetricsRegisterer.
func ProvideKafkaProducer(cfg *config.Config, _ *prometheus.Registry, l *applogger.Logger) (*pkgkafka.Producer, error) {
	// the consumer runs its own DLQ writer
	if cfg.Backend.Type != usecase.BackendKafka && cfg.Kafka.ScoresTopic == "" && cfg.Log.ErrorTopic == "" {
		return nil, nil
	}
	k := cfg.Kafka
	producer, err := pkgkafka.NewProducer(pkgkafka.ProducerConfig{
		Brokers:          k.Brokers,
		RequiredAcks:     k.RequiredAcks,
		Compression:      k.Compression,
		MaxAttempts:      k.Producer.MaxAttempts,
		WriteTimeout:     k.Producer.WriteTimeout,
		ReadTimeout:      k.Producer.ReadTimeout,
		BatchSize:        k.Producer.BatchSize,
		BatchBytes:       k.Producer.BatchBytes,
		Linger:           k.Producer.Linger,
		Async:            k.Producer.Async,
		AutoCreateTopics: k.AutoCreate,
		KeyedOrdering:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	if cfg.Log.ErrorTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:    cfg.Log.FlushInterval,
			Topic:           cfg.Log.ErrorTopic,
			Publisher:       producer,
			IncludeWarnings: true,
		})
	}
	return producer, nil
}

// ProvideKafkaPublisher is nil without a producer.
func ProvideKafkaPublisher(producer *pkgkafka.Producer, cfg *config.Config) *internalrepo.KafkaPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.TicksTopic, cfg.Kafka.ScoresTopic)
}

// ProvideTickStorage ensures the ClickHouse schema and returns nil when
// ClickHouse is not configured.
func ProvideTickStorage(client *pkgch.Client, cfg *config.Config) (domrepo.Storage, error) {
	if client == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	store := internalrepo.NewClickHouseStorage(client.DB(), cfg.ClickHouse.Database, cfg.Broker.Name, internalrepo.Schema(cfg.ClickHouse.Database))
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

func ProvideCandleStore(client *pkgch.Client, cfg *config.Config, l *applogger.Logger) domrepo.CandleStore {
	if client == nil {
		return nil
	}
	return internalrepo.NewCHCandleStore(client.DB(), cfg.ClickHouse.Database, l.Named("candles"))
}

func ProvideSessionStore(c cache.Service, cfg *config.Config) domrepo.SessionStore {
	return internalrepo.NewCacheSessionStore(c, cfg.Broker.Name)
}

// ProvideAuthenticator resolves the app secret from Secret Manager when it
// is not set directly.
func ProvideAuthenticator(cfg *config.Config, l *applogger.Logger) (*broker.OAuthAuthenticator, error) {
	b := cfg.Broker
	if b.AppSecret == "" && b.SecretProject != "" {
		ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
		defer cancel()
		sm, err := secrets.NewGCPSecretManager(ctx, b.SecretProject, l.Named("secrets"))
		if err != nil {
			return nil, err
		}
		defer sm.Close()
		if err := secrets.Resolve(ctx, sm, b.SecretName, &b.AppSecret); err != nil {
			return nil, fmt.Errorf("broker app secret: %w", err)
		}
	}
	return broker.NewOAuthAuthenticator(broker.AuthConfig{
		Broker:       b.Name,
		ClientID:     b.AppID,
		ClientSecret: b.AppSecret,
		AuthURL:      b.AuthURL,
		TokenURL:     b.TokenURL,
		RedirectURL:  b.RedirectURL,
		Scopes:       b.Scopes,
		SessionTTL:   b.SessionTTL,
	}), nil
}

// ProvideSessionManager publishes every session transition on the bus.
func ProvideSessionManager(cfg *config.Config, auth *broker.OAuthAuthenticator, store domrepo.SessionStore, m domrepo.Metrics, l *applogger.Logger, bus *events.Bus) *usecase.SessionManager {
	sm := usecase.NewSessionManager(auth, store, m, l.Named("session"),
		usecase.WithRefreshBefore(cfg.Broker.RefreshBefore),
		usecase.WithCheckInterval(cfg.Broker.CheckInterval),
	)
	sm.OnChange(func(st models.SessionStatus) {
		bus.Publish(events.TopicSessionChanged, st)
	})
	return sm
}

func ProvideScorer() *scoring.Scorer {
	return scoring.NewScorer()
}

func ProvideScoringEngine(
	cfg *config.Config,
	scorer *scoring.Scorer,
	m domrepo.Metrics,
	l *applogger.Logger,
	bus *events.Bus,
	pub *internalrepo.KafkaPublisher,
	candles domrepo.CandleStore,
) *usecase.ScoringEngine {
	opts := []usecase.EngineOption{usecase.WithEventBus(bus)}
	if pub != nil && cfg.Kafka.ScoresTopic != "" {
		opts = append(opts, usecase.WithScorePublisher(pub))
	}
	if candles != nil && cfg.Engine.PersistCandles {
		opts = append(opts, usecase.WithCandleStore(candles))
	}
	return usecase.NewScoringEngine(usecase.EngineConfig{
		Timeframe:         domrepo.Timeframe(cfg.Engine.Timeframe),
		Window:            cfg.Engine.Window,
		RecomputeInterval: cfg.Engine.RecomputeInterval,
		Location:          cfg.ExchangeLocation(),
	}, scorer, m, l.Named("engine"), opts...)
}

func ProvideTickProcessor(
	cfg *config.Config,
	engine *usecase.ScoringEngine,
	pub *internalrepo.KafkaPublisher,
	store domrepo.Storage,
	m domrepo.Metrics,
	l *applogger.Logger,
) (*usecase.TickProcessor, error) {
	var p domrepo.Publisher
	if pub != nil {
		p = pub
	}
	return usecase.NewTickProcessor(engine, p, store, m, l.Named("processor"),
		cfg.Backend.Type,
		cfg.Backend.DedupeWindow,
		cfg.Backend.BatchSize,
		cfg.Backend.BatchTimeout,
	)
}

// ProvidePipeline sits between the broker streams and the processor.
func ProvidePipeline(cfg *config.Config, proc *usecase.TickProcessor, m domrepo.Metrics) *mid.RealtimePipeline {
	return mid.NewRealtimePipeline(proc, m,
		mid.WithMaxRPS(cfg.Collector.MaxRPS, cfg.Collector.Burst),
		mid.WithBufferSize(cfg.Collector.BufferSize),
	)
}

func ProvideHistoryClient(cfg *config.Config) *broker.HistoryClient {
	return broker.NewHistoryClient(broker.HistoryConfig{
		BaseURL:  cfg.Broker.RestURL,
		RPS:      cfg.Broker.HistoryRPS,
		Burst:    1,
		Location: cfg.ExchangeLocation(),
		Timeout:  10 * time.Second,
	})
}

// ProvideCollector stops collection whenever the session is lost.
func ProvideCollector(
	cfg *config.Config,
	sm *usecase.SessionManager,
	pipe *mid.RealtimePipeline,
	proc *usecase.TickProcessor,
	engine *usecase.ScoringEngine,
	history *broker.HistoryClient,
	m domrepo.Metrics,
	l *applogger.Logger,
	bus *events.Bus,
) *usecase.Collector {
	c := cfg.Collector
	streams := broker.StreamFactory(broker.StreamConfig{
		URL:          cfg.Broker.WebSocketURL,
		PingInterval: cfg.Broker.PingInterval,
	})
	col := usecase.NewCollector(usecase.CollectorConfig{
		Symbols:              c.Symbols,
		SymbolsPerConnection: c.SymbolsPerConnection,
		MaxConnections:       c.MaxConnections,
		BackoffMin:           c.BackoffMin,
		BackoffMax:           c.BackoffMax,
		HealthyAfter:         c.HealthyAfter,
		Backfill:             c.Backfill,
		BackfillBars:         c.BackfillBars,
	}, streams, sm, pipe, proc, engine, m, l.Named("collector"),
		usecase.WithHistory(history),
		usecase.WithCollectorBus(bus),
	)
	sm.OnChange(col.HandleSession)
	return col
}

func ProvideMarketOverview(cfg *config.Config, engine *usecase.ScoringEngine, c cache.Service, l *applogger.Logger) *usecase.MarketOverviewUseCase {
	return usecase.NewMarketOverviewUseCase(engine, c, cfg.Cache.MarketTTL, l.Named("market"))
}

func ProvideCandles(cfg *config.Config, engine *usecase.ScoringEngine, store domrepo.CandleStore) *usecase.CandlesUseCase {
	return usecase.NewCandlesUseCase(engine, store, cfg.ExchangeLocation())
}

// ProvideStreamHub greets new push clients with the current session and
// collection status.
func ProvideStreamHub(bus *events.Bus, sm *usecase.SessionManager, col *usecase.Collector, l *applogger.Logger) *api.StreamHub {
	return api.NewStreamHub(bus, l.Named("stream"), api.WithStreamSnapshot(func() []events.Event {
		return []events.Event{
			{Type: events.TopicSessionChanged, Data: sm.Status()},
			{Type: events.TopicCollectionStatus, Data: col.Status()},
		}
	}))
}

// ProvideHealthChecks probes the infrastructure that is configured.
func ProvideHealthChecks(client *pkgch.Client, c cache.Service) map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{
		"cache": func(ctx context.Context) error {
			_, err := c.Exists(ctx, "health")
			return err
		},
	}
	if client != nil {
		checks["clickhouse"] = client.Health
	}
	return checks
}

func ProvideRouter(
	cfg *config.Config,
	sm *usecase.SessionManager,
	col *usecase.Collector,
	engine *usecase.ScoringEngine,
	market *usecase.MarketOverviewUseCase,
	candles *usecase.CandlesUseCase,
	hub *api.StreamHub,
	checks map[string]api.HealthCheck,
	l *applogger.Logger,
) *api.Router {
	hl := l.Named("api")
	return &api.Router{
		Health:     api.NewHealthHandler(cfg.Backend.Type, sm.Status, col.Status, checks),
		Session:    api.NewSessionHandler(sm, hl),
		Collection: api.NewCollectionHandler(col, hl),
		Market:     api.NewMarketHandler(market, candles, engine, hl),
		Stream:     hub,
	}
}

func ProvideHTTPServer(cfg *config.Config, router *api.Router, reg *prometheus.Registry, l *applogger.Logger) *xhttp.Server {
	s := cfg.Server
	return xhttp.NewServer(router, l.Named("http"),
		xhttp.WithHost(s.Host),
		xhttp.WithPort(s.Port),
		xhttp.WithTimeouts(s.ReadTimeout, s.WriteTimeout, s.ShutdownTimeout),
		xhttp.WithCORS(s.CORS),
		xhttp.WithRateLimit(s.RateLimitRPS, s.RateLimitBurst),
		xhttp.WithMetrics(reg, reg),
	)
}

// ProvideKafkaConsumer sinks the ticks topic into ClickHouse when enabled and
// returns nil otherwise.
func ProvideKafkaConsumer(cfg *config.Config, store domrepo.Storage, m domrepo.Metrics, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	k := cfg.Kafka
	if !k.Consumer.Enabled {
		return nil, nil
	}
	if store == nil {
		return nil, fmt.Errorf("kafka consumer: clickhouse storage required")
	}
	cl := l.Named("consumer")
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(k.Brokers),
		pkgkafka.WithConsumerGroupID(k.Consumer.GroupID),
		pkgkafka.WithConsumerStartOffset(k.Consumer.StartOffset),
		pkgkafka.WithConsumerWorkers(k.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(k.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(k.Consumer.RetryMax, k.Consumer.BackoffMin, k.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(k.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(k.Consumer.MinBytes, k.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(cl),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewKafkaTicksHandler(k.TicksTopic, store, m))
	consumer.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.TraceHook(), pkgkafka.LoggingHook(cl)))
	return consumer, nil
}

func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	sm *usecase.SessionManager,
	engine *usecase.ScoringEngine,
	col *usecase.Collector,
	proc *usecase.TickProcessor,
	hub *api.StreamHub,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	producer *pkgkafka.Producer,
	client *pkgch.Client,
	c cache.Service,
) *server.App {
	return server.New(cfg, l, server.Components{
		Session:    sm,
		Engine:     engine,
		Collector:  col,
		Processor:  proc,
		Stream:     hub,
		HTTP:       srv,
		Consumer:   consumer,
		Producer:   producer,
		ClickHouse: client,
		Cache:      c,
	})
}
