//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"StockPulse/pkg/config"
	"StockPulse/pkg/server"
)

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvideRegistry,
	ProvideMetrics,
	ProvideEventBus,
	ProvideCache,
	ProvideClickHouseClient,
	ProvideKafkaProducer,
)

var repositorySet = wire.NewSet(
	ProvideKafkaPublisher,
	ProvideTickStorage,
	ProvideCandleStore,
	ProvideSessionStore,
)

var usecaseSet = wire.NewSet(
	ProvideAuthenticator,
	ProvideSessionManager,
	ProvideScorer,
	ProvideScoringEngine,
	ProvideTickProcessor,
	ProvidePipeline,
	ProvideHistoryClient,
	ProvideCollector,
	ProvideMarketOverview,
	ProvideCandles,
)

var transportSet = wire.NewSet(
	ProvideStreamHub,
	ProvideHealthChecks,
	ProvideRouter,
	ProvideHTTPServer,
	ProvideKafkaConsumer,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		infraSet,
		repositorySet,
		usecaseSet,
		transportSet,
		ProvideApp,
	)
	return &server.App{}, nil
}
