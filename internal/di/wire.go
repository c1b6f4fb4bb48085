//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"PairPilot/pkg/config"
	"PairPilot/pkg/server"
)

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvideRegistry,
	ProvideMetrics,
	ProvideClickHouseClient,
	ProvideRedisCache,
	ProvideKafkaProducer,
	ProvideKafkaConsumer,
)

var engineSet = wire.NewSet(
	ProvideDataSource,
	ProvideUniverseCache,
	ProvideDiscoveryFilter,
	ProvideSortinoAnalyzer,
	ProvideCorrelationAnalyzer,
	ProvideGARCHForecaster,
	ProvideMetricAggregator,
	ProvideAdvisoryProviders,
	ProvideEnsembleVoter,
	ProvideThompsonOptimizer,
	ProvideOutcomeTracker,
	ProvideSelectionAudit,
	ProvideExecutionClient,
	ProvidePairSelector,
	ProvideSelectionScheduler,
	ProvideTradeOutcomeHandler,
)

var apiSet = wire.NewSet(
	ProvideStreamHub,
	ProvideSelectionPublisher,
	ProvideSelectionHandler,
	ProvideHTTPServer,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		infraSet,
		engineSet,
		apiSet,
		ProvideApp,
	)
	return &server.App{}, nil
}
