package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	domrepo "PairPilot/internal/domain/repository"
	domsvc "PairPilot/internal/domain/service"
	"PairPilot/internal/handler/api"
	internalrepo "PairPilot/internal/repository"
	"PairPilot/internal/service/cache"
	advmetrics "PairPilot/internal/service/metrics"
	"PairPilot/internal/services/advisory"
	"PairPilot/internal/services/analytics"
	"PairPilot/internal/services/learning"
	"PairPilot/internal/services/universe"
	"PairPilot/internal/usecase"
	pkgcache "PairPilot/pkg/cache"
	pkgch "PairPilot/pkg/clickhouse"
	"PairPilot/pkg/config"
	xhttp "PairPilot/pkg/http"
	pkgkafka "PairPilot/pkg/kafka"
	applogger "PairPilot/pkg/logger"
	"PairPilot/pkg/metrics"
	"PairPilot/pkg/server"
	"PairPilot/pkg/util"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideRegistry creates the Prometheus registry served on /metrics.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates the selection recorder and registers the advisory
// and Kafka collectors on the same registry.
func ProvideMetrics(reg *prometheus.Registry) domrepo.Metrics {
	advmetrics.Register(reg)
	pkgkafka.SetMetricsRegisterer(reg)
	return metrics.NewWithRegistry(reg)
}

// ProvideClickHouseClient creates a ClickHouse client and applies the schema.
// ClickHouse holds the candles, so the engine cannot run without it.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, errors.New("clickhouse must be enabled: it is the candle data source")
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, pkgch.Schema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	l.Info("clickhouse ready", applogger.String("database", cfg.ClickHouse.Database))
	return client, nil
}

// ProvideRedisCache creates the Redis client backing the universe mirror.
// It returns nil when Redis is disabled.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	p := cfg.Kafka.Producer
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(p.BatchSize, p.BatchBytes, p.Linger),
		pkgkafka.WithTimeouts(p.WriteTimeout, p.ReadTimeout),
		pkgkafka.WithMaxAttempts(p.MaxAttempts),
		pkgkafka.WithAsync(p.Async),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates the trade-outcome consumer, or nil when Kafka
// is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	c := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(c.GroupID),
		pkgkafka.WithConsumerWorkers(c.Workers),
		pkgkafka.WithConsumerBufferSize(c.BufferSize),
		pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
		pkgkafka.WithConsumerDLQ(c.DLQTopic),
		pkgkafka.WithConsumerFetch(c.MinBytes, c.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	kl := l.Component("kafka")
	consumer.SetLogger(kl)
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.TraceHook{},
		pkgkafka.LoggingHook{Log: kl, Slow: time.Second},
	))
	return consumer, nil
}

// ProvideDataSource creates the ClickHouse candle and metadata source.
func ProvideDataSource(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) *internalrepo.CHDataSource {
	ds := internalrepo.NewCHDataSource(ch, cfg.ClickHouse.DiscoveryWindow)
	ds.SetLogger(l.Component("datasource"))
	return ds
}

// ProvideUniverseCache creates the universe cache, mirrored to Redis when
// Redis is enabled.
func ProvideUniverseCache(cfg *config.Config, rc *pkgcache.RedisCache, l *applogger.Logger) (*cache.UniverseCache, error) {
	opts := []cache.Option{cache.WithLogger(l.Component("universe_cache"))}
	if rc != nil {
		opts = append(opts, cache.WithMirror(rc))
	}
	uc, err := cache.NewUniverseCache(cfg.Universe.CacheTTLHours, opts...)
	if err != nil {
		return nil, fmt.Errorf("universe cache: %w", err)
	}
	return uc, nil
}

// ProvideDiscoveryFilter creates the universe filter.
func ProvideDiscoveryFilter(cfg *config.Config, l *applogger.Logger) *universe.DiscoveryFilter {
	u := cfg.Universe
	return universe.NewDiscoveryFilter(universe.FilterConfig{
		WhitelistMode: u.WhitelistMode(),
		Whitelist:     u.Whitelist,
		AutoAdd:       u.AutoAdd,
		Thresholds: universe.Thresholds{
			MinVolume24h:      u.Discovery.MinVolume24h,
			MinAgeDays:        u.Discovery.MinAgeDays,
			MaxSpreadBps:      u.Discovery.MaxSpreadBps,
			MinDepthUSD:       u.Discovery.MinDepthUSD,
			MinVenues:         u.Discovery.MinVenues,
			MaxSuspicionScore: u.Discovery.MaxSuspicionScore,
		},
	}, l.Component("universe"))
}

func analyzerOptions(cfg *config.Config, l *applogger.Logger) []analytics.Option {
	return []analytics.Option{
		analytics.WithGranularity(domrepo.NormalizeGranularity(cfg.Selection.Granularity)),
		analytics.WithLogger(l.Component("analytics")),
	}
}

// ProvideSortinoAnalyzer creates the multi-window Sortino analyzer.
func ProvideSortinoAnalyzer(cfg *config.Config, l *applogger.Logger) (*analytics.SortinoAnalyzer, error) {
	s := cfg.Analyzers.Sortino
	return analytics.NewSortinoAnalyzer(s.Windows, s.Weights, s.MAR, analyzerOptions(cfg, l)...)
}

// ProvideCorrelationAnalyzer creates the diversification analyzer.
func ProvideCorrelationAnalyzer(cfg *config.Config, l *applogger.Logger) (*analytics.CorrelationAnalyzer, error) {
	c := cfg.Analyzers.Correlation
	return analytics.NewCorrelationAnalyzer(c.Threshold, c.LookbackDays, analyzerOptions(cfg, l)...)
}

// ProvideGARCHForecaster creates the volatility forecaster.
func ProvideGARCHForecaster(cfg *config.Config, l *applogger.Logger) (*analytics.GARCHForecaster, error) {
	g := cfg.Analyzers.GARCH
	return analytics.NewGARCHForecaster(analytics.GARCHConfig{
		P:                   g.P,
		Q:                   g.Q,
		LookbackDays:        g.LookbackDays,
		HorizonDays:         g.HorizonDays,
		AnnualizationFactor: g.AnnualizationFactor,
	}, analyzerOptions(cfg, l)...)
}

// ProvideMetricAggregator creates the composite scorer.
func ProvideMetricAggregator(cfg *config.Config) (*analytics.MetricAggregator, error) {
	return analytics.NewMetricAggregator(cfg.Aggregator.Weights)
}

// ProvideAdvisoryProviders builds the guarded advisory panel.
func ProvideAdvisoryProviders(cfg *config.Config, l *applogger.Logger) ([]domsvc.AdvisoryProvider, error) {
	providers, err := advisory.NewProviders(cfg.Advisory.Providers, l.Component("advisory"))
	if err != nil {
		return nil, fmt.Errorf("advisory providers: %w", err)
	}
	if len(providers) == 0 {
		l.Warn("no advisory providers enabled; fusion will use statistical scores only")
	}
	return providers, nil
}

// ProvideEnsembleVoter creates the advisory voter.
func ProvideEnsembleVoter(providers []domsvc.AdvisoryProvider, m domrepo.Metrics, cfg *config.Config, l *applogger.Logger) *usecase.EnsembleVoter {
	return usecase.NewEnsembleVoter(providers, cfg.Advisory.ReasoningProvider, cfg.Advisory.QueryTimeout, m, l.Component("voter"))
}

// ProvideThompsonOptimizer loads the learned weights from the state file.
func ProvideThompsonOptimizer(cfg *config.Config, m domrepo.Metrics, l *applogger.Logger) (*learning.ThompsonOptimizer, error) {
	t := cfg.Thompson
	opt, err := learning.NewThompsonOptimizer(learning.Params{
		MinTrades:        t.MinTrades,
		SuccessThreshold: t.SuccessThreshold,
		FailureThreshold: t.FailureThreshold,
		LearningRate:     t.LearningRate,
	}, util.NewJSONFile(t.StatePath),
		learning.WithMetrics(m),
		learning.WithLogger(l.Component("thompson")),
	)
	if err != nil {
		return nil, fmt.Errorf("thompson optimizer: %w", err)
	}
	return opt, nil
}

// ProvideOutcomeTracker loads the selection history from the history file.
func ProvideOutcomeTracker(cfg *config.Config, l *applogger.Logger) (*internalrepo.OutcomeTracker, error) {
	t, err := internalrepo.NewOutcomeTracker(util.NewJSONFile(cfg.Tracker.HistoryPath), l.Component("tracker"))
	if err != nil {
		return nil, fmt.Errorf("outcome tracker: %w", err)
	}
	return t, nil
}

// ProvideStreamHub creates the websocket hub for selection events.
func ProvideStreamHub(cfg *config.Config, l *applogger.Logger) *api.StreamHub {
	return api.NewStreamHub(cfg.Server.CORSOrigins, l)
}

// ProvideSelectionPublisher fans selection events out to the websocket hub
// and, when Kafka is enabled, the selections topic.
func ProvideSelectionPublisher(hub *api.StreamHub, producer *pkgkafka.Producer, cfg *config.Config, l *applogger.Logger) domrepo.SelectionPublisher {
	mp := internalrepo.NewMultiPublisher(l.Component("publisher"), hub)
	if producer != nil {
		mp.Add(internalrepo.NewKafkaSelectionPublisher(producer, cfg.Kafka.Topics.Selections))
	}
	return mp
}

// ProvideSelectionAudit writes per-pair scoring rows to ClickHouse.
func ProvideSelectionAudit(ch *pkgch.Client) domrepo.SelectionAudit {
	return internalrepo.NewCHSelectionAudit(ch)
}

// ProvideExecutionClient creates the trade monitor and portfolio memory.
func ProvideExecutionClient(cfg *config.Config) *internalrepo.ExecutionClient {
	return internalrepo.NewExecutionClient(cfg.Execution.BaseURL, xhttp.NewClient(xhttp.WithTimeout(cfg.Execution.Timeout)))
}

// ProvidePairSelector assembles the selection pipeline.
func ProvidePairSelector(
	cfg *config.Config,
	ds *internalrepo.CHDataSource,
	uc *cache.UniverseCache,
	filter *universe.DiscoveryFilter,
	sortino *analytics.SortinoAnalyzer,
	corr *analytics.CorrelationAnalyzer,
	garch *analytics.GARCHForecaster,
	agg *analytics.MetricAggregator,
	voter *usecase.EnsembleVoter,
	opt *learning.ThompsonOptimizer,
	tracker *internalrepo.OutcomeTracker,
	audit domrepo.SelectionAudit,
	pub domrepo.SelectionPublisher,
	m domrepo.Metrics,
	l *applogger.Logger,
) (*usecase.PairSelector, error) {
	sel, err := usecase.NewPairSelector(usecase.SelectorConfig{
		TargetCount:        cfg.Selection.TargetCount,
		OversamplingFactor: cfg.Selection.OversamplingFactor,
		ScoringWorkers:     cfg.Selection.ScoringWorkers,
		UniverseCacheKey:   cfg.Universe.CacheKey,
		LearningMaxWait:    cfg.Scheduler.LearningMaxWait,
	}, usecase.SelectorDeps{
		Data:        ds,
		Metadata:    ds,
		Cache:       uc,
		Filter:      filter,
		Sortino:     sortino,
		Correlation: corr,
		GARCH:       garch,
		Aggregator:  agg,
		Voter:       voter,
		Optimizer:   opt,
		Tracker:     tracker,
		Audit:       audit,
		Publisher:   pub,
		Metrics:     m,
	}, l.Component("selector"))
	if err != nil {
		return nil, fmt.Errorf("pair selector: %w", err)
	}
	return sel, nil
}

// ProvideSelectionScheduler creates the periodic runner.
func ProvideSelectionScheduler(sel *usecase.PairSelector, exec *internalrepo.ExecutionClient, cfg *config.Config, l *applogger.Logger) *usecase.SelectionScheduler {
	return usecase.NewSelectionScheduler(sel, exec, exec, cfg.Scheduler.Interval, cfg.RunOnStart(), l)
}

// ProvideTradeOutcomeHandler creates the outcomes topic handler.
func ProvideTradeOutcomeHandler(tracker *internalrepo.OutcomeTracker, m domrepo.Metrics, cfg *config.Config, l *applogger.Logger) *usecase.TradeOutcomeHandler {
	return usecase.NewTradeOutcomeHandler(cfg.Kafka.Topics.Outcomes, tracker, m, l.Component("outcomes"))
}

// ProvideSelectionHandler creates the HTTP API handler.
func ProvideSelectionHandler(
	l *applogger.Logger,
	sched *usecase.SelectionScheduler,
	tracker *internalrepo.OutcomeTracker,
	opt *learning.ThompsonOptimizer,
	uc *cache.UniverseCache,
	filter *universe.DiscoveryFilter,
	hub *api.StreamHub,
) *api.SelectionEchoHandler {
	return api.NewSelectionEchoHandler(l.Component("api"), sched, tracker, opt, uc, filter, hub)
}

// ProvideHTTPServer creates the echo server with the API and /metrics.
func ProvideHTTPServer(h *api.SelectionEchoHandler, reg *prometheus.Registry, cfg *config.Config, l *applogger.Logger) *xhttp.Server {
	path := ""
	if cfg.Metrics.Enabled {
		path = cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
	}
	return xhttp.NewServer(h, l,
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS, cfg.Server.CORSOrigins...),
		xhttp.WithMetrics(path, reg, reg),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	sched *usecase.SelectionScheduler,
	consumer *pkgkafka.Consumer,
	oh *usecase.TradeOutcomeHandler,
	srv *xhttp.Server,
	hub *api.StreamHub,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	rc *pkgcache.RedisCache,
) *server.App {
	return server.New(cfg, l, server.Components{
		Scheduler:      sched,
		Consumer:       consumer,
		OutcomeHandler: oh,
		HTTPServer:     srv,
		Hub:            hub,
		Producer:       producer,
		ClickHouse:     ch,
		Redis:          rc,
	})
}
