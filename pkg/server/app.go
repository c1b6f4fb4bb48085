package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"PairPilot/internal/handler/api"
	"PairPilot/internal/usecase"
	pkgcache "PairPilot/pkg/cache"
	pkgch "PairPilot/pkg/clickhouse"
	"PairPilot/pkg/config"
	xhttp "PairPilot/pkg/http"
	pkgkafka "PairPilot/pkg/kafka"
	applogger "PairPilot/pkg/logger"
)

const serviceName = "pairpilot"

// Components are the long-lived parts App starts and stops. Consumer,
// Producer and Redis are nil when their backend is disabled.
type Components struct {
	Scheduler      *usecase.SelectionScheduler
	Consumer       *pkgkafka.Consumer
	OutcomeHandler pkgkafka.MessageHandler
	HTTPServer     *xhttp.Server
	Hub            *api.StreamHub
	Producer       *pkgkafka.Producer
	ClickHouse     *pkgch.Client
	Redis          *pkgcache.RedisCache
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg *config.Config
	l   *applogger.Logger
	c   Components
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, c Components) *App {
	if l == nil {
		l = applogger.NewNop()
	}
	return &App{cfg: cfg, l: l, c: c}
}

// Run starts every component and blocks until SIGINT/SIGTERM or ctx is
// cancelled, then shuts down.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if lc := a.cfg.Logging.Collector; lc.Enabled && a.c.Producer != nil {
		a.l.AddCollector(&applogger.CollectionConfig{
			Service:        serviceName,
			TimeInterval:   lc.Interval,
			CountThreshold: lc.CountThreshold,
			Topic:          a.cfg.Kafka.Topics.Logs,
			Publisher:      a.c.Producer,
		})
		a.l.Info("log collector enabled", applogger.String("topic", a.cfg.Kafka.Topics.Logs))
	}

	if a.c.Consumer != nil && a.c.OutcomeHandler != nil {
		a.c.Consumer.RegisterHandler(a.c.OutcomeHandler)
		go func() {
			if err := a.c.Consumer.Start(); err != nil {
				a.l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.l.Info("kafka consumer started", applogger.String("topic", a.c.OutcomeHandler.Topic()))
	}

	if err := a.c.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	if err := a.c.HTTPServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		_ = a.shutdown()
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.l.Info("shutdown signal received", applogger.String("signal", sig.String()))
	case <-ctx.Done():
		a.l.Info("context cancelled, shutting down")
	}
	return a.shutdown()
}

// shutdown stops producers of work before the sinks they write to.
func (a *App) shutdown() error {
	grace := a.c.HTTPServer.ShutdownTimeout()
	if a.cfg.Server.ShutdownTimeout > 0 {
		grace = a.cfg.Server.ShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	var firstErr error
	keep := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	// Waits for an in-flight selection so its record and event are written.
	if err := a.c.Scheduler.Stop(ctx); err != nil {
		a.l.Warn("scheduler stop error", applogger.Error(err))
		keep(err)
	}

	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
			keep(err)
		}
	}

	if err := a.c.HTTPServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
		keep(err)
	}
	if a.c.Hub != nil {
		a.c.Hub.Close()
	}

	// flush aggregated logs while the producer is still open
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
	if a.c.Redis != nil {
		if err := a.c.Redis.Close(); err != nil {
			a.l.Warn("redis close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete", applogger.Duration("grace", grace), applogger.Bool("clean", firstErr == nil))
	return firstErr
}
