package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/anomaly"
	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/config"
	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/db"
	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/mq"
	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/repository"
	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/service"
	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/source"
	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const lifecycleTimeout = 30 * time.Second

// coreModule provides everything shared by the commands
var coreModule = fx.Options(
	fx.Provide(
		config.Load,
		newLogger,
		ProvideDBPool,
		ProvideRepository,
		ProvideMigrator,
		ProvideRegistry,
		ProvideMetrics,
		ProvideHTTPClient,
		ProvideAdapters,
		ProvidePublisher,
		ProvideIngestor,
		ProvideRunner,
		ProvideScanner,
	),
	fx.WithLogger(newFxLogger),
)

// runApp starts an fx application, calls fn and stops the application again
func runApp(ctx context.Context, fn func(ctx context.Context) error, opts ...fx.Option) error {
	app := fx.New(append([]fx.Option{coreModule}, opts...)...)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, startCancel := context.WithTimeout(ctx, lifecycleTimeout)
	defer startCancel()
	if err := app.Start(startCtx); err != nil {
		if startCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("application did not start within %s, check that the database (and RabbitMQ, if enabled) is reachable: %w", lifecycleTimeout, err)
		}
		return err
	}

	runErr := fn(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), lifecycleTimeout)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		runErr = err
	}

	return runErr
}

// registerAutoMigrate runs pending migrations on start when enabled. The hook
// is appended after the pool's, so the pool has been pinged by then.
func registerAutoMigrate(lc fx.Lifecycle, cfg *config.Config, migrator *db.Migrator, logger *zap.Logger) {
	if !cfg.Database.AutoMigrate {
		logger.Info("automatic migrations disabled")
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return migrator.Run(ctx)
		},
	})
}

// ProvideDBPool creates a new database pool instance
func ProvideDBPool(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*db.Pool, error) {
	return db.NewPool(lc, logger, cfg.Database.URL, cfg.Database.MaxConns)
}

// ProvideRepository creates a new repository instance
func ProvideRepository(pool *db.Pool) *repository.Repository {
	return repository.NewRepository(pool)
}

// ProvideMigrator creates the embedded schema migrator
func ProvideMigrator(pool *db.Pool, logger *zap.Logger) (*db.Migrator, error) {
	return db.NewMigrator(pool, logger)
}

// ProvideRegistry creates the Prometheus registry served on /metrics
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics registers the uploader collectors
func ProvideMetrics(reg *prometheus.Registry, cfg *config.Config) *telemetry.Metrics {
	return telemetry.New(reg, cfg.ServiceName)
}

// ProvideHTTPClient creates the upstream HTTP client
func ProvideHTTPClient(cfg *config.Config) *http.Client {
	return &http.Client{Timeout: cfg.Poll.HTTPTimeout}
}

// ProvideAdapters builds one adapter per configured device
func ProvideAdapters(cfg *config.Config, client *http.Client, logger *zap.Logger) []source.Adapter {
	return source.NewAdapters(cfg.Devices, cfg.Poll, client, logger)
}

// ProvidePublisher connects to RabbitMQ when RABBITMQ_URL is set. It returns
// a nil publisher otherwise.
func ProvidePublisher(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (service.EventPublisher, error) {
	if cfg.RabbitMQ.URL == "" {
		logger.Info("RABBITMQ_URL not set, reading notifications disabled")
		return nil, nil
	}

	conn, err := mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	publisher, err := mq.NewPublisher(conn, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RoutingKey, logger)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return publisher.Close()
		},
	})

	return publisher, nil
}

// ProvideIngestor creates the reading ingestor
func ProvideIngestor(
	repo *repository.Repository,
	publisher service.EventPublisher,
	metrics *telemetry.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) *service.Ingestor {
	opts := service.IngestorOptions{
		StoreRaw:  cfg.Poll.StoreRawPayload,
		Publisher: publisher,
		Metrics:   metrics,
	}
	if cfg.Legacy.Enabled {
		opts.Legacy = repo
	}
	return service.NewIngestor(repo, opts, logger)
}

// ProvideRunner creates the poll cycle runner
func ProvideRunner(
	adapters []source.Adapter,
	ingestor *service.Ingestor,
	metrics *telemetry.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) *service.Runner {
	return service.NewRunner(adapters, ingestor, service.RunnerConfig{
		Interval:      cfg.Poll.Interval,
		DeviceTimeout: cfg.Poll.DeviceTimeout,
		StoreTimeout:  cfg.Poll.StoreTimeout,
		Concurrency:   cfg.Poll.Concurrency,
	}, metrics, logger)
}

// ProvideScanner creates the orphan reading scanner
func ProvideScanner(repo *repository.Repository, metrics *telemetry.Metrics, logger *zap.Logger) *anomaly.Scanner {
	return anomaly.NewScanner(repo, metrics, logger)
}
