package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/logging"
	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/source"
	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RunnerConfig holds poll cycle settings
type RunnerConfig struct {
	Interval      time.Duration
	DeviceTimeout time.Duration
	StoreTimeout  time.Duration
	Concurrency   int
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.DeviceTimeout <= 0 {
		c.DeviceTimeout = 30 * time.Second
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 10 * time.Second
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	return c
}

// DeviceReport is the outcome of one device within a cycle
type DeviceReport struct {
	Device       string
	Source       string
	Observations int
	Stored       int
	Skipped      int
	Err          error
}

// CycleReport is the outcome of one poll cycle
type CycleReport struct {
	RunID    string
	Started  time.Time
	Duration time.Duration
	Devices  []DeviceReport
}

// Failed returns the number of devices that ended with an error
func (r CycleReport) Failed() int {
	n := 0
	for _, d := range r.Devices {
		if d.Err != nil {
			n++
		}
	}
	return n
}

// Runner polls every adapter once per cycle
type Runner struct {
	adapters []source.Adapter
	ingestor *Ingestor
	cfg      RunnerConfig
	metrics  *telemetry.Metrics
	logger   *zap.Logger
}

// NewRunner creates a poll cycle runner
func NewRunner(adapters []source.Adapter, ingestor *Ingestor, cfg RunnerConfig, metrics *telemetry.Metrics, logger *zap.Logger) *Runner {
	return &Runner{
		adapters: adapters,
		ingestor: ingestor,
		cfg:      cfg.withDefaults(),
		metrics:  metrics,
		logger:   logger.Named("poller"),
	}
}

// RunForever runs a cycle immediately and then once per interval until ctx
// is cancelled
func (r *Runner) RunForever(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		report := r.RunOnce(ctx)
		if failed := report.Failed(); failed > 0 {
			r.logger.Warn("poll cycle finished with failures",
				zap.String("run_id", report.RunID),
				zap.Int("failed_devices", failed),
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce polls every device once. Failures and panics are contained per
// device and reported, never returned.
func (r *Runner) RunOnce(ctx context.Context) CycleReport {
	report := CycleReport{
		RunID:   uuid.NewString(),
		Started: time.Now().UTC(),
		Devices: make([]DeviceReport, len(r.adapters)),
	}
	logger := logging.WithRunID(r.logger, report.RunID)
	logger.Info("poll cycle started",
		zap.Int("devices", len(r.adapters)),
		zap.Int("concurrency", r.cfg.Concurrency),
	)

	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)

	for i, adapter := range r.adapters {
		i, adapter := i, adapter
		g.Go(func() error {
			report.Devices[i] = r.runDevice(ctx, adapter, logger)
			return nil
		})
	}
	g.Wait()

	report.Duration = time.Since(report.Started)
	r.metrics.ObserveCycle(report.Duration)

	stored := 0
	for _, d := range report.Devices {
		stored += d.Stored
	}
	logger.Info("poll cycle finished",
		zap.Duration("duration", report.Duration),
		zap.Int("readings", stored),
		zap.Int("failed_devices", report.Failed()),
	)

	return report
}

func (r *Runner) runDevice(ctx context.Context, adapter source.Adapter, cycleLogger *zap.Logger) (report DeviceReport) {
	device := adapter.Device()
	report = DeviceReport{Device: device.Name, Source: device.Source}
	logger := logging.WithDevice(cycleLogger, device.Name, device.Source)

	defer func() {
		if rec := recover(); rec != nil {
			report.Err = fmt.Errorf("panic: %v", rec)
			logger.Error("device poll panicked",
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
			r.metrics.IncFailure(device.Name, "panic")
		}
	}()

	fetchCtx, cancelFetch := context.WithTimeout(ctx, r.cfg.DeviceTimeout)
	defer cancelFetch()

	observations, err := adapter.Fetch(fetchCtx)

	if errors.Is(err, source.ErrNoFeeds) {
		r.metrics.ObserveFetch(device.Name, device.Source, nil)
		r.metrics.IncSkipped(device.Name)
		report.Skipped++
		logger.Info("channel has no feed entries")
		return report
	}
	r.metrics.ObserveFetch(device.Name, device.Source, err)
	if err != nil {
		report.Err = err
		logger.Error("failed to fetch device", zap.Error(err))
		r.metrics.IncFailure(device.Name, "fetch")
		return report
	}
	report.Observations = len(observations)

	// writes get a budget of their own, not what the fetch left over
	ctx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	for _, obs := range observations {
		result, err := r.ingestor.ingest(ctx, obs, logger)
		if err != nil {
			logger.Error("failed to store observation",
				zap.Error(err),
				zap.Time("observed_at", obs.ObservedAt),
			)
			r.metrics.IncFailure(device.Name, "store")
			if report.Err == nil {
				report.Err = err
			}
			continue
		}
		if result.Skipped {
			report.Skipped++
			continue
		}
		report.Stored++
	}

	return report
}
