package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/db"
	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/metric"
	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/mq"
	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/source"
	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/telemetry"
	"go.uber.org/zap"
)

// Store persists the normalized registry and readings
type Store interface {
	UpsertDevice(ctx context.Context, device db.Device) error
	EnsureMetrics(ctx context.Context, metrics []db.Metric) error
	InsertReading(ctx context.Context, reading *db.Reading, values []db.ReadingValue) (int64, error)
}

// LegacySink receives a wide-row projection of each reading
type LegacySink interface {
	WriteSensorData(ctx context.Context, name string, observedAt time.Time, values metric.Set) error
}

// EventPublisher is notified after a reading commits
type EventPublisher interface {
	PublishReadingIngested(ctx context.Context, event mq.ReadingIngestedEvent) error
}

// Result describes what one Ingest call wrote
type Result struct {
	ReadingID int64
	Values    int
	Skipped   bool
	Duplicate bool
	Lossy     []string
}

// IngestorOptions holds the optional collaborators of an Ingestor
type IngestorOptions struct {
	StoreRaw  bool
	Legacy    LegacySink
	Publisher EventPublisher
	Metrics   *telemetry.Metrics
}

// Ingestor turns observations into registry updates and reading rows
type Ingestor struct {
	store  Store
	opts   IngestorOptions
	logger *zap.Logger
}

// NewIngestor creates a new ingestor
func NewIngestor(store Store, opts IngestorOptions, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		store:  store,
		opts:   opts,
		logger: logger,
	}
}

// Ingest normalizes one observation and writes it. Null values are dropped;
// an observation with nothing left is skipped without touching storage.
// The device and metric registry are updated before the reading is inserted.
// A reading the device already has at the same observation time is skipped
// and reported as Duplicate.
func (s *Ingestor) Ingest(ctx context.Context, obs source.Observation) (Result, error) {
	return s.ingest(ctx, obs, s.logger)
}

func (s *Ingestor) ingest(ctx context.Context, obs source.Observation, logger *zap.Logger) (Result, error) {
	values := metric.CoerceAll(obs.Values)
	if len(values) == 0 {
		logger.Info("observation has no usable values, skipping",
			zap.Time("observed_at", obs.ObservedAt),
		)
		s.opts.Metrics.IncSkipped(obs.Device.Name)
		return Result{Skipped: true}, nil
	}

	if err := s.store.UpsertDevice(ctx, deviceRow(obs.Device)); err != nil {
		return Result{}, fmt.Errorf("failed to register device: %w", err)
	}

	if err := s.store.EnsureMetrics(ctx, db.MetricsFor(values)); err != nil {
		return Result{}, fmt.Errorf("failed to register metrics: %w", err)
	}

	keys := values.Keys()
	rows := make([]db.ReadingValue, 0, len(keys))
	kinds := make(map[metric.Kind]int, 3)
	for _, k := range keys {
		rows = append(rows, db.NewReadingValue(k, values[k]))
		kinds[values[k].Kind]++
	}

	reading := &db.Reading{
		DeviceName: obs.Device.Name,
		ObservedAt: obs.ObservedAt.UTC(),
	}
	if s.opts.StoreRaw {
		reading.Raw = obs.Raw
	}

	readingID, err := s.store.InsertReading(ctx, reading, rows)
	if errors.Is(err, db.ErrDuplicateReading) {
		logger.Debug("reading already stored, skipping",
			zap.Time("observed_at", reading.ObservedAt),
		)
		s.opts.Metrics.IncSkipped(obs.Device.Name)
		return Result{Skipped: true, Duplicate: true}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to insert reading: %w", err)
	}

	lossy := values.Lossy()
	for _, k := range lossy {
		logger.Warn("value stored through fallback coercion",
			zap.String("metric", k),
			zap.String("declared_kind", metric.Classify(k).String()),
			zap.String("stored_kind", values[k].Kind.String()),
			zap.String("value", values[k].String()),
		)
		s.opts.Metrics.IncLossy(k)
	}

	s.opts.Metrics.IncReading(obs.Device.Name)
	for kind, n := range kinds {
		s.opts.Metrics.AddValues(kind.String(), n)
	}

	if s.opts.Legacy != nil {
		if err := s.opts.Legacy.WriteSensorData(ctx, obs.Device.Name, reading.ObservedAt, values); err != nil {
			logger.Error("failed to write legacy sensor_data row", zap.Error(err))
		}
	}

	if s.opts.Publisher != nil {
		event := mq.ReadingIngestedEvent{
			ReadingID:  readingID,
			DeviceName: obs.Device.Name,
			Source:     obs.Device.Source,
			ObservedAt: reading.ObservedAt,
			MetricKeys: keys,
		}
		if err := s.opts.Publisher.PublishReadingIngested(ctx, event); err != nil {
			logger.Error("failed to publish reading event",
				zap.Error(err),
				zap.Int64("reading_id", readingID),
			)
		}
	}

	logger.Info("reading stored",
		zap.Int64("reading_id", readingID),
		zap.Time("observed_at", reading.ObservedAt),
		zap.Int("values", len(rows)),
	)

	return Result{
		ReadingID: readingID,
		Values:    len(rows),
		Lossy:     lossy,
	}, nil
}

func deviceRow(d source.Device) db.Device {
	row := db.Device{
		Name:     d.Name,
		Source:   d.Source,
		IsActive: true,
	}
	if d.Location != "" {
		row.Location = db.StringPtr(d.Location)
	}
	if d.Token != "" {
		row.Token = db.StringPtr(d.Token)
	}
	return row
}
