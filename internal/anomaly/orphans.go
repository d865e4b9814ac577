package anomaly

import (
	"context"
	"fmt"
	"time"

	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/db"
	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/telemetry"
	"go.uber.org/zap"
)

// OrphanFinder lists reading headers that have no value rows
type OrphanFinder interface {
	FindOrphanReadings(ctx context.Context, createdBefore time.Time, limit int) ([]db.Reading, error)
}

// Report summarizes one consistency scan
type Report struct {
	Cutoff  time.Time
	Orphans []db.Reading
	// Truncated is set when the scan hit its limit
	Truncated bool
}

// Scanner finds reading headers left without values
type Scanner struct {
	finder  OrphanFinder
	metrics *telemetry.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewScanner creates a new orphan reading scanner
func NewScanner(finder OrphanFinder, metrics *telemetry.Metrics, logger *zap.Logger) *Scanner {
	return &Scanner{
		finder:  finder,
		metrics: metrics,
		logger:  logger.Named("scan"),
		now:     time.Now,
	}
}

// Scan reports readings created more than olderThan ago that carry no values.
// Younger headers are ignored since their values may still be in flight.
func (s *Scanner) Scan(ctx context.Context, olderThan time.Duration, limit int) (Report, error) {
	if olderThan < 0 {
		return Report{}, fmt.Errorf("olderThan must not be negative, got %s", olderThan)
	}
	if limit <= 0 {
		limit = 1000
	}

	report := Report{Cutoff: s.now().UTC().Add(-olderThan)}

	orphans, err := s.finder.FindOrphanReadings(ctx, report.Cutoff, limit)
	if err != nil {
		return Report{}, fmt.Errorf("failed to scan orphan readings: %w", err)
	}
	report.Orphans = orphans
	report.Truncated = len(orphans) >= limit

	for _, r := range orphans {
		s.logger.Warn("reading has no values",
			zap.Int64("reading_id", r.ID),
			zap.String("device", r.DeviceName),
			zap.Time("observed_at", r.ObservedAt),
			zap.Time("created_at", r.CreatedAt),
		)
	}

	s.metrics.SetOrphans(len(orphans))
	s.logger.Info("orphan scan finished",
		zap.Time("cutoff", report.Cutoff),
		zap.Int("orphans", len(orphans)),
		zap.Bool("truncated", report.Truncated),
	)

	return report, nil
}
