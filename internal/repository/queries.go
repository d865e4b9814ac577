package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/db"
	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/metric"
)

const (
	DefaultQueryLimit = 500
	MaxQueryLimit     = 10000
)

// ReadingQuery selects a time window of reading values
type ReadingQuery struct {
	Device  string
	Metrics []string
	Start   time.Time
	End     time.Time
	Order   string
	Limit   int
}

// ReadingPoint is one reading value joined to its header
type ReadingPoint struct {
	ReadingID  int64        `json:"reading_id"`
	Device     string       `json:"device_name"`
	ObservedAt time.Time    `json:"observed_at"`
	MetricKey  string       `json:"metric_key"`
	Kind       metric.Kind  `json:"value_type"`
	Value      metric.Value `json:"value"`
}

// Validate fills defaults and rejects inconsistent parameters
func (q *ReadingQuery) Validate() error {
	if q.Order == "" {
		q.Order = "asc"
	}
	if q.Order != "asc" && q.Order != "desc" {
		return fmt.Errorf("invalid order: %s (valid: asc, desc)", q.Order)
	}

	if q.Limit == 0 {
		q.Limit = DefaultQueryLimit
	}
	if q.Limit < 1 || q.Limit > MaxQueryLimit {
		return fmt.Errorf("limit must be between 1 and %d", MaxQueryLimit)
	}

	if !q.Start.IsZero() && !q.End.IsZero() && q.End.Before(q.Start) {
		return fmt.Errorf("end must not be before start")
	}

	return nil
}

// QueryReadings returns reading values in time order, filtered by device,
// metric keys and time range
func (r *Repository) QueryReadings(ctx context.Context, q ReadingQuery) ([]ReadingPoint, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	whereClause := ""
	args := []interface{}{}
	argCount := 1

	if q.Device != "" {
		whereClause += fmt.Sprintf(" AND r.device_name = $%d", argCount)
		args = append(args, q.Device)
		argCount++
	}

	if len(q.Metrics) > 0 {
		whereClause += fmt.Sprintf(" AND v.metric_key = ANY($%d)", argCount)
		args = append(args, q.Metrics)
		argCount++
	}

	if !q.Start.IsZero() {
		whereClause += fmt.Sprintf(" AND r.observed_at >= $%d", argCount)
		args = append(args, q.Start)
		argCount++
	}

	if !q.End.IsZero() {
		whereClause += fmt.Sprintf(" AND r.observed_at <= $%d", argCount)
		args = append(args, q.End)
		argCount++
	}

	query := `
		SELECT r.reading_id, r.device_name, r.observed_at,
		       v.metric_key, m.value_type,
		       v.value_numeric, v.value_bool, v.value_text
		FROM readings r
		JOIN reading_values v ON v.reading_id = r.reading_id
		JOIN metrics m ON m.metric_key = v.metric_key
		WHERE 1=1
	` + whereClause +
		fmt.Sprintf(" ORDER BY r.observed_at %s, v.metric_key ASC LIMIT $%d", strings.ToUpper(q.Order), argCount)
	args = append(args, q.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	points := []ReadingPoint{}
	for rows.Next() {
		var p ReadingPoint
		var kind string
		var rv db.ReadingValue
		if err := rows.Scan(
			&p.ReadingID,
			&p.Device,
			&p.ObservedAt,
			&p.MetricKey,
			&kind,
			&rv.Numeric,
			&rv.Bool,
			&rv.Text,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reading value: %w", err)
		}
		p.Kind = metric.Kind(kind)
		p.Value = rv.Value()
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return points, nil
}

// ListDevices returns the device registry without tokens
func (r *Repository) ListDevices(ctx context.Context) ([]db.Device, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT device_name, source, location, is_active
		FROM devices
		ORDER BY device_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	devices := []db.Device{}
	for rows.Next() {
		var d db.Device
		if err := rows.Scan(&d.Name, &d.Source, &d.Location, &d.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}

	return devices, rows.Err()
}

// ListMetrics returns the metric registry
func (r *Repository) ListMetrics(ctx context.Context) ([]db.Metric, error) {
	rows, err := r.pool.Query(ctx, `SELECT metric_key, value_type FROM metrics ORDER BY metric_key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	metrics := []db.Metric{}
	for rows.Next() {
		var m db.Metric
		var kind string
		if err := rows.Scan(&m.Key, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		m.ValueType = metric.Kind(kind)
		metrics = append(metrics, m)
	}

	return metrics, rows.Err()
}

// FindOrphanReadings lists reading headers without any value rows that were
// created before the cutoff
func (r *Repository) FindOrphanReadings(ctx context.Context, createdBefore time.Time, limit int) ([]db.Reading, error) {
	query := `
		SELECT r.reading_id, r.device_name, r.observed_at, r.created_at
		FROM readings r
		WHERE r.created_at < $1
		  AND NOT EXISTS (SELECT 1 FROM reading_values v WHERE v.reading_id = r.reading_id)
		ORDER BY r.created_at ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query orphan readings: %w", err)
	}
	defer rows.Close()

	var readings []db.Reading
	for rows.Next() {
		var reading db.Reading
		if err := rows.Scan(&reading.ID, &reading.DeviceName, &reading.ObservedAt, &reading.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		readings = append(readings, reading)
	}

	return readings, rows.Err()
}
