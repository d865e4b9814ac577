package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/db"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles database operations
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Ping checks that the database is reachable
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// UpsertDevice inserts a device or rewrites its source, location and token.
// Concurrent callers converge on a single row; the last writer wins.
func (r *Repository) UpsertDevice(ctx context.Context, device db.Device) error {
	source := device.Source
	if source == "" {
		source = db.SourceOther
	}

	query := `
		INSERT INTO devices (device_name, source, location, token, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (device_name) DO UPDATE
		SET source = EXCLUDED.source,
		    location = EXCLUDED.location,
		    token = EXCLUDED.token,
		    is_active = TRUE,
		    updated_at = now()
	`

	_, err := r.pool.Exec(ctx, query, device.Name, source, device.Location, device.Token)
	if err != nil {
		return fmt.Errorf("failed to upsert device %s: %w", device.Name, err)
	}

	return nil
}

// EnsureMetrics registers every metric key with its value type in one statement
func (r *Repository) EnsureMetrics(ctx context.Context, metrics []db.Metric) error {
	if len(metrics) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(metrics))
	args := make([]interface{}, 0, len(metrics)*2)
	for i, m := range metrics {
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d)", i*2+1, i*2+2))
		args = append(args, m.Key, string(m.ValueType))
	}

	query := `
		INSERT INTO metrics (metric_key, value_type)
		VALUES ` + strings.Join(placeholders, ", ") + `
		ON CONFLICT (metric_key) DO UPDATE
		SET value_type = EXCLUDED.value_type
	`

	_, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to ensure metrics: %w", err)
	}

	return nil
}

// InsertReading writes a reading header and its values in one transaction
// and returns the generated reading id
func (r *Repository) InsertReading(ctx context.Context, reading *db.Reading, values []db.ReadingValue) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := r.InsertReadingTx(ctx, tx, reading); err != nil {
		// the transaction is rolled back, nothing was written
		return 0, err
	}

	if err := r.InsertReadingValuesTx(ctx, tx, reading.ID, values); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit reading: %w", err)
	}

	return reading.ID, nil
}

// InsertReadingTx inserts a reading header within a transaction and fills in
// its generated id and creation time. It returns db.ErrDuplicateReading when
// the device already has a reading at reading.ObservedAt.
func (r *Repository) InsertReadingTx(ctx context.Context, tx pgx.Tx, reading *db.Reading) error {
	query := `
		INSERT INTO readings (device_name, observed_at, raw)
		VALUES ($1, $2, $3)
		ON CONFLICT (device_name, observed_at) DO NOTHING
		RETURNING reading_id, created_at
	`

	var raw interface{}
	if len(reading.Raw) > 0 {
		raw = string(reading.Raw)
	}

	err := tx.QueryRow(ctx, query, reading.DeviceName, reading.ObservedAt, raw).Scan(&reading.ID, &reading.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return db.ErrDuplicateReading
	}
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}

	return nil
}

// InsertReadingValuesTx inserts the value rows of a reading within a transaction
func (r *Repository) InsertReadingValuesTx(ctx context.Context, tx pgx.Tx, readingID int64, values []db.ReadingValue) error {
	query := `
		INSERT INTO reading_values (reading_id, metric_key, value_numeric, value_bool, value_text)
		VALUES ($1, $2, $3, $4, $5)
	`

	batch := &pgx.Batch{}
	for _, v := range values {
		batch.Queue(query, readingID, v.MetricKey, v.Numeric, v.Bool, v.Text)
	}

	br := tx.SendBatch(ctx, batch)
	for _, v := range values {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to insert value %s: %w", v.MetricKey, err)
		}
	}

	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close value batch: %w", err)
	}

	return nil
}
