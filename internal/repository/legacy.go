package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/metric"
)

// SensorDataRow is the wide-table projection of one observation
type SensorDataRow struct {
	Name           string
	Time           time.Time
	Humidity       *float64
	LightIntensity *float64
	CelsiusDegree  *float64
	MagApproach    *int
	Touch          *int
	MotionDetected *int
	Dust           *float64
	PM1            *float64
	PM25           *float64
	PM10           *float64
}

// ProjectSensorData maps a typed metric set onto the fixed sensor_data columns.
// Metrics without a column and text fallbacks of numeric metrics are left out.
func ProjectSensorData(name string, observedAt time.Time, values metric.Set) SensorDataRow {
	return SensorDataRow{
		Name:           name,
		Time:           observedAt,
		Humidity:       numericColumn(values, metric.KeyHumidity),
		LightIntensity: numericColumn(values, metric.KeyLightIntensity),
		CelsiusDegree:  numericColumn(values, metric.KeyCelsiusDegree),
		MagApproach:    flagColumn(values, metric.KeyMagApproach),
		Touch:          flagColumn(values, metric.KeyTouch),
		MotionDetected: flagColumn(values, metric.KeyMotionDetected),
		Dust:           numericColumn(values, metric.KeyDust),
		PM1:            numericColumn(values, metric.KeyPM1),
		PM25:           numericColumn(values, metric.KeyPM25),
		PM10:           numericColumn(values, metric.KeyPM10),
	}
}

// WriteSensorData inserts one row into the legacy wide table
func (r *Repository) WriteSensorData(ctx context.Context, name string, observedAt time.Time, values metric.Set) error {
	row := ProjectSensorData(name, observedAt, values)

	query := `
		INSERT INTO sensor_data (
			name, time, humidity, light_intensity, celsius_degree,
			mag_approach, touch, motion_detected, dust,
			pm1_0_atm, pm2_5_atm, pm10_atm
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.pool.Exec(ctx, query,
		row.Name,
		row.Time,
		row.Humidity,
		row.LightIntensity,
		row.CelsiusDegree,
		row.MagApproach,
		row.Touch,
		row.MotionDetected,
		row.Dust,
		row.PM1,
		row.PM25,
		row.PM10,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sensor_data row: %w", err)
	}

	return nil
}

func numericColumn(values metric.Set, key string) *float64 {
	v, ok := values[key]
	if !ok || v.Kind != metric.KindNumeric {
		return nil
	}
	n := v.Num
	return &n
}

func flagColumn(values metric.Set, key string) *int {
	v, ok := values[key]
	if !ok || v.Kind != metric.KindBool {
		return nil
	}
	n := 0
	if v.Bool {
		n = 1
	}
	return &n
}
