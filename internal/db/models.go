package db

import (
	"errors"
	"time"

	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/metric"
)

// ErrDuplicateReading is returned when the device already has a reading at
// the same observation time
var ErrDuplicateReading = errors.New("reading already stored for this observation time")

// Device sources
const (
	SourceWio        = "wio"
	SourceThingSpeak = "thingspeak"
	SourceOther      = "other"
)

// Device represents a row of the devices registry
type Device struct {
	Name     string
	Source   string
	Location *string
	Token    *string
	IsActive bool
}

// Metric represents a row of the metrics registry
type Metric struct {
	Key       string
	ValueType metric.Kind
}

// Reading represents one observation header
type Reading struct {
	ID         int64
	DeviceName string
	ObservedAt time.Time
	Raw        []byte
	CreatedAt  time.Time
}

// ReadingValue represents one metric value attached to a reading.
// Exactly one of Numeric, Bool, Text is non-nil.
type ReadingValue struct {
	ReadingID int64
	MetricKey string
	Numeric   *float64
	Bool      *bool
	Text      *string
}

// NewReadingValue routes a coerced value into its slot
func NewReadingValue(key string, v metric.Value) ReadingValue {
	row := ReadingValue{MetricKey: key}

	switch v.Kind {
	case metric.KindNumeric:
		n := v.Num
		row.Numeric = &n
	case metric.KindBool:
		b := v.Bool
		row.Bool = &b
	default:
		s := v.Text
		row.Text = &s
	}

	return row
}

// PopulatedSlots counts the non-nil value columns
func (rv ReadingValue) PopulatedSlots() int {
	n := 0
	if rv.Numeric != nil {
		n++
	}
	if rv.Bool != nil {
		n++
	}
	if rv.Text != nil {
		n++
	}
	return n
}

// Value converts the row back into a typed value
func (rv ReadingValue) Value() metric.Value {
	switch {
	case rv.Numeric != nil:
		return metric.Numeric(*rv.Numeric)
	case rv.Bool != nil:
		return metric.Boolean(*rv.Bool)
	case rv.Text != nil:
		return metric.Text(*rv.Text)
	}
	return metric.Value{}
}

// MetricsFor builds registry rows for a set of coerced values.
// The declared kind is used, not the slot a lossy value landed in.
func MetricsFor(values metric.Set) []Metric {
	keys := values.Keys()
	metrics := make([]Metric, 0, len(keys))
	for _, k := range keys {
		metrics = append(metrics, Metric{Key: k, ValueType: metric.Classify(k)})
	}
	return metrics
}

// StringPtr returns nil for an empty string
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
