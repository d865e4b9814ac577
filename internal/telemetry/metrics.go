package telemetry

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the uploader's Prometheus collectors. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	fetches       *prometheus.CounterVec
	readings      *prometheus.CounterVec
	values        *prometheus.CounterVec
	skipped       *prometheus.CounterVec
	lossy         *prometheus.CounterVec
	failures      *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	orphans       prometheus.Gauge
}

// New creates the collectors and registers them with registerer
func New(registerer prometheus.Registerer, serviceName string) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName = strings.TrimSpace(serviceName)
	if serviceName == "" {
		serviceName = "wiolink-uploader"
	}
	constLabels := prometheus.Labels{"service": serviceName}

	m := &Metrics{
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "wiolink_source_fetches_total",
				Help:        "Upstream fetches per device and result.",
				ConstLabels: constLabels,
			},
			[]string{"device", "source", "result"}, // ok | error
		),
		readings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "wiolink_readings_ingested_total",
				Help:        "Readings committed per device.",
				ConstLabels: constLabels,
			},
			[]string{"device"},
		),
		values: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "wiolink_reading_values_total",
				Help:        "Reading values written by storage slot.",
				ConstLabels: constLabels,
			},
			[]string{"kind"},
		),
		skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "wiolink_observations_skipped_total",
				Help:        "Observations skipped because every value was null.",
				ConstLabels: constLabels,
			},
			[]string{"device"},
		),
		lossy: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "wiolink_lossy_coercions_total",
				Help:        "Values stored through a fallback coercion.",
				ConstLabels: constLabels,
			},
			[]string{"metric"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "wiolink_device_failures_total",
				Help:        "Device failures per poll cycle stage.",
				ConstLabels: constLabels,
			},
			[]string{"device", "stage"}, // fetch | store | panic
		),
		cycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:        "wiolink_poll_cycle_duration_seconds",
				Help:        "Wall time of one poll cycle.",
				Buckets:     []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
				ConstLabels: constLabels,
			},
		),
		orphans: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "wiolink_orphan_readings",
				Help:        "Reading headers without values found by the last scan.",
				ConstLabels: constLabels,
			},
		),
	}

	registerer.MustRegister(
		m.fetches,
		m.readings,
		m.values,
		m.skipped,
		m.lossy,
		m.failures,
		m.cycleDuration,
		m.orphans,
	)

	return m
}

func (m *Metrics) ObserveFetch(device, source string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.fetches.WithLabelValues(device, source, result).Inc()
}

func (m *Metrics) IncReading(device string) {
	if m == nil {
		return
	}
	m.readings.WithLabelValues(device).Inc()
}

func (m *Metrics) AddValues(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.values.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) IncSkipped(device string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(device).Inc()
}

func (m *Metrics) IncLossy(metricKey string) {
	if m == nil {
		return
	}
	m.lossy.WithLabelValues(metricKey).Inc()
}

func (m *Metrics) IncFailure(device, stage string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(device, stage).Inc()
}

func (m *Metrics) ObserveCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.cycleDuration.Observe(d.Seconds())
}

func (m *Metrics) SetOrphans(n int) {
	if m == nil {
		return
	}
	m.orphans.Set(float64(n))
}
