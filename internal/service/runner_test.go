package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/service"
	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/source"
	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

type fakeAdapter struct {
	device source.Device
	fetch  func(ctx context.Context) ([]source.Observation, error)
}

func (f *fakeAdapter) Device() source.Device { return f.device }

func (f *fakeAdapter) Fetch(ctx context.Context) ([]source.Observation, error) {
	return f.fetch(ctx)
}

func staticAdapter(name string, values map[string]any) *fakeAdapter {
	device := source.Device{Name: name, Source: "thingspeak"}
	return &fakeAdapter{
		device: device,
		fetch: func(ctx context.Context) ([]source.Observation, error) {
			return []source.Observation{{Device: device, ObservedAt: time.Now(), Values: values}}, nil
		},
	}
}

func TestRunOnce_TimeoutIsContained(t *testing.T) {
	store := newFakeStore()
	ingestor := service.NewIngestor(store, service.IngestorOptions{}, zap.NewNop())

	hanging := &fakeAdapter{
		device: source.Device{Name: "604_window", Source: "thingspeak"},
		fetch: func(ctx context.Context) ([]source.Observation, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	adapters := []source.Adapter{
		staticAdapter("604_center", map[string]any{"celsius_degree": 24.0}),
		hanging,
		staticAdapter("604_outdoor", map[string]any{"humidity": 70}),
	}

	runner := service.NewRunner(adapters, ingestor, service.RunnerConfig{DeviceTimeout: 50 * time.Millisecond}, nil, zap.NewNop())
	report := runner.RunOnce(context.Background())

	if report.RunID == "" {
		t.Error("Expected a run id")
	}
	if report.Failed() != 1 {
		t.Errorf("Expected 1 failed device, got %d", report.Failed())
	}
	if !errors.Is(report.Devices[1].Err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded for 604_window, got %v", report.Devices[1].Err)
	}
	if report.Devices[0].Stored != 1 || report.Devices[2].Stored != 1 {
		t.Errorf("Expected other devices to be stored, got %+v", report.Devices)
	}
	if store.readingCount() != 2 {
		t.Errorf("Expected 2 readings, got %d", store.readingCount())
	}
	for _, call := range store.calls {
		if call == "device:604_window" {
			t.Error("Expected timed out device to write nothing")
		}
	}
}

func TestRunOnce_PanicIsContained(t *testing.T) {
	store := newFakeStore()
	ingestor := service.NewIngestor(store, service.IngestorOptions{}, zap.NewNop())
	reg := prometheus.NewRegistry()
	metrics := telemetry.New(reg, "test")

	panicking := &fakeAdapter{
		device: source.Device{Name: "604_wall", Source: "wio"},
		fetch: func(ctx context.Context) ([]source.Observation, error) {
			panic("unexpected nil map")
		},
	}
	adapters := []source.Adapter{panicking, staticAdapter("604_center", map[string]any{"humidity": 50})}

	runner := service.NewRunner(adapters, ingestor, service.RunnerConfig{}, metrics, zap.NewNop())
	report := runner.RunOnce(context.Background())

	if report.Devices[0].Err == nil {
		t.Error("Expected panic to be reported as an error")
	}
	if report.Devices[1].Stored != 1 {
		t.Errorf("Expected 604_center to be stored, got %+v", report.Devices[1])
	}

	count, err := testutil.GatherAndCount(reg, "wiolink_device_failures_total")
	if err != nil {
		t.Fatalf("Failed to gather: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 failure series, got %d", count)
	}
}

func TestRunOnce_FetchErrorAndSkip(t *testing.T) {
	store := newFakeStore()
	ingestor := service.NewIngestor(store, service.IngestorOptions{}, zap.NewNop())

	empty := &fakeAdapter{
		device: source.Device{Name: "604_outdoor", Source: "thingspeak"},
		fetch: func(ctx context.Context) ([]source.Observation, error) {
			return nil, source.ErrNoFeeds
		},
	}
	adapters := []source.Adapter{
		empty,
		staticAdapter("604_center", map[string]any{"humidity": nil}),
	}

	report := service.NewRunner(adapters, ingestor, service.RunnerConfig{}, nil, zap.NewNop()).RunOnce(context.Background())

	if report.Devices[0].Err != nil || report.Devices[0].Skipped != 1 {
		t.Errorf("Expected empty channel to be skipped, got %+v", report.Devices[0])
	}
	if report.Failed() != 0 {
		t.Errorf("Expected no failed devices, got %d", report.Failed())
	}
	if report.Devices[1].Skipped != 1 || report.Devices[1].Err != nil {
		t.Errorf("Expected all-null observation to be skipped, got %+v", report.Devices[1])
	}
	if store.readingCount() != 0 {
		t.Errorf("Expected no readings, got %d", store.readingCount())
	}
}

func TestRunOnce_EmptyChannelIsNotAFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := telemetry.New(reg, "test")
	ingestor := service.NewIngestor(newFakeStore(), service.IngestorOptions{Metrics: metrics}, zap.NewNop())

	empty := &fakeAdapter{
		device: source.Device{Name: "604_window", Source: "thingspeak"},
		fetch: func(ctx context.Context) ([]source.Observation, error) {
			return nil, source.ErrNoFeeds
		},
	}

	service.NewRunner([]source.Adapter{empty}, ingestor, service.RunnerConfig{}, metrics, zap.NewNop()).RunOnce(context.Background())

	count, err := testutil.GatherAndCount(reg, "wiolink_device_failures_total")
	if err != nil {
		t.Fatalf("Failed to gather: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected no failure series, got %d", count)
	}
}

func TestRunOnce_SlowFetchLeavesTimeToStore(t *testing.T) {
	store := newFakeStore()
	ingestor := service.NewIngestor(store, service.IngestorOptions{}, zap.NewNop())

	device := source.Device{Name: "604_wall", Source: "wio"}
	slow := &fakeAdapter{
		device: device,
		fetch: func(ctx context.Context) ([]source.Observation, error) {
			// a sensor hangs until the budget runs out; the earlier one was read
			<-ctx.Done()
			return []source.Observation{{Device: device, ObservedAt: time.Now(), Values: map[string]any{"celsius_degree": 24.5}}}, nil
		},
	}

	runner := service.NewRunner([]source.Adapter{slow}, ingestor, service.RunnerConfig{DeviceTimeout: 30 * time.Millisecond}, nil, zap.NewNop())
	report := runner.RunOnce(context.Background())

	if report.Devices[0].Err != nil {
		t.Errorf("Expected partial observation to be stored, got %v", report.Devices[0].Err)
	}
	if report.Devices[0].Stored != 1 || store.readingCount() != 1 {
		t.Errorf("Expected 1 stored reading, got %+v (store has %d)", report.Devices[0], store.readingCount())
	}
}

func TestRunOnce_BackfillOverlapIsDeduplicated(t *testing.T) {
	store := newFakeStore()
	ingestor := service.NewIngestor(store, service.IngestorOptions{}, zap.NewNop())

	device := source.Device{Name: "604_aircondition", Source: "thingspeak"}
	touchedAt := time.Date(2025, 7, 14, 7, 58, 0, 0, time.UTC)
	adapter := &fakeAdapter{
		device: device,
		fetch: func(ctx context.Context) ([]source.Observation, error) {
			return []source.Observation{{Device: device, ObservedAt: touchedAt, Values: map[string]any{"touch": "1"}}}, nil
		},
	}

	runner := service.NewRunner([]source.Adapter{adapter}, ingestor, service.RunnerConfig{}, nil, zap.NewNop())
	first := runner.RunOnce(context.Background())
	second := runner.RunOnce(context.Background())

	if first.Devices[0].Stored != 1 {
		t.Errorf("Expected first cycle to store, got %+v", first.Devices[0])
	}
	if second.Devices[0].Stored != 0 || second.Devices[0].Skipped != 1 || second.Devices[0].Err != nil {
		t.Errorf("Expected second cycle to skip the same entry, got %+v", second.Devices[0])
	}
	if store.readingCount() != 1 {
		t.Errorf("Expected 1 reading, got %d", store.readingCount())
	}
}

func TestRunOnce_ConcurrencyLimit(t *testing.T) {
	store := newFakeStore()
	ingestor := service.NewIngestor(store, service.IngestorOptions{}, zap.NewNop())

	var active, peak int32
	adapters := make([]source.Adapter, 0, 6)
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		device := source.Device{Name: name, Source: "wio"}
		adapters = append(adapters, &fakeAdapter{
			device: device,
			fetch: func(ctx context.Context) ([]source.Observation, error) {
				n := atomic.AddInt32(&active, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return []source.Observation{{Device: device, ObservedAt: time.Now(), Values: map[string]any{"dust": 1.5}}}, nil
			},
		})
	}

	runner := service.NewRunner(adapters, ingestor, service.RunnerConfig{Concurrency: 2}, nil, zap.NewNop())
	report := runner.RunOnce(context.Background())

	if report.Failed() != 0 {
		t.Errorf("Expected no failures, got %d", report.Failed())
	}
	if store.readingCount() != 6 {
		t.Errorf("Expected 6 readings, got %d", store.readingCount())
	}
	if peak > 2 {
		t.Errorf("Expected at most 2 concurrent fetches, got %d", peak)
	}
}

func TestRunForever_StopsOnCancel(t *testing.T) {
	store := newFakeStore()
	ingestor := service.NewIngestor(store, service.IngestorOptions{}, zap.NewNop())

	var cycles int32
	device := source.Device{Name: "604_center", Source: "thingspeak"}
	adapter := &fakeAdapter{
		device: device,
		fetch: func(ctx context.Context) ([]source.Observation, error) {
			atomic.AddInt32(&cycles, 1)
			return nil, nil
		},
	}

	runner := service.NewRunner([]source.Adapter{adapter}, ingestor, service.RunnerConfig{Interval: 10 * time.Millisecond}, nil, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		runner.RunForever(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected RunForever to return after cancellation")
	}

	if n := atomic.LoadInt32(&cycles); n < 2 {
		t.Errorf("Expected the first cycle to run immediately and then on the ticker, got %d", n)
	}
}
