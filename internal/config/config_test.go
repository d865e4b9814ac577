package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/config"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := config.Load(); err == nil {
		t.Error("Expected error when DATABASE_URL is missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/wiolink")
	t.Setenv("DEVICES_FILE", "")
	t.Setenv("POLL_INTERVAL", "")
	t.Setenv("POLL_CONCURRENCY", "")
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("STORE_TIMEOUT", "")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Poll.Interval != 5*time.Minute {
		t.Errorf("Expected 5m poll interval, got %v", cfg.Poll.Interval)
	}
	if cfg.Poll.HTTPTimeout != 5*time.Second {
		t.Errorf("Expected 5s HTTP timeout, got %v", cfg.Poll.HTTPTimeout)
	}
	if cfg.Poll.StoreTimeout != 10*time.Second {
		t.Errorf("Expected 10s store timeout, got %v", cfg.Poll.StoreTimeout)
	}
	if cfg.Poll.Concurrency != 1 {
		t.Errorf("Expected concurrency 1, got %d", cfg.Poll.Concurrency)
	}
	if cfg.RabbitMQ.URL != "" {
		t.Error("Expected notifications to be disabled by default")
	}
	if len(cfg.Devices) != len(config.DefaultDevices()) {
		t.Errorf("Expected default catalog, got %d devices", len(cfg.Devices))
	}
}

func TestLoad_OverridesAndInvalidValues(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/wiolink")
	t.Setenv("DEVICES_FILE", "")
	t.Setenv("POLL_INTERVAL", "90s")
	t.Setenv("HTTP_TIMEOUT", "not-a-duration")
	t.Setenv("POLL_CONCURRENCY", "0")
	t.Setenv("LEGACY_SINK_ENABLED", "true")
	t.Setenv("WIO_TOKEN_604_DOOR", "door-token")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Poll.Interval != 90*time.Second {
		t.Errorf("Expected 90s, got %v", cfg.Poll.Interval)
	}
	if cfg.Poll.HTTPTimeout != 5*time.Second {
		t.Errorf("Expected invalid duration to fall back to 5s, got %v", cfg.Poll.HTTPTimeout)
	}
	if cfg.Poll.Concurrency != 1 {
		t.Errorf("Expected concurrency to be clamped to 1, got %d", cfg.Poll.Concurrency)
	}
	if !cfg.Legacy.Enabled {
		t.Error("Expected legacy sink to be enabled")
	}
	if cfg.Devices[0].Name != "604_door" || cfg.Devices[0].Token != "door-token" {
		t.Errorf("Expected 604_door token from environment, got %+v", cfg.Devices[0])
	}
}

func TestResolveSecrets(t *testing.T) {
	env := map[string]string{
		"WIO_TOKEN_604_WALL":                   "wall",
		"THINGSPEAK_READ_KEY_604_CENTER":       "center",
		"THINGSPEAK_READ_KEY_604_AIRCONDITION": "aircon",
	}
	getenv := func(k string) string { return env[k] }

	devices := []config.DeviceConfig{
		{Name: "604_wall", Source: config.SourceWio},
		{Name: "604_center", Source: config.SourceThingSpeak},
		{Name: "604_window", Source: config.SourceThingSpeak, ReadKey: "explicit"},
		{Name: "604_door", Source: config.SourceWio},
	}

	resolved := config.ResolveSecrets(devices, getenv)

	if resolved[0].Secret() != "wall" {
		t.Errorf("Expected wall token, got %q", resolved[0].Secret())
	}
	if resolved[1].Secret() != "center" {
		t.Errorf("Expected center read key, got %q", resolved[1].Secret())
	}
	if resolved[2].Secret() != "explicit" {
		t.Errorf("Expected explicit key to be kept, got %q", resolved[2].Secret())
	}
	if resolved[3].Secret() != "" {
		t.Errorf("Expected missing token to stay empty, got %q", resolved[3].Secret())
	}
	if devices[0].Token != "" {
		t.Error("Expected input slice to be left untouched")
	}
}

func TestDefaultDevices_AirConditionerKeepsLatestEntry(t *testing.T) {
	var aircon *config.DeviceConfig
	for _, d := range config.DefaultDevices() {
		if d.Name == "604_aircondition" {
			aircon = &d
		}
	}
	if aircon == nil {
		t.Fatal("Expected 604_aircondition in the default catalog")
	}

	if !aircon.IncludeLatest {
		t.Error("Expected the newest air conditioner entry to be kept between touches")
	}
	if aircon.Window != 5*time.Minute || aircon.RequireTrue != "touch" {
		t.Errorf("Expected touch backfill over 5m, got %v/%q", aircon.Window, aircon.RequireTrue)
	}
	for field, key := range map[string]string{"field1": "celsius_degree", "field2": "humidity", "field3": "light_intensity", "field4": "touch"} {
		if aircon.Fields[field] != key {
			t.Errorf("Expected %s -> %s, got %q", field, key, aircon.Fields[field])
		}
	}
}

func TestEnvName(t *testing.T) {
	tests := map[string]string{
		"604_door":     "604_DOOR",
		"wiolink wall": "WIOLINK_WALL",
		"604-pm2.5":    "604_PM2_5",
	}
	for in, want := range tests {
		if got := config.EnvName(in); got != want {
			t.Errorf("EnvName(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestLoadDevices_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.yaml")
	content := `
devices:
  - name: lab_board
    source: wio
    location: "407"
  - name: lab_channel
    source: thingspeak
    channel_id: "12345"
    results: 20
    window: 10m
    require_true: touch
    include_latest: true
    fields:
      field1: celsius_degree
      field4: touch
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write devices file: %v", err)
	}

	devices, err := config.LoadDevices(path)
	if err != nil {
		t.Fatalf("Failed to load devices: %v", err)
	}

	if len(devices) != 2 {
		t.Fatalf("Expected 2 devices, got %d", len(devices))
	}

	board := devices[0]
	if board.Name != "lab_board" || board.Location != "407" {
		t.Errorf("Unexpected board: %+v", board)
	}
	if board.Sensors["celsius_degree"] != "/GroveTempHumD2/temperature" {
		t.Errorf("Expected default Wio sensor table, got %v", board.Sensors)
	}

	channel := devices[1]
	if channel.ChannelID != "12345" || channel.Results != 20 || channel.RequireTrue != "touch" {
		t.Errorf("Unexpected channel: %+v", channel)
	}
	if !channel.IncludeLatest {
		t.Error("Expected include_latest to be decoded")
	}
	if channel.Window != 10*time.Minute {
		t.Errorf("Expected 10m window, got %v", channel.Window)
	}
	if channel.Fields["field4"] != "touch" {
		t.Errorf("Expected field4 -> touch, got %v", channel.Fields)
	}
}

func TestLoadDevices_RejectsUnknownSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.yaml")
	content := "devices:\n  - name: x\n    source: mqtt\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write devices file: %v", err)
	}

	if _, err := config.LoadDevices(path); err == nil {
		t.Error("Expected unknown source to be rejected")
	}
}

func TestLoadDevices_MissingFile(t *testing.T) {
	if _, err := config.LoadDevices(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}
