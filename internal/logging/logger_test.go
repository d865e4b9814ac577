package logging_test

import (
	"testing"

	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	logger, err := logging.NewLogger("wiolink-uploader")
	if err != nil {
		t.Fatalf("Failed to build logger: %v", err)
	}
	if logger == nil {
		t.Fatal("Expected logger")
	}
}

func TestWithRunIDAndDevice(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := logging.WithDevice(logging.WithRunID(zap.New(core), "run-1"), "604_door", "wio")

	logger.Info("ingested")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["run_id"] != "run-1" {
		t.Errorf("Expected run_id 'run-1', got %v", fields["run_id"])
	}
	if fields["device"] != "604_door" || fields["source"] != "wio" {
		t.Errorf("Expected device fields, got %v", fields)
	}
}
