package timeparser_test

import (
	"testing"
	"time"

	"github.com/LEE-CHIEN-AN/wiolink-uploader/tools/timeparser"
)

func TestParseFeedTimestamp_ThingSpeakFormat(t *testing.T) {
	result, err := timeparser.ParseFeedTimestamp("2025-07-14T08:30:45Z")
	if err != nil {
		t.Fatalf("Failed to parse timestamp: %v", err)
	}

	expected := time.Date(2025, 7, 14, 8, 30, 45, 0, time.UTC)
	if !result.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
	if result.Location() != time.UTC {
		t.Errorf("Expected UTC location, got %v", result.Location())
	}
}

func TestParseFeedTimestamp_OffsetIsNormalizedToUTC(t *testing.T) {
	result, err := timeparser.ParseFeedTimestamp("2025-07-14T16:30:45+08:00")
	if err != nil {
		t.Fatalf("Failed to parse timestamp: %v", err)
	}

	expected := time.Date(2025, 7, 14, 8, 30, 45, 0, time.UTC)
	if !result.Equal(expected) || result.Location() != time.UTC {
		t.Errorf("Expected %v in UTC, got %v", expected, result)
	}
}

func TestParseFeedTimestamp_Invalid(t *testing.T) {
	for _, s := range []string{"", "14/07/2025 08:30:45", "not-a-date"} {
		if _, err := timeparser.ParseFeedTimestamp(s); err == nil {
			t.Errorf("Expected error for %q", s)
		}
	}
}

func TestIsWithinWindow(t *testing.T) {
	now := time.Date(2025, 7, 14, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		t      time.Time
		window time.Duration
		want   bool
	}{
		{"inside", now.Add(-3 * time.Minute), 5 * time.Minute, true},
		{"exact boundary", now.Add(-5 * time.Minute), 5 * time.Minute, true},
		{"outside", now.Add(-5*time.Minute - time.Second), 5 * time.Minute, false},
		{"future", now.Add(time.Minute), 5 * time.Minute, true},
		{"zero window", now.Add(-24 * time.Hour), 0, true},
	}

	for _, tt := range tests {
		if got := timeparser.IsWithinWindow(tt.t, now, tt.window); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}
