package timeparser

import (
	"fmt"
	"time"
)

// ThingSpeakLayout is the fixed UTC layout of feed created_at values
const ThingSpeakLayout = "2006-01-02T15:04:05Z"

// ParseFeedTimestamp parses a ThingSpeak created_at value into a UTC instant.
// RFC3339 with an explicit offset is accepted as well, for channels configured
// with a timezone parameter.
func ParseFeedTimestamp(dateStr string) (time.Time, error) {
	formats := []string{
		ThingSpeakLayout,
		time.RFC3339,
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, dateStr)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %w", dateStr, lastErr)
}

// IsWithinWindow reports whether t is no older than window before now.
// A zero window accepts everything.
func IsWithinWindow(t, now time.Time, window time.Duration) bool {
	if window <= 0 {
		return true
	}
	return !t.Before(now.Add(-window))
}
