package history

import (
	"fmt"
	"time"
)

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTimestamp parses a timestamp stored in SQLite.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("recorded_at is empty")
	}

	t, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return t.UTC(), nil
	}

	fallback, fallbackErr := time.Parse(time.DateTime, value)
	if fallbackErr == nil {
		return fallback.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("parsing recorded_at %q: %w", value, err)
}
