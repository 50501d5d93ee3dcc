package datewindow

import (
	"fmt"
	"time"
)

const dateOnly = "2006-01-02"

// ParseBound attempts to parse a period boundary with multiple formats
func ParseBound(dateStr string) (time.Time, error) {
	t, _, err := parseBound(dateStr)
	return t, err
}

func parseBound(dateStr string) (time.Time, string, error) {
	formats := []string{
		dateOnly,              // Date only
		time.RFC3339,          // Standard RFC3339
		"2006-01-02T15:04:05", // RFC3339 without zone
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, dateStr)
		if err == nil {
			return t, format, nil
		}
		lastErr = err
	}

	return time.Time{}, "", fmt.Errorf("failed to parse date '%s': %w", dateStr, lastErr)
}

// Window is a closed time interval [Start, End]
type Window struct {
	Start time.Time
	End   time.Time
}

// New parses both boundaries and rejects inverted windows. A date-only
// end boundary covers the whole final day, so readings taken at any time
// on that day stay inside the window.
func New(startStr, endStr string) (Window, error) {
	start, _, err := parseBound(startStr)
	if err != nil {
		return Window{}, err
	}
	end, endFormat, err := parseBound(endStr)
	if err != nil {
		return Window{}, err
	}
	if endFormat == dateOnly {
		end = end.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	if start.After(end) {
		return Window{}, fmt.Errorf("window start %s is after end %s", startStr, endStr)
	}
	return Window{Start: start, End: end}, nil
}

// Contains reports whether t falls inside the window, boundaries included
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}
