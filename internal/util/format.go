package util //nolint:revive // shared display helpers for the admin CLI

import "time"

// FormatDuration renders d for tables. Zero or negative durations render as "-".
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Millisecond:
		return d.String()
	default:
		return d.Truncate(time.Millisecond).String()
	}
}

// Runtime returns the elapsed time between start and end, or zero when
// either bound is missing.
func Runtime(start, end *time.Time) time.Duration {
	if start == nil || end == nil {
		return 0
	}
	return end.Sub(*start)
}
