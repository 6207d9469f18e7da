package trigger

import "time"

// Lookback bounds, in days.
const (
	MinLookbackDays     = 10
	MaxLookbackDays     = 60
	DefaultLookbackDays = 14
)

// ClampLookback bounds a caller-supplied lookback. Non-positive values fall
// back to def (itself clamped).
func ClampLookback(days, def int) int {
	if days <= 0 {
		days = def
	}
	if days <= 0 {
		days = DefaultLookbackDays
	}
	if days < MinLookbackDays {
		return MinLookbackDays
	}
	if days > MaxLookbackDays {
		return MaxLookbackDays
	}
	return days
}

// Window is a closed detection interval. End is floored to the minute so that
// repeated runs within the same minute produce the same dedup key.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewWindow builds the window ending at now.
func NewWindow(now time.Time, lookbackDays int) Window {
	end := now.UTC().Truncate(time.Minute)
	return Window{Start: end.AddDate(0, 0, -lookbackDays), End: end}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Last returns the trailing sub-window of the given number of days, never
// starting before w.Start.
func (w Window) Last(days int) Window {
	start := w.End.AddDate(0, 0, -days)
	if start.Before(w.Start) {
		start = w.Start
	}
	return Window{Start: start, End: w.End}
}
