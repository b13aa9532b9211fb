package radar

import (
	"errors"
	"fmt"
	"time"
)

// DefaultWindowLength is the fortnight used when no length is configured.
const DefaultWindowLength = 14 * 24 * time.Hour

// TimeWindow is a half-open interval [From, To).
type TimeWindow struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether ts falls inside the window.
func (w TimeWindow) Contains(ts time.Time) bool {
	return !ts.Before(w.From) && ts.Before(w.To)
}

// Duration returns the window length.
func (w TimeWindow) Duration() time.Duration { return w.To.Sub(w.From) }

// Windows pairs the current window with the adjacent previous one.
type Windows struct {
	Current  TimeWindow `json:"current"`
	Previous TimeWindow `json:"previous"`
}

// MakeWindows derives the current and previous windows ending at now.
func MakeWindows(now time.Time, length time.Duration) Windows {
	if length <= 0 {
		length = DefaultWindowLength
	}
	now = now.UTC()
	return Windows{
		Current:  TimeWindow{From: now.Add(-length), To: now},
		Previous: TimeWindow{From: now.Add(-2 * length), To: now.Add(-length)},
	}
}

// Validate checks that both windows are non-empty, equal-length and contiguous.
func (w Windows) Validate() error {
	if !w.Current.From.Before(w.Current.To) {
		return errors.New("radar: current window is empty")
	}
	if !w.Previous.From.Before(w.Previous.To) {
		return errors.New("radar: previous window is empty")
	}
	if !w.Previous.To.Equal(w.Current.From) {
		return fmt.Errorf("radar: windows not contiguous: previous ends %s, current starts %s",
			w.Previous.To.Format(time.RFC3339), w.Current.From.Format(time.RFC3339))
	}
	if w.Previous.Duration() != w.Current.Duration() {
		return fmt.Errorf("radar: window lengths differ: %s vs %s", w.Previous.Duration(), w.Current.Duration())
	}
	return nil
}

// Span returns the union of both windows.
func (w Windows) Span() TimeWindow {
	return TimeWindow{From: w.Previous.From, To: w.Current.To}
}

// Bucket reports which window ts belongs to.
func (w Windows) Bucket(ts time.Time) (current, previous bool) {
	return w.Current.Contains(ts), w.Previous.Contains(ts)
}
