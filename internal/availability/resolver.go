// Package availability resolves a team member's weekly availability template
// into concrete free time windows on a given date, with existing assignments
// subtracted.
package availability

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInvalidClock indicates a clock string is not of the form "15:04".
var ErrInvalidClock = errors.New("availability: invalid clock value")

// ParseClock converts a "15:04" string into minutes since midnight.
func ParseClock(s string) (int, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return hour*60 + minute, nil
}

// TemplateWindow is one entry of a weekly availability template. Start and
// End are minutes since midnight; entries with Available false are treated
// as absent.
type TemplateWindow struct {
	Weekday   time.Weekday
	Start     int
	End       int
	Available bool
}

// Window is a concrete half-open time span [Start, End) on a specific date.
type Window struct {
	Start time.Time
	End   time.Time
}

// Duration returns the span covered by the window.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Overlaps reports whether two half-open windows intersect.
func (w Window) Overlaps(other Window) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

// Resolve maps the date to a weekday, collects that weekday's available
// template windows, and subtracts every busy span. Overlapping configured
// windows are treated as their union. A member with no configured
// availability for the weekday resolves to an empty list, not an error.
//
// The result is sorted and disjoint: a window fully consumed by a busy span
// disappears, a partially consumed window splits into up to two remainders.
func Resolve(template []TemplateWindow, date time.Time, busy []Window) []Window {
	weekday := date.Weekday()
	loc := date.Location()
	y, m, d := date.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, loc)

	open := make([]Window, 0, len(template))
	for _, tw := range template {
		if tw.Weekday != weekday || !tw.Available || tw.End <= tw.Start {
			continue
		}
		open = append(open, Window{
			Start: midnight.Add(time.Duration(tw.Start) * time.Minute),
			End:   midnight.Add(time.Duration(tw.End) * time.Minute),
		})
	}
	open = merge(open)

	for _, b := range busy {
		if !b.End.After(b.Start) {
			continue
		}
		open = subtract(open, b)
	}

	return open
}

// merge unions overlapping or touching windows into a sorted disjoint set.
func merge(windows []Window) []Window {
	if len(windows) <= 1 {
		return windows
	}
	sort.Slice(windows, func(i, j int) bool {
		if windows[i].Start.Equal(windows[j].Start) {
			return windows[i].End.Before(windows[j].End)
		}
		return windows[i].Start.Before(windows[j].Start)
	})
	merged := windows[:1]
	for _, w := range windows[1:] {
		last := &merged[len(merged)-1]
		if !w.Start.After(last.End) {
			if w.End.After(last.End) {
				last.End = w.End
			}
			continue
		}
		merged = append(merged, w)
	}
	return merged
}

// subtract removes the busy span from every window, splitting as needed.
func subtract(windows []Window, busy Window) []Window {
	out := make([]Window, 0, len(windows)+1)
	for _, w := range windows {
		if !w.Overlaps(busy) {
			out = append(out, w)
			continue
		}
		if busy.Start.After(w.Start) {
			out = append(out, Window{Start: w.Start, End: busy.Start})
		}
		if busy.End.Before(w.End) {
			out = append(out, Window{Start: busy.End, End: w.End})
		}
	}
	return out
}

// EarliestFit returns the earliest start at or after notBefore from which a
// span of the given duration fits entirely inside one of the windows. The
// second return value is false when no window can host the span.
func EarliestFit(windows []Window, notBefore time.Time, duration time.Duration) (time.Time, bool) {
	if duration <= 0 {
		return time.Time{}, false
	}
	for _, w := range windows {
		start := w.Start
		if start.Before(notBefore) {
			start = notBefore
		}
		if !start.Add(duration).After(w.End) {
			return start, true
		}
	}
	return time.Time{}, false
}

// FitsAt reports whether a span starting exactly at start fits inside one of
// the windows.
func FitsAt(windows []Window, start time.Time, duration time.Duration) bool {
	end := start.Add(duration)
	for _, w := range windows {
		if !start.Before(w.Start) && !end.After(w.End) {
			return true
		}
	}
	return false
}
