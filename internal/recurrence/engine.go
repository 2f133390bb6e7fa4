package recurrence

import (
	"errors"
	"math"
	"time"
)

var copenhagen = loadCopenhagen()

func loadCopenhagen() *time.Location {
	loc, err := time.LoadLocation("Europe/Copenhagen")
	if err != nil {
		return time.FixedZone("CET", 60*60)
	}
	return loc
}

// Frequency represents supported recurrence intervals.
type Frequency int

const (
	// FrequencyUnspecified indicates the template frequency is not set.
	FrequencyUnspecified Frequency = iota
	// FrequencyDaily generates an occurrence every Interval days.
	FrequencyDaily
	// FrequencyWeekly generates occurrences on the selected weekdays every
	// Interval weeks.
	FrequencyWeekly
	// FrequencyBiweekly is weekly recurrence with an effective two-week step.
	FrequencyBiweekly
	// FrequencyMonthly generates an occurrence every Interval months.
	FrequencyMonthly
	// FrequencyQuarterly generates an occurrence every Interval quarters.
	FrequencyQuarterly
)

// ParseFrequency maps the stored string form to a Frequency.
func ParseFrequency(s string) (Frequency, error) {
	switch s {
	case "daily":
		return FrequencyDaily, nil
	case "weekly":
		return FrequencyWeekly, nil
	case "biweekly":
		return FrequencyBiweekly, nil
	case "monthly":
		return FrequencyMonthly, nil
	case "quarterly":
		return FrequencyQuarterly, nil
	default:
		return FrequencyUnspecified, ErrInvalidFrequency
	}
}

// String returns the stored string form of the frequency.
func (f Frequency) String() string {
	switch f {
	case FrequencyDaily:
		return "daily"
	case FrequencyWeekly:
		return "weekly"
	case FrequencyBiweekly:
		return "biweekly"
	case FrequencyMonthly:
		return "monthly"
	case FrequencyQuarterly:
		return "quarterly"
	default:
		return "unspecified"
	}
}

// Template describes a recurring job configuration.
type Template struct {
	ID             string
	Frequency      Frequency
	Interval       int
	Weekdays       []time.Weekday
	StartsAt       time.Time
	EndsOn         *time.Time
	MaxOccurrences int
	SkipHolidays   bool
	Duration       time.Duration
}

// Occurrence represents a generated instance of a template.
type Occurrence struct {
	TemplateID string
	Sequence   int
	Start      time.Time
	End        time.Time
}

// HolidaySet holds calendar dates on which emission is suppressed.
type HolidaySet map[string]struct{}

// NewHolidaySet builds a set from the given dates. Only the calendar day is
// significant; the time of day is ignored.
func NewHolidaySet(loc *time.Location, dates ...time.Time) HolidaySet {
	if loc == nil {
		loc = copenhagen
	}
	set := make(HolidaySet, len(dates))
	for _, d := range dates {
		set[d.In(loc).Format("2006-01-02")] = struct{}{}
	}
	return set
}

// Contains reports whether the set holds t's calendar day.
func (h HolidaySet) Contains(t time.Time) bool {
	if len(h) == 0 {
		return false
	}
	_, ok := h[t.Format("2006-01-02")]
	return ok
}

// Engine expands job templates into occurrences.
type Engine struct {
	location *time.Location
}

// NewEngine constructs an Engine that normalizes results to the provided
// location. If loc is nil, Europe/Copenhagen is used.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = copenhagen
	}
	return &Engine{location: loc}
}

// ErrInvalidFrequency indicates the template frequency is not supported.
var ErrInvalidFrequency = errors.New("recurrence: invalid frequency")

// ErrInvalidInterval indicates the template interval is below one.
var ErrInvalidInterval = errors.New("recurrence: interval must be at least 1")

// ErrEndBeforeStart indicates the template end date precedes its start date.
var ErrEndBeforeStart = errors.New("recurrence: end date before start date")

// ErrInvalidDuration indicates the template duration is not positive.
var ErrInvalidDuration = errors.New("recurrence: duration must be positive")

// Expand produces the occurrences of a template that fall inside the
// half-open window [from, to).
//
// The engine enforces the following semantics:
//   - All timestamps are normalized to the engine's timezone.
//   - Candidate dates advance by calendar time regardless of holidays; when
//     SkipHolidays is set a holiday only suppresses emission, it never shifts
//     the rest of the sequence.
//   - MaxOccurrences caps the template's total emissions counted from its
//     start date, so re-expanding later windows never exceeds the cap.
//   - An empty weekday set under weekly frequency yields no occurrences.
//   - to <= from yields an empty result, not an error.
//
// Expanding the same template over the same window twice yields identical
// results; callers rely on this for idempotent re-materialization.
func (e *Engine) Expand(template Template, from, to time.Time, holidays HolidaySet) ([]Occurrence, error) {
	loc := e.location
	if loc == nil {
		loc = copenhagen
	}

	if err := Validate(template); err != nil {
		return nil, err
	}

	from = from.In(loc)
	to = to.In(loc)
	if !to.After(from) {
		return []Occurrence{}, nil
	}

	start := template.StartsAt.In(loc)
	var endsOn time.Time
	if template.EndsOn != nil {
		endsOn = template.EndsOn.In(loc)
	}

	weekdaySet := make(map[time.Weekday]struct{}, len(template.Weekdays))
	for _, day := range template.Weekdays {
		weekdaySet[day] = struct{}{}
	}

	step := template.Interval
	if template.Frequency == FrequencyBiweekly {
		step *= 2
	}

	occurrences := make([]Occurrence, 0)
	sequence := 0

	emit := func(candidate time.Time) bool {
		if !endsOn.IsZero() && candidate.After(endsOn) {
			return false
		}
		if !candidate.Before(to) {
			return false
		}
		if template.SkipHolidays && holidays.Contains(candidate) {
			return true
		}
		sequence++
		if template.MaxOccurrences > 0 && sequence > template.MaxOccurrences {
			return false
		}
		if !candidate.Before(from) {
			occurrences = append(occurrences, Occurrence{
				TemplateID: template.ID,
				Sequence:   sequence,
				Start:      candidate,
				End:        candidate.Add(template.Duration),
			})
		}
		return true
	}

	switch template.Frequency {
	case FrequencyDaily:
		for candidate := start; emit(candidate); {
			candidate = candidate.AddDate(0, 0, template.Interval)
		}
	case FrequencyWeekly, FrequencyBiweekly:
		if len(weekdaySet) == 0 {
			return occurrences, nil
		}
		anchor := startOfWeek(start)
		for candidate := start; ; candidate = candidate.AddDate(0, 0, 1) {
			if !endsOn.IsZero() && candidate.After(endsOn) {
				break
			}
			if !candidate.Before(to) {
				break
			}
			if _, ok := weekdaySet[candidate.Weekday()]; !ok {
				continue
			}
			if weeksBetween(anchor, startOfWeek(candidate))%step != 0 {
				continue
			}
			if !emit(candidate) {
				break
			}
		}
	case FrequencyMonthly:
		for k := 0; ; k++ {
			candidate := start.AddDate(0, k*template.Interval, 0)
			if !emit(candidate) {
				break
			}
		}
	case FrequencyQuarterly:
		for k := 0; ; k++ {
			candidate := start.AddDate(0, k*3*template.Interval, 0)
			if !emit(candidate) {
				break
			}
		}
	default:
		return nil, ErrInvalidFrequency
	}

	return occurrences, nil
}

// Validate reports configuration errors for a template without expanding it.
func Validate(template Template) error {
	if template.Frequency == FrequencyUnspecified {
		return ErrInvalidFrequency
	}
	if template.Interval < 1 {
		return ErrInvalidInterval
	}
	if template.Duration <= 0 {
		return ErrInvalidDuration
	}
	if template.EndsOn != nil && template.EndsOn.Before(template.StartsAt) {
		return ErrEndBeforeStart
	}
	return nil
}

func startOfWeek(t time.Time) time.Time {
	// Monday-start weeks; Sunday belongs to the preceding week.
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.AddDate(0, 0, -offset).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func weeksBetween(a, b time.Time) int {
	// Round to absorb the one-hour drift of DST transitions.
	days := int(math.Round(b.Sub(a).Hours() / 24))
	if days < 0 {
		days = -days
	}
	return days / 7
}
