// Package testfixtures provides deterministic clocks, identifier generators,
// fixture builders, and in-memory repository implementations shared by the
// test suites.
package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/cleaning-dispatch/internal/persistence"
)

var (
	templateCounter   uint64
	occurrenceCounter uint64
	memberCounter     uint64
)

var referenceTime = time.Date(2025, time.September, 1, 8, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// --------------------------- Template fixtures ---------------------------

// TemplateOption configures a generated job template fixture.
type TemplateOption func(*persistence.JobTemplate)

// NewTemplateFixture returns a deterministic weekly cleaning template with
// optional overrides.
func NewTemplateFixture(opts ...TemplateOption) persistence.JobTemplate {
	idx := atomic.AddUint64(&templateCounter, 1)
	template := persistence.JobTemplate{
		ID:                fmt.Sprintf("template-%03d", idx),
		CustomerID:        fmt.Sprintf("customer-%03d", idx),
		Title:             fmt.Sprintf("Kontorrengøring %03d", idx),
		JobType:           "office_cleaning",
		Frequency:         "weekly",
		Interval:          1,
		Weekdays:          []time.Weekday{time.Monday},
		StartsAt:          referenceTime,
		EstimatedDuration: 2 * time.Hour,
		RequiredSkills:    []string{"cleaning"},
		RequiredHeadcount: 1,
		Location: persistence.Location{
			Address:    "Nørrebrogade 42",
			City:       "København",
			PostalCode: "2200",
			Coordinate: persistence.Coordinate{Lat: 55.6894, Lng: 12.5528},
		},
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&template)
	}
	return template
}

// WithTemplateID overrides the generated template ID.
func WithTemplateID(id string) TemplateOption {
	return func(t *persistence.JobTemplate) {
		t.ID = id
	}
}

// WithTemplateFrequency sets the recurrence frequency and interval.
func WithTemplateFrequency(frequency string, interval int) TemplateOption {
	return func(t *persistence.JobTemplate) {
		t.Frequency = frequency
		t.Interval = interval
	}
}

// WithTemplateWeekdays sets the recurrence weekdays.
func WithTemplateWeekdays(days ...time.Weekday) TemplateOption {
	return func(t *persistence.JobTemplate) {
		t.Weekdays = append([]time.Weekday(nil), days...)
	}
}

// WithTemplateStartsAt sets the template start instant.
func WithTemplateStartsAt(at time.Time) TemplateOption {
	return func(t *persistence.JobTemplate) {
		t.StartsAt = at
	}
}

// WithTemplateEndsOn sets the optional end date.
func WithTemplateEndsOn(at time.Time) TemplateOption {
	return func(t *persistence.JobTemplate) {
		end := at
		t.EndsOn = &end
	}
}

// WithTemplateMaxOccurrences caps the template's emissions.
func WithTemplateMaxOccurrences(n int) TemplateOption {
	return func(t *persistence.JobTemplate) {
		t.MaxOccurrences = n
	}
}

// WithTemplateSkipHolidays enables holiday suppression.
func WithTemplateSkipHolidays() TemplateOption {
	return func(t *persistence.JobTemplate) {
		t.SkipHolidays = true
	}
}

// WithTemplateAutoConfirm marks materialized occurrences as confirmed.
func WithTemplateAutoConfirm() TemplateOption {
	return func(t *persistence.JobTemplate) {
		t.AutoConfirm = true
	}
}

// WithTemplateDuration sets the estimated duration.
func WithTemplateDuration(d time.Duration) TemplateOption {
	return func(t *persistence.JobTemplate) {
		t.EstimatedDuration = d
	}
}

// WithTemplateSkills sets the required skills.
func WithTemplateSkills(skills ...string) TemplateOption {
	return func(t *persistence.JobTemplate) {
		t.RequiredSkills = append([]string(nil), skills...)
	}
}

// WithTemplateHeadcount sets the required headcount.
func WithTemplateHeadcount(n int) TemplateOption {
	return func(t *persistence.JobTemplate) {
		t.RequiredHeadcount = n
	}
}

// WithTemplateLocation sets the job location.
func WithTemplateLocation(loc persistence.Location) TemplateOption {
	return func(t *persistence.JobTemplate) {
		t.Location = loc
	}
}

// -------------------------- Occurrence fixtures --------------------------

// OccurrenceOption configures a generated job occurrence fixture.
type OccurrenceOption func(*persistence.JobOccurrence)

// NewOccurrenceFixture returns a deterministic scheduled occurrence with
// optional overrides. Successive fixtures shift one hour apart so they never
// collide by accident.
func NewOccurrenceFixture(opts ...OccurrenceOption) persistence.JobOccurrence {
	idx := atomic.AddUint64(&occurrenceCounter, 1)
	scheduled := referenceTime.Add(time.Duration(idx) * time.Hour)
	occurrence := persistence.JobOccurrence{
		ID:                fmt.Sprintf("occurrence-%03d", idx),
		CustomerID:        fmt.Sprintf("customer-%03d", idx),
		Title:             fmt.Sprintf("Rengøring %03d", idx),
		JobType:           "office_cleaning",
		ScheduledAt:       scheduled,
		EstimatedDuration: 2 * time.Hour,
		Status:            persistence.JobStatusScheduled,
		RequiredSkills:    []string{"cleaning"},
		RequiredHeadcount: 1,
		Location: persistence.Location{
			Address:    "Vesterbrogade 12",
			City:       "København",
			PostalCode: "1620",
			Coordinate: persistence.Coordinate{Lat: 55.6726, Lng: 12.5557},
		},
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&occurrence)
	}
	return occurrence
}

// WithOccurrenceID overrides the generated occurrence ID.
func WithOccurrenceID(id string) OccurrenceOption {
	return func(o *persistence.JobOccurrence) {
		o.ID = id
	}
}

// WithOccurrenceTemplate links the occurrence to a template.
func WithOccurrenceTemplate(templateID string) OccurrenceOption {
	return func(o *persistence.JobOccurrence) {
		o.TemplateID = templateID
	}
}

// WithOccurrenceScheduledAt sets the scheduled instant.
func WithOccurrenceScheduledAt(at time.Time) OccurrenceOption {
	return func(o *persistence.JobOccurrence) {
		o.ScheduledAt = at
	}
}

// WithOccurrenceDuration sets the estimated duration.
func WithOccurrenceDuration(d time.Duration) OccurrenceOption {
	return func(o *persistence.JobOccurrence) {
		o.EstimatedDuration = d
	}
}

// WithOccurrenceStatus sets the lifecycle status.
func WithOccurrenceStatus(status persistence.JobStatus) OccurrenceOption {
	return func(o *persistence.JobOccurrence) {
		o.Status = status
	}
}

// WithOccurrenceSkills sets the required skills.
func WithOccurrenceSkills(skills ...string) OccurrenceOption {
	return func(o *persistence.JobOccurrence) {
		o.RequiredSkills = append([]string(nil), skills...)
	}
}

// WithOccurrenceHeadcount sets the required headcount.
func WithOccurrenceHeadcount(n int) OccurrenceOption {
	return func(o *persistence.JobOccurrence) {
		o.RequiredHeadcount = n
	}
}

// WithOccurrenceCoordinate sets the job coordinate.
func WithOccurrenceCoordinate(lat, lng float64) OccurrenceOption {
	return func(o *persistence.JobOccurrence) {
		o.Location.Coordinate = persistence.Coordinate{Lat: lat, Lng: lng}
	}
}

// WithOccurrenceUpdatedAt sets the updated timestamp.
func WithOccurrenceUpdatedAt(at time.Time) OccurrenceOption {
	return func(o *persistence.JobOccurrence) {
		o.UpdatedAt = at
	}
}

// ---------------------------- Member fixtures ----------------------------

// MemberOption configures a generated team member fixture.
type MemberOption func(*persistence.TeamMember)

// NewMemberFixture returns a deterministic team member available weekdays
// 08:00 to 16:00 with optional overrides.
func NewMemberFixture(opts ...MemberOption) persistence.TeamMember {
	idx := atomic.AddUint64(&memberCounter, 1)
	member := persistence.TeamMember{
		ID:           fmt.Sprintf("member-%03d", idx),
		Name:         fmt.Sprintf("Medarbejder %03d", idx),
		Role:         "cleaner",
		Skills:       []string{"cleaning"},
		HourlyRate:   250,
		Availability: WeekdayAvailability(8*60, 16*60),
		CreatedAt:    referenceTime,
		UpdatedAt:    referenceTime,
	}
	for _, opt := range opts {
		opt(&member)
	}
	return member
}

// WithMemberID overrides the generated member ID.
func WithMemberID(id string) MemberOption {
	return func(m *persistence.TeamMember) {
		m.ID = id
	}
}

// WithMemberSkills sets the member skills.
func WithMemberSkills(skills ...string) MemberOption {
	return func(m *persistence.TeamMember) {
		m.Skills = append([]string(nil), skills...)
	}
}

// WithMemberRate sets the hourly rate.
func WithMemberRate(rate float64) MemberOption {
	return func(m *persistence.TeamMember) {
		m.HourlyRate = rate
	}
}

// WithMemberAvailability replaces the weekly availability template.
func WithMemberAvailability(windows ...persistence.AvailabilityWindow) MemberOption {
	return func(m *persistence.TeamMember) {
		m.Availability = append([]persistence.AvailabilityWindow(nil), windows...)
	}
}

// WeekdayAvailability builds an available window on every weekday with the
// given start and end minutes since midnight.
func WeekdayAvailability(start, end int) []persistence.AvailabilityWindow {
	days := []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	windows := make([]persistence.AvailabilityWindow, 0, len(days))
	for _, day := range days {
		windows = append(windows, persistence.AvailabilityWindow{
			Weekday:   day,
			Start:     start,
			End:       end,
			Available: true,
		})
	}
	return windows
}
