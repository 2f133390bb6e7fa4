package persistence

import (
	"context"
	"time"
)

// DateRange bounds a query to [From, To).
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the half-open range.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && t.Before(r.To)
}

// TemplateRepository stores recurring job templates.
type TemplateRepository interface {
	CreateTemplate(ctx context.Context, template JobTemplate) error
	GetTemplate(ctx context.Context, id string) (JobTemplate, error)
	ListTemplates(ctx context.Context) ([]JobTemplate, error)
	UpdateTemplate(ctx context.Context, template JobTemplate) error
	DeleteTemplate(ctx context.Context, id string) error
}

// OccurrenceRepository stores concrete job occurrences.
type OccurrenceRepository interface {
	CreateOccurrence(ctx context.Context, occurrence JobOccurrence) error
	GetOccurrence(ctx context.Context, id string) (JobOccurrence, error)
	ListOccurrences(ctx context.Context, dateRange DateRange) ([]JobOccurrence, error)
	ListOccurrencesForTemplate(ctx context.Context, templateID string, dateRange DateRange) ([]JobOccurrence, error)
	UpdateOccurrence(ctx context.Context, occurrence JobOccurrence) error
	UpdateOccurrenceStatus(ctx context.Context, id string, status JobStatus, updatedAt time.Time) error
	DeleteOccurrence(ctx context.Context, id string) error
}

// TeamRepository stores team members and their weekly availability templates.
type TeamRepository interface {
	CreateMember(ctx context.Context, member TeamMember) error
	GetMember(ctx context.Context, id string) (TeamMember, error)
	ListMembers(ctx context.Context) ([]TeamMember, error)
	UpdateMember(ctx context.Context, member TeamMember) error
	DeleteMember(ctx context.Context, id string) error
}

// AssignmentRepository stores dispatch decisions. CommitAssignments must be
// atomic across the supplied records and must reject the whole batch with
// ErrAssignmentConflict when any record overlaps an existing assignment for
// the same member on the same date, so that two dispatch runs racing on one
// member cannot both win.
type AssignmentRepository interface {
	CommitAssignments(ctx context.Context, assignments []Assignment) error
	ListAssignmentsForMember(ctx context.Context, memberID string, date time.Time) ([]Assignment, error)
	ListAssignments(ctx context.Context, date time.Time) ([]Assignment, error)
	DeleteAssignmentsForOccurrence(ctx context.Context, occurrenceID string) error
}

// LinkRepository stores calendar links keyed by occurrence id. SaveLink must
// reject a link whose event id is already claimed by another occurrence with
// ErrDuplicate.
type LinkRepository interface {
	SaveLink(ctx context.Context, link CalendarLink) error
	GetLinkByOccurrence(ctx context.Context, occurrenceID string) (CalendarLink, error)
	ListLinks(ctx context.Context, dateRange DateRange) ([]CalendarLink, error)
	DeleteLink(ctx context.Context, occurrenceID string) error
}
