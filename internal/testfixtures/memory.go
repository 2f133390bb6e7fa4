package testfixtures

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/cleaning-dispatch/internal/persistence"
)

// MemoryStore is an in-memory implementation of every persistence repository,
// sharing the locking and conflict semantics of the SQLite store so service
// tests never need a database file.
type MemoryStore struct {
	mu          sync.Mutex
	templates   map[string]persistence.JobTemplate
	occurrences map[string]persistence.JobOccurrence
	members     map[string]persistence.TeamMember
	assignments map[string]persistence.Assignment
	links       map[string]persistence.CalendarLink
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		templates:   make(map[string]persistence.JobTemplate),
		occurrences: make(map[string]persistence.JobOccurrence),
		members:     make(map[string]persistence.TeamMember),
		assignments: make(map[string]persistence.Assignment),
		links:       make(map[string]persistence.CalendarLink),
	}
}

// Seed loads fixtures into the store without validation.
func (s *MemoryStore) Seed(templates []persistence.JobTemplate, occurrences []persistence.JobOccurrence, members []persistence.TeamMember) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range templates {
		s.templates[t.ID] = t
	}
	for _, o := range occurrences {
		s.occurrences[o.ID] = o
	}
	for _, m := range members {
		s.members[m.ID] = m
	}
}

// ------------------------------- Templates -------------------------------

func (s *MemoryStore) CreateTemplate(_ context.Context, template persistence.JobTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[template.ID]; ok {
		return persistence.ErrDuplicate
	}
	s.templates[template.ID] = template
	return nil
}

func (s *MemoryStore) GetTemplate(_ context.Context, id string) (persistence.JobTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	template, ok := s.templates[id]
	if !ok {
		return persistence.JobTemplate{}, persistence.ErrNotFound
	}
	return template, nil
}

func (s *MemoryStore) ListTemplates(_ context.Context) ([]persistence.JobTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	templates := make([]persistence.JobTemplate, 0, len(s.templates))
	for _, t := range s.templates {
		templates = append(templates, t)
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })
	return templates, nil
}

func (s *MemoryStore) UpdateTemplate(_ context.Context, template persistence.JobTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[template.ID]; !ok {
		return persistence.ErrNotFound
	}
	s.templates[template.ID] = template
	return nil
}

func (s *MemoryStore) DeleteTemplate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.templates, id)
	return nil
}

// ------------------------------ Occurrences ------------------------------

func (s *MemoryStore) CreateOccurrence(_ context.Context, occurrence persistence.JobOccurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.occurrences[occurrence.ID]; ok {
		return persistence.ErrDuplicate
	}
	s.occurrences[occurrence.ID] = occurrence
	return nil
}

func (s *MemoryStore) GetOccurrence(_ context.Context, id string) (persistence.JobOccurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	occurrence, ok := s.occurrences[id]
	if !ok {
		return persistence.JobOccurrence{}, persistence.ErrNotFound
	}
	s.fillMembersLocked(&occurrence)
	return occurrence, nil
}

func (s *MemoryStore) ListOccurrences(_ context.Context, dateRange persistence.DateRange) ([]persistence.JobOccurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	occurrences := make([]persistence.JobOccurrence, 0)
	for _, o := range s.occurrences {
		if dateRange.Contains(o.ScheduledAt) {
			s.fillMembersLocked(&o)
			occurrences = append(occurrences, o)
		}
	}
	sortOccurrences(occurrences)
	return occurrences, nil
}

func (s *MemoryStore) ListOccurrencesForTemplate(_ context.Context, templateID string, dateRange persistence.DateRange) ([]persistence.JobOccurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	occurrences := make([]persistence.JobOccurrence, 0)
	for _, o := range s.occurrences {
		if o.TemplateID == templateID && dateRange.Contains(o.ScheduledAt) {
			s.fillMembersLocked(&o)
			occurrences = append(occurrences, o)
		}
	}
	sortOccurrences(occurrences)
	return occurrences, nil
}

func (s *MemoryStore) UpdateOccurrence(_ context.Context, occurrence persistence.JobOccurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.occurrences[occurrence.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	if persistence.ScheduleFrozen(existing.Status) && !existing.ScheduledAt.Equal(occurrence.ScheduledAt) {
		return persistence.ErrImmutableOccurrence
	}
	s.occurrences[occurrence.ID] = occurrence
	return nil
}

func (s *MemoryStore) UpdateOccurrenceStatus(_ context.Context, id string, status persistence.JobStatus, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	occurrence, ok := s.occurrences[id]
	if !ok {
		return persistence.ErrNotFound
	}
	occurrence.Status = status
	occurrence.UpdatedAt = updatedAt
	s.occurrences[id] = occurrence
	return nil
}

func (s *MemoryStore) DeleteOccurrence(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.occurrences[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.occurrences, id)
	return nil
}

// -------------------------------- Members --------------------------------

func (s *MemoryStore) CreateMember(_ context.Context, member persistence.TeamMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[member.ID]; ok {
		return persistence.ErrDuplicate
	}
	s.members[member.ID] = member
	return nil
}

func (s *MemoryStore) GetMember(_ context.Context, id string) (persistence.TeamMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	member, ok := s.members[id]
	if !ok {
		return persistence.TeamMember{}, persistence.ErrNotFound
	}
	return member, nil
}

func (s *MemoryStore) ListMembers(_ context.Context) ([]persistence.TeamMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := make([]persistence.TeamMember, 0, len(s.members))
	for _, m := range s.members {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members, nil
}

func (s *MemoryStore) UpdateMember(_ context.Context, member persistence.TeamMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[member.ID]; !ok {
		return persistence.ErrNotFound
	}
	s.members[member.ID] = member
	return nil
}

func (s *MemoryStore) DeleteMember(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.members, id)
	return nil
}

// ------------------------------ Assignments ------------------------------

// CommitAssignments mirrors the SQLite contract: the whole batch is rejected
// with ErrAssignmentConflict when any record overlaps an existing assignment
// for the same member on the same date.
func (s *MemoryStore) CommitAssignments(_ context.Context, assignments []persistence.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range assignments {
		for _, existing := range s.assignments {
			if existing.MemberID != record.MemberID {
				continue
			}
			if !sameDate(existing.Date, record.Date) {
				continue
			}
			if existing.Start.Before(record.End) && existing.End.After(record.Start) {
				return persistence.ErrAssignmentConflict
			}
		}
	}
	for _, record := range assignments {
		s.assignments[record.ID] = record
	}
	return nil
}

func (s *MemoryStore) ListAssignmentsForMember(_ context.Context, memberID string, date time.Time) ([]persistence.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	assignments := make([]persistence.Assignment, 0)
	for _, a := range s.assignments {
		if a.MemberID == memberID && sameDate(a.Date, date) {
			assignments = append(assignments, a)
		}
	}
	sortAssignments(assignments)
	return assignments, nil
}

func (s *MemoryStore) ListAssignments(_ context.Context, date time.Time) ([]persistence.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	assignments := make([]persistence.Assignment, 0)
	for _, a := range s.assignments {
		if sameDate(a.Date, date) {
			assignments = append(assignments, a)
		}
	}
	sortAssignments(assignments)
	return assignments, nil
}

func (s *MemoryStore) DeleteAssignmentsForOccurrence(_ context.Context, occurrenceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range s.assignments {
		if a.OccurrenceID == occurrenceID {
			delete(s.assignments, id)
		}
	}
	return nil
}

// --------------------------------- Links ---------------------------------

func (s *MemoryStore) SaveLink(_ context.Context, link persistence.CalendarLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.links {
		if existing.EventID == link.EventID && existing.OccurrenceID != link.OccurrenceID {
			return persistence.ErrDuplicate
		}
	}
	s.links[link.OccurrenceID] = link
	return nil
}

func (s *MemoryStore) GetLinkByOccurrence(_ context.Context, occurrenceID string) (persistence.CalendarLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[occurrenceID]
	if !ok {
		return persistence.CalendarLink{}, persistence.ErrNotFound
	}
	return link, nil
}

func (s *MemoryStore) ListLinks(_ context.Context, dateRange persistence.DateRange) ([]persistence.CalendarLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	links := make([]persistence.CalendarLink, 0)
	for occurrenceID, link := range s.links {
		occurrence, ok := s.occurrences[occurrenceID]
		if !ok || !dateRange.Contains(occurrence.ScheduledAt) {
			continue
		}
		links = append(links, link)
	}
	sort.Slice(links, func(i, j int) bool { return links[i].OccurrenceID < links[j].OccurrenceID })
	return links, nil
}

func (s *MemoryStore) DeleteLink(_ context.Context, occurrenceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, occurrenceID)
	return nil
}

// -------------------------------- Helpers --------------------------------

func (s *MemoryStore) fillMembersLocked(occurrence *persistence.JobOccurrence) {
	ids := make([]string, 0)
	for _, a := range s.assignments {
		if a.OccurrenceID == occurrence.ID {
			ids = append(ids, a.MemberID)
		}
	}
	if len(ids) == 0 {
		return
	}
	sort.Strings(ids)
	occurrence.AssignedMemberIDs = ids
}

func sameDate(a, b time.Time) bool {
	return a.Format("2006-01-02") == b.Format("2006-01-02")
}

func sortOccurrences(occurrences []persistence.JobOccurrence) {
	sort.Slice(occurrences, func(i, j int) bool {
		if occurrences[i].ScheduledAt.Equal(occurrences[j].ScheduledAt) {
			return occurrences[i].ID < occurrences[j].ID
		}
		return occurrences[i].ScheduledAt.Before(occurrences[j].ScheduledAt)
	})
}

func sortAssignments(assignments []persistence.Assignment) {
	sort.Slice(assignments, func(i, j int) bool {
		if assignments[i].Start.Equal(assignments[j].Start) {
			return assignments[i].ID < assignments[j].ID
		}
		return assignments[i].Start.Before(assignments[j].Start)
	})
}
