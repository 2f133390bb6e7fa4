package application

import (
	"context"
	"time"

	"github.com/example/cleaning-dispatch/internal/availability"
	"github.com/example/cleaning-dispatch/internal/persistence"
)

// repoResolver implements dispatch.AvailabilityResolver on top of the team
// and assignment repositories. Because it re-reads the assignment table on
// every call, assignments committed earlier in a dispatch run are reflected
// in later availability checks of the same run.
type repoResolver struct {
	teams       persistence.TeamRepository
	assignments persistence.AssignmentRepository
}

func newRepoResolver(teams persistence.TeamRepository, assignments persistence.AssignmentRepository) *repoResolver {
	return &repoResolver{teams: teams, assignments: assignments}
}

// FreeWindows resolves a member's free windows on the date.
func (r *repoResolver) FreeWindows(ctx context.Context, memberID string, date time.Time) ([]availability.Window, error) {
	member, err := r.teams.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	booked, err := r.busyWindows(ctx, memberID, date)
	if err != nil {
		return nil, err
	}
	return availability.Resolve(templateWindows(member.Availability), date, booked), nil
}

// AssignedMinutes totals the member's booked minutes on the date.
func (r *repoResolver) AssignedMinutes(ctx context.Context, memberID string, date time.Time) (int, error) {
	assignments, err := r.assignments.ListAssignmentsForMember(ctx, memberID, date)
	if err != nil {
		return 0, err
	}
	minutes := 0
	for _, a := range assignments {
		minutes += int(a.End.Sub(a.Start) / time.Minute)
	}
	return minutes, nil
}

func (r *repoResolver) busyWindows(ctx context.Context, memberID string, date time.Time) ([]availability.Window, error) {
	assignments, err := r.assignments.ListAssignmentsForMember(ctx, memberID, date)
	if err != nil {
		return nil, err
	}
	busy := make([]availability.Window, 0, len(assignments))
	for _, a := range assignments {
		busy = append(busy, availability.Window{Start: a.Start, End: a.End})
	}
	return busy, nil
}

func templateWindows(windows []persistence.AvailabilityWindow) []availability.TemplateWindow {
	out := make([]availability.TemplateWindow, 0, len(windows))
	for _, w := range windows {
		out = append(out, availability.TemplateWindow{
			Weekday:   w.Weekday,
			Start:     w.Start,
			End:       w.End,
			Available: w.Available,
		})
	}
	return out
}
