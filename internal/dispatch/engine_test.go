package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/example/cleaning-dispatch/internal/availability"
	"github.com/example/cleaning-dispatch/internal/persistence"
)

var testDate = time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return testDate.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// fakeResolver derives free windows from a configured day span minus the
// assignments recorded by the fake committer, so commits made earlier in a
// run are visible to later availability checks.
type fakeResolver struct {
	spans     map[string]availability.Window
	committer *fakeCommitter
}

func (r *fakeResolver) FreeWindows(_ context.Context, memberID string, _ time.Time) ([]availability.Window, error) {
	span, ok := r.spans[memberID]
	if !ok {
		return nil, nil
	}
	windows := []availability.Window{span}
	for _, a := range r.committer.committed {
		if a.MemberID != memberID {
			continue
		}
		next := make([]availability.Window, 0, len(windows)+1)
		busy := availability.Window{Start: a.Start, End: a.End}
		for _, w := range windows {
			if !w.Overlaps(busy) {
				next = append(next, w)
				continue
			}
			if busy.Start.After(w.Start) {
				next = append(next, availability.Window{Start: w.Start, End: busy.Start})
			}
			if busy.End.Before(w.End) {
				next = append(next, availability.Window{Start: busy.End, End: w.End})
			}
		}
		windows = next
	}
	return windows, nil
}

func (r *fakeResolver) AssignedMinutes(_ context.Context, memberID string, _ time.Time) (int, error) {
	minutes := 0
	for _, a := range r.committer.committed {
		if a.MemberID == memberID {
			minutes += int(a.End.Sub(a.Start).Minutes())
		}
	}
	return minutes, nil
}

type fakeCommitter struct {
	committed []persistence.Assignment
	// conflictsLeft rejects that many commits with ErrAssignmentConflict
	// before accepting, simulating a concurrent run winning the race.
	conflictsLeft int
	calls         int
}

func (c *fakeCommitter) CommitAssignments(_ context.Context, assignments []persistence.Assignment) error {
	c.calls++
	if c.conflictsLeft > 0 {
		c.conflictsLeft--
		return persistence.ErrAssignmentConflict
	}
	for _, record := range assignments {
		busy := availability.Window{Start: record.Start, End: record.End}
		for _, existing := range c.committed {
			if existing.MemberID != record.MemberID {
				continue
			}
			if busy.Overlaps(availability.Window{Start: existing.Start, End: existing.End}) {
				return persistence.ErrAssignmentConflict
			}
		}
	}
	c.committed = append(c.committed, assignments...)
	return nil
}

func newHarness(spans map[string]availability.Window) (*Engine, *fakeCommitter) {
	committer := &fakeCommitter{}
	resolver := &fakeResolver{spans: spans, committer: committer}
	counter := 0
	idGen := func() string {
		counter++
		return "assignment-" + string(rune('a'+counter-1))
	}
	engine := NewEngine(resolver, committer, idGen, func() time.Time { return testDate }, nil)
	return engine, committer
}

func fullDay(memberID string) map[string]availability.Window {
	return map[string]availability.Window{
		memberID: {Start: at(8, 0), End: at(16, 0)},
	}
}

func TestDispatchAssignsAtPreferredStart(t *testing.T) {
	t.Parallel()

	engine, committer := newHarness(fullDay("member-a"))
	jobs := []Job{{
		ID: "job-1", PreferredStart: at(9, 0), Duration: 2 * time.Hour,
		RequiredSkills: []string{"cleaning"},
	}}
	pool := []Member{{ID: "member-a", Skills: []string{"cleaning"}, HourlyRate: 250}}

	results, err := engine.Dispatch(context.Background(), testDate, jobs, pool)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(results) != 1 || !results[0].Assigned() {
		t.Fatalf("expected one assigned result, got %+v", results)
	}
	if !results[0].Start.Equal(at(9, 0)) || !results[0].End.Equal(at(11, 0)) {
		t.Fatalf("unexpected span %v to %v", results[0].Start, results[0].End)
	}
	if len(committer.committed) != 1 {
		t.Fatalf("expected one committed assignment, got %d", len(committer.committed))
	}
}

func TestDispatchNeverDoubleBooks(t *testing.T) {
	t.Parallel()

	engine, committer := newHarness(fullDay("member-a"))
	jobs := []Job{
		{ID: "job-1", PreferredStart: at(9, 0), Duration: 2 * time.Hour},
		{ID: "job-2", PreferredStart: at(9, 0), Duration: 2 * time.Hour},
	}
	pool := []Member{{ID: "member-a"}}

	results, err := engine.Dispatch(context.Background(), testDate, jobs, pool)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !results[0].Assigned() || !results[1].Assigned() {
		t.Fatalf("expected both jobs assigned, got %+v", results)
	}

	// The second job must have been pushed past the first.
	if results[1].Start.Before(results[0].End) {
		t.Fatalf("second job at %v overlaps first ending %v", results[1].Start, results[0].End)
	}
	for i, a := range committer.committed {
		for _, b := range committer.committed[i+1:] {
			if a.MemberID != b.MemberID {
				continue
			}
			wa := availability.Window{Start: a.Start, End: a.End}
			if wa.Overlaps(availability.Window{Start: b.Start, End: b.End}) {
				t.Fatalf("overlapping assignments %+v and %+v", a, b)
			}
		}
	}
}

func TestDispatchReasonCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		job  Job
		pool []Member
		want ReasonCode
	}{
		{
			name: "no member has the skills",
			job:  Job{ID: "job-1", PreferredStart: at(9, 0), Duration: time.Hour, RequiredSkills: []string{"windows"}},
			pool: []Member{{ID: "member-a", Skills: []string{"cleaning"}}},
			want: ReasonSkillMismatch,
		},
		{
			name: "capable members below headcount",
			job:  Job{ID: "job-1", PreferredStart: at(9, 0), Duration: time.Hour, RequiredSkills: []string{"cleaning"}, Headcount: 2},
			pool: []Member{{ID: "member-a", Skills: []string{"cleaning"}}},
			want: ReasonNoCapableTeam,
		},
		{
			name: "no free span long enough",
			job:  Job{ID: "job-1", PreferredStart: at(9, 0), Duration: 10 * time.Hour},
			pool: []Member{{ID: "member-a"}},
			want: ReasonNoAvailableWindow,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			engine, _ := newHarness(fullDay("member-a"))
			results, err := engine.Dispatch(context.Background(), testDate, []Job{tc.job}, tc.pool)
			if err != nil {
				t.Fatalf("dispatch: %v", err)
			}
			if results[0].Assigned() {
				t.Fatalf("expected unassigned result, got %+v", results[0])
			}
			if results[0].Reason != tc.want {
				t.Fatalf("expected reason %s, got %s", tc.want, results[0].Reason)
			}
		})
	}
}

func TestDispatchBalancesLoad(t *testing.T) {
	t.Parallel()

	spans := map[string]availability.Window{
		"member-a": {Start: at(8, 0), End: at(16, 0)},
		"member-b": {Start: at(8, 0), End: at(16, 0)},
	}
	engine, committer := newHarness(spans)
	pool := []Member{
		{ID: "member-a", HourlyRate: 250},
		{ID: "member-b", HourlyRate: 250},
	}
	jobs := []Job{
		{ID: "job-1", PreferredStart: at(9, 0), Duration: 2 * time.Hour},
		{ID: "job-2", PreferredStart: at(12, 0), Duration: 2 * time.Hour},
	}

	results, err := engine.Dispatch(context.Background(), testDate, jobs, pool)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !results[0].Assigned() || !results[1].Assigned() {
		t.Fatalf("expected both jobs assigned, got %+v", results)
	}

	// Equal load and rate falls back to member id for the first job; the
	// second job then goes to the idle member.
	if got := results[0].MemberIDs[0]; got != "member-a" {
		t.Fatalf("first job went to %s", got)
	}
	if got := results[1].MemberIDs[0]; got != "member-b" {
		t.Fatalf("second job went to %s, want the idle member", got)
	}
	if len(committer.committed) != 2 {
		t.Fatalf("expected two assignments, got %d", len(committer.committed))
	}
}

func TestDispatchPrefersCheaperMember(t *testing.T) {
	t.Parallel()

	spans := map[string]availability.Window{
		"member-a": {Start: at(8, 0), End: at(16, 0)},
		"member-b": {Start: at(8, 0), End: at(16, 0)},
	}
	engine, _ := newHarness(spans)
	pool := []Member{
		{ID: "member-a", HourlyRate: 300},
		{ID: "member-b", HourlyRate: 250},
	}
	jobs := []Job{{ID: "job-1", PreferredStart: at(9, 0), Duration: time.Hour}}

	results, err := engine.Dispatch(context.Background(), testDate, jobs, pool)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := results[0].MemberIDs[0]; got != "member-b" {
		t.Fatalf("expected the cheaper member, got %s", got)
	}
}

func TestDispatchMultiMemberCommonStart(t *testing.T) {
	t.Parallel()

	// member-b only becomes free at 12:00, so the crew of two must start
	// then even though member-a is free all morning.
	spans := map[string]availability.Window{
		"member-a": {Start: at(8, 0), End: at(16, 0)},
		"member-b": {Start: at(12, 0), End: at(16, 0)},
	}
	engine, committer := newHarness(spans)
	pool := []Member{{ID: "member-a"}, {ID: "member-b"}}
	jobs := []Job{{ID: "job-1", PreferredStart: at(9, 0), Duration: 2 * time.Hour, Headcount: 2}}

	results, err := engine.Dispatch(context.Background(), testDate, jobs, pool)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !results[0].Assigned() {
		t.Fatalf("expected assignment, got reason %s", results[0].Reason)
	}
	if !results[0].Start.Equal(at(12, 0)) {
		t.Fatalf("expected common start 12:00, got %v", results[0].Start)
	}
	if len(results[0].MemberIDs) != 2 {
		t.Fatalf("expected crew of two, got %v", results[0].MemberIDs)
	}
	if len(committer.committed) != 2 {
		t.Fatalf("expected two assignment records, got %d", len(committer.committed))
	}
	for _, a := range committer.committed {
		if !a.Start.Equal(at(12, 0)) || !a.End.Equal(at(14, 0)) {
			t.Fatalf("crew records must share the span, got %+v", a)
		}
	}
}

func TestDispatchRetriesOnceAfterConflict(t *testing.T) {
	t.Parallel()

	engine, committer := newHarness(fullDay("member-a"))
	committer.conflictsLeft = 1
	jobs := []Job{{ID: "job-1", PreferredStart: at(9, 0), Duration: time.Hour}}
	pool := []Member{{ID: "member-a"}}

	results, err := engine.Dispatch(context.Background(), testDate, jobs, pool)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !results[0].Assigned() {
		t.Fatalf("expected assignment after retry, got %+v", results[0])
	}
	if !results[0].Retried {
		t.Fatal("expected the result to be marked retried")
	}
	if committer.calls != 2 {
		t.Fatalf("expected two commit attempts, got %d", committer.calls)
	}
}

func TestDispatchGivesUpAfterSecondConflict(t *testing.T) {
	t.Parallel()

	engine, committer := newHarness(fullDay("member-a"))
	committer.conflictsLeft = 2
	jobs := []Job{{ID: "job-1", PreferredStart: at(9, 0), Duration: time.Hour}}
	pool := []Member{{ID: "member-a"}}

	results, err := engine.Dispatch(context.Background(), testDate, jobs, pool)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if results[0].Assigned() {
		t.Fatalf("expected unassigned result, got %+v", results[0])
	}
	if results[0].Reason != ReasonNoAvailableWindow {
		t.Fatalf("expected reason %s, got %s", ReasonNoAvailableWindow, results[0].Reason)
	}
	if committer.calls != 2 {
		t.Fatalf("expected exactly two commit attempts, got %d", committer.calls)
	}
}

func TestDispatchProcessesJobsInStartOrder(t *testing.T) {
	t.Parallel()

	engine, _ := newHarness(fullDay("member-a"))
	jobs := []Job{
		{ID: "job-b", PreferredStart: at(13, 0), Duration: time.Hour},
		{ID: "job-a", PreferredStart: at(9, 0), Duration: time.Hour},
	}
	pool := []Member{{ID: "member-a"}}

	results, err := engine.Dispatch(context.Background(), testDate, jobs, pool)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if results[0].JobID != "job-a" || results[1].JobID != "job-b" {
		t.Fatalf("unexpected processing order: %s, %s", results[0].JobID, results[1].JobID)
	}
}
