// Package dispatch assigns job occurrences to team members for a single
// date, honoring skill requirements, resolved availability, and the
// no-double-booking invariant.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/example/cleaning-dispatch/internal/availability"
	"github.com/example/cleaning-dispatch/internal/persistence"
)

// ReasonCode explains why an occurrence was left unassigned.
type ReasonCode string

const (
	// ReasonSkillMismatch means no member possesses all required skills.
	ReasonSkillMismatch ReasonCode = "skill_mismatch"
	// ReasonNoCapableTeam means fewer capable members exist than the job's
	// required headcount, so it can never be filled atomically.
	ReasonNoCapableTeam ReasonCode = "no_capable_team"
	// ReasonNoAvailableWindow means capable members exist but no common free
	// span of sufficient length starts at or after the preferred time.
	ReasonNoAvailableWindow ReasonCode = "no_available_window"
)

// Job is an occurrence skeleton submitted for dispatch.
type Job struct {
	ID             string
	PreferredStart time.Time
	Duration       time.Duration
	RequiredSkills []string
	Headcount      int
}

// Member is a dispatchable team member.
type Member struct {
	ID         string
	Skills     []string
	HourlyRate float64
}

// Result records the dispatch outcome of one job. Exactly one of MemberIDs
// (assigned) or Reason (unassigned) is populated; partial assignment is
// never a valid end state.
type Result struct {
	JobID     string
	MemberIDs []string
	Start     time.Time
	End       time.Time
	Reason    ReasonCode
	Retried   bool
}

// Assigned reports whether the job received a full assignment.
func (r Result) Assigned() bool {
	return len(r.MemberIDs) > 0
}

// AvailabilityResolver yields a member's free windows on a date with all
// committed assignments already subtracted, plus the total minutes already
// assigned that day. Within one dispatch run the resolver must observe
// assignments committed earlier in the same run.
type AvailabilityResolver interface {
	FreeWindows(ctx context.Context, memberID string, date time.Time) ([]availability.Window, error)
	AssignedMinutes(ctx context.Context, memberID string, date time.Time) (int, error)
}

// AssignmentCommitter durably records an assignment decision. The commit is
// atomic across the supplied records and fails with
// persistence.ErrAssignmentConflict when a concurrent run already claimed an
// overlapping span for any of the members.
type AssignmentCommitter interface {
	CommitAssignments(ctx context.Context, assignments []persistence.Assignment) error
}

// Engine performs batch dispatch for one date.
type Engine struct {
	resolver    AvailabilityResolver
	committer   AssignmentCommitter
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewEngine wires the dispatch dependencies.
func NewEngine(resolver AvailabilityResolver, committer AssignmentCommitter, idGenerator func() string, now func() time.Time, logger *slog.Logger) *Engine {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		resolver:    resolver,
		committer:   committer,
		idGenerator: idGenerator,
		now:         now,
		logger:      logger,
	}
}

// Dispatch assigns the batch of jobs to members for one date. Jobs are
// processed in non-decreasing preferred-start order (ties broken by job id)
// and each commit is visible to the availability checks of later jobs, which
// together guarantee no double-booking within the run. A commit lost to a
// concurrent run is retried once against freshly resolved availability
// before the job is reported unassigned.
//
// The returned slice covers every input job in processing order.
func (e *Engine) Dispatch(ctx context.Context, date time.Time, jobs []Job, pool []Member) ([]Result, error) {
	ordered := make([]Job, len(jobs))
	copy(ordered, jobs)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].PreferredStart.Equal(ordered[j].PreferredStart) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].PreferredStart.Before(ordered[j].PreferredStart)
	})

	results := make([]Result, 0, len(ordered))
	for _, job := range ordered {
		result, err := e.dispatchOne(ctx, date, job, pool, false)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (e *Engine) dispatchOne(ctx context.Context, date time.Time, job Job, pool []Member, retried bool) (Result, error) {
	headcount := job.Headcount
	if headcount < 1 {
		headcount = 1
	}

	capable := capableMembers(pool, job.RequiredSkills)
	if len(capable) == 0 {
		return Result{JobID: job.ID, Reason: ReasonSkillMismatch, Retried: retried}, nil
	}
	if len(capable) < headcount {
		return Result{JobID: job.ID, Reason: ReasonNoCapableTeam, Retried: retried}, nil
	}

	candidates := make([]candidate, 0, len(capable))
	for _, member := range capable {
		windows, err := e.resolver.FreeWindows(ctx, member.ID, date)
		if err != nil {
			return Result{}, err
		}
		load, err := e.resolver.AssignedMinutes(ctx, member.ID, date)
		if err != nil {
			return Result{}, err
		}
		candidates = append(candidates, candidate{member: member, windows: windows, load: load})
	}

	start, chosen := selectCrew(candidates, job.PreferredStart, job.Duration, headcount)
	if len(chosen) < headcount {
		return Result{JobID: job.ID, Reason: ReasonNoAvailableWindow, Retried: retried}, nil
	}

	end := start.Add(job.Duration)
	assignments := make([]persistence.Assignment, 0, headcount)
	memberIDs := make([]string, 0, headcount)
	createdAt := e.now()
	for _, member := range chosen {
		memberIDs = append(memberIDs, member.ID)
		assignments = append(assignments, persistence.Assignment{
			ID:           e.idGenerator(),
			OccurrenceID: job.ID,
			MemberID:     member.ID,
			Date:         date,
			Start:        start,
			End:          end,
			CreatedAt:    createdAt,
		})
	}

	if err := e.committer.CommitAssignments(ctx, assignments); err != nil {
		if errors.Is(err, persistence.ErrAssignmentConflict) {
			if retried {
				e.logger.Warn("assignment conflict persisted after retry", "job_id", job.ID)
				return Result{JobID: job.ID, Reason: ReasonNoAvailableWindow, Retried: true}, nil
			}
			e.logger.Info("assignment conflict, retrying with fresh availability", "job_id", job.ID)
			return e.dispatchOne(ctx, date, job, pool, true)
		}
		return Result{}, err
	}

	return Result{
		JobID:     job.ID,
		MemberIDs: memberIDs,
		Start:     start,
		End:       end,
		Retried:   retried,
	}, nil
}

type candidate struct {
	member  Member
	windows []availability.Window
	load    int
}

// selectCrew finds the earliest start at or after preferred where at least
// headcount candidates can host the full span, then picks the crew by least
// already-assigned minutes, lowest hourly rate, and member id.
func selectCrew(candidates []candidate, preferred time.Time, duration time.Duration, headcount int) (time.Time, []Member) {
	starts := candidateStarts(candidates, preferred)
	for _, start := range starts {
		fitting := make([]candidate, 0, len(candidates))
		for _, c := range candidates {
			if availability.FitsAt(c.windows, start, duration) {
				fitting = append(fitting, c)
			}
		}
		if len(fitting) < headcount {
			continue
		}
		sort.SliceStable(fitting, func(i, j int) bool {
			if fitting[i].load != fitting[j].load {
				return fitting[i].load < fitting[j].load
			}
			if fitting[i].member.HourlyRate != fitting[j].member.HourlyRate {
				return fitting[i].member.HourlyRate < fitting[j].member.HourlyRate
			}
			return fitting[i].member.ID < fitting[j].member.ID
		})
		crew := make([]Member, 0, headcount)
		for _, c := range fitting[:headcount] {
			crew = append(crew, c.member)
		}
		return start, crew
	}
	return time.Time{}, nil
}

// candidateStarts returns the sorted distinct starts worth probing: the
// preferred time plus every window start that is not before it.
func candidateStarts(candidates []candidate, preferred time.Time) []time.Time {
	seen := map[time.Time]struct{}{preferred: {}}
	starts := []time.Time{preferred}
	for _, c := range candidates {
		for _, w := range c.windows {
			s := w.Start
			if s.Before(preferred) {
				continue
			}
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			starts = append(starts, s)
		}
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	return starts
}

func capableMembers(pool []Member, required []string) []Member {
	capable := make([]Member, 0, len(pool))
	for _, member := range pool {
		if hasAllSkills(member.Skills, required) {
			capable = append(capable, member)
		}
	}
	return capable
}

func hasAllSkills(skills, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(skills))
	for _, s := range skills {
		set[s] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}
