package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/cleaning-dispatch/internal/dispatch"
	"github.com/example/cleaning-dispatch/internal/persistence"
	"github.com/example/cleaning-dispatch/internal/recurrence"
	"github.com/example/cleaning-dispatch/internal/route"
)

// SchedulingService orchestrates recurrence materialization, dispatch, and
// route building against the persistence layer.
type SchedulingService struct {
	templates   persistence.TemplateRepository
	occurrences persistence.OccurrenceRepository
	teams       persistence.TeamRepository
	assignments persistence.AssignmentRepository
	expander    *recurrence.Engine
	routeParams route.Params
	location    *time.Location
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewSchedulingService wires the scheduling dependencies.
func NewSchedulingService(
	templates persistence.TemplateRepository,
	occurrences persistence.OccurrenceRepository,
	teams persistence.TeamRepository,
	assignments persistence.AssignmentRepository,
	routeParams route.Params,
	location *time.Location,
	idGenerator func() string,
	now func() time.Time,
	logger *slog.Logger,
) *SchedulingService {
	if location == nil {
		location = time.UTC
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SchedulingService{
		templates:   templates,
		occurrences: occurrences,
		teams:       teams,
		assignments: assignments,
		expander:    recurrence.NewEngine(location),
		routeParams: routeParams,
		location:    location,
		idGenerator: idGenerator,
		now:         now,
		logger:      logger,
	}
}

// CreateTemplate validates and persists a recurring job template.
func (s *SchedulingService) CreateTemplate(ctx context.Context, template persistence.JobTemplate) (persistence.JobTemplate, error) {
	log := serviceLogger(ctx, s.logger, "scheduling", "create_template")

	vErr := &ValidationError{}
	if template.Title == "" {
		vErr.add("title", "title is required")
	}
	rule, err := templateRule(template)
	if err != nil {
		vErr.add(ruleField(err), err.Error())
	} else if err := recurrence.Validate(rule); err != nil {
		vErr.add(ruleField(err), err.Error())
	}
	if template.RequiredHeadcount < 1 {
		template.RequiredHeadcount = 1
	}
	if vErr.HasErrors() {
		log.Info("template rejected", "error_kind", "validation")
		return persistence.JobTemplate{}, vErr
	}

	if template.ID == "" {
		template.ID = s.idGenerator()
	}
	createdAt := s.now()
	template.CreatedAt = createdAt
	template.UpdatedAt = createdAt

	if err := s.templates.CreateTemplate(ctx, template); err != nil {
		log.Error("template create failed", "error_kind", ErrorKind(err), "error", err)
		return persistence.JobTemplate{}, err
	}
	log.Info("template created", "template_id", template.ID, "frequency", template.Frequency)
	return template, nil
}

// MaterializeTemplate expands one template over [from, to) and persists the
// occurrences that do not exist yet. Re-running over the same window is
// idempotent: already materialized dates are skipped.
func (s *SchedulingService) MaterializeTemplate(ctx context.Context, templateID string, from, to time.Time, holidays recurrence.HolidaySet) ([]persistence.JobOccurrence, error) {
	log := serviceLogger(ctx, s.logger, "scheduling", "materialize", "template_id", templateID)

	template, err := s.templates.GetTemplate(ctx, templateID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rule, err := templateRule(template)
	if err != nil {
		return nil, err
	}
	expanded, err := s.expander.Expand(rule, from, to, holidays)
	if err != nil {
		return nil, err
	}

	existing, err := s.occurrences.ListOccurrencesForTemplate(ctx, templateID, persistence.DateRange{From: from, To: to})
	if err != nil {
		return nil, err
	}
	materialized := make(map[time.Time]struct{}, len(existing))
	for _, occ := range existing {
		materialized[occ.ScheduledAt.UTC()] = struct{}{}
	}

	status := persistence.JobStatusScheduled
	if template.AutoConfirm {
		status = persistence.JobStatusConfirmed
	}

	created := make([]persistence.JobOccurrence, 0, len(expanded))
	for _, occ := range expanded {
		if _, ok := materialized[occ.Start.UTC()]; ok {
			continue
		}
		now := s.now()
		record := persistence.JobOccurrence{
			ID:                s.idGenerator(),
			TemplateID:        template.ID,
			CustomerID:        template.CustomerID,
			Title:             template.Title,
			JobType:           template.JobType,
			ScheduledAt:       occ.Start,
			EstimatedDuration: template.EstimatedDuration,
			Status:            status,
			RequiredSkills:    template.RequiredSkills,
			RequiredHeadcount: template.RequiredHeadcount,
			Location:          template.Location,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := s.occurrences.CreateOccurrence(ctx, record); err != nil {
			return nil, err
		}
		created = append(created, record)
	}

	log.Info("template materialized", "expanded", len(expanded), "created", len(created))
	return created, nil
}

// MaterializeAll expands every template over the window.
func (s *SchedulingService) MaterializeAll(ctx context.Context, from, to time.Time, holidays recurrence.HolidaySet) (int, error) {
	templates, err := s.templates.ListTemplates(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, template := range templates {
		created, err := s.MaterializeTemplate(ctx, template.ID, from, to, holidays)
		if err != nil {
			return total, fmt.Errorf("materialize template %s: %w", template.ID, err)
		}
		total += len(created)
	}
	return total, nil
}

// DispatchDate assigns every unassigned dispatchable occurrence on the date.
// Labor cost is recorded on each occurrence that receives a full crew. When a
// crew can only start later than a confirmed occurrence's time, the scheduled
// time stays put and the assignment records carry the actual start.
func (s *SchedulingService) DispatchDate(ctx context.Context, date time.Time) ([]dispatch.Result, error) {
	log := serviceLogger(ctx, s.logger, "scheduling", "dispatch", "date", date.Format("2006-01-02"))

	occurrences, err := s.occurrences.ListOccurrences(ctx, dayRange(date, s.location))
	if err != nil {
		return nil, err
	}
	members, err := s.teams.ListMembers(ctx)
	if err != nil {
		return nil, err
	}

	jobs := make([]dispatch.Job, 0, len(occurrences))
	byID := make(map[string]persistence.JobOccurrence, len(occurrences))
	for _, occ := range occurrences {
		if !dispatchable(occ) {
			continue
		}
		byID[occ.ID] = occ
		jobs = append(jobs, dispatch.Job{
			ID:             occ.ID,
			PreferredStart: occ.ScheduledAt,
			Duration:       occ.EstimatedDuration,
			RequiredSkills: occ.RequiredSkills,
			Headcount:      occ.RequiredHeadcount,
		})
	}

	pool := make([]dispatch.Member, 0, len(members))
	rates := make(map[string]float64, len(members))
	for _, member := range members {
		pool = append(pool, dispatch.Member{ID: member.ID, Skills: member.Skills, HourlyRate: member.HourlyRate})
		rates[member.ID] = member.HourlyRate
	}

	engine := dispatch.NewEngine(newRepoResolver(s.teams, s.assignments), s.assignments, s.idGenerator, s.now, s.logger)
	results, err := engine.Dispatch(ctx, date, jobs, pool)
	if err != nil {
		return nil, err
	}

	assigned := 0
	for _, result := range results {
		if !result.Assigned() {
			log.Info("occurrence unassigned", "occurrence_id", result.JobID, "reason", string(result.Reason))
			continue
		}
		assigned++
		occ := byID[result.JobID]
		occ.AssignedMemberIDs = result.MemberIDs
		if !persistence.ScheduleFrozen(occ.Status) {
			occ.ScheduledAt = result.Start
		}
		hours := occ.EstimatedDuration.Hours()
		occ.Cost.Labor = 0
		for _, memberID := range result.MemberIDs {
			occ.Cost.Labor += rates[memberID] * hours
		}
		occ.UpdatedAt = s.now()
		if err := s.occurrences.UpdateOccurrence(ctx, occ); err != nil {
			// The assignment is already committed; a failed occurrence write
			// must not abort the rest of the batch.
			log.Error("occurrence update failed", "occurrence_id", occ.ID, "error_kind", ErrorKind(err), "error", err)
		}
	}

	log.Info("dispatch completed", "jobs", len(jobs), "assigned", assigned, "unassigned", len(results)-assigned)
	return results, nil
}

// BuildRoutes recomputes each member's route for the date from scratch and
// spreads the fuel cost over the stops as the transport cost share.
func (s *SchedulingService) BuildRoutes(ctx context.Context, date time.Time) ([]route.Route, route.Summary, error) {
	log := serviceLogger(ctx, s.logger, "scheduling", "build_routes", "date", date.Format("2006-01-02"))

	assignments, err := s.assignments.ListAssignments(ctx, date)
	if err != nil {
		return nil, route.Summary{}, err
	}

	stopsByMember := make(map[string][]route.Stop)
	memberOrder := make([]string, 0)
	for _, assignment := range assignments {
		occ, err := s.occurrences.GetOccurrence(ctx, assignment.OccurrenceID)
		if err != nil {
			return nil, route.Summary{}, err
		}
		if _, ok := stopsByMember[assignment.MemberID]; !ok {
			memberOrder = append(memberOrder, assignment.MemberID)
		}
		stopsByMember[assignment.MemberID] = append(stopsByMember[assignment.MemberID], route.Stop{
			JobID:           occ.ID,
			Coordinate:      occ.Location.Coordinate,
			ServiceDuration: occ.EstimatedDuration,
		})
	}

	routes := make([]route.Route, 0, len(stopsByMember))
	for _, memberID := range memberOrder {
		optimized := route.Optimize(memberID, date, stopsByMember[memberID], s.routeParams)
		routes = append(routes, optimized)
		if len(optimized.Stops) == 0 || optimized.FuelCost == 0 {
			continue
		}
		share := optimized.FuelCost / float64(len(optimized.Stops))
		for _, stop := range optimized.Stops {
			occ, err := s.occurrences.GetOccurrence(ctx, stop.JobID)
			if err != nil {
				return nil, route.Summary{}, err
			}
			occ.Cost.Transport = share
			occ.UpdatedAt = s.now()
			if err := s.occurrences.UpdateOccurrence(ctx, occ); err != nil {
				return nil, route.Summary{}, fmt.Errorf("record transport cost for %s: %w", occ.ID, err)
			}
		}
	}

	summary := route.Summarize(routes)
	log.Info("routes built", "routes", len(routes), "jobs", summary.TotalJobs, "distance_km", summary.TotalDistanceKm)
	return routes, summary, nil
}

// dispatchable reports whether an occurrence should enter a dispatch batch.
func dispatchable(occ persistence.JobOccurrence) bool {
	if len(occ.AssignedMemberIDs) > 0 {
		return false
	}
	switch occ.Status {
	case persistence.JobStatusScheduled, persistence.JobStatusConfirmed, persistence.JobStatusRescheduled:
		return true
	default:
		return false
	}
}

func templateRule(template persistence.JobTemplate) (recurrence.Template, error) {
	frequency, err := recurrence.ParseFrequency(template.Frequency)
	if err != nil {
		return recurrence.Template{}, err
	}
	return recurrence.Template{
		ID:             template.ID,
		Frequency:      frequency,
		Interval:       template.Interval,
		Weekdays:       template.Weekdays,
		StartsAt:       template.StartsAt,
		EndsOn:         template.EndsOn,
		MaxOccurrences: template.MaxOccurrences,
		SkipHolidays:   template.SkipHolidays,
		Duration:       template.EstimatedDuration,
	}, nil
}

func ruleField(err error) string {
	switch {
	case errors.Is(err, recurrence.ErrInvalidFrequency):
		return "frequency"
	case errors.Is(err, recurrence.ErrInvalidInterval):
		return "interval"
	case errors.Is(err, recurrence.ErrEndBeforeStart):
		return "ends_on"
	case errors.Is(err, recurrence.ErrInvalidDuration):
		return "estimated_duration"
	default:
		return "template"
	}
}

func dayRange(date time.Time, loc *time.Location) persistence.DateRange {
	y, m, d := date.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return persistence.DateRange{From: start, To: start.AddDate(0, 0, 1)}
}
