package calendarsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/cleaning-dispatch/internal/persistence"
)

// Direction controls which side's changes are propagated.
type Direction string

const (
	// DirectionBidirectional propagates changes both ways.
	DirectionBidirectional Direction = "bidirectional"
	// DirectionPush propagates local changes to the external calendar only.
	// Externally deleted events are recreated rather than cancelled locally.
	DirectionPush Direction = "push"
	// DirectionPull propagates external changes into the local store only.
	DirectionPull Direction = "pull"
)

// Conflict records a two-sided edit resolved by last-write-wins.
type Conflict struct {
	OccurrenceID string
	EventID      string
	Winner       string
	DiscardedAt  time.Time
}

// EntityError records a per-entity failure that did not abort the run.
type EntityError struct {
	OccurrenceID string
	EventID      string
	Operation    string
	Message      string
}

// Report summarizes one reconciliation run.
type Report struct {
	Processed       int
	CreatedExternal int
	UpdatedExternal int
	DeletedExternal int
	CreatedLocal    int
	UpdatedLocal    int
	CancelledLocal  int
	Conflicts       []Conflict
	Errors          []EntityError
	StartedAt       time.Time
	FinishedAt      time.Time
}

// Clean reports whether the run changed nothing on either side.
func (r Report) Clean() bool {
	return r.CreatedExternal == 0 && r.UpdatedExternal == 0 && r.DeletedExternal == 0 &&
		r.CreatedLocal == 0 && r.UpdatedLocal == 0 && r.CancelledLocal == 0
}

// Options tunes a reconciler.
type Options struct {
	Direction Direction
	// Workers bounds concurrent external calls. Defaults to 4.
	Workers int
	// RetryAttempts bounds retries per external call. Defaults to 3.
	RetryAttempts int
	// RetryBaseDelay seeds the exponential backoff. Defaults to 250ms.
	RetryBaseDelay time.Duration
	// CallTimeout bounds each external call. Defaults to 10s.
	CallTimeout time.Duration
}

// Reconciler performs the three-way diff between occurrences, calendar
// links, and external events, and applies the resulting operations.
type Reconciler struct {
	calendar    ExternalCalendar
	occurrences persistence.OccurrenceRepository
	links       persistence.LinkRepository
	opts        Options
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger

	// runMu serializes runs so two sweeps can never double-push the same
	// occurrence.
	runMu sync.Mutex
}

// NewReconciler wires the reconciler dependencies.
func NewReconciler(calendar ExternalCalendar, occurrences persistence.OccurrenceRepository, links persistence.LinkRepository, opts Options, idGenerator func() string, now func() time.Time, logger *slog.Logger) *Reconciler {
	if opts.Direction == "" {
		opts.Direction = DirectionBidirectional
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 250 * time.Millisecond
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Second
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
	return &Reconciler{
		calendar:    calendar,
		occurrences: occurrences,
		links:       links,
		opts:        opts,
		idGenerator: idGenerator,
		now:         now,
		logger:      logger,
	}
}

type operation struct {
	kind       string
	occurrence persistence.JobOccurrence
	link       persistence.CalendarLink
	event      Event
	conflict   *Conflict
}

const (
	opPushCreate   = "push_create"
	opPushUpdate   = "push_update"
	opPushDelete   = "push_delete"
	opPushRecreate = "push_recreate"
	opPullCreate   = "pull_create"
	opPullUpdate   = "pull_update"
	opCancelLocal  = "cancel_local"
)

// Run reconciles the window [from, to). A transient failure on one entity is
// logged, recorded in the report, and does not abort the remaining entities.
// Cancellation is honored between per-entity operations; in-flight external
// calls complete or fail cleanly.
func (r *Reconciler) Run(ctx context.Context, from, to time.Time) (Report, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	report := Report{StartedAt: r.now()}

	window := persistence.DateRange{From: from, To: to}
	occurrences, err := r.occurrences.ListOccurrences(ctx, window)
	if err != nil {
		return report, err
	}
	links, err := r.links.ListLinks(ctx, window)
	if err != nil {
		return report, err
	}
	events, err := r.listEvents(ctx, from, to)
	if err != nil {
		return report, err
	}

	ops, suppressed := r.plan(occurrences, links, events)
	report.Processed = len(ops)
	// A conflict whose winning side cannot propagate in the configured
	// direction produces no operation, but the discarded edit is still
	// recorded.
	report.Conflicts = append(report.Conflicts, suppressed...)

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.opts.Workers)

	for _, op := range ops {
		if groupCtx.Err() != nil {
			break
		}
		op := op
		group.Go(func() error {
			r.execute(groupCtx, op, &report, &mu)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		report.FinishedAt = r.now()
		return report, err
	}

	report.FinishedAt = r.now()
	return report, nil
}

// plan computes the three-way diff. It never touches the network. Conflicts
// that the direction keeps from producing an operation are returned separately.
func (r *Reconciler) plan(occurrences []persistence.JobOccurrence, links []persistence.CalendarLink, events []Event) ([]operation, []Conflict) {
	linkByOcc := make(map[string]persistence.CalendarLink, len(links))
	linkByEvent := make(map[string]persistence.CalendarLink, len(links))
	for _, link := range links {
		linkByOcc[link.OccurrenceID] = link
		linkByEvent[link.EventID] = link
	}
	eventByID := make(map[string]Event, len(events))
	for _, event := range events {
		eventByID[event.ID] = event
	}

	push := r.opts.Direction != DirectionPull
	pull := r.opts.Direction != DirectionPush

	ops := make([]operation, 0, len(occurrences)+len(events))
	var suppressed []Conflict

	for _, occ := range occurrences {
		link, linked := linkByOcc[occ.ID]
		if !linked {
			if push && occ.Status != persistence.JobStatusCancelled {
				ops = append(ops, operation{kind: opPushCreate, occurrence: occ})
			}
			continue
		}

		event, exists := eventByID[link.EventID]
		if !exists {
			// The external side dropped the event. External deletion is
			// authoritative unless the direction is push-only.
			if push && !pull {
				ops = append(ops, operation{kind: opPushRecreate, occurrence: occ, link: link})
			} else {
				ops = append(ops, operation{kind: opCancelLocal, occurrence: occ, link: link})
			}
			continue
		}

		if occ.Status == persistence.JobStatusCancelled {
			if push {
				ops = append(ops, operation{kind: opPushDelete, occurrence: occ, link: link, event: event})
			}
			continue
		}

		localChanged := occurrenceFingerprint(occ) != link.Fingerprint
		remoteChanged := eventFingerprint(event) != link.Fingerprint

		switch {
		case localChanged && remoteChanged:
			conflict := &Conflict{OccurrenceID: occ.ID, EventID: event.ID}
			if occ.UpdatedAt.After(event.UpdatedAt) {
				conflict.Winner = "local"
				conflict.DiscardedAt = event.UpdatedAt
				if push {
					ops = append(ops, operation{kind: opPushUpdate, occurrence: occ, link: link, event: event, conflict: conflict})
				} else {
					suppressed = append(suppressed, *conflict)
				}
			} else {
				conflict.Winner = "external"
				conflict.DiscardedAt = occ.UpdatedAt
				if pull {
					ops = append(ops, operation{kind: opPullUpdate, occurrence: occ, link: link, event: event, conflict: conflict})
				} else {
					suppressed = append(suppressed, *conflict)
				}
			}
		case localChanged:
			if push {
				ops = append(ops, operation{kind: opPushUpdate, occurrence: occ, link: link, event: event})
			}
		case remoteChanged:
			if pull {
				ops = append(ops, operation{kind: opPullUpdate, occurrence: occ, link: link, event: event})
			}
		}
	}

	if pull {
		for _, event := range events {
			if _, linked := linkByEvent[event.ID]; linked {
				continue
			}
			ops = append(ops, operation{kind: opPullCreate, event: event})
		}
	}

	return ops, suppressed
}

func (r *Reconciler) execute(ctx context.Context, op operation, report *Report, mu *sync.Mutex) {
	if ctx.Err() != nil {
		return
	}

	err := r.apply(ctx, op, report, mu)
	if err == nil {
		if op.conflict != nil {
			mu.Lock()
			report.Conflicts = append(report.Conflicts, *op.conflict)
			mu.Unlock()
		}
		return
	}

	r.logger.Error("calendar sync operation failed",
		"operation", op.kind,
		"occurrence_id", op.occurrence.ID,
		"event_id", op.event.ID,
		"error", err,
	)
	mu.Lock()
	report.Errors = append(report.Errors, EntityError{
		OccurrenceID: op.occurrence.ID,
		EventID:      op.event.ID,
		Operation:    op.kind,
		Message:      err.Error(),
	})
	mu.Unlock()
}

func (r *Reconciler) apply(ctx context.Context, op operation, report *Report, mu *sync.Mutex) error {
	switch op.kind {
	case opPushCreate, opPushRecreate:
		var created Event
		err := r.withRetry(ctx, func(callCtx context.Context) error {
			var callErr error
			created, callErr = r.calendar.CreateEvent(callCtx, occurrenceToEvent(op.occurrence))
			return callErr
		})
		if err != nil {
			return err
		}
		if err := r.links.SaveLink(ctx, persistence.CalendarLink{
			OccurrenceID: op.occurrence.ID,
			EventID:      created.ID,
			Fingerprint:  occurrenceFingerprint(op.occurrence),
			SyncedAt:     r.now(),
		}); err != nil {
			return err
		}
		mu.Lock()
		report.CreatedExternal++
		mu.Unlock()
		return nil

	case opPushUpdate:
		err := r.withRetry(ctx, func(callCtx context.Context) error {
			event := occurrenceToEvent(op.occurrence)
			event.ID = op.link.EventID
			_, callErr := r.calendar.UpdateEvent(callCtx, event)
			return callErr
		})
		if err != nil {
			return err
		}
		op.link.Fingerprint = occurrenceFingerprint(op.occurrence)
		op.link.SyncedAt = r.now()
		if err := r.links.SaveLink(ctx, op.link); err != nil {
			return err
		}
		mu.Lock()
		report.UpdatedExternal++
		mu.Unlock()
		return nil

	case opPushDelete:
		err := r.withRetry(ctx, func(callCtx context.Context) error {
			return r.calendar.DeleteEvent(callCtx, op.link.EventID)
		})
		if err != nil {
			return err
		}
		if err := r.links.DeleteLink(ctx, op.occurrence.ID); err != nil {
			return err
		}
		mu.Lock()
		report.DeletedExternal++
		mu.Unlock()
		return nil

	case opCancelLocal:
		if err := r.occurrences.UpdateOccurrenceStatus(ctx, op.occurrence.ID, persistence.JobStatusCancelled, r.now()); err != nil {
			return err
		}
		if err := r.links.DeleteLink(ctx, op.occurrence.ID); err != nil {
			return err
		}
		mu.Lock()
		report.CancelledLocal++
		mu.Unlock()
		return nil

	case opPullCreate:
		occ := eventToOccurrence(op.event, r.idGenerator(), r.now())
		if err := r.occurrences.CreateOccurrence(ctx, occ); err != nil {
			return err
		}
		if err := r.links.SaveLink(ctx, persistence.CalendarLink{
			OccurrenceID: occ.ID,
			EventID:      op.event.ID,
			Fingerprint:  eventFingerprint(op.event),
			SyncedAt:     r.now(),
		}); err != nil {
			return err
		}
		mu.Lock()
		report.CreatedLocal++
		mu.Unlock()
		return nil

	case opPullUpdate:
		occ := op.occurrence
		occ.Title = op.event.Title
		occ.ScheduledAt = op.event.Start
		if op.event.End.After(op.event.Start) {
			occ.EstimatedDuration = op.event.End.Sub(op.event.Start)
		}
		occ.Location.Address = op.event.Location
		occ.UpdatedAt = r.now()
		if err := r.occurrences.UpdateOccurrence(ctx, occ); err != nil {
			return err
		}
		op.link.Fingerprint = eventFingerprint(op.event)
		op.link.SyncedAt = r.now()
		if err := r.links.SaveLink(ctx, op.link); err != nil {
			return err
		}
		mu.Lock()
		report.UpdatedLocal++
		mu.Unlock()
		return nil

	default:
		return errors.New("calendarsync: unknown operation")
	}
}

// withRetry runs fn with a per-call timeout and exponential backoff.
// Cancellation is checked between attempts, never mid-call.
func (r *Reconciler) withRetry(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	delay := r.opts.RetryBaseDelay
	for attempt := 0; attempt < r.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

func (r *Reconciler) listEvents(ctx context.Context, from, to time.Time) ([]Event, error) {
	var events []Event
	err := r.withRetry(ctx, func(callCtx context.Context) error {
		var callErr error
		events, callErr = r.calendar.ListEvents(callCtx, from, to)
		return callErr
	})
	return events, err
}

func occurrenceFingerprint(occ persistence.JobOccurrence) string {
	return Fingerprint(occ.Title, occ.ScheduledAt, occ.ScheduledAt.Add(occ.EstimatedDuration), occ.Location.Address)
}

func eventFingerprint(event Event) string {
	return Fingerprint(event.Title, event.Start, event.End, event.Location)
}

func occurrenceToEvent(occ persistence.JobOccurrence) Event {
	return Event{
		Title:     occ.Title,
		Start:     occ.ScheduledAt,
		End:       occ.ScheduledAt.Add(occ.EstimatedDuration),
		Location:  occ.Location.Address,
		UpdatedAt: occ.UpdatedAt,
	}
}

func eventToOccurrence(event Event, id string, now time.Time) persistence.JobOccurrence {
	duration := event.End.Sub(event.Start)
	if duration <= 0 {
		duration = time.Hour
	}
	return persistence.JobOccurrence{
		ID:                id,
		Title:             event.Title,
		JobType:           "external",
		ScheduledAt:       event.Start,
		EstimatedDuration: duration,
		Status:            persistence.JobStatusScheduled,
		Location:          persistence.Location{Address: event.Location},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}
