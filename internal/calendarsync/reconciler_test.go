package calendarsync_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/cleaning-dispatch/internal/calendarsync"
	"github.com/example/cleaning-dispatch/internal/persistence"
	"github.com/example/cleaning-dispatch/internal/testfixtures"
)

var (
	syncFrom = time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)
	syncTo   = syncFrom.AddDate(0, 0, 7)
)

type syncHarness struct {
	store    *testfixtures.MemoryStore
	calendar *testfixtures.FakeCalendar
	clock    *testfixtures.ManualClock
	rec      *calendarsync.Reconciler
}

func newSyncHarness(t *testing.T, direction calendarsync.Direction) *syncHarness {
	t.Helper()
	store := testfixtures.NewMemoryStore()
	calendar := testfixtures.NewFakeCalendar()
	clock := testfixtures.NewManualClock(syncFrom.Add(12 * time.Hour))
	ids := testfixtures.NewIDSequence("sync")
	// A single worker keeps operation order, and therefore failure
	// injection, deterministic.
	rec := calendarsync.NewReconciler(calendar, store, store, calendarsync.Options{
		Direction:      direction,
		Workers:        1,
		RetryAttempts:  2,
		RetryBaseDelay: time.Millisecond,
		CallTimeout:    time.Second,
	}, ids.NextFunc(), clock.NowFunc(), nil)
	return &syncHarness{store: store, calendar: calendar, clock: clock, rec: rec}
}

func (h *syncHarness) addOccurrence(t *testing.T, opts ...testfixtures.OccurrenceOption) persistence.JobOccurrence {
	t.Helper()
	occ := testfixtures.NewOccurrenceFixture(opts...)
	require.NoError(t, h.store.CreateOccurrence(context.Background(), occ))
	return occ
}

func TestRunPushesUnlinkedOccurrences(t *testing.T) {
	t.Parallel()

	h := newSyncHarness(t, calendarsync.DirectionBidirectional)
	occ := h.addOccurrence(t, testfixtures.WithOccurrenceScheduledAt(syncFrom.Add(9*time.Hour)))

	report, err := h.rec.Run(context.Background(), syncFrom, syncTo)
	require.NoError(t, err)

	assert.Equal(t, 1, report.CreatedExternal)
	assert.Empty(t, report.Errors)
	assert.Equal(t, 1, h.calendar.Len())

	link, err := h.store.GetLinkByOccurrence(context.Background(), occ.ID)
	require.NoError(t, err)
	event, ok := h.calendar.Event(link.EventID)
	require.True(t, ok)
	assert.Equal(t, occ.Title, event.Title)
	assert.True(t, event.Start.Equal(occ.ScheduledAt))
}

func TestRunSecondSweepIsClean(t *testing.T) {
	t.Parallel()

	h := newSyncHarness(t, calendarsync.DirectionBidirectional)
	h.addOccurrence(t, testfixtures.WithOccurrenceScheduledAt(syncFrom.Add(9*time.Hour)))
	h.addOccurrence(t, testfixtures.WithOccurrenceScheduledAt(syncFrom.Add(11*time.Hour)))

	first, err := h.rec.Run(context.Background(), syncFrom, syncTo)
	require.NoError(t, err)
	require.Equal(t, 2, first.CreatedExternal)

	second, err := h.rec.Run(context.Background(), syncFrom, syncTo)
	require.NoError(t, err)
	assert.True(t, second.Clean(), "second sweep performed work: %+v", second)
}

func TestRunPushesLocalEdit(t *testing.T) {
	t.Parallel()

	h := newSyncHarness(t, calendarsync.DirectionBidirectional)
	occ := h.addOccurrence(t, testfixtures.WithOccurrenceScheduledAt(syncFrom.Add(9*time.Hour)))

	_, err := h.rec.Run(context.Background(), syncFrom, syncTo)
	require.NoError(t, err)

	occ.Title = "Hovedrengøring"
	occ.UpdatedAt = h.clock.Advance(time.Hour)
	require.NoError(t, h.store.UpdateOccurrence(context.Background(), occ))

	report, err := h.rec.Run(context.Background(), syncFrom, syncTo)
	require.NoError(t, err)
	assert.Equal(t, 1, report.UpdatedExternal)

	link, err := h.store.GetLinkByOccurrence(context.Background(), occ.ID)
	require.NoError(t, err)
	event, ok := h.calendar.Event(link.EventID)
	require.True(t, ok)
	assert.Equal(t, "Hovedrengøring", event.Title)
}

func TestRunPullsRemoteEdit(t *testing.T) {
	t.Parallel()

	h := newSyncHarness(t, calendarsync.DirectionBidirectional)
	occ := h.addOccurrence(t, testfixtures.WithOccurrenceScheduledAt(syncFrom.Add(9*time.Hour)))

	_, err := h.rec.Run(context.Background(), syncFrom, syncTo)
	require.NoError(t, err)

	link, err := h.store.GetLinkByOccurrence(context.Background(), occ.ID)
	require.NoError(t, err)
	event, ok := h.calendar.Event(link.EventID)
	require.True(t, ok)
	event.Title = "Flyttet rengøring"
	event.Start = occ.ScheduledAt.Add(time.Hour)
	event.End = event.Start.Add(occ.EstimatedDuration)
	event.UpdatedAt = h.clock.Advance(time.Hour)
	h.calendar.Put(event)

	report, err := h.rec.Run(context.Background(), syncFrom, syncTo)
	require.NoError(t, err)
	assert.Equal(t, 1, report.UpdatedLocal)

	updated, err := h.store.GetOccurrence(context.Background(), occ.ID)
	require.NoError(t, err)
	assert.Equal(t, "Flyttet rengøring", updated.Title)
	assert.True(t, updated.ScheduledAt.Equal(event.Start))
}

func TestRunResolvesConflictByLastWrite(t *testing.T) {
	t.Parallel()

	t.Run("local wins", func(t *testing.T) {
		t.Parallel()
		h := newSyncHarness(t, calendarsync.DirectionBidirectional)
		occ := h.addOccurrence(t, testfixtures.WithOccurrenceScheduledAt(syncFrom.Add(9*time.Hour)))
		_, err := h.rec.Run(context.Background(), syncFrom, syncTo)
		require.NoError(t, err)

		link, err := h.store.GetLinkByOccurrence(context.Background(), occ.ID)
		require.NoError(t, err)
		event, _ := h.calendar.Event(link.EventID)
		event.Title = "Ekstern titel"
		event.UpdatedAt = h.clock.Advance(time.Hour)
		h.calendar.Put(event)

		occ.Title = "Lokal titel"
		occ.UpdatedAt = h.clock.Advance(time.Hour)
		require.NoError(t, h.store.UpdateOccurrence(context.Background(), occ))

		report, err := h.rec.Run(context.Background(), syncFrom, syncTo)
		require.NoError(t, err)
		require.Len(t, report.Conflicts, 1)
		assert.Equal(t, "local", report.Conflicts[0].Winner)
		assert.Equal(t, 1, report.UpdatedExternal)

		final, _ := h.calendar.Event(link.EventID)
		assert.Equal(t, "Lokal titel", final.Title)
	})

	t.Run("external wins", func(t *testing.T) {
		t.Parallel()
		h := newSyncHarness(t, calendarsync.DirectionBidirectional)
		occ := h.addOccurrence(t, testfixtures.WithOccurrenceScheduledAt(syncFrom.Add(9*time.Hour)))
		_, err := h.rec.Run(context.Background(), syncFrom, syncTo)
		require.NoError(t, err)

		occ.Title = "Lokal titel"
		occ.UpdatedAt = h.clock.Advance(time.Hour)
		require.NoError(t, h.store.UpdateOccurrence(context.Background(), occ))

		link, err := h.store.GetLinkByOccurrence(context.Background(), occ.ID)
		require.NoError(t, err)
		event, _ := h.calendar.Event(link.EventID)
		event.Title = "Ekstern titel"
		event.UpdatedAt = h.clock.Advance(time.Hour)
		h.calendar.Put(event)

		report, err := h.rec.Run(context.Background(), syncFrom, syncTo)
		require.NoError(t, err)
		require.Len(t, report.Conflicts, 1)
		assert.Equal(t, "external", report.Conflicts[0].Winner)
		assert.Equal(t, 1, report.UpdatedLocal)

		final, err := h.store.GetOccurrence(context.Background(), occ.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ekstern titel", final.Title)
	})
}

func TestRunExternalDeletion(t *testing.T) {
	t.Parallel()

	t.Run("bidirectional cancels locally", func(t *testing.T) {
		t.Parallel()
		h := newSyncHarness(t, calendarsync.DirectionBidirectional)
		occ := h.addOccurrence(t, testfixtures.WithOccurrenceScheduledAt(syncFrom.Add(9*time.Hour)))
		_, err := h.rec.Run(context.Background(), syncFrom, syncTo)
		require.NoError(t, err)

		link, err := h.store.GetLinkByOccurrence(context.Background(), occ.ID)
		require.NoError(t, err)
		h.calendar.Remove(link.EventID)

		report, err := h.rec.Run(context.Background(), syncFrom, syncTo)
		require.NoError(t, err)
		assert.Equal(t, 1, report.CancelledLocal)

		updated, err := h.store.GetOccurrence(context.Background(), occ.ID)
		require.NoError(t, err)
		assert.Equal(t, persistence.JobStatusCancelled, updated.Status)
	})

	t.Run("push only recreates", func(t *testing.T) {
		t.Parallel()
		h := newSyncHarness(t, calendarsync.DirectionPush)
		occ := h.addOccurrence(t, testfixtures.WithOccurrenceScheduledAt(syncFrom.Add(9*time.Hour)))
		_, err := h.rec.Run(context.Background(), syncFrom, syncTo)
		require.NoError(t, err)

		link, err := h.store.GetLinkByOccurrence(context.Background(), occ.ID)
		require.NoError(t, err)
		h.calendar.Remove(link.EventID)

		report, err := h.rec.Run(context.Background(), syncFrom, syncTo)
		require.NoError(t, err)
		assert.Equal(t, 1, report.CreatedExternal)
		assert.Equal(t, 1, h.calendar.Len())

		updated, err := h.store.GetOccurrence(context.Background(), occ.ID)
		require.NoError(t, err)
		assert.Equal(t, persistence.JobStatusScheduled, updated.Status)
	})
}

func TestRunCancelledOccurrenceDeletesEvent(t *testing.T) {
	t.Parallel()

	h := newSyncHarness(t, calendarsync.DirectionBidirectional)
	occ := h.addOccurrence(t, testfixtures.WithOccurrenceScheduledAt(syncFrom.Add(9*time.Hour)))
	_, err := h.rec.Run(context.Background(), syncFrom, syncTo)
	require.NoError(t, err)

	require.NoError(t, h.store.UpdateOccurrenceStatus(context.Background(), occ.ID, persistence.JobStatusCancelled, h.clock.Now()))

	report, err := h.rec.Run(context.Background(), syncFrom, syncTo)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DeletedExternal)
	assert.Equal(t, 0, h.calendar.Len())
}

func TestRunPullsUnlinkedEvents(t *testing.T) {
	t.Parallel()

	h := newSyncHarness(t, calendarsync.DirectionBidirectional)
	start := syncFrom.Add(10 * time.Hour)
	h.calendar.Put(calendarsync.Event{
		ID:        "external-1",
		Title:     "Kundebesøg",
		Start:     start,
		End:       start.Add(time.Hour),
		Location:  "Amagerbrogade 5",
		UpdatedAt: start,
	})

	report, err := h.rec.Run(context.Background(), syncFrom, syncTo)
	require.NoError(t, err)
	assert.Equal(t, 1, report.CreatedLocal)

	occurrences, err := h.store.ListOccurrences(context.Background(), persistence.DateRange{From: syncFrom, To: syncTo})
	require.NoError(t, err)
	require.Len(t, occurrences, 1)
	assert.Equal(t, "Kundebesøg", occurrences[0].Title)
	assert.Equal(t, time.Hour, occurrences[0].EstimatedDuration)

	link, err := h.store.GetLinkByOccurrence(context.Background(), occurrences[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "external-1", link.EventID)
}

func TestRunPullDirectionNeverPushes(t *testing.T) {
	t.Parallel()

	h := newSyncHarness(t, calendarsync.DirectionPull)
	h.addOccurrence(t, testfixtures.WithOccurrenceScheduledAt(syncFrom.Add(9*time.Hour)))

	report, err := h.rec.Run(context.Background(), syncFrom, syncTo)
	require.NoError(t, err)
	assert.Equal(t, 0, report.CreatedExternal)
	assert.Equal(t, 0, h.calendar.Len())
}

func TestRunRecordsDirectionSuppressedConflicts(t *testing.T) {
	t.Parallel()

	t.Run("pull direction with local winner", func(t *testing.T) {
		t.Parallel()
		h := newSyncHarness(t, calendarsync.DirectionPull)
		occ := h.addOccurrence(t, testfixtures.WithOccurrenceScheduledAt(syncFrom.Add(9*time.Hour)))

		event := calendarsync.Event{
			ID:        "external-1",
			Title:     occ.Title,
			Start:     occ.ScheduledAt,
			End:       occ.ScheduledAt.Add(occ.EstimatedDuration),
			Location:  occ.Location.Address,
			UpdatedAt: occ.UpdatedAt,
		}
		h.calendar.Put(event)
		require.NoError(t, h.store.SaveLink(context.Background(), persistence.CalendarLink{
			OccurrenceID: occ.ID,
			EventID:      event.ID,
			Fingerprint:  calendarsync.Fingerprint(event.Title, event.Start, event.End, event.Location),
			SyncedAt:     h.clock.Now(),
		}))

		event.Title = "Ekstern titel"
		event.UpdatedAt = h.clock.Advance(time.Hour)
		h.calendar.Put(event)

		occ.Title = "Lokal titel"
		occ.UpdatedAt = h.clock.Advance(time.Hour)
		require.NoError(t, h.store.UpdateOccurrence(context.Background(), occ))

		report, err := h.rec.Run(context.Background(), syncFrom, syncTo)
		require.NoError(t, err)

		// The local win cannot be pushed, but the discarded external edit
		// must still show up in the report.
		require.Len(t, report.Conflicts, 1)
		assert.Equal(t, "local", report.Conflicts[0].Winner)
		assert.Equal(t, 0, report.UpdatedExternal)
		assert.Equal(t, 0, report.UpdatedLocal)
		assert.Equal(t, 0, h.calendar.Calls("update"))
	})

	t.Run("push direction with external winner", func(t *testing.T) {
		t.Parallel()
		h := newSyncHarness(t, calendarsync.DirectionPush)
		occ := h.addOccurrence(t, testfixtures.WithOccurrenceScheduledAt(syncFrom.Add(9*time.Hour)))
		_, err := h.rec.Run(context.Background(), syncFrom, syncTo)
		require.NoError(t, err)

		occ.Title = "Lokal titel"
		occ.UpdatedAt = h.clock.Advance(time.Hour)
		require.NoError(t, h.store.UpdateOccurrence(context.Background(), occ))

		link, err := h.store.GetLinkByOccurrence(context.Background(), occ.ID)
		require.NoError(t, err)
		event, _ := h.calendar.Event(link.EventID)
		event.Title = "Ekstern titel"
		event.UpdatedAt = h.clock.Advance(time.Hour)
		h.calendar.Put(event)

		report, err := h.rec.Run(context.Background(), syncFrom, syncTo)
		require.NoError(t, err)

		require.Len(t, report.Conflicts, 1)
		assert.Equal(t, "external", report.Conflicts[0].Winner)
		assert.Equal(t, 0, report.UpdatedLocal)

		local, err := h.store.GetOccurrence(context.Background(), occ.ID)
		require.NoError(t, err)
		assert.Equal(t, "Lokal titel", local.Title)
	})
}

func TestRunIsolatesEntityFailures(t *testing.T) {
	t.Parallel()

	h := newSyncHarness(t, calendarsync.DirectionBidirectional)
	h.addOccurrence(t, testfixtures.WithOccurrenceScheduledAt(syncFrom.Add(9*time.Hour)))
	h.addOccurrence(t, testfixtures.WithOccurrenceScheduledAt(syncFrom.Add(11*time.Hour)))

	// Exhaust every retry of exactly one create; the other must go through.
	h.calendar.FailNext("create", 2)

	report, err := h.rec.Run(context.Background(), syncFrom, syncTo)
	require.NoError(t, err)
	assert.Equal(t, 1, report.CreatedExternal)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "push_create", report.Errors[0].Operation)
	assert.Equal(t, 1, h.calendar.Len())
}

func TestRunRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	h := newSyncHarness(t, calendarsync.DirectionBidirectional)
	h.addOccurrence(t, testfixtures.WithOccurrenceScheduledAt(syncFrom.Add(9*time.Hour)))

	// One failure, one retry left: the sweep must succeed.
	h.calendar.FailNext("create", 1)

	report, err := h.rec.Run(context.Background(), syncFrom, syncTo)
	require.NoError(t, err)
	assert.Equal(t, 1, report.CreatedExternal)
	assert.Empty(t, report.Errors)
	assert.Equal(t, 2, h.calendar.Calls("create"))
}

func TestRunHonorsCancellation(t *testing.T) {
	t.Parallel()

	h := newSyncHarness(t, calendarsync.DirectionBidirectional)
	h.addOccurrence(t, testfixtures.WithOccurrenceScheduledAt(syncFrom.Add(9*time.Hour)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.rec.Run(ctx, syncFrom, syncTo)
	assert.ErrorIs(t, err, context.Canceled)
}
