package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/cleaning-dispatch/internal/persistence"
	"github.com/example/cleaning-dispatch/internal/persistence/sqlite"
)

// SQLiteHarness provides repository access backed by a temporary SQLite
// database for integration-style persistence tests.
type SQLiteHarness struct {
	Templates   persistence.TemplateRepository
	Occurrences persistence.OccurrenceRepository
	Teams       persistence.TeamRepository
	Assignments persistence.AssignmentRepository
	Links       persistence.LinkRepository

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness using a temporary file that is
// migrated automatically. A cleanup callback is registered with the provided
// testing.TB, so calling Close is optional.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	dir := tb.TempDir()
	path := filepath.Join(dir, "dispatch.db")

	store, err := sqlite.Open(path)
	if err != nil {
		tb.Fatalf("failed to open store: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		tb.Fatalf("failed to migrate store: %v", err)
	}

	harness := &SQLiteHarness{
		Templates:   sqlite.NewTemplateRepository(store),
		Occurrences: sqlite.NewOccurrenceRepository(store),
		Teams:       sqlite.NewTeamRepository(store),
		Assignments: sqlite.NewAssignmentRepository(store),
		Links:       sqlite.NewLinkRepository(store),
		cleanup: func() {
			_ = store.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}
