package sqlite

import (
	"context"
	"fmt"
)

// migrations are applied in order; PRAGMA user_version tracks progress.
var migrations = []string{
	`
	CREATE TABLE IF NOT EXISTS job_templates (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		job_type TEXT NOT NULL DEFAULT '',
		frequency TEXT NOT NULL,
		interval INTEGER NOT NULL CHECK (interval >= 1),
		weekdays TEXT NOT NULL DEFAULT '',
		starts_at TEXT NOT NULL,
		ends_on TEXT,
		max_occurrences INTEGER NOT NULL DEFAULT 0,
		skip_holidays INTEGER NOT NULL DEFAULT 0,
		auto_confirm INTEGER NOT NULL DEFAULT 0,
		estimated_minutes INTEGER NOT NULL CHECK (estimated_minutes > 0),
		required_skills TEXT NOT NULL DEFAULT '',
		required_headcount INTEGER NOT NULL DEFAULT 1,
		address TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT '',
		postal_code TEXT NOT NULL DEFAULT '',
		lat REAL NOT NULL DEFAULT 0,
		lng REAL NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS job_occurrences (
		id TEXT PRIMARY KEY,
		template_id TEXT REFERENCES job_templates(id) ON DELETE SET NULL,
		customer_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		job_type TEXT NOT NULL DEFAULT '',
		scheduled_at TEXT NOT NULL,
		estimated_minutes INTEGER NOT NULL CHECK (estimated_minutes > 0),
		status TEXT NOT NULL DEFAULT 'scheduled',
		required_skills TEXT NOT NULL DEFAULT '',
		required_headcount INTEGER NOT NULL DEFAULT 1,
		address TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT '',
		postal_code TEXT NOT NULL DEFAULT '',
		lat REAL NOT NULL DEFAULT 0,
		lng REAL NOT NULL DEFAULT 0,
		cost_labor REAL NOT NULL DEFAULT 0,
		cost_transport REAL NOT NULL DEFAULT 0,
		cost_equipment REAL NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_occurrences_scheduled_at ON job_occurrences(scheduled_at);
	CREATE INDEX IF NOT EXISTS idx_occurrences_template ON job_occurrences(template_id);

	CREATE TABLE IF NOT EXISTS team_members (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT '',
		skills TEXT NOT NULL DEFAULT '',
		hourly_rate REAL NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS availability_windows (
		member_id TEXT NOT NULL REFERENCES team_members(id) ON DELETE CASCADE,
		weekday INTEGER NOT NULL CHECK (weekday BETWEEN 0 AND 6),
		start_minute INTEGER NOT NULL CHECK (start_minute >= 0),
		end_minute INTEGER NOT NULL CHECK (end_minute <= 1440),
		available INTEGER NOT NULL DEFAULT 1,
		position INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_availability_member ON availability_windows(member_id, weekday);

	CREATE TABLE IF NOT EXISTS assignments (
		id TEXT PRIMARY KEY,
		occurrence_id TEXT NOT NULL REFERENCES job_occurrences(id) ON DELETE CASCADE,
		member_id TEXT NOT NULL REFERENCES team_members(id) ON DELETE CASCADE,
		date TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_assignments_member_date ON assignments(member_id, date);
	CREATE INDEX IF NOT EXISTS idx_assignments_occurrence ON assignments(occurrence_id);

	CREATE TABLE IF NOT EXISTS calendar_links (
		occurrence_id TEXT PRIMARY KEY REFERENCES job_occurrences(id) ON DELETE CASCADE,
		event_id TEXT NOT NULL UNIQUE,
		fingerprint TEXT NOT NULL DEFAULT '',
		synced_at TEXT NOT NULL
	);
	`,
}

// Migrate brings the schema up to date. Safe to call on every start.
func (s *Store) Migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}
	for i := version; i < len(migrations); i++ {
		if _, err := s.db.ExecContext(ctx, migrations[i]); err != nil {
			return fmt.Errorf("sqlite: apply migration %d: %w", i+1, err)
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			return fmt.Errorf("sqlite: bump schema version: %w", err)
		}
	}
	return nil
}
