package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/cleaning-dispatch/internal/persistence"
)

// TeamRepository implements persistence.TeamRepository.
type TeamRepository struct {
	store *Store
}

// NewTeamRepository binds the repository to a store.
func NewTeamRepository(store *Store) *TeamRepository {
	return &TeamRepository{store: store}
}

// CreateMember inserts a member and its availability template atomically.
func (r *TeamRepository) CreateMember(ctx context.Context, member persistence.TeamMember) error {
	if member.ID == "" {
		return persistence.ErrConstraintViolation
	}
	return r.store.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO team_members (id, name, role, skills, hourly_rate, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			member.ID,
			member.Name,
			member.Role,
			joinList(member.Skills),
			member.HourlyRate,
			formatTime(member.CreatedAt),
			formatTime(member.UpdatedAt),
		)
		if err != nil {
			return mapError(err)
		}
		return insertAvailability(tx, member.ID, member.Availability)
	})
}

// GetMember fetches a member with its availability template.
func (r *TeamRepository) GetMember(ctx context.Context, id string) (persistence.TeamMember, error) {
	row := r.store.db.QueryRowContext(ctx,
		`SELECT id, name, role, skills, hourly_rate, created_at, updated_at FROM team_members WHERE id = ?`, id)
	member, err := scanMember(row)
	if err != nil {
		return persistence.TeamMember{}, err
	}
	availability, err := r.loadAvailability(ctx, member.ID)
	if err != nil {
		return persistence.TeamMember{}, err
	}
	member.Availability = availability
	return member, nil
}

// ListMembers enumerates all members ordered by id.
func (r *TeamRepository) ListMembers(ctx context.Context) ([]persistence.TeamMember, error) {
	rows, err := r.store.db.QueryContext(ctx,
		`SELECT id, name, role, skills, hourly_rate, created_at, updated_at FROM team_members ORDER BY id`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	members := make([]persistence.TeamMember, 0)
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	for i := range members {
		availability, err := r.loadAvailability(ctx, members[i].ID)
		if err != nil {
			return nil, err
		}
		members[i].Availability = availability
	}
	return members, nil
}

// UpdateMember replaces a member and rewrites its availability template.
func (r *TeamRepository) UpdateMember(ctx context.Context, member persistence.TeamMember) error {
	return r.store.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.Exec(
			`UPDATE team_members SET name = ?, role = ?, skills = ?, hourly_rate = ?, updated_at = ? WHERE id = ?`,
			member.Name,
			member.Role,
			joinList(member.Skills),
			member.HourlyRate,
			formatTime(member.UpdatedAt),
			member.ID,
		)
		if err != nil {
			return mapError(err)
		}
		if err := requireRowAffected(result); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM availability_windows WHERE member_id = ?`, member.ID); err != nil {
			return mapError(err)
		}
		return insertAvailability(tx, member.ID, member.Availability)
	})
}

// DeleteMember removes a member; availability windows and assignments
// cascade.
func (r *TeamRepository) DeleteMember(ctx context.Context, id string) error {
	result, err := r.store.db.ExecContext(ctx, `DELETE FROM team_members WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	return requireRowAffected(result)
}

func insertAvailability(tx *sql.Tx, memberID string, windows []persistence.AvailabilityWindow) error {
	for position, window := range windows {
		_, err := tx.Exec(
			`INSERT INTO availability_windows (member_id, weekday, start_minute, end_minute, available, position)
			VALUES (?, ?, ?, ?, ?, ?)`,
			memberID,
			int(window.Weekday),
			window.Start,
			window.End,
			boolInt(window.Available),
			position,
		)
		if err != nil {
			return mapError(err)
		}
	}
	return nil
}

func (r *TeamRepository) loadAvailability(ctx context.Context, memberID string) ([]persistence.AvailabilityWindow, error) {
	rows, err := r.store.db.QueryContext(ctx,
		`SELECT weekday, start_minute, end_minute, available FROM availability_windows
		WHERE member_id = ? ORDER BY weekday, position`, memberID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var windows []persistence.AvailabilityWindow
	for rows.Next() {
		var (
			window    persistence.AvailabilityWindow
			weekday   int
			available int
		)
		if err := rows.Scan(&weekday, &window.Start, &window.End, &available); err != nil {
			return nil, err
		}
		window.Weekday = time.Weekday(weekday)
		window.Available = available != 0
		windows = append(windows, window)
	}
	return windows, mapError(rows.Err())
}

func scanMember(row rowScanner) (persistence.TeamMember, error) {
	var (
		member    persistence.TeamMember
		skills    string
		createdAt string
		updatedAt string
	)
	err := row.Scan(&member.ID, &member.Name, &member.Role, &skills, &member.HourlyRate, &createdAt, &updatedAt)
	if err != nil {
		return persistence.TeamMember{}, mapError(err)
	}
	member.Skills = splitList(skills)
	if member.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.TeamMember{}, err
	}
	if member.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.TeamMember{}, err
	}
	return member, nil
}
