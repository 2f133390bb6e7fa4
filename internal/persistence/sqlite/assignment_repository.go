package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/cleaning-dispatch/internal/persistence"
)

// AssignmentRepository implements persistence.AssignmentRepository.
type AssignmentRepository struct {
	store *Store
}

// NewAssignmentRepository binds the repository to a store.
func NewAssignmentRepository(store *Store) *AssignmentRepository {
	return &AssignmentRepository{store: store}
}

// CommitAssignments inserts the batch atomically. The overlap check and the
// inserts share one transaction, so of two runs racing on the same member
// and date exactly one observes the other's rows and fails with
// ErrAssignmentConflict.
func (r *AssignmentRepository) CommitAssignments(ctx context.Context, assignments []persistence.Assignment) error {
	if len(assignments) == 0 {
		return nil
	}
	return r.store.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, assignment := range assignments {
			if assignment.ID == "" || !assignment.End.After(assignment.Start) {
				return persistence.ErrConstraintViolation
			}
			var overlapping int
			err := tx.QueryRow(
				`SELECT COUNT(*) FROM assignments
				WHERE member_id = ? AND date = ? AND start_time < ? AND end_time > ?`,
				assignment.MemberID,
				formatDate(assignment.Date),
				formatTime(assignment.End),
				formatTime(assignment.Start),
			).Scan(&overlapping)
			if err != nil {
				return mapError(err)
			}
			if overlapping > 0 {
				return persistence.ErrAssignmentConflict
			}
			_, err = tx.Exec(
				`INSERT INTO assignments (id, occurrence_id, member_id, date, start_time, end_time, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				assignment.ID,
				assignment.OccurrenceID,
				assignment.MemberID,
				formatDate(assignment.Date),
				formatTime(assignment.Start),
				formatTime(assignment.End),
				formatTime(assignment.CreatedAt),
			)
			if err != nil {
				return mapError(err)
			}
		}
		return nil
	})
}

// ListAssignmentsForMember enumerates a member's assignments on a date,
// ordered by start time.
func (r *AssignmentRepository) ListAssignmentsForMember(ctx context.Context, memberID string, date time.Time) ([]persistence.Assignment, error) {
	return r.list(ctx,
		`SELECT id, occurrence_id, member_id, date, start_time, end_time, created_at FROM assignments
		WHERE member_id = ? AND date = ? ORDER BY start_time, id`,
		memberID, formatDate(date))
}

// ListAssignments enumerates every assignment on a date.
func (r *AssignmentRepository) ListAssignments(ctx context.Context, date time.Time) ([]persistence.Assignment, error) {
	return r.list(ctx,
		`SELECT id, occurrence_id, member_id, date, start_time, end_time, created_at FROM assignments
		WHERE date = ? ORDER BY start_time, id`,
		formatDate(date))
}

// DeleteAssignmentsForOccurrence removes every assignment of an occurrence,
// freeing the members' windows again.
func (r *AssignmentRepository) DeleteAssignmentsForOccurrence(ctx context.Context, occurrenceID string) error {
	_, err := r.store.db.ExecContext(ctx, `DELETE FROM assignments WHERE occurrence_id = ?`, occurrenceID)
	return mapError(err)
}

func (r *AssignmentRepository) list(ctx context.Context, query string, args ...any) ([]persistence.Assignment, error) {
	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	assignments := make([]persistence.Assignment, 0)
	for rows.Next() {
		var (
			assignment persistence.Assignment
			date       string
			start      string
			end        string
			createdAt  string
		)
		if err := rows.Scan(&assignment.ID, &assignment.OccurrenceID, &assignment.MemberID, &date, &start, &end, &createdAt); err != nil {
			return nil, err
		}
		if assignment.Date, err = time.Parse("2006-01-02", date); err != nil {
			return nil, err
		}
		if assignment.Start, err = parseTime(start); err != nil {
			return nil, err
		}
		if assignment.End, err = parseTime(end); err != nil {
			return nil, err
		}
		if assignment.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		assignments = append(assignments, assignment)
	}
	return assignments, mapError(rows.Err())
}
