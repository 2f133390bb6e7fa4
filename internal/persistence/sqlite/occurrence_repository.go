package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/cleaning-dispatch/internal/persistence"
)

// OccurrenceRepository implements persistence.OccurrenceRepository.
type OccurrenceRepository struct {
	store *Store
}

// NewOccurrenceRepository binds the repository to a store.
func NewOccurrenceRepository(store *Store) *OccurrenceRepository {
	return &OccurrenceRepository{store: store}
}

const occurrenceColumns = `id, template_id, customer_id, title, job_type, scheduled_at,
	estimated_minutes, status, required_skills, required_headcount, address, city,
	postal_code, lat, lng, cost_labor, cost_transport, cost_equipment, created_at, updated_at`

// CreateOccurrence inserts a new occurrence.
func (r *OccurrenceRepository) CreateOccurrence(ctx context.Context, occurrence persistence.JobOccurrence) error {
	if occurrence.ID == "" || occurrence.EstimatedDuration <= 0 {
		return persistence.ErrConstraintViolation
	}
	query := `INSERT INTO job_occurrences (` + occurrenceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.store.db.ExecContext(ctx, query,
		occurrence.ID,
		nullString(occurrence.TemplateID),
		occurrence.CustomerID,
		occurrence.Title,
		occurrence.JobType,
		formatTime(occurrence.ScheduledAt),
		int(occurrence.EstimatedDuration.Minutes()),
		string(occurrence.Status),
		joinList(occurrence.RequiredSkills),
		occurrence.RequiredHeadcount,
		occurrence.Location.Address,
		occurrence.Location.City,
		occurrence.Location.PostalCode,
		occurrence.Location.Coordinate.Lat,
		occurrence.Location.Coordinate.Lng,
		occurrence.Cost.Labor,
		occurrence.Cost.Transport,
		occurrence.Cost.Equipment,
		formatTime(occurrence.CreatedAt),
		formatTime(occurrence.UpdatedAt),
	)
	return mapError(err)
}

// GetOccurrence fetches an occurrence with its assigned member ids.
func (r *OccurrenceRepository) GetOccurrence(ctx context.Context, id string) (persistence.JobOccurrence, error) {
	row := r.store.db.QueryRowContext(ctx, `SELECT `+occurrenceColumns+` FROM job_occurrences WHERE id = ?`, id)
	occurrence, err := scanOccurrence(row)
	if err != nil {
		return persistence.JobOccurrence{}, err
	}
	members, err := r.memberIDs(ctx, occurrence.ID)
	if err != nil {
		return persistence.JobOccurrence{}, err
	}
	occurrence.AssignedMemberIDs = members
	return occurrence, nil
}

// ListOccurrences enumerates occurrences scheduled inside [From, To),
// ordered by schedule time then id.
func (r *OccurrenceRepository) ListOccurrences(ctx context.Context, dateRange persistence.DateRange) ([]persistence.JobOccurrence, error) {
	query := `SELECT ` + occurrenceColumns + ` FROM job_occurrences
		WHERE scheduled_at >= ? AND scheduled_at < ? ORDER BY scheduled_at, id`
	return r.list(ctx, query, formatTime(dateRange.From), formatTime(dateRange.To))
}

// ListOccurrencesForTemplate enumerates a template's occurrences inside the
// range.
func (r *OccurrenceRepository) ListOccurrencesForTemplate(ctx context.Context, templateID string, dateRange persistence.DateRange) ([]persistence.JobOccurrence, error) {
	query := `SELECT ` + occurrenceColumns + ` FROM job_occurrences
		WHERE template_id = ? AND scheduled_at >= ? AND scheduled_at < ? ORDER BY scheduled_at, id`
	return r.list(ctx, query, templateID, formatTime(dateRange.From), formatTime(dateRange.To))
}

// UpdateOccurrence replaces an occurrence. Moving the scheduled time of an
// occurrence that is confirmed, in progress, or completed is rejected with
// ErrImmutableOccurrence.
func (r *OccurrenceRepository) UpdateOccurrence(ctx context.Context, occurrence persistence.JobOccurrence) error {
	if occurrence.EstimatedDuration <= 0 {
		return persistence.ErrConstraintViolation
	}
	return r.store.WithTransaction(ctx, func(tx *sql.Tx) error {
		var currentStatus, currentScheduled string
		err := tx.QueryRow(`SELECT status, scheduled_at FROM job_occurrences WHERE id = ?`, occurrence.ID).
			Scan(&currentStatus, &currentScheduled)
		if err != nil {
			return mapError(err)
		}
		if persistence.ScheduleFrozen(persistence.JobStatus(currentStatus)) && currentScheduled != formatTime(occurrence.ScheduledAt) {
			return persistence.ErrImmutableOccurrence
		}

		query := `UPDATE job_occurrences SET template_id = ?, customer_id = ?, title = ?, job_type = ?,
			scheduled_at = ?, estimated_minutes = ?, status = ?, required_skills = ?, required_headcount = ?,
			address = ?, city = ?, postal_code = ?, lat = ?, lng = ?,
			cost_labor = ?, cost_transport = ?, cost_equipment = ?, updated_at = ?
			WHERE id = ?`
		_, err = tx.Exec(query,
			nullString(occurrence.TemplateID),
			occurrence.CustomerID,
			occurrence.Title,
			occurrence.JobType,
			formatTime(occurrence.ScheduledAt),
			int(occurrence.EstimatedDuration.Minutes()),
			string(occurrence.Status),
			joinList(occurrence.RequiredSkills),
			occurrence.RequiredHeadcount,
			occurrence.Location.Address,
			occurrence.Location.City,
			occurrence.Location.PostalCode,
			occurrence.Location.Coordinate.Lat,
			occurrence.Location.Coordinate.Lng,
			occurrence.Cost.Labor,
			occurrence.Cost.Transport,
			occurrence.Cost.Equipment,
			formatTime(occurrence.UpdatedAt),
			occurrence.ID,
		)
		return mapError(err)
	})
}

// UpdateOccurrenceStatus transitions just the lifecycle status.
func (r *OccurrenceRepository) UpdateOccurrenceStatus(ctx context.Context, id string, status persistence.JobStatus, updatedAt time.Time) error {
	result, err := r.store.db.ExecContext(ctx,
		`UPDATE job_occurrences SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(updatedAt), id,
	)
	if err != nil {
		return mapError(err)
	}
	return requireRowAffected(result)
}

// DeleteOccurrence removes an occurrence and, through cascades, its
// assignments and calendar link.
func (r *OccurrenceRepository) DeleteOccurrence(ctx context.Context, id string) error {
	result, err := r.store.db.ExecContext(ctx, `DELETE FROM job_occurrences WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	return requireRowAffected(result)
}

func (r *OccurrenceRepository) list(ctx context.Context, query string, args ...any) ([]persistence.JobOccurrence, error) {
	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	occurrences := make([]persistence.JobOccurrence, 0)
	for rows.Next() {
		occurrence, err := scanOccurrence(rows)
		if err != nil {
			return nil, err
		}
		occurrences = append(occurrences, occurrence)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	if err := r.attachMembers(ctx, occurrences); err != nil {
		return nil, err
	}
	return occurrences, nil
}

// attachMembers fills AssignedMemberIDs from the assignments table.
func (r *OccurrenceRepository) attachMembers(ctx context.Context, occurrences []persistence.JobOccurrence) error {
	for i := range occurrences {
		members, err := r.memberIDs(ctx, occurrences[i].ID)
		if err != nil {
			return err
		}
		occurrences[i].AssignedMemberIDs = members
	}
	return nil
}

func (r *OccurrenceRepository) memberIDs(ctx context.Context, occurrenceID string) ([]string, error) {
	rows, err := r.store.db.QueryContext(ctx,
		`SELECT member_id FROM assignments WHERE occurrence_id = ? ORDER BY member_id`, occurrenceID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		members = append(members, id)
	}
	return members, mapError(rows.Err())
}

func scanOccurrence(row rowScanner) (persistence.JobOccurrence, error) {
	var (
		occurrence  persistence.JobOccurrence
		templateID  sql.NullString
		scheduledAt string
		minutes     int
		status      string
		skills      string
		createdAt   string
		updatedAt   string
	)
	err := row.Scan(
		&occurrence.ID,
		&templateID,
		&occurrence.CustomerID,
		&occurrence.Title,
		&occurrence.JobType,
		&scheduledAt,
		&minutes,
		&status,
		&skills,
		&occurrence.RequiredHeadcount,
		&occurrence.Location.Address,
		&occurrence.Location.City,
		&occurrence.Location.PostalCode,
		&occurrence.Location.Coordinate.Lat,
		&occurrence.Location.Coordinate.Lng,
		&occurrence.Cost.Labor,
		&occurrence.Cost.Transport,
		&occurrence.Cost.Equipment,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.JobOccurrence{}, mapError(err)
	}

	occurrence.TemplateID = templateID.String
	occurrence.EstimatedDuration = time.Duration(minutes) * time.Minute
	occurrence.Status = persistence.JobStatus(status)
	occurrence.RequiredSkills = splitList(skills)

	if occurrence.ScheduledAt, err = parseTime(scheduledAt); err != nil {
		return persistence.JobOccurrence{}, err
	}
	if occurrence.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.JobOccurrence{}, err
	}
	if occurrence.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.JobOccurrence{}, err
	}
	return occurrence, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
