package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/cleaning-dispatch/internal/persistence"
)

// TemplateRepository implements persistence.TemplateRepository.
type TemplateRepository struct {
	store *Store
}

// NewTemplateRepository binds the repository to a store.
func NewTemplateRepository(store *Store) *TemplateRepository {
	return &TemplateRepository{store: store}
}

const templateColumns = `id, customer_id, title, job_type, frequency, interval, weekdays,
	starts_at, ends_on, max_occurrences, skip_holidays, auto_confirm, estimated_minutes,
	required_skills, required_headcount, address, city, postal_code, lat, lng, created_at, updated_at`

// CreateTemplate inserts a new template.
func (r *TemplateRepository) CreateTemplate(ctx context.Context, template persistence.JobTemplate) error {
	if template.ID == "" {
		return persistence.ErrConstraintViolation
	}
	query := `INSERT INTO job_templates (` + templateColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.store.db.ExecContext(ctx, query,
		template.ID,
		template.CustomerID,
		template.Title,
		template.JobType,
		template.Frequency,
		template.Interval,
		joinWeekdays(template.Weekdays),
		formatTime(template.StartsAt),
		nullTime(template.EndsOn),
		template.MaxOccurrences,
		boolInt(template.SkipHolidays),
		boolInt(template.AutoConfirm),
		int(template.EstimatedDuration.Minutes()),
		joinList(template.RequiredSkills),
		template.RequiredHeadcount,
		template.Location.Address,
		template.Location.City,
		template.Location.PostalCode,
		template.Location.Coordinate.Lat,
		template.Location.Coordinate.Lng,
		formatTime(template.CreatedAt),
		formatTime(template.UpdatedAt),
	)
	return mapError(err)
}

// GetTemplate fetches a template by id.
func (r *TemplateRepository) GetTemplate(ctx context.Context, id string) (persistence.JobTemplate, error) {
	row := r.store.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM job_templates WHERE id = ?`, id)
	return scanTemplate(row)
}

// ListTemplates enumerates all templates ordered by start date then id.
func (r *TemplateRepository) ListTemplates(ctx context.Context) ([]persistence.JobTemplate, error) {
	rows, err := r.store.db.QueryContext(ctx, `SELECT `+templateColumns+` FROM job_templates ORDER BY starts_at, id`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	templates := make([]persistence.JobTemplate, 0)
	for rows.Next() {
		template, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, template)
	}
	return templates, mapError(rows.Err())
}

// UpdateTemplate replaces an existing template. Edits only influence future,
// not-yet-materialized occurrences; already created occurrences keep their
// schedule.
func (r *TemplateRepository) UpdateTemplate(ctx context.Context, template persistence.JobTemplate) error {
	query := `UPDATE job_templates SET customer_id = ?, title = ?, job_type = ?, frequency = ?,
		interval = ?, weekdays = ?, starts_at = ?, ends_on = ?, max_occurrences = ?,
		skip_holidays = ?, auto_confirm = ?, estimated_minutes = ?, required_skills = ?,
		required_headcount = ?, address = ?, city = ?, postal_code = ?, lat = ?, lng = ?, updated_at = ?
		WHERE id = ?`
	result, err := r.store.db.ExecContext(ctx, query,
		template.CustomerID,
		template.Title,
		template.JobType,
		template.Frequency,
		template.Interval,
		joinWeekdays(template.Weekdays),
		formatTime(template.StartsAt),
		nullTime(template.EndsOn),
		template.MaxOccurrences,
		boolInt(template.SkipHolidays),
		boolInt(template.AutoConfirm),
		int(template.EstimatedDuration.Minutes()),
		joinList(template.RequiredSkills),
		template.RequiredHeadcount,
		template.Location.Address,
		template.Location.City,
		template.Location.PostalCode,
		template.Location.Coordinate.Lat,
		template.Location.Coordinate.Lng,
		formatTime(template.UpdatedAt),
		template.ID,
	)
	if err != nil {
		return mapError(err)
	}
	return requireRowAffected(result)
}

// DeleteTemplate removes a template. Occurrences keep a null template
// reference afterwards.
func (r *TemplateRepository) DeleteTemplate(ctx context.Context, id string) error {
	result, err := r.store.db.ExecContext(ctx, `DELETE FROM job_templates WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	return requireRowAffected(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (persistence.JobTemplate, error) {
	var (
		template     persistence.JobTemplate
		weekdays     string
		startsAt     string
		endsOn       sql.NullString
		skipHolidays int
		autoConfirm  int
		minutes      int
		skills       string
		createdAt    string
		updatedAt    string
	)
	err := row.Scan(
		&template.ID,
		&template.CustomerID,
		&template.Title,
		&template.JobType,
		&template.Frequency,
		&template.Interval,
		&weekdays,
		&startsAt,
		&endsOn,
		&template.MaxOccurrences,
		&skipHolidays,
		&autoConfirm,
		&minutes,
		&skills,
		&template.RequiredHeadcount,
		&template.Location.Address,
		&template.Location.City,
		&template.Location.PostalCode,
		&template.Location.Coordinate.Lat,
		&template.Location.Coordinate.Lng,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.JobTemplate{}, mapError(err)
	}

	template.Weekdays = splitWeekdays(weekdays)
	template.SkipHolidays = skipHolidays != 0
	template.AutoConfirm = autoConfirm != 0
	template.EstimatedDuration = time.Duration(minutes) * time.Minute
	template.RequiredSkills = splitList(skills)

	if template.StartsAt, err = parseTime(startsAt); err != nil {
		return persistence.JobTemplate{}, err
	}
	if endsOn.Valid {
		t, err := parseTime(endsOn.String)
		if err != nil {
			return persistence.JobTemplate{}, err
		}
		template.EndsOn = &t
	}
	if template.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.JobTemplate{}, err
	}
	if template.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.JobTemplate{}, err
	}
	return template, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRowAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
