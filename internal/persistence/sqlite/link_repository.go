package sqlite

import (
	"context"

	"github.com/example/cleaning-dispatch/internal/persistence"
)

// LinkRepository implements persistence.LinkRepository.
type LinkRepository struct {
	store *Store
}

// NewLinkRepository binds the repository to a store.
func NewLinkRepository(store *Store) *LinkRepository {
	return &LinkRepository{store: store}
}

// SaveLink upserts the link for an occurrence. The unique index on event_id
// rejects mapping two occurrences to the same external event with
// ErrDuplicate.
func (r *LinkRepository) SaveLink(ctx context.Context, link persistence.CalendarLink) error {
	if link.OccurrenceID == "" || link.EventID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO calendar_links (occurrence_id, event_id, fingerprint, synced_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(occurrence_id) DO UPDATE SET
			event_id = excluded.event_id,
			fingerprint = excluded.fingerprint,
			synced_at = excluded.synced_at`,
		link.OccurrenceID,
		link.EventID,
		link.Fingerprint,
		formatTime(link.SyncedAt),
	)
	return mapError(err)
}

// GetLinkByOccurrence fetches the link of an occurrence.
func (r *LinkRepository) GetLinkByOccurrence(ctx context.Context, occurrenceID string) (persistence.CalendarLink, error) {
	row := r.store.db.QueryRowContext(ctx,
		`SELECT occurrence_id, event_id, fingerprint, synced_at FROM calendar_links WHERE occurrence_id = ?`,
		occurrenceID)
	var (
		link     persistence.CalendarLink
		syncedAt string
	)
	if err := row.Scan(&link.OccurrenceID, &link.EventID, &link.Fingerprint, &syncedAt); err != nil {
		return persistence.CalendarLink{}, mapError(err)
	}
	var err error
	if link.SyncedAt, err = parseTime(syncedAt); err != nil {
		return persistence.CalendarLink{}, err
	}
	return link, nil
}

// ListLinks enumerates links whose occurrences are scheduled inside the
// range, ordered by occurrence id.
func (r *LinkRepository) ListLinks(ctx context.Context, dateRange persistence.DateRange) ([]persistence.CalendarLink, error) {
	rows, err := r.store.db.QueryContext(ctx,
		`SELECT l.occurrence_id, l.event_id, l.fingerprint, l.synced_at
		FROM calendar_links l
		JOIN job_occurrences o ON o.id = l.occurrence_id
		WHERE o.scheduled_at >= ? AND o.scheduled_at < ?
		ORDER BY l.occurrence_id`,
		formatTime(dateRange.From), formatTime(dateRange.To))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	links := make([]persistence.CalendarLink, 0)
	for rows.Next() {
		var (
			link     persistence.CalendarLink
			syncedAt string
		)
		if err := rows.Scan(&link.OccurrenceID, &link.EventID, &link.Fingerprint, &syncedAt); err != nil {
			return nil, err
		}
		if link.SyncedAt, err = parseTime(syncedAt); err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, mapError(rows.Err())
}

// DeleteLink removes the link of an occurrence. Deleting an absent link is
// not an error; reconciliation retries depend on that.
func (r *LinkRepository) DeleteLink(ctx context.Context, occurrenceID string) error {
	_, err := r.store.db.ExecContext(ctx, `DELETE FROM calendar_links WHERE occurrence_id = ?`, occurrenceID)
	return mapError(err)
}
