// Package calendarsync reconciles the internal job occurrence store with an
// external calendar service, resolving create/update/delete divergence
// idempotently.
package calendarsync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Event is the external calendar's view of a booking. ID is the opaque
// identifier assigned by the calendar service.
type Event struct {
	ID        string
	Title     string
	Start     time.Time
	End       time.Time
	Location  string
	UpdatedAt time.Time
}

// ExternalCalendar is the only network-facing dependency of the reconciler.
// Implementations must key every operation by the opaque event id.
type ExternalCalendar interface {
	ListEvents(ctx context.Context, from, to time.Time) ([]Event, error)
	CreateEvent(ctx context.Context, event Event) (Event, error)
	UpdateEvent(ctx context.Context, event Event) (Event, error)
	DeleteEvent(ctx context.Context, eventID string) error
}

// Fingerprint condenses the sync-relevant fields (time, title, location)
// into a stable digest. A link whose stored fingerprint matches both sides
// needs no work, which is what makes repeated runs idempotent.
func Fingerprint(title string, start, end time.Time, location string) string {
	payload := fmt.Sprintf("%s|%s|%s|%s",
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
		title,
		location,
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
