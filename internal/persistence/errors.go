package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique constraint is violated.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrConstraintViolation is returned when a check constraint fails.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrForeignKeyViolation is returned when a referenced record is missing.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
	// ErrAssignmentConflict is returned when committing an assignment that
	// overlaps an existing assignment for the same member and date.
	ErrAssignmentConflict = errors.New("persistence: assignment conflict")
	// ErrImmutableOccurrence is returned when a mutation would move the
	// scheduled time of an occurrence that is confirmed or later.
	ErrImmutableOccurrence = errors.New("persistence: occurrence schedule is immutable")
)
