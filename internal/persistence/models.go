package persistence

import "time"

// JobStatus tracks the lifecycle of a job occurrence.
type JobStatus string

const (
	JobStatusScheduled   JobStatus = "scheduled"
	JobStatusConfirmed   JobStatus = "confirmed"
	JobStatusInProgress  JobStatus = "in_progress"
	JobStatusCompleted   JobStatus = "completed"
	JobStatusCancelled   JobStatus = "cancelled"
	JobStatusNoShow      JobStatus = "no_show"
	JobStatusRescheduled JobStatus = "rescheduled"
	JobStatusPaused      JobStatus = "paused"
)

// ScheduleFrozen reports whether the status forbids moving the occurrence's
// scheduled time. Dispatch may still assign a crew to a frozen occurrence;
// only the start time is locked.
func ScheduleFrozen(status JobStatus) bool {
	switch status {
	case JobStatusConfirmed, JobStatusInProgress, JobStatusCompleted:
		return true
	default:
		return false
	}
}

// Coordinate is a WGS84 point used for route planning.
type Coordinate struct {
	Lat float64
	Lng float64
}

// Location describes where a job takes place.
type Location struct {
	Address    string
	City       string
	PostalCode string
	Coordinate Coordinate
}

// JobTemplate is a recurring job definition. Once occurrences have been
// materialized for a date range the template is treated as immutable for that
// range; edits only affect future, not-yet-materialized occurrences.
type JobTemplate struct {
	ID                string
	CustomerID        string
	Title             string
	JobType           string
	Frequency         string
	Interval          int
	Weekdays          []time.Weekday
	StartsAt          time.Time
	EndsOn            *time.Time
	MaxOccurrences    int
	SkipHolidays      bool
	AutoConfirm       bool
	EstimatedDuration time.Duration
	RequiredSkills    []string
	RequiredHeadcount int
	Location          Location
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CostBreakdown itemizes the estimated cost of a single occurrence.
type CostBreakdown struct {
	Labor     float64
	Transport float64
	Equipment float64
}

// Total returns the summed cost across all items.
func (c CostBreakdown) Total() float64 {
	return c.Labor + c.Transport + c.Equipment
}

// JobOccurrence is one concrete, schedulable unit of work. TemplateID is
// empty for one-off jobs created directly by a caller.
type JobOccurrence struct {
	ID                string
	TemplateID        string
	CustomerID        string
	Title             string
	JobType           string
	ScheduledAt       time.Time
	EstimatedDuration time.Duration
	Status            JobStatus
	AssignedMemberIDs []string
	RequiredSkills    []string
	RequiredHeadcount int
	Location          Location
	Cost              CostBreakdown
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AvailabilityWindow is one entry of a team member's weekly availability
// template. Start and End are minutes since midnight on the given weekday.
type AvailabilityWindow struct {
	Weekday   time.Weekday
	Start     int
	End       int
	Available bool
}

// TeamMember is an employee that occurrences can be dispatched to.
type TeamMember struct {
	ID           string
	Name         string
	Role         string
	Skills       []string
	HourlyRate   float64
	Availability []AvailabilityWindow
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Assignment relates one team member to one job occurrence on one date.
// At most one active assignment may exist per member and overlapping time
// window; the store enforces this when an assignment is committed.
type Assignment struct {
	ID           string
	OccurrenceID string
	MemberID     string
	Date         time.Time
	Start        time.Time
	End          time.Time
	CreatedAt    time.Time
}

// CalendarLink joins a job occurrence to an external calendar event. It is
// the unique reconciliation key: no two occurrences may map to the same
// external event.
type CalendarLink struct {
	OccurrenceID string
	EventID      string
	Fingerprint  string
	SyncedAt     time.Time
}
