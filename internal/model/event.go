package model

import "time"

// Event statuses.
const (
	EventActive    = "ACTIVE"
	EventInactive  = "INACTIVE"
	EventCancelled = "CANCELLED"
)

// Event is a ceremony that invitations are issued for.  Only ACTIVE
// events accept new invitations.
type Event struct {
	ID     uint64    // events.id
	Name   string    // events.name
	Date   time.Time // events.date
	Status string    // events.status
}

// IsActive reports whether the event is open for invitations.
func (e Event) IsActive() bool { return e.Status == EventActive }
