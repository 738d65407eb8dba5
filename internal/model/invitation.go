package model

import "time"

// Invitation statuses.  Only CREATED invitations may be cancelled by
// their owner; SENT means the ticket has already been delivered.
const (
	InvitationCreated = "CREATED"
	InvitationSent    = "SENT"
	InvitationRevoked = "REVOKED"
)

// Invitation is one guest slot consumed by a graduate for an event.
// Every invitation carries exactly one ticket.
//
// Fields:
//  ID         – primary key identifier.
//  GraduateID – graduate who issued the invitation.
//  EventID    – event the guest is invited to.
//  Status     – CREATED, SENT or REVOKED.
//  CreatedAt  – issuance timestamp.
type Invitation struct {
	ID         uint64    `json:"id"`          // invitations.id
	GraduateID uint64    `json:"graduate_id"` // invitations.graduate_id
	EventID    uint64    `json:"event_id"`    // invitations.event_id
	Status     string    `json:"status"`      // invitations.status
	CreatedAt  time.Time `json:"created_at"`  // invitations.created_at
}

// IsCancellable reports whether the owner may still withdraw it.
func (i Invitation) IsCancellable() bool { return i.Status == InvitationCreated }
