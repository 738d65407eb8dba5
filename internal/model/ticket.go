package model

import "time"

// TicketLifetime is how long a ticket stays valid after issuance.
const TicketLifetime = 24 * time.Hour

// QRPayload is the signed content embedded in a ticket's QR code.
// Field order is fixed, which keeps its JSON encoding canonical.
type QRPayload struct {
	EventID  uint64 `json:"eventId"`
	TicketID uint64 `json:"ticketId"`
	Nonce    string `json:"nonce"`
	IssuedAt string `json:"issuedAt"`
}

// Ticket is the admission credential for one invitation.
//
// Fields:
//  ID           – primary key identifier.
//  InvitationID – invitation this ticket belongs to.
//  Payload      – signed QR payload (tickets.qr_payload, JSON).
//  Signature    – lowercase hex HMAC of the canonical payload.
//  Nonce        – unique random identifier, used for scan lookups.
//  IssuedAt     – issuance timestamp; expiry is derived from it.
//  UsedAt       – set exactly once, at successful admission.
//  RevokedAt    – set by an administrator or by cancellation.
type Ticket struct {
	ID           uint64     // tickets.id
	InvitationID uint64     // tickets.invitation_id
	Payload      QRPayload  // tickets.qr_payload
	Signature    string     // tickets.signature
	Nonce        string     // tickets.nonce
	IssuedAt     time.Time  // tickets.issued_at
	UsedAt       *time.Time // tickets.used_at (nullable)
	RevokedAt    *time.Time // tickets.revoked_at (nullable)
}

func (t Ticket) IsUsed() bool    { return t.UsedAt != nil }
func (t Ticket) IsRevoked() bool { return t.RevokedAt != nil }

// IsExpired reports whether issuedAt+24h lies strictly before now.
func (t Ticket) IsExpired(now time.Time) bool {
	return t.IssuedAt.Add(TicketLifetime).Before(now)
}

// CanBeUsed combines the three admission preconditions.
func (t Ticket) CanBeUsed(now time.Time) bool {
	return !t.IsUsed() && !t.IsRevoked() && !t.IsExpired(now)
}
