// Package service holds the admission use cases: issuing and
// cancelling invitations, revoking tickets, validating scans and
// recording them for audit.
package service

import (
	"context"
	"time"

	"github.com/iliyamo/ceremony-admission/internal/model"
)

// TicketStore is the ticket persistence used by scanning and revocation.
// Lookups report a missing ticket with repository.ErrTicketNotFound.
// MarkAsUsed returns nil without error when the ticket was already used
// and a non-nil ticket (at least ID and UsedAt) when this call used it.
type TicketStore interface {
	FindByID(ctx context.Context, id uint64) (*model.Ticket, error)
	FindByNonce(ctx context.Context, nonce string) (*model.Ticket, error)
	MarkAsUsed(ctx context.Context, id uint64, at time.Time) (*model.Ticket, error)
	Revoke(ctx context.Context, id uint64, at time.Time) (bool, error)
}

type Signer interface {
	Sign(ctx context.Context, payload any) (string, error)
}

type Verifier interface {
	Verify(ctx context.Context, payload any, signature string) (bool, error)
}

// AuditSink persists scan records.  repository.ScanRepo writes them
// directly; queue.ScanPublisher hands them to a broker.
type AuditSink interface {
	Append(ctx context.Context, rec model.ScanRecord) error
}
