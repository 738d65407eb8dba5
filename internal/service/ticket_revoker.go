package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// TicketRevoker is the administrative kill switch for a single ticket.
// The graduate's slot is not given back.
type TicketRevoker struct {
	tickets TicketStore
	now     func() time.Time
	log     *zap.Logger
}

func NewTicketRevoker(tickets TicketStore, now func() time.Time, log *zap.Logger) *TicketRevoker {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TicketRevoker{tickets: tickets, now: now, log: log}
}

// Execute revokes ticketID.  Revoking an already revoked ticket succeeds.
func (r *TicketRevoker) Execute(ctx context.Context, ticketID uint64) error {
	found, err := r.tickets.Revoke(ctx, ticketID, r.now())
	if err != nil {
		return internalErr("revoke ticket", err)
	}
	if !found {
		return ErrTicketNotFound
	}
	r.log.Info("ticket revoked", zap.Uint64("ticket_id", ticketID))
	return nil
}
