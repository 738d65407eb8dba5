package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/ceremony-admission/internal/model"
	"github.com/iliyamo/ceremony-admission/internal/repository"
)

// IssuedInvitation is the result of a successful issuance.
type IssuedInvitation struct {
	Invitation model.Invitation
	Ticket     model.Ticket
}

// InvitationIssuer creates an invitation and its signed ticket while
// consuming one of the graduate's slots.  All writes share one
// transaction; a failure at any step leaves nothing behind.
type InvitationIssuer struct {
	db          *sql.DB
	graduates   *repository.GraduateRepo
	events      *repository.EventRepo
	invitations *repository.InvitationRepo
	tickets     *repository.TicketRepo
	signer      Signer
	now         func() time.Time
	newNonce    func() string
	log         *zap.Logger
}

// IssuerOption customises an InvitationIssuer.
type IssuerOption func(*InvitationIssuer)

func WithIssuerClock(now func() time.Time) IssuerOption {
	return func(i *InvitationIssuer) { i.now = now }
}

// WithNonceSource replaces the default random UUID nonces.
func WithNonceSource(f func() string) IssuerOption {
	return func(i *InvitationIssuer) { i.newNonce = f }
}

func WithIssuerLogger(l *zap.Logger) IssuerOption {
	return func(i *InvitationIssuer) { i.log = l }
}

func NewInvitationIssuer(db *sql.DB, graduates *repository.GraduateRepo, events *repository.EventRepo,
	invitations *repository.InvitationRepo, tickets *repository.TicketRepo, signer Signer, opts ...IssuerOption) *InvitationIssuer {
	i := &InvitationIssuer{
		db:          db,
		graduates:   graduates,
		events:      events,
		invitations: invitations,
		tickets:     tickets,
		signer:      signer,
		now:         time.Now,
		newNonce:    uuid.NewString,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Execute issues one invitation for graduateID to eventID.  The
// graduate row stays locked for the whole transaction, so concurrent
// requests from the same graduate are serialised and cannot exceed
// the quota.
func (i *InvitationIssuer) Execute(ctx context.Context, graduateID, eventID uint64) (*IssuedInvitation, error) {
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, internalErr("begin transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	graduate, err := i.graduates.GetForUpdateTx(ctx, tx, graduateID)
	if errors.Is(err, repository.ErrGraduateNotFound) {
		return nil, ErrGraduateNotFound
	}
	if err != nil {
		return nil, internalErr("load graduate", err)
	}
	if !graduate.HasAvailableSlots() {
		return nil, ErrSlotsExhausted
	}

	event, err := i.events.GetByIDTx(ctx, tx, eventID)
	if errors.Is(err, repository.ErrEventNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, internalErr("load event", err)
	}
	if !event.IsActive() {
		return nil, ErrEventNotActive
	}

	// MySQL DATETIME(6) keeps microseconds; truncating here makes the
	// stored issued_at equal to the signed one.
	now := i.now().UTC().Truncate(time.Microsecond)

	inv := model.Invitation{GraduateID: graduate.ID, EventID: event.ID, Status: model.InvitationCreated, CreatedAt: now}
	if err := i.invitations.CreateTx(ctx, tx, &inv); err != nil {
		return nil, internalErr("create invitation", err)
	}

	ticket := model.Ticket{InvitationID: inv.ID, Nonce: i.newNonce(), IssuedAt: now}
	if err := i.tickets.CreateTx(ctx, tx, &ticket); err != nil {
		return nil, internalErr("create ticket", err)
	}
	ticket.Payload = model.QRPayload{
		EventID:  event.ID,
		TicketID: ticket.ID,
		Nonce:    ticket.Nonce,
		IssuedAt: now.Format(time.RFC3339Nano),
	}
	ticket.Signature, err = i.signer.Sign(ctx, ticket.Payload)
	if err != nil {
		return nil, internalErr("sign ticket", err)
	}
	if err := i.tickets.UpdateQRTx(ctx, tx, ticket.ID, ticket.Payload, ticket.Signature); err != nil {
		return nil, internalErr("store ticket signature", err)
	}

	if err := i.graduates.IncrementSlotsTx(ctx, tx, graduate.ID); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrSlotsExhausted
		}
		return nil, internalErr("consume slot", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, internalErr("commit", err)
	}
	committed = true

	i.log.Info("invitation issued",
		zap.Uint64("graduate_id", graduate.ID),
		zap.Uint64("event_id", event.ID),
		zap.Uint64("invitation_id", inv.ID),
		zap.Uint64("ticket_id", ticket.ID))
	return &IssuedInvitation{Invitation: inv, Ticket: ticket}, nil
}
