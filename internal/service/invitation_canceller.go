package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/ceremony-admission/internal/model"
	"github.com/iliyamo/ceremony-admission/internal/repository"
)

// InvitationCanceller lets a graduate withdraw an invitation that has
// not been sent yet.  The slot is returned to the quota and the
// invitation's ticket stops admitting.
type InvitationCanceller struct {
	db          *sql.DB
	graduates   *repository.GraduateRepo
	invitations *repository.InvitationRepo
	tickets     *repository.TicketRepo
	now         func() time.Time
	log         *zap.Logger
}

func NewInvitationCanceller(db *sql.DB, graduates *repository.GraduateRepo, invitations *repository.InvitationRepo,
	tickets *repository.TicketRepo, now func() time.Time, log *zap.Logger) *InvitationCanceller {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &InvitationCanceller{db: db, graduates: graduates, invitations: invitations, tickets: tickets, now: now, log: log}
}

// Execute cancels invitationID on behalf of graduateID.  Invitations
// owned by somebody else are reported as not found.
func (c *InvitationCanceller) Execute(ctx context.Context, graduateID, invitationID uint64) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return internalErr("begin transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	inv, err := c.invitations.GetForUpdateTx(ctx, tx, invitationID)
	if errors.Is(err, repository.ErrInvitationNotFound) {
		return ErrInvitationNotFound
	}
	if err != nil {
		return internalErr("load invitation", err)
	}
	if inv.GraduateID != graduateID {
		return ErrInvitationNotFound
	}
	if !inv.IsCancellable() {
		return ErrInvitationNotCancellable
	}

	if err := c.invitations.UpdateStatusTx(ctx, tx, inv.ID, model.InvitationRevoked); err != nil {
		return internalErr("update invitation", err)
	}
	revoked, err := c.tickets.RevokeByInvitationTx(ctx, tx, inv.ID, c.now())
	if err != nil {
		return internalErr("revoke tickets", err)
	}
	if err := c.graduates.ReleaseSlotTx(ctx, tx, graduateID); err != nil {
		return internalErr("release slot", err)
	}
	if err := tx.Commit(); err != nil {
		return internalErr("commit", err)
	}
	committed = true

	c.log.Info("invitation cancelled",
		zap.Uint64("graduate_id", graduateID),
		zap.Uint64("invitation_id", inv.ID),
		zap.Int64("tickets_revoked", revoked))
	return nil
}
