package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/ceremony-admission/internal/model"
)

// TicketRepo provides access to the tickets table.  Admission relies
// on MarkAsUsed being a single conditional UPDATE; callers must never
// emulate it with a read followed by a write.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo returns a new TicketRepo bound to the given database.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

const ticketColumns = `id, invitation_id, qr_payload, signature, nonce, issued_at, used_at, revoked_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*model.Ticket, error) {
	var (
		t       model.Ticket
		payload []byte
		used    sql.NullTime
		revoked sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.InvitationID, &payload, &t.Signature, &t.Nonce, &t.IssuedAt, &used, &revoked); err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &t.Payload); err != nil {
			return nil, fmt.Errorf("ticket %d: decode qr_payload: %w", t.ID, err)
		}
	}
	if used.Valid {
		u := used.Time
		t.UsedAt = &u
	}
	if revoked.Valid {
		r := revoked.Time
		t.RevokedAt = &r
	}
	return &t, nil
}

func notFound(err, sentinel error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel
	}
	return err
}

// FindByID returns ErrTicketNotFound when no row matches.
func (r *TicketRepo) FindByID(ctx context.Context, id uint64) (*model.Ticket, error) {
	t, err := scanTicket(r.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, ErrTicketNotFound)
	}
	return t, nil
}

// FindByNonce looks a ticket up through the unique nonce index.
func (r *TicketRepo) FindByNonce(ctx context.Context, nonce string) (*model.Ticket, error) {
	t, err := scanTicket(r.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE nonce = ?`, nonce))
	if err != nil {
		return nil, notFound(err, ErrTicketNotFound)
	}
	return t, nil
}

// ListByInvitation returns the invitation's tickets ordered by id.
func (r *TicketRepo) ListByInvitation(ctx context.Context, invitationID uint64) ([]model.Ticket, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE invitation_id = ? ORDER BY id`, invitationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// Save inserts t when it has no ID yet and otherwise overwrites the
// mutable columns.  The stored ticket is returned.
func (r *TicketRepo) Save(ctx context.Context, t *model.Ticket) (*model.Ticket, error) {
	payload, err := json.Marshal(t.Payload)
	if err != nil {
		return nil, err
	}
	if t.ID == 0 {
		res, err := r.db.ExecContext(ctx,
			`INSERT INTO tickets (invitation_id, qr_payload, signature, nonce, issued_at, used_at, revoked_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			t.InvitationID, payload, t.Signature, t.Nonce, t.IssuedAt.UTC(), nullTime(t.UsedAt), nullTime(t.RevokedAt))
		if err != nil {
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		return r.FindByID(ctx, uint64(id))
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE tickets SET qr_payload = ?, signature = ?, used_at = ?, revoked_at = ? WHERE id = ?`,
		payload, t.Signature, nullTime(t.UsedAt), nullTime(t.RevokedAt), t.ID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if err := r.exists(ctx, t.ID); err != nil {
			return nil, err
		}
	}
	return r.FindByID(ctx, t.ID)
}

// MarkAsUsed stamps used_at only if the ticket has not been used yet.
// It returns nil without error when the ticket was already used (or
// does not exist), so of any number of concurrent callers exactly one
// receives a ticket.  Once the UPDATE has matched, nothing else is
// read: the returned ticket carries only ID and UsedAt, and no later
// failure can turn a committed admission into an error.
func (r *TicketRepo) MarkAsUsed(ctx context.Context, id uint64, at time.Time) (*model.Ticket, error) {
	used := at.UTC()
	res, err := r.db.ExecContext(ctx, `UPDATE tickets SET used_at = ? WHERE id = ? AND used_at IS NULL`, used, id)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return &model.Ticket{ID: id, UsedAt: &used}, nil
}

// Revoke sets revoked_at unconditionally.  Revoking twice is harmless.
// The boolean reports whether the ticket exists.
func (r *TicketRepo) Revoke(ctx context.Context, id uint64, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE tickets SET revoked_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}
	// MySQL reports zero affected rows when the value did not change.
	err = r.exists(ctx, id)
	if errors.Is(err, ErrTicketNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *TicketRepo) exists(ctx context.Context, id uint64) error {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM tickets WHERE id = ?`, id).Scan(&one)
	return notFound(err, ErrTicketNotFound)
}

// CreateTx inserts a ticket row without its signed payload and sets
// t.ID.  The payload references the generated id, so it is written by
// UpdateQRTx once signed, inside the same transaction.
func (r *TicketRepo) CreateTx(ctx context.Context, tx *sql.Tx, t *model.Ticket) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO tickets (invitation_id, qr_payload, signature, nonce, issued_at) VALUES (?, ?, ?, ?, ?)`,
		t.InvitationID, "{}", "", t.Nonce, t.IssuedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return nil
}

// UpdateQRTx stores the signed payload of a freshly created ticket.
func (r *TicketRepo) UpdateQRTx(ctx context.Context, tx *sql.Tx, id uint64, p model.QRPayload, signature string) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE tickets SET qr_payload = ?, signature = ? WHERE id = ?`, payload, signature, id)
	return err
}

// RevokeByInvitationTx revokes every still-valid ticket of an invitation.
func (r *TicketRepo) RevokeByInvitationTx(ctx context.Context, tx *sql.Tx, invitationID uint64, at time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE tickets SET revoked_at = ? WHERE invitation_id = ? AND revoked_at IS NULL`, at.UTC(), invitationID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
