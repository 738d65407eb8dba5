package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/ceremony-admission/internal/model"
)

// InvitationRepo provides access to the invitations table.
type InvitationRepo struct {
	db *sql.DB
}

// NewInvitationRepo returns a new InvitationRepo bound to the given database.
func NewInvitationRepo(db *sql.DB) *InvitationRepo { return &InvitationRepo{db: db} }

const invitationColumns = `id, graduate_id, event_id, status, created_at`

func scanInvitation(row rowScanner) (*model.Invitation, error) {
	var inv model.Invitation
	if err := row.Scan(&inv.ID, &inv.GraduateID, &inv.EventID, &inv.Status, &inv.CreatedAt); err != nil {
		return nil, err
	}
	return &inv, nil
}

// CreateTx inserts inv and populates its generated ID.  The caller
// supplies Status and CreatedAt.
func (r *InvitationRepo) CreateTx(ctx context.Context, tx *sql.Tx, inv *model.Invitation) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO invitations (graduate_id, event_id, status, created_at) VALUES (?, ?, ?, ?)`,
		inv.GraduateID, inv.EventID, inv.Status, inv.CreatedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	inv.ID = uint64(id)
	return nil
}

// GetByID returns ErrInvitationNotFound when no row matches.
func (r *InvitationRepo) GetByID(ctx context.Context, id uint64) (*model.Invitation, error) {
	inv, err := scanInvitation(r.db.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, ErrInvitationNotFound)
	}
	return inv, nil
}

// GetForUpdateTx reads and locks the invitation row.
func (r *InvitationRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Invitation, error) {
	inv, err := scanInvitation(tx.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = ? FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, ErrInvitationNotFound)
	}
	return inv, nil
}

func (r *InvitationRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status string) error {
	_, err := tx.ExecContext(ctx, `UPDATE invitations SET status = ? WHERE id = ?`, status, id)
	return err
}

// ListByGraduate returns the graduate's invitations, newest first.
func (r *InvitationRepo) ListByGraduate(ctx context.Context, graduateID uint64) ([]model.Invitation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE graduate_id = ? ORDER BY created_at DESC, id DESC`, graduateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}
