package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/ceremony-admission/internal/model"
)

// GraduateRepo provides access to the graduates table and its slot
// counters.  Counter changes are expressed as guarded UPDATEs so the
// quota holds even without the row lock taken by GetForUpdateTx.
type GraduateRepo struct {
	db *sql.DB
}

// NewGraduateRepo returns a new GraduateRepo bound to the given database.
func NewGraduateRepo(db *sql.DB) *GraduateRepo { return &GraduateRepo{db: db} }

const graduateColumns = `id, user_id, slots_allowed, slots_used`

func scanGraduate(row rowScanner) (*model.Graduate, error) {
	var g model.Graduate
	if err := row.Scan(&g.ID, &g.UserID, &g.SlotsAllowed, &g.SlotsUsed); err != nil {
		return nil, notFound(err, ErrGraduateNotFound)
	}
	return &g, nil
}

// GetByUserID resolves the graduate profile of an authenticated account.
// It returns ErrGraduateNotFound when the account has none.
func (r *GraduateRepo) GetByUserID(ctx context.Context, userID uint64) (*model.Graduate, error) {
	return scanGraduate(r.db.QueryRowContext(ctx, `SELECT `+graduateColumns+` FROM graduates WHERE user_id = ?`, userID))
}

// GetForUpdateTx reads the graduate and locks the row until tx ends,
// serialising concurrent issuance for the same graduate.
func (r *GraduateRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Graduate, error) {
	return scanGraduate(tx.QueryRowContext(ctx, `SELECT `+graduateColumns+` FROM graduates WHERE id = ? FOR UPDATE`, id))
}

// IncrementSlotsTx consumes one slot.  ErrConflict means the quota was
// already full.
func (r *GraduateRepo) IncrementSlotsTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE graduates SET slots_used = slots_used + 1 WHERE id = ? AND slots_used < slots_allowed`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// ReleaseSlotTx gives one slot back.  The counter never drops below zero.
func (r *GraduateRepo) ReleaseSlotTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE graduates SET slots_used = slots_used - 1 WHERE id = ? AND slots_used > 0`, id)
	return err
}
