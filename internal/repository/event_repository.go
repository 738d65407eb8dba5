package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/ceremony-admission/internal/model"
)

// EventRepo reads ceremonies from the events table.
type EventRepo struct {
	db *sql.DB
}

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

const eventQuery = `SELECT id, name, date, status FROM events WHERE id = ?`

func scanEvent(row rowScanner) (*model.Event, error) {
	var e model.Event
	if err := row.Scan(&e.ID, &e.Name, &e.Date, &e.Status); err != nil {
		return nil, notFound(err, ErrEventNotFound)
	}
	return &e, nil
}

func (r *EventRepo) GetByID(ctx context.Context, id uint64) (*model.Event, error) {
	return scanEvent(r.db.QueryRowContext(ctx, eventQuery, id))
}

// GetByIDTx reads the event inside an issuance transaction.
func (r *EventRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Event, error) {
	return scanEvent(tx.QueryRowContext(ctx, eventQuery, id))
}
