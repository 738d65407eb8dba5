package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/ceremony-admission/internal/model"
)

// ScanRepo appends to and reads from the scans audit table.  Rows are
// never updated or deleted.
type ScanRepo struct {
	db *sql.DB
}

func NewScanRepo(db *sql.DB) *ScanRepo { return &ScanRepo{db: db} }

// Append inserts one audit row.
func (r *ScanRepo) Append(ctx context.Context, rec model.ScanRecord) error {
	var ticketID sql.NullInt64
	if rec.TicketID != nil {
		ticketID = sql.NullInt64{Int64: int64(*rec.TicketID), Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO scans (ticket_id, device_id, scanned_at, verdict, offline_retry) VALUES (?, ?, ?, ?, ?)`,
		ticketID, rec.DeviceID, rec.ScannedAt.UTC(), string(rec.Verdict), rec.OfflineRetry)
	return err
}

// ListByTicket returns the scan history of a ticket, oldest first.
func (r *ScanRepo) ListByTicket(ctx context.Context, ticketID uint64) ([]model.ScanRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, ticket_id, device_id, scanned_at, verdict, offline_retry FROM scans WHERE ticket_id = ? ORDER BY scanned_at, id`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.ScanRecord{}
	for rows.Next() {
		var (
			rec     model.ScanRecord
			tid     sql.NullInt64
			verdict string
		)
		if err := rows.Scan(&rec.ID, &tid, &rec.DeviceID, &rec.ScannedAt, &verdict, &rec.OfflineRetry); err != nil {
			return nil, err
		}
		if tid.Valid {
			id := uint64(tid.Int64)
			rec.TicketID = &id
		}
		rec.Verdict = model.ScanStatus(verdict)
		out = append(out, rec)
	}
	return out, rows.Err()
}
