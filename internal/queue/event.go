// Package queue defines message payloads exchanged over the message broker.
package queue

import (
	"fmt"
	"time"

	"github.com/iliyamo/ceremony-admission/internal/model"
)

// ScanQueueName is the durable queue carrying scan audit records.
const ScanQueueName = "scan.recorded"

// ScanRecordedEvent is published for every scan attempt once its verdict
// is known.  The consumer turns it back into a scans row.
type ScanRecordedEvent struct {
	TicketID     *uint64 `json:"ticket_id"`
	DeviceID     string  `json:"device_id"`
	ScannedAt    string  `json:"scanned_at"`
	Verdict      string  `json:"verdict"`
	OfflineRetry bool    `json:"offline_retry"`
}

func newScanRecordedEvent(rec model.ScanRecord) ScanRecordedEvent {
	return ScanRecordedEvent{
		TicketID:     rec.TicketID,
		DeviceID:     rec.DeviceID,
		ScannedAt:    rec.ScannedAt.UTC().Format(time.RFC3339Nano),
		Verdict:      string(rec.Verdict),
		OfflineRetry: rec.OfflineRetry,
	}
}

// Record converts the event back into an audit row.
func (ev ScanRecordedEvent) Record() (model.ScanRecord, error) {
	at, err := time.Parse(time.RFC3339Nano, ev.ScannedAt)
	if err != nil {
		return model.ScanRecord{}, fmt.Errorf("scanned_at: %w", err)
	}
	if ev.DeviceID == "" || ev.Verdict == "" {
		return model.ScanRecord{}, fmt.Errorf("incomplete scan event")
	}
	return model.ScanRecord{
		TicketID:     ev.TicketID,
		DeviceID:     ev.DeviceID,
		ScannedAt:    at,
		Verdict:      model.ScanStatus(ev.Verdict),
		OfflineRetry: ev.OfflineRetry,
	}, nil
}
