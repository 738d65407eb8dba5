package model

import "time"

// ScanStatus is the closed set of scan verdicts.  RateLimited and
// Unauthorized are only produced by the HTTP layer, never by the
// validator itself.
type ScanStatus string

const (
	ScanOK           ScanStatus = "OK"
	ScanInvalid      ScanStatus = "INVALID"
	ScanDuplicate    ScanStatus = "DUPLICATE"
	ScanRevoked      ScanStatus = "REVOKED"
	ScanExpired      ScanStatus = "EXPIRED"
	ScanError        ScanStatus = "ERROR"
	ScanRateLimited  ScanStatus = "RATE_LIMITED"
	ScanUnauthorized ScanStatus = "UNAUTHORIZED"
)

// ScanResult is what a scanning device receives.  Reason is empty for
// OK and present for every other status.
type ScanResult struct {
	Status ScanStatus `json:"status"`
	Reason string     `json:"reason,omitempty"`
}

// Admitted returns the OK verdict.
func Admitted() ScanResult { return ScanResult{Status: ScanOK} }

// Rejected builds a non-OK verdict.
func Rejected(status ScanStatus, reason string) ScanResult {
	return ScanResult{Status: status, Reason: reason}
}

// ScanRecord is an append-only audit row describing one scan attempt.
// TicketID is nil when the QR string could not be decoded far enough
// to read it.
type ScanRecord struct {
	ID           uint64     `json:"id,omitempty"`  // scans.id
	TicketID     *uint64    `json:"ticket_id"`     // scans.ticket_id (nullable)
	DeviceID     string     `json:"device_id"`     // scans.device_id
	ScannedAt    time.Time  `json:"scanned_at"`    // scans.scanned_at
	Verdict      ScanStatus `json:"verdict"`       // scans.verdict
	OfflineRetry bool       `json:"offline_retry"` // scans.offline_retry
}
