package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/ceremony-admission/internal/model"
	"github.com/iliyamo/ceremony-admission/internal/qrcodec"
)

// ScanAuditLog records every scan attempt after its verdict has been
// decided.  Recording is best effort: a failing sink is logged and
// never changes what the scanning device receives.
type ScanAuditLog struct {
	sink      AuditSink
	log       *zap.Logger
	now       func() time.Time
	async     bool
	timeout   time.Duration
	onFailure func()
	wg        sync.WaitGroup
}

// AuditOption customises a ScanAuditLog.
type AuditOption func(*ScanAuditLog)

// WithAsync makes Record return immediately and write in the background.
func WithAsync(timeout time.Duration) AuditOption {
	return func(a *ScanAuditLog) {
		a.async = true
		if timeout > 0 {
			a.timeout = timeout
		}
	}
}

func WithAuditClock(now func() time.Time) AuditOption {
	return func(a *ScanAuditLog) { a.now = now }
}

func WithAuditLogger(l *zap.Logger) AuditOption {
	return func(a *ScanAuditLog) { a.log = l }
}

// WithFailureHook registers a callback invoked when a write fails.
func WithFailureHook(f func()) AuditOption {
	return func(a *ScanAuditLog) { a.onFailure = f }
}

func NewScanAuditLog(sink AuditSink, opts ...AuditOption) *ScanAuditLog {
	a := &ScanAuditLog{sink: sink, log: zap.NewNop(), now: time.Now, timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Record appends one audit row.  The ticket id is read from the QR
// string when possible and left empty otherwise.
func (a *ScanAuditLog) Record(ctx context.Context, qr, deviceID string, verdict model.ScanStatus, offlineRetry bool) {
	rec := model.ScanRecord{
		TicketID:     qrcodec.PeekTicketID(qr),
		DeviceID:     deviceID,
		ScannedAt:    a.now().UTC(),
		Verdict:      verdict,
		OfflineRetry: offlineRetry,
	}
	if !a.async {
		a.write(ctx, rec)
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()
		a.write(bg, rec)
	}()
}

// Wait blocks until background writes have finished.
func (a *ScanAuditLog) Wait() { a.wg.Wait() }

func (a *ScanAuditLog) write(ctx context.Context, rec model.ScanRecord) {
	if err := a.sink.Append(ctx, rec); err != nil {
		a.log.Warn("scan audit write failed",
			zap.String("device_id", rec.DeviceID),
			zap.String("verdict", string(rec.Verdict)),
			zap.Error(err))
		if a.onFailure != nil {
			a.onFailure()
		}
	}
}
