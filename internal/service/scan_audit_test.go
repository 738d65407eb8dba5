package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/iliyamo/ceremony-admission/internal/model"
)

func TestAuditRecordsPeekedTicketID(t *testing.T) {
	at := time.Date(2025, 6, 20, 18, 0, 0, 0, time.UTC)
	qr := validQR(t, model.QRPayload{EventID: 1, TicketID: 12, Nonce: "n", IssuedAt: at.Format(time.RFC3339)})
	id := uint64(12)

	sink := &mockSink{}
	sink.On("Append", mock.Anything, model.ScanRecord{
		TicketID: &id, DeviceID: "gate-1", ScannedAt: at, Verdict: model.ScanOK, OfflineRetry: true,
	}).Return(nil).Once()

	NewScanAuditLog(sink, WithAuditClock(func() time.Time { return at })).
		Record(context.Background(), qr, "gate-1", model.ScanOK, true)
	sink.AssertExpectations(t)
}

func TestAuditRecordsUndecodableScanWithoutTicket(t *testing.T) {
	sink := &mockSink{}
	sink.On("Append", mock.Anything, mock.MatchedBy(func(rec model.ScanRecord) bool {
		return rec.TicketID == nil && rec.Verdict == model.ScanInvalid
	})).Return(nil).Once()

	NewScanAuditLog(sink).Record(context.Background(), "invalid_base64", "gate-1", model.ScanInvalid, false)
	sink.AssertExpectations(t)
}

func TestAuditSwallowsSinkFailure(t *testing.T) {
	sink := &mockSink{}
	sink.On("Append", mock.Anything, mock.Anything).Return(errors.New("db down"))
	failures := 0

	log := NewScanAuditLog(sink, WithFailureHook(func() { failures++ }))
	assert.NotPanics(t, func() {
		log.Record(context.Background(), "x", "gate-1", model.ScanError, false)
	})
	assert.Equal(t, 1, failures)
}

func TestAuditAsyncOutlivesRequestContext(t *testing.T) {
	sink := &mockSink{}
	sink.On("Append", mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil }), mock.Anything).
		Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	a := NewScanAuditLog(sink, WithAsync(time.Second))
	a.Record(ctx, "x", "gate-1", model.ScanDuplicate, false)
	cancel()
	a.Wait()
	sink.AssertExpectations(t)
}

type blockingSink struct{ release chan struct{} }

func (s blockingSink) Append(ctx context.Context, _ model.ScanRecord) error {
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestAuditAsyncDoesNotWaitForStalledSink(t *testing.T) {
	sink := blockingSink{release: make(chan struct{})}
	failed := make(chan struct{}, 1)
	a := NewScanAuditLog(sink, WithAsync(50*time.Millisecond), WithFailureHook(func() { failed <- struct{}{} }))

	start := time.Now()
	a.Record(context.Background(), "x", "gate-1", model.ScanOK, false)
	assert.Less(t, time.Since(start), 20*time.Millisecond)

	a.Wait()
	select {
	case <-failed:
	default:
		t.Fatal("stalled write should be cut off by the audit timeout")
	}
}
