package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/ceremony-admission/internal/middleware"
	"github.com/iliyamo/ceremony-admission/internal/model"
	"github.com/iliyamo/ceremony-admission/internal/qrcodec"
	"github.com/iliyamo/ceremony-admission/internal/ratelimit"
	"github.com/iliyamo/ceremony-admission/internal/repository"
	"github.com/iliyamo/ceremony-admission/internal/service"
	"github.com/iliyamo/ceremony-admission/internal/signing"
)

const testSecret = "handler-secret"

type ticketTable struct {
	mu      sync.Mutex
	tickets map[uint64]*model.Ticket
}

func (s *ticketTable) FindByID(_ context.Context, id uint64) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, repository.ErrTicketNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *ticketTable) FindByNonce(ctx context.Context, nonce string) (*model.Ticket, error) {
	s.mu.Lock()
	var id uint64
	for _, t := range s.tickets {
		if t.Nonce == nonce {
			id = t.ID
		}
	}
	s.mu.Unlock()
	return s.FindByID(ctx, id)
}

func (s *ticketTable) MarkAsUsed(_ context.Context, id uint64, at time.Time) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok || t.UsedAt != nil {
		return nil, nil
	}
	t.UsedAt = &at
	cp := *t
	return &cp, nil
}

func (s *ticketTable) Revoke(_ context.Context, id uint64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if ok {
		t.RevokedAt = &at
	}
	return ok, nil
}

type auditTrail struct {
	mu   sync.Mutex
	recs []model.ScanRecord
}

func (a *auditTrail) Append(_ context.Context, rec model.ScanRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recs = append(a.recs, rec)
	return nil
}

type scanFixture struct {
	e       *echo.Echo
	tickets *ticketTable
	audit   *auditTrail
	qr      string
}

func newScanFixture(t *testing.T, limit int) *scanFixture {
	t.Helper()
	now := time.Date(2026, 6, 20, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	signer, err := signing.New(signing.NewMemoryKeyStore(clock))
	require.NoError(t, err)

	payload := model.QRPayload{EventID: 3, TicketID: 11, Nonce: "n-11", IssuedAt: now.Add(-time.Hour).Format(time.RFC3339Nano)}
	sig, err := signer.Sign(context.Background(), payload)
	require.NoError(t, err)
	qr, err := qrcodec.Encode(payload, sig)
	require.NoError(t, err)

	tickets := &ticketTable{tickets: map[uint64]*model.Ticket{
		11: {ID: 11, InvitationID: 5, Payload: payload, Signature: sig, Nonce: "n-11", IssuedAt: now.Add(-time.Hour)},
	}}
	audit := &auditTrail{}
	h := &ScanHandler{
		Guard:     ratelimit.NewScanGuard(ratelimit.NewMemoryLimiter(limit, time.Minute, clock), "scan", zap.NewNop()),
		Validator: service.NewScanValidator(tickets, signer, clock, nil),
		Audit:     service.NewScanAuditLog(audit),
		Timeout:   time.Second,
	}
	e := echo.New()
	e.POST("/v1/scan/validate-qr", h.ValidateQR, middleware.OptionalJWT(testSecret))
	return &scanFixture{e: e, tickets: tickets, audit: audit, qr: qr}
}

func bearerFor(t *testing.T, role string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  1,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + s
}

func (f *scanFixture) post(t *testing.T, authz string, body any) (*httptest.ResponseRecorder, model.ScanResult) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/scan/validate-qr", strings.NewReader(string(raw)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)

	var res model.ScanResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return rec, res
}

func TestValidateQRAdmitsOnce(t *testing.T) {
	f := newScanFixture(t, 10)
	staff := bearerFor(t, model.RoleStaff)
	body := echo.Map{"qr_string": f.qr, "device_id": "gate-1"}

	rec, res := f.post(t, staff, body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.ScanOK, res.Status)
	assert.Empty(t, res.Reason)

	rec, res = f.post(t, staff, body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.ScanDuplicate, res.Status)
	assert.Equal(t, service.ReasonAlreadyUsed, res.Reason)

	require.Len(t, f.audit.recs, 2)
	assert.Equal(t, model.ScanOK, f.audit.recs[0].Verdict)
	assert.Equal(t, model.ScanDuplicate, f.audit.recs[1].Verdict)
	require.NotNil(t, f.audit.recs[0].TicketID)
	assert.Equal(t, uint64(11), *f.audit.recs[0].TicketID)
	assert.Equal(t, "gate-1", f.audit.recs[0].DeviceID)
}

func TestValidateQRRejectionsStay200(t *testing.T) {
	f := newScanFixture(t, 10)
	rec, res := f.post(t, bearerFor(t, model.RoleAdmin), echo.Map{"qr_string": "%%%", "device_id": "gate-1"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.ScanInvalid, res.Status)
	assert.Equal(t, service.ReasonMalformed, res.Reason)
	require.Len(t, f.audit.recs, 1)
	assert.Nil(t, f.audit.recs[0].TicketID)
}

func TestValidateQRRequestErrors(t *testing.T) {
	f := newScanFixture(t, 10)
	staff := bearerFor(t, model.RoleStaff)

	rec, res := f.post(t, staff, echo.Map{"qr_string": f.qr})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, service.ReasonMissingDeviceID, res.Reason)

	rec, res = f.post(t, staff, echo.Map{"qr_string": "", "device_id": "gate-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, service.ReasonBadRequest, res.Reason)

	rec, res = f.post(t, staff, echo.Map{"qr_string": f.qr, "device_id": strings.Repeat("d", 256)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.ScanInvalid, res.Status)

	assert.Empty(t, f.audit.recs)
}

func TestValidateQRAuthorization(t *testing.T) {
	f := newScanFixture(t, 10)
	body := echo.Map{"qr_string": f.qr, "device_id": "gate-1"}

	rec, res := f.post(t, "", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, model.ScanUnauthorized, res.Status)

	rec, res = f.post(t, bearerFor(t, model.RoleGraduate), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, model.ScanUnauthorized, res.Status)

	// Offline retries from a device without a session are accepted.
	rec, res = f.post(t, "", echo.Map{"qr_string": f.qr, "device_id": "gate-1", "is_offline_retry": true})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.ScanOK, res.Status)
	require.Len(t, f.audit.recs, 1)
	assert.True(t, f.audit.recs[0].OfflineRetry)
}

func TestValidateQRThrottlesPerDevice(t *testing.T) {
	f := newScanFixture(t, 2)
	staff := bearerFor(t, model.RoleStaff)
	body := echo.Map{"qr_string": "garbage", "device_id": "gate-1"}

	for i := 0; i < 2; i++ {
		rec, _ := f.post(t, staff, body)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec, res := f.post(t, staff, body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, model.ScanRateLimited, res.Status)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "Demasiados escaneos desde este dispositivo. Intente en 60 segundos.", res.Reason)

	rec, _ = f.post(t, staff, echo.Map{"qr_string": "garbage", "device_id": "gate-2"})
	assert.Equal(t, http.StatusOK, rec.Code)
}
