package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ceremony-admission/internal/handler"
)

func passthrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

func TestRoutesAreRegistered(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing()

	e := echo.New()
	RegisterRoutes(e, db, nil)
	RegisterScan(e, &handler.ScanHandler{}, "s")
	RegisterGraduate(e, &handler.GraduateHandler{}, "s", passthrough)
	RegisterAdmin(e, &handler.AdminHandler{}, "s", passthrough)

	want := map[string]bool{
		"GET /healthz":                        false,
		"GET /readyz":                         false,
		"GET /metrics":                        false,
		"POST /v1/scan/validate-qr":           false,
		"POST /v1/graduate/invitations":       false,
		"GET /v1/graduate/invitations":        false,
		"DELETE /v1/graduate/invitations/:id": false,
		"GET /v1/graduate/tickets/:id/qr":     false,
		"GET /v1/graduate/tickets":            false,
		"GET /v1/graduate/me":                 false,
		"POST /v1/admin/tickets/:id/revoke":   false,
		"GET /v1/admin/tickets/:id/scans":     false,
		"POST /v1/admin/keys/rotate":          false,
	}
	for _, r := range e.Routes() {
		if _, ok := want[r.Method+" "+r.Path]; ok {
			want[r.Method+" "+r.Path] = true
		}
	}
	for route, found := range want {
		assert.True(t, found, route)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"database":"ok","redis":"disabled"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/admin/keys/rotate", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
