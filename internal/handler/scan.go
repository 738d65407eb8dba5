package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ceremony-admission/internal/metrics"
	"github.com/iliyamo/ceremony-admission/internal/middleware"
	"github.com/iliyamo/ceremony-admission/internal/model"
	"github.com/iliyamo/ceremony-admission/internal/ratelimit"
	"github.com/iliyamo/ceremony-admission/internal/service"
)

const maxDeviceIDLen = 255

// ScanHandler serves the door scanners.  A request passes, in order,
// the device throttle, the authorization check and the validator; the
// verdict is then written to the audit log.
type ScanHandler struct {
	Guard     *ratelimit.ScanGuard
	Validator *service.ScanValidator
	Audit     *service.ScanAuditLog
	Timeout   time.Duration // bound for one validation; zero means none
}

type scanRequest struct {
	QRString       string `json:"qr_string"`
	DeviceID       string `json:"device_id"`
	IsOfflineRetry bool   `json:"is_offline_retry"`
}

// ValidateQR handles POST /v1/scan/validate-qr.  Every verdict of the
// validator, including rejections, is answered with 200; 400, 403 and
// 429 are reserved for requests that never reach it.
func (h *ScanHandler) ValidateQR(c echo.Context) error {
	var req scanRequest
	if err := c.Bind(&req); err != nil {
		return scanReply(c, http.StatusBadRequest, model.Rejected(model.ScanInvalid, service.ReasonBadRequest))
	}
	device := strings.TrimSpace(req.DeviceID)
	if device == "" {
		return scanReply(c, http.StatusBadRequest, model.Rejected(model.ScanInvalid, service.ReasonMissingDeviceID))
	}

	ctx := c.Request().Context()
	if d := h.Guard.Allow(ctx, device); !d.Allowed {
		secs := d.RetryAfterSeconds()
		c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
		return scanReply(c, http.StatusTooManyRequests,
			model.Rejected(model.ScanRateLimited, fmt.Sprintf(service.ReasonRateLimited, secs)))
	}

	if strings.TrimSpace(req.QRString) == "" || len(device) > maxDeviceIDLen {
		return scanReply(c, http.StatusBadRequest, model.Rejected(model.ScanInvalid, service.ReasonBadRequest))
	}
	if !service.CanScan(middleware.Role(c), req.IsOfflineRetry) {
		return scanReply(c, http.StatusForbidden, model.Rejected(model.ScanUnauthorized, service.ReasonUnauthorized))
	}

	vctx := ctx
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		vctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}
	start := time.Now()
	res := h.Validator.Execute(vctx, req.QRString)
	metrics.ScanDuration.Observe(time.Since(start).Seconds())

	h.Audit.Record(ctx, req.QRString, device, res.Status, req.IsOfflineRetry)
	return scanReply(c, http.StatusOK, res)
}

func scanReply(c echo.Context, status int, res model.ScanResult) error {
	metrics.ScanVerdicts.WithLabelValues(string(res.Status)).Inc()
	return c.JSON(status, res)
}
