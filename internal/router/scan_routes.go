package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ceremony-admission/internal/handler"
	"github.com/iliyamo/ceremony-admission/internal/middleware"
)

// RegisterScan registers the scanning endpoint.  The token is optional
// here: the handler itself decides whether an anonymous device may
// submit an offline retry.
func RegisterScan(e *echo.Echo, h *handler.ScanHandler, jwtSecret string) {
	g := e.Group("/v1/scan", middleware.OptionalJWT(jwtSecret))
	g.POST("/validate-qr", h.ValidateQR)
}
