package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ceremony-admission/internal/handler"
	"github.com/iliyamo/ceremony-admission/internal/middleware"
	"github.com/iliyamo/ceremony-admission/internal/model"
)

// RegisterAdmin registers administrator endpoints under /v1/admin.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
		limit,
	)
	g.POST("/tickets/:id/revoke", h.RevokeTicket)
	g.GET("/tickets/:id/scans", h.TicketScans)
	g.POST("/keys/rotate", h.RotateKey)
}
