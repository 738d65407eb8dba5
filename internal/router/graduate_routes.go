package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ceremony-admission/internal/handler"
	"github.com/iliyamo/ceremony-admission/internal/middleware"
	"github.com/iliyamo/ceremony-admission/internal/model"
)

// RegisterGraduate registers graduate-scoped endpoints under
// /v1/graduate.  All routes require a valid JWT and the GRADUANDO role;
// limit is the per-user token bucket.
func RegisterGraduate(e *echo.Echo, h *handler.GraduateHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group(
		"/v1/graduate",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleGraduate),
		limit,
	)
	g.GET("/me", h.Me)
	g.POST("/invitations", h.CreateInvitation)
	g.GET("/invitations", h.ListInvitations)
	g.DELETE("/invitations/:id", h.CancelInvitation)
	g.GET("/tickets", h.ListTickets)
	g.GET("/tickets/:id/qr", h.TicketQR)
}
