package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ceremony-admission/internal/repository"
	"github.com/iliyamo/ceremony-admission/internal/service"
	"github.com/iliyamo/ceremony-admission/internal/signing"
)

// AdminHandler exposes administrative operations on tickets and keys.
type AdminHandler struct {
	Revoker *service.TicketRevoker
	Signer  *signing.Service
	Scans   *repository.ScanRepo
}

// RevokeTicket handles POST /v1/admin/tickets/:id/revoke.
func (h *AdminHandler) RevokeTicket(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}
	if err := h.Revoker.Execute(c.Request().Context(), id); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ticket_id": id, "revoked": true})
}

// RotateKey handles POST /v1/admin/keys/rotate.  Tickets signed with the
// replaced key keep verifying until the next rotation.
func (h *AdminHandler) RotateKey(c echo.Context) error {
	if err := h.Signer.RotateKey(c.Request().Context()); err != nil {
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "key rotation failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"rotated": true, "algorithm": h.Signer.Algorithm()})
}

// TicketScans handles GET /v1/admin/tickets/:id/scans.
func (h *AdminHandler) TicketScans(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}
	scans, err := h.Scans.ListByTicket(c.Request().Context(), id)
	if err != nil {
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"ticket_id": id, "scans": scans})
}
