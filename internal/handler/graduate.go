package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ceremony-admission/internal/metrics"
	"github.com/iliyamo/ceremony-admission/internal/middleware"
	"github.com/iliyamo/ceremony-admission/internal/model"
	"github.com/iliyamo/ceremony-admission/internal/qrcodec"
	"github.com/iliyamo/ceremony-admission/internal/repository"
	"github.com/iliyamo/ceremony-admission/internal/service"
)

// GraduateHandler lets an authenticated graduate manage the invitations
// counted against their own quota.  The graduate is always resolved
// from the access token, never from the request.
type GraduateHandler struct {
	Graduates   *repository.GraduateRepo
	Invitations *repository.InvitationRepo
	Tickets     *repository.TicketRepo
	Issuer      *service.InvitationIssuer
	Canceller   *service.InvitationCanceller
}

// currentGraduate loads the graduate profile of the caller.  On failure
// the response has already been written and ok is false.
func (h *GraduateHandler) currentGraduate(c echo.Context) (g *model.Graduate, ok bool, err error) {
	userID, err := middleware.UserID(c)
	if err != nil {
		return nil, false, c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	g, err = h.Graduates.GetByUserID(c.Request().Context(), userID)
	if errors.Is(err, repository.ErrGraduateNotFound) {
		return nil, false, c.JSON(http.StatusNotFound, echo.Map{"error": "graduate profile not found"})
	}
	if err != nil {
		c.Logger().Error(err)
		return nil, false, c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return g, true, nil
}

type invitationResponse struct {
	Invitation model.Invitation `json:"invitation"`
	TicketID   uint64           `json:"ticket_id"`
	QRString   string           `json:"qr_string"`
}

// Me handles GET /v1/graduate/me and returns the caller's quota.
func (h *GraduateHandler) Me(c echo.Context) error {
	g, ok, err := h.currentGraduate(c)
	if !ok {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"graduate_id":     g.ID,
		"user_id":         g.UserID,
		"slots_allowed":   g.SlotsAllowed,
		"slots_used":      g.SlotsUsed,
		"slots_remaining": g.RemainingSlots(),
	})
}

type ticketView struct {
	ID           uint64 `json:"id"`
	InvitationID uint64 `json:"invitation_id"`
	EventID      uint64 `json:"event_id"`
	QRString     string `json:"qr_string"`
	Used         bool   `json:"used"`
	Revoked      bool   `json:"revoked"`
}

// ListTickets handles GET /v1/graduate/tickets: every ticket of the
// caller's invitations, with its QR string.
func (h *GraduateHandler) ListTickets(c echo.Context) error {
	g, ok, err := h.currentGraduate(c)
	if !ok {
		return err
	}
	ctx := c.Request().Context()
	invs, err := h.Invitations.ListByGraduate(ctx, g.ID)
	if err != nil {
		return serviceError(c, err)
	}
	out := []ticketView{}
	for _, inv := range invs {
		tickets, err := h.Tickets.ListByInvitation(ctx, inv.ID)
		if err != nil {
			return serviceError(c, err)
		}
		for _, t := range tickets {
			qr, err := qrcodec.Encode(t.Payload, t.Signature)
			if err != nil {
				return serviceError(c, err)
			}
			out = append(out, ticketView{
				ID:           t.ID,
				InvitationID: inv.ID,
				EventID:      inv.EventID,
				QRString:     qr,
				Used:         t.IsUsed(),
				Revoked:      t.IsRevoked(),
			})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"tickets": out})
}

// CreateInvitation handles POST /v1/graduate/invitations with body
// {"event_id": <id>} and returns the invitation with its QR string.
func (h *GraduateHandler) CreateInvitation(c echo.Context) error {
	g, ok, err := h.currentGraduate(c)
	if !ok {
		return err
	}
	var body struct {
		EventID uint64 `json:"event_id"`
	}
	if err := c.Bind(&body); err != nil || body.EventID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "event_id is required"})
	}

	issued, err := h.Issuer.Execute(c.Request().Context(), g.ID, body.EventID)
	if err != nil {
		metrics.Invitations.WithLabelValues(outcome(err)).Inc()
		return serviceError(c, err)
	}
	metrics.Invitations.WithLabelValues("issued").Inc()

	qr, err := qrcodec.Encode(issued.Ticket.Payload, issued.Ticket.Signature)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, invitationResponse{Invitation: issued.Invitation, TicketID: issued.Ticket.ID, QRString: qr})
}

func outcome(err error) string {
	switch {
	case errors.Is(err, service.ErrSlotsExhausted):
		return "slots_exhausted"
	case errors.Is(err, service.ErrEventNotFound), errors.Is(err, service.ErrEventNotActive):
		return "event_unavailable"
	case errors.Is(err, service.ErrGraduateNotFound):
		return "graduate_not_found"
	}
	return "error"
}

// ListInvitations handles GET /v1/graduate/invitations.
func (h *GraduateHandler) ListInvitations(c echo.Context) error {
	g, ok, err := h.currentGraduate(c)
	if !ok {
		return err
	}
	invs, err := h.Invitations.ListByGraduate(c.Request().Context(), g.ID)
	if err != nil {
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"invitations":     invs,
		"slots_allowed":   g.SlotsAllowed,
		"slots_remaining": g.RemainingSlots(),
	})
}

// CancelInvitation handles DELETE /v1/graduate/invitations/:id.
func (h *GraduateHandler) CancelInvitation(c echo.Context) error {
	g, ok, err := h.currentGraduate(c)
	if !ok {
		return err
	}
	id, valid := parseID(c, "id")
	if !valid {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid invitation id"})
	}
	if err := h.Canceller.Execute(c.Request().Context(), g.ID, id); err != nil {
		return serviceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// TicketQR handles GET /v1/graduate/tickets/:id/qr and returns the QR
// transport string of one of the caller's tickets.
func (h *GraduateHandler) TicketQR(c echo.Context) error {
	g, ok, err := h.currentGraduate(c)
	if !ok {
		return err
	}
	id, valid := parseID(c, "id")
	if !valid {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}
	ctx := c.Request().Context()
	ticket, err := h.Tickets.FindByID(ctx, id)
	if errors.Is(err, repository.ErrTicketNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket not found"})
	}
	if err != nil {
		return serviceError(c, err)
	}
	inv, err := h.Invitations.GetByID(ctx, ticket.InvitationID)
	if errors.Is(err, repository.ErrInvitationNotFound) || (err == nil && inv.GraduateID != g.ID) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket not found"})
	}
	if err != nil {
		return serviceError(c, err)
	}
	qr, err := qrcodec.Encode(ticket.Payload, ticket.Signature)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"ticket_id": ticket.ID,
		"qr_string": qr,
		"used":      ticket.IsUsed(),
		"revoked":   ticket.IsRevoked(),
	})
}
