package handler // handler defines http handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ceremony-admission/internal/service"
)

// parseID reads a positive integer path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// serviceError translates use case errors into HTTP responses.
// Infrastructure faults are reported without detail.
func serviceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrGraduateNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "graduate not found"})
	case errors.Is(err, service.ErrEventNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
	case errors.Is(err, service.ErrInvitationNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "invitation not found"})
	case errors.Is(err, service.ErrTicketNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket not found"})
	case errors.Is(err, service.ErrSlotsExhausted):
		return c.JSON(http.StatusConflict, echo.Map{"error": "no invitation slots left"})
	case errors.Is(err, service.ErrInvitationNotCancellable):
		return c.JSON(http.StatusConflict, echo.Map{"error": "invitation can no longer be cancelled"})
	case errors.Is(err, service.ErrEventNotActive):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "event is not active"})
	}
	c.Logger().Error(err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
