package service

import (
	"errors"
	"fmt"
)

// Issuance and cancellation failures.  Each maps to a distinct client
// response; anything else is wrapped in ErrInternal.
var (
	ErrGraduateNotFound         = errors.New("graduate not found")
	ErrSlotsExhausted           = errors.New("no invitation slots left")
	ErrEventNotFound            = errors.New("event not found")
	ErrEventNotActive           = errors.New("event is not active")
	ErrInvitationNotFound       = errors.New("invitation not found")
	ErrInvitationNotCancellable = errors.New("invitation can no longer be cancelled")
	ErrTicketNotFound           = errors.New("ticket not found")
	ErrInternal                 = errors.New("internal error")
)

func internalErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}
