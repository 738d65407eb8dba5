package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/ceremony-admission/internal/model"
	"github.com/iliyamo/ceremony-admission/internal/qrcodec"
	"github.com/iliyamo/ceremony-admission/internal/repository"
)

// Reasons returned to scanning devices.
const (
	ReasonMalformed       = "QR malformado"
	ReasonInvalidPayload  = "Payload inválido"
	ReasonBadSignature    = "Firma inválida"
	ReasonTicketNotFound  = "Ticket no encontrado"
	ReasonTicketMismatch  = "Ticket ID no coincide"
	ReasonRevoked         = "Ticket revocado"
	ReasonAlreadyUsed     = "Ticket ya usado"
	ReasonExpired         = "Ticket expirado"
	ReasonInternal        = "Error interno del sistema"
	ReasonRateLimited     = "Demasiados escaneos desde este dispositivo. Intente en %d segundos."
	ReasonUnauthorized    = "No autorizado para escanear"
	ReasonBadRequest      = "Datos inválidos"
	ReasonMissingDeviceID = "Device ID requerido"
)

// ScanValidator turns a QR string into exactly one verdict and, for a
// valid ticket, consumes it.  Checks run in a fixed order and the
// first failing one decides the verdict.
type ScanValidator struct {
	tickets  TicketStore
	verifier Verifier
	now      func() time.Time
	log      *zap.Logger
}

// NewScanValidator wires the validator.  A nil clock means time.Now.
func NewScanValidator(tickets TicketStore, verifier Verifier, now func() time.Time, log *zap.Logger) *ScanValidator {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ScanValidator{tickets: tickets, verifier: verifier, now: now, log: log}
}

// Execute never returns an error: storage or signing failures become
// the ERROR verdict.
func (v *ScanValidator) Execute(ctx context.Context, qr string) (res model.ScanResult) {
	defer func() {
		if r := recover(); r != nil {
			v.log.Error("scan validation panicked", zap.Any("panic", r))
			res = model.Rejected(model.ScanError, ReasonInternal)
		}
	}()

	env, err := qrcodec.Decode(qr)
	if err != nil {
		return model.Rejected(model.ScanInvalid, ReasonMalformed)
	}
	payload, err := qrcodec.ValidatePayload(env.Payload)
	if err != nil {
		return model.Rejected(model.ScanInvalid, ReasonInvalidPayload)
	}

	ok, err := v.verifier.Verify(ctx, payload, env.Signature)
	if err != nil {
		return v.fault("verify signature", err)
	}
	if !ok {
		return model.Rejected(model.ScanInvalid, ReasonBadSignature)
	}

	ticket, err := v.tickets.FindByNonce(ctx, payload.Nonce)
	if errors.Is(err, repository.ErrTicketNotFound) {
		return model.Rejected(model.ScanInvalid, ReasonTicketNotFound)
	}
	if err != nil {
		return v.fault("find ticket", err)
	}
	if ticket.ID != payload.TicketID {
		return model.Rejected(model.ScanInvalid, ReasonTicketMismatch)
	}
	if ticket.IsRevoked() {
		return model.Rejected(model.ScanRevoked, ReasonRevoked)
	}
	if ticket.IsUsed() {
		return model.Rejected(model.ScanDuplicate, ReasonAlreadyUsed)
	}
	now := v.now()
	if ticket.IsExpired(now) {
		return model.Rejected(model.ScanExpired, ReasonExpired)
	}

	used, err := v.tickets.MarkAsUsed(ctx, ticket.ID, now)
	if err != nil {
		return v.fault("mark ticket used", err)
	}
	if used == nil {
		// Another scan consumed the ticket after it was read above.
		return model.Rejected(model.ScanDuplicate, ReasonAlreadyUsed)
	}
	return model.Admitted()
}

func (v *ScanValidator) fault(op string, err error) model.ScanResult {
	v.log.Error("scan validation failed", zap.String("op", op), zap.Error(err))
	return model.Rejected(model.ScanError, ReasonInternal)
}
