// Package repository defines the error values shared by the MySQL
// repositories.  Not-found conditions are reported with one sentinel
// per entity so that handlers and services can map them without
// inspecting driver errors; sql.ErrNoRows never leaves this package.
package repository

import "errors"

var (
	ErrTicketNotFound     = errors.New("ticket not found")
	ErrGraduateNotFound   = errors.New("graduate not found")
	ErrEventNotFound      = errors.New("event not found")
	ErrInvitationNotFound = errors.New("invitation not found")
)

// ErrConflict is returned when a conditional update matched no row
// because the guarded state changed underneath the caller, for example
// a graduate whose quota filled up concurrently.
var ErrConflict = errors.New("conflict")
