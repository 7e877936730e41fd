package model

import "errors"

// Sentinel rejection values returned by the admission engine, the
// check-in recorder, and the ticket verifier. Handlers map them to
// HTTP statuses with errors.Is; clients distinguish them by Code.
var (
	ErrEventNotFound        = errors.New("event not found")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrEventClosed          = errors.New("event has already started")
	ErrAlreadyRegistered    = errors.New("already registered for this event")
	ErrEventFull            = errors.New("event is fully booked")
	ErrAlreadyCheckedIn     = errors.New("registration already checked in")
	ErrInvalidTicket        = errors.New("invalid ticket payload")
	ErrTicketExpired        = errors.New("ticket presented after event end")
)

// Stable machine-readable reason codes carried in error envelopes.
const (
	CodeEventNotFound        = "event_not_found"
	CodeRegistrationNotFound = "registration_not_found"
	CodeEventClosed          = "event_closed"
	CodeAlreadyRegistered    = "already_registered"
	CodeEventFull            = "event_full"
	CodeAlreadyCheckedIn     = "already_checked_in"
	CodeInvalidTicket        = "invalid_ticket"
	CodeTicketExpired        = "ticket_expired"
	CodeUnauthorized         = "unauthorized"
	CodeForbidden            = "forbidden"
	CodeBadRequest           = "bad_request"
	CodeInternal             = "internal_error"
)

// Code returns the reason code for a rejection, or CodeInternal when
// the error is not a known rejection.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrEventNotFound):
		return CodeEventNotFound
	case errors.Is(err, ErrRegistrationNotFound):
		return CodeRegistrationNotFound
	case errors.Is(err, ErrEventClosed):
		return CodeEventClosed
	case errors.Is(err, ErrAlreadyRegistered):
		return CodeAlreadyRegistered
	case errors.Is(err, ErrEventFull):
		return CodeEventFull
	case errors.Is(err, ErrAlreadyCheckedIn):
		return CodeAlreadyCheckedIn
	case errors.Is(err, ErrTicketExpired):
		return CodeTicketExpired
	case errors.Is(err, ErrInvalidTicket):
		return CodeInvalidTicket
	default:
		return CodeInternal
	}
}
