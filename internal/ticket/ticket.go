// Package ticket derives scannable ticket payloads from admitted
// registrations and validates presented payloads at check-in.
package ticket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/accessly-app/accessly/internal/clock"
	"github.com/accessly-app/accessly/internal/model"
)

// Wire format, stable for scanners in the field:
//
//	ACCESSLY:TICKET|USER:<userId>|EVENT:<eventId>|REG:<registrationId>|TS:<issuanceTimestamp>
//
// Field order and delimiters are part of the compatibility surface.
const (
	prefix      = "ACCESSLY:TICKET"
	fieldUser   = "USER:"
	fieldEvent  = "EVENT:"
	fieldReg    = "REG:"
	fieldTS     = "TS:"
	fieldCount  = 5
	qrImageSize = 256
)

// Payload is a parsed ticket payload.
type Payload struct {
	UserID         string
	EventID        string
	RegistrationID string
	IssuedAt       time.Time
}

// Issue derives the payload string for an admitted registration. The
// issuance timestamp makes two issuances of the same ticket distinct;
// the REG field binds the payload to one ledger row so it cannot be
// replayed for a different registration.
func Issue(reg *model.Registration, issuedAt time.Time) string {
	return fmt.Sprintf("%s|%s%s|%s%s|%s%s|%s%s",
		prefix,
		fieldUser, reg.UserID,
		fieldEvent, reg.EventID,
		fieldReg, reg.ID,
		fieldTS, issuedAt.UTC().Format(time.RFC3339),
	)
}

// Parse decodes a payload string, enforcing exact field order and
// delimiters. Any deviation yields ErrInvalidTicket.
func Parse(raw string) (*Payload, error) {
	parts := strings.Split(raw, "|")
	if len(parts) != fieldCount || parts[0] != prefix {
		return nil, model.ErrInvalidTicket
	}

	userID, ok := strings.CutPrefix(parts[1], fieldUser)
	if !ok || userID == "" {
		return nil, model.ErrInvalidTicket
	}
	eventID, ok := strings.CutPrefix(parts[2], fieldEvent)
	if !ok || eventID == "" {
		return nil, model.ErrInvalidTicket
	}
	regID, ok := strings.CutPrefix(parts[3], fieldReg)
	if !ok || regID == "" {
		return nil, model.ErrInvalidTicket
	}
	ts, ok := strings.CutPrefix(parts[4], fieldTS)
	if !ok {
		return nil, model.ErrInvalidTicket
	}
	issuedAt, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return nil, model.ErrInvalidTicket
	}

	return &Payload{
		UserID:         userID,
		EventID:        eventID,
		RegistrationID: regID,
		IssuedAt:       issuedAt,
	}, nil
}

// Image renders a payload as a PNG QR code. Rendering is a pure
// function of the payload string.
func Image(payload string) ([]byte, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, qrImageSize)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

// RegistrationReader resolves registrations for verification.
type RegistrationReader interface {
	GetByID(ctx context.Context, id string) (*model.Registration, error)
}

// EventReader resolves events for the post-event policy check.
type EventReader interface {
	GetByID(ctx context.Context, id string) (*model.Event, error)
}

// Verifier validates presented payloads against the ledger.
type Verifier struct {
	ledger RegistrationReader
	events EventReader
	clock  clock.Clock

	// rejectAfterEnd makes verification fail once the event has ended.
	// Policy, not a hidden default.
	rejectAfterEnd bool
}

// NewVerifier constructs a Verifier.
func NewVerifier(ledger RegistrationReader, events EventReader, clk clock.Clock, rejectAfterEnd bool) *Verifier {
	return &Verifier{
		ledger:         ledger,
		events:         events,
		clock:          clk,
		rejectAfterEnd: rejectAfterEnd,
	}
}

// Verify parses the payload and confirms it still refers to an
// existing registration whose user and event match the ledger record.
// A payload whose registration is gone (for example after an event
// cascade deletion), or whose embedded identities disagree with the
// ledger, is invalid.
func (v *Verifier) Verify(ctx context.Context, raw string) (*model.Registration, error) {
	payload, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if uuid.Validate(payload.RegistrationID) != nil {
		return nil, model.ErrInvalidTicket
	}

	reg, err := v.ledger.GetByID(ctx, payload.RegistrationID)
	if err != nil {
		if errors.Is(err, model.ErrRegistrationNotFound) {
			return nil, model.ErrInvalidTicket
		}
		return nil, fmt.Errorf("resolve registration: %w", err)
	}

	if reg.UserID != payload.UserID || reg.EventID != payload.EventID {
		return nil, model.ErrInvalidTicket
	}

	if v.rejectAfterEnd {
		event, err := v.events.GetByID(ctx, reg.EventID)
		if err != nil {
			if errors.Is(err, model.ErrEventNotFound) {
				return nil, model.ErrInvalidTicket
			}
			return nil, fmt.Errorf("resolve event: %w", err)
		}
		if event.EndTime.Before(v.clock.Now()) {
			return nil, model.ErrTicketExpired
		}
	}

	return reg, nil
}
