// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/accessly-app/accessly/internal/auth"
	"github.com/accessly-app/accessly/internal/clock"
	"github.com/accessly-app/accessly/internal/model"
	"github.com/accessly-app/accessly/internal/service"
	"github.com/accessly-app/accessly/internal/ticket"
)

// Handler holds all HTTP handlers for the Accessly API.
type Handler struct {
	events        *service.EventService
	registrations *service.RegistrationService
	stats         *service.StatsService
	verifier      *ticket.Verifier
	clock         clock.Clock
}

// New constructs a Handler.
func New(
	events *service.EventService,
	registrations *service.RegistrationService,
	stats *service.StatsService,
	verifier *ticket.Verifier,
	clk clock.Clock,
) *Handler {
	return &Handler{
		events:        events,
		registrations: registrations,
		stats:         stats,
		verifier:      verifier,
		clock:         clk,
	}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg, Code: code})
}

// writeRejection writes a typed rejection, deriving the reason code
// from the sentinel itself.
func writeRejection(w http.ResponseWriter, status int, err error, msg string) {
	writeError(w, status, model.Code(err), msg)
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func principal(r *http.Request) (model.Principal, bool) {
	return auth.FromContext(r.Context())
}

// ─── Event directory ──────────────────────────────────────────────────────────

// CreateEvent handles POST /events (admin).
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, model.CodeBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.events.Create(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, model.CodeBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, model.CodeInternal, "failed to list events")
		return
	}

	// Empty array rather than null for client compatibility.
	if events == nil {
		events = []model.EventSummary{}
	}
	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.events.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, model.ErrEventNotFound) {
			writeRejection(w, http.StatusNotFound, err, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, model.CodeInternal, "failed to get event")
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// DeleteEvent handles DELETE /events/{id} (admin). Deleting an event
// cascades to its registrations.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.events.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, model.ErrEventNotFound) {
			writeRejection(w, http.StatusNotFound, err, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, model.CodeInternal, "failed to delete event")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Admission ────────────────────────────────────────────────────────────────

// Register handles POST /events/{id}/register. The admission decision
// is atomic against concurrent registrations for the same event.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, model.CodeUnauthorized, "no token, authorization denied")
		return
	}

	reg, err := h.registrations.TryRegister(r.Context(), p.UserID, chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, model.ErrEventNotFound):
			writeRejection(w, http.StatusNotFound, err, "event not found")
		case errors.Is(err, model.ErrEventClosed):
			writeRejection(w, http.StatusGone, err, "event has already started")
		case errors.Is(err, model.ErrAlreadyRegistered):
			writeRejection(w, http.StatusConflict, err, "you are already registered for this event")
		case errors.Is(err, model.ErrEventFull):
			writeRejection(w, http.StatusConflict, err, "event is fully booked")
		default:
			writeError(w, http.StatusInternalServerError, model.CodeInternal, "registration failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, reg)
}

// ListMyRegistrations handles GET /users/registrations, newest first.
func (h *Handler) ListMyRegistrations(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, model.CodeUnauthorized, "no token, authorization denied")
		return
	}

	regs, err := h.registrations.ListForUser(r.Context(), p.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, model.CodeInternal, "failed to list registrations")
		return
	}

	if regs == nil {
		regs = []model.UserRegistration{}
	}
	writeJSON(w, http.StatusOK, regs)
}

// ─── Tickets ──────────────────────────────────────────────────────────────────

// TicketImage handles GET /registrations/{id}/ticket. Issues the
// ticket payload for the caller's own registration and renders it as
// a PNG QR code.
func (h *Handler) TicketImage(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, model.CodeUnauthorized, "no token, authorization denied")
		return
	}

	reg, err := h.registrations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, model.ErrRegistrationNotFound) {
			writeRejection(w, http.StatusNotFound, err, "no ticket found")
			return
		}
		writeError(w, http.StatusInternalServerError, model.CodeInternal, "failed to load registration")
		return
	}
	if reg.UserID != p.UserID {
		writeError(w, http.StatusForbidden, model.CodeForbidden, "ticket belongs to another user")
		return
	}

	payload := ticket.Issue(reg, h.clock.Now())
	png, err := ticket.Image(payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, model.CodeInternal, "failed to render ticket")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// VerifyTicketRequest carries a scanned payload.
type VerifyTicketRequest struct {
	Payload string `json:"payload"`
}

// VerifyTicket handles POST /tickets/verify (admin). Confirms the
// scanned payload still refers to a live registration matching the
// ledger.
func (h *Handler) VerifyTicket(w http.ResponseWriter, r *http.Request) {
	var req VerifyTicketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, model.CodeBadRequest, "invalid request body: "+err.Error())
		return
	}

	reg, err := h.verifier.Verify(r.Context(), req.Payload)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrTicketExpired):
			writeRejection(w, http.StatusGone, err, "ticket presented after event end")
		case errors.Is(err, model.ErrInvalidTicket):
			writeRejection(w, http.StatusUnprocessableEntity, err, "invalid ticket")
		default:
			writeError(w, http.StatusInternalServerError, model.CodeInternal, "verification failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, reg)
}

// checkInConflict is the 409 body for a repeat scan: the rejection
// plus the record of the first, successful check-in.
type checkInConflict struct {
	model.ErrorResponse
	Registration *model.Registration `json:"registration"`
}

// CheckIn handles POST /registrations/{id}/checkin (admin). The
// transition is one-way; a second scan reports the existing record.
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	reg, err := h.registrations.CheckIn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, model.ErrRegistrationNotFound):
			writeRejection(w, http.StatusNotFound, err, "registration not found")
		case errors.Is(err, model.ErrAlreadyCheckedIn):
			writeJSON(w, http.StatusConflict, checkInConflict{
				ErrorResponse: model.ErrorResponse{
					Error: "registration already checked in",
					Code:  model.Code(err),
				},
				Registration: reg,
			})
		default:
			writeError(w, http.StatusInternalServerError, model.CodeInternal, "check-in failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, reg)
}

// ─── Admin ────────────────────────────────────────────────────────────────────

// Stats handles GET /admin/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	overview, err := h.stats.Overview(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, model.CodeInternal, "failed to aggregate stats")
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
