package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/accessly-app/accessly/internal/auth"
	"github.com/accessly-app/accessly/internal/clock"
	"github.com/accessly-app/accessly/internal/model"
	"github.com/accessly-app/accessly/internal/repository"
	"github.com/accessly-app/accessly/internal/service"
	"github.com/accessly-app/accessly/internal/ticket"
)

var handlerNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// asPrincipal injects a fixed principal, standing in for the JWT
// middleware.
func asPrincipal(p model.Principal) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

type fixture struct {
	store  *repository.MemoryStore
	router func(p model.Principal) http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := repository.NewMemoryStore()
	clk := clock.NewFixed(handlerNow)
	log := zap.NewNop()

	eventSvc := service.NewEventService(store.Events(), nil, clk, log)
	regSvc := service.NewRegistrationService(store.Ledger(), nil, clk, log)
	statsSvc := service.NewStatsService(store.Events(), store.Ledger())
	verifier := ticket.NewVerifier(store.Ledger(), store.Events(), clk, false)
	h := New(eventSvc, regSvc, statsSvc, verifier, clk)

	router := func(p model.Principal) http.Handler {
		r := chi.NewRouter()
		r.Use(asPrincipal(p))
		r.Get("/events", h.ListEvents)
		r.Get("/events/{id}", h.GetEvent)
		r.Post("/events", h.CreateEvent)
		r.Delete("/events/{id}", h.DeleteEvent)
		r.Post("/events/{id}/register", h.Register)
		r.Get("/users/registrations", h.ListMyRegistrations)
		r.Get("/registrations/{id}/ticket", h.TicketImage)
		r.Post("/registrations/{id}/checkin", h.CheckIn)
		r.Post("/tickets/verify", h.VerifyTicket)
		r.Get("/admin/stats", h.Stats)
		return r
	}

	return &fixture{store: store, router: router}
}

func (f *fixture) seedEvent(t *testing.T, capacity int) string {
	t.Helper()
	id := uuid.New().String()
	err := f.store.Create(context.Background(), &model.Event{
		ID:        id,
		Title:     "Event " + id,
		StartTime: handlerNow.Add(24 * time.Hour),
		EndTime:   handlerNow.Add(32 * time.Hour),
		Capacity:  capacity,
		CreatedAt: handlerNow.Add(-time.Hour),
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) do(p model.Principal, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.router(p).ServeHTTP(rec, req)
	return rec
}

var (
	userA = model.Principal{UserID: "user-a", Role: model.RoleUser}
	admin = model.Principal{UserID: "admin-1", Role: model.RoleAdmin}
)

func TestRegisterEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	eventID := f.seedEvent(t, 1)

	t.Run("admits and returns the registration", func(t *testing.T) {
		rec := f.do(userA, http.MethodPost, "/events/"+eventID+"/register", nil)
		require.Equal(t, http.StatusCreated, rec.Code)

		var reg model.Registration
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
		assert.Equal(t, "user-a", reg.UserID)
		assert.Equal(t, eventID, reg.EventID)
		assert.False(t, reg.CheckedIn)
	})

	t.Run("duplicate yields already_registered", func(t *testing.T) {
		rec := f.do(userA, http.MethodPost, "/events/"+eventID+"/register", nil)
		require.Equal(t, http.StatusConflict, rec.Code)

		var resp model.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, model.CodeAlreadyRegistered, resp.Code)
	})

	t.Run("full event yields event_full", func(t *testing.T) {
		other := model.Principal{UserID: "user-b", Role: model.RoleUser}
		rec := f.do(other, http.MethodPost, "/events/"+eventID+"/register", nil)
		require.Equal(t, http.StatusConflict, rec.Code)

		var resp model.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, model.CodeEventFull, resp.Code)
	})

	t.Run("unknown event yields 404", func(t *testing.T) {
		rec := f.do(userA, http.MethodPost, "/events/"+uuid.New().String()+"/register", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)

		var resp model.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, model.CodeEventNotFound, resp.Code)
	})

	t.Run("malformed event id yields 404", func(t *testing.T) {
		rec := f.do(userA, http.MethodPost, "/events/garbage/register", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)

		var resp model.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, model.CodeEventNotFound, resp.Code)
	})
}

func TestRegisterClosedEvent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	pastID := uuid.New().String()
	err := f.store.Create(context.Background(), &model.Event{
		ID:        pastID,
		Title:     "Yesterday",
		StartTime: handlerNow.Add(-time.Hour),
		EndTime:   handlerNow.Add(time.Hour),
		Capacity:  100,
		CreatedAt: handlerNow.Add(-48 * time.Hour),
	})
	require.NoError(t, err)

	rec := f.do(userA, http.MethodPost, "/events/"+pastID+"/register", nil)
	require.Equal(t, http.StatusGone, rec.Code)

	var resp model.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.CodeEventClosed, resp.Code)
}

func TestEventLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	create := f.do(admin, http.MethodPost, "/events", model.CreateEventRequest{
		Title:     "Tech Conference",
		Location:  "Convention Center",
		StartTime: handlerNow.Add(24 * time.Hour),
		Capacity:  500,
	})
	require.Equal(t, http.StatusCreated, create.Code)

	var event model.Event
	require.NoError(t, json.Unmarshal(create.Body.Bytes(), &event))
	require.NotEmpty(t, event.ID)

	list := f.do(userA, http.MethodGet, "/events", nil)
	require.Equal(t, http.StatusOK, list.Code)

	var events []model.EventSummary
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, 0, events[0].Registered)
	assert.Equal(t, 500, events[0].SpotsLeft)

	del := f.do(admin, http.MethodDelete, "/events/"+event.ID, nil)
	require.Equal(t, http.StatusNoContent, del.Code)

	get := f.do(userA, http.MethodGet, "/events/"+event.ID, nil)
	require.Equal(t, http.StatusNotFound, get.Code)
}

func TestTicketImageEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	eventID := f.seedEvent(t, 5)

	reg, err := f.store.Register(context.Background(), eventID, userA.UserID, handlerNow)
	require.NoError(t, err)

	t.Run("owner receives a PNG", func(t *testing.T) {
		rec := f.do(userA, http.MethodGet, "/registrations/"+reg.ID+"/ticket", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
	})

	t.Run("another user is forbidden", func(t *testing.T) {
		other := model.Principal{UserID: "user-b", Role: model.RoleUser}
		rec := f.do(other, http.MethodGet, "/registrations/"+reg.ID+"/ticket", nil)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unknown registration yields 404", func(t *testing.T) {
		rec := f.do(userA, http.MethodGet, "/registrations/"+uuid.New().String()+"/ticket", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed registration id yields 404", func(t *testing.T) {
		rec := f.do(userA, http.MethodGet, "/registrations/garbage/ticket", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)

		var resp model.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, model.CodeRegistrationNotFound, resp.Code)
	})
}

func TestVerifyTicketEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	eventID := f.seedEvent(t, 5)

	reg, err := f.store.Register(context.Background(), eventID, userA.UserID, handlerNow)
	require.NoError(t, err)

	t.Run("valid payload resolves registration", func(t *testing.T) {
		payload := ticket.Issue(reg, handlerNow)
		rec := f.do(admin, http.MethodPost, "/tickets/verify", VerifyTicketRequest{Payload: payload})
		require.Equal(t, http.StatusOK, rec.Code)

		var got model.Registration
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, reg.ID, got.ID)
	})

	t.Run("malformed payload yields invalid_ticket", func(t *testing.T) {
		rec := f.do(admin, http.MethodPost, "/tickets/verify", VerifyTicketRequest{Payload: "bogus"})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		var resp model.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, model.CodeInvalidTicket, resp.Code)
	})
}

func TestCheckInEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	eventID := f.seedEvent(t, 5)

	reg, err := f.store.Register(context.Background(), eventID, userA.UserID, handlerNow)
	require.NoError(t, err)

	first := f.do(admin, http.MethodPost, "/registrations/"+reg.ID+"/checkin", nil)
	require.Equal(t, http.StatusOK, first.Code)

	var checked model.Registration
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &checked))
	assert.True(t, checked.CheckedIn)
	require.NotNil(t, checked.CheckInTime)

	second := f.do(admin, http.MethodPost, "/registrations/"+reg.ID+"/checkin", nil)
	require.Equal(t, http.StatusConflict, second.Code)

	var conflict checkInConflict
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &conflict))
	assert.Equal(t, model.CodeAlreadyCheckedIn, conflict.Code)
	require.NotNil(t, conflict.Registration)
	assert.True(t, conflict.Registration.CheckedIn)
	assert.Equal(t, checked.CheckInTime.Unix(), conflict.Registration.CheckInTime.Unix())

	missing := f.do(admin, http.MethodPost, "/registrations/"+uuid.New().String()+"/checkin", nil)
	require.Equal(t, http.StatusNotFound, missing.Code)

	malformed := f.do(admin, http.MethodPost, "/registrations/garbage/checkin", nil)
	require.Equal(t, http.StatusNotFound, malformed.Code)
}

func TestUserRegistrationsEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	e1 := f.seedEvent(t, 5)
	e2 := f.seedEvent(t, 5)

	_, err := f.store.Register(context.Background(), e1, userA.UserID, handlerNow)
	require.NoError(t, err)
	_, err = f.store.Register(context.Background(), e2, userA.UserID, handlerNow.Add(time.Minute))
	require.NoError(t, err)
	_, err = f.store.Register(context.Background(), e1, "user-b", handlerNow)
	require.NoError(t, err)

	rec := f.do(userA, http.MethodGet, "/users/registrations", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var regs []model.UserRegistration
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &regs))
	require.Len(t, regs, 2)
	assert.Equal(t, e2, regs[0].EventID)
	assert.Equal(t, e1, regs[1].EventID)
	assert.NotEmpty(t, regs[0].EventTitle)
}

func TestStatsEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	eventID := f.seedEvent(t, 5)

	reg, err := f.store.Register(context.Background(), eventID, userA.UserID, handlerNow)
	require.NoError(t, err)
	_, err = f.store.CheckIn(context.Background(), reg.ID, handlerNow)
	require.NoError(t, err)

	rec := f.do(admin, http.MethodGet, "/admin/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats model.StatsOverview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalEvents)
	assert.Equal(t, 1, stats.TotalRegistrations)
	assert.Equal(t, 1, stats.TotalCheckedIn)
	assert.Equal(t, 50, stats.TotalRevenue)
}
