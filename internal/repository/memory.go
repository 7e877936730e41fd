package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/accessly-app/accessly/internal/model"
)

// MemoryStore is an in-memory Event Directory plus Registration Ledger.
// A single mutex guards every check-and-insert so the store honors the
// same atomicity contract as the PostgreSQL path; tests that race
// goroutines against it observe the same admission outcomes.
type MemoryStore struct {
	mu            sync.Mutex
	events        map[string]model.Event
	registrations map[string]model.Registration
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:        make(map[string]model.Event),
		registrations: make(map[string]model.Registration),
	}
}

// Create inserts a new event.
func (s *MemoryStore) Create(ctx context.Context, event *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ID] = *event
	return nil
}

// List returns all events with derived counts, newest first.
func (s *MemoryStore) List(ctx context.Context) ([]model.EventSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []model.EventSummary
	for _, e := range s.events {
		admitted := s.countByEventLocked(e.ID)
		events = append(events, model.EventSummary{
			Event:      e,
			Registered: admitted,
			SpotsLeft:  e.Capacity - admitted,
		})
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
	return events, nil
}

// GetByID returns a single event or ErrEventNotFound.
func (s *MemoryStore) GetByID(ctx context.Context, id string) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return nil, model.ErrEventNotFound
	}
	return &e, nil
}

// Delete removes an event and cascades its ledger.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[id]; !ok {
		return model.ErrEventNotFound
	}
	delete(s.events, id)
	for rid, reg := range s.registrations {
		if reg.EventID == id {
			delete(s.registrations, rid)
		}
	}
	return nil
}

// TotalEvents returns the number of published events.
func (s *MemoryStore) TotalEvents(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events), nil
}

// Register admits a (user, event) pair. The whole check-and-insert
// runs under the store mutex; rejections follow the same precondition
// order as the PostgreSQL ledger.
func (s *MemoryStore) Register(ctx context.Context, eventID, userID string, now time.Time) (*model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return nil, model.ErrEventNotFound
	}
	if event.Closed(now) {
		return nil, model.ErrEventClosed
	}
	for _, reg := range s.registrations {
		if reg.EventID == eventID && reg.UserID == userID {
			return nil, model.ErrAlreadyRegistered
		}
	}
	if s.countByEventLocked(eventID) >= event.Capacity {
		return nil, model.ErrEventFull
	}

	reg := model.Registration{
		ID:        uuid.New().String(),
		UserID:    userID,
		EventID:   eventID,
		CreatedAt: now,
	}
	s.registrations[reg.ID] = reg
	return &reg, nil
}

// GetRegistration returns a single registration or ErrRegistrationNotFound.
func (s *MemoryStore) GetRegistration(ctx context.Context, id string) (*model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registrations[id]
	if !ok {
		return nil, model.ErrRegistrationNotFound
	}
	return &reg, nil
}

// ListByUser returns the user's registrations newest first.
func (s *MemoryStore) ListByUser(ctx context.Context, userID string) ([]model.UserRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var regs []model.UserRegistration
	for _, reg := range s.registrations {
		if reg.UserID != userID {
			continue
		}
		ur := model.UserRegistration{Registration: reg}
		if e, ok := s.events[reg.EventID]; ok {
			ur.EventTitle = e.Title
			ur.EventLocation = e.Location
			ur.EventStartTime = e.StartTime
		}
		regs = append(regs, ur)
	}
	sort.Slice(regs, func(i, j int) bool {
		return regs[i].CreatedAt.After(regs[j].CreatedAt)
	})
	return regs, nil
}

// CountByEvent returns the derived admitted count for an event.
func (s *MemoryStore) CountByEvent(ctx context.Context, eventID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countByEventLocked(eventID), nil
}

// CheckIn flips checked_in exactly once under the store mutex.
func (s *MemoryStore) CheckIn(ctx context.Context, id string, now time.Time) (*model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registrations[id]
	if !ok {
		return nil, model.ErrRegistrationNotFound
	}
	if reg.CheckedIn {
		return &reg, model.ErrAlreadyCheckedIn
	}

	t := now
	reg.CheckedIn = true
	reg.CheckInTime = &t
	s.registrations[id] = reg
	return &reg, nil
}

// DeleteByEvent bulk-deletes an event's ledger.
func (s *MemoryStore) DeleteByEvent(ctx context.Context, eventID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for rid, reg := range s.registrations {
		if reg.EventID == eventID {
			delete(s.registrations, rid)
			n++
		}
	}
	return n, nil
}

// TotalRegistrations returns the ledger size across all events.
func (s *MemoryStore) TotalRegistrations(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.registrations), nil
}

// TotalCheckedIn returns the number of consumed tickets.
func (s *MemoryStore) TotalCheckedIn(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for _, reg := range s.registrations {
		if reg.CheckedIn {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) countByEventLocked(eventID string) int {
	var n int
	for _, reg := range s.registrations {
		if reg.EventID == eventID {
			n++
		}
	}
	return n
}

// Events returns the store's event-directory view.
func (s *MemoryStore) Events() MemoryEvents {
	return MemoryEvents{s: s}
}

// Ledger returns the store's registration-ledger view.
func (s *MemoryStore) Ledger() MemoryLedger {
	return MemoryLedger{s: s}
}

// MemoryEvents adapts MemoryStore to the event store interface. The
// ledger view shares the same mutex, so cross-table operations stay
// consistent.
type MemoryEvents struct {
	s *MemoryStore
}

func (m MemoryEvents) Create(ctx context.Context, event *model.Event) error {
	return m.s.Create(ctx, event)
}

func (m MemoryEvents) List(ctx context.Context) ([]model.EventSummary, error) {
	return m.s.List(ctx)
}

func (m MemoryEvents) GetByID(ctx context.Context, id string) (*model.Event, error) {
	return m.s.GetByID(ctx, id)
}

func (m MemoryEvents) Delete(ctx context.Context, id string) error {
	return m.s.Delete(ctx, id)
}

func (m MemoryEvents) TotalEvents(ctx context.Context) (int, error) {
	return m.s.TotalEvents(ctx)
}

// MemoryLedger adapts MemoryStore to the registration ledger interface.
type MemoryLedger struct {
	s *MemoryStore
}

func (m MemoryLedger) Register(ctx context.Context, eventID, userID string, now time.Time) (*model.Registration, error) {
	return m.s.Register(ctx, eventID, userID, now)
}

func (m MemoryLedger) GetByID(ctx context.Context, id string) (*model.Registration, error) {
	return m.s.GetRegistration(ctx, id)
}

func (m MemoryLedger) ListByUser(ctx context.Context, userID string) ([]model.UserRegistration, error) {
	return m.s.ListByUser(ctx, userID)
}

func (m MemoryLedger) CountByEvent(ctx context.Context, eventID string) (int, error) {
	return m.s.CountByEvent(ctx, eventID)
}

func (m MemoryLedger) CheckIn(ctx context.Context, id string, now time.Time) (*model.Registration, error) {
	return m.s.CheckIn(ctx, id, now)
}

func (m MemoryLedger) DeleteByEvent(ctx context.Context, eventID string) (int64, error) {
	return m.s.DeleteByEvent(ctx, eventID)
}

func (m MemoryLedger) TotalRegistrations(ctx context.Context) (int, error) {
	return m.s.TotalRegistrations(ctx)
}

func (m MemoryLedger) TotalCheckedIn(ctx context.Context) (int, error) {
	return m.s.TotalCheckedIn(ctx)
}
