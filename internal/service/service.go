// Package service implements business logic and orchestration between
// HTTP handlers and the storage layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/accessly-app/accessly/internal/cache"
	"github.com/accessly-app/accessly/internal/clock"
	"github.com/accessly-app/accessly/internal/model"
)

// Flat reporting rate per admitted registration, in whole dollars.
// Display figure only; registration itself is free of charge.
const revenuePerRegistration = 50

// Publishing an event with an absurd capacity is almost always a typo.
const maxCapacity = 100_000

// EventStore is the Event Directory as the services consume it.
type EventStore interface {
	Create(ctx context.Context, event *model.Event) error
	List(ctx context.Context) ([]model.EventSummary, error)
	GetByID(ctx context.Context, id string) (*model.Event, error)
	Delete(ctx context.Context, id string) error
	TotalEvents(ctx context.Context) (int, error)
}

// RegistrationLedger is the durable record of admitted registrations.
// Register and CheckIn are atomic: implementations must guarantee that
// concurrent callers cannot overshoot capacity, duplicate a
// (user, event) pair, or double-consume a ticket.
type RegistrationLedger interface {
	Register(ctx context.Context, eventID, userID string, now time.Time) (*model.Registration, error)
	GetByID(ctx context.Context, id string) (*model.Registration, error)
	ListByUser(ctx context.Context, userID string) ([]model.UserRegistration, error)
	CountByEvent(ctx context.Context, eventID string) (int, error)
	CheckIn(ctx context.Context, id string, now time.Time) (*model.Registration, error)
	DeleteByEvent(ctx context.Context, eventID string) (int64, error)
	TotalRegistrations(ctx context.Context) (int, error)
	TotalCheckedIn(ctx context.Context) (int, error)
}

// EventService orchestrates event directory operations.
type EventService struct {
	events EventStore
	cache  *cache.EventCache
	clock  clock.Clock
	log    *zap.Logger
}

// NewEventService constructs an EventService. The cache may be nil.
func NewEventService(events EventStore, c *cache.EventCache, clk clock.Clock, log *zap.Logger) *EventService {
	return &EventService{events: events, cache: c, clock: clk, log: log}
}

// Create validates the request and publishes the event.
func (s *EventService) Create(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return nil, fmt.Errorf("event title is required")
	}
	if req.Capacity <= 0 {
		return nil, fmt.Errorf("capacity must be a positive integer")
	}
	if req.Capacity > maxCapacity {
		return nil, fmt.Errorf("capacity cannot exceed %d", maxCapacity)
	}
	if req.StartTime.IsZero() {
		return nil, fmt.Errorf("start_time is required")
	}
	if req.EndTime.IsZero() {
		req.EndTime = req.StartTime
	}
	if req.EndTime.Before(req.StartTime) {
		return nil, fmt.Errorf("end_time cannot precede start_time")
	}

	event := &model.Event{
		ID:          uuid.New().String(),
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Capacity:    req.Capacity,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.events.Create(ctx, event); err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx)
	s.log.Info("event published",
		zap.String("event_id", event.ID),
		zap.String("title", event.Title),
		zap.Int("capacity", event.Capacity),
	)
	return event, nil
}

// List returns all events with derived counts, serving from the cache
// when possible.
func (s *EventService) List(ctx context.Context) ([]model.EventSummary, error) {
	if events, ok := s.cache.GetList(ctx); ok {
		return events, nil
	}

	events, err := s.events.List(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.SetList(ctx, events)
	return events, nil
}

// Get returns a single event by ID. An ID that is not a well-formed
// UUID cannot name a stored event, so it resolves to not-found before
// reaching the store.
func (s *EventService) Get(ctx context.Context, id string) (*model.Event, error) {
	if uuid.Validate(id) != nil {
		return nil, model.ErrEventNotFound
	}
	return s.events.GetByID(ctx, id)
}

// Delete removes an event, cascading the deletion of its ledger.
func (s *EventService) Delete(ctx context.Context, id string) error {
	if uuid.Validate(id) != nil {
		return model.ErrEventNotFound
	}
	if err := s.events.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(ctx)
	s.log.Info("event deleted", zap.String("event_id", id))
	return nil
}

// RegistrationService is the admission engine and check-in recorder.
type RegistrationService struct {
	ledger RegistrationLedger
	cache  *cache.EventCache
	clock  clock.Clock
	log    *zap.Logger
}

// NewRegistrationService constructs a RegistrationService. The cache
// may be nil.
func NewRegistrationService(ledger RegistrationLedger, c *cache.EventCache, clk clock.Clock, log *zap.Logger) *RegistrationService {
	return &RegistrationService{ledger: ledger, cache: c, clock: clk, log: log}
}

// TryRegister decides admission for a (user, event) pair. The ledger
// evaluates the duplicate check, the capacity count, and the insert as
// one atomic unit, so when N callers race for the last K slots exactly
// K are admitted. Rejections are deterministic typed values; no
// retries.
func (s *RegistrationService) TryRegister(ctx context.Context, userID, eventID string) (*model.Registration, error) {
	if uuid.Validate(eventID) != nil {
		return nil, model.ErrEventNotFound
	}

	reg, err := s.ledger.Register(ctx, eventID, userID, s.clock.Now())
	if err != nil {
		if isRejection(err) {
			return nil, err
		}
		return nil, fmt.Errorf("register for event: %w", err)
	}

	s.cache.Invalidate(ctx)
	s.log.Info("registration admitted",
		zap.String("registration_id", reg.ID),
		zap.String("event_id", eventID),
		zap.String("user_id", userID),
	)
	return reg, nil
}

// ListForUser returns the caller's registrations, newest first.
func (s *RegistrationService) ListForUser(ctx context.Context, userID string) ([]model.UserRegistration, error) {
	return s.ledger.ListByUser(ctx, userID)
}

// Get returns a single registration.
func (s *RegistrationService) Get(ctx context.Context, id string) (*model.Registration, error) {
	if uuid.Validate(id) != nil {
		return nil, model.ErrRegistrationNotFound
	}
	return s.ledger.GetByID(ctx, id)
}

// CheckIn consumes a ticket exactly once. A repeat call returns the
// already-checked-in record together with ErrAlreadyCheckedIn, leaving
// the original check-in time untouched.
func (s *RegistrationService) CheckIn(ctx context.Context, registrationID string) (*model.Registration, error) {
	if uuid.Validate(registrationID) != nil {
		return nil, model.ErrRegistrationNotFound
	}

	reg, err := s.ledger.CheckIn(ctx, registrationID, s.clock.Now())
	if err != nil {
		if errors.Is(err, model.ErrAlreadyCheckedIn) {
			return reg, err
		}
		if errors.Is(err, model.ErrRegistrationNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("check in: %w", err)
	}

	s.log.Info("ticket consumed",
		zap.String("registration_id", reg.ID),
		zap.String("event_id", reg.EventID),
	)
	return reg, nil
}

// StatsService aggregates totals for the admin dashboard.
type StatsService struct {
	events EventStore
	ledger RegistrationLedger
}

// NewStatsService constructs a StatsService.
func NewStatsService(events EventStore, ledger RegistrationLedger) *StatsService {
	return &StatsService{events: events, ledger: ledger}
}

// Overview returns aggregate totals. Revenue is the flat reporting
// rate times the ledger size.
func (s *StatsService) Overview(ctx context.Context) (*model.StatsOverview, error) {
	totalEvents, err := s.events.TotalEvents(ctx)
	if err != nil {
		return nil, err
	}
	totalRegs, err := s.ledger.TotalRegistrations(ctx)
	if err != nil {
		return nil, err
	}
	totalCheckedIn, err := s.ledger.TotalCheckedIn(ctx)
	if err != nil {
		return nil, err
	}

	return &model.StatsOverview{
		TotalEvents:        totalEvents,
		TotalRegistrations: totalRegs,
		TotalCheckedIn:     totalCheckedIn,
		TotalRevenue:       totalRegs * revenuePerRegistration,
	}, nil
}

func isRejection(err error) bool {
	return errors.Is(err, model.ErrEventNotFound) ||
		errors.Is(err, model.ErrEventClosed) ||
		errors.Is(err, model.ErrAlreadyRegistered) ||
		errors.Is(err, model.ErrEventFull)
}
