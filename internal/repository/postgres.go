// Package repository implements the Registration Ledger and Event
// Directory on PostgreSQL. It uses pgx directly (no ORM).
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/accessly-app/accessly/internal/model"
)

const uniqueViolation = "23505"

// EventRepository handles persistence for events.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts a new event.
func (r *EventRepository) Create(ctx context.Context, event *model.Event) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO events (id, title, description, location, start_time, end_time, capacity, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.Title, event.Description, event.Location,
		event.StartTime, event.EndTime, event.Capacity, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// List returns all events with their derived registration counts,
// newest first.
func (r *EventRepository) List(ctx context.Context) ([]model.EventSummary, error) {
	rows, err := r.db.Query(ctx,
		`SELECT e.id, e.title, e.description, e.location, e.start_time, e.end_time,
		        e.capacity, e.created_at, COUNT(reg.id)
		 FROM events e
		 LEFT JOIN registrations reg ON reg.event_id = e.id
		 GROUP BY e.id
		 ORDER BY e.created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.EventSummary
	for rows.Next() {
		var s model.EventSummary
		if err := rows.Scan(
			&s.ID, &s.Title, &s.Description, &s.Location, &s.StartTime, &s.EndTime,
			&s.Capacity, &s.CreatedAt, &s.Registered,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		s.SpotsLeft = s.Capacity - s.Registered
		events = append(events, s)
	}
	return events, rows.Err()
}

// GetByID returns a single event or ErrEventNotFound.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	var e model.Event
	err := r.db.QueryRow(ctx,
		`SELECT id, title, description, location, start_time, end_time, capacity, created_at
		 FROM events WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.Title, &e.Description, &e.Location, &e.StartTime, &e.EndTime, &e.Capacity, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &e, nil
}

// Delete removes an event and, as a cascade, every registration in its
// ledger. Both deletes commit atomically.
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `DELETE FROM registrations WHERE event_id = $1`, id); err != nil {
		return fmt.Errorf("cascade registrations: %w", err)
	}

	var tag pgconn.CommandTag
	tag, err = tx.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		err = model.ErrEventNotFound
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// TotalEvents returns the number of published events.
func (r *EventRepository) TotalEvents(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// RegistrationRepository is the durable Registration Ledger.
type RegistrationRepository struct {
	db *pgxpool.Pool
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(db *pgxpool.Pool) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// Register admits a (user, event) pair inside a single transaction.
//
// A naive read-count-then-insert sequence lets two concurrent callers
// both observe one free slot and both insert, exceeding capacity.
// SELECT ... FOR UPDATE takes a row-level exclusive lock on the event
// the moment it executes, so concurrent attempts for the same event
// serialize on that row: one caller at a time runs the duplicate
// check, the capacity count, and the insert. The unique index on
// (user_id, event_id) backs the duplicate check against any writer
// that bypasses this path.
//
// Rejections, in precondition order: ErrEventNotFound, ErrEventClosed,
// ErrAlreadyRegistered, ErrEventFull.
func (r *RegistrationRepository) Register(ctx context.Context, eventID, userID string, now time.Time) (*model.Registration, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Lock the event row. Capacity is re-read here, inside the atomic
	// unit, never trusted from any cache.
	var capacity int
	var startTime time.Time
	err = tx.QueryRow(ctx,
		`SELECT capacity, start_time FROM events WHERE id = $1 FOR UPDATE`,
		eventID,
	).Scan(&capacity, &startTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = model.ErrEventNotFound
			return nil, err
		}
		return nil, fmt.Errorf("lock event row: %w", err)
	}

	if startTime.Before(now) {
		err = model.ErrEventClosed
		return nil, err
	}

	var dupCount int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND user_id = $2`,
		eventID, userID,
	).Scan(&dupCount)
	if err != nil {
		return nil, fmt.Errorf("check duplicate: %w", err)
	}
	if dupCount > 0 {
		err = model.ErrAlreadyRegistered
		return nil, err
	}

	var admitted int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1`,
		eventID,
	).Scan(&admitted)
	if err != nil {
		return nil, fmt.Errorf("count registrations: %w", err)
	}
	if admitted >= capacity {
		err = model.ErrEventFull
		return nil, err
	}

	reg := &model.Registration{
		ID:        uuid.New().String(),
		UserID:    userID,
		EventID:   eventID,
		CreatedAt: now,
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO registrations (id, user_id, event_id, created_at, checked_in)
		 VALUES ($1, $2, $3, $4, FALSE)`,
		reg.ID, reg.UserID, reg.EventID, reg.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			err = model.ErrAlreadyRegistered
			return nil, err
		}
		return nil, fmt.Errorf("insert registration: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return reg, nil
}

// GetByID returns a single registration or ErrRegistrationNotFound.
func (r *RegistrationRepository) GetByID(ctx context.Context, id string) (*model.Registration, error) {
	reg, err := scanRegistration(r.db.QueryRow(ctx,
		`SELECT id, user_id, event_id, created_at, checked_in, check_in_time
		 FROM registrations WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}

// ListByUser returns the user's registrations with event summaries,
// newest first.
func (r *RegistrationRepository) ListByUser(ctx context.Context, userID string) ([]model.UserRegistration, error) {
	rows, err := r.db.Query(ctx,
		`SELECT reg.id, reg.user_id, reg.event_id, reg.created_at, reg.checked_in, reg.check_in_time,
		        e.title, e.location, e.start_time
		 FROM registrations reg
		 JOIN events e ON e.id = reg.event_id
		 WHERE reg.user_id = $1
		 ORDER BY reg.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.UserRegistration
	for rows.Next() {
		var ur model.UserRegistration
		if err := rows.Scan(
			&ur.ID, &ur.UserID, &ur.EventID, &ur.CreatedAt, &ur.CheckedIn, &ur.CheckInTime,
			&ur.EventTitle, &ur.EventLocation, &ur.EventStartTime,
		); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, ur)
	}
	return regs, rows.Err()
}

// CountByEvent returns the derived admitted count for an event.
func (r *RegistrationRepository) CountByEvent(ctx context.Context, eventID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1`,
		eventID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return n, nil
}

// CheckIn marks a registration consumed exactly once. The conditional
// UPDATE flips checked_in only when it is still false, so two
// simultaneous scans cannot both report success. On a repeat scan the
// existing record is returned alongside ErrAlreadyCheckedIn.
func (r *RegistrationRepository) CheckIn(ctx context.Context, id string, now time.Time) (*model.Registration, error) {
	reg, err := scanRegistration(r.db.QueryRow(ctx,
		`UPDATE registrations
		 SET checked_in = TRUE, check_in_time = $2
		 WHERE id = $1 AND checked_in = FALSE
		 RETURNING id, user_id, event_id, created_at, checked_in, check_in_time`,
		id, now,
	))
	if err == nil {
		return reg, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check in registration: %w", err)
	}

	// Zero rows updated: either the registration does not exist or it
	// was already consumed. Distinguish with a plain read.
	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return existing, model.ErrAlreadyCheckedIn
}

// DeleteByEvent bulk-deletes an event's ledger. Cascade hook invoked
// by event deletion.
func (r *RegistrationRepository) DeleteByEvent(ctx context.Context, eventID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM registrations WHERE event_id = $1`, eventID)
	if err != nil {
		return 0, fmt.Errorf("delete registrations: %w", err)
	}
	return tag.RowsAffected(), nil
}

// TotalRegistrations returns the ledger size across all events.
func (r *RegistrationRepository) TotalRegistrations(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM registrations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return n, nil
}

// TotalCheckedIn returns the number of consumed tickets.
func (r *RegistrationRepository) TotalCheckedIn(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM registrations WHERE checked_in`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count checked in: %w", err)
	}
	return n, nil
}

func scanRegistration(row pgx.Row) (*model.Registration, error) {
	var reg model.Registration
	err := row.Scan(&reg.ID, &reg.UserID, &reg.EventID, &reg.CreatedAt, &reg.CheckedIn, &reg.CheckInTime)
	if err != nil {
		return nil, err
	}
	return &reg, nil
}
