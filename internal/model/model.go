// Package model defines the core domain types for the Accessly
// registration and ticketing service.
package model

import "time"

// Role values carried by an authenticated principal.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Principal is the verified identity attached to an inbound request.
// The core trusts it as handed over by the auth middleware and never
// re-validates credentials.
type Principal struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Event represents a published event with finite capacity.
// The number of admitted registrations is always derived by counting
// ledger rows; it is never stored on the event.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Capacity    int       `json:"capacity"`
	CreatedAt   time.Time `json:"created_at"`
}

// Closed reports whether the event's start time has passed.
func (e *Event) Closed(now time.Time) bool {
	return e.StartTime.Before(now)
}

// EventSummary is an event plus its derived registration count,
// as served by the public listing.
type EventSummary struct {
	Event
	Registered int `json:"registered"`
	SpotsLeft  int `json:"spots_left"`
}

// Registration is the ledger record of an admitted (user, event) pair.
// The pair is unique; CheckedIn transitions false to true at most once.
type Registration struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	EventID     string     `json:"event_id"`
	CreatedAt   time.Time  `json:"created_at"`
	CheckedIn   bool       `json:"checked_in"`
	CheckInTime *time.Time `json:"check_in_time,omitempty"`
}

// UserRegistration pairs a registration with a summary of its event,
// as served by the user dashboard.
type UserRegistration struct {
	Registration
	EventTitle     string    `json:"event_title"`
	EventLocation  string    `json:"event_location"`
	EventStartTime time.Time `json:"event_start_time"`
}

// CreateEventRequest is the payload for publishing a new event.
type CreateEventRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Capacity    int       `json:"capacity"`
}

// StatsOverview aggregates totals for the admin dashboard.
// Revenue is a reporting figure (flat rate per admitted registration),
// not a business rule.
type StatsOverview struct {
	TotalEvents        int `json:"total_events"`
	TotalRegistrations int `json:"total_registrations"`
	TotalCheckedIn     int `json:"total_checked_in"`
	TotalRevenue       int `json:"total_revenue"`
}

// ErrorResponse is the standard JSON error envelope. Code is a stable
// machine-readable reason, distinct from the human message.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
