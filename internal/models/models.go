package models

import (
	"fmt"
	"time"
)

// Event represents a ticketed event. Only the booking and cancellation
// transactions change AvailableTickets.
type Event struct {
	ID               string    `db:"id" json:"id"`
	OrganizerID      string    `db:"organizer_id" json:"organizer_id"`
	Title            string    `db:"title" json:"title"`
	Price            Money     `db:"price" json:"price"`
	TotalTickets     int       `db:"total_tickets" json:"total_tickets"`
	AvailableTickets int       `db:"available_tickets" json:"available_tickets"`
	StartDate        time.Time `db:"start_date" json:"start_date"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Booking represents tickets purchased by a user for an event
type Booking struct {
	ID              string        `db:"id" json:"id"`
	EventID         string        `db:"event_id" json:"event_id"`
	UserID          string        `db:"user_id" json:"user_id"`
	NumberOfTickets int           `db:"number_of_tickets" json:"number_of_tickets"`
	TotalAmount     Money         `db:"total_amount" json:"total_amount"`
	Status          BookingStatus `db:"status" json:"status"`
	BookingDate     time.Time     `db:"booking_date" json:"booking_date"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// Payment is a recorded gateway payment, unique per (GatewayIntentID, UserID)
type Payment struct {
	ID              string    `db:"id" json:"id"`
	UserID          string    `db:"user_id" json:"user_id"`
	OrganizerID     string    `db:"organizer_id" json:"organizer_id"`
	EventID         string    `db:"event_id" json:"event_id"`
	BookingID       *string   `db:"booking_id" json:"booking_id"`
	Amount          Money     `db:"amount" json:"amount"`
	Currency        string    `db:"currency" json:"currency"`
	GatewayIntentID string    `db:"gateway_intent_id" json:"gateway_intent_id"`
	Status          string    `db:"status" json:"status"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// BookingStats is the dashboard aggregate for a single user
type BookingStats struct {
	TotalBookings  int   `json:"totalBookings"`
	UpcomingEvents int   `json:"upcomingEvents"`
	TotalSpent     Money `json:"totalSpent"`
	TotalEarned    Money `json:"totalEarned"`
}

// BookingStatus is the lifecycle state of a booking
type BookingStatus string

// Booking statuses
const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Valid reports whether s is a known status
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled:
		return true
	}
	return false
}

// Role is the caller's platform role
type Role string

// Roles
const (
	RoleUser      Role = "user"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

// ParseRole validates a role string coming from the boundary
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUser, RoleOrganizer, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// SeesOrganizerStats reports whether the role gets the payee dashboard
func (r Role) SeesOrganizerStats() bool {
	return r == RoleOrganizer || r == RoleAdmin
}

// PaymentStatusSucceeded is the gateway's terminal success status
const PaymentStatusSucceeded = "succeeded"

// DefaultCurrency is used when the gateway does not echo one back
const DefaultCurrency = "usd"
