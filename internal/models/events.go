package models

import "time"

// Event types
const (
	EventTypeBookingConfirmed = "BOOKING_CONFIRMED"
	EventTypeBookingCancelled = "BOOKING_CANCELLED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// BookingEvent is published after a booking commit or cancellation commit
type BookingEvent struct {
	BaseEvent
	BookingID   string `json:"booking_id"`
	TicketEvent string `json:"ticket_event_id"`
	UserID      string `json:"user_id"`
	OrganizerID string `json:"organizer_id,omitempty"`
	Tickets     int    `json:"tickets"`
	TotalAmount Money  `json:"total_amount"`
}
