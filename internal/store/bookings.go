package store

import (
	"context"
	"fmt"
	"time"

	"ticketing-service/internal/models"
)

// GetBookingByID retrieves a booking by ID
func (s *Store) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	err := s.db.GetContext(ctx, &booking, "SELECT "+bookingColumns+" FROM bookings WHERE id = $1", id)
	if isNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking %s: %w", id, err)
	}
	return &booking, nil
}

// ListBookingsByUser retrieves bookings for a user, newest first
func (s *Store) ListBookingsByUser(ctx context.Context, userID string) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := s.db.SelectContext(ctx, &bookings,
		"SELECT "+bookingColumns+" FROM bookings WHERE user_id = $1 ORDER BY booking_date DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings for user: %w", err)
	}
	return bookings, nil
}

// ListBookingsByEvent retrieves bookings for an event, newest first
func (s *Store) ListBookingsByEvent(ctx context.Context, eventID string) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := s.db.SelectContext(ctx, &bookings,
		"SELECT "+bookingColumns+" FROM bookings WHERE event_id = $1 ORDER BY booking_date DESC", eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings for event: %w", err)
	}
	return bookings, nil
}

type statsRow struct {
	TotalBookings  int          `db:"total_bookings"`
	UpcomingEvents int          `db:"upcoming_events"`
	TotalAmount    models.Money `db:"total_amount"`
}

// OrganizerStats aggregates upcoming owned events and succeeded payments
// received by the organizer
func (s *Store) OrganizerStats(ctx context.Context, organizerID string, now time.Time) (models.BookingStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM events WHERE organizer_id = $1 AND start_date > $2) AS upcoming_events,
			COUNT(*) AS total_bookings,
			COALESCE(SUM(amount), 0) AS total_amount
		FROM payments
		WHERE organizer_id = $1 AND status = $3`

	var row statsRow
	if err := s.db.GetContext(ctx, &row, query, organizerID, now, models.PaymentStatusSucceeded); err != nil {
		return models.BookingStats{}, fmt.Errorf("failed to aggregate organizer stats: %w", err)
	}

	return models.BookingStats{
		TotalBookings:  row.TotalBookings,
		UpcomingEvents: row.UpcomingEvents,
		TotalEarned:    row.TotalAmount,
	}, nil
}

// PurchaserStats aggregates a user's confirmed bookings and succeeded
// payments
func (s *Store) PurchaserStats(ctx context.Context, userID string, now time.Time) (models.BookingStats, error) {
	query := `
		SELECT
			COUNT(*) AS total_bookings,
			COUNT(*) FILTER (WHERE e.start_date > $2) AS upcoming_events,
			(SELECT COALESCE(SUM(p.amount), 0)
			   FROM payments p
			  WHERE p.user_id = $1 AND p.status = $3) AS total_amount
		FROM bookings b
		LEFT JOIN events e ON e.id = b.event_id
		WHERE b.user_id = $1 AND b.status = $4`

	var row statsRow
	err := s.db.GetContext(ctx, &row, query,
		userID, now, models.PaymentStatusSucceeded, models.BookingStatusConfirmed)
	if err != nil {
		return models.BookingStats{}, fmt.Errorf("failed to aggregate user stats: %w", err)
	}

	return models.BookingStats{
		TotalBookings:  row.TotalBookings,
		UpcomingEvents: row.UpcomingEvents,
		TotalSpent:     row.TotalAmount,
	}, nil
}
