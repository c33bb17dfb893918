package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ticketing-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// Tx is the unit of work handed out by InTx. Every write to events,
// bookings and payments goes through it.
type Tx interface {
	GetEventForUpdate(ctx context.Context, eventID string) (*models.Event, error)
	AdjustAvailableTickets(ctx context.Context, eventID string, delta int) error
	InsertBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)
	GetBookingForUpdate(ctx context.Context, bookingID string) (*models.Booking, error)
	UpdateBookingStatus(ctx context.Context, bookingID string, status models.BookingStatus) (*models.Booking, error)
	GetPaymentByIntent(ctx context.Context, intentID, userID string) (*models.Payment, error)
	InsertPayment(ctx context.Context, payment *models.Payment) (bool, error)
}

type sqlTx struct {
	tx *sqlx.Tx
}

// GetEventForUpdate reads the event row and holds its lock until the
// transaction ends
func (t *sqlTx) GetEventForUpdate(ctx context.Context, eventID string) (*models.Event, error) {
	var event models.Event
	err := t.tx.GetContext(ctx, &event,
		"SELECT "+eventColumns+" FROM events WHERE id = $1 FOR UPDATE", eventID)
	if isNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock event: %w", err)
	}
	return &event, nil
}

// AdjustAvailableTickets adds delta to available_tickets. The guard keeps
// the count within [0, total_tickets] even if the caller skipped the check.
func (t *sqlTx) AdjustAvailableTickets(ctx context.Context, eventID string, delta int) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE events
		SET available_tickets = available_tickets + $1, updated_at = NOW()
		WHERE id = $2
		  AND available_tickets + $1 >= 0
		  AND available_tickets + $1 <= total_tickets`,
		delta, eventID)
	if err != nil {
		return fmt.Errorf("failed to adjust inventory: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to adjust inventory: %w", err)
	}
	if n == 0 {
		return ErrInventoryConflict
	}
	return nil
}

// InsertBooking creates a booking row
func (t *sqlTx) InsertBooking(ctx context.Context, booking *models.Booking) error {
	query := `
		INSERT INTO bookings (id, event_id, user_id, number_of_tickets, total_amount, status, booking_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err := t.tx.QueryRowxContext(ctx, query,
		booking.ID, booking.EventID, booking.UserID, booking.NumberOfTickets,
		booking.TotalAmount, booking.Status, booking.BookingDate,
	).Scan(&booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

// GetBooking reads a booking without locking it. Callers already holding
// the event lock use it so locks are always taken booking before event.
func (t *sqlTx) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	var booking models.Booking
	err := t.tx.GetContext(ctx, &booking,
		"SELECT "+bookingColumns+" FROM bookings WHERE id = $1", bookingID)
	if isNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

// GetBookingForUpdate reads a booking and locks its row
func (t *sqlTx) GetBookingForUpdate(ctx context.Context, bookingID string) (*models.Booking, error) {
	var booking models.Booking
	err := t.tx.GetContext(ctx, &booking,
		"SELECT "+bookingColumns+" FROM bookings WHERE id = $1 FOR UPDATE", bookingID)
	if isNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}
	return &booking, nil
}

// UpdateBookingStatus sets the booking status and returns the updated row
func (t *sqlTx) UpdateBookingStatus(ctx context.Context, bookingID string, status models.BookingStatus) (*models.Booking, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown booking status %q", status)
	}

	var booking models.Booking
	err := t.tx.GetContext(ctx, &booking,
		"UPDATE bookings SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING "+bookingColumns,
		status, bookingID)
	if isNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}
	return &booking, nil
}

// GetPaymentByIntent looks up a payment by its idempotency key
func (t *sqlTx) GetPaymentByIntent(ctx context.Context, intentID, userID string) (*models.Payment, error) {
	var payment models.Payment
	err := t.tx.GetContext(ctx, &payment,
		"SELECT "+paymentColumns+" FROM payments WHERE gateway_intent_id = $1 AND user_id = $2",
		intentID, userID)
	if isNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &payment, nil
}

// InsertPayment inserts a payment unless one already exists for the same
// (gateway_intent_id, user_id). It reports whether a row was written.
func (t *sqlTx) InsertPayment(ctx context.Context, payment *models.Payment) (bool, error) {
	query := `
		INSERT INTO payments (id, user_id, organizer_id, event_id, booking_id, amount, currency, gateway_intent_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (gateway_intent_id, user_id) DO NOTHING
		RETURNING created_at, updated_at`

	err := t.tx.QueryRowxContext(ctx, query,
		payment.ID, payment.UserID, payment.OrganizerID, payment.EventID, payment.BookingID,
		payment.Amount, payment.Currency, payment.GatewayIntentID, payment.Status,
	).Scan(&payment.CreatedAt, &payment.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert payment: %w", err)
	}
	return true, nil
}
