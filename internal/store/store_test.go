package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"ticketing-service/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &Store{db: sqlx.NewDb(db, "postgres")}, mock
}

func eventRows(available int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "organizer_id", "title", "price", "total_tickets", "available_tickets",
		"start_date", "created_at", "updated_at",
	}).AddRow("evt-1", "org-1", "Concert", "25.00", 10, 10, now.Add(24*time.Hour), now, now)
}

func TestInTxCommitsOnSuccess(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM events WHERE id = \$1 FOR UPDATE`).
		WithArgs("evt-1").
		WillReturnRows(eventRows(10))
	mock.ExpectExec(`UPDATE events\s+SET available_tickets = available_tickets \+ \$1`).
		WithArgs(-3, "evt-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.InTx(ctx, func(tx Tx) error {
		event, err := tx.GetEventForUpdate(ctx, "evt-1")
		if err != nil {
			return err
		}
		assert.Equal(t, models.Money(2500), event.Price)
		return tx.AdjustAvailableTickets(ctx, event.ID, -3)
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxRollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE events`).
		WithArgs(-11, "evt-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.InTx(ctx, func(tx Tx) error {
		return tx.AdjustAvailableTickets(ctx, "evt-1", -11)
	})

	assert.ErrorIs(t, err, ErrInventoryConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxRollsBackOnPanic(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = s.InTx(context.Background(), func(tx Tx) error {
			panic("boom")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEventForUpdateNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM events WHERE id = \$1 FOR UPDATE`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := s.InTx(ctx, func(tx Tx) error {
		_, err := tx.GetEventForUpdate(ctx, "missing")
		return err
	})

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertPaymentReportsConflict(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	bookingID := "bk-1"

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO payments .+ ON CONFLICT \(gateway_intent_id, user_id\) DO NOTHING`).
		WithArgs("pay-1", "user-1", "org-1", "evt-1", &bookingID, "75.00", "usd", "pi_1", "succeeded").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}))
	mock.ExpectCommit()

	var inserted bool
	err := s.InTx(ctx, func(tx Tx) error {
		var err error
		inserted, err = tx.InsertPayment(ctx, &models.Payment{
			ID:              "pay-1",
			UserID:          "user-1",
			OrganizerID:     "org-1",
			EventID:         "evt-1",
			BookingID:       &bookingID,
			Amount:          7500,
			Currency:        "usd",
			GatewayIntentID: "pi_1",
			Status:          "succeeded",
		})
		return err
	})

	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrganizerStatsUsesSingleAggregate(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`COALESCE\(SUM\(amount\), 0\) AS total_amount\s+FROM payments`).
		WithArgs("org-1", now, "succeeded").
		WillReturnRows(sqlmock.NewRows([]string{"upcoming_events", "total_bookings", "total_amount"}).
			AddRow(2, 5, "312.50"))

	stats, err := s.OrganizerStats(context.Background(), "org-1", now)

	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalBookings)
	assert.Equal(t, 2, stats.UpcomingEvents)
	assert.Equal(t, models.Money(31250), stats.TotalEarned)
	assert.Equal(t, models.Money(0), stats.TotalSpent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurchaserStatsUsesSingleAggregate(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`FROM bookings b\s+LEFT JOIN events e`).
		WithArgs("user-1", now, "succeeded", "confirmed").
		WillReturnRows(sqlmock.NewRows([]string{"total_bookings", "upcoming_events", "total_amount"}).
			AddRow(3, 1, "59.97"))

	stats, err := s.PurchaserStats(context.Background(), "user-1", now)

	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalBookings)
	assert.Equal(t, 1, stats.UpcomingEvents)
	assert.Equal(t, models.Money(5997), stats.TotalSpent)
	assert.Equal(t, models.Money(0), stats.TotalEarned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBookingByIDNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`FROM bookings WHERE id = \$1`).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetBookingByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMalformedIDsAreNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	badUUID := &pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "not-a-uuid"`}

	mock.ExpectQuery(`FROM bookings WHERE id = \$1`).
		WithArgs("not-a-uuid").
		WillReturnError(badUUID)
	_, err := s.GetBookingByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectQuery(`FROM events WHERE id = \$1`).
		WithArgs("not-a-uuid").
		WillReturnError(badUUID)
	_, err = s.GetEventByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM events WHERE id = \$1 FOR UPDATE`).
		WithArgs("not-a-uuid").
		WillReturnError(badUUID)
	mock.ExpectRollback()
	err = s.InTx(ctx, func(tx Tx) error {
		_, err := tx.GetEventForUpdate(ctx, "not-a-uuid")
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOtherPostgresErrorsAreNotMasked(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`FROM bookings WHERE id = \$1`).
		WillReturnError(&pq.Error{Code: "40001"})

	_, err := s.GetBookingByID(context.Background(), "bk-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestGetBookingTakesNoRowLock(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM bookings WHERE id = \$1$`).
		WithArgs("bk-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "event_id", "user_id", "number_of_tickets", "total_amount", "status",
			"booking_date", "created_at", "updated_at",
		}).AddRow("bk-1", "evt-1", "user-1", 2, "50.00", "confirmed", now, now, now))
	mock.ExpectCommit()

	err := s.InTx(ctx, func(tx Tx) error {
		booking, err := tx.GetBooking(ctx, "bk-1")
		if err != nil {
			return err
		}
		assert.Equal(t, models.Money(5000), booking.TotalAmount)
		return nil
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateBookingStatusRejectsUnknownStatus(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.InTx(ctx, func(tx Tx) error {
		_, err := tx.UpdateBookingStatus(ctx, "bk-1", models.BookingStatus("refunded"))
		return err
	})

	assert.ErrorContains(t, err, "unknown booking status")
	assert.NoError(t, mock.ExpectationsWereMet())
}
