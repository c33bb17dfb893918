package service

import (
	"context"
	"errors"
	"time"

	"ticketing-service/internal/models"
	"ticketing-service/internal/store"
	"ticketing-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CancellationService cancels bookings and returns their tickets
type CancellationService struct {
	store     BookingStore
	publisher BookingPublisher
	cache     StatsCache
	logger    *zap.Logger
}

// NewCancellationService creates a new cancellation service. publisher and
// cache may be nil.
func NewCancellationService(store BookingStore, publisher BookingPublisher, cache StatsCache) *CancellationService {
	return &CancellationService{
		store:     store,
		publisher: publisher,
		cache:     cache,
		logger:    util.GetLogger(),
	}
}

// CancelBooking cancels the caller's booking and restocks the event. The
// payment record is left untouched.
func (s *CancellationService) CancelBooking(ctx context.Context, bookingID, userID string) (*models.Booking, error) {
	ctx, span := util.StartSpan(ctx, "CancellationService.CancelBooking")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("user_id", userID),
	)

	var (
		cancelled   *models.Booking
		organizerID string
		restocked   bool
	)

	start := time.Now()
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		booking, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return translateStoreErr(err, "booking")
		}
		if booking.UserID != userID {
			return models.NewError(models.KindForbidden, "booking belongs to another user")
		}
		if booking.Status == models.BookingStatusCancelled {
			return models.NewError(models.KindAlreadyCancelled, "booking is already cancelled")
		}

		event, err := tx.GetEventForUpdate(ctx, booking.EventID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			s.logger.Info("Event gone, skipping restock",
				zap.String("booking_id", booking.ID),
				zap.String("event_id", booking.EventID))
		case err != nil:
			return err
		default:
			organizerID = event.OrganizerID
			if err := tx.AdjustAvailableTickets(ctx, event.ID, booking.NumberOfTickets); err != nil {
				return err
			}
			restocked = true
		}

		cancelled, err = tx.UpdateBookingStatus(ctx, booking.ID, models.BookingStatusCancelled)
		if err != nil {
			return translateStoreErr(err, "booking")
		}
		return nil
	})
	util.BookingTxLatency.WithLabelValues("cancel").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	util.BookingsCancelledTotal.Inc()
	if restocked {
		util.TicketsRestockedTotal.Add(float64(cancelled.NumberOfTickets))
	}
	s.logger.Info("Booking cancelled",
		zap.String("booking_id", cancelled.ID),
		zap.String("event_id", cancelled.EventID),
		zap.Int("tickets", cancelled.NumberOfTickets),
		zap.Bool("restocked", restocked))

	publishBookingChange(ctx, s.publisher, s.logger, cancelled, organizerID, false)
	invalidatePurchaserStats(ctx, s.cache, s.logger, cancelled.UserID)
	return cancelled, nil
}
