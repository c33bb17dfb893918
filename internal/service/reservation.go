package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticketing-service/internal/models"
	"ticketing-service/internal/payment"
	"ticketing-service/internal/store"
	"ticketing-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// errIntentReplayed rolls back a booking whose payment intent was recorded
// by a concurrent transaction
var errIntentReplayed = errors.New("payment intent already recorded")

// ReservationService turns verified payments into confirmed bookings
type ReservationService struct {
	store     BookingStore
	authority payment.Authority
	payments  *PaymentService
	publisher BookingPublisher
	cache     StatsCache
	logger    *zap.Logger
	now       func() time.Time
}

// NewReservationService creates a new reservation service. publisher and
// cache may be nil.
func NewReservationService(
	store BookingStore,
	authority payment.Authority,
	payments *PaymentService,
	publisher BookingPublisher,
	cache StatsCache,
) *ReservationService {
	if authority == nil {
		authority = payment.Unconfigured{}
	}
	return &ReservationService{
		store:     store,
		authority: authority,
		payments:  payments,
		publisher: publisher,
		cache:     cache,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// CreateBookingRequest represents a request to book tickets
type CreateBookingRequest struct {
	UserID          string
	EventID         string
	NumberOfTickets int
	Role            models.Role
	PaymentIntentID string
}

// CreateBooking verifies the payment intent and books the tickets in one
// transaction. Replaying an intent that already produced a booking returns
// that booking without touching inventory.
func (s *ReservationService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*models.Booking, error) {
	ctx, span := util.StartSpan(ctx, "ReservationService.CreateBooking")
	defer span.End()
	span.SetAttributes(
		attribute.String("event_id", req.EventID),
		attribute.String("user_id", req.UserID),
		attribute.Int("tickets", req.NumberOfTickets),
	)

	if err := validateBookingRequest(req); err != nil {
		util.BookingsFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	intent, err := s.verifyIntent(ctx, req)
	if err != nil {
		util.BookingsFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	var (
		booking     *models.Booking
		organizerID string
		replayed    bool
	)

	start := time.Now()
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		event, err := tx.GetEventForUpdate(ctx, req.EventID)
		if err != nil {
			return translateStoreErr(err, "event")
		}
		organizerID = event.OrganizerID

		prior, err := s.bookingForIntent(ctx, tx, req)
		if err != nil {
			return err
		}
		if prior != nil {
			booking, replayed = prior, true
			return nil
		}

		if event.AvailableTickets < req.NumberOfTickets {
			return models.NewError(models.KindInsufficientInventory, "not enough tickets available")
		}

		total := event.Price.Times(req.NumberOfTickets)
		if total.Cents() != intent.AmountMinorUnits {
			s.logger.Warn("Captured amount does not match booking total",
				zap.String("intent_id", intent.ID),
				zap.Int64("expected_cents", total.Cents()),
				zap.Int64("captured_cents", intent.AmountMinorUnits))
			return models.NewError(models.KindAmountMismatch, "payment amount does not match booking total")
		}

		now := s.now().UTC()
		booking = &models.Booking{
			ID:              uuid.New().String(),
			EventID:         event.ID,
			UserID:          req.UserID,
			NumberOfTickets: req.NumberOfTickets,
			TotalAmount:     total,
			Status:          models.BookingStatusConfirmed,
			BookingDate:     now,
		}
		if err := tx.InsertBooking(ctx, booking); err != nil {
			return err
		}

		if err := tx.AdjustAvailableTickets(ctx, event.ID, -req.NumberOfTickets); err != nil {
			return translateStoreErr(err, "event")
		}

		currency := intent.Currency
		if currency == "" {
			currency = models.DefaultCurrency
		}
		p, err := s.payments.RecordPayment(ctx, tx, RecordPaymentParams{
			IntentID:    intent.ID,
			UserID:      req.UserID,
			OrganizerID: event.OrganizerID,
			EventID:     event.ID,
			BookingID:   &booking.ID,
			Amount:      total,
			Currency:    currency,
			Status:      models.PaymentStatusSucceeded,
		})
		if err != nil {
			return err
		}
		if p.BookingID == nil || *p.BookingID != booking.ID {
			return errIntentReplayed
		}
		return nil
	})
	util.BookingTxLatency.WithLabelValues("create").Observe(time.Since(start).Seconds())

	if errors.Is(err, errIntentReplayed) {
		booking, err = s.lookupReplayedBooking(ctx, req)
		replayed = err == nil
	}
	if err != nil {
		util.BookingsFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	if replayed {
		util.BookingsReplayedTotal.Inc()
		s.logger.Info("Payment intent replayed, returning existing booking",
			zap.String("intent_id", req.PaymentIntentID),
			zap.String("booking_id", booking.ID))
		return booking, nil
	}

	util.BookingsCreatedTotal.Inc()
	util.TicketsSoldTotal.Add(float64(booking.NumberOfTickets))
	s.logger.Info("Booking confirmed",
		zap.String("booking_id", booking.ID),
		zap.String("event_id", booking.EventID),
		zap.String("user_id", booking.UserID),
		zap.Int("tickets", booking.NumberOfTickets),
		zap.String("total", booking.TotalAmount.String()))

	s.afterCommit(ctx, booking, organizerID, true)
	return booking, nil
}

func validateBookingRequest(req CreateBookingRequest) error {
	if req.Role == models.RoleOrganizer {
		return models.NewError(models.KindForbidden, "organizers cannot purchase tickets")
	}
	if req.PaymentIntentID == "" {
		return models.NewError(models.KindInvalidRequest, "payment intent id is required")
	}
	if req.NumberOfTickets <= 0 {
		return models.NewError(models.KindInvalidRequest, "number of tickets must be a positive integer")
	}
	if req.EventID == "" {
		return models.NewError(models.KindInvalidRequest, "event id is required")
	}
	return nil
}

// verifyIntent fetches the intent once, outside any transaction
func (s *ReservationService) verifyIntent(ctx context.Context, req CreateBookingRequest) (*payment.Intent, error) {
	start := time.Now()
	intent, err := s.authority.GetIntent(ctx, req.PaymentIntentID)
	util.PaymentVerificationLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrNotConfigured):
			return nil, models.WrapError(models.KindUnavailable, "payment provider unavailable", err)
		case errors.Is(err, payment.ErrIntentNotFound):
			return nil, models.NewError(models.KindInvalidRequest, "unknown payment intent")
		}
		return nil, fmt.Errorf("failed to retrieve payment intent: %w", err)
	}

	if !intent.Succeeded() {
		return nil, models.NewError(models.KindPaymentIncomplete, "payment has not completed")
	}
	if intent.Metadata[payment.MetaEventID] != req.EventID || intent.Metadata[payment.MetaUserID] != req.UserID {
		s.logger.Warn("Payment intent metadata mismatch",
			zap.String("intent_id", intent.ID),
			zap.String("event_id", req.EventID),
			zap.String("user_id", req.UserID))
		return nil, models.NewError(models.KindPaymentMismatch, "payment does not match this booking")
	}
	return intent, nil
}

// bookingForIntent returns the booking an already recorded intent produced
func (s *ReservationService) bookingForIntent(ctx context.Context, tx store.Tx, req CreateBookingRequest) (*models.Booking, error) {
	p, err := tx.GetPaymentByIntent(ctx, req.PaymentIntentID, req.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.BookingID == nil {
		return nil, models.NewError(models.KindInvalidRequest, "payment intent has already been used")
	}
	// the event lock is already held, so the booking is read without one
	booking, err := tx.GetBooking(ctx, *p.BookingID)
	if err != nil {
		return nil, translateStoreErr(err, "booking")
	}
	return booking, nil
}

func (s *ReservationService) lookupReplayedBooking(ctx context.Context, req CreateBookingRequest) (*models.Booking, error) {
	var booking *models.Booking
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		booking, err = s.bookingForIntent(ctx, tx, req)
		if err == nil && booking == nil {
			err = fmt.Errorf("payment intent %s vanished after conflict", req.PaymentIntentID)
		}
		return err
	})
	return booking, err
}

// afterCommit runs the best-effort side effects of a committed change
func (s *ReservationService) afterCommit(ctx context.Context, booking *models.Booking, organizerID string, confirmed bool) {
	publishBookingChange(ctx, s.publisher, s.logger, booking, organizerID, confirmed)
	invalidatePurchaserStats(ctx, s.cache, s.logger, booking.UserID)
}

func publishBookingChange(ctx context.Context, publisher BookingPublisher, logger *zap.Logger, booking *models.Booking, organizerID string, confirmed bool) {
	if publisher == nil {
		return
	}
	var err error
	if confirmed {
		err = publisher.PublishBookingConfirmed(ctx, booking, organizerID)
	} else {
		err = publisher.PublishBookingCancelled(ctx, booking, organizerID)
	}
	if err != nil {
		logger.Warn("Failed to publish booking event",
			zap.String("booking_id", booking.ID),
			zap.Error(err))
	}
}

// failureReason labels a failed attempt for metrics
func failureReason(err error) string {
	if kind, ok := models.KindOf(err); ok {
		return string(kind)
	}
	return "internal"
}
