package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ticketing-service/internal/models"
	"ticketing-service/internal/payment"
	"ticketing-service/internal/store"
	"ticketing-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentService records payments and creates checkout intents
type PaymentService struct {
	store     BookingStore
	authority payment.Authority
	logger    *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(store BookingStore, authority payment.Authority) *PaymentService {
	if authority == nil {
		authority = payment.Unconfigured{}
	}
	return &PaymentService{
		store:     store,
		authority: authority,
		logger:    util.GetLogger(),
	}
}

// RecordPaymentParams describes a payment to persist
type RecordPaymentParams struct {
	IntentID    string
	UserID      string
	OrganizerID string
	EventID     string
	BookingID   *string
	Amount      models.Money
	Currency    string
	Status      string
}

// RecordPayment persists a payment inside tx. A payment that already exists
// for (IntentID, UserID) is returned unchanged and nothing is written.
func (s *PaymentService) RecordPayment(ctx context.Context, tx store.Tx, params RecordPaymentParams) (*models.Payment, error) {
	existing, err := tx.GetPaymentByIntent(ctx, params.IntentID, params.UserID)
	if err == nil {
		util.PaymentsRecordedTotal.WithLabelValues("existing").Inc()
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	currency := params.Currency
	if currency == "" {
		currency = models.DefaultCurrency
	}

	p := &models.Payment{
		ID:              uuid.New().String(),
		UserID:          params.UserID,
		OrganizerID:     params.OrganizerID,
		EventID:         params.EventID,
		BookingID:       params.BookingID,
		Amount:          params.Amount,
		Currency:        currency,
		GatewayIntentID: params.IntentID,
		Status:          params.Status,
	}

	inserted, err := tx.InsertPayment(ctx, p)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// a concurrent transaction committed the same intent first
		util.PaymentsRecordedTotal.WithLabelValues("existing").Inc()
		return tx.GetPaymentByIntent(ctx, params.IntentID, params.UserID)
	}

	util.PaymentsRecordedTotal.WithLabelValues("inserted").Inc()
	return p, nil
}

// CreateIntentRequest is a checkout request for an event
type CreateIntentRequest struct {
	UserID          string
	Role            models.Role
	EventID         string
	NumberOfTickets int
}

// CreateIntentResponse carries what the client needs to confirm the charge
type CreateIntentResponse struct {
	IntentID     string       `json:"payment_intent_id"`
	ClientSecret string       `json:"client_secret"`
	Amount       models.Money `json:"amount"`
	Currency     string       `json:"currency"`
}

// CreatePaymentIntent prices the requested tickets and opens an intent with
// the payment provider. The intent metadata is what CreateBooking verifies
// later.
func (s *PaymentService) CreatePaymentIntent(ctx context.Context, req CreateIntentRequest) (*CreateIntentResponse, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.CreatePaymentIntent")
	defer span.End()

	if req.Role == models.RoleOrganizer {
		return nil, models.NewError(models.KindForbidden, "organizers cannot purchase tickets")
	}
	if req.EventID == "" {
		return nil, models.NewError(models.KindInvalidRequest, "event id is required")
	}
	if req.NumberOfTickets <= 0 {
		return nil, models.NewError(models.KindInvalidRequest, "number of tickets must be a positive integer")
	}

	event, err := s.store.GetEventByID(ctx, req.EventID)
	if err != nil {
		return nil, translateStoreErr(err, "event")
	}
	if event.AvailableTickets < req.NumberOfTickets {
		return nil, models.NewError(models.KindInsufficientInventory, "not enough tickets available")
	}

	amount := event.Price.Times(req.NumberOfTickets)

	start := time.Now()
	intent, err := s.authority.CreateIntent(ctx, payment.IntentParams{
		AmountMinorUnits: amount.Cents(),
		Currency:         models.DefaultCurrency,
		Metadata: map[string]string{
			payment.MetaEventID:         event.ID,
			payment.MetaUserID:          req.UserID,
			payment.MetaOrganizerID:     event.OrganizerID,
			payment.MetaNumberOfTickets: strconv.Itoa(req.NumberOfTickets),
		},
	})
	util.PaymentVerificationLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, payment.ErrNotConfigured) {
			return nil, models.WrapError(models.KindUnavailable, "payment provider unavailable", err)
		}
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	util.PaymentIntentsCreatedTotal.Inc()
	s.logger.Info("Payment intent created",
		zap.String("intent_id", intent.ID),
		zap.String("event_id", event.ID),
		zap.String("user_id", req.UserID),
		zap.Int64("amount_cents", amount.Cents()))

	currency := intent.Currency
	if currency == "" {
		currency = models.DefaultCurrency
	}

	return &CreateIntentResponse{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       amount,
		Currency:     currency,
	}, nil
}
