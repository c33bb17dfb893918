package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ticketing-service/internal/models"
	"ticketing-service/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing booking events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// NewBookingEvent builds an event envelope for a booking
func NewBookingEvent(eventType string, booking *models.Booking, organizerID string) *models.BookingEvent {
	return &models.BookingEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: time.Now().UTC(),
		},
		BookingID:   booking.ID,
		TicketEvent: booking.EventID,
		UserID:      booking.UserID,
		OrganizerID: organizerID,
		Tickets:     booking.NumberOfTickets,
		TotalAmount: booking.TotalAmount,
	}
}

// PublishBookingConfirmed publishes BookingConfirmed event
func (ep *EventPublisher) PublishBookingConfirmed(ctx context.Context, booking *models.Booking, organizerID string) error {
	event := NewBookingEvent(models.EventTypeBookingConfirmed, booking, organizerID)
	return ep.producer.PublishEvent(ctx, bookingKey(booking.ID), event)
}

// PublishBookingCancelled publishes BookingCancelled event
func (ep *EventPublisher) PublishBookingCancelled(ctx context.Context, booking *models.Booking, organizerID string) error {
	event := NewBookingEvent(models.EventTypeBookingCancelled, booking, organizerID)
	return ep.producer.PublishEvent(ctx, bookingKey(booking.ID), event)
}

func bookingKey(bookingID string) string {
	return fmt.Sprintf("booking-%s", bookingID)
}

// EventHandler handles incoming events
type EventHandler struct {
	onBookingConfirmed func(context.Context, *models.BookingEvent) error
	onBookingCancelled func(context.Context, *models.BookingEvent) error
	logger             *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnBookingConfirmed registers a handler for BookingConfirmed events
func (eh *EventHandler) OnBookingConfirmed(handler func(context.Context, *models.BookingEvent) error) {
	eh.onBookingConfirmed = handler
}

// OnBookingCancelled registers a handler for BookingCancelled events
func (eh *EventHandler) OnBookingCancelled(handler func(context.Context, *models.BookingEvent) error) {
	eh.onBookingCancelled = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var event models.BookingEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal booking event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", event.EventType),
		zap.String("id", event.EventID))

	switch event.EventType {
	case models.EventTypeBookingConfirmed:
		if eh.onBookingConfirmed != nil {
			return eh.onBookingConfirmed(ctx, &event)
		}
	case models.EventTypeBookingCancelled:
		if eh.onBookingCancelled != nil {
			return eh.onBookingCancelled(ctx, &event)
		}
	default:
		eh.logger.Warn("Unhandled event type", zap.String("type", event.EventType))
	}

	return nil
}
