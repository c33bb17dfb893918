package service

import (
	"context"
	"errors"

	"ticketing-service/internal/models"
	"ticketing-service/internal/store"
)

// QueryService serves read-only booking lookups
type QueryService struct {
	store BookingStore
}

// NewQueryService creates a new query service
func NewQueryService(store BookingStore) *QueryService {
	return &QueryService{store: store}
}

// GetBooking retrieves a booking visible to the caller: its purchaser, the
// organizer of its event, or an admin. Anyone else gets not found, which
// keeps other users' booking ids from being confirmed.
func (s *QueryService) GetBooking(ctx context.Context, bookingID, userID string, role models.Role) (*models.Booking, error) {
	booking, err := s.store.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, translateStoreErr(err, "booking")
	}
	if role == models.RoleAdmin || booking.UserID == userID {
		return booking, nil
	}

	if role == models.RoleOrganizer {
		event, err := s.store.GetEventByID(ctx, booking.EventID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if event != nil && event.OrganizerID == userID {
			return booking, nil
		}
	}
	return nil, models.NewError(models.KindNotFound, "booking not found")
}

// ListUserBookings lists the caller's bookings, newest first
func (s *QueryService) ListUserBookings(ctx context.Context, userID string) ([]models.Booking, error) {
	return s.store.ListBookingsByUser(ctx, userID)
}

// ListEventBookings lists bookings of an event. Only the organizer who owns
// the event may see them.
func (s *QueryService) ListEventBookings(ctx context.Context, eventID, organizerID string) ([]models.Booking, error) {
	event, err := s.store.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, translateStoreErr(err, "event")
	}
	if event.OrganizerID != organizerID {
		return nil, models.NewError(models.KindForbidden, "event belongs to another organizer")
	}
	return s.store.ListBookingsByEvent(ctx, eventID)
}
