package service

import (
	"context"
	"errors"
	"time"

	"ticketing-service/internal/models"
	"ticketing-service/internal/store"
)

// BookingStore is the persistence the services depend on. *store.Store
// implements it.
type BookingStore interface {
	InTx(ctx context.Context, fn func(store.Tx) error) error
	GetEventByID(ctx context.Context, id string) (*models.Event, error)
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	ListBookingsByUser(ctx context.Context, userID string) ([]models.Booking, error)
	ListBookingsByEvent(ctx context.Context, eventID string) ([]models.Booking, error)
	OrganizerStats(ctx context.Context, organizerID string, now time.Time) (models.BookingStats, error)
	PurchaserStats(ctx context.Context, userID string, now time.Time) (models.BookingStats, error)
}

// StatsCache caches dashboard stats. Every invalidation bumps the key's
// version and SetStats writes only when the version it is given is still
// current. *redisclient.Client implements it.
type StatsCache interface {
	GetStats(ctx context.Context, key string) (*models.BookingStats, error)
	StatsVersion(ctx context.Context, key string) (int64, error)
	SetStats(ctx context.Context, key string, stats models.BookingStats, ttl time.Duration, version int64) (bool, error)
	InvalidateStats(ctx context.Context, keys ...string) error
}

// BookingPublisher announces committed booking changes.
// *broker.EventPublisher implements it.
type BookingPublisher interface {
	PublishBookingConfirmed(ctx context.Context, booking *models.Booking, organizerID string) error
	PublishBookingCancelled(ctx context.Context, booking *models.Booking, organizerID string) error
}

// translateStoreErr maps storage sentinels onto domain errors
func translateStoreErr(err error, what string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return models.NewError(models.KindNotFound, what+" not found")
	case errors.Is(err, store.ErrInventoryConflict):
		return models.NewError(models.KindInsufficientInventory, "not enough tickets available")
	}
	return err
}
