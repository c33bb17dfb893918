package worker

import (
	"context"
	"fmt"
	"time"

	"ticketing-service/internal/broker"
	"ticketing-service/internal/models"
	"ticketing-service/internal/util"

	"go.uber.org/zap"
)

// DefaultDedupeTTL is how long a processed event id is remembered
const DefaultDedupeTTL = 24 * time.Hour

// Deduper claims event ids so redelivered messages are processed once.
// *redisclient.Client implements it.
type Deduper interface {
	SetIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

// Invalidator drops dashboards affected by a booking change.
// *service.StatsService implements it.
type Invalidator interface {
	InvalidateForBooking(ctx context.Context, event *models.BookingEvent) error
}

// StatsWorker keeps cached dashboards in step with booking events
type StatsWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	dedupe       Deduper
	stats        Invalidator
	ttl          time.Duration
	logger       *zap.Logger
}

// NewStatsWorker creates a new stats worker. consumer may be nil when the
// worker is only driven through Handle.
func NewStatsWorker(consumer *broker.Consumer, dedupe Deduper, stats Invalidator) *StatsWorker {
	w := &StatsWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		dedupe:       dedupe,
		stats:        stats,
		ttl:          DefaultDedupeTTL,
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnBookingConfirmed(w.Handle)
	w.eventHandler.OnBookingCancelled(w.Handle)
	return w
}

// Start consumes booking events until ctx is done
func (w *StatsWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stats worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StatsWorker) Stop() error {
	w.logger.Info("Stopping stats worker")
	return w.consumer.Close()
}

// Handle invalidates the dashboards touched by one booking event. A failed
// event is not redelivered: the consumer moves on and commits later offsets.
// Its claim is released so a replay of the topic can still process it, and
// the stats cache TTL bounds how long the dashboards stay stale.
func (w *StatsWorker) Handle(ctx context.Context, event *models.BookingEvent) error {
	ctx, span := util.StartSpan(ctx, "StatsWorker.Handle")
	defer span.End()

	key := "booking-event:" + event.EventID
	if w.dedupe != nil && event.EventID != "" {
		claimed, err := w.dedupe.SetIdempotencyKey(ctx, key, w.ttl)
		if err != nil {
			return fmt.Errorf("failed to claim event %s: %w", event.EventID, err)
		}
		if !claimed {
			w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
			return nil
		}
	}

	if err := w.stats.InvalidateForBooking(ctx, event); err != nil {
		if w.dedupe != nil && event.EventID != "" {
			if rerr := w.dedupe.ReleaseIdempotencyKey(ctx, key); rerr != nil {
				w.logger.Warn("Failed to release event claim", zap.String("event_id", event.EventID), zap.Error(rerr))
			}
		}
		return fmt.Errorf("failed to invalidate stats for booking %s: %w", event.BookingID, err)
	}

	w.logger.Debug("Stats invalidated",
		zap.String("event_type", event.EventType),
		zap.String("booking_id", event.BookingID),
		zap.String("organizer_id", event.OrganizerID))
	return nil
}
