package service

import (
	"context"
	"time"

	"ticketing-service/internal/models"
	"ticketing-service/internal/util"

	"go.uber.org/zap"
)

// DefaultStatsTTL bounds how stale a cached dashboard can get
const DefaultStatsTTL = 30 * time.Second

// PurchaserStatsKey is the cache key of a user's purchaser dashboard
func PurchaserStatsKey(userID string) string {
	return "purchaser:" + userID
}

// OrganizerStatsKey is the cache key of an organizer's payee dashboard
func OrganizerStatsKey(userID string) string {
	return "organizer:" + userID
}

// StatsService serves booking dashboards from aggregate queries
type StatsService struct {
	store  BookingStore
	cache  StatsCache
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewStatsService creates a new stats service. cache may be nil.
func NewStatsService(store BookingStore, cache StatsCache, ttl time.Duration) *StatsService {
	if ttl <= 0 {
		ttl = DefaultStatsTTL
	}
	return &StatsService{
		store:  store,
		cache:  cache,
		ttl:    ttl,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// GetBookingStats returns the organizer dashboard for organizers and admins
// and the purchaser dashboard for everyone else
func (s *StatsService) GetBookingStats(ctx context.Context, userID string, role models.Role) (*models.BookingStats, error) {
	ctx, span := util.StartSpan(ctx, "StatsService.GetBookingStats")
	defer span.End()

	if userID == "" {
		return nil, models.NewError(models.KindInvalidRequest, "user id is required")
	}

	key := PurchaserStatsKey(userID)
	if role.SeesOrganizerStats() {
		key = OrganizerStatsKey(userID)
	}

	// version stays unset when the cache is down so nothing is written back
	var version *int64
	if s.cache != nil {
		cached, err := s.cache.GetStats(ctx, key)
		switch {
		case err != nil:
			util.StatsCacheTotal.WithLabelValues("error").Inc()
			s.logger.Warn("Stats cache read failed", zap.String("key", key), zap.Error(err))
		case cached != nil:
			util.StatsCacheTotal.WithLabelValues("hit").Inc()
			return cached, nil
		default:
			util.StatsCacheTotal.WithLabelValues("miss").Inc()
		}
		if v, err := s.cache.StatsVersion(ctx, key); err != nil {
			s.logger.Warn("Stats cache version read failed", zap.String("key", key), zap.Error(err))
		} else {
			version = &v
		}
	}

	var (
		stats models.BookingStats
		err   error
	)
	now := s.now().UTC()
	if role.SeesOrganizerStats() {
		stats, err = s.store.OrganizerStats(ctx, userID, now)
	} else {
		stats, err = s.store.PurchaserStats(ctx, userID, now)
	}
	if err != nil {
		return nil, err
	}

	if version != nil {
		written, err := s.cache.SetStats(ctx, key, stats, s.ttl, *version)
		switch {
		case err != nil:
			s.logger.Warn("Stats cache write failed", zap.String("key", key), zap.Error(err))
		case !written:
			s.logger.Debug("Stats invalidated during read, not cached", zap.String("key", key))
		}
	}
	return &stats, nil
}

// InvalidateForBooking drops the dashboards a booking change affects
func (s *StatsService) InvalidateForBooking(ctx context.Context, event *models.BookingEvent) error {
	if s.cache == nil {
		return nil
	}
	keys := []string{PurchaserStatsKey(event.UserID)}
	if event.OrganizerID != "" {
		keys = append(keys, OrganizerStatsKey(event.OrganizerID))
	}
	return s.cache.InvalidateStats(ctx, keys...)
}

func invalidatePurchaserStats(ctx context.Context, cache StatsCache, logger *zap.Logger, userID string) {
	if cache == nil {
		return
	}
	if err := cache.InvalidateStats(ctx, PurchaserStatsKey(userID)); err != nil {
		logger.Warn("Failed to invalidate stats cache",
			zap.String("user_id", userID),
			zap.Error(err))
	}
}
