package service

import (
	"context"
	"testing"
	"time"

	"ticketing-service/internal/models"
	"ticketing-service/internal/redisclient"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStatsCache(t *testing.T) (*redisclient.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	c := redisclient.NewFromRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestStatsPurchaserAndOrganizerPaths(t *testing.T) {
	past := upcomingEvent(1000, 10)
	past.ID = "evt-past"
	past.StartDate = time.Now().Add(-24 * time.Hour)

	f := newFixture(upcomingEvent(2500, 10), past)
	_, err := f.book(testUserID, 3, f.paidIntent("pi_1", testUserID, testEventID, 7500))
	require.NoError(t, err)
	_, err = f.reservations.CreateBooking(context.Background(), CreateBookingRequest{
		UserID: testUserID, EventID: past.ID, NumberOfTickets: 1,
		Role: models.RoleUser, PaymentIntentID: f.paidIntent("pi_2", testUserID, past.ID, 1000),
	})
	require.NoError(t, err)

	svc := NewStatsService(f.store, nil, time.Minute)

	purchaser, err := svc.GetBookingStats(context.Background(), testUserID, models.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, 2, purchaser.TotalBookings)
	assert.Equal(t, 1, purchaser.UpcomingEvents)
	assert.Equal(t, "85.00", purchaser.TotalSpent.String())
	assert.Zero(t, purchaser.TotalEarned)

	for _, role := range []models.Role{models.RoleOrganizer, models.RoleAdmin} {
		organizer, err := svc.GetBookingStats(context.Background(), testOrganizerID, role)
		require.NoError(t, err)
		assert.Equal(t, 2, organizer.TotalBookings)
		assert.Equal(t, 1, organizer.UpcomingEvents)
		assert.Equal(t, "85.00", organizer.TotalEarned.String())
		assert.Zero(t, organizer.TotalSpent)
	}
}

func TestStatsCachedUntilBookingChanges(t *testing.T) {
	cache, mr := newStatsCache(t)
	f := newFixture(upcomingEvent(2500, 10))
	f.reservations.cache = cache
	f.cancellations.cache = cache
	svc := NewStatsService(f.store, cache, time.Minute)
	ctx := context.Background()

	before, err := svc.GetBookingStats(ctx, testUserID, models.RoleUser)
	require.NoError(t, err)
	assert.Zero(t, before.TotalBookings)
	assert.True(t, mr.Exists("stats:"+PurchaserStatsKey(testUserID)))

	booking, err := f.book(testUserID, 1, f.paidIntent("pi_1", testUserID, testEventID, 2500))
	require.NoError(t, err)
	assert.False(t, mr.Exists("stats:"+PurchaserStatsKey(testUserID)))

	after, err := svc.GetBookingStats(ctx, testUserID, models.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, 1, after.TotalBookings)

	_, err = f.cancellations.CancelBooking(ctx, booking.ID, testUserID)
	require.NoError(t, err)

	cancelled, err := svc.GetBookingStats(ctx, testUserID, models.RoleUser)
	require.NoError(t, err)
	assert.Zero(t, cancelled.TotalBookings)
	assert.Equal(t, "25.00", cancelled.TotalSpent.String())
}

func TestStatsSurviveCacheOutage(t *testing.T) {
	cache, mr := newStatsCache(t)
	f := newFixture(upcomingEvent(2500, 10))
	svc := NewStatsService(f.store, cache, time.Minute)

	mr.Close()

	stats, err := svc.GetBookingStats(context.Background(), testOrganizerID, models.RoleOrganizer)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.UpcomingEvents)
}

func TestInvalidateForBookingDropsBothDashboards(t *testing.T) {
	cache, mr := newStatsCache(t)
	ctx := context.Background()
	svc := NewStatsService(newMemStore(), cache, time.Minute)

	for _, key := range []string{PurchaserStatsKey(testUserID), OrganizerStatsKey(testOrganizerID)} {
		written, err := cache.SetStats(ctx, key, models.BookingStats{TotalBookings: 1}, time.Minute, 0)
		require.NoError(t, err)
		require.True(t, written)
	}

	require.NoError(t, svc.InvalidateForBooking(ctx, &models.BookingEvent{UserID: testUserID, OrganizerID: testOrganizerID}))
	assert.False(t, mr.Exists("stats:"+PurchaserStatsKey(testUserID)))
	assert.False(t, mr.Exists("stats:"+OrganizerStatsKey(testOrganizerID)))
}

// gatedStore holds purchaser stats reads until released
type gatedStore struct {
	*memStore
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) PurchaserStats(ctx context.Context, userID string, now time.Time) (models.BookingStats, error) {
	stats, err := g.memStore.PurchaserStats(ctx, userID, now)
	close(g.entered)
	<-g.release
	return stats, err
}

func TestStatsReadOverlappingBookingIsNotCached(t *testing.T) {
	cache, mr := newStatsCache(t)
	f := newFixture(upcomingEvent(2500, 10))
	f.reservations.cache = cache
	ctx := context.Background()

	gated := &gatedStore{memStore: f.store, entered: make(chan struct{}), release: make(chan struct{})}
	slow := NewStatsService(gated, cache, time.Minute)

	done := make(chan *models.BookingStats, 1)
	go func() {
		stats, err := slow.GetBookingStats(ctx, testUserID, models.RoleUser)
		assert.NoError(t, err)
		done <- stats
	}()
	<-gated.entered

	// the booking commits and invalidates after the read took its snapshot
	_, err := f.book(testUserID, 1, f.paidIntent("pi_1", testUserID, testEventID, 2500))
	require.NoError(t, err)

	close(gated.release)
	stale := <-done
	require.NotNil(t, stale)
	assert.Zero(t, stale.TotalBookings)
	assert.False(t, mr.Exists("stats:"+PurchaserStatsKey(testUserID)))

	fresh, err := NewStatsService(f.store, cache, time.Minute).GetBookingStats(ctx, testUserID, models.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.TotalBookings)
	assert.Equal(t, "25.00", fresh.TotalSpent.String())
}
