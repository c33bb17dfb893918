package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"ticketing-service/internal/models"
	"ticketing-service/internal/payment"
	"ticketing-service/internal/store"

	"github.com/stretchr/testify/mock"
)

// memStore is an in-memory BookingStore. InTx serializes transactions and
// restores a snapshot when fn fails, which gives the same observable
// guarantees as the row-locked SQL implementation.
type memStore struct {
	mu       sync.Mutex
	events   map[string]models.Event
	bookings map[string]models.Booking
	payments map[string]models.Payment

	// hiddenPaymentReads makes that many GetPaymentByIntent calls miss, the
	// way a payment committed by a concurrent transaction is invisible to a
	// snapshot taken before it
	hiddenPaymentReads int
}

func newMemStore(events ...models.Event) *memStore {
	s := &memStore{
		events:   make(map[string]models.Event),
		bookings: make(map[string]models.Booking),
		payments: make(map[string]models.Payment),
	}
	for _, e := range events {
		s.events[e.ID] = e
	}
	return s
}

func paymentKey(intentID, userID string) string {
	return intentID + "|" + userID
}

func (s *memStore) InTx(ctx context.Context, fn func(store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := copyMap(s.events)
	bookings := copyMap(s.bookings)
	payments := copyMap(s.payments)

	if err := fn(&memTx{s: s}); err != nil {
		s.events, s.bookings, s.payments = events, bookings, payments
		return err
	}
	return nil
}

func copyMap[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *memStore) GetEventByID(_ context.Context, id string) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &e, nil
}

func (s *memStore) GetBookingByID(_ context.Context, id string) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &b, nil
}

func (s *memStore) listBookings(match func(models.Booking) bool) []models.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Booking{}
	for _, b := range s.bookings {
		if match(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookingDate.After(out[j].BookingDate) })
	return out
}

func (s *memStore) ListBookingsByUser(_ context.Context, userID string) ([]models.Booking, error) {
	return s.listBookings(func(b models.Booking) bool { return b.UserID == userID }), nil
}

func (s *memStore) ListBookingsByEvent(_ context.Context, eventID string) ([]models.Booking, error) {
	return s.listBookings(func(b models.Booking) bool { return b.EventID == eventID }), nil
}

func (s *memStore) OrganizerStats(_ context.Context, organizerID string, now time.Time) (models.BookingStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats models.BookingStats
	for _, e := range s.events {
		if e.OrganizerID == organizerID && e.StartDate.After(now) {
			stats.UpcomingEvents++
		}
	}
	for _, p := range s.payments {
		if p.OrganizerID == organizerID && p.Status == models.PaymentStatusSucceeded {
			stats.TotalBookings++
			stats.TotalEarned += p.Amount
		}
	}
	return stats, nil
}

func (s *memStore) PurchaserStats(_ context.Context, userID string, now time.Time) (models.BookingStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats models.BookingStats
	for _, b := range s.bookings {
		if b.UserID != userID || b.Status != models.BookingStatusConfirmed {
			continue
		}
		stats.TotalBookings++
		if e, ok := s.events[b.EventID]; ok && e.StartDate.After(now) {
			stats.UpcomingEvents++
		}
	}
	for _, p := range s.payments {
		if p.UserID == userID && p.Status == models.PaymentStatusSucceeded {
			stats.TotalSpent += p.Amount
		}
	}
	return stats, nil
}

func (s *memStore) event(id string) models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[id]
}

func (s *memStore) deleteEvent(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, id)
}

func (s *memStore) counts() (bookings, payments int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bookings), len(s.payments)
}

func (s *memStore) confirmedTickets(eventID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.bookings {
		if b.EventID == eventID && b.Status == models.BookingStatusConfirmed {
			n += b.NumberOfTickets
		}
	}
	return n
}

// memTx runs with memStore.mu held
type memTx struct {
	s *memStore
}

func (t *memTx) GetEventForUpdate(_ context.Context, eventID string) (*models.Event, error) {
	e, ok := t.s.events[eventID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &e, nil
}

func (t *memTx) AdjustAvailableTickets(_ context.Context, eventID string, delta int) error {
	e, ok := t.s.events[eventID]
	if !ok {
		return store.ErrInventoryConflict
	}
	next := e.AvailableTickets + delta
	if next < 0 || next > e.TotalTickets {
		return store.ErrInventoryConflict
	}
	e.AvailableTickets = next
	t.s.events[eventID] = e
	return nil
}

func (t *memTx) InsertBooking(_ context.Context, booking *models.Booking) error {
	booking.CreatedAt = booking.BookingDate
	booking.UpdatedAt = booking.BookingDate
	t.s.bookings[booking.ID] = *booking
	return nil
}

func (t *memTx) GetBooking(_ context.Context, bookingID string) (*models.Booking, error) {
	b, ok := t.s.bookings[bookingID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &b, nil
}

func (t *memTx) GetBookingForUpdate(_ context.Context, bookingID string) (*models.Booking, error) {
	b, ok := t.s.bookings[bookingID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &b, nil
}

func (t *memTx) UpdateBookingStatus(_ context.Context, bookingID string, status models.BookingStatus) (*models.Booking, error) {
	b, ok := t.s.bookings[bookingID]
	if !ok {
		return nil, store.ErrNotFound
	}
	b.Status = status
	t.s.bookings[bookingID] = b
	return &b, nil
}

func (t *memTx) GetPaymentByIntent(_ context.Context, intentID, userID string) (*models.Payment, error) {
	if t.s.hiddenPaymentReads > 0 {
		t.s.hiddenPaymentReads--
		return nil, store.ErrNotFound
	}
	p, ok := t.s.payments[paymentKey(intentID, userID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (t *memTx) InsertPayment(_ context.Context, p *models.Payment) (bool, error) {
	key := paymentKey(p.GatewayIntentID, p.UserID)
	if _, ok := t.s.payments[key]; ok {
		return false, nil
	}
	t.s.payments[key] = *p
	return true, nil
}

// mockAuthority is a testify mock of payment.Authority
type mockAuthority struct {
	mock.Mock
}

func (m *mockAuthority) GetIntent(ctx context.Context, ref string) (*payment.Intent, error) {
	args := m.Called(ctx, ref)
	intent, _ := args.Get(0).(*payment.Intent)
	return intent, args.Error(1)
}

func (m *mockAuthority) CreateIntent(ctx context.Context, params payment.IntentParams) (*payment.Intent, error) {
	args := m.Called(ctx, params)
	intent, _ := args.Get(0).(*payment.Intent)
	return intent, args.Error(1)
}

type publishedEvent struct {
	confirmed   bool
	bookingID   string
	organizerID string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) record(confirmed bool, booking *models.Booking, organizerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{confirmed, booking.ID, organizerID})
	return p.err
}

func (p *recordingPublisher) PublishBookingConfirmed(_ context.Context, booking *models.Booking, organizerID string) error {
	return p.record(true, booking, organizerID)
}

func (p *recordingPublisher) PublishBookingCancelled(_ context.Context, booking *models.Booking, organizerID string) error {
	return p.record(false, booking, organizerID)
}
