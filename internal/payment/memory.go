package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryAuthority is an in-process provider for local development and load
// tests. Intents start in requires_payment_method and are confirmed out of
// band with Confirm.
type MemoryAuthority struct {
	mu      sync.RWMutex
	intents map[string]*Intent
}

// NewMemoryAuthority creates an empty in-memory provider
func NewMemoryAuthority() *MemoryAuthority {
	return &MemoryAuthority{intents: make(map[string]*Intent)}
}

// CreateIntent stores a new pending intent
func (m *MemoryAuthority) CreateIntent(_ context.Context, params IntentParams) (*Intent, error) {
	id := "pi_" + uuid.New().String()
	intent := &Intent{
		ID:               id,
		Status:           "requires_payment_method",
		AmountMinorUnits: params.AmountMinorUnits,
		Currency:         params.Currency,
		ClientSecret:     id + "_secret",
		Metadata:         copyMetadata(params.Metadata),
	}

	m.mu.Lock()
	m.intents[id] = intent
	m.mu.Unlock()

	return cloneIntent(intent), nil
}

// GetIntent returns a copy of the stored intent
func (m *MemoryAuthority) GetIntent(_ context.Context, ref string) (*Intent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	intent, ok := m.intents[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIntentNotFound, ref)
	}
	return cloneIntent(intent), nil
}

// Confirm marks an intent as succeeded, as the card network would
func (m *MemoryAuthority) Confirm(ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	intent, ok := m.intents[ref]
	if !ok {
		return fmt.Errorf("%w: %s", ErrIntentNotFound, ref)
	}
	intent.Status = StatusSucceeded
	return nil
}

// Put stores an intent as-is. Used to seed fixtures.
func (m *MemoryAuthority) Put(intent *Intent) {
	m.mu.Lock()
	m.intents[intent.ID] = cloneIntent(intent)
	m.mu.Unlock()
}

func cloneIntent(in *Intent) *Intent {
	out := *in
	out.Metadata = copyMetadata(in.Metadata)
	return &out
}

func copyMetadata(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
