package payment

import (
	"context"
	"errors"
)

var (
	// ErrNotConfigured is returned by every call when no payment provider
	// has been configured
	ErrNotConfigured = errors.New("payment provider not configured")

	// ErrIntentNotFound is returned when the provider does not know the intent
	ErrIntentNotFound = errors.New("payment intent not found")
)

// StatusSucceeded is the terminal success status of an intent
const StatusSucceeded = "succeeded"

// Metadata keys set on intent creation and echoed back on retrieval
const (
	MetaEventID         = "eventId"
	MetaUserID          = "userId"
	MetaOrganizerID     = "organizerId"
	MetaNumberOfTickets = "numberOfTickets"
)

// Intent is the provider's view of a payment intent
type Intent struct {
	ID               string
	Status           string
	AmountMinorUnits int64
	Currency         string
	ClientSecret     string
	Metadata         map[string]string
}

// Succeeded reports whether the intent reached the terminal success state
func (i *Intent) Succeeded() bool {
	return i.Status == StatusSucceeded
}

// IntentParams describes an intent to create
type IntentParams struct {
	AmountMinorUnits int64
	Currency         string
	Metadata         map[string]string
}

// Authority is the external payment provider. GetIntent has no side effects
// and may be called any number of times.
type Authority interface {
	GetIntent(ctx context.Context, ref string) (*Intent, error)
	CreateIntent(ctx context.Context, params IntentParams) (*Intent, error)
}

// Unconfigured is the Authority used when no provider is set up
type Unconfigured struct{}

func (Unconfigured) GetIntent(context.Context, string) (*Intent, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) CreateIntent(context.Context, IntentParams) (*Intent, error) {
	return nil, ErrNotConfigured
}

// Config selects and configures a provider
type Config struct {
	Provider  string
	SecretKey string
}

// NewAuthority builds the configured provider. An empty Stripe key yields
// Unconfigured rather than an error so the service can still start.
func NewAuthority(cfg Config) Authority {
	switch cfg.Provider {
	case "memory":
		return NewMemoryAuthority()
	case "stripe", "":
		if cfg.SecretKey == "" {
			return Unconfigured{}
		}
		return NewStripeAuthority(cfg.SecretKey)
	}
	return Unconfigured{}
}
