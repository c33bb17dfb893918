package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
)

// StripeAuthority talks to Stripe's PaymentIntents API with its own key
// instead of the package-level stripe.Key
type StripeAuthority struct {
	client *paymentintent.Client
}

// NewStripeAuthority creates a Stripe-backed authority
func NewStripeAuthority(secretKey string) *StripeAuthority {
	return &StripeAuthority{
		client: &paymentintent.Client{
			B:   stripe.GetBackend(stripe.APIBackend),
			Key: secretKey,
		},
	}
}

// GetIntent retrieves a payment intent by ID
func (a *StripeAuthority) GetIntent(ctx context.Context, ref string) (*Intent, error) {
	pi, err := a.client.Get(ref, nil)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.HTTPStatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrIntentNotFound, ref)
		}
		return nil, fmt.Errorf("failed to get payment intent: %w", err)
	}
	return intentFromStripe(pi), nil
}

// CreateIntent creates a card payment intent
func (a *StripeAuthority) CreateIntent(ctx context.Context, params IntentParams) (*Intent, error) {
	p := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(params.AmountMinorUnits),
		Currency:           stripe.String(params.Currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}

	pi, err := a.client.New(p)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}
	return intentFromStripe(pi), nil
}

// intentFromStripe prefers the received amount over the requested one
func intentFromStripe(pi *stripe.PaymentIntent) *Intent {
	amount := pi.AmountReceived
	if amount == 0 {
		amount = pi.Amount
	}

	return &Intent{
		ID:               pi.ID,
		Status:           string(pi.Status),
		AmountMinorUnits: amount,
		Currency:         string(pi.Currency),
		ClientSecret:     pi.ClientSecret,
		Metadata:         pi.Metadata,
	}
}
