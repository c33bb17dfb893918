package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
	"time"

	"ticketing-service/internal/models"

	"github.com/lib/pq"
	"github.com/stripe/stripe-go/v82"
)

// Policy configures retries. Total attempts are Retries + 1 and the wait
// between attempts grows by Multiplier each time.
type Policy struct {
	Retries    int
	Delay      time.Duration
	Multiplier float64

	// ShouldRetry classifies errors; defaults to IsTransient
	ShouldRetry func(error) bool

	// OnRetry is called before each wait
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy returns the boundary policy: 2 retries, 200ms, doubling
func DefaultPolicy() Policy {
	return Policy{
		Retries:    2,
		Delay:      200 * time.Millisecond,
		Multiplier: 2,
	}
}

// Do runs op until it succeeds, returns a non-retryable error, or runs out
// of attempts. The last error is returned unchanged.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	shouldRetry := p.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = 1
	}

	delay := p.Delay
	for attempt := 0; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if attempt >= p.Retries || !shouldRetry(err) {
			return result, err
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, err
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * multiplier)
	}
}

var transientStatusCodes = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Postgres serialization_failure and deadlock_detected
var transientPGCodes = map[pq.ErrorCode]bool{
	"40001": true,
	"40P01": true,
}

// IsTransient reports whether err is an infrastructure failure worth
// retrying. Domain errors and caller cancellation never are.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := models.KindOf(err); ok {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return transientPGCodes[pqErr.Code]
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.Type == stripe.ErrorTypeAPI || transientStatusCodes[stripeErr.HTTPStatusCode]
	}

	var statusErr interface{ StatusCode() int }
	if errors.As(err, &statusErr) {
		return transientStatusCodes[statusErr.StatusCode()]
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
