package licensegate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// BreakerClient guards an EntitlementClient with a circuit breaker so that
// repeated cache resets against a failing authority stop producing requests.
//
// Only checkout results count towards tripping the breaker. A denial
// (ErrNoEntitlements) is a valid answer and is not counted as a failure.
type BreakerClient struct {
	next    EntitlementClient
	breaker *gobreaker.CircuitBreaker[*EntitlementResponse]
}

var _ EntitlementClient = (*BreakerClient)(nil)

// BreakerSettings configures a BreakerClient.
type BreakerSettings struct {
	Name             string
	FailureThreshold uint32        // consecutive failures before opening
	OpenTimeout      time.Duration // time spent open before probing
	Logger           zerolog.Logger
	Metrics          *Metrics
}

// NewBreakerClient wraps next. Zero settings fall back to 3 failures and a 1 minute open timeout.
func NewBreakerClient(next EntitlementClient, s BreakerSettings) *BreakerClient {
	if s.Name == "" {
		s.Name = "license-authority"
	}
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 3
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = time.Minute
	}
	settings := gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoEntitlements)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.Logger.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("License authority circuit breaker state changed")
			s.Metrics.breakerChanged(name, to)
		},
	}
	return &BreakerClient{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[*EntitlementResponse](settings),
	}
}

// Checkout forwards to the wrapped client unless the breaker is open.
func (b *BreakerClient) Checkout(ctx context.Context, req CheckoutRequest) (*EntitlementResponse, error) {
	resp, err := b.breaker.Execute(func() (*EntitlementResponse, error) {
		return b.next.Checkout(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrAuthorityUnavailable, err)
	}
	return resp, err
}

// Checkin always forwards: releasing a token already held is worth trying
// even while checkouts are being refused.
func (b *BreakerClient) Checkin(ctx context.Context, consumptionToken string) error {
	return b.next.Checkin(ctx, consumptionToken)
}

// State reports the current breaker state.
func (b *BreakerClient) State() gobreaker.State {
	return b.breaker.State()
}
