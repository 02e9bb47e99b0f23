package licensegate

import (
	"context"
	"sync"
	"sync/atomic"
)

// fakeClient is an EntitlementClient that counts round trips.
type fakeClient struct {
	checkouts atomic.Int32
	checkins  atomic.Int32

	// release, when set, blocks Checkout until it is closed.
	release chan struct{}
	// started is signalled when a Checkout begins.
	started chan struct{}

	mu         sync.Mutex
	resp       *EntitlementResponse
	err        error
	checkinErr error
	requests   []CheckoutRequest
	tokens     []string
}

func (f *fakeClient) Checkout(ctx context.Context, req CheckoutRequest) (*EntitlementResponse, error) {
	f.checkouts.Add(1)
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if f.resp == nil {
		return nil, nil
	}
	resp := *f.resp
	return &resp, nil
}

func (f *fakeClient) Checkin(_ context.Context, token string) error {
	f.checkins.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	return f.checkinErr
}

func (f *fakeClient) set(resp *EntitlementResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resp, f.err = resp, err
}

func strPtr(s string) *string { return &s }

func granted(expiration string) *EntitlementResponse {
	return &EntitlementResponse{
		Granted:          true,
		Expiration:       strPtr(expiration),
		ConsumptionToken: "consumption-1",
	}
}
