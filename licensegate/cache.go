package licensegate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/CloudNativeWorks/cnw-license-gate/licensegate/journal"
)

const (
	defaultFetchTimeout   = 30 * time.Second
	defaultJournalTimeout = 5 * time.Second

	flightKey = "checkout"
)

type slotState int

const (
	slotEmpty slotState = iota
	slotPending
	slotReady
	slotFailed
)

func (s slotState) String() string {
	switch s {
	case slotEmpty:
		return "empty"
	case slotPending:
		return "pending"
	case slotReady:
		return "ready"
	case slotFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CheckoutCache memoizes a single checkout against the license authority.
//
// The first Get performs one checkout followed by a check-in; concurrent
// callers wait for that round trip and share its outcome. Success and failure
// are both kept until Reset, so a failing authority is asked once, not once
// per caller.
type CheckoutCache struct {
	client       EntitlementClient
	product      Product
	logger       zerolog.Logger
	metrics      *Metrics
	journal      journal.Journal
	fetchTimeout time.Duration
	newToken     func() string
	node         string

	group singleflight.Group

	mu    sync.Mutex
	state slotState
	resp  *EntitlementResponse
	err   error
}

// NewCheckoutCache creates an empty cache. Nothing is fetched until the first Get.
func NewCheckoutCache(client EntitlementClient, product Product, opts ...CacheOption) *CheckoutCache {
	c := &CheckoutCache{
		client:       client,
		product:      product.withDefaults(),
		logger:       zerolog.Nop(),
		fetchTimeout: defaultFetchTimeout,
		newToken:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.journal != nil && c.node == "" {
		if fp, err := NodeFingerprint(); err == nil {
			c.node = fp
		} else {
			c.logger.Debug().Err(err).Msg("Could not compute node fingerprint for the checkout journal")
		}
	}
	return c
}

// Get returns the memoized checkout, performing it first if the cache is empty.
// ctx bounds only how long this caller waits; the checkout itself runs to
// completion under the cache's fetch timeout and is stored for every caller.
func (c *CheckoutCache) Get(ctx context.Context) (*EntitlementResponse, error) {
	if resp, ok, err := c.load(); ok {
		c.metrics.cacheHit()
		return resp, err
	}

	ch := c.group.DoChan(flightKey, func() (interface{}, error) {
		return c.populate(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*EntitlementResponse), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// IsPopulated reports whether a successful checkout is cached. It never fetches.
func (c *CheckoutCache) IsPopulated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == slotReady
}

// Reset discards a cached success or failure so the next Get checks out again.
// A checkout already in flight is left alone and its result is kept.
func (c *CheckoutCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.Debug().Stringer("state", c.state).Msg("Resetting license checkout cache")
	if c.state == slotPending {
		return
	}
	c.state = slotEmpty
	c.resp = nil
	c.err = nil
}

func (c *CheckoutCache) load() (*EntitlementResponse, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case slotReady:
		return c.resp, true, nil
	case slotFailed:
		return nil, true, c.err
	default:
		return nil, false, nil
	}
}

// populate claims the slot and performs the round trip. It runs inside the
// singleflight group, but a caller that saw an empty slot may still arrive
// after an earlier flight finished, so the slot is checked again here.
func (c *CheckoutCache) populate(ctx context.Context) (*EntitlementResponse, error) {
	c.mu.Lock()
	switch c.state {
	case slotReady:
		resp := c.resp
		c.mu.Unlock()
		return resp, nil
	case slotFailed:
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	c.state = slotPending
	c.mu.Unlock()

	resp, err := c.roundTrip(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state, c.resp, c.err = slotFailed, nil, err
		return nil, err
	}
	c.state, c.resp, c.err = slotReady, resp, nil
	return resp, nil
}

func (c *CheckoutCache) roundTrip(parent context.Context) (resp *EntitlementResponse, err error) {
	ctx, cancel := context.WithTimeout(parent, c.fetchTimeout)
	defer cancel()

	entry := journal.Entry{
		ProductSKU:   c.product.SKU,
		Node:         c.node,
		CheckedOutAt: time.Now().UTC(),
	}
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, fmt.Errorf("checkout %s: panic: %v", c.product.SKU, r)
		}
		c.observe(resp, err)
		c.record(parent, entry, resp, err)
	}()

	clientToken := c.newToken()
	entry.ClientToken = clientToken
	resp, err = c.client.Checkout(ctx, c.product.checkoutRequest(clientToken))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", ErrTransport, err)
		}
		return nil, fmt.Errorf("checkout %s: %w", c.product.SKU, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("checkout %s: empty response", c.product.SKU)
	}

	if resp.ConsumptionToken != "" {
		if cerr := c.client.Checkin(ctx, resp.ConsumptionToken); cerr != nil {
			entry.CheckinError = cerr.Error()
			c.metrics.checkinFailed()
			if c.product.CheckinPolicy == CheckinWarn {
				c.logger.Warn().
					Err(cerr).
					Str("product_sku", c.product.SKU).
					Str("consumption_token", resp.ConsumptionToken).
					Msg("Failed to check license back in. License will remain checked out until its TTL expires.")
			}
		}
	}
	return resp, nil
}

func (c *CheckoutCache) observe(resp *EntitlementResponse, err error) {
	switch {
	case err != nil:
		c.metrics.checkout(outcomeFailed)
	case resp.Granted:
		c.metrics.checkout(outcomeGranted)
	default:
		c.metrics.checkout(outcomeDenied)
	}
}

// record writes the attempt to the journal. Journal failures never change the
// checkout outcome. An attempt that failed before a token was issued never
// reached the authority and is not recorded.
func (c *CheckoutCache) record(parent context.Context, entry journal.Entry, resp *EntitlementResponse, err error) {
	if c.journal == nil || entry.ClientToken == "" {
		return
	}
	if err != nil {
		entry.Error = err.Error()
	} else {
		entry.Granted = resp.Granted
		entry.ConsumptionToken = resp.ConsumptionToken
		if resp.Expiration != nil {
			entry.Expiration = *resp.Expiration
		}
	}

	ctx, cancel := context.WithTimeout(parent, defaultJournalTimeout)
	defer cancel()
	if jerr := c.journal.Record(ctx, entry); jerr != nil {
		c.logger.Warn().Err(jerr).Str("product_sku", c.product.SKU).Msg("Failed to journal license checkout")
	}
}
