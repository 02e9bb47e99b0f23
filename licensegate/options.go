package licensegate

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/CloudNativeWorks/cnw-license-gate/licensegate/journal"
)

// ClientOption configures an OnlineClient.
type ClientOption func(*OnlineClient)

// WithHTTPClient sets a custom HTTP client for the OnlineClient.
// The client's Timeout will be overridden by WithTimeout (or the default 10s).
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *OnlineClient) {
		o.httpClient = c
	}
}

// WithTimeout sets the HTTP client timeout. Default is 10 seconds.
// Option ordering does not matter: timeout is always applied after all options.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *OnlineClient) {
		o.timeout = d
	}
}

// WithUserAgent sets the User-Agent header sent with requests.
func WithUserAgent(ua string) ClientOption {
	return func(o *OnlineClient) {
		o.userAgent = ua
	}
}

// CacheOption configures a CheckoutCache.
type CacheOption func(*CheckoutCache)

// WithCacheLogger sets the logger used for check-in and journal warnings.
func WithCacheLogger(l zerolog.Logger) CacheOption {
	return func(c *CheckoutCache) {
		c.logger = l
	}
}

// WithFetchTimeout bounds one checkout + check-in round trip. Default is 30 seconds.
// A round trip that times out is cached as a failure.
func WithFetchTimeout(d time.Duration) CacheOption {
	return func(c *CheckoutCache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// WithMetrics records checkouts, check-in failures and cache hits.
func WithMetrics(m *Metrics) CacheOption {
	return func(c *CheckoutCache) {
		c.metrics = m
	}
}

// WithJournal records every checkout attempt to j.
func WithJournal(j journal.Journal) CacheOption {
	return func(c *CheckoutCache) {
		c.journal = j
	}
}

// WithNode sets the node identifier written to journal entries instead of NodeFingerprint.
func WithNode(node string) CacheOption {
	return func(c *CheckoutCache) {
		c.node = node
	}
}

// WithTokenSource replaces the idempotency token generator (uuid.NewString).
func WithTokenSource(fn func() string) CacheOption {
	return func(c *CheckoutCache) {
		c.newToken = fn
	}
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger for user-facing license warnings.
func WithLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

// WithBuildInfo sets the version embedded in labels. Default is "DEV".
func WithBuildInfo(b BuildInfo) ServiceOption {
	return func(s *Service) {
		s.build = b
	}
}

// WithIntegrationDetails enables the one-time warning when the license check fails.
func WithIntegrationDetails(d *IntegrationDetails) ServiceOption {
	return func(s *Service) {
		s.integration = d
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}
