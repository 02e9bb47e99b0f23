package licensegate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const fallbackNotice = "Falling back to the open source edition."

// IntegrationDetails marks that the gate runs inside a host integration
// (CLI, Maven, Gradle, ...). Fetch failures are only reported to the user
// when it is present.
type IntegrationDetails struct {
	Name string
}

// Service answers licensing questions from a CheckoutCache.
// Every answer is recomputed from the cache, so a Reset is visible immediately.
type Service struct {
	cache       *CheckoutCache
	product     Product
	build       BuildInfo
	integration *IntegrationDetails
	logger      zerolog.Logger
	now         func() time.Time

	failureLogged atomic.Bool
}

// NewService creates a Service over cache. The cache's product is used for labels.
func NewService(cache *CheckoutCache, opts ...ServiceOption) *Service {
	s := &Service{
		cache:   cache,
		product: cache.product,
		build:   BuildInfo{Version: "DEV"},
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Priority ranks this license source above all others.
func (s *Service) Priority() int {
	return math.MaxInt
}

// IsInstalled reports whether a checkout has already succeeded. It never fetches.
func (s *Service) IsInstalled() bool {
	return s.cache.IsPopulated()
}

// IsValid reports whether the authority granted the entitlement. Any checkout
// failure is "not licensed"; it never returns an error.
func (s *Service) IsValid(ctx context.Context) bool {
	resp, err := s.cache.Get(ctx)
	if err != nil {
		if !callerGaveUp(ctx, err) {
			s.reportFailure(err)
		}
		return false
	}
	return resp.Granted
}

// LicenseInfo returns the human-readable license label.
func (s *Service) LicenseInfo(ctx context.Context) string {
	if s.IsValid(ctx) {
		return s.product.licensedLabel(s.build.Version)
	}
	return s.product.fallbackLabel(s.build.Version)
}

// LicenseInfoObject returns the license metadata for the host application.
func (s *Service) LicenseInfoObject(ctx context.Context) (*LicenseInfo, error) {
	exp, err := s.ExpiresAt(ctx)
	if err != nil {
		return nil, err
	}
	return &LicenseInfo{ExpiresAt: exp}, nil
}

// ExpiresAt returns when the checked-out entitlement expires. A failed
// checkout is treated as expiring now. A malformed expiration from the
// authority is returned as an error wrapping ErrMalformedExpiration.
func (s *Service) ExpiresAt(ctx context.Context) (time.Time, error) {
	now := s.now()
	resp, err := s.cache.Get(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Failed to determine expiration date of license")
		return now.UTC(), nil
	}
	return ParseExpiration(resp.Expiration, now)
}

// DaysUntilExpiration returns the whole days left on the grant.
// Provisional grants expire within the hour, so this is normally 0.
func (s *Service) DaysUntilExpiration(ctx context.Context) (int, error) {
	exp, err := s.ExpiresAt(ctx)
	if err != nil {
		return 0, err
	}
	return daysBetween(s.now(), exp), nil
}

// AboutToExpire is always false: the authority exposes no such signal.
func (s *Service) AboutToExpire(context.Context) bool {
	return false
}

// InstallLicense is not supported for remotely granted licenses.
func (s *Service) InstallLicense(locations ...Location) InstallResult {
	return InstallResult{Code: 0, Message: s.product.InstallUnsupported}
}

// Disable does nothing; this license source cannot be disabled.
func (s *Service) Disable() {}

// Reset forces the next check to contact the authority again.
func (s *Service) Reset() {
	s.cache.Reset()
}

// State returns a snapshot of the license built from a single cache read.
// It returns ctx's error if ctx ends before the checkout resolves.
func (s *Service) State(ctx context.Context) (LicenseState, error) {
	now := s.now()
	state := LicenseState{
		ExpiresAt: now.UTC(),
		Label:     s.product.fallbackLabel(s.build.Version),
	}
	resp, err := s.cache.Get(ctx)
	if err != nil {
		if callerGaveUp(ctx, err) {
			return LicenseState{}, err
		}
		s.reportFailure(err)
		return state, nil
	}
	exp, err := ParseExpiration(resp.Expiration, now)
	if err != nil {
		return LicenseState{}, err
	}
	state.ExpiresAt = exp
	state.DaysLeft = daysBetween(now, exp)
	if resp.Granted {
		state.Valid = true
		state.Label = s.product.licensedLabel(s.build.Version)
	}
	return state, nil
}

// callerGaveUp reports whether err only says that ctx ended before the
// checkout resolved. Such an error is not a cached outcome.
func callerGaveUp(ctx context.Context, err error) bool {
	return ctx.Err() != nil && errors.Is(err, ctx.Err())
}

func (s *Service) reportFailure(err error) {
	if errors.Is(err, ErrNoEntitlements) {
		s.logFailureOnce(fmt.Sprintf("The license check failed with no entitlements. %s\nError details: %s", fallbackNotice, err), nil)
		return
	}
	s.logFailureOnce("The license check failed with an unexpected error. "+fallbackNotice, err)
}

func (s *Service) logFailureOnce(msg string, err error) {
	if s.integration == nil {
		return
	}
	if !s.failureLogged.CompareAndSwap(false, true) {
		return
	}
	ev := s.logger.Warn().Str("integration", s.integration.Name)
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg(msg)
}
