package licensegate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(client EntitlementClient, opts ...ServiceOption) *Service {
	cache := NewCheckoutCache(client, DefaultProduct)
	opts = append([]ServiceOption{
		WithBuildInfo(BuildInfo{Version: "4.31.0"}),
		WithClock(func() time.Time { return fixedNow }),
	}, opts...)
	return NewService(cache, opts...)
}

func TestService_Denied(t *testing.T) {
	client := &fakeClient{err: &mappedError{
		sentinel: ErrNoEntitlements,
		server:   &ServerError{StatusCode: 403, Code: "NO_ENTITLEMENTS_ALLOWED", Message: "no entitlements"},
	}}
	svc := newTestService(client)

	assert.False(t, svc.IsValid(context.Background()))
	assert.Equal(t, int32(1), client.checkouts.Load())

	label := svc.LicenseInfo(context.Background())
	assert.Equal(t, "Liquibase Open Source 4.31.0 by Liquibase", label)
	assert.NotContains(t, label, "Pro")
	assert.Equal(t, int32(1), client.checkouts.Load())
}

func TestService_Granted(t *testing.T) {
	client := &fakeClient{resp: granted("2099-01-01T00:00:00")}
	svc := newTestService(client)

	assert.True(t, svc.IsValid(context.Background()))
	label := svc.LicenseInfo(context.Background())
	assert.Contains(t, label, "Pro")
	assert.Equal(t, "Liquibase Pro 4.31.0 (licensed through AWS License Manager)", label)

	days, err := svc.DaysUntilExpiration(context.Background())
	require.NoError(t, err)
	assert.Greater(t, days, 365*70)

	exp, err := svc.ExpiresAt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC), exp)
	assert.Equal(t, int32(1), client.checkouts.Load())
}

func TestService_NotGrantedWithoutError(t *testing.T) {
	client := &fakeClient{resp: &EntitlementResponse{Granted: false, ConsumptionToken: "tok"}}
	svc := newTestService(client)

	assert.False(t, svc.IsValid(context.Background()))
	assert.True(t, svc.IsInstalled())
}

func TestService_IsValidFalseForAnyFailure(t *testing.T) {
	for _, err := range []error{
		ErrNoEntitlements,
		fmt.Errorf("%w: dial tcp: connection refused", ErrTransport),
		ErrAuthorityUnavailable,
		&ServerError{StatusCode: 500, Code: "INTERNAL_ERROR"},
		errors.New("anything else"),
	} {
		t.Run(err.Error(), func(t *testing.T) {
			svc := newTestService(&fakeClient{err: err})
			assert.False(t, svc.IsValid(context.Background()))
			assert.False(t, svc.IsInstalled())
		})
	}
}

func TestService_DaysUntilExpiration(t *testing.T) {
	tests := []struct {
		name  string
		exp   time.Time
		check func(t *testing.T, days int)
	}{
		{
			name:  "two days ahead",
			exp:   fixedNow.Add(48 * time.Hour),
			check: func(t *testing.T, days int) { assert.Equal(t, 2, days) },
		},
		{
			name:  "provisional grant",
			exp:   fixedNow.Add(time.Hour),
			check: func(t *testing.T, days int) { assert.Equal(t, 0, days) },
		},
		{
			name:  "already elapsed",
			exp:   fixedNow.Add(-30 * time.Hour),
			check: func(t *testing.T, days int) { assert.LessOrEqual(t, days, 0) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(&fakeClient{resp: granted(FormatExpiration(tt.exp))})
			days, err := svc.DaysUntilExpiration(context.Background())
			require.NoError(t, err)
			tt.check(t, days)
		})
	}
}

func TestService_ExpiresAtFailClosed(t *testing.T) {
	t.Run("checkout failed", func(t *testing.T) {
		svc := newTestService(&fakeClient{err: ErrNoEntitlements})
		exp, err := svc.ExpiresAt(context.Background())
		require.NoError(t, err)
		assert.Equal(t, fixedNow, exp)
	})
	t.Run("no expiration", func(t *testing.T) {
		svc := newTestService(&fakeClient{resp: &EntitlementResponse{Granted: true}})
		exp, err := svc.ExpiresAt(context.Background())
		require.NoError(t, err)
		assert.Equal(t, fixedNow, exp)

		days, err := svc.DaysUntilExpiration(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, days)
	})
}

func TestService_MalformedExpirationPropagates(t *testing.T) {
	client := &fakeClient{resp: granted("garbage")}
	svc := newTestService(client)

	// Validity does not depend on the expiration.
	assert.True(t, svc.IsValid(context.Background()))

	_, err := svc.ExpiresAt(context.Background())
	assert.ErrorIs(t, err, ErrMalformedExpiration)
	_, err = svc.DaysUntilExpiration(context.Background())
	assert.ErrorIs(t, err, ErrMalformedExpiration)
	_, err = svc.LicenseInfoObject(context.Background())
	assert.ErrorIs(t, err, ErrMalformedExpiration)
	_, err = svc.State(context.Background())
	assert.ErrorIs(t, err, ErrMalformedExpiration)
	assert.Equal(t, int32(1), client.checkouts.Load())
}

func TestService_InstallLicenseNotSupported(t *testing.T) {
	client := &fakeClient{resp: granted("2099-01-01T00:00:00")}
	svc := newTestService(client)

	for _, locs := range [][]Location{
		nil,
		{{ID: "file", Value: "/etc/license.lic"}},
		{{ID: "a"}, {ID: "b"}},
	} {
		res := svc.InstallLicense(locs...)
		assert.Equal(t, 0, res.Code)
		assert.Equal(t, "Installing licenses is not supported by the AWS License Service.", res.Message)
	}
	assert.Zero(t, client.checkouts.Load())
}

func TestService_StaticAnswers(t *testing.T) {
	client := &fakeClient{resp: granted("2099-01-01T00:00:00")}
	svc := newTestService(client)

	assert.False(t, svc.AboutToExpire(context.Background()))
	svc.Disable()
	assert.Greater(t, svc.Priority(), 0)
	assert.False(t, svc.IsInstalled())
	assert.Zero(t, client.checkouts.Load())
}

func TestService_ResetRefetches(t *testing.T) {
	client := &fakeClient{err: ErrNoEntitlements}
	svc := newTestService(client)

	assert.False(t, svc.IsValid(context.Background()))
	client.set(granted("2099-01-01T00:00:00"), nil)
	assert.False(t, svc.IsValid(context.Background()))

	svc.Reset()
	assert.True(t, svc.IsValid(context.Background()))
	assert.True(t, svc.IsInstalled())
	assert.Equal(t, int32(2), client.checkouts.Load())
}

func TestService_State(t *testing.T) {
	svc := newTestService(&fakeClient{resp: granted(FormatExpiration(fixedNow.Add(48 * time.Hour)))})
	state, err := svc.State(context.Background())
	require.NoError(t, err)
	assert.True(t, state.Valid)
	assert.Equal(t, 2, state.DaysLeft)
	assert.Equal(t, fixedNow.Add(48*time.Hour), state.ExpiresAt)
	assert.Contains(t, state.Label, "Pro")

	failed := newTestService(&fakeClient{err: ErrNoEntitlements})
	state, err = failed.State(context.Background())
	require.NoError(t, err)
	assert.False(t, state.Valid)
	assert.Equal(t, fixedNow, state.ExpiresAt)
	assert.Equal(t, "Liquibase Open Source 4.31.0 by Liquibase", state.Label)
}

func TestService_FailureLoggedOnceWithIntegration(t *testing.T) {
	var buf bytes.Buffer
	svc := newTestService(&fakeClient{err: ErrNoEntitlements},
		WithLogger(zerolog.New(&buf)),
		WithIntegrationDetails(&IntegrationDetails{Name: "cli"}),
	)

	for i := 0; i < 5; i++ {
		assert.False(t, svc.IsValid(context.Background()))
	}
	svc.LicenseInfo(context.Background())

	assert.Equal(t, 1, strings.Count(buf.String(), "The license check failed"))
	assert.Contains(t, buf.String(), "no entitlements")
	assert.Contains(t, buf.String(), `"integration":"cli"`)
}

func TestService_UnexpectedFailureMessage(t *testing.T) {
	var buf bytes.Buffer
	svc := newTestService(&fakeClient{err: errors.New("dial tcp: timeout")},
		WithLogger(zerolog.New(&buf)),
		WithIntegrationDetails(&IntegrationDetails{Name: "cli"}),
	)

	assert.False(t, svc.IsValid(context.Background()))
	assert.Contains(t, buf.String(), "unexpected error")
	assert.Contains(t, buf.String(), "dial tcp: timeout")
}

func TestService_FailureNotLoggedWithoutIntegration(t *testing.T) {
	var buf bytes.Buffer
	svc := newTestService(&fakeClient{err: ErrNoEntitlements}, WithLogger(zerolog.New(&buf)))

	assert.False(t, svc.IsValid(context.Background()))
	assert.Empty(t, buf.String())
}

func TestService_SKUOnlyProduct(t *testing.T) {
	client := &fakeClient{resp: granted("2099-01-01T00:00:00")}
	svc := NewService(NewCheckoutCache(client, Product{SKU: "prod-other"}),
		WithBuildInfo(BuildInfo{Version: "4.31.0"}))

	res := svc.InstallLicense()
	assert.Equal(t, 0, res.Code)
	assert.Equal(t, "Installing licenses is not supported by the AWS License Service.", res.Message)
	assert.Equal(t, "Liquibase Pro 4.31.0 (licensed through AWS License Manager)", svc.LicenseInfo(context.Background()))

	client.set(nil, ErrNoEntitlements)
	svc.Reset()
	assert.Equal(t, "Liquibase Open Source 4.31.0 by Liquibase", svc.LicenseInfo(context.Background()))

	require.Len(t, client.requests, 2)
	assert.Equal(t, "prod-other", client.requests[0].ProductSKU)
	assert.Equal(t, CheckoutProvisional, client.requests[0].CheckoutType)
}

func TestService_CanceledCallerDoesNotConsumeFailureLog(t *testing.T) {
	var buf bytes.Buffer
	client := &fakeClient{
		err:     ErrNoEntitlements,
		release: make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	svc := newTestService(client,
		WithLogger(zerolog.New(&buf)),
		WithIntegrationDetails(&IntegrationDetails{Name: "cli"}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() { done <- svc.IsValid(ctx) }()
	<-client.started
	cancel()
	assert.False(t, <-done)

	_, err := svc.State(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, buf.String())

	close(client.release)
	assert.False(t, svc.IsValid(context.Background()))
	assert.Equal(t, 1, strings.Count(buf.String(), "The license check failed"))
	assert.Contains(t, buf.String(), "no entitlements")
	assert.NotContains(t, buf.String(), "context canceled")
	assert.Equal(t, int32(1), client.checkouts.Load())
}
