package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CloudNativeWorks/cnw-license-gate/licensegate"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--env-file", ""}, args...))
	t.Cleanup(func() { statusJSON = false })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestInstallCommand(t *testing.T) {
	out, err := runCLI(t, "install", "/etc/license.lic")
	assert.ErrorIs(t, err, errInstallUnsupported)
	assert.Contains(t, out, "Installing licenses is not supported")
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "licensegate dev")
}

func TestStatusCommand(t *testing.T) {
	var checkouts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/checkout" {
			checkouts++
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"entitlements_allowed": true, "expiration": "2099-01-01T00:00:00", "license_consumption_token": "c-1"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	t.Setenv("LICENSEGATE_SERVER_URL", server.URL)
	t.Setenv("LICENSEGATE_JOURNAL_DRIVER", "memory")
	t.Setenv("LICENSEGATE_NODE", "test-node")

	out, err := runCLI(t, "status", "--json")
	require.NoError(t, err)

	var state licensegate.LicenseState
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.True(t, state.Valid)
	assert.Contains(t, state.Label, "Pro")
	assert.Greater(t, state.DaysLeft, 0)
	assert.Equal(t, 1, checkouts)
}

func TestStatusCommand_Denied(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error": {"code": "NO_ENTITLEMENTS_ALLOWED", "message": "denied"}}`))
	}))
	defer server.Close()

	t.Setenv("LICENSEGATE_SERVER_URL", server.URL)

	out, err := runCLI(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Licensed:   false")
	assert.Contains(t, out, "Liquibase Open Source dev by Liquibase")
}

func unsetServerURL(t *testing.T) {
	t.Helper()
	t.Setenv("LICENSEGATE_SERVER_URL", "")
	os.Unsetenv("LICENSEGATE_SERVER_URL")
}

func TestStatusCommand_RequiresServerURL(t *testing.T) {
	unsetServerURL(t)

	_, err := runCLI(t, "status")
	assert.ErrorIs(t, err, licensegate.ErrNoServerURL)
}

func TestJournalCommand_RejectsMemoryDriver(t *testing.T) {
	unsetServerURL(t)
	t.Setenv("LICENSEGATE_JOURNAL_DRIVER", "memory")

	_, err := runCLI(t, "journal")
	assert.ErrorIs(t, err, errMemoryJournal)
}

func TestJournalCommand_RequiresDriver(t *testing.T) {
	unsetServerURL(t)
	t.Setenv("LICENSEGATE_JOURNAL_DRIVER", "")

	_, err := runCLI(t, "journal")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no journal configured")
}

func TestOpenJournal_UnknownDriver(t *testing.T) {
	_, _, err := openJournal(context.Background(), licensegate.Config{JournalDriver: "sqlite"})
	assert.Error(t, err)
}
