package licensegate

import (
	"errors"
	"fmt"
)

// Sentinel errors for checkout failures. Each one degrades to "not licensed".
var (
	ErrNoEntitlements       = errors.New("no entitlements allowed")
	ErrTransport            = errors.New("license authority unreachable")
	ErrAuthorityUnavailable = errors.New("license authority circuit open")
	ErrCheckinFailed        = errors.New("license check-in failed")
)

// ErrMalformedExpiration is returned when the authority sends an expiration
// that does not match ExpirationLayout. Unlike checkout failures it is not
// degraded to "not licensed".
var ErrMalformedExpiration = errors.New("malformed license expiration")

// ServerError represents an error response from the license authority.
// The authority returns errors in the format: {"error": {"code": "...", "message": "..."}}.
type ServerError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: [%s] %s", e.StatusCode, e.Code, e.Message)
}

// ExpirationError carries the raw value that failed to parse.
type ExpirationError struct {
	Raw string
	Err error
}

func (e *ExpirationError) Error() string {
	return fmt.Sprintf("%s %q: %v", ErrMalformedExpiration, e.Raw, e.Err)
}

func (e *ExpirationError) Is(target error) bool {
	return target == ErrMalformedExpiration
}

func (e *ExpirationError) Unwrap() error {
	return e.Err
}

// mapServerError converts a ServerError to a well-known sentinel error if possible.
// The returned error wraps both the sentinel error and the original ServerError
// so callers can use errors.Is() for sentinel checks and errors.As() for details.
func mapServerError(se *ServerError) error {
	var sentinel error
	switch se.Code {
	case "NO_ENTITLEMENTS_ALLOWED":
		sentinel = ErrNoEntitlements
	case "SERVICE_UNAVAILABLE", "THROTTLED":
		sentinel = ErrTransport
	default:
		return se
	}
	return &mappedError{sentinel: sentinel, server: se}
}

// mappedError wraps a sentinel error with the original ServerError details.
type mappedError struct {
	sentinel error
	server   *ServerError
}

func (e *mappedError) Error() string {
	return fmt.Sprintf("%s: %s", e.sentinel, e.server.Message)
}

func (e *mappedError) Is(target error) bool {
	return target == e.sentinel
}

func (e *mappedError) As(target interface{}) bool {
	if t, ok := target.(**ServerError); ok {
		*t = e.server
		return true
	}
	return false
}

func (e *mappedError) Unwrap() error {
	return e.sentinel
}
