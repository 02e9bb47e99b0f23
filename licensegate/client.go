package licensegate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 1 << 20 // 1 MB
)

// EntitlementClient talks to a license authority. Credentials are the
// implementation's concern.
type EntitlementClient interface {
	// Checkout consumes the requested entitlements.
	Checkout(ctx context.Context, req CheckoutRequest) (*EntitlementResponse, error)

	// Checkin releases a previously consumed entitlement.
	Checkin(ctx context.Context, consumptionToken string) error
}

// OnlineClient is an EntitlementClient for the license authority HTTP API.
type OnlineClient struct {
	serverURL  string
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration // applied after all options
	userAgent  string
}

var _ EntitlementClient = (*OnlineClient)(nil)

// NewOnlineClient creates a new client for the license authority.
// serverURL is the base URL (e.g. "https://license.example.com").
// apiKey is the X-API-Key used for authentication.
func NewOnlineClient(serverURL, apiKey string, opts ...ClientOption) *OnlineClient {
	c := &OnlineClient{
		serverURL: strings.TrimRight(serverURL, "/"),
		apiKey:    apiKey,
		timeout:   defaultTimeout,
		userAgent: "cnw-license-gate-go/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	// Apply timeout after all options so ordering doesn't matter.
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	c.httpClient.Timeout = c.timeout
	return c
}

// Checkout requests the entitlements in req.
// A 4xx with code NO_ENTITLEMENTS_ALLOWED is reported as ErrNoEntitlements.
func (c *OnlineClient) Checkout(ctx context.Context, req CheckoutRequest) (*EntitlementResponse, error) {
	var resp EntitlementResponse
	if err := c.doJSON(ctx, "/v1/checkout", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Checkin releases the entitlement identified by consumptionToken.
// Any non-2xx response is reported as ErrCheckinFailed.
func (c *OnlineClient) Checkin(ctx context.Context, consumptionToken string) error {
	if err := c.doJSON(ctx, "/v1/checkin", CheckinRequest{ConsumptionToken: consumptionToken}, nil); err != nil {
		return fmt.Errorf("%w: %w", ErrCheckinFailed, err)
	}
	return nil
}

// doJSON performs a POST request with JSON body and decodes the response into dest.
// On non-2xx responses, it parses the server error format and returns a mapped error.
// A nil dest discards the response body.
func (c *OnlineClient) doJSON(ctx context.Context, path string, body, dest interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read response: %w", ErrTransport, err)
	}

	if resp.StatusCode >= 400 {
		return c.parseError(resp.StatusCode, respBody)
	}

	if dest == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// parseError parses the server error response format:
// {"error": {"code": "...", "message": "..."}}
func (c *OnlineClient) parseError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return &ServerError{
			StatusCode: statusCode,
			Code:       "UNKNOWN",
			Message:    string(body),
		}
	}
	se := &ServerError{
		StatusCode: statusCode,
		Code:       errResp.Error.Code,
		Message:    errResp.Error.Message,
	}
	return mapServerError(se)
}
