// Package apiclient is the HTTP plumbing shared by the cart service and
// payment provider clients: JSON request building, the X-Session-Id header,
// and mapping of error responses onto the model error taxonomy.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// SessionHeader carries the guest session id on every cart-scoped request.
const SessionHeader = "X-Session-Id"

// IdempotencyHeader carries the per-submit idempotency key on checkout calls.
const IdempotencyHeader = "Idempotency-Key"

const userAgent = "guest-checkout/1.0"

// Client is a JSON-over-HTTP client for one upstream service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	service    string // human-readable upstream name for error messages
	logger     *slog.Logger
}

// New creates a Client. baseURL has no trailing slash; apiKey may be empty.
func New(service, baseURL, apiKey string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		service:    service,
		logger:     logger,
	}
}

// Service returns the upstream name used in error messages.
func (c *Client) Service() string {
	return c.service
}

// NewRequest creates a JSON request against baseURL+path.
// sessionID is sent as X-Session-Id when non-empty.
func (c *Client) NewRequest(ctx context.Context, method, path string, body any, sessionID string) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}

	return req, nil
}

// Do executes the request and decodes a 2xx body into result.
// Non-2xx responses become *model.APIError via ParseError.
func (c *Client) Do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("upstream request failed",
			"service", c.service,
			"method", req.Method,
			"path", req.URL.Path,
			"error", err,
		)
		return networkErr(c.service, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return networkErr(c.service, fmt.Errorf("reading response: %w", err))
	}

	c.logger.Debug("upstream response",
		"service", c.service,
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
	)

	if resp.StatusCode >= 400 {
		return ParseError(c.service, resp.StatusCode, resp.Header, body)
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return networkErr(c.service, fmt.Errorf("parsing response: %w", err))
		}
	}

	return nil
}
