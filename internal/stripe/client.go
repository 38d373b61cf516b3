package stripe

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"guest-checkout/internal/apiclient"
	"guest-checkout/internal/model"
)

// API paths
const (
	pathCheckout = "/payments/stripe/checkout"
	pathSession  = "/payments/stripe/session/"
)

// Client calls the storefront's Stripe checkout endpoints. The storefront
// backend owns the Stripe secret key; this client only ever sees hosted
// checkout URLs and session ids.
type Client struct {
	api *apiclient.Client
}

// NewClient creates a Stripe checkout client over the shared API client.
func NewClient(api *apiclient.Client) *Client {
	return &Client{api: api}
}

// createCheckoutSession asks the backend to create the order and a hosted
// checkout session.
func (c *Client) createCheckoutSession(ctx context.Context, body *checkoutRequest, sessionID, idempotencyKey string) (*checkoutResponse, error) {
	req, err := c.api.NewRequest(ctx, http.MethodPost, pathCheckout, body, sessionID)
	if err != nil {
		return nil, fmt.Errorf("creating stripe checkout request: %w", err)
	}
	if idempotencyKey != "" {
		req.Header.Set(apiclient.IdempotencyHeader, idempotencyKey)
	}

	var resp checkoutResponse
	if err := c.api.Do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SessionStatus polls the state of a hosted checkout session.
func (c *Client) SessionStatus(ctx context.Context, checkoutSessionID string) (*SessionStatus, error) {
	checkoutSessionID = strings.TrimSpace(checkoutSessionID)
	if checkoutSessionID == "" {
		return nil, model.NewValidationError("session_id", "required")
	}

	req, err := c.api.NewRequest(ctx, http.MethodGet, pathSession+url.PathEscape(checkoutSessionID), nil, "")
	if err != nil {
		return nil, fmt.Errorf("creating stripe session request: %w", err)
	}

	var resp SessionStatus
	if err := c.api.Do(req, &resp); err != nil {
		return nil, err
	}
	if resp.SessionID == "" {
		resp.SessionID = checkoutSessionID
	}
	return &resp, nil
}
