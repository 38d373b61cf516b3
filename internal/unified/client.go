package unified

import (
	"context"
	"fmt"
	"net/http"

	"guest-checkout/internal/apiclient"
)

// API paths
const (
	pathUnifiedCheckout = "/payments/unified-checkout"
	pathGuestOrder      = "/cart/guest/checkout"
	pathGuestPayment    = "/payments/guest-checkout"
)

// Client calls the storefront's checkout endpoints.
type Client struct {
	api *apiclient.Client
}

// NewClient creates a checkout client over the shared API client.
func NewClient(api *apiclient.Client) *Client {
	return &Client{api: api}
}

func (c *Client) unifiedCheckout(ctx context.Context, body *checkoutRequest, sessionID, idempotencyKey string) (*checkoutResponse, error) {
	var resp checkoutResponse
	if err := c.post(ctx, pathUnifiedCheckout, body, sessionID, idempotencyKey, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) createOrder(ctx context.Context, body *orderRequest, sessionID, idempotencyKey string) (*orderResponse, error) {
	var resp orderResponse
	if err := c.post(ctx, pathGuestOrder, body, sessionID, idempotencyKey, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) createPayment(ctx context.Context, body *paymentRequest, sessionID, idempotencyKey string) (*paymentResponse, error) {
	var resp paymentResponse
	if err := c.post(ctx, pathGuestPayment, body, sessionID, idempotencyKey, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, body any, sessionID, idempotencyKey string, out any) error {
	req, err := c.api.NewRequest(ctx, http.MethodPost, path, body, sessionID)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", path, err)
	}
	if idempotencyKey != "" {
		req.Header.Set(apiclient.IdempotencyHeader, idempotencyKey)
	}
	return c.api.Do(req, out)
}
