package stripe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"guest-checkout/internal/adapter"
	"guest-checkout/internal/model"
)

// =============================================================================
// STRIPE ADAPTER
// =============================================================================
//
// Redirect flow:
//   1. CreateCheckout → backend creates the order and a hosted checkout session
//   2. Buyer is sent to checkoutUrl and pays on Stripe
//   3. Stripe sends the buyer back to successUrl or cancelUrl
//   4. The return handler may poll SessionStatus to confirm payment
//
// Nothing in the local cart changes until the buyer comes back.
// =============================================================================

// ProviderName is the registry name of this adapter.
const ProviderName = "stripe"

// Adapter implements adapter.Adapter for Stripe hosted checkout.
type Adapter struct {
	client *Client
	logger *slog.Logger
}

// New creates a Stripe adapter.
func New(client *Client, logger *slog.Logger) *Adapter {
	return &Adapter{client: client, logger: logger}
}

func (a *Adapter) Name() string { return ProviderName }

func (a *Adapter) Strategy() model.Strategy { return model.StrategyRedirect }

// CreateCheckout creates a hosted checkout session for a cart or a single
// product. Success and cancel URLs are required because the buyer leaves the
// application.
func (a *Adapter) CreateCheckout(ctx context.Context, req *model.CheckoutRequest) (*adapter.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.SuccessURL == "" || req.CancelURL == "" {
		return nil, model.NewValidationError("return urls", "success and cancel URLs are required for redirect checkout")
	}

	body := &checkoutRequest{
		SessionID:       req.SessionID,
		ProductID:       req.ProductID,
		Quantity:        req.Quantity,
		Customer:        req.Customer,
		ShippingAddress: req.ShippingAddress,
		Currency:        strings.ToLower(req.Currency),
		SuccessURL:      req.SuccessURL,
		CancelURL:       req.CancelURL,
	}

	resp, err := a.client.createCheckoutSession(ctx, body, req.SessionID, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("creating stripe checkout: %w", err)
	}

	success := resp.Error == "" && (resp.Success == nil || *resp.Success)
	if success && resp.CheckoutURL == "" {
		return nil, model.NewProviderError(ProviderName, "no checkout url in response")
	}

	a.logger.Info("stripe checkout session created",
		"order_id", resp.OrderID,
		"stripe_session", resp.SessionID,
	)

	return &adapter.Response{
		Success:     success,
		CheckoutURL: resp.CheckoutURL,
		SessionRef:  resp.SessionID,
		OrderID:     resp.OrderID,
		PaymentID:   resp.PaymentID,
		Error:       resp.Error,
	}, nil
}

// SessionStatus exposes the session poll for the redirect return handler.
func (a *Adapter) SessionStatus(ctx context.Context, checkoutSessionID string) (*SessionStatus, error) {
	return a.client.SessionStatus(ctx, checkoutSessionID)
}

// Verify Adapter implements adapter.Adapter interface at compile time.
var _ adapter.Adapter = (*Adapter)(nil)
