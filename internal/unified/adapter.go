package unified

import (
	"context"
	"fmt"
	"log/slog"

	"guest-checkout/internal/adapter"
	"guest-checkout/internal/model"
)

// =============================================================================
// UNIFIED CHECKOUT ADAPTER
// =============================================================================
//
// Synchronous providers (cash on delivery, bank transfer) finish inside one
// request. Two wire modes exist:
//
//   unified: POST /payments/unified-checkout → {order, payment} or {checkoutUrl}
//   legacy:  POST /cart/guest/checkout (order) → POST /payments/guest-checkout (payment)
//
// Legacy mode is two independent calls. If the payment step fails the order
// already exists server-side and is left as is; nothing is rolled back.
// =============================================================================

// Mode selects the wire protocol.
type Mode string

const (
	ModeUnified Mode = "unified"
	ModeLegacy  Mode = "legacy"
)

// Adapter implements adapter.Adapter for one synchronous provider name.
type Adapter struct {
	client   *Client
	provider string
	mode     Mode
	logger   *slog.Logger
}

// New creates an adapter that checks out with the named provider.
func New(client *Client, provider string, mode Mode, logger *slog.Logger) *Adapter {
	if mode == "" {
		mode = ModeUnified
	}
	return &Adapter{client: client, provider: provider, mode: mode, logger: logger}
}

func (a *Adapter) Name() string { return a.provider }

func (a *Adapter) Strategy() model.Strategy { return model.StrategySynchronous }

// CreateCheckout places the order with this provider.
func (a *Adapter) CreateCheckout(ctx context.Context, req *model.CheckoutRequest) (*adapter.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if a.mode == ModeLegacy {
		return a.legacyCheckout(ctx, req)
	}

	body := &checkoutRequest{
		SessionID:       req.SessionID,
		ProductID:       req.ProductID,
		Quantity:        req.Quantity,
		Provider:        a.provider,
		Customer:        req.Customer,
		ShippingAddress: req.ShippingAddress,
		Currency:        req.Currency,
		SuccessURL:      req.SuccessURL,
		CancelURL:       req.CancelURL,
	}

	resp, err := a.client.unifiedCheckout(ctx, body, req.SessionID, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("unified checkout: %w", err)
	}

	if resp.Order != nil {
		a.logger.Info("order placed",
			"provider", a.provider,
			"order_id", resp.Order.ID,
			"total", resp.Order.Total.StringFixed(2),
		)
	}

	return &adapter.Response{
		Success:     resp.Success,
		Order:       resp.Order,
		Payment:     resp.Payment,
		CheckoutURL: resp.CheckoutURL,
		SessionRef:  resp.SessionID,
		Error:       resp.Error,
	}, nil
}

// legacyCheckout creates the order, then the payment, as two separate calls.
func (a *Adapter) legacyCheckout(ctx context.Context, req *model.CheckoutRequest) (*adapter.Response, error) {
	if !req.IsCartCheckout() {
		return nil, model.NewValidationError("productId", "single-product checkout requires unified mode")
	}

	orderResp, err := a.client.createOrder(ctx, &orderRequest{
		Customer:        req.Customer,
		ShippingAddress: req.ShippingAddress,
		Guest: model.GuestContact{
			Name:    req.Customer.FullName(),
			Email:   req.Customer.Email,
			Phone:   req.Customer.Phone,
			Address: req.ShippingAddress,
		},
		Currency: req.Currency,
	}, req.SessionID, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("creating order: %w", err)
	}
	order := orderResp.Order
	if order == nil || order.ID == "" {
		return nil, model.NewProviderError(a.provider, "order response has no order")
	}

	currency := order.Currency
	if currency == "" {
		currency = req.Currency
	}

	paymentKey := ""
	if req.IdempotencyKey != "" {
		paymentKey = req.IdempotencyKey + ":payment"
	}
	payResp, err := a.client.createPayment(ctx, &paymentRequest{
		OrderID:  order.ID,
		Provider: a.provider,
		Amount:   model.MinorUnits(order.Total),
		Currency: currency,
		Email:    req.Customer.Email,
	}, req.SessionID, paymentKey)
	if err != nil {
		a.logger.Error("payment failed after order creation",
			"provider", a.provider,
			"order_id", order.ID,
			"error", err,
		)
		return nil, fmt.Errorf("creating payment for order %s: %w", order.ID, err)
	}

	a.logger.Info("order placed",
		"provider", a.provider,
		"order_id", order.ID,
		"total", order.Total.StringFixed(2),
		"mode", string(a.mode),
	)

	return &adapter.Response{
		Success:     true,
		Order:       order,
		Payment:     payResp.Payment,
		CheckoutURL: payResp.CheckoutURL,
	}, nil
}

// Verify Adapter implements adapter.Adapter interface at compile time.
var _ adapter.Adapter = (*Adapter)(nil)
