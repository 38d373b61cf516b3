package unified

import "guest-checkout/internal/model"

// checkoutRequest is the body of POST /payments/unified-checkout.
type checkoutRequest struct {
	SessionID       string         `json:"sessionId,omitempty"`
	ProductID       string         `json:"productId,omitempty"`
	Quantity        int            `json:"quantity,omitempty"`
	Provider        string         `json:"provider"`
	Customer        model.Customer `json:"customer"`
	ShippingAddress model.Address  `json:"shippingAddress"`
	Currency        string         `json:"currency"`
	SuccessURL      string         `json:"successUrl,omitempty"`
	CancelURL       string         `json:"cancelUrl,omitempty"`
}

// checkoutResponse covers both answers of the unified endpoint: a hosted
// checkout URL, or a finished order and payment.
type checkoutResponse struct {
	Success     bool           `json:"success"`
	CheckoutURL string         `json:"checkoutUrl,omitempty"`
	SessionID   string         `json:"sessionId,omitempty"`
	Order       *model.Order   `json:"order,omitempty"`
	Payment     *model.Payment `json:"payment,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// orderRequest is the body of the legacy POST /cart/guest/checkout.
type orderRequest struct {
	Customer        model.Customer     `json:"customer"`
	ShippingAddress model.Address      `json:"shippingAddress"`
	Guest           model.GuestContact `json:"guest"`
	Currency        string             `json:"currency"`
}

type orderResponse struct {
	Order *model.Order `json:"order"`
}

// paymentRequest is the body of the legacy POST /payments/guest-checkout.
// Amount is in minor units.
type paymentRequest struct {
	OrderID  string `json:"orderId"`
	Provider string `json:"provider"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Email    string `json:"email"`
}

type paymentResponse struct {
	Payment     *model.Payment `json:"payment"`
	CheckoutURL string         `json:"checkoutUrl,omitempty"`
}
