package stripe

import "guest-checkout/internal/model"

// checkoutRequest is the body of POST /payments/stripe/checkout.
// Either SessionID (cart) or ProductID+Quantity (buy now) is set.
type checkoutRequest struct {
	SessionID       string         `json:"sessionId,omitempty"`
	ProductID       string         `json:"productId,omitempty"`
	Quantity        int            `json:"quantity,omitempty"`
	Customer        model.Customer `json:"customer"`
	ShippingAddress model.Address  `json:"shippingAddress"`
	Currency        string         `json:"currency"`
	SuccessURL      string         `json:"successUrl"`
	CancelURL       string         `json:"cancelUrl"`
}

// checkoutResponse is the answer of POST /payments/stripe/checkout.
type checkoutResponse struct {
	Success     *bool  `json:"success,omitempty"`
	SessionID   string `json:"sessionId"`
	CheckoutURL string `json:"checkoutUrl"`
	OrderID     string `json:"orderId"`
	PaymentID   string `json:"paymentId"`
	Error       string `json:"error,omitempty"`
}

// SessionStatus is the state of a hosted checkout session, as returned by
// GET /payments/stripe/session/:id.
type SessionStatus struct {
	SessionID     string `json:"sessionId"`
	Status        string `json:"status"`        // "open", "complete", "expired"
	PaymentStatus string `json:"paymentStatus"` // "paid", "unpaid", "no_payment_required"
	OrderID       string `json:"orderId,omitempty"`
	PaymentID     string `json:"paymentId,omitempty"`
}

// Paid reports whether the session completed with a settled payment.
func (s *SessionStatus) Paid() bool {
	return s.Status == "complete" && (s.PaymentStatus == "paid" || s.PaymentStatus == "no_payment_required")
}

// PaymentState maps the session onto the payment status enum.
func (s *SessionStatus) PaymentState() model.PaymentStatus {
	switch {
	case s.Paid():
		return model.PaymentSucceeded
	case s.Status == "expired":
		return model.PaymentCancelled
	case s.Status == "open":
		return model.PaymentRequiresAction
	default:
		return model.PaymentPending
	}
}
