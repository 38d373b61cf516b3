package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

// PaymentStatus is the lifecycle state of a payment transaction.
type PaymentStatus string

const (
	PaymentPending        PaymentStatus = "pending"
	PaymentRequiresAction PaymentStatus = "requires_action"
	PaymentSucceeded      PaymentStatus = "succeeded"
	PaymentFailed         PaymentStatus = "failed"
	PaymentCancelled      PaymentStatus = "cancelled"
)

// Strategy selects how a provider completes a checkout.
type Strategy string

const (
	StrategyRedirect    Strategy = "redirect"
	StrategySynchronous Strategy = "synchronous"
)

// Customer is the buyer identity collected by the checkout form.
type Customer struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// FullName joins first and last name.
func (c Customer) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Address is a shipping address.
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// CheckoutRequest is built fresh for every user-initiated submit.
// Either SessionID (cart checkout) or ProductID+Quantity (buy now) is set.
type CheckoutRequest struct {
	SessionID       string   `json:"sessionId,omitempty"`
	ProductID       string   `json:"productId,omitempty"`
	Quantity        int      `json:"quantity,omitempty"`
	Customer        Customer `json:"customer"`
	ShippingAddress Address  `json:"shippingAddress"`
	Provider        string   `json:"provider"`
	Currency        string   `json:"currency"`
	Strategy        Strategy `json:"strategy,omitempty"`
	SuccessURL      string   `json:"successUrl,omitempty"`
	CancelURL       string   `json:"cancelUrl,omitempty"`
	IdempotencyKey  string   `json:"-"`
}

// IsCartCheckout reports whether the request checks out a session cart
// rather than a single product.
func (r *CheckoutRequest) IsCartCheckout() bool {
	return r.ProductID == ""
}

// Validate checks the request shape before it goes to a provider.
func (r *CheckoutRequest) Validate() error {
	if r.IsCartCheckout() {
		if r.SessionID == "" {
			return NewSessionError("checkout requires a session id")
		}
		return nil
	}
	if r.Quantity <= 0 {
		return NewValidationError("quantity", "must be positive")
	}
	return nil
}

// GuestContact is the contact info stored on a guest order.
type GuestContact struct {
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Phone   string  `json:"phone,omitempty"`
	Address Address `json:"address"`
}

// OrderItem is an order line with the price at time of purchase.
type OrderItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Order is created server-side from a cart or a single product.
type Order struct {
	ID        string          `json:"id"`
	Number    string          `json:"orderNumber,omitempty"`
	Status    OrderStatus     `json:"status"`
	Total     decimal.Decimal `json:"total"`
	Currency  string          `json:"currency,omitempty"`
	Items     []OrderItem     `json:"items,omitempty"`
	Guest     *GuestContact   `json:"guest,omitempty"`
	CreatedAt time.Time       `json:"createdAt,omitempty"`
}

// Payment is one payment transaction against an order.
type Payment struct {
	ID            string          `json:"id"`
	OrderID       string          `json:"orderId"`
	Provider      string          `json:"provider"`
	Status        PaymentStatus   `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency,omitempty"`
	TransactionID string          `json:"transactionId,omitempty"`
}

// ResultKind discriminates CheckoutResult variants.
type ResultKind string

const (
	KindRedirect  ResultKind = "redirect"
	KindCompleted ResultKind = "completed"
	KindFailed    ResultKind = "failed"
)

// CheckoutResult is the outcome of a provider call. Exactly one of
// *Redirect, *Completed or *Failed; switch on Kind() or a type switch.
type CheckoutResult interface {
	Kind() ResultKind
	isCheckoutResult()
}

// Redirect means the buyer must leave for an external payment page.
type Redirect struct {
	URL        string
	OrderID    string
	PaymentID  string
	SessionRef string // provider-side session, e.g. a Stripe checkout session id
}

// Completed means the order and payment were created synchronously.
type Completed struct {
	Order   *Order
	Payment *Payment
}

// Failed carries the reason a checkout did not go through.
type Failed struct {
	Err error
}

func (*Redirect) Kind() ResultKind  { return KindRedirect }
func (*Completed) Kind() ResultKind { return KindCompleted }
func (*Failed) Kind() ResultKind    { return KindFailed }

func (*Redirect) isCheckoutResult()  {}
func (*Completed) isCheckoutResult() {}
func (*Failed) isCheckoutResult()    {}

// PendingOrder is the bookkeeping written before navigating to an external
// payment page and cleared on return.
type PendingOrder struct {
	OrderID   string `json:"order_id"`
	SessionID string `json:"session_id"`
	PaymentID string `json:"payment_id,omitempty"`
	Provider  string `json:"provider"`
	// CartCheckout is false for a single-product purchase, which leaves the
	// cart alone on return.
	CartCheckout bool      `json:"cart_checkout"`
	CreatedAt    time.Time `json:"created_at"`
}
