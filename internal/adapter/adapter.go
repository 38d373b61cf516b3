// Package adapter defines the uniform contract over payment providers.
// Each backend (redirect-based Stripe checkout, synchronous unified checkout)
// provides its own implementation; the checkout orchestrator only sees
// Adapter and the model.CheckoutResult union.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"guest-checkout/internal/model"
)

// Adapter creates a checkout with one payment provider.
type Adapter interface {
	// Name is the provider name callers select, e.g. "stripe" or "cod".
	Name() string

	// Strategy reports whether checkouts redirect or complete synchronously.
	Strategy() model.Strategy

	// CreateCheckout turns a cart or single product into an order and a
	// payment, or into a redirect to the provider's hosted page.
	// Transport and protocol failures are returned as error; a provider that
	// answers but declines sets Response.Success=false.
	CreateCheckout(ctx context.Context, req *model.CheckoutRequest) (*Response, error)
}

// Response is the raw provider answer.
type Response struct {
	Success     bool           `json:"success"`
	Order       *model.Order   `json:"order,omitempty"`
	Payment     *model.Payment `json:"payment,omitempty"`
	CheckoutURL string         `json:"checkoutUrl,omitempty"`
	// SessionRef is the provider-side checkout session, if any.
	SessionRef string `json:"sessionId,omitempty"`
	OrderID    string `json:"orderId,omitempty"`
	PaymentID  string `json:"paymentId,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Result reduces the response to exactly one CheckoutResult variant.
// A checkout URL wins over an embedded order: the buyer still has to pay.
func (r *Response) Result(provider string) model.CheckoutResult {
	switch {
	case r == nil:
		return &model.Failed{Err: model.NewProviderError(provider, "empty response")}
	case !r.Success || r.Error != "":
		reason := r.Error
		if reason == "" {
			reason = "checkout was declined"
		}
		return &model.Failed{Err: model.NewProviderError(provider, reason)}
	case r.CheckoutURL != "":
		redirect := &model.Redirect{
			URL:        r.CheckoutURL,
			OrderID:    r.OrderID,
			PaymentID:  r.PaymentID,
			SessionRef: r.SessionRef,
		}
		if redirect.OrderID == "" && r.Order != nil {
			redirect.OrderID = r.Order.ID
		}
		if redirect.PaymentID == "" && r.Payment != nil {
			redirect.PaymentID = r.Payment.ID
		}
		return redirect
	case r.Order != nil:
		return &model.Completed{Order: r.Order, Payment: r.Payment}
	default:
		return &model.Failed{Err: model.NewProviderError(provider, "response has neither order nor checkout url")}
	}
}

// ErrUnknownProvider is returned for provider names with no adapter.
var ErrUnknownProvider = errors.New("unknown payment provider")

// Registry dispatches checkouts by provider name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates a Registry holding the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for a.Name().
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns the adapter for name.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return a, nil
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Checkout runs the request against req.Provider and always returns exactly
// one result variant: errors of any kind become *model.Failed.
func (r *Registry) Checkout(ctx context.Context, req *model.CheckoutRequest) model.CheckoutResult {
	a, err := r.Get(req.Provider)
	if err != nil {
		return &model.Failed{Err: model.NewValidationError("provider", err.Error())}
	}
	if req.Strategy == "" {
		req.Strategy = a.Strategy()
	}

	resp, err := a.CreateCheckout(ctx, req)
	if err != nil {
		return &model.Failed{Err: err}
	}
	return resp.Result(a.Name())
}
