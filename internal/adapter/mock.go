package adapter

import (
	"context"

	"guest-checkout/internal/model"
)

// Mock implements Adapter for testing.
// CreateCheckoutFunc configures the answer; calls are recorded.
type Mock struct {
	ProviderName       string
	ProviderStrategy   model.Strategy
	CreateCheckoutFunc func(ctx context.Context, req *model.CheckoutRequest) (*Response, error)

	Calls []*model.CheckoutRequest
}

// Name returns ProviderName, defaulting to "mock".
func (m *Mock) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

// Strategy returns ProviderStrategy, defaulting to synchronous.
func (m *Mock) Strategy() model.Strategy {
	if m.ProviderStrategy == "" {
		return model.StrategySynchronous
	}
	return m.ProviderStrategy
}

// CreateCheckout calls the configured CreateCheckoutFunc or returns an error.
func (m *Mock) CreateCheckout(ctx context.Context, req *model.CheckoutRequest) (*Response, error) {
	m.Calls = append(m.Calls, req)
	if m.CreateCheckoutFunc != nil {
		return m.CreateCheckoutFunc(ctx, req)
	}
	return nil, model.NewProviderError(m.Name(), "not configured")
}

// Verify Mock implements Adapter interface at compile time.
var _ Adapter = (*Mock)(nil)
