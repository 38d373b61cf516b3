package cartapi

import (
	"context"

	"guest-checkout/internal/model"
)

// Mock implements API for testing.
// Each method can be configured via function fields.
type Mock struct {
	FetchCartFunc          func(ctx context.Context, sessionID string) (*model.Cart, error)
	AddItemFunc            func(ctx context.Context, sessionID, productID string, quantity int) (*model.CartItem, error)
	UpdateItemQuantityFunc func(ctx context.Context, sessionID, itemID string, quantity int) (*model.Cart, error)
	RemoveItemFunc         func(ctx context.Context, sessionID, itemID string) (*model.Cart, error)
	ConvertToUserFunc      func(ctx context.Context, sessionID string, profile model.UserProfile) (*model.Cart, error)
}

// FetchCart calls the configured FetchCartFunc or returns an empty session cart.
func (m *Mock) FetchCart(ctx context.Context, sessionID string) (*model.Cart, error) {
	if m.FetchCartFunc != nil {
		return m.FetchCartFunc(ctx, sessionID)
	}
	return &model.Cart{SessionID: sessionID, Items: []model.CartItem{}}, nil
}

// AddItem calls the configured AddItemFunc or returns an error.
func (m *Mock) AddItem(ctx context.Context, sessionID, productID string, quantity int) (*model.CartItem, error) {
	if m.AddItemFunc != nil {
		return m.AddItemFunc(ctx, sessionID, productID, quantity)
	}
	return nil, model.NewProductNotFoundError(productID)
}

// UpdateItemQuantity calls the configured UpdateItemQuantityFunc or returns an error.
func (m *Mock) UpdateItemQuantity(ctx context.Context, sessionID, itemID string, quantity int) (*model.Cart, error) {
	if m.UpdateItemQuantityFunc != nil {
		return m.UpdateItemQuantityFunc(ctx, sessionID, itemID, quantity)
	}
	return nil, model.NewNotFoundError("cart item")
}

// RemoveItem calls the configured RemoveItemFunc or returns an error.
func (m *Mock) RemoveItem(ctx context.Context, sessionID, itemID string) (*model.Cart, error) {
	if m.RemoveItemFunc != nil {
		return m.RemoveItemFunc(ctx, sessionID, itemID)
	}
	return nil, model.NewNotFoundError("cart item")
}

// ConvertToUser calls the configured ConvertToUserFunc or returns an error.
func (m *Mock) ConvertToUser(ctx context.Context, sessionID string, profile model.UserProfile) (*model.Cart, error) {
	if m.ConvertToUserFunc != nil {
		return m.ConvertToUserFunc(ctx, sessionID, profile)
	}
	return nil, model.NewEmptyCartError()
}

// Verify Mock implements API at compile time.
var _ API = (*Mock)(nil)
