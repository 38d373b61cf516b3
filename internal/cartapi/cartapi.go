// Package cartapi talks to the remote guest cart service.
package cartapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"guest-checkout/internal/apiclient"
	"guest-checkout/internal/model"
)

// API paths
const (
	pathCart        = "/cart/guest"
	pathItems       = "/cart/guest/items"
	pathConvertUser = "/cart/guest/convert-to-user"
)

// API is the cart service contract consumed by the cart store.
// All operations are scoped by the guest session id, sent as X-Session-Id.
type API interface {
	// FetchCart returns the cart for the session. A session with no cart yet
	// gets an empty cart back from the service.
	FetchCart(ctx context.Context, sessionID string) (*model.Cart, error)

	// AddItem adds quantity of productID. The service merges into an existing
	// line for the same product instead of creating a second one.
	AddItem(ctx context.Context, sessionID, productID string, quantity int) (*model.CartItem, error)

	// UpdateItemQuantity sets an item's quantity. quantity ≤ 0 removes it.
	UpdateItemQuantity(ctx context.Context, sessionID, itemID string, quantity int) (*model.Cart, error)

	// RemoveItem deletes an item.
	RemoveItem(ctx context.Context, sessionID, itemID string) (*model.Cart, error)

	// ConvertToUser turns the guest cart into a user-owned cart.
	ConvertToUser(ctx context.Context, sessionID string, profile model.UserProfile) (*model.Cart, error)
}

// Client is the HTTP implementation of API.
type Client struct {
	api *apiclient.Client
}

// NewClient creates a cart service client over the shared API client.
func NewClient(api *apiclient.Client) *Client {
	return &Client{api: api}
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// FetchCart retrieves the session's cart.
func (c *Client) FetchCart(ctx context.Context, sessionID string) (*model.Cart, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}

	req, err := c.api.NewRequest(ctx, http.MethodGet, pathCart, nil, sessionID)
	if err != nil {
		return nil, fmt.Errorf("creating cart request: %w", err)
	}

	var resp model.CartEnvelope
	if err := c.api.Do(req, &resp); err != nil {
		return nil, err
	}
	return c.cartFrom(resp, sessionID)
}

// AddItem adds a product to the session's cart.
func (c *Client) AddItem(ctx context.Context, sessionID, productID string, quantity int) (*model.CartItem, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	if productID == "" {
		return nil, model.NewValidationError("productId", "required")
	}
	if quantity <= 0 {
		return nil, model.NewValidationError("quantity", "must be positive")
	}

	body := &addItemRequest{ProductID: productID, Quantity: quantity}
	req, err := c.api.NewRequest(ctx, http.MethodPost, pathItems, body, sessionID)
	if err != nil {
		return nil, fmt.Errorf("creating add item request: %w", err)
	}

	var resp model.ItemEnvelope
	if err := c.api.Do(req, &resp); err != nil {
		return nil, err
	}
	if resp.Item == nil {
		return nil, model.NewNetworkError(c.api.Service(), fmt.Errorf("add item response has no item"))
	}
	return resp.Item, nil
}

// UpdateItemQuantity sets an item's quantity.
func (c *Client) UpdateItemQuantity(ctx context.Context, sessionID, itemID string, quantity int) (*model.Cart, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}

	body := &updateQuantityRequest{Quantity: quantity}
	req, err := c.api.NewRequest(ctx, http.MethodPut, itemPath(itemID), body, sessionID)
	if err != nil {
		return nil, fmt.Errorf("creating update quantity request: %w", err)
	}

	var resp model.CartEnvelope
	if err := c.api.Do(req, &resp); err != nil {
		return nil, err
	}
	return c.cartFrom(resp, sessionID)
}

// RemoveItem deletes an item from the session's cart.
func (c *Client) RemoveItem(ctx context.Context, sessionID, itemID string) (*model.Cart, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}

	req, err := c.api.NewRequest(ctx, http.MethodDelete, itemPath(itemID), nil, sessionID)
	if err != nil {
		return nil, fmt.Errorf("creating remove item request: %w", err)
	}

	var resp model.CartEnvelope
	if err := c.api.Do(req, &resp); err != nil {
		return nil, err
	}
	return c.cartFrom(resp, sessionID)
}

// ConvertToUser converts the guest cart into a user-owned cart.
func (c *Client) ConvertToUser(ctx context.Context, sessionID string, profile model.UserProfile) (*model.Cart, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	if profile.Email == "" {
		return nil, model.NewValidationError("email", "required")
	}

	req, err := c.api.NewRequest(ctx, http.MethodPost, pathConvertUser, &profile, sessionID)
	if err != nil {
		return nil, fmt.Errorf("creating convert request: %w", err)
	}

	var resp model.CartEnvelope
	if err := c.api.Do(req, &resp); err != nil {
		return nil, err
	}
	if resp.Cart == nil {
		return nil, model.NewNetworkError(c.api.Service(), fmt.Errorf("convert response has no cart"))
	}
	if err := resp.Cart.Validate(); err != nil {
		return nil, err
	}
	return resp.Cart, nil
}

// cartFrom unwraps a cart envelope and enforces the single-owner rule.
// Responses that omit the owner are attributed to the requesting session.
func (c *Client) cartFrom(resp model.CartEnvelope, sessionID string) (*model.Cart, error) {
	cart := resp.Cart
	if cart == nil {
		cart = &model.Cart{}
	}
	if cart.Owner() == model.OwnerNone {
		cart.SessionID = sessionID
	}
	if cart.Items == nil {
		cart.Items = []model.CartItem{}
	}
	if err := cart.Validate(); err != nil {
		return nil, err
	}
	return cart, nil
}

func itemPath(itemID string) string {
	return pathItems + "/" + url.PathEscape(itemID)
}

func requireSession(sessionID string) error {
	if sessionID == "" {
		return model.NewSessionError("missing guest session id")
	}
	return nil
}

// Verify Client implements API at compile time.
var _ API = (*Client)(nil)
