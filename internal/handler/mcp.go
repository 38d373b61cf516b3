// MCP transport for the storefront using the official MCP Go SDK.
// Exposes the cart and checkout operations as MCP tools so an assistant can
// shop on the guest's behalf.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"guest-checkout/internal/checkout"
	"guest-checkout/internal/model"
)

// === MCP Tool Input/Output Types ===

// GetCartInput is the input schema for get_cart.
type GetCartInput struct {
	Refresh bool `json:"refresh,omitempty" jsonschema:"refetch the cart from the cart service first"`
}

// AddItemInput is the input schema for add_item.
type AddItemInput struct {
	ProductID string `json:"product_id" jsonschema:"product to add"`
	Quantity  int    `json:"quantity,omitempty" jsonschema:"how many to add, default 1"`
}

// UpdateQuantityInput is the input schema for update_quantity.
type UpdateQuantityInput struct {
	ItemID   string `json:"item_id" jsonschema:"cart item id"`
	Quantity int    `json:"quantity" jsonschema:"new quantity; 0 removes the item"`
}

// RemoveItemInput is the input schema for remove_item.
type RemoveItemInput struct {
	ItemID string `json:"item_id" jsonschema:"cart item id"`
}

// ClearCartInput is the input schema for clear_cart.
type ClearCartInput struct{}

// CheckoutInput is the input schema for checkout.
type CheckoutInput struct {
	Form      checkout.Form `json:"form" jsonschema:"buyer contact and shipping address"`
	Provider  string        `json:"provider,omitempty" jsonschema:"payment provider; default when empty"`
	ProductID string        `json:"product_id,omitempty" jsonschema:"buy this product directly instead of the cart"`
	Quantity  int           `json:"quantity,omitempty" jsonschema:"quantity for product_id, default 1"`
}

// CheckoutOutput is the tool view of a checkout outcome. Amounts are
// two-decimal strings.
type CheckoutOutput struct {
	State         string            `json:"state"`
	Message       string            `json:"message,omitempty"`
	FieldErrors   map[string]string `json:"field_errors,omitempty"`
	RedirectURL   string            `json:"redirect_url,omitempty"`
	OrderID       string            `json:"order_id,omitempty"`
	OrderNumber   string            `json:"order_number,omitempty"`
	Total         string            `json:"total,omitempty"`
	PaymentID     string            `json:"payment_id,omitempty"`
	PaymentStatus string            `json:"payment_status,omitempty"`
}

func checkoutOutput(out *checkout.Outcome) *CheckoutOutput {
	v := &CheckoutOutput{
		State:       string(out.State),
		Message:     out.Message,
		FieldErrors: out.FieldErrors,
		RedirectURL: out.RedirectURL,
	}
	if o := out.Order; o != nil {
		v.OrderID = o.ID
		v.OrderNumber = o.Number
		v.Total = o.Total.StringFixed(2)
	}
	if p := out.Payment; p != nil {
		v.PaymentID = p.ID
		v.PaymentStatus = string(p.Status)
	}
	return v
}

// NewMCPServer creates an MCP server with the cart and checkout tools.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "guest-checkout",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Guest storefront cart and checkout. " +
				"Manage the guest cart, then check out with buyer details.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_cart",
		Description: "Get the guest cart with line totals and the cart total.",
	}, h.mcpGetCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_item",
		Description: "Add a product to the cart. Adding a product already in the cart increases its quantity.",
	}, h.mcpAddItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_quantity",
		Description: "Set the quantity of a cart item. A quantity of 0 removes the item.",
	}, h.mcpUpdateQuantity)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_item",
		Description: "Remove an item from the cart.",
	}, h.mcpRemoveItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "clear_cart",
		Description: "Empty the cart and start a new guest session.",
	}, h.mcpClearCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "checkout",
		Description: "Check out the cart, or a single product when product_id is set. Returns a redirect URL for hosted payment pages or the finished order.",
	}, h.mcpCheckout)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpGetCart(ctx context.Context, _ *mcp.CallToolRequest, input GetCartInput) (*mcp.CallToolResult, *cartView, error) {
	if input.Refresh {
		if err := h.cart.Refresh(ctx); err != nil {
			return nil, nil, h.mcpError(err)
		}
	}
	return nil, h.cartView(), nil
}

func (h *Handler) mcpAddItem(ctx context.Context, _ *mcp.CallToolRequest, input AddItemInput) (*mcp.CallToolResult, *cartView, error) {
	if input.ProductID == "" {
		return nil, nil, fmt.Errorf("product_id is required")
	}
	quantity := input.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if err := h.cart.AddItem(ctx, input.ProductID, quantity); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, h.cartView(), nil
}

func (h *Handler) mcpUpdateQuantity(ctx context.Context, _ *mcp.CallToolRequest, input UpdateQuantityInput) (*mcp.CallToolResult, *cartView, error) {
	if input.ItemID == "" {
		return nil, nil, fmt.Errorf("item_id is required")
	}
	if err := h.cart.UpdateQuantity(ctx, input.ItemID, input.Quantity); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, h.cartView(), nil
}

func (h *Handler) mcpRemoveItem(ctx context.Context, _ *mcp.CallToolRequest, input RemoveItemInput) (*mcp.CallToolResult, *cartView, error) {
	if input.ItemID == "" {
		return nil, nil, fmt.Errorf("item_id is required")
	}
	if err := h.cart.RemoveItem(ctx, input.ItemID); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, h.cartView(), nil
}

func (h *Handler) mcpClearCart(ctx context.Context, _ *mcp.CallToolRequest, _ ClearCartInput) (*mcp.CallToolResult, *cartView, error) {
	if _, err := h.cart.ClearCart(ctx); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, h.cartView(), nil
}

func (h *Handler) mcpCheckout(ctx context.Context, _ *mcp.CallToolRequest, input CheckoutInput) (*mcp.CallToolResult, *CheckoutOutput, error) {
	var (
		out *checkout.Outcome
		err error
	)
	if input.ProductID != "" {
		quantity := input.Quantity
		if quantity == 0 {
			quantity = 1
		}
		out, err = h.checkout.SubmitProduct(ctx, input.Form, input.Provider, input.ProductID, quantity)
	} else {
		out, err = h.checkout.Submit(ctx, input.Form, input.Provider)
	}
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	// A failed checkout is a normal outcome, not a tool error: the caller
	// needs the field errors.
	return nil, checkoutOutput(out), nil
}

// mcpError converts service errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	if errors.Is(err, checkout.ErrInProgress) {
		return err
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.Code, model.UserMessage(apiErr))
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}
