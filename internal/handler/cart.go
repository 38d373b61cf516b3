package handler

import (
	"log/slog"
	"net/http"
	"slices"

	"guest-checkout/internal/model"
)

// cartView is the cart as the storefront renders it. Money is a fixed
// two-decimal string.
type cartView struct {
	ID        string     `json:"id,omitempty"`
	SessionID string     `json:"sessionId,omitempty"`
	UserID    string     `json:"userId,omitempty"`
	Items     []itemView `json:"items"`
	Count     int        `json:"count"`
	Total     string     `json:"total"`
	Adding    bool       `json:"adding"`
}

type itemView struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Image     string `json:"image,omitempty"`
	Price     string `json:"price"`
	Quantity  int    `json:"quantity"`
	LineTotal string `json:"lineTotal"`
	// Updating is true while a change to this item is in flight.
	Updating bool `json:"updating"`
}

func (h *Handler) cartView() *cartView {
	c := h.cart.Cart()
	updating := h.cart.Updating()

	v := &cartView{
		ID:        c.ID,
		SessionID: c.SessionID,
		UserID:    c.UserID,
		Items:     make([]itemView, 0, len(c.Items)),
		Count:     c.Count(),
		Total:     c.Total().StringFixed(2),
		Adding:    h.cart.IsAdding(),
	}
	for _, it := range c.Items {
		v.Items = append(v.Items, itemView{
			ID:        it.ID,
			ProductID: it.ProductID,
			Name:      it.Product.Name,
			Image:     it.Product.Images.Primary().URL,
			Price:     it.Product.Price.StringFixed(2),
			Quantity:  it.Quantity,
			LineTotal: it.LineTotal().StringFixed(2),
			Updating:  slices.Contains(updating, it.ID),
		})
	}
	return v
}

// handleGetCart returns the cart. ?refresh=1 refetches it from the cart
// service first.
// GET /cart
func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Has("refresh") {
		if err := h.cart.Refresh(r.Context()); err != nil {
			h.writeError(w, err)
			return
		}
	}
	h.writeJSON(w, http.StatusOK, h.cartView())
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// handleAddItem adds a product to the cart.
// POST /cart/items
func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.ProductID == "" {
		h.writeError(w, model.NewValidationError("productId", "required"))
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	h.logger.InfoContext(ctx, "adding item",
		slog.String("product_id", req.ProductID),
		slog.Int("quantity", req.Quantity),
	)

	if err := h.cart.AddItem(ctx, req.ProductID, req.Quantity); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.cartView())
}

type updateItemRequest struct {
	Quantity *int `json:"quantity"`
}

// handleUpdateItem sets an item's quantity. Zero or below removes it.
// PUT /cart/items/{id}
func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	itemID := r.PathValue("id")

	var req updateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Quantity == nil {
		h.writeError(w, model.NewValidationError("quantity", "required"))
		return
	}

	h.logger.InfoContext(ctx, "updating item",
		slog.String("item_id", itemID),
		slog.Int("quantity", *req.Quantity),
	)

	if err := h.cart.UpdateQuantity(ctx, itemID, *req.Quantity); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.cartView())
}

// handleRemoveItem removes an item.
// DELETE /cart/items/{id}
func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	itemID := r.PathValue("id")

	h.logger.InfoContext(ctx, "removing item", slog.String("item_id", itemID))

	if err := h.cart.RemoveItem(ctx, itemID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.cartView())
}

// handleClearCart abandons the cart and starts a new guest session.
// POST /cart/clear
func (h *Handler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	if _, err := h.cart.ClearCart(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.cartView())
}

// handleConvertCart turns the guest cart into a registered user's cart.
// POST /cart/convert
func (h *Handler) handleConvertCart(w http.ResponseWriter, r *http.Request) {
	var profile model.UserProfile
	if err := decodeJSON(r, &profile); err != nil {
		h.writeError(w, err)
		return
	}
	if profile.Email == "" {
		h.writeError(w, model.NewValidationError("email", "required"))
		return
	}

	if _, err := h.cart.ConvertToUser(r.Context(), profile); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.cartView())
}
