package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"guest-checkout/internal/checkout"
	"guest-checkout/internal/completion"
	"guest-checkout/internal/model"
)

// handleGetForm returns the saved checkout form, empty if none.
// GET /checkout/form
func (h *Handler) handleGetForm(w http.ResponseWriter, r *http.Request) {
	form, _, err := h.checkout.RestoreForm(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, form)
}

// handleSaveForm stores the form as typed. Nothing is validated here;
// validation runs on submit.
// PUT /checkout/form
func (h *Handler) handleSaveForm(w http.ResponseWriter, r *http.Request) {
	var form checkout.Form
	if err := decodeJSON(r, &form); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.checkout.SaveForm(r.Context(), form); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleProviders lists the payment providers offered at checkout.
// GET /checkout/providers
func (h *Handler) handleProviders(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, providersResponse{Providers: h.providers})
}

type providersResponse struct {
	Providers []string `json:"providers"`
}

// submitRequest is the body of POST /checkout. ProductID switches to a
// single-product purchase that bypasses the cart.
type submitRequest struct {
	Form      checkout.Form `json:"form"`
	Provider  string        `json:"provider,omitempty"`
	ProductID string        `json:"productId,omitempty"`
	Quantity  int           `json:"quantity,omitempty"`
}

// handleSubmit runs a checkout.
// POST /checkout
//
// A redirect outcome carries redirectUrl; the client navigates there.
// A failed outcome is 422 with the single message and any field errors.
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "submitting checkout",
		slog.String("provider", req.Provider),
		slog.Bool("buy_now", req.ProductID != ""),
	)

	var (
		out *checkout.Outcome
		err error
	)
	if req.ProductID != "" {
		quantity := req.Quantity
		if quantity == 0 {
			quantity = 1
		}
		out, err = h.checkout.SubmitProduct(ctx, req.Form, req.Provider, req.ProductID, quantity)
	} else {
		out, err = h.checkout.Submit(ctx, req.Form, req.Provider)
	}

	switch {
	case errors.Is(err, checkout.ErrInProgress):
		h.writeJSON(w, http.StatusConflict, errorResponse{
			Error: errorBody{Code: "CHECKOUT_IN_PROGRESS", Message: "A checkout is already being processed."},
		})
		return
	case err != nil:
		h.writeError(w, err)
		return
	}

	status := http.StatusOK
	if out.State == checkout.StateFailed {
		status = http.StatusUnprocessableEntity
	}
	h.writeJSON(w, status, out)
}

// handleReturn is where the payment provider sends the buyer back.
// GET /checkout/success, GET /checkout/cancel
func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	// The path itself is a marker when the provider adds none.
	if !query.Has(completion.ParamSuccess) && !query.Has(completion.ParamCanceled) {
		if r.URL.Path == "/checkout/cancel" {
			query.Set(completion.ParamCanceled, "true")
		} else {
			query.Set(completion.ParamSuccess, "true")
		}
	}

	ret, err := h.returns.OnRedirectReturn(r.Context(), query)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ret)
}

// handleConfirmation returns the most recent order confirmation.
// GET /checkout/confirmation
func (h *Handler) handleConfirmation(w http.ResponseWriter, r *http.Request) {
	c := h.confirmations.Get()
	if c == nil {
		h.writeError(w, model.NewNotFoundError("confirmation"))
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}
