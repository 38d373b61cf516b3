// Package handler provides the storefront HTTP API: cart routes, checkout
// routes, redirect return pages, and an MCP endpoint exposing the same
// operations as tools.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"guest-checkout/internal/checkout"
	"guest-checkout/internal/completion"
	"guest-checkout/internal/model"
)

// CartService is the cart surface the handlers drive. Implemented by *cart.Store.
type CartService interface {
	Cart() *model.Cart
	Total() decimal.Decimal
	Updating() []string
	IsAdding() bool
	Refresh(ctx context.Context) error
	AddItem(ctx context.Context, productID string, quantity int) error
	UpdateQuantity(ctx context.Context, itemID string, quantity int) error
	RemoveItem(ctx context.Context, itemID string) error
	ClearCart(ctx context.Context) (string, error)
	ConvertToUser(ctx context.Context, profile model.UserProfile) (*model.Cart, error)
}

// CheckoutService runs checkouts. Implemented by *checkout.Orchestrator.
type CheckoutService interface {
	Submit(ctx context.Context, f checkout.Form, provider string) (*checkout.Outcome, error)
	SubmitProduct(ctx context.Context, f checkout.Form, provider, productID string, quantity int) (*checkout.Outcome, error)
	SaveForm(ctx context.Context, f checkout.Form) error
	RestoreForm(ctx context.Context) (checkout.Form, bool, error)
	State() checkout.State
}

// ReturnHandler handles the buyer coming back from a hosted payment page.
// Implemented by *completion.Handler.
type ReturnHandler interface {
	OnRedirectReturn(ctx context.Context, query url.Values) (*completion.Return, error)
}

// Confirmations exposes the most recent order confirmation.
// Implemented by *completion.Latest.
type Confirmations interface {
	Get() *completion.Confirmation
}

// Pinger checks a backend dependency. Implemented by *storage.RedisStore.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps groups the services the handlers call.
type Deps struct {
	Cart          CartService
	Checkout      CheckoutService
	Returns       ReturnHandler
	Confirmations Confirmations
	// Providers lists the payment providers offered at checkout.
	Providers []string
	// Backend is pinged by the health check when set.
	Backend Pinger
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	cart          CartService
	checkout      CheckoutService
	returns       ReturnHandler
	confirmations Confirmations
	providers     []string
	backend       Pinger
	logger        *slog.Logger
}

// New creates a new Handler.
func New(deps Deps, logger *slog.Logger) *Handler {
	return &Handler{
		cart:          deps.Cart,
		checkout:      deps.Checkout,
		returns:       deps.Returns,
		confirmations: deps.Confirmations,
		providers:     deps.Providers,
		backend:       deps.Backend,
		logger:        logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /cart", h.handleGetCart)
	mux.HandleFunc("POST /cart/items", h.handleAddItem)
	mux.HandleFunc("PUT /cart/items/{id}", h.handleUpdateItem)
	mux.HandleFunc("DELETE /cart/items/{id}", h.handleRemoveItem)
	mux.HandleFunc("POST /cart/clear", h.handleClearCart)
	mux.HandleFunc("POST /cart/convert", h.handleConvertCart)

	mux.HandleFunc("GET /checkout/form", h.handleGetForm)
	mux.HandleFunc("PUT /checkout/form", h.handleSaveForm)
	mux.HandleFunc("GET /checkout/providers", h.handleProviders)
	mux.HandleFunc("POST /checkout", h.handleSubmit)
	mux.HandleFunc("GET /checkout/success", h.handleReturn)
	mux.HandleFunc("GET /checkout/cancel", h.handleReturn)
	mux.HandleFunc("GET /checkout/confirmation", h.handleConfirmation)

	mux.Handle("/mcp", h.NewMCPHandler())

	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError

	var fields model.FieldErrors
	switch {
	case errors.As(err, &fields):
		h.writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: errorBody{
				Code:    "VALIDATION_ERROR",
				Message: model.UserMessage(err),
				Fields:  fields,
			},
		})
		return
	case errors.As(err, &apiErr):
	default:
		apiErr = model.NewInternalError(err)
		h.logger.Error("internal error", slog.String("error", err.Error()))
	}

	if apiErr.RetryAfter > 0 {
		secs := int(math.Ceil(apiErr.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	h.writeJSON(w, statusOf(apiErr), errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: model.UserMessage(apiErr),
		},
	})
}

func statusOf(e *model.APIError) int {
	if e.StatusCode == 0 {
		return http.StatusInternalServerError
	}
	return e.StatusCode
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// MaxRequestBodySize limits JSON request bodies to 1MB.
const MaxRequestBodySize = 1 << 20

// decodeJSON reads JSON from request body into v.
// Returns an APIError if decoding fails.
func decodeJSON(r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}

// handleHealth returns a simple health check response.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.backend != nil {
		if err := h.backend.Ping(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "health check failed", slog.String("error", err.Error()))
			h.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Error: err.Error()})
			return
		}
	}
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
