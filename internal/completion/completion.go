// Package completion finalizes local state once a checkout has finished,
// either synchronously or by the buyer returning from a hosted payment page.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"

	"guest-checkout/internal/model"
	"guest-checkout/internal/storage"
)

// CartClearer empties the cart and rotates the session.
// Implemented by *cart.Store.
type CartClearer interface {
	ClearCart(ctx context.Context) (string, error)
}

// Router shows the confirmation view.
type Router interface {
	ShowConfirmation(ctx context.Context, c *Confirmation) error
}

// StatusPoller looks up the payment state of a provider-side session.
type StatusPoller interface {
	PaymentStatus(ctx context.Context, sessionRef string) (model.PaymentStatus, error)
}

// StatusPollerFunc adapts a function to StatusPoller.
type StatusPollerFunc func(ctx context.Context, sessionRef string) (model.PaymentStatus, error)

func (f StatusPollerFunc) PaymentStatus(ctx context.Context, ref string) (model.PaymentStatus, error) {
	return f(ctx, ref)
}

// Confirmation is the transient state handed to the confirmation view.
type Confirmation struct {
	Order   *model.Order   `json:"order,omitempty"`
	Payment *model.Payment `json:"payment,omitempty"`
	// OrderID is set when only the id is known, after a redirect return.
	OrderID       string              `json:"orderId,omitempty"`
	PaymentStatus model.PaymentStatus `json:"paymentStatus,omitempty"`
}

// ReturnStatus classifies a redirect return.
type ReturnStatus string

const (
	ReturnSucceeded ReturnStatus = "succeeded"
	ReturnCanceled  ReturnStatus = "canceled"
	ReturnUnknown   ReturnStatus = "unknown"
	// ReturnUnpaid is a success marker the provider session contradicts.
	ReturnUnpaid ReturnStatus = "unpaid"
)

// Query parameters the provider appends to the return URL.
const (
	ParamSuccess   = "success"
	ParamCanceled  = "canceled"
	ParamSessionID = "session_id"
	ParamOrderID   = "order_id"
	ParamReason    = "reason"
)

// Return describes what the buyer came back with.
type Return struct {
	Status     ReturnStatus `json:"status"`
	OrderID    string       `json:"orderId,omitempty"`
	SessionRef string       `json:"sessionRef,omitempty"`
	Reason     string       `json:"reason,omitempty"`
	// Pending is the bookkeeping written before the redirect, nil if none
	// was found (another tab, expired storage).
	Pending       *model.PendingOrder `json:"pending,omitempty"`
	PaymentStatus model.PaymentStatus `json:"paymentStatus,omitempty"`
	CartCleared   bool                `json:"cartCleared"`
}

// Handler implements the completion steps.
type Handler struct {
	cart      CartClearer
	router    Router
	ephemeral storage.Store
	poller    StatusPoller
	logger    *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithStatusPoller makes OnRedirectReturn report the provider session status.
func WithStatusPoller(p StatusPoller) Option {
	return func(h *Handler) { h.poller = p }
}

// New creates a Handler.
func New(cart CartClearer, router Router, ephemeral storage.Store, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		cart:      cart,
		router:    router,
		ephemeral: ephemeral,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnSynchronousSuccess clears the cart, which mints a new session, and routes
// to the confirmation view with the finished order and payment.
func (h *Handler) OnSynchronousSuccess(ctx context.Context, order *model.Order, payment *model.Payment) error {
	if _, err := h.cart.ClearCart(ctx); err != nil {
		return fmt.Errorf("clearing cart after order %s: %w", orderID(order), err)
	}
	h.logger.Info("order completed", "order_id", orderID(order))
	return h.router.ShowConfirmation(ctx, &Confirmation{Order: order, Payment: payment})
}

// OnProductPurchase routes to confirmation after a single-product purchase.
// The cart was not part of the order and is left as it is.
func (h *Handler) OnProductPurchase(ctx context.Context, order *model.Order, payment *model.Payment) error {
	h.logger.Info("product purchase completed", "order_id", orderID(order))
	return h.router.ShowConfirmation(ctx, &Confirmation{Order: order, Payment: payment})
}

// OnRedirectReturn handles the page the provider sends the buyer back to.
// The pending-order bookkeeping is cleared in every case. On success the cart
// is cleared unless the bookkeeping shows a single-product purchase; on
// cancel it is left untouched. A success marker is overridden when the
// polled provider session is still open, expired or failed.
func (h *Handler) OnRedirectReturn(ctx context.Context, query url.Values) (*Return, error) {
	ret := &Return{
		Status:     classify(query),
		OrderID:    query.Get(ParamOrderID),
		SessionRef: query.Get(ParamSessionID),
		Reason:     query.Get(ParamReason),
	}

	pending, err := h.takePending(ctx)
	if err != nil {
		h.logger.Warn("reading pending order failed", "error", err)
	}
	ret.Pending = pending
	if ret.OrderID == "" && pending != nil {
		ret.OrderID = pending.OrderID
	}

	if ret.Status != ReturnSucceeded {
		h.logger.Info("checkout not completed", "status", ret.Status, "order_id", ret.OrderID, "reason", ret.Reason)
		return ret, nil
	}

	if h.poller != nil && ret.SessionRef != "" {
		status, err := h.poller.PaymentStatus(ctx, ret.SessionRef)
		if err != nil {
			h.logger.Warn("polling payment status failed", "session_ref", ret.SessionRef, "error", err)
		} else {
			ret.PaymentStatus = status
		}
	}
	if unpaid(ret.PaymentStatus) {
		ret.Status = ReturnUnpaid
		h.logger.Warn("success return for unpaid session, keeping cart",
			"session_ref", ret.SessionRef, "order_id", ret.OrderID, "payment_status", ret.PaymentStatus)
		return ret, nil
	}

	if pending == nil || pending.CartCheckout {
		if _, err := h.cart.ClearCart(ctx); err != nil {
			return ret, fmt.Errorf("clearing cart after order %s: %w", ret.OrderID, err)
		}
		ret.CartCleared = true
	}

	h.logger.Info("checkout returned", "order_id", ret.OrderID, "payment_status", ret.PaymentStatus)
	return ret, h.router.ShowConfirmation(ctx, &Confirmation{
		OrderID:       ret.OrderID,
		PaymentStatus: ret.PaymentStatus,
	})
}

func (h *Handler) takePending(ctx context.Context) (*model.PendingOrder, error) {
	var p model.PendingOrder
	err := storage.GetJSON(ctx, h.ephemeral, storage.KeyCurrentOrder, &p)
	if delErr := h.ephemeral.Delete(ctx, storage.KeyCurrentOrder); delErr != nil {
		h.logger.Warn("clearing pending order failed", "error", delErr)
	}
	if errors.Is(err, storage.ErrMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// unpaid reports a status that rules out a completed payment. Pending is
// not unpaid: asynchronous methods settle after the return.
func unpaid(s model.PaymentStatus) bool {
	switch s {
	case model.PaymentRequiresAction, model.PaymentCancelled, model.PaymentFailed:
		return true
	}
	return false
}

// classify reads the success and cancel markers. A cancel marker wins.
func classify(q url.Values) ReturnStatus {
	if flag(q, ParamCanceled) {
		return ReturnCanceled
	}
	if flag(q, ParamSuccess) {
		return ReturnSucceeded
	}
	if s, ok := q[ParamSuccess]; ok && len(s) > 0 {
		return ReturnCanceled // success=false
	}
	return ReturnUnknown
}

// flag reports whether key is present and truthy. A bare "?success" counts.
func flag(q url.Values, key string) bool {
	vals, ok := q[key]
	if !ok {
		return false
	}
	if len(vals) == 0 || vals[0] == "" {
		return true
	}
	b, err := strconv.ParseBool(vals[0])
	return err == nil && b
}

func orderID(o *model.Order) string {
	if o == nil {
		return ""
	}
	return o.ID
}

// Latest is a Router that keeps the most recent confirmation for a
// confirmation page to read.
type Latest struct {
	mu   sync.Mutex
	last *Confirmation
}

// ShowConfirmation stores c.
func (l *Latest) ShowConfirmation(_ context.Context, c *Confirmation) error {
	l.mu.Lock()
	l.last = c
	l.mu.Unlock()
	return nil
}

// Get returns the stored confirmation, nil if none.
func (l *Latest) Get() *Confirmation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}
