// Package checkout drives a guest checkout from form submit to either a
// redirect to the payment provider or a completed order.
//
// State machine:
//
//	Idle → Validating → Submitting → RedirectPending | Completed | Failed
//
// Completed and Failed accept a new Submit. While Validating or Submitting a
// second Submit is rejected with ErrInProgress.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"guest-checkout/internal/model"
	"guest-checkout/internal/storage"
)

// State is the orchestrator's position in the checkout flow.
type State string

const (
	StateIdle            State = "idle"
	StateValidating      State = "validating"
	StateSubmitting      State = "submitting"
	StateRedirectPending State = "redirect_pending"
	StateCompleted       State = "completed"
	StateFailed          State = "failed"
)

// ErrInProgress rejects a submit while another one is running.
var ErrInProgress = errors.New("checkout already in progress")

// CartSource reads the current cart. Implemented by *cart.Store.
type CartSource interface {
	Cart() *model.Cart
}

// Sessions supplies the guest session id. Implemented by *session.Manager.
type Sessions interface {
	GetOrCreate(ctx context.Context) (string, error)
}

// Providers runs a checkout request. Implemented by *adapter.Registry.
type Providers interface {
	Checkout(ctx context.Context, req *model.CheckoutRequest) model.CheckoutResult
}

// Completer finalizes local state after a synchronous checkout.
// Implemented by *completion.Handler.
type Completer interface {
	OnSynchronousSuccess(ctx context.Context, order *model.Order, payment *model.Payment) error
	OnProductPurchase(ctx context.Context, order *model.Order, payment *model.Payment) error
}

// Navigator performs the full navigation to an external payment page.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, url string) error

func (f NavigatorFunc) Navigate(ctx context.Context, url string) error { return f(ctx, url) }

// Config holds checkout settings.
type Config struct {
	Currency        string
	DefaultProvider string
	// SuccessURL and CancelURL are where a redirect provider sends the buyer
	// back. SuccessURL may contain {CHECKOUT_SESSION_ID}.
	SuccessURL string
	CancelURL  string
}

// Outcome is what the UI needs after a submit.
type Outcome struct {
	State       State             `json:"state"`
	Message     string            `json:"message,omitempty"`
	FieldErrors model.FieldErrors `json:"fieldErrors,omitempty"`
	RedirectURL string            `json:"redirectUrl,omitempty"`
	Order       *model.Order      `json:"order,omitempty"`
	Payment     *model.Payment    `json:"payment,omitempty"`
}

// Orchestrator coordinates one checkout at a time.
type Orchestrator struct {
	cart      CartSource
	sessions  Sessions
	providers Providers
	completer Completer
	navigator Navigator
	forms     *FormStore
	ephemeral storage.Store
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.Mutex
	state State
	last  *Outcome
}

// Deps groups the orchestrator's collaborators.
type Deps struct {
	Cart      CartSource
	Sessions  Sessions
	Providers Providers
	Completer Completer
	Navigator Navigator
	Forms     *FormStore
	// Ephemeral holds the pending-order bookkeeping for redirect returns.
	Ephemeral storage.Store
	Logger    *slog.Logger
}

// New creates an Orchestrator in the Idle state.
func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &Orchestrator{
		cart:      deps.Cart,
		sessions:  deps.Sessions,
		providers: deps.Providers,
		completer: deps.Completer,
		navigator: deps.Navigator,
		forms:     deps.Forms,
		ephemeral: deps.Ephemeral,
		cfg:       cfg,
		logger:    deps.Logger,
		now:       time.Now,
		state:     StateIdle,
	}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastOutcome returns the outcome of the most recent finished submit.
func (o *Orchestrator) LastOutcome() *Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// Validate checks the form without submitting it.
func (o *Orchestrator) Validate(f Form) model.FieldErrors {
	return f.Validate()
}

// SaveForm persists the in-progress form.
func (o *Orchestrator) SaveForm(ctx context.Context, f Form) error {
	return o.forms.Save(ctx, f)
}

// RestoreForm loads the persisted form, if any.
func (o *Orchestrator) RestoreForm(ctx context.Context) (Form, bool, error) {
	return o.forms.Restore(ctx)
}

// Submit checks out the current session's cart with provider. An empty
// provider uses the configured default.
func (o *Orchestrator) Submit(ctx context.Context, f Form, provider string) (*Outcome, error) {
	return o.submit(ctx, f, provider, "", 0)
}

// SubmitProduct buys quantity of a single product directly, bypassing the cart.
func (o *Orchestrator) SubmitProduct(ctx context.Context, f Form, provider, productID string, quantity int) (*Outcome, error) {
	if productID == "" {
		return nil, model.NewValidationError("productId", "required")
	}
	return o.submit(ctx, f, provider, productID, quantity)
}

func (o *Orchestrator) submit(ctx context.Context, f Form, provider, productID string, quantity int) (*Outcome, error) {
	if err := o.begin(); err != nil {
		return nil, err
	}

	if errs := f.Validate(); len(errs) > 0 {
		return o.fail(errs, errs), nil
	}
	// Keep what was typed even if the submit fails further down
	if err := o.forms.Save(ctx, f); err != nil {
		o.logger.Warn("saving checkout form failed", "error", err)
	}

	if provider == "" {
		provider = o.cfg.DefaultProvider
	}
	req := &model.CheckoutRequest{
		ProductID:       productID,
		Quantity:        quantity,
		Customer:        f.Customer(),
		ShippingAddress: f.Address(),
		Provider:        provider,
		Currency:        o.cfg.Currency,
		SuccessURL:      o.cfg.SuccessURL,
		CancelURL:       o.cfg.CancelURL,
		IdempotencyKey:  uuid.NewString(),
	}

	sessionID, err := o.sessions.GetOrCreate(ctx)
	if err != nil {
		return o.fail(err, nil), nil
	}
	if req.IsCartCheckout() {
		if o.cart.Cart().IsEmpty() {
			return o.fail(model.NewEmptyCartError(), nil), nil
		}
		req.SessionID = sessionID
	}
	if err := req.Validate(); err != nil {
		return o.fail(err, nil), nil
	}

	o.setState(StateSubmitting)
	o.logger.Info("checkout submitted",
		"provider", provider,
		"session_id", sessionID,
		"buy_now", !req.IsCartCheckout(),
		"idempotency_key", req.IdempotencyKey,
	)

	switch result := o.providers.Checkout(ctx, req).(type) {
	case *model.Redirect:
		return o.redirect(ctx, req, sessionID, result), nil
	case *model.Completed:
		return o.complete(ctx, req, result), nil
	case *model.Failed:
		return o.fail(result.Err, nil), nil
	default:
		return o.fail(fmt.Errorf("unexpected checkout result %T", result), nil), nil
	}
}

func (o *Orchestrator) redirect(ctx context.Context, req *model.CheckoutRequest, sessionID string, r *model.Redirect) *Outcome {
	pending := model.PendingOrder{
		OrderID:      r.OrderID,
		SessionID:    sessionID,
		PaymentID:    r.PaymentID,
		Provider:     req.Provider,
		CartCheckout: req.IsCartCheckout(),
		CreatedAt:    o.now().UTC(),
	}
	if err := storage.SetJSON(ctx, o.ephemeral, storage.KeyCurrentOrder, pending); err != nil {
		return o.fail(fmt.Errorf("recording pending order: %w", err), nil)
	}

	if err := o.navigator.Navigate(ctx, r.URL); err != nil {
		return o.fail(fmt.Errorf("navigating to payment page: %w", err), nil)
	}

	o.logger.Info("redirecting to payment provider",
		"provider", req.Provider,
		"order_id", r.OrderID,
	)
	return o.finish(&Outcome{State: StateRedirectPending, RedirectURL: r.URL})
}

func (o *Orchestrator) complete(ctx context.Context, req *model.CheckoutRequest, c *model.Completed) *Outcome {
	var err error
	if req.IsCartCheckout() {
		err = o.completer.OnSynchronousSuccess(ctx, c.Order, c.Payment)
	} else {
		err = o.completer.OnProductPurchase(ctx, c.Order, c.Payment)
	}
	if err != nil {
		// The order exists; only local cleanup failed.
		o.logger.Error("finalizing completed checkout failed", "order_id", c.Order.ID, "error", err)
	}

	if err := o.forms.Clear(ctx); err != nil {
		o.logger.Warn("clearing checkout form failed", "error", err)
	}

	return o.finish(&Outcome{
		State:   StateCompleted,
		Order:   c.Order,
		Payment: c.Payment,
	})
}

// begin moves to Validating unless a submit is already running.
func (o *Orchestrator) begin() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateValidating || o.state == StateSubmitting {
		return ErrInProgress
	}
	o.state = StateValidating
	return nil
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) fail(err error, fields model.FieldErrors) *Outcome {
	o.logger.Warn("checkout failed", "error", err)
	return o.finish(&Outcome{
		State:       StateFailed,
		Message:     model.UserMessage(err),
		FieldErrors: fields,
	})
}

func (o *Orchestrator) finish(out *Outcome) *Outcome {
	o.mu.Lock()
	o.state = out.State
	o.last = out
	o.mu.Unlock()
	return out
}
