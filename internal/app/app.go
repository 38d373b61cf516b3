// Package app assembles the cart, session, payment and checkout components
// from configuration. Both the storefront server and cartctl build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"guest-checkout/internal/adapter"
	"guest-checkout/internal/apiclient"
	"guest-checkout/internal/cart"
	"guest-checkout/internal/cartapi"
	"guest-checkout/internal/checkout"
	"guest-checkout/internal/completion"
	"guest-checkout/internal/config"
	"guest-checkout/internal/model"
	"guest-checkout/internal/session"
	"guest-checkout/internal/storage"
	"guest-checkout/internal/stripe"
	"guest-checkout/internal/transport"
	"guest-checkout/internal/unified"
)

// SynchronousProvider is the provider name served by the unified adapter.
const SynchronousProvider = "cod"

// tabTTL bounds how long redirect bookkeeping survives in a shared store.
const tabTTL = time.Hour

// App holds the wired components.
type App struct {
	Store         storage.Store
	Ephemeral     storage.Store
	Sessions      *session.Manager
	Cart          *cart.Store
	Providers     *adapter.Registry
	Stripe        *stripe.Adapter
	Checkout      *checkout.Orchestrator
	Returns       *completion.Handler
	Confirmations *completion.Latest

	closers []func() error
}

type options struct {
	navigator        checkout.Navigator
	httpClient       *http.Client
	durableEphemeral bool
}

// Option customizes New.
type Option func(*options)

// WithNavigator sets where redirect checkouts send the buyer.
func WithNavigator(n checkout.Navigator) Option {
	return func(o *options) { o.navigator = n }
}

// WithHTTPClient replaces the transport stacks built from config. The one
// client serves every upstream.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithDurableEphemeral keeps redirect bookkeeping in the configured backend
// instead of process memory, so a later process can handle the return.
func WithDurableEphemeral() Option {
	return func(o *options) { o.durableEphemeral = true }
}

// New wires every component. The cart is not loaded; call Cart.Load.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{}
	durable, ephemeral, closer, err := openStores(ctx, cfg.Store, o.durableEphemeral)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	a.Store, a.Ephemeral = durable, ephemeral

	cartHTTP, paymentsHTTP := o.httpClient, o.httpClient
	if o.httpClient == nil {
		cartHTTP = upstreamClient("cart-service", cfg, logger)
		paymentsHTTP = upstreamClient("payment-service", cfg, logger)
	}

	cartAPI := apiclient.New("cart service", cfg.APIBaseURL, cfg.Secrets.APIKey, cartHTTP, logger)
	paymentsAPI := apiclient.New("payment service", cfg.APIBaseURL, cfg.Secrets.APIKey, paymentsHTTP, logger)

	a.Sessions = session.NewManager(durable, logger)
	a.Cart = cart.NewStore(cartapi.NewClient(cartAPI), a.Sessions, logger)

	a.Stripe = stripe.New(stripe.NewClient(paymentsAPI), logger)
	a.Providers = adapter.NewRegistry(
		a.Stripe,
		unified.New(unified.NewClient(paymentsAPI), SynchronousProvider, unified.Mode(cfg.Checkout.Mode), logger),
	)

	a.Confirmations = &completion.Latest{}
	a.Returns = completion.New(a.Cart, a.Confirmations, ephemeral, logger,
		completion.WithStatusPoller(completion.StatusPollerFunc(a.paymentStatus)))

	nav := o.navigator
	if nav == nil {
		nav = LogNavigator(logger)
	}
	a.Checkout = checkout.New(checkout.Deps{
		Cart:      a.Cart,
		Sessions:  a.Sessions,
		Providers: a.Providers,
		Completer: a.Returns,
		Navigator: nav,
		Forms:     checkout.NewFormStore(durable),
		Ephemeral: ephemeral,
		Logger:    logger,
	}, checkout.Config{
		Currency:        cfg.Checkout.Currency,
		DefaultProvider: cfg.Checkout.DefaultProvider,
		SuccessURL:      cfg.SuccessURL(),
		CancelURL:       cfg.CancelURL(),
	})

	return a, nil
}

// upstreamClient builds the transport stack for one upstream. Each gets its
// own breaker, so a failing payment service does not block cart edits.
func upstreamClient(name string, cfg *config.Config, logger *slog.Logger) *http.Client {
	breaker := transport.DefaultBreakerSettings
	return transport.NewHTTPClient(transport.Options{
		Name:        name,
		Timeout:     30 * time.Second,
		Fingerprint: transport.Fingerprint(cfg.TLSFingerprint),
		Breaker:     &breaker,
		Tracing:     true,
		Logger:      logger,
	})
}

// paymentStatus asks Stripe for the state of a hosted checkout session.
func (a *App) paymentStatus(ctx context.Context, ref string) (model.PaymentStatus, error) {
	st, err := a.Stripe.SessionStatus(ctx, ref)
	if err != nil {
		return "", err
	}
	return st.PaymentState(), nil
}

// Close releases backend connections.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// LogNavigator records the redirect target instead of opening it. Callers
// that surface the URL themselves (HTTP, MCP, CLI) use it.
func LogNavigator(logger *slog.Logger) checkout.Navigator {
	return checkout.NavigatorFunc(func(ctx context.Context, url string) error {
		logger.InfoContext(ctx, "redirecting buyer to payment page", "url", url)
		return nil
	})
}

// openStores returns the durable store for the configured backend and the
// store for per-tab redirect bookkeeping.
func openStores(ctx context.Context, sc config.StoreConfig, durableEphemeral bool) (durable, ephemeral storage.Store, closer func() error, err error) {
	switch sc.Backend {
	case config.BackendFile:
		fs, err := storage.NewFileStore(sc.Dir)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening state dir: %w", err)
		}
		if !durableEphemeral {
			return fs, storage.NewMemoryStore(), nil, nil
		}
		tab, err := storage.NewFileStore(filepath.Join(sc.Dir, "tab"))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening tab state dir: %w", err)
		}
		return fs, tab, nil, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     sc.RedisAddr,
			Password: sc.RedisPassword,
		})
		rs := storage.NewRedisStore(client, sc.RedisPrefix, 0)
		if err := rs.Ping(ctx); err != nil {
			client.Close()
			return nil, nil, nil, fmt.Errorf("connecting to redis at %s: %w", sc.RedisAddr, err)
		}
		if !durableEphemeral {
			return rs, storage.NewMemoryStore(), client.Close, nil
		}
		return rs, storage.NewRedisStore(client, sc.RedisPrefix+"tab:", tabTTL), client.Close, nil

	case config.BackendMemory:
		return storage.NewMemoryStore(), storage.NewMemoryStore(), nil, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown store backend %q", sc.Backend)
	}
}
