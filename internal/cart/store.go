// Package cart holds the in-memory guest cart and applies user mutations
// optimistically against the remote cart service.
//
// Every quantity change or removal is applied locally first, then sent to the
// service. Each mutation captures the cart as it was when the mutation was
// issued; on failure that exact snapshot is restored. Items with a request in
// flight are reported as updating so the UI can disable their controls; the
// updating set never serializes mutations.
//
// Overlapping mutations on the same item are not ordered: if an earlier
// mutation fails after a later one was applied, the rollback restores the
// earlier snapshot and the later change is lost locally.
package cart

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"guest-checkout/internal/cartapi"
	"guest-checkout/internal/model"
)

// Sessions supplies the guest session id. Implemented by *session.Manager.
type Sessions interface {
	GetOrCreate(ctx context.Context) (string, error)
	Rotate(ctx context.Context) (string, error)
}

// Store is the single owner of the local cart for one application instance.
// Safe for concurrent use.
type Store struct {
	api      cartapi.API
	sessions Sessions
	logger   *slog.Logger

	mu       sync.Mutex
	cart     *model.Cart // replaced, never mutated in place
	updating map[string]int
	adding   int
	// epoch advances on ClearCart; results from mutations issued in an older
	// epoch are dropped.
	epoch uint64

	subMu       sync.Mutex
	subscribers map[int]func(*model.Cart)
	nextSub     int
}

// NewStore creates a Store. Call Load before first use to pull the
// server-side cart; until then the cart is empty.
func NewStore(api cartapi.API, sessions Sessions, logger *slog.Logger) *Store {
	return &Store{
		api:         api,
		sessions:    sessions,
		logger:      logger,
		updating:    make(map[string]int),
		subscribers: make(map[int]func(*model.Cart)),
	}
}

// Load fetches the cart for the current session and replaces local state.
func (s *Store) Load(ctx context.Context) error {
	return s.Refresh(ctx)
}

// Refresh re-fetches the whole cart from the service.
func (s *Store) Refresh(ctx context.Context) error {
	sessionID, err := s.sessions.GetOrCreate(ctx)
	if err != nil {
		return err
	}

	epoch := s.currentEpoch()
	cart, err := s.api.FetchCart(ctx, sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		s.logger.Debug("dropping cart fetched before clear", "session_id", sessionID)
		return nil
	}
	s.cart = cart
	s.mu.Unlock()

	s.notify()
	return nil
}

// UpdateQuantity sets an item's quantity optimistically. quantity ≤ 0
// removes the item. On failure the cart is restored to its state at the time
// of the call and the error is returned; a NotFound error additionally
// triggers a full refetch.
func (s *Store) UpdateQuantity(ctx context.Context, itemID string, quantity int) error {
	sessionID, err := s.sessions.GetOrCreate(ctx)
	if err != nil {
		return err
	}

	return s.mutate(ctx, itemID, func(c *model.Cart) *model.Cart {
		return c.WithQuantity(itemID, quantity)
	}, func() error {
		_, err := s.api.UpdateItemQuantity(ctx, sessionID, itemID, quantity)
		return err
	})
}

// RemoveItem removes an item optimistically, with the same rollback rules as
// UpdateQuantity.
func (s *Store) RemoveItem(ctx context.Context, itemID string) error {
	sessionID, err := s.sessions.GetOrCreate(ctx)
	if err != nil {
		return err
	}

	return s.mutate(ctx, itemID, func(c *model.Cart) *model.Cart {
		return c.WithoutItem(itemID)
	}, func() error {
		_, err := s.api.RemoveItem(ctx, sessionID, itemID)
		return err
	})
}

// mutate is the shared optimistic apply / send / rollback cycle.
func (s *Store) mutate(ctx context.Context, itemID string, apply func(*model.Cart) *model.Cart, send func() error) error {
	s.mu.Lock()
	snapshot := s.cartLocked()
	epoch := s.epoch
	s.cart = apply(snapshot)
	s.updating[itemID]++
	s.mu.Unlock()
	s.notify()

	err := send()

	s.mu.Lock()
	if s.epoch != epoch {
		// Cart was cleared while in flight; the old session's result is moot.
		s.mu.Unlock()
		if err != nil {
			s.logger.Debug("ignoring failure from cleared cart", "item_id", itemID, "error", err)
		}
		return nil
	}
	s.doneUpdatingLocked(itemID)
	if err != nil {
		s.cart = snapshot
	}
	s.mu.Unlock()

	if err == nil {
		s.notify()
		return nil
	}

	s.logger.Warn("cart mutation rolled back", "item_id", itemID, "error", err)
	s.notify()

	if errors.Is(err, model.ErrNotFound) {
		if refreshErr := s.Refresh(ctx); refreshErr != nil {
			s.logger.Warn("refetch after missing item failed", "error", refreshErr)
		}
	}
	return err
}

// AddItem adds quantity of productID. Not optimistic: the adding flag is set
// while the request is in flight and the whole cart is refetched on success.
func (s *Store) AddItem(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return model.NewValidationError("quantity", "must be positive")
	}

	sessionID, err := s.sessions.GetOrCreate(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	epoch := s.epoch
	s.adding++
	s.mu.Unlock()
	s.notify()

	_, err = s.api.AddItem(ctx, sessionID, productID, quantity)

	s.mu.Lock()
	stale := s.epoch != epoch
	if !stale {
		s.adding--
	}
	s.mu.Unlock()

	if stale {
		return nil
	}
	if err != nil {
		s.notify()
		return err
	}
	return s.Refresh(ctx)
}

// ConvertToUser converts the guest cart into a user-owned cart and adopts it
// locally. An empty cart returns EmptyCartError and leaves state unchanged.
func (s *Store) ConvertToUser(ctx context.Context, profile model.UserProfile) (*model.Cart, error) {
	sessionID, err := s.sessions.GetOrCreate(ctx)
	if err != nil {
		return nil, err
	}

	epoch := s.currentEpoch()
	cart, err := s.api.ConvertToUser(ctx, sessionID, profile)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.epoch == epoch {
		s.cart = cart
	}
	s.mu.Unlock()
	s.notify()

	s.logger.Info("guest cart converted", "session_id", sessionID, "user_id", cart.UserID)
	return cart.Clone(), nil
}

// ClearCart abandons the current cart locally: the session is rotated and the
// local cart emptied. The server-side cart is not deleted. Mutations still in
// flight for the old session complete without touching the new cart.
// Returns the new session id.
func (s *Store) ClearCart(ctx context.Context) (string, error) {
	sessionID, err := s.sessions.Rotate(ctx)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.epoch++
	s.cart = &model.Cart{SessionID: sessionID, Items: []model.CartItem{}}
	s.updating = make(map[string]int)
	s.adding = 0
	s.mu.Unlock()

	s.logger.Info("cart cleared", "session_id", sessionID)
	s.notify()
	return sessionID, nil
}

// Cart returns a copy of the current cart. Never nil.
func (s *Store) Cart() *model.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cartLocked().Clone()
}

// Total is Σ(price × quantity) over the current cart; zero when empty.
func (s *Store) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Total()
}

// IsUpdating reports whether itemID has a mutation in flight.
func (s *Store) IsUpdating(itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updating[itemID] > 0
}

// Updating returns the ids of items with a mutation in flight.
func (s *Store) Updating() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.updating))
	for id := range s.updating {
		ids = append(ids, id)
	}
	return ids
}

// IsAdding reports whether an add is in flight.
func (s *Store) IsAdding() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adding > 0
}

// Subscribe registers fn to receive a copy of the cart after every change.
// fn runs on the goroutine that made the change. Returns an unsubscribe func.
func (s *Store) Subscribe(fn func(*model.Cart)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	if len(s.subscribers) == 0 {
		s.subMu.Unlock()
		return
	}
	fns := make([]func(*model.Cart), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	cart := s.Cart()
	for _, fn := range fns {
		fn(cart.Clone())
	}
}

func (s *Store) currentEpoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// cartLocked returns the current snapshot, substituting an empty cart.
// The returned value must not be mutated.
func (s *Store) cartLocked() *model.Cart {
	if s.cart == nil {
		return &model.Cart{Items: []model.CartItem{}}
	}
	return s.cart
}

func (s *Store) doneUpdatingLocked(itemID string) {
	if s.updating[itemID] <= 1 {
		delete(s.updating, itemID)
		return
	}
	s.updating[itemID]--
}
