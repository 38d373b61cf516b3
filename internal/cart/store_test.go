package cart

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guest-checkout/internal/apiclient"
	"guest-checkout/internal/cartapi"
	"guest-checkout/internal/cartapi/cartapitest"
	"guest-checkout/internal/model"
	"guest-checkout/internal/session"
	"guest-checkout/internal/storage"
)

var (
	mug = model.Product{ID: "p-mug", Name: "Mug", Price: decimal.RequireFromString("12.50")}
	tee = model.Product{ID: "p-tee", Name: "Tee", Price: decimal.RequireFromString("20.00")}
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store    *Store
	srv      *cartapitest.Server
	sessions *session.Manager
}

// newFixture wires a Store against the in-memory cart service.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := cartapitest.NewServer(mug, tee)
	t.Cleanup(srv.Close)

	logger := testLogger()
	api := cartapi.NewClient(apiclient.New("cart service", srv.URL, "", srv.Client(), logger))
	sessions := session.NewManager(storage.NewMemoryStore(), logger)
	store := NewStore(api, sessions, logger)
	require.NoError(t, store.Load(context.Background()))

	return &fixture{store: store, srv: srv, sessions: sessions}
}

// newMockStore wires a Store against a cartapi.Mock.
func newMockStore(t *testing.T, api *cartapi.Mock) (*Store, *session.Manager) {
	t.Helper()
	sessions := session.NewManager(storage.NewMemoryStore(), testLogger())
	return NewStore(api, sessions, testLogger()), sessions
}

func sumOf(c *model.Cart) decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.Product.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// Empty cart, add two of a product: one line, quantity 2, total = price × 2.
func TestAddItem_ToEmptyCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.AddItem(ctx, mug.ID, 2))

	c := f.store.Cart()
	require.Len(t, c.Items, 1)
	assert.Equal(t, 2, c.Items[0].Quantity)
	assert.True(t, f.store.Total().Equal(decimal.RequireFromString("25.00")))
	assert.False(t, f.store.IsAdding())
}

func TestAddItem_MergesRepeatedAdds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	quantities := []int{1, 3, 2, 4}
	want := 0
	for _, q := range quantities {
		require.NoError(t, f.store.AddItem(ctx, mug.ID, q))
		want += q
	}

	c := f.store.Cart()
	require.Len(t, c.Items, 1)
	assert.Equal(t, want, c.Items[0].Quantity)
}

func TestAddItem_RejectsNonPositive(t *testing.T) {
	f := newFixture(t)
	err := f.store.AddItem(context.Background(), mug.ID, 0)
	assert.True(t, errors.Is(err, model.ErrValidation))
}

func TestAddItem_UnknownProductLeavesCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.AddItem(ctx, mug.ID, 1))
	before := f.store.Cart()

	err := f.store.AddItem(ctx, "p-missing", 1)
	assert.True(t, errors.Is(err, model.ErrProductNotFound))
	assert.Equal(t, before, f.store.Cart())
	assert.False(t, f.store.IsAdding())
}

// Item with quantity 3 set to 0: item removed, total recomputed without it.
func TestUpdateQuantity_ZeroRemovesItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.AddItem(ctx, mug.ID, 3))
	require.NoError(t, f.store.AddItem(ctx, tee.ID, 1))
	item, ok := f.store.Cart().ItemByProduct(mug.ID)
	require.True(t, ok)

	require.NoError(t, f.store.UpdateQuantity(ctx, item.ID, 0))

	c := f.store.Cart()
	_, ok = c.Item(item.ID)
	assert.False(t, ok)
	assert.True(t, f.store.Total().Equal(decimal.RequireFromString("20.00")))
	assert.Len(t, f.srv.Cart(c.SessionID).Items, 1)
}

func TestUpdateQuantity_NonPositiveEqualsRemove(t *testing.T) {
	for _, q := range []int{0, -1, -5} {
		viaUpdate := newFixture(t)
		viaRemove := newFixture(t)
		ctx := context.Background()

		for _, f := range []*fixture{viaUpdate, viaRemove} {
			require.NoError(t, f.store.AddItem(ctx, mug.ID, 2))
			require.NoError(t, f.store.AddItem(ctx, tee.ID, 1))
		}

		mugUpdate, _ := viaUpdate.store.Cart().ItemByProduct(mug.ID)
		mugRemove, _ := viaRemove.store.Cart().ItemByProduct(mug.ID)
		require.NoError(t, viaUpdate.store.UpdateQuantity(ctx, mugUpdate.ID, q))
		require.NoError(t, viaRemove.store.RemoveItem(ctx, mugRemove.ID))

		a, b := viaUpdate.store.Cart(), viaRemove.store.Cart()
		require.Len(t, a.Items, 1)
		require.Len(t, b.Items, 1)
		assert.Equal(t, b.Items[0].ProductID, a.Items[0].ProductID)
		assert.Equal(t, b.Items[0].Quantity, a.Items[0].Quantity)
		assert.True(t, a.Total().Equal(b.Total()))
	}
}

// A rejected quantity change restores the exact pre-call cart and surfaces
// the error.
func TestUpdateQuantity_RollbackOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.AddItem(ctx, mug.ID, 2))
	require.NoError(t, f.store.AddItem(ctx, tee.ID, 1))

	before := f.store.Cart()
	item, _ := before.ItemByProduct(mug.ID)
	f.srv.FailNext(http.MethodPut, "/cart/guest/items/"+item.ID, cartapitest.Failure{Status: 500, Body: `{"error":"boom"}`})

	err := f.store.UpdateQuantity(ctx, item.ID, 7)

	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNetwork))
	assert.Equal(t, before, f.store.Cart())
	assert.False(t, f.store.IsUpdating(item.ID))
}

func TestRemoveItem_RollbackOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.AddItem(ctx, mug.ID, 2))

	before := f.store.Cart()
	item := before.Items[0]
	f.srv.FailNext(http.MethodDelete, "/cart/guest/items/"+item.ID, cartapitest.Failure{Status: 503})

	err := f.store.RemoveItem(ctx, item.ID)

	require.Error(t, err)
	assert.Equal(t, before, f.store.Cart())
}

// A missing item rolls back and then refetches, so the cart converges to the
// server's view.
func TestUpdateQuantity_NotFoundRefetches(t *testing.T) {
	server := &model.Cart{SessionID: "x", Items: []model.CartItem{
		{ID: "i2", ProductID: tee.ID, Product: tee, Quantity: 1},
	}}
	local := &model.Cart{SessionID: "x", Items: []model.CartItem{
		{ID: "i1", ProductID: mug.ID, Product: mug, Quantity: 1},
		{ID: "i2", ProductID: tee.ID, Product: tee, Quantity: 1},
	}}

	fetches := 0
	api := &cartapi.Mock{
		FetchCartFunc: func(ctx context.Context, sessionID string) (*model.Cart, error) {
			fetches++
			if fetches == 1 {
				return local.Clone(), nil
			}
			return server.Clone(), nil
		},
	}
	store, _ := newMockStore(t, api)
	ctx := context.Background()
	require.NoError(t, store.Load(ctx))

	err := store.UpdateQuantity(ctx, "i1", 3)

	assert.True(t, errors.Is(err, model.ErrNotFound))
	assert.Equal(t, 2, fetches)
	assert.Equal(t, server, store.Cart())
}

func TestUpdateQuantity_SuccessKeepsOptimisticState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.AddItem(ctx, mug.ID, 1))
	item := f.store.Cart().Items[0]

	require.NoError(t, f.store.UpdateQuantity(ctx, item.ID, 4))

	got, ok := f.store.Cart().Item(item.ID)
	require.True(t, ok)
	assert.Equal(t, 4, got.Quantity)
	assert.Equal(t, 4, f.srv.Cart(f.sessions.Current()).Items[0].Quantity)
}

// While a request is in flight the optimistic state is already visible and
// the item is reported as updating.
func TestUpdateQuantity_OptimisticWhileInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	api := &cartapi.Mock{
		FetchCartFunc: func(ctx context.Context, sessionID string) (*model.Cart, error) {
			return &model.Cart{SessionID: sessionID, Items: []model.CartItem{
				{ID: "i1", ProductID: mug.ID, Product: mug, Quantity: 1},
			}}, nil
		},
		UpdateItemQuantityFunc: func(ctx context.Context, sessionID, itemID string, quantity int) (*model.Cart, error) {
			close(started)
			<-release
			return nil, nil
		},
	}
	store, _ := newMockStore(t, api)
	ctx := context.Background()
	require.NoError(t, store.Load(ctx))

	done := make(chan error, 1)
	go func() { done <- store.UpdateQuantity(ctx, "i1", 5) }()
	<-started

	assert.True(t, store.IsUpdating("i1"))
	assert.Equal(t, []string{"i1"}, store.Updating())
	item, _ := store.Cart().Item("i1")
	assert.Equal(t, 5, item.Quantity)
	assert.True(t, store.Total().Equal(decimal.RequireFromString("62.50")))

	close(release)
	require.NoError(t, <-done)
	assert.False(t, store.IsUpdating("i1"))
	assert.Empty(t, store.Updating())
}

func TestAddItem_AddingFlagWhileInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	api := &cartapi.Mock{
		AddItemFunc: func(ctx context.Context, sessionID, productID string, quantity int) (*model.CartItem, error) {
			close(started)
			<-release
			return &model.CartItem{ID: "i1", ProductID: productID, Quantity: quantity}, nil
		},
	}
	store, _ := newMockStore(t, api)

	done := make(chan error, 1)
	go func() { done <- store.AddItem(context.Background(), mug.ID, 1) }()
	<-started

	assert.True(t, store.IsAdding())
	close(release)
	require.NoError(t, <-done)
	assert.False(t, store.IsAdding())
}

// Total always matches Σ(price × quantity) after every kind of change.
func TestTotal_ConsistentAcrossOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	check := func() {
		t.Helper()
		assert.True(t, f.store.Total().Equal(sumOf(f.store.Cart())))
	}

	check()
	require.NoError(t, f.store.AddItem(ctx, mug.ID, 2))
	check()
	require.NoError(t, f.store.AddItem(ctx, tee.ID, 3))
	check()
	mugItem, _ := f.store.Cart().ItemByProduct(mug.ID)
	require.NoError(t, f.store.UpdateQuantity(ctx, mugItem.ID, 5))
	check()
	teeItem, _ := f.store.Cart().ItemByProduct(tee.ID)
	f.srv.FailNext(http.MethodPut, "/cart/guest/items/"+teeItem.ID, cartapitest.Failure{Status: 500})
	_ = f.store.UpdateQuantity(ctx, teeItem.ID, 9)
	check()
	require.NoError(t, f.store.RemoveItem(ctx, teeItem.ID))
	check()
	_, err := f.store.ClearCart(ctx)
	require.NoError(t, err)
	check()
	assert.True(t, f.store.Total().IsZero())
}

func TestClearCart_NewSessionEmptyCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.AddItem(ctx, mug.ID, 2))
	prev := f.sessions.Current()
	requestsBefore := len(f.srv.Requests())

	next, err := f.store.ClearCart(ctx)

	require.NoError(t, err)
	assert.NotEqual(t, prev, next)
	assert.Equal(t, next, f.sessions.Current())
	assert.True(t, f.store.Cart().IsEmpty())
	assert.Equal(t, next, f.store.Cart().SessionID)

	// no server call; the old server cart is simply abandoned
	assert.Len(t, f.srv.Requests(), requestsBefore)
	assert.Len(t, f.srv.Cart(prev).Items, 1)
}

func TestClearCart_AlwaysFreshSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seen := map[string]bool{f.sessions.Current(): true}
	for i := 0; i < 5; i++ {
		id, err := f.store.ClearCart(ctx)
		require.NoError(t, err)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

// A mutation from the old session that fails after a clear must not restore
// the old cart over the new one.
func TestClearCart_DropsOrphanedMutations(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	api := &cartapi.Mock{
		FetchCartFunc: func(ctx context.Context, sessionID string) (*model.Cart, error) {
			return &model.Cart{SessionID: sessionID, Items: []model.CartItem{
				{ID: "i1", ProductID: mug.ID, Product: mug, Quantity: 1},
			}}, nil
		},
		UpdateItemQuantityFunc: func(ctx context.Context, sessionID, itemID string, quantity int) (*model.Cart, error) {
			close(started)
			<-release
			return nil, model.NewNetworkError("cart service", errors.New("timeout"))
		},
	}
	store, _ := newMockStore(t, api)
	ctx := context.Background()
	require.NoError(t, store.Load(ctx))

	done := make(chan error, 1)
	go func() { done <- store.UpdateQuantity(ctx, "i1", 3) }()
	<-started

	newID, err := store.ClearCart(ctx)
	require.NoError(t, err)
	close(release)
	assert.NoError(t, <-done)

	c := store.Cart()
	assert.Equal(t, newID, c.SessionID)
	assert.True(t, c.IsEmpty())
	assert.False(t, store.IsUpdating("i1"))
}

// Converting an empty anonymous cart is rejected and changes nothing.
func TestConvertToUser_EmptyCart(t *testing.T) {
	f := newFixture(t)
	before := f.store.Cart()

	_, err := f.store.ConvertToUser(context.Background(), model.UserProfile{Email: "ada@example.com"})

	assert.True(t, errors.Is(err, model.ErrEmptyCart))
	assert.Equal(t, before, f.store.Cart())
}

func TestConvertToUser_AdoptsUserCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.AddItem(ctx, tee.ID, 2))

	cart, err := f.store.ConvertToUser(ctx, model.UserProfile{Email: "ada@example.com"})

	require.NoError(t, err)
	assert.Equal(t, model.OwnerUser, cart.Owner())
	assert.Equal(t, model.OwnerUser, f.store.Cart().Owner())
	assert.True(t, f.store.Total().Equal(decimal.RequireFromString("40")))
}

func TestSubscribe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []int
	unsubscribe := f.store.Subscribe(func(c *model.Cart) {
		mu.Lock()
		seen = append(seen, c.Count())
		mu.Unlock()
	})

	require.NoError(t, f.store.AddItem(ctx, mug.ID, 2))
	unsubscribe()
	require.NoError(t, f.store.AddItem(ctx, mug.ID, 1))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, 2, seen[len(seen)-1])
}

func TestSessionFailureSurfaces(t *testing.T) {
	store := NewStore(&cartapi.Mock{}, failingSessions{}, testLogger())
	ctx := context.Background()

	assert.True(t, errors.Is(store.Load(ctx), model.ErrSession))
	assert.True(t, errors.Is(store.AddItem(ctx, mug.ID, 1), model.ErrSession))
	assert.True(t, errors.Is(store.UpdateQuantity(ctx, "i1", 1), model.ErrSession))
	_, err := store.ClearCart(ctx)
	assert.True(t, errors.Is(err, model.ErrSession))
}

type failingSessions struct{}

func (failingSessions) GetOrCreate(context.Context) (string, error) {
	return "", model.NewSessionError("storage unavailable")
}

func (failingSessions) Rotate(context.Context) (string, error) {
	return "", model.NewSessionError("storage unavailable")
}

// Overlapping mutations on different items do not block each other.
func TestConcurrentMutationsOnDifferentItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.AddItem(ctx, mug.ID, 1))
	require.NoError(t, f.store.AddItem(ctx, tee.ID, 1))
	c := f.store.Cart()

	release := f.srv.Hold()
	var wg sync.WaitGroup
	for i, it := range c.Items {
		wg.Add(1)
		go func(id string, q int) {
			defer wg.Done()
			assert.NoError(t, f.store.UpdateQuantity(ctx, id, q))
		}(it.ID, i+5)
	}

	require.Eventually(t, func() bool { return len(f.store.Updating()) == 2 }, time.Second, 5*time.Millisecond)
	release()
	wg.Wait()

	assert.Empty(t, f.store.Updating())
	assert.True(t, f.store.Total().Equal(sumOf(f.store.Cart())))
}

// Overlapping changes to the same item are not reconciled: a late failure
// restores the snapshot taken when it was issued, discarding the newer
// change that already succeeded.
func TestUpdateQuantity_LateFailureRestoresOwnSnapshot(t *testing.T) {
	firstStarted := make(chan struct{})
	failFirst := make(chan struct{})
	api := &cartapi.Mock{
		FetchCartFunc: func(ctx context.Context, sessionID string) (*model.Cart, error) {
			return &model.Cart{SessionID: sessionID, Items: []model.CartItem{
				{ID: "i1", ProductID: mug.ID, Product: mug, Quantity: 3},
			}}, nil
		},
		UpdateItemQuantityFunc: func(ctx context.Context, sessionID, itemID string, quantity int) (*model.Cart, error) {
			if quantity == 4 {
				close(firstStarted)
				<-failFirst
				return nil, errors.New("boom")
			}
			return nil, nil
		},
	}
	store, _ := newMockStore(t, api)
	ctx := context.Background()
	require.NoError(t, store.Load(ctx))

	first := make(chan error, 1)
	go func() { first <- store.UpdateQuantity(ctx, "i1", 4) }()
	<-firstStarted

	require.NoError(t, store.UpdateQuantity(ctx, "i1", 5))
	item, _ := store.Cart().Item("i1")
	assert.Equal(t, 5, item.Quantity)
	assert.True(t, store.IsUpdating("i1"))

	close(failFirst)
	assert.EqualError(t, <-first, "boom")

	item, _ = store.Cart().Item("i1")
	assert.Equal(t, 3, item.Quantity)
	assert.False(t, store.IsUpdating("i1"))
	assert.True(t, store.Total().Equal(decimal.RequireFromString("37.50")))
}
