package completion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guest-checkout/internal/model"
	"guest-checkout/internal/storage"
)

type fakeCart struct {
	clears int
	err    error
}

func (f *fakeCart) ClearCart(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.clears++
	return "guest_new", nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(t *testing.T, opts ...Option) (*Handler, *fakeCart, *Latest, storage.Store) {
	t.Helper()
	cart := &fakeCart{}
	router := &Latest{}
	eph := storage.NewMemoryStore()
	return New(cart, router, eph, testLogger(), opts...), cart, router, eph
}

func writePending(t *testing.T, s storage.Store, p model.PendingOrder) {
	t.Helper()
	require.NoError(t, storage.SetJSON(context.Background(), s, storage.KeyCurrentOrder, p))
}

func TestOnSynchronousSuccess(t *testing.T) {
	h, cart, router, _ := setup(t)
	order := &model.Order{ID: "ord_1", Status: model.OrderConfirmed}
	payment := &model.Payment{ID: "pay_1", OrderID: "ord_1", Status: model.PaymentPending}

	require.NoError(t, h.OnSynchronousSuccess(context.Background(), order, payment))

	assert.Equal(t, 1, cart.clears)
	require.NotNil(t, router.Get())
	assert.Same(t, order, router.Get().Order)
	assert.Same(t, payment, router.Get().Payment)
}

func TestOnSynchronousSuccess_ClearFails(t *testing.T) {
	h, cart, router, _ := setup(t)
	cart.err = errors.New("disk full")

	err := h.OnSynchronousSuccess(context.Background(), &model.Order{ID: "ord_1"}, nil)
	assert.ErrorContains(t, err, "ord_1")
	assert.Nil(t, router.Get())
}

func TestOnProductPurchase_KeepsCart(t *testing.T) {
	h, cart, router, _ := setup(t)

	require.NoError(t, h.OnProductPurchase(context.Background(), &model.Order{ID: "ord_2"}, nil))
	assert.Zero(t, cart.clears)
	assert.Equal(t, "ord_2", router.Get().Order.ID)
}

func TestOnRedirectReturn_Success(t *testing.T) {
	h, cart, router, eph := setup(t)
	writePending(t, eph, model.PendingOrder{
		OrderID:      "ord_9",
		SessionID:    "guest_1_abc",
		Provider:     "stripe",
		CartCheckout: true,
		CreatedAt:    time.Now(),
	})

	ret, err := h.OnRedirectReturn(context.Background(), url.Values{"success": {"true"}, "session_id": {"cs_1"}})
	require.NoError(t, err)

	assert.Equal(t, ReturnSucceeded, ret.Status)
	assert.Equal(t, "ord_9", ret.OrderID, "order id falls back to the bookkeeping")
	assert.Equal(t, "cs_1", ret.SessionRef)
	assert.True(t, ret.CartCleared)
	assert.Equal(t, 1, cart.clears)
	assert.Equal(t, "ord_9", router.Get().OrderID)

	_, err = eph.Get(context.Background(), storage.KeyCurrentOrder)
	assert.ErrorIs(t, err, storage.ErrMiss)
}

func TestOnRedirectReturn_Canceled(t *testing.T) {
	h, cart, router, eph := setup(t)
	writePending(t, eph, model.PendingOrder{OrderID: "ord_9", CartCheckout: true})

	ret, err := h.OnRedirectReturn(context.Background(), url.Values{"canceled": {"true"}, "reason": {"user_cancelled"}})
	require.NoError(t, err)

	assert.Equal(t, ReturnCanceled, ret.Status)
	assert.Equal(t, "user_cancelled", ret.Reason)
	assert.False(t, ret.CartCleared)
	assert.Zero(t, cart.clears)
	assert.Nil(t, router.Get())

	// bookkeeping cleared either way
	_, err = eph.Get(context.Background(), storage.KeyCurrentOrder)
	assert.ErrorIs(t, err, storage.ErrMiss)
}

func TestOnRedirectReturn_ProductPurchaseKeepsCart(t *testing.T) {
	h, cart, _, eph := setup(t)
	writePending(t, eph, model.PendingOrder{OrderID: "ord_3", CartCheckout: false})

	ret, err := h.OnRedirectReturn(context.Background(), url.Values{"success": {"1"}, "order_id": {"ord_3"}})
	require.NoError(t, err)
	assert.False(t, ret.CartCleared)
	assert.Zero(t, cart.clears)
}

// Without bookkeeping (another tab, expired storage) the cart is cleared.
func TestOnRedirectReturn_NoPendingClearsCart(t *testing.T) {
	h, cart, _, _ := setup(t)

	ret, err := h.OnRedirectReturn(context.Background(), url.Values{"success": {""}, "order_id": {"ord_4"}})
	require.NoError(t, err)
	assert.Nil(t, ret.Pending)
	assert.Equal(t, "ord_4", ret.OrderID)
	assert.True(t, ret.CartCleared)
	assert.Equal(t, 1, cart.clears)
}

func TestOnRedirectReturn_PollsStatus(t *testing.T) {
	var polled string
	poller := StatusPollerFunc(func(_ context.Context, ref string) (model.PaymentStatus, error) {
		polled = ref
		return model.PaymentSucceeded, nil
	})
	h, _, router, _ := setup(t, WithStatusPoller(poller))

	ret, err := h.OnRedirectReturn(context.Background(), url.Values{"success": {"true"}, "session_id": {"cs_7"}})
	require.NoError(t, err)
	assert.Equal(t, "cs_7", polled)
	assert.Equal(t, model.PaymentSucceeded, ret.PaymentStatus)
	assert.Equal(t, model.PaymentSucceeded, router.Get().PaymentStatus)
}

func TestOnRedirectReturn_PollFailureIsNotFatal(t *testing.T) {
	poller := StatusPollerFunc(func(context.Context, string) (model.PaymentStatus, error) {
		return "", model.NewNetworkError("payments", errors.New("timeout"))
	})
	h, cart, _, _ := setup(t, WithStatusPoller(poller))

	ret, err := h.OnRedirectReturn(context.Background(), url.Values{"success": {"true"}, "session_id": {"cs_7"}})
	require.NoError(t, err)
	assert.Empty(t, ret.PaymentStatus)
	assert.Equal(t, 1, cart.clears)
}

// A success marker for a session the provider reports as unpaid keeps the
// cart. Pending still clears it.
func TestOnRedirectReturn_UnpaidSessionKeepsCart(t *testing.T) {
	tests := []struct {
		status     model.PaymentStatus
		wantStatus ReturnStatus
		wantClears int
	}{
		{model.PaymentRequiresAction, ReturnUnpaid, 0},
		{model.PaymentCancelled, ReturnUnpaid, 0},
		{model.PaymentFailed, ReturnUnpaid, 0},
		{model.PaymentPending, ReturnSucceeded, 1},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			poller := StatusPollerFunc(func(context.Context, string) (model.PaymentStatus, error) {
				return tt.status, nil
			})
			h, cart, router, eph := setup(t, WithStatusPoller(poller))
			writePending(t, eph, model.PendingOrder{OrderID: "ord_5", CartCheckout: true})

			ret, err := h.OnRedirectReturn(context.Background(), url.Values{"success": {"true"}, "session_id": {"cs_5"}})
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, ret.Status)
			assert.Equal(t, tt.status, ret.PaymentStatus)
			assert.Equal(t, tt.wantClears, cart.clears)
			assert.Equal(t, tt.wantClears == 1, ret.CartCleared)
			if tt.wantClears == 0 {
				assert.Nil(t, router.Get())
			}

			_, err = eph.Get(context.Background(), storage.KeyCurrentOrder)
			assert.ErrorIs(t, err, storage.ErrMiss)
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		query string
		want  ReturnStatus
	}{
		{"success=true", ReturnSucceeded},
		{"success=1", ReturnSucceeded},
		{"success", ReturnSucceeded},
		{"success=false", ReturnCanceled},
		{"canceled=true", ReturnCanceled},
		{"success=true&canceled=true", ReturnCanceled},
		{"", ReturnUnknown},
		{"order_id=ord_1", ReturnUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, classify(q))
		})
	}
}
