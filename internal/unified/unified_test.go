package unified

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guest-checkout/internal/apiclient"
	"guest-checkout/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder captures request paths and bodies in arrival order.
type recorder struct {
	mu     sync.Mutex
	paths  []string
	bodies []map[string]any
	keys   []string
}

func (r *recorder) record(req *http.Request) {
	var body map[string]any
	json.NewDecoder(req.Body).Decode(&body)
	r.mu.Lock()
	r.paths = append(r.paths, req.URL.Path)
	r.bodies = append(r.bodies, body)
	r.keys = append(r.keys, req.Header.Get(apiclient.IdempotencyHeader))
	r.mu.Unlock()
}

func newTestAdapter(t *testing.T, mode Mode, handler func(rec *recorder) http.HandlerFunc) (*Adapter, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(handler(rec))
	t.Cleanup(srv.Close)
	api := apiclient.New("payments", srv.URL, "", srv.Client(), testLogger())
	return New(NewClient(api), "cod", mode, testLogger()), rec
}

func request() *model.CheckoutRequest {
	return &model.CheckoutRequest{
		SessionID:       "guest_1_x",
		Customer:        model.Customer{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Phone: "+1 555 0100"},
		ShippingAddress: model.Address{Street: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"},
		Provider:        "cod",
		Currency:        "USD",
		IdempotencyKey:  "idem-1",
	}
}

const orderJSON = `{"id":"o-1","orderNumber":"1001","status":"confirmed","total":"37.50","currency":"USD"}`

func TestUnified_Completed(t *testing.T) {
	a, rec := newTestAdapter(t, ModeUnified, func(rec *recorder) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			rec.record(r)
			w.Write([]byte(`{"success":true,"order":` + orderJSON + `,"payment":{"id":"pay-1","orderId":"o-1","provider":"cod","status":"pending","amount":"37.50"}}`))
		}
	})

	resp, err := a.CreateCheckout(context.Background(), request())
	require.NoError(t, err)

	completed, ok := resp.Result(a.Name()).(*model.Completed)
	require.True(t, ok)
	assert.Equal(t, "o-1", completed.Order.ID)
	assert.Equal(t, model.OrderConfirmed, completed.Order.Status)
	assert.Equal(t, "pay-1", completed.Payment.ID)
	assert.Equal(t, model.PaymentPending, completed.Payment.Status)

	require.Equal(t, []string{"/payments/unified-checkout"}, rec.paths)
	assert.Equal(t, "cod", rec.bodies[0]["provider"])
	assert.Equal(t, "guest_1_x", rec.bodies[0]["sessionId"])
	assert.Equal(t, "idem-1", rec.keys[0])
}

func TestUnified_RedirectAnswer(t *testing.T) {
	a, _ := newTestAdapter(t, ModeUnified, func(rec *recorder) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success":true,"checkoutUrl":"https://pay.example/s/1","order":` + orderJSON + `}`))
		}
	})

	resp, err := a.CreateCheckout(context.Background(), request())
	require.NoError(t, err)
	redirect, ok := resp.Result(a.Name()).(*model.Redirect)
	require.True(t, ok)
	assert.Equal(t, "o-1", redirect.OrderID)
}

func TestUnified_Declined(t *testing.T) {
	a, _ := newTestAdapter(t, ModeUnified, func(rec *recorder) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success":false,"error":"Cash on delivery unavailable for this address"}`))
		}
	})

	resp, err := a.CreateCheckout(context.Background(), request())
	require.NoError(t, err)
	failed, ok := resp.Result(a.Name()).(*model.Failed)
	require.True(t, ok)
	assert.True(t, errors.Is(failed.Err, model.ErrProvider))
}

func TestUnified_BuyNow(t *testing.T) {
	a, rec := newTestAdapter(t, ModeUnified, func(rec *recorder) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			rec.record(r)
			w.Write([]byte(`{"success":true,"order":` + orderJSON + `}`))
		}
	})

	req := request()
	req.SessionID = ""
	req.ProductID = "p-mug"
	req.Quantity = 3

	_, err := a.CreateCheckout(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "p-mug", rec.bodies[0]["productId"])
	assert.EqualValues(t, 3, rec.bodies[0]["quantity"])
	assert.Nil(t, rec.bodies[0]["sessionId"])
}

func TestLegacy_TwoSteps(t *testing.T) {
	a, rec := newTestAdapter(t, ModeLegacy, func(rec *recorder) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			rec.record(r)
			switch r.URL.Path {
			case "/cart/guest/checkout":
				w.Write([]byte(`{"order":` + orderJSON + `}`))
			case "/payments/guest-checkout":
				w.Write([]byte(`{"payment":{"id":"pay-1","orderId":"o-1","provider":"cod","status":"pending","amount":"37.50"}}`))
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}
	})

	resp, err := a.CreateCheckout(context.Background(), request())
	require.NoError(t, err)

	completed, ok := resp.Result(a.Name()).(*model.Completed)
	require.True(t, ok)
	assert.Equal(t, "o-1", completed.Order.ID)
	assert.Equal(t, "pay-1", completed.Payment.ID)

	require.Equal(t, []string{"/cart/guest/checkout", "/payments/guest-checkout"}, rec.paths)
	assert.Equal(t, "Ada Lovelace", rec.bodies[0]["guest"].(map[string]any)["name"])
	assert.EqualValues(t, 3750, rec.bodies[1]["amount"])
	assert.Equal(t, "o-1", rec.bodies[1]["orderId"])
	assert.Equal(t, []string{"idem-1", "idem-1:payment"}, rec.keys)
}

// When the payment step fails the order is left in place: no cancel call.
func TestLegacy_PaymentFailureNoCompensation(t *testing.T) {
	a, rec := newTestAdapter(t, ModeLegacy, func(rec *recorder) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			rec.record(r)
			if r.URL.Path == "/cart/guest/checkout" {
				w.Write([]byte(`{"order":` + orderJSON + `}`))
				return
			}
			w.WriteHeader(http.StatusPaymentRequired)
			w.Write([]byte(`{"error":{"code":"PAYMENT_FAILED","message":"provider unavailable"}}`))
		}
	})

	_, err := a.CreateCheckout(context.Background(), request())

	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrProvider))
	assert.Contains(t, err.Error(), "o-1")
	assert.Equal(t, []string{"/cart/guest/checkout", "/payments/guest-checkout"}, rec.paths)
}

func TestLegacy_EmptyCart(t *testing.T) {
	a, rec := newTestAdapter(t, ModeLegacy, func(rec *recorder) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			rec.record(r)
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"code":"EMPTY_CART","message":"Cart is empty"}}`))
		}
	})

	_, err := a.CreateCheckout(context.Background(), request())
	assert.True(t, errors.Is(err, model.ErrEmptyCart))
	assert.Len(t, rec.paths, 1)
}

func TestLegacy_RejectsBuyNow(t *testing.T) {
	a, _ := newTestAdapter(t, ModeLegacy, func(rec *recorder) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected")
		}
	})

	req := request()
	req.SessionID = ""
	req.ProductID = "p-mug"
	req.Quantity = 1
	_, err := a.CreateCheckout(context.Background(), req)
	assert.True(t, errors.Is(err, model.ErrValidation))
}

func TestStrategyAndName(t *testing.T) {
	a := New(nil, "bank_transfer", "", testLogger())
	assert.Equal(t, "bank_transfer", a.Name())
	assert.Equal(t, model.StrategySynchronous, a.Strategy())
	assert.Equal(t, ModeUnified, a.mode)
}
