package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guest-checkout/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewRequest_Headers(t *testing.T) {
	c := New("cart service", "https://api.example.com/", "key-123", nil, testLogger())

	req, err := c.NewRequest(context.Background(), http.MethodPost, "/cart/guest/items", map[string]int{"quantity": 1}, "guest_1_x")
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com/cart/guest/items", req.URL.String())
	assert.Equal(t, "guest_1_x", req.Header.Get(SessionHeader))
	assert.Equal(t, "Bearer key-123", req.Header.Get("Authorization"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	body, _ := io.ReadAll(req.Body)
	assert.JSONEq(t, `{"quantity":1}`, string(body))
}

func TestNewRequest_NoSessionNoKey(t *testing.T) {
	c := New("payments", "https://api.example.com", "", nil, testLogger())

	req, err := c.NewRequest(context.Background(), http.MethodGet, "/payments/stripe/session/cs_1", nil, "")
	require.NoError(t, err)

	assert.Empty(t, req.Header.Get(SessionHeader))
	assert.Empty(t, req.Header.Get("Authorization"))
	assert.Empty(t, req.Header.Get("Content-Type"))
}

func TestDo_DecodesSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "c1"})
	}))
	defer server.Close()

	c := New("cart service", server.URL, "", server.Client(), testLogger())
	req, err := c.NewRequest(context.Background(), http.MethodGet, "/cart/guest", nil, "guest_1_x")
	require.NoError(t, err)

	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, c.Do(req, &out))
	assert.Equal(t, "c1", out.ID)
}

func TestDo_TransportFailureIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := New("cart service", url, "", nil, testLogger())
	req, err := c.NewRequest(context.Background(), http.MethodGet, "/cart/guest", nil, "guest_1_x")
	require.NoError(t, err)

	err = c.Do(req, nil)
	assert.True(t, errors.Is(err, model.ErrNetwork), "got %v", err)
}

func TestDo_MalformedBodyIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>"))
	}))
	defer server.Close()

	c := New("cart service", server.URL, "", nil, testLogger())
	req, _ := c.NewRequest(context.Background(), http.MethodGet, "/cart/guest", nil, "guest_1_x")

	var out map[string]any
	err := c.Do(req, &out)
	assert.True(t, errors.Is(err, model.ErrNetwork), "got %v", err)
}

func TestParseError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		code     string
		message  string
	}{
		{"nested product not found", 404, `{"error":{"code":"PRODUCT_NOT_FOUND","message":"no such product"}}`, model.ErrProductNotFound, "PRODUCT_NOT_FOUND", "no such product"},
		{"flat product not found", 400, `{"code":"PRODUCT_NOT_FOUND","message":"gone"}`, model.ErrProductNotFound, "PRODUCT_NOT_FOUND", "gone"},
		{"empty cart", 400, `{"error":{"code":"EMPTY_CART","message":"Cart is empty"}}`, model.ErrEmptyCart, "EMPTY_CART", "Cart is empty"},
		{"invalid session", 400, `{"code":"INVALID_SESSION","message":"bad header"}`, model.ErrSession, "SESSION_ERROR", "bad header"},
		{"plain 404", 404, `{"error":"Item not found"}`, model.ErrNotFound, "NOT_FOUND", "Item not found"},
		{"401", 401, ``, model.ErrSession, "SESSION_ERROR", "cart service rejected the session"},
		{"402", 402, `{"message":"card declined"}`, model.ErrProvider, "PROVIDER_ERROR", "cart service: card declined"},
		{"400", 400, `{"message":"quantity must be positive"}`, model.ErrValidation, "VALIDATION_ERROR", "invalid request: quantity must be positive"},
		{"500", 500, `oops`, model.ErrNetwork, "NETWORK_ERROR", "cart service request failed"},
		{"503", 503, `{"error":{"code":"DOWN","message":"maintenance"}}`, model.ErrNetwork, "NETWORK_ERROR", "cart service request failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ParseError("cart service", tt.status, http.Header{}, []byte(tt.body))

			assert.True(t, errors.Is(err, tt.sentinel), "errors.Is(%v, %v)", err, tt.sentinel)

			var apiErr *model.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.code, apiErr.Code)
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestParseError_RateLimited(t *testing.T) {
	h := http.Header{}
	h.Set("RateLimit", "limit=100, remaining=0, reset=30")

	err := ParseError("cart service", http.StatusTooManyRequests, h, nil)

	assert.True(t, errors.Is(err, model.ErrRateLimited))
	assert.True(t, errors.Is(err, model.ErrNetwork))
	var apiErr *model.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 30*time.Second, apiErr.RetryAfter)
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		want   time.Duration
	}{
		{"dictionary form", map[string]string{"RateLimit": "limit=10, remaining=0, reset=12"}, 12 * time.Second},
		{"list form", map[string]string{"RateLimit": `"default";r=0;t=7`}, 7 * time.Second},
		{"retry-after fallback", map[string]string{"Retry-After": "5"}, 5 * time.Second},
		{"malformed", map[string]string{"RateLimit": "???"}, 0},
		{"absent", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.header {
				h.Set(k, v)
			}
			assert.Equal(t, tt.want, RetryAfter(h))
		})
	}
}
