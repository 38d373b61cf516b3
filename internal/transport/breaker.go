package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerSettings tunes the circuit breaker.
type BreakerSettings struct {
	// ConsecutiveFailures trips the breaker open.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests uint32
}

// DefaultBreakerSettings are used by the storefront and cartctl.
var DefaultBreakerSettings = BreakerSettings{
	ConsecutiveFailures: 5,
	OpenTimeout:         30 * time.Second,
	HalfOpenRequests:    1,
}

// ErrCircuitOpen is returned while the upstream is considered down.
// It is a transport error, so API clients surface it as a network failure.
var ErrCircuitOpen = errors.New("circuit open")

// serverError marks a 5xx response as a breaker failure while still handing
// the response back to the caller.
type serverError struct {
	status int
}

func (e *serverError) Error() string {
	return fmt.Sprintf("upstream status %d", e.status)
}

// breakerTransport fails fast while the upstream is unhealthy.
// It never retries: one RoundTrip is at most one upstream request.
type breakerTransport struct {
	next http.RoundTripper
	cb   *gobreaker.CircuitBreaker[*http.Response]
}

// NewBreakerTransport wraps next with a circuit breaker named name.
// Transport errors and 5xx responses count as failures; 4xx do not.
func NewBreakerTransport(name string, next http.RoundTripper, s BreakerSettings, logger *slog.Logger) http.RoundTripper {
	if logger == nil {
		logger = slog.Default()
	}

	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: s.HalfOpenRequests,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"upstream", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &breakerTransport{next: next, cb: cb}
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.cb.Execute(func() (*http.Response, error) {
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return resp, &serverError{status: resp.StatusCode}
		}
		return resp, nil
	})

	var se *serverError
	switch {
	case err == nil:
		return resp, nil
	case errors.As(err, &se):
		return resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%s: %w", t.cb.Name(), ErrCircuitOpen)
	default:
		return nil, err
	}
}
