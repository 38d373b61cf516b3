// Package transport builds the outbound HTTP stack used by the cart and
// payment clients: an optional Chrome TLS fingerprint, a circuit breaker per
// upstream, and OpenTelemetry client spans.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/http2"
)

// Fingerprint selects the TLS client hello presented upstream.
type Fingerprint string

const (
	FingerprintNone   Fingerprint = "none"
	FingerprintChrome Fingerprint = "chrome"
)

// Options configures NewHTTPClient.
type Options struct {
	// Name labels the breaker and spans, e.g. "cart-service".
	Name        string
	Timeout     time.Duration
	Fingerprint Fingerprint
	// Breaker enables the circuit breaker when non-nil.
	Breaker *BreakerSettings
	// Tracing wraps the stack with otelhttp client spans.
	Tracing bool
	Logger  *slog.Logger
}

// NewHTTPClient assembles the RoundTripper stack for one upstream.
// Layer order, outermost first: tracing, breaker, TLS transport.
func NewHTTPClient(opts Options) *http.Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	var rt http.RoundTripper
	switch opts.Fingerprint {
	case FingerprintChrome:
		rt = NewChromeTransport(opts.Timeout)
	default:
		rt = http.DefaultTransport.(*http.Transport).Clone()
	}

	if opts.Breaker != nil {
		rt = NewBreakerTransport(opts.Name, rt, *opts.Breaker, opts.Logger)
	}

	if opts.Tracing {
		rt = otelhttp.NewTransport(rt,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return opts.Name + " " + r.Method + " " + r.URL.Path
			}),
		)
	}

	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: rt,
	}
}

// =============================================================================
// TLS FINGERPRINT TRANSPORT
// =============================================================================
//
// Go's standard TLS client has a distinctive fingerprint that some storefront
// CDNs rate limit aggressively.
//
// This transport uses uTLS to present a Chrome-like TLS fingerprint with
// full HTTP/2 support:
//
//   1. uTLS with HelloChrome_Auto for the client hello
//   2. ALPN negotiates naturally (h2, http/1.1)
//   3. Go's http2.Transport does the framing when h2 is negotiated
//
// =============================================================================

// NewChromeTransport creates an http.RoundTripper that presents Chrome's TLS
// fingerprint upstream. Supports both HTTP/2 and HTTP/1.1 based on ALPN
// negotiation. Plain http:// requests go through the HTTP/1.1 transport
// without TLS.
func NewChromeTransport(timeout time.Duration) http.RoundTripper {
	dialer := &net.Dialer{Timeout: timeout}

	h2Transport := &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr)
		},
	}

	h1Transport := &http.Transport{
		DialContext: dialer.DialContext,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr)
		},
		ForceAttemptHTTP2: false,
	}

	return &chromeTransport{
		h2: h2Transport,
		h1: h1Transport,
	}
}

type chromeTransport struct {
	h2 *http2.Transport
	h1 *http.Transport
}

// RoundTrip tries HTTP/2 first and falls back to HTTP/1.1.
func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}

	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}

	// Bodies already consumed by the h2 attempt cannot be replayed
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, err
		}
		body, bodyErr := req.GetBody()
		if bodyErr != nil {
			return nil, err
		}
		req = req.Clone(req.Context())
		req.Body = body
	}
	return t.h1.RoundTrip(req)
}

// dialChromeTLS establishes a TLS connection with Chrome's fingerprint.
func dialChromeTLS(ctx context.Context, dialer *net.Dialer, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	tlsConfig := &utls.Config{
		ServerName: host,
	}
	tlsConn := utls.UClient(conn, tlsConfig, utls.HelloChrome_Auto)

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}

	return tlsConn, nil
}
