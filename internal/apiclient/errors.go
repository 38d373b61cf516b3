package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunglas/httpsfv"

	"guest-checkout/internal/model"
)

// Server error codes with a dedicated place in the taxonomy.
const (
	CodeProductNotFound = "PRODUCT_NOT_FOUND"
	CodeEmptyCart       = "EMPTY_CART"
	CodeInvalidSession  = "INVALID_SESSION"
)

// errorBody accepts both {"error": {"code","message"}} and flat
// {"code","message"}. Some endpoints send {"error": "message"}.
type errorBody struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
}

type nestedError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decodeErrorBody(body []byte) (code, message string) {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return "", ""
	}
	code, message = eb.Code, eb.Message

	if len(eb.Error) > 0 {
		var nested nestedError
		if err := json.Unmarshal(eb.Error, &nested); err == nil {
			if nested.Code != "" {
				code = nested.Code
			}
			if nested.Message != "" {
				message = nested.Message
			}
		} else {
			var s string
			if err := json.Unmarshal(eb.Error, &s); err == nil && message == "" {
				message = s
			}
		}
	}
	return code, message
}

// ParseError converts an upstream error response into *model.APIError.
// Server codes take priority over the HTTP status.
func ParseError(service string, statusCode int, header http.Header, body []byte) error {
	code, msg := decodeErrorBody(body)

	switch strings.ToUpper(code) {
	case CodeProductNotFound:
		return withMessage(model.NewProductNotFoundError(""), msg, "product not found")
	case CodeEmptyCart:
		return withMessage(model.NewEmptyCartError(), msg, "")
	case CodeInvalidSession:
		return withMessage(model.NewSessionError("invalid session"), msg, "")
	}

	switch {
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return withMessage(model.NewSessionError(service+" rejected the session"), msg, "")
	case statusCode == http.StatusNotFound:
		return withMessage(model.NewNotFoundError("resource"), msg, "")
	case statusCode == http.StatusPaymentRequired:
		return model.NewProviderError(service, orDefault(msg, "payment declined"))
	case statusCode == http.StatusTooManyRequests:
		return model.NewRateLimitError(service, RetryAfter(header))
	case statusCode == http.StatusBadRequest, statusCode == http.StatusUnprocessableEntity, statusCode == http.StatusConflict:
		return model.NewValidationError("request", orDefault(msg, "invalid request"))
	case statusCode >= 500:
		return model.NewNetworkError(service, fmt.Errorf("status %d: %s", statusCode, msg))
	default:
		return model.NewNetworkError(service, fmt.Errorf("unexpected status %d: %s", statusCode, msg))
	}
}

// RetryAfter reads the server's advised wait from the RateLimit structured
// header (RFC 8941). Both the dictionary form (limit=100, remaining=0, reset=30)
// and the list form ("default";r=0;t=30) are understood. Falls back to
// Retry-After seconds. Zero when nothing usable is present.
func RetryAfter(header http.Header) time.Duration {
	if values := header.Values("RateLimit"); len(values) > 0 {
		if dict, err := httpsfv.UnmarshalDictionary(values); err == nil {
			if member, ok := dict.Get("reset"); ok {
				if item, ok := member.(httpsfv.Item); ok {
					if secs, ok := item.Value.(int64); ok && secs >= 0 {
						return time.Duration(secs) * time.Second
					}
				}
			}
		}

		if list, err := httpsfv.UnmarshalList(values); err == nil {
			for _, member := range list {
				item, ok := member.(httpsfv.Item)
				if !ok || item.Params == nil {
					continue
				}
				if v, ok := item.Params.Get("t"); ok {
					if secs, ok := v.(int64); ok && secs >= 0 {
						return time.Duration(secs) * time.Second
					}
				}
			}
		}
	}

	if ra := header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(ra)); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

func networkErr(service string, err error) error {
	// Caller cancellations pass through untouched
	if errors.Is(err, context.Canceled) {
		return err
	}
	return model.NewNetworkError(service, err)
}

func withMessage(e *model.APIError, msg, fallback string) *model.APIError {
	switch {
	case msg != "":
		e.Message = msg
	case fallback != "":
		e.Message = fallback
	}
	return e
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
