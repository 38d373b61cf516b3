package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Sentinel errors for the failure taxonomy.
// Use errors.Is() to check against these.
var (
	ErrValidation      = errors.New("validation failed")
	ErrSession         = errors.New("session error")
	ErrNetwork         = errors.New("network error")
	ErrProvider        = errors.New("payment provider error")
	ErrNotFound        = errors.New("not found")
	ErrProductNotFound = fmt.Errorf("product %w", ErrNotFound)
	ErrEmptyCart       = errors.New("cart is empty")
	ErrRateLimited     = errors.New("rate limited")
)

// APIError represents a structured error raised by the cart and checkout layer.
// Implements error interface and supports unwrapping.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"` // HTTP status, not serialized
	Err        error  `json:"-"` // Wrapped error, not serialized

	// RetryAfter is the server-advised wait before the user tries again.
	// Informational only: nothing in this module retries automatically.
	RetryAfter time.Duration `json:"-"`
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a 400 error for invalid input.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: 400,
		Err:        ErrValidation,
	}
}

// NewSessionError creates an error for a missing or rejected session identifier.
// Fatal to the current operation; the caller must re-initialize the session.
func NewSessionError(reason string) *APIError {
	return &APIError{
		Code:       "SESSION_ERROR",
		Message:    reason,
		StatusCode: 401,
		Err:        ErrSession,
	}
}

// NewNetworkError creates a 502 error for failed requests to a remote service.
func NewNetworkError(service string, err error) *APIError {
	return &APIError{
		Code:       "NETWORK_ERROR",
		Message:    fmt.Sprintf("%s request failed", service),
		StatusCode: 502,
		Err:        fmt.Errorf("%w: %v", ErrNetwork, err),
	}
}

// NewProviderError creates a 402 error when a payment provider rejected the
// request or returned nothing usable.
func NewProviderError(provider, reason string) *APIError {
	return &APIError{
		Code:       "PROVIDER_ERROR",
		Message:    fmt.Sprintf("%s: %s", provider, reason),
		StatusCode: 402,
		Err:        ErrProvider,
	}
}

// NewNotFoundError creates a 404 error for missing resources.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: 404,
		Err:        ErrNotFound,
	}
}

// NewProductNotFoundError creates a 404 error for an unknown product id.
func NewProductNotFoundError(productID string) *APIError {
	return &APIError{
		Code:       "PRODUCT_NOT_FOUND",
		Message:    fmt.Sprintf("product %s not found", productID),
		StatusCode: 404,
		Err:        ErrProductNotFound,
	}
}

// NewEmptyCartError creates a 422 error for operations that need cart items.
func NewEmptyCartError() *APIError {
	return &APIError{
		Code:       "EMPTY_CART",
		Message:    "cart has no items",
		StatusCode: 422,
		Err:        ErrEmptyCart,
	}
}

// NewRateLimitError creates a 429 error for rate limiting.
func NewRateLimitError(service string, retryAfter time.Duration) *APIError {
	return &APIError{
		Code:       "RATE_LIMITED",
		Message:    fmt.Sprintf("%s rate limit exceeded, please retry later", service),
		StatusCode: 429,
		Err:        fmt.Errorf("%w: %w", ErrNetwork, ErrRateLimited),
		RetryAfter: retryAfter,
	}
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: 500,
		Err:        err,
	}
}

// FieldErrors maps a form field name to its validation message.
// An empty map means the form is valid.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	fields := make([]string, 0, len(f))
	for k := range f {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	parts := make([]string, len(fields))
	for i, k := range fields {
		parts[i] = k + ": " + f[k]
	}
	return "invalid form: " + strings.Join(parts, "; ")
}

func (f FieldErrors) Unwrap() error {
	return ErrValidation
}

// UserMessage reduces any error to a single human-readable line for display.
// APIError messages are shown as-is; anything else becomes a generic message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var fields FieldErrors
	if errors.As(err, &fields) {
		return "Please correct the highlighted fields."
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case errors.Is(apiErr, ErrNetwork):
			return "We could not reach the store. Check your connection and try again."
		case errors.Is(apiErr, ErrSession):
			return "Your session expired. Please reload and try again."
		}
		return apiErr.Message
	}
	return "Something went wrong. Please try again."
}
