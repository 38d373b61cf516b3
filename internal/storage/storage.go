// Package storage persists small pieces of client state (session id, saved
// checkout form, pending order bookkeeping) under string keys.
//
// Two lifetimes are used: a durable store survives process restarts and is
// shared between the storefront server and cartctl; an ephemeral store lives
// for a single process.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMiss is returned by Get when the key is absent.
var ErrMiss = errors.New("storage: key not found")

// Well-known keys.
const (
	KeySessionID    = "guest_session_id" // durable
	KeyCheckoutForm = "checkout_form"    // durable
	KeyCurrentOrder = "current_order"    // ephemeral
)

// Store is a minimal key/value contract.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// GetJSON loads key and decodes it into v.
// Returns ErrMiss unchanged so callers can treat absence separately.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}
