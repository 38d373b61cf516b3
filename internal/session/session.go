// Package session owns the anonymous guest session identifier.
//
// The identifier is minted on first use, persisted in the durable store under
// storage.KeySessionID, and replaced (never reused) after a completed order
// or an explicit cart clear.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"guest-checkout/internal/model"
	"guest-checkout/internal/storage"
)

// Prefix marks client-generated guest session identifiers.
const Prefix = "guest_"

// Manager hands out the current session id.
// Safe for concurrent use; concurrent misses collapse into a single mint.
type Manager struct {
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time

	sfg singleflight.Group

	// persist serializes writes of the persisted id against Invalidate.
	persist sync.Mutex

	mu         sync.Mutex
	current    string
	generation uint64
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used in generated ids.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager over the durable store.
func NewManager(store storage.Store, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetOrCreate returns the persisted session id, minting and persisting a new
// one when none exists. A mint that races Invalidate is discarded and the
// call resolves against the new generation.
func (m *Manager) GetOrCreate(ctx context.Context) (string, error) {
	for {
		m.mu.Lock()
		if m.current != "" {
			id := m.current
			m.mu.Unlock()
			return id, nil
		}
		gen := m.generation
		m.mu.Unlock()

		v, err, _ := m.sfg.Do(fmt.Sprintf("get-or-create-%d", gen), func() (any, error) {
			return m.loadOrMint(ctx, gen)
		})
		if errors.Is(err, errStale) {
			continue
		}
		if err != nil {
			return "", err
		}
		id := v.(string)

		m.mu.Lock()
		if m.generation != gen {
			m.mu.Unlock()
			continue
		}
		if m.current == "" {
			m.current = id
		}
		id = m.current
		m.mu.Unlock()
		return id, nil
	}
}

// Current returns the memoized id without touching storage.
// Empty until GetOrCreate has run.
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Invalidate forgets the current id, memoized and persisted.
// The next GetOrCreate mints a fresh one.
func (m *Manager) Invalidate(ctx context.Context) error {
	m.persist.Lock()
	defer m.persist.Unlock()

	m.mu.Lock()
	m.current = ""
	m.generation++
	m.mu.Unlock()

	if err := m.store.Delete(ctx, storage.KeySessionID); err != nil {
		return sessionErr("clear session id", err)
	}
	return nil
}

// Rotate invalidates the current id and returns a new one that is guaranteed
// to differ from it.
func (m *Manager) Rotate(ctx context.Context) (string, error) {
	prev := m.Current()
	if prev == "" {
		if data, err := m.store.Get(ctx, storage.KeySessionID); err == nil {
			prev = string(data)
		}
	}

	if err := m.Invalidate(ctx); err != nil {
		return "", err
	}

	for {
		id, err := m.GetOrCreate(ctx)
		if err != nil {
			return "", err
		}
		if id != prev {
			m.logger.Debug("session rotated", "previous", prev, "current", id)
			return id, nil
		}
		if err := m.Invalidate(ctx); err != nil {
			return "", err
		}
	}
}

// errStale reports a mint overtaken by Invalidate.
var errStale = errors.New("session invalidated during mint")

func (m *Manager) loadOrMint(ctx context.Context, gen uint64) (string, error) {
	data, err := m.store.Get(ctx, storage.KeySessionID)
	if err == nil && len(data) > 0 {
		return string(data), nil
	}
	if err != nil && !errors.Is(err, storage.ErrMiss) {
		return "", sessionErr("read session id", err)
	}

	id := m.newID()

	m.persist.Lock()
	defer m.persist.Unlock()
	m.mu.Lock()
	stale := m.generation != gen
	m.mu.Unlock()
	if stale {
		return "", errStale
	}
	if err := m.store.Set(ctx, storage.KeySessionID, []byte(id)); err != nil {
		return "", sessionErr("persist session id", err)
	}
	m.logger.Info("guest session created", "session_id", id)
	return id, nil
}

// newID builds guest_<unix-millis>_<random>.
func (m *Manager) newID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s%d_%s", Prefix, m.now().UnixMilli(), suffix)
}

// IsGuestID reports whether id has the client-generated guest shape.
func IsGuestID(id string) bool {
	rest, ok := strings.CutPrefix(id, Prefix)
	if !ok {
		return false
	}
	millis, suffix, ok := strings.Cut(rest, "_")
	if !ok || millis == "" || suffix == "" {
		return false
	}
	for _, r := range millis {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func sessionErr(op string, err error) error {
	apiErr := model.NewSessionError(op + " failed")
	apiErr.Err = fmt.Errorf("%w: %v", model.ErrSession, err)
	return apiErr
}
