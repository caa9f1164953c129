package snapshot

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps snapshots in process memory. It only helps when the
// in-memory disconnected cache evicted a session early; it does not survive
// restarts.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Data
	closed  bool
	done    chan struct{}
	now     func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*memoryConfig)

type memoryConfig struct {
	cleanupInterval time.Duration
	now             func() time.Time
}

// WithCleanupInterval sets how often expired snapshots are dropped.
// Default: 1 minute.
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(c *memoryConfig) { c.cleanupInterval = d }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *memoryConfig) { c.now = now }
}

// NewMemoryStore creates an in-memory snapshot store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	cfg := memoryConfig{cleanupInterval: time.Minute, now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	m := &MemoryStore{
		entries: make(map[string]Data),
		done:    make(chan struct{}),
		now:     cfg.now,
	}
	go m.cleanupLoop(cfg.cleanupInterval)
	return m
}

func (m *MemoryStore) Save(_ context.Context, sessionID string, data []byte, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.entries[sessionID] = Data{Data: clone(data), ExpiresAt: expiresAt}
	return nil
}

func (m *MemoryStore) Load(_ context.Context, sessionID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	d, ok := m.entries[sessionID]
	if !ok || !m.now().Before(d.ExpiresAt) {
		return nil, nil
	}
	return clone(d.Data), nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.entries, sessionID)
	return nil
}

func (m *MemoryStore) SaveAll(_ context.Context, snapshots map[string]Data) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for id, d := range snapshots {
		m.entries[id] = Data{Data: clone(d.Data), ExpiresAt: d.ExpiresAt}
	}
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	m.entries = nil
	return nil
}

// Count returns the number of stored snapshots, expired ones included.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.done:
			return
		}
	}
}

func (m *MemoryStore) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	now := m.now()
	for id, d := range m.entries {
		if !now.Before(d.ExpiresAt) {
			delete(m.entries, id)
		}
	}
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
