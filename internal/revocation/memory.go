package revocation

import (
	"context"
	"sync"
	"time"
)

// Compile-time interface assertion.
var _ Store = (*Memory)(nil)

// Memory is the in-process Store for single-instance deployments. State is
// process-local: with several replicas behind a load balancer a revoked
// token stays valid against replicas that never saw the revocation, so
// multi-instance deployments should use the redis-backed Store instead.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

// MemoryOption customizes a Memory store.
type MemoryOption func(*Memory)

// WithClock injects the time source, used by tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory builds an empty in-process revocation store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Revoke records the token until expiresAt. Entries already past expiry are
// not stored.
func (m *Memory) Revoke(_ context.Context, token string, expiresAt time.Time) error {
	if !expiresAt.After(m.now()) {
		return nil
	}
	key := fingerprint(token)
	m.mu.Lock()
	m.entries[key] = expiresAt
	m.mu.Unlock()
	return nil
}

// IsRevoked reports whether the token is on the denylist and still within
// its revocation bound.
func (m *Memory) IsRevoked(_ context.Context, token string) (bool, error) {
	key := fingerprint(token)
	m.mu.RLock()
	expiresAt, ok := m.entries[key]
	m.mu.RUnlock()
	return ok && expiresAt.After(m.now()), nil
}

// Sweep drops entries whose expiry has passed. Candidates are collected
// under the read lock first so request-time lookups are not stalled for the
// duration of the scan.
func (m *Memory) Sweep() {
	now := m.now()

	m.mu.RLock()
	expired := make([]string, 0, 16)
	for key, expiresAt := range m.entries {
		if !expiresAt.After(now) {
			expired = append(expired, key)
		}
	}
	m.mu.RUnlock()

	if len(expired) == 0 {
		return
	}

	m.mu.Lock()
	for _, key := range expired {
		if expiresAt, ok := m.entries[key]; ok && !expiresAt.After(now) {
			delete(m.entries, key)
		}
	}
	m.mu.Unlock()
}

// Len reports the number of live entries, for tests and diagnostics.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
