package csrf

import (
	"context"
	"fmt"
	"sync"
	"time"
)

var _ Store = (*Memory)(nil)

type entry struct {
	sessionID string
	expiresAt time.Time
}

// Memory is the in-process Store for single-instance deployments.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

// MemoryOption customizes a Memory store.
type MemoryOption func(*Memory)

// WithClock injects the time source, used by tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory builds an in-process CSRF store. A non-positive ttl falls back
// to DefaultTTL.
func NewMemory(ttl time.Duration, opts ...MemoryOption) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Memory{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue generates and stores a token for the session.
func (m *Memory) Issue(_ context.Context, sessionID string) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	m.mu.Lock()
	m.entries[token] = entry{sessionID: sessionID, expiresAt: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return token, nil
}

// Validate checks existence, session binding, and TTL. Success deletes the
// entry, making the token single-use. An expired entry is dropped on sight;
// a session mismatch leaves it untouched.
func (m *Memory) Validate(_ context.Context, token, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[token]
	if !ok {
		return false, nil
	}
	if !e.expiresAt.After(m.now()) {
		delete(m.entries, token)
		return false, nil
	}
	if e.sessionID != sessionID {
		return false, nil
	}
	delete(m.entries, token)
	return true, nil
}

// Sweep drops expired, never-consumed entries. Candidates are snapshotted
// first so the lock is not held while scanning large maps repeatedly.
func (m *Memory) Sweep() {
	now := m.now()

	m.mu.Lock()
	expired := make([]string, 0, 16)
	for token, e := range m.entries {
		if !e.expiresAt.After(now) {
			expired = append(expired, token)
		}
	}
	for _, token := range expired {
		delete(m.entries, token)
	}
	m.mu.Unlock()
}

// Len reports the number of live entries, for tests and diagnostics.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
