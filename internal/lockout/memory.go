package lockout

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*Memory)(nil)

type record struct {
	failures    []time.Time
	lockedUntil time.Time
}

// Memory is the in-process Store for single-instance deployments. With N
// replicas an attacker gets N times the attempt budget by round-robin, so
// scaled deployments should use the redis-backed Store.
type Memory struct {
	policy Policy
	now    func() time.Time

	mu       sync.Mutex
	accounts map[string]*record
}

// MemoryOption customizes a Memory store.
type MemoryOption func(*Memory)

// WithClock injects the time source, used by tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory builds an in-process lockout store with the given policy.
func NewMemory(policy Policy, opts ...MemoryOption) *Memory {
	m := &Memory{
		policy:   policy.withDefaults(),
		now:      time.Now,
		accounts: make(map[string]*record),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Status reports the lock state, lazily clearing a lock whose duration has
// elapsed. The lazy clear discards the attempt history too, so the next
// lock requires a full run of fresh failures.
func (m *Memory) Status(_ context.Context, key string) (Status, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.accounts[key]
	if !ok {
		return Status{}, nil
	}
	if rec.lockedUntil.IsZero() {
		return Status{}, nil
	}
	if !rec.lockedUntil.After(now) {
		delete(m.accounts, key)
		return Status{}, nil
	}
	return Status{Locked: true, RetryAfter: rec.lockedUntil.Sub(now)}, nil
}

// RecordFailure appends a failure timestamp, prunes the sliding window, and
// locks the account when the threshold is reached.
func (m *Memory) RecordFailure(_ context.Context, key string) (Result, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.accounts[key]
	if !ok {
		rec = &record{}
		m.accounts[key] = rec
	}

	if !rec.lockedUntil.IsZero() {
		if rec.lockedUntil.After(now) {
			// Locked: the attempt list stays frozen and the lock is not
			// extended.
			return Result{Locked: true, RetryAfter: rec.lockedUntil.Sub(now)}, nil
		}
		// Expired lock: start over with a clean history.
		rec.lockedUntil = time.Time{}
		rec.failures = rec.failures[:0]
	}

	rec.failures = append(rec.failures, now)
	rec.failures = pruneBefore(rec.failures, now.Add(-m.policy.Window))

	if len(rec.failures) >= m.policy.MaxAttempts {
		rec.lockedUntil = now.Add(m.policy.Duration)
		return Result{Locked: true, RetryAfter: m.policy.Duration}, nil
	}
	return Result{RemainingAttempts: m.policy.MaxAttempts - len(rec.failures)}, nil
}

// Reset drops all state for the key.
func (m *Memory) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.accounts, key)
	m.mu.Unlock()
	return nil
}

// Cleanup removes accounts with no active lock and no failure inside the
// window, bounding memory under churn. Keys are collected first and deleted
// in a second pass so the lock is never held across the full scan loop body
// doing other work.
func (m *Memory) Cleanup() {
	now := m.now()
	threshold := now.Add(-m.policy.Window)

	m.mu.Lock()
	stale := make([]string, 0, 16)
	for key, rec := range m.accounts {
		if !rec.lockedUntil.IsZero() && rec.lockedUntil.After(now) {
			continue
		}
		if latest := lastFailure(rec.failures); latest.After(threshold) && rec.lockedUntil.IsZero() {
			continue
		}
		stale = append(stale, key)
	}
	for _, key := range stale {
		delete(m.accounts, key)
	}
	m.mu.Unlock()
}

// Len reports the number of tracked accounts, for tests and diagnostics.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts)
}

func pruneBefore(failures []time.Time, threshold time.Time) []time.Time {
	kept := failures[:0]
	for _, t := range failures {
		if t.After(threshold) {
			kept = append(kept, t)
		}
	}
	return kept
}

func lastFailure(failures []time.Time) time.Time {
	if len(failures) == 0 {
		return time.Time{}
	}
	return failures[len(failures)-1]
}
