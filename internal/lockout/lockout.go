// Package lockout converts streams of failed login attempts into a
// per-account lock state using a sliding time window.
package lockout

import (
	"context"
	"strings"
	"time"
)

// Defaults applied when the configured values are zero or negative.
const (
	DefaultMaxAttempts = 5
	DefaultWindow      = 15 * time.Minute
	DefaultDuration    = 15 * time.Minute
)

// Policy holds the thresholds shared by every Store implementation.
type Policy struct {
	// MaxAttempts is the number of failures inside Window that locks the
	// account.
	MaxAttempts int
	// Window is the sliding interval failures are counted over. A burst of
	// MaxAttempts failures anywhere inside any rolling Window-length
	// interval triggers the lock, not only within calendar-aligned buckets.
	Window time.Duration
	// Duration is how long the account stays locked once the threshold is
	// crossed. Further failures while locked do not extend it.
	Duration time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Window <= 0 {
		p.Window = DefaultWindow
	}
	if p.Duration <= 0 {
		p.Duration = DefaultDuration
	}
	return p
}

// Status is the answer to "may this account attempt a login right now".
type Status struct {
	Locked bool
	// RetryAfter is how long until the lock clears. Zero when unlocked.
	RetryAfter time.Duration
}

// Result describes the account state after a recorded failure.
type Result struct {
	Locked bool
	// RemainingAttempts is how many further failures the account can absorb
	// before locking. Zero when locked.
	RemainingAttempts int
	// RetryAfter is how long until the lock clears. Zero when unlocked.
	RetryAfter time.Duration
}

// Store tracks failed attempts per account key. For a single key,
// RecordFailure and Status are linearizable with respect to each other;
// different keys proceed fully in parallel.
type Store interface {
	// Status reports the lock state. Its only mutation is the lazy clear of
	// an expired lock, which also discards the attempt history.
	Status(ctx context.Context, key string) (Status, error)
	// RecordFailure appends a failed attempt and reports the resulting
	// state. While locked it neither grows the history nor extends the lock.
	RecordFailure(ctx context.Context, key string) (Result, error)
	// Reset clears attempt history and lock state regardless of timers.
	// Called after a successful login.
	Reset(ctx context.Context, key string) error
}

// Key builds the account key from the client address and the submitted
// username. Combining both means an attacker cannot lock a user out from
// many addresses without tripping the per-IP request limiter, and a single
// address hammering many usernames stays bounded by the same limiter.
func Key(ip, username string) string {
	return ip + "|" + strings.ToLower(strings.TrimSpace(username))
}
