package lockout_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kindertrack/kindertrack-auth/internal/lockout"
)

func newTestStore(now *time.Time) *lockout.Memory {
	return lockout.NewMemory(lockout.Policy{
		MaxAttempts: 5,
		Window:      15 * time.Minute,
		Duration:    15 * time.Minute,
	}, lockout.WithClock(func() time.Time { return *now }))
}

func TestThresholdLocks(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := newTestStore(&now)
	key := lockout.Key("10.0.0.1", "alice")

	for i := 0; i < 4; i++ {
		result, err := store.RecordFailure(ctx, key)
		require.NoError(t, err)
		require.False(t, result.Locked)
		require.Equal(t, 4-i, result.RemainingAttempts)

		status, err := store.Status(ctx, key)
		require.NoError(t, err)
		require.False(t, status.Locked)
	}

	result, err := store.RecordFailure(ctx, key)
	require.NoError(t, err)
	require.True(t, result.Locked)
	require.Equal(t, 15*time.Minute, result.RetryAfter)

	status, err := store.Status(ctx, key)
	require.NoError(t, err)
	require.True(t, status.Locked)
	require.InDelta(t, (15 * time.Minute).Seconds(), status.RetryAfter.Seconds(), 1)
}

func TestSlidingWindowForgetsOldFailures(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := newTestStore(&now)
	key := lockout.Key("10.0.0.1", "alice")

	for i := 0; i < 4; i++ {
		_, err := store.RecordFailure(ctx, key)
		require.NoError(t, err)
	}

	// The early burst falls out of the window; the next failure counts
	// against a nearly empty history.
	now = now.Add(16 * time.Minute)
	result, err := store.RecordFailure(ctx, key)
	require.NoError(t, err)
	require.False(t, result.Locked)
	require.Equal(t, 4, result.RemainingAttempts)
}

func TestBurstAcrossWindowBoundaryStillLocks(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := newTestStore(&now)
	key := lockout.Key("10.0.0.1", "alice")

	// Two failures, a pause, then three more: five inside one rolling
	// 15-minute interval even though they straddle a calendar quarter hour.
	for i := 0; i < 2; i++ {
		_, err := store.RecordFailure(ctx, key)
		require.NoError(t, err)
	}
	now = now.Add(10 * time.Minute)
	for i := 0; i < 2; i++ {
		result, err := store.RecordFailure(ctx, key)
		require.NoError(t, err)
		require.False(t, result.Locked)
	}
	result, err := store.RecordFailure(ctx, key)
	require.NoError(t, err)
	require.True(t, result.Locked)
}

func TestFailuresWhileLockedDoNotExtend(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := newTestStore(&now)
	key := lockout.Key("10.0.0.1", "alice")

	for i := 0; i < 5; i++ {
		_, err := store.RecordFailure(ctx, key)
		require.NoError(t, err)
	}

	now = now.Add(10 * time.Minute)
	result, err := store.RecordFailure(ctx, key)
	require.NoError(t, err)
	require.True(t, result.Locked)
	// Five minutes of the original lock remain; the failure did not reset it.
	require.InDelta(t, (5 * time.Minute).Seconds(), result.RetryAfter.Seconds(), 1)
}

func TestLockExpiresLazilyAndClearsHistory(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := newTestStore(&now)
	key := lockout.Key("10.0.0.1", "alice")

	for i := 0; i < 5; i++ {
		_, err := store.RecordFailure(ctx, key)
		require.NoError(t, err)
	}

	now = now.Add(16 * time.Minute)
	status, err := store.Status(ctx, key)
	require.NoError(t, err)
	require.False(t, status.Locked)

	// History was cleared with the lock: five fresh failures required.
	for i := 0; i < 4; i++ {
		result, err := store.RecordFailure(ctx, key)
		require.NoError(t, err)
		require.False(t, result.Locked)
	}
	result, err := store.RecordFailure(ctx, key)
	require.NoError(t, err)
	require.True(t, result.Locked)
}

func TestResetClearsEverything(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := newTestStore(&now)
	key := lockout.Key("10.0.0.1", "alice")

	for i := 0; i < 5; i++ {
		_, err := store.RecordFailure(ctx, key)
		require.NoError(t, err)
	}
	status, err := store.Status(ctx, key)
	require.NoError(t, err)
	require.True(t, status.Locked)

	require.NoError(t, store.Reset(ctx, key))

	status, err = store.Status(ctx, key)
	require.NoError(t, err)
	require.False(t, status.Locked)

	result, err := store.RecordFailure(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 4, result.RemainingAttempts)
}

func TestKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := newTestStore(&now)

	alice := lockout.Key("10.0.0.1", "alice")
	for i := 0; i < 5; i++ {
		_, err := store.RecordFailure(ctx, alice)
		require.NoError(t, err)
	}

	// Same username from another address, and another user from the same
	// address, are separate budgets.
	for _, key := range []string{lockout.Key("10.0.0.2", "alice"), lockout.Key("10.0.0.1", "bob")} {
		status, err := store.Status(ctx, key)
		require.NoError(t, err)
		require.False(t, status.Locked)
	}
}

func TestCleanupEvictsIdleAccounts(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := newTestStore(&now)

	_, err := store.RecordFailure(ctx, lockout.Key("10.0.0.1", "idle"))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := store.RecordFailure(ctx, lockout.Key("10.0.0.1", "locked"))
		require.NoError(t, err)
	}
	require.Equal(t, 2, store.Len())

	// Idle history ages out of the window; the active lock survives.
	now = now.Add(16 * time.Minute)
	for i := 0; i < 5; i++ {
		_, err := store.RecordFailure(ctx, lockout.Key("10.0.0.1", "relocked"))
		require.NoError(t, err)
	}
	store.Cleanup()

	require.Equal(t, 1, store.Len())
	status, err := store.Status(ctx, lockout.Key("10.0.0.1", "relocked"))
	require.NoError(t, err)
	require.True(t, status.Locked)
}
