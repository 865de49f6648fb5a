package csrf_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kindertrack/kindertrack-auth/internal/csrf"
)

func TestTokenIsSingleUse(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := csrf.NewMemory(time.Hour, csrf.WithClock(func() time.Time { return now }))

	token, err := store.Issue(ctx, "session-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	ok, err := store.Validate(ctx, token, "session-1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Validate(ctx, token, "session-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSessionMismatchDoesNotConsume(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := csrf.NewMemory(time.Hour, csrf.WithClock(func() time.Time { return now }))

	token, err := store.Issue(ctx, "session-1")
	require.NoError(t, err)

	ok, err := store.Validate(ctx, token, "session-2")
	require.NoError(t, err)
	require.False(t, ok)

	// The entry survived the mismatch and the rightful session can still
	// redeem it.
	ok, err = store.Validate(ctx, token, "session-1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestExpiredTokenRejected(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := csrf.NewMemory(time.Hour, csrf.WithClock(func() time.Time { return now }))

	token, err := store.Issue(ctx, "session-1")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	ok, err := store.Validate(ctx, token, "session-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUnknownTokenRejected(t *testing.T) {
	ctx := context.Background()
	store := csrf.NewMemory(time.Hour)

	ok, err := store.Validate(ctx, "never-issued", "session-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSweepDropsExpiredEntries(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := csrf.NewMemory(time.Hour, csrf.WithClock(func() time.Time { return now }))

	_, err := store.Issue(ctx, "session-1")
	require.NoError(t, err)
	_, err = store.Issue(ctx, "session-2")
	require.NoError(t, err)
	require.Equal(t, 2, store.Len())

	now = now.Add(2 * time.Hour)
	store.Sweep()
	require.Equal(t, 0, store.Len())
}

func TestTokensAreUnique(t *testing.T) {
	ctx := context.Background()
	store := csrf.NewMemory(time.Hour)

	a, err := store.Issue(ctx, "session-1")
	require.NoError(t, err)
	b, err := store.Issue(ctx, "session-1")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
