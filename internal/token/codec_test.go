package token_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kindertrack/kindertrack-auth/internal/domain"
	"github.com/kindertrack/kindertrack-auth/internal/token"
)

const testSecret = "k9PzL2vXw4nQ8rT1mJ6bYs3hF7dG0aCe"

func newTestCodec(t *testing.T, now *time.Time) *token.Codec {
	t.Helper()
	codec, err := token.NewCodec(testSecret, time.Hour, 7*24*time.Hour,
		token.WithClock(func() time.Time { return *now }))
	require.NoError(t, err)
	return codec
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(t, &now)

	principal := domain.Principal{ID: 42, Username: "alice", Role: domain.RoleTeacher}
	signed, err := codec.Issue(principal, token.KindAccess)
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	claims, err := codec.VerifyAccess(signed)
	require.NoError(t, err)
	require.Equal(t, int64(42), claims.Subject)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, domain.RoleTeacher, claims.Role)
	require.Equal(t, token.KindAccess, claims.Kind)
	require.Equal(t, principal, claims.Principal())
}

func TestRefreshTokenCarriesNoIdentityDetails(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(t, &now)

	signed, err := codec.Issue(domain.Principal{ID: 7, Username: "bob", Role: domain.RoleParent}, token.KindRefresh)
	require.NoError(t, err)

	claims, err := codec.VerifyRefresh(signed)
	require.NoError(t, err)
	require.Equal(t, int64(7), claims.Subject)
	require.Empty(t, claims.Username)
	require.Empty(t, claims.Role)
}

func TestVerifyExpired(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(t, &now)

	signed, err := codec.Issue(domain.Principal{ID: 1, Username: "alice", Role: domain.RoleAdmin}, token.KindAccess)
	require.NoError(t, err)

	_, err = codec.Verify(signed)
	require.NoError(t, err)

	// No clock-skew allowance: one second past the lifetime is enough.
	now = now.Add(time.Hour + time.Second)
	_, err = codec.Verify(signed)
	require.ErrorIs(t, err, token.ErrExpired)
}

func TestVerifyTamperedSignature(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(t, &now)

	signed, err := codec.Issue(domain.Principal{ID: 1, Username: "alice", Role: domain.RoleAdmin}, token.KindAccess)
	require.NoError(t, err)

	parts := strings.Split(signed, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = codec.Verify(tampered)
	require.Error(t, err)
	require.True(t, errors.Is(err, token.ErrInvalidSignature) || errors.Is(err, token.ErrMalformed))
}

func TestVerifyMalformed(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(t, &now)

	_, err := codec.Verify("not-a-token")
	require.ErrorIs(t, err, token.ErrMalformed)
}

func TestVerifyWrongSecret(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(t, &now)
	other, err := token.NewCodec("A different 32+ byte signing secret!!", time.Hour, time.Hour,
		token.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	signed, err := codec.Issue(domain.Principal{ID: 1, Username: "alice", Role: domain.RoleAdmin}, token.KindAccess)
	require.NoError(t, err)

	_, err = other.Verify(signed)
	require.ErrorIs(t, err, token.ErrInvalidSignature)
}

func TestAccessTokenRejectedAsRefresh(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(t, &now)

	access, err := codec.Issue(domain.Principal{ID: 1, Username: "alice", Role: domain.RoleAdmin}, token.KindAccess)
	require.NoError(t, err)

	_, err = codec.VerifyRefresh(access)
	require.ErrorIs(t, err, token.ErrWrongType)

	refresh, err := codec.Issue(domain.Principal{ID: 1}, token.KindRefresh)
	require.NoError(t, err)

	_, err = codec.VerifyAccess(refresh)
	require.ErrorIs(t, err, token.ErrWrongType)
}

func TestExpiryOfSurvivesExpiredToken(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(t, &now)

	signed, err := codec.Issue(domain.Principal{ID: 1, Username: "alice", Role: domain.RoleAdmin}, token.KindAccess)
	require.NoError(t, err)

	issuedAt := now
	now = now.Add(48 * time.Hour)

	expiresAt, err := codec.ExpiryOf(signed)
	require.NoError(t, err)
	require.WithinDuration(t, issuedAt.Add(time.Hour), expiresAt, 2*time.Second)
}

func TestCheckSecret(t *testing.T) {
	require.Error(t, token.CheckSecret(""))
	require.Error(t, token.CheckSecret("short"))
	require.Error(t, token.CheckSecret("your-secret-key"))
	require.Error(t, token.CheckSecret("0123456789abcdef0123456789abcdef"))
	require.NoError(t, token.CheckSecret(testSecret))
}
