package password_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kindertrack/kindertrack-auth/internal/password"
)

func TestHashAndVerify(t *testing.T) {
	encoded, err := password.Hash("correct horse battery staple")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(encoded, "$argon2id$"))

	ok, err := password.Verify("correct horse battery staple", encoded)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = password.Verify("correct horse battery stapler", encoded)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHashesAreSalted(t *testing.T) {
	a, err := password.Hash("same password")
	require.NoError(t, err)
	b, err := password.Hash("same password")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	for _, encoded := range []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=65536,t=2,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=65536,t=2,p=1$not-base64!$a2V5",
	} {
		_, err := password.Verify("anything", encoded)
		require.ErrorIs(t, err, password.ErrInvalidHash, "hash %q", encoded)
	}
}
