// Package csrf issues and validates the single-use, session-bound tokens
// required on state-changing requests from cookie-authenticated clients.
package csrf

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

// DefaultTTL bounds how long an issued token stays redeemable.
const DefaultTTL = time.Hour

// Store holds unconsumed CSRF tokens. A token validates successfully exactly
// once, only against the session it was issued for, and only within its TTL.
type Store interface {
	// Issue generates a random token bound to the session.
	Issue(ctx context.Context, sessionID string) (string, error)
	// Validate consumes the token on success. Session mismatch and reuse
	// return false; the first leaves the entry in place, the second finds
	// none.
	Validate(ctx context.Context, token, sessionID string) (bool, error)
}

const tokenBytes = 32

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
