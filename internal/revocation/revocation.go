// Package revocation tracks tokens that must be rejected before their
// natural expiry, such as tokens surrendered at logout.
package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Store is a denylist of still-valid tokens. Entries live until the token's
// own expiry, after which structural verification rejects it anyway and the
// entry can be dropped.
type Store interface {
	// Revoke inserts the token into the denylist until expiresAt. Idempotent.
	Revoke(ctx context.Context, token string, expiresAt time.Time) error
	// IsRevoked reports whether the token has been revoked.
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// fingerprint hashes the raw token so the store never holds usable bearer
// credentials and entries have a fixed size.
func fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
