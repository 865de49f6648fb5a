package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Store = (*Redis)(nil)

const redisKeyPrefix = "revoked:"

// Redis is the externally backed Store for horizontally scaled deployments:
// every replica consults the same denylist, so a logout on one instance
// takes effect on all of them. Entry lifetime is delegated to key TTLs.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis builds a revocation store on the given client.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// Revoke stores the token fingerprint with a TTL ending at expiresAt.
func (r *Redis) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	key := redisKeyPrefix + fingerprint(token)
	if err := r.client.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("persist revocation: %w", err)
	}
	return nil
}

// IsRevoked checks the shared denylist.
func (r *Redis) IsRevoked(ctx context.Context, token string) (bool, error) {
	key := redisKeyPrefix + fingerprint(token)
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("lookup revocation: %w", err)
	}
	return n > 0, nil
}
