package csrf

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Store = (*Redis)(nil)

const redisKeyPrefix = "csrf:"

// consumeScript deletes the token only when it is bound to the presented
// session, keeping validate-and-consume atomic across concurrent requests.
// A mismatched session must not burn the token.
var consumeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is the externally backed Store, sharing issued tokens across
// replicas. Expiry is delegated to key TTLs, so there is nothing to sweep.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedis builds a CSRF store on the given client. A non-positive ttl
// falls back to DefaultTTL.
func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// Issue generates a token and stores the session binding under it.
func (r *Redis) Issue(ctx context.Context, sessionID string) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+token, sessionID, r.ttl).Err(); err != nil {
		return "", fmt.Errorf("persist csrf token: %w", err)
	}
	return token, nil
}

// Validate atomically consumes the token when it matches the session.
func (r *Redis) Validate(ctx context.Context, token, sessionID string) (bool, error) {
	deleted, err := consumeScript.Run(ctx, r.client, []string{redisKeyPrefix + token}, sessionID).Int()
	if err != nil {
		return false, fmt.Errorf("validate csrf token: %w", err)
	}
	return deleted == 1, nil
}
