package lockout

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Store = (*Redis)(nil)

// Redis is the externally backed Store: all replicas share one failure
// budget per account, closing the round-robin loophole of process-local
// state. Attempt history lives in a sorted set scored by timestamp; the lock
// itself is a plain key whose TTL is the lock duration, so expiry needs no
// sweeping.
type Redis struct {
	client redis.UniversalClient
	policy Policy
}

// NewRedis builds a lockout store on the given client.
func NewRedis(client redis.UniversalClient, policy Policy) *Redis {
	return &Redis{client: client, policy: policy.withDefaults()}
}

func failKey(key string) string { return "lockout:fail:" + key }
func lockKey(key string) string { return "lockout:lock:" + key }

// Status checks the lock key TTL. History cleanup on expiry is implicit:
// the attempt set is deleted when the lock is taken, and the lock key
// vanishes on its own once the duration elapses.
func (r *Redis) Status(ctx context.Context, key string) (Status, error) {
	ttl, err := r.client.PTTL(ctx, lockKey(key)).Result()
	if err != nil {
		return Status{}, fmt.Errorf("lockout status: %w", err)
	}
	if ttl > 0 {
		return Status{Locked: true, RetryAfter: ttl}, nil
	}
	return Status{}, nil
}

// RecordFailure prunes the sliding window, appends the attempt, and takes
// the lock when the threshold is reached. While locked the attempt set is
// left untouched and the lock TTL is not refreshed.
func (r *Redis) RecordFailure(ctx context.Context, key string) (Result, error) {
	status, err := r.Status(ctx, key)
	if err != nil {
		return Result{}, err
	}
	if status.Locked {
		return Result{Locked: true, RetryAfter: status.RetryAfter}, nil
	}

	now := time.Now()
	threshold := now.Add(-r.policy.Window)

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, failKey(key), "-inf", strconv.FormatInt(threshold.UnixNano(), 10))
	pipe.ZAdd(ctx, failKey(key), redis.Z{
		Score:  float64(now.UnixNano()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	count := pipe.ZCard(ctx, failKey(key))
	pipe.Expire(ctx, failKey(key), r.policy.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("lockout record failure: %w", err)
	}

	attempts := int(count.Val())
	if attempts >= r.policy.MaxAttempts {
		lock := r.client.TxPipeline()
		lock.Set(ctx, lockKey(key), "1", r.policy.Duration)
		lock.Del(ctx, failKey(key))
		if _, err := lock.Exec(ctx); err != nil {
			return Result{}, fmt.Errorf("lockout take lock: %w", err)
		}
		return Result{Locked: true, RetryAfter: r.policy.Duration}, nil
	}
	return Result{RemainingAttempts: r.policy.MaxAttempts - attempts}, nil
}

// Reset clears both the attempt set and the lock.
func (r *Redis) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, failKey(key), lockKey(key)).Err(); err != nil {
		return fmt.Errorf("lockout reset: %w", err)
	}
	return nil
}
