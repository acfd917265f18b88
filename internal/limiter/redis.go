package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// commands is the slice of the Redis client the limiter uses. *redis.Client
// satisfies it; tests substitute a fake returning canned results.
type commands interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
	Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Redis is a Redis-backed limiter: a failure counter with a sliding
// expiry, and a separate block key whose TTL is the lockout.
type Redis struct {
	rdb      commands
	window   time.Duration
	maxFails int
	blockFor time.Duration
}

// NewRedis constructs a Redis-backed limiter.
func NewRedis(rdb *redis.Client, window time.Duration, maxFails int, blockFor time.Duration) *Redis {
	return &Redis{rdb: rdb, window: window, maxFails: maxFails, blockFor: blockFor}
}

func newWithCommands(rdb commands, window time.Duration, maxFails int, blockFor time.Duration) *Redis {
	return &Redis{rdb: rdb, window: window, maxFails: maxFails, blockFor: blockFor}
}

func failsKey(id string) string { return "login:fails:" + id }
func blockKey(id string) string { return "login:block:" + id }

func (l *Redis) Allow(ctx context.Context, email, ip string) (bool, time.Duration, error) {
	ttl, err := l.rdb.TTL(ctx, blockKey(identity(email, ip))).Result()
	if err != nil {
		return false, 0, fmt.Errorf("limiter ttl: %w", err)
	}
	// TTL is negative when the key is absent or unexpiring; only an active
	// block has a positive remainder.
	if ttl > 0 {
		return false, ttl, nil
	}
	return true, 0, nil
}

func (l *Redis) Success(ctx context.Context, email, ip string) error {
	id := identity(email, ip)
	if err := l.rdb.Del(ctx, failsKey(id), blockKey(id)).Err(); err != nil {
		return fmt.Errorf("limiter reset: %w", err)
	}
	return nil
}

func (l *Redis) Failure(ctx context.Context, email, ip string) (bool, time.Duration, error) {
	id := identity(email, ip)

	fails, err := l.rdb.Incr(ctx, failsKey(id)).Result()
	if err != nil {
		return false, 0, fmt.Errorf("limiter incr: %w", err)
	}
	if fails == 1 {
		if err := l.rdb.Expire(ctx, failsKey(id), l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("limiter expire: %w", err)
		}
	}

	if int(fails) >= l.maxFails {
		if err := l.rdb.Set(ctx, blockKey(id), 1, l.blockFor).Err(); err != nil {
			return false, 0, fmt.Errorf("limiter block: %w", err)
		}
		if err := l.rdb.Del(ctx, failsKey(id)).Err(); err != nil {
			return false, 0, fmt.Errorf("limiter reset fails: %w", err)
		}
		return true, l.blockFor, nil
	}
	return false, 0, nil
}
