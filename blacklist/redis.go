package blacklist

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const addScript = `
local current = redis.call("GET", KEYS[1])
local next_exp = tonumber(ARGV[1])
if current and tonumber(current) >= next_exp then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1])
redis.call("PEXPIREAT", KEYS[1], ARGV[1])
return 1
`

var addLua = redis.NewScript(addScript)

// RedisRegistry keeps one key per revoked jti holding its expiry in unix
// milliseconds. Keys expire natively at that instant.
type RedisRegistry struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisRegistry returns a registry storing keys under prefix. now defaults to time.Now.
func NewRedisRegistry(client redis.UniversalClient, prefix string, now func() time.Time) *RedisRegistry {
	if prefix == "" {
		prefix = "abl"
	}
	if now == nil {
		now = time.Now
	}
	return &RedisRegistry{redis: client, prefix: prefix, now: now}
}

func (r *RedisRegistry) key(jti string) string {
	return r.prefix + ":" + jti
}

// Add records jti until expiresAt, keeping any later expiry already stored.
func (r *RedisRegistry) Add(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return ErrEmptyJTI
	}
	err := addLua.Run(ctx, r.redis, []string{r.key(jti)}, expiresAt.UnixMilli()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Contains reports whether jti is revoked and not yet past its expiry.
func (r *RedisRegistry) Contains(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	raw, err := r.redis.Get(ctx, r.key(jti)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	expMillis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// unparseable entries are treated as revoked
		return true, nil
	}
	return r.now().UnixMilli() <= expMillis, nil
}

// Sweep is a no-op; Redis expires entries on its own.
func (r *RedisRegistry) Sweep(context.Context) (int64, error) {
	return 0, nil
}
