package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "as"

const (
	rotateStatusNotFound    int64 = 0
	rotateStatusExpired     int64 = 1
	rotateStatusMismatch    int64 = 2
	rotateStatusRotated     int64 = 3
	rotateStatusInvalidHash int64 = 4
)

const deleteSessionScript = `
local uid = redis.call("HGET", KEYS[1], "uid")
if not uid then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("SREM", ARGV[1] .. uid, ARGV[2])
return 1
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

const rotateRefreshScript = `
local session_key = KEYS[1]
local session_id = ARGV[1]
local user_prefix = ARGV[2]
local provided_hash = ARGV[3]
local next_hash = ARGV[4]
local now = tonumber(ARGV[5])

local f = redis.call("HMGET", session_key, "uid", "rh", "abs", "idle", "rem")
if not f[1] then
  return {0}
end

local user_key = user_prefix .. f[1]
local absolute = tonumber(f[3])
local idle = tonumber(f[4])
if not f[2] or not absolute or not idle then
  return {4}
end

if now > absolute or now > idle then
  redis.call("DEL", session_key)
  redis.call("SREM", user_key, session_id)
  return {1}
end

if f[2] ~= provided_hash then
  redis.call("DEL", session_key)
  redis.call("SREM", user_key, session_id)
  return {2}
end

local ttl = tonumber(ARGV[6])
if f[5] == "1" then
  ttl = tonumber(ARGV[7])
end
local next_idle = now + ttl
if next_idle > absolute then
  next_idle = absolute
end

redis.call("HSET", session_key, "rh", next_hash, "last", ARGV[5], "idle", string.format("%d", next_idle))
if ARGV[8] ~= "" then
  redis.call("HSET", session_key, "ip", ARGV[8])
end
if ARGV[9] ~= "" then
  redis.call("HSET", session_key, "ua", ARGV[9])
end
redis.call("PEXPIREAT", session_key, next_idle + 1)

return {3, redis.call("HGETALL", session_key)}
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

const upsertDeviceScript = `
local owner = redis.call("HGET", KEYS[1], "uid")
if owner and owner ~= ARGV[1] then
  return 0
end
if not owner then
  redis.call("HSET", KEYS[1], "uid", ARGV[1], "created", ARGV[5])
end
redis.call("HSET", KEYS[1], "name", ARGV[2], "type", ARGV[3], "os", ARGV[4], "updated", ARGV[5])
redis.call("SADD", KEYS[2], ARGV[6])
return tonumber(redis.call("HGET", KEYS[1], "created"))
`

var upsertDeviceLua = redis.NewScript(upsertDeviceScript)

// RedisRepository stores each session as a hash keyed by session id with a
// per-user index set. Keys expire one millisecond after the inactivity expiry,
// so Redis reclaims dead sessions without a sweeper.
type RedisRepository struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisRepository returns a repository over client. prefix defaults to "as".
func NewRedisRepository(client redis.UniversalClient, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisRepository{redis: client, prefix: prefix}
}

func (r *RedisRepository) key(sessionID string) string {
	return r.prefix + ":" + sessionID
}

func (r *RedisRepository) userPrefix() string {
	return r.prefix + ":u:"
}

func (r *RedisRepository) userKey(userID string) string {
	return r.userPrefix() + userID
}

func (r *RedisRepository) deviceKey(deviceID string) string {
	return r.prefix + ":d:" + deviceID
}

func (r *RedisRepository) userDevicesKey(userID string) string {
	return r.prefix + ":ud:" + userID
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}

// Insert writes sess and indexes it under its user.
func (r *RedisRepository) Insert(ctx context.Context, sess *Session) error {
	key := r.key(sess.ID)
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, encodeHash(sess)...)
		pipe.PExpireAt(ctx, key, sess.InactivityExpiresAt.Add(time.Millisecond))
		pipe.SAdd(ctx, r.userKey(sess.UserID), sess.ID)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// Get loads a session. Missing keys return ErrNotFound.
func (r *RedisRepository) Get(ctx context.Context, sessionID string) (*Session, error) {
	fields, err := r.redis.HGetAll(ctx, r.key(sessionID)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	return decodeHash(sessionID, fields)
}

// Rotate swaps the refresh hash inside a single Lua script.
func (r *RedisRepository) Rotate(ctx context.Context, req RotateRequest) (*Session, error) {
	res, err := rotateRefreshLua.Run(
		ctx,
		r.redis,
		[]string{r.key(req.SessionID)},
		req.SessionID,
		r.userPrefix(),
		req.PresentedHash,
		req.NextHash,
		strconv.FormatInt(req.Now.UnixMilli(), 10),
		strconv.FormatInt(req.ShortInactivity.Milliseconds(), 10),
		strconv.FormatInt(req.LongInactivity.Milliseconds(), 10),
		req.IPHash,
		req.UAHash,
	).Slice()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(res) == 0 {
		return nil, ErrCorrupt
	}

	status, ok := res[0].(int64)
	if !ok {
		return nil, ErrCorrupt
	}

	switch status {
	case rotateStatusNotFound:
		return nil, ErrNotFound
	case rotateStatusExpired:
		return nil, ErrExpired
	case rotateStatusMismatch:
		return nil, ErrHashMismatch
	case rotateStatusInvalidHash:
		return nil, ErrCorrupt
	case rotateStatusRotated:
		if len(res) < 2 {
			return nil, ErrCorrupt
		}
		raw, ok := res[1].([]any)
		if !ok {
			return nil, ErrCorrupt
		}
		return decodeHash(req.SessionID, pairsToMap(raw))
	default:
		return nil, ErrCorrupt
	}
}

// Revoke deletes the session. Deleting a missing session is not an error.
// Redis keeps no tombstone, so reason is not recorded.
func (r *RedisRepository) Revoke(ctx context.Context, sessionID string, _ time.Time, _ string) error {
	if err := deleteSessionLua.Run(ctx, r.redis, []string{r.key(sessionID)}, r.userPrefix(), sessionID).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// RevokeAllForUser removes every session indexed under userID.
//
// ATOMICITY NOTE: This reads the user's index (SMembers) and then deletes the
// listed keys in a transaction. A session created between the two phases is not
// captured by this call.
func (r *RedisRepository) RevokeAllForUser(ctx context.Context, userID string, _ time.Time, _ string) (int, error) {
	userKey := r.userKey(userID)
	ids, err := r.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, unavailable(err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, r.key(id))
	}

	var del *redis.IntCmd
	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, keys...)
		pipe.SRem(ctx, userKey, toAny(ids)...)
		return nil
	})
	if err != nil {
		return 0, unavailable(err)
	}
	return int(del.Val()), nil
}

// ListForUser returns the user's live sessions and prunes index entries whose
// keys have already expired.
func (r *RedisRepository) ListForUser(ctx context.Context, userID string, now time.Time) ([]*Session, error) {
	userKey := r.userKey(userID)
	ids, err := r.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := r.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, r.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, unavailable(err)
	}

	out := make([]*Session, 0, len(ids))
	var stale []any
	for i, cmd := range cmds {
		sess, err := decodeHash(ids[i], cmd.Val())
		if err != nil {
			stale = append(stale, ids[i])
			continue
		}
		if sess.Live(now) {
			out = append(out, sess)
		}
	}
	if len(stale) > 0 {
		if err := r.redis.SRem(ctx, userKey, stale...).Err(); err != nil {
			return nil, unavailable(err)
		}
	}
	return out, nil
}

// UpsertDevice creates or updates dev. A device id owned by another user yields
// ErrDeviceOwnership.
func (r *RedisRepository) UpsertDevice(ctx context.Context, dev *Device) (*Device, error) {
	created, err := upsertDeviceLua.Run(
		ctx,
		r.redis,
		[]string{r.deviceKey(dev.ID), r.userDevicesKey(dev.UserID)},
		dev.UserID,
		dev.Name,
		dev.Type,
		dev.OS,
		strconv.FormatInt(dev.UpdatedAt.UnixMilli(), 10),
		dev.ID,
	).Int64()
	if err != nil {
		return nil, unavailable(err)
	}
	if created == 0 {
		return nil, ErrDeviceOwnership
	}
	out := *dev
	out.CreatedAt = fromMillis(created)
	return &out, nil
}

// GetDevices loads the listed devices that belong to userID.
func (r *RedisRepository) GetDevices(ctx context.Context, userID string, ids []string) (map[string]*Device, error) {
	out := make(map[string]*Device, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	pipe := r.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, r.deviceKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, unavailable(err)
	}

	for i, cmd := range cmds {
		fields := cmd.Val()
		if fields["uid"] != userID {
			continue
		}
		created, _ := strconv.ParseInt(fields["created"], 10, 64)
		updated, _ := strconv.ParseInt(fields["updated"], 10, 64)
		out[ids[i]] = &Device{
			ID:        ids[i],
			UserID:    userID,
			Name:      fields["name"],
			Type:      fields["type"],
			OS:        fields["os"],
			CreatedAt: fromMillis(created),
			UpdatedAt: fromMillis(updated),
		}
	}
	return out, nil
}

// DeleteExpired is a no-op; key expiry reclaims sessions.
func (r *RedisRepository) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
