package voicemail

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares snapshots between replicas.
//
// Layout:
//
//	vm:snap:<token>     hash with the snapshot fields, expires after ttl
//	vm:pending          zset token -> created_ms, unresolved snapshots only
//	vm:latest           token of the most recent put
//	vm:caller:<num>     token of the most recent put for a caller
//	vm:msg:<id>         outcome key a transcription message was routed under
//	vm:unmatched:<num>  zset outcome key -> at_ms, messages that matched no call
//
// The pending zset outlives the hashes: a token whose hash expired before
// the sweep ran is still handed out (with only its token known).
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

const (
	keyPending = "vm:pending"
	keyLatest  = "vm:latest"
)

func snapKey(token string) string       { return "vm:snap:" + token }
func callerKey(number string) string    { return "vm:caller:" + number }
func messageKey(id string) string       { return "vm:msg:" + id }
func unmatchedKey(number string) string { return "vm:unmatched:" + number }

var putScript = redis.NewScript(`
-- KEYS[1] = snapshot hash
-- KEYS[2] = pending zset
-- KEYS[3] = latest key
-- KEYS[4] = caller key ("" when unknown)
-- ARGV = token, caller, recording_url, duration, pressed_key, created_ms, ttl_ms
local resolved = redis.call('HGET', KEYS[1], 'resolved') or '0'
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1],
  'token', ARGV[1], 'caller', ARGV[2], 'recording_url', ARGV[3],
  'duration', ARGV[4], 'pressed_key', ARGV[5], 'created_ms', ARGV[6],
  'resolved', resolved)
redis.call('PEXPIRE', KEYS[1], ARGV[7])
if resolved ~= '1' then
  redis.call('ZADD', KEYS[2], ARGV[6], ARGV[1])
end
redis.call('SET', KEYS[3], ARGV[1], 'PX', ARGV[7])
if KEYS[4] ~= '' then
  redis.call('SET', KEYS[4], ARGV[1], 'PX', ARGV[7])
end
return 1
`)

var updateFieldScript = redis.NewScript(`
-- KEYS[1] = snapshot hash
-- ARGV[1] = field, ARGV[2] = value
-- Returns 1 if applied, 0 if the snapshot is gone.
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
return 1
`)

var resolveScript = redis.NewScript(`
-- KEYS[1] = snapshot hash
-- KEYS[2] = pending zset
-- ARGV[1] = token
if redis.call('EXISTS', KEYS[1]) == 1 then
  redis.call('HSET', KEYS[1], 'resolved', '1')
end
redis.call('ZREM', KEYS[2], ARGV[1])
return 1
`)

var takeExpiredScript = redis.NewScript(`
-- KEYS[1] = pending zset
-- ARGV[1] = cutoff ms
-- Pops and returns every token scored at or before the cutoff.
local tokens = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
if #tokens > 0 then
  redis.call('ZREM', KEYS[1], unpack(tokens))
end
return tokens
`)

var addUnmatchedScript = redis.NewScript(`
-- KEYS[1] = unmatched zset
-- ARGV = outcome key, at_ms, ttl_ms, floor_ms
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[4])
redis.call('ZADD', KEYS[1], 'NX', ARGV[2], ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

var takeUnmatchedScript = redis.NewScript(`
-- KEYS[1] = unmatched zset
-- ARGV[1] = since ms
-- Pops the oldest key scored at or after since, nil when there is none.
local keys = redis.call('ZRANGEBYSCORE', KEYS[1], ARGV[1], '+inf', 'LIMIT', 0, 1)
if #keys == 0 then
  return false
end
redis.call('ZREM', KEYS[1], keys[1])
return keys[1]
`)

func (s *RedisStore) Put(ctx context.Context, snap Snapshot) error {
	ck := ""
	if snap.CallerNumber != "" {
		ck = callerKey(snap.CallerNumber)
	}
	keys := []string{snapKey(snap.Token), keyPending, keyLatest, ck}
	args := []any{
		snap.Token,
		snap.CallerNumber,
		snap.RecordingURL,
		snap.DurationSeconds,
		snap.PressedKey,
		snap.CreatedAt.UnixMilli(),
		s.ttl.Milliseconds(),
	}
	if err := putScript.Run(ctx, s.rdb, keys, args...).Err(); err != nil {
		return fmt.Errorf("snapshot put: %w", err)
	}
	if snap.Resolved {
		return s.Resolve(ctx, snap.Token)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (Snapshot, bool, error) {
	if token == "" {
		return Snapshot{}, false, nil
	}
	fields, err := s.rdb.HGetAll(ctx, snapKey(token)).Result()
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("snapshot get: %w", err)
	}
	if len(fields) == 0 {
		return Snapshot{}, false, nil
	}
	return decodeSnapshot(fields), true, nil
}

func (s *RedisStore) Latest(ctx context.Context) (Snapshot, bool, error) {
	return s.follow(ctx, keyLatest)
}

func (s *RedisStore) FindByCaller(ctx context.Context, number string) (Snapshot, bool, error) {
	if number == "" {
		return Snapshot{}, false, nil
	}
	snap, ok, err := s.follow(ctx, callerKey(number))
	if err != nil || !ok || snap.CallerNumber != number {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

func (s *RedisStore) follow(ctx context.Context, pointer string) (Snapshot, bool, error) {
	token, err := s.rdb.Get(ctx, pointer).Result()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("snapshot lookup %s: %w", pointer, err)
	}
	return s.Get(ctx, token)
}

func (s *RedisStore) UpdateRecordingURL(ctx context.Context, token, url string) (bool, error) {
	return s.updateField(ctx, token, "recording_url", url)
}

func (s *RedisStore) UpdatePressedKey(ctx context.Context, token, digit string) (bool, error) {
	return s.updateField(ctx, token, "pressed_key", digit)
}

func (s *RedisStore) updateField(ctx context.Context, token, field, value string) (bool, error) {
	if token == "" {
		return false, nil
	}
	n, err := updateFieldScript.Run(ctx, s.rdb, []string{snapKey(token)}, field, value).Int()
	if err != nil {
		return false, fmt.Errorf("snapshot update %s: %w", field, err)
	}
	return n == 1, nil
}

func (s *RedisStore) Resolve(ctx context.Context, token string) error {
	if err := resolveScript.Run(ctx, s.rdb, []string{snapKey(token), keyPending}, token).Err(); err != nil {
		return fmt.Errorf("snapshot resolve: %w", err)
	}
	return nil
}

func (s *RedisStore) TakeExpired(ctx context.Context, cutoff time.Time) ([]Snapshot, error) {
	tokens, err := takeExpiredScript.Run(ctx, s.rdb, []string{keyPending}, cutoff.UnixMilli()).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("snapshot take expired: %w", err)
	}
	out := make([]Snapshot, 0, len(tokens))
	for _, t := range tokens {
		snap, ok, err := s.Get(ctx, t)
		if err != nil {
			return out, err
		}
		if !ok {
			snap = Snapshot{Token: t}
		}
		out = append(out, snap)
	}
	return out, nil
}

func (s *RedisStore) RememberMessage(ctx context.Context, messageID, key string) error {
	if messageID == "" {
		return nil
	}
	if err := s.rdb.Set(ctx, messageKey(messageID), key, s.ttl).Err(); err != nil {
		return fmt.Errorf("remember message: %w", err)
	}
	return nil
}

func (s *RedisStore) MessageKey(ctx context.Context, messageID string) (string, bool, error) {
	if messageID == "" {
		return "", false, nil
	}
	key, err := s.rdb.Get(ctx, messageKey(messageID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("message key: %w", err)
	}
	return key, true, nil
}

func (s *RedisStore) AddUnmatched(ctx context.Context, caller, key string, at time.Time) error {
	if caller == "" {
		return nil
	}
	args := []any{key, at.UnixMilli(), s.ttl.Milliseconds(), at.Add(-s.ttl).UnixMilli()}
	if err := addUnmatchedScript.Run(ctx, s.rdb, []string{unmatchedKey(caller)}, args...).Err(); err != nil {
		return fmt.Errorf("add unmatched: %w", err)
	}
	return nil
}

func (s *RedisStore) TakeUnmatched(ctx context.Context, caller string, since time.Time) (string, bool, error) {
	if caller == "" {
		return "", false, nil
	}
	key, err := takeUnmatchedScript.Run(ctx, s.rdb, []string{unmatchedKey(caller)}, since.UnixMilli()).Text()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("take unmatched: %w", err)
	}
	return key, true, nil
}

func decodeSnapshot(f map[string]string) Snapshot {
	dur, _ := strconv.Atoi(f["duration"])
	ms, _ := strconv.ParseInt(f["created_ms"], 10, 64)
	return Snapshot{
		Token:           f["token"],
		CallerNumber:    f["caller"],
		RecordingURL:    f["recording_url"],
		DurationSeconds: dur,
		PressedKey:      f["pressed_key"],
		CreatedAt:       time.UnixMilli(ms).UTC(),
		Resolved:        f["resolved"] == "1",
	}
}
