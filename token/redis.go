package token

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	deactivateStatusNotFound int64 = 0
	deactivateStatusWon      int64 = 1
	deactivateStatusInactive int64 = 2
)

const putTokenScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end

redis.call("HSET", KEYS[1],
  "id", ARGV[1],
  "uid", ARGV[2],
  "created", ARGV[3],
  "expires", ARGV[4],
  "active", "1",
  "issued_ip", ARGV[5],
  "last_ip", ARGV[5],
  "ua", ARGV[6],
  "loc", ARGV[9])
redis.call("PEXPIRE", KEYS[1], ARGV[7])
redis.call("SET", KEYS[2], ARGV[8], "PX", ARGV[7])
redis.call("SADD", KEYS[3], ARGV[8])
redis.call("ZADD", KEYS[4], ARGV[4], ARGV[8])
redis.call("INCR", KEYS[5])
return 1
`

var putTokenLua = redis.NewScript(putTokenScript)

const deactivateTokenScript = `
local function decrement_count(count_key)
  local count = tonumber(redis.call("GET", count_key) or "0")
  if count > 1 then
    redis.call("DECR", count_key)
  elseif count == 1 then
    redis.call("DEL", count_key)
  end
end

if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end

if redis.call("HGET", KEYS[1], "active") ~= "1" then
  return 2
end

redis.call("HSET", KEYS[1],
  "active", "0",
  "deactivated", ARGV[2],
  "reason", ARGV[3])
redis.call("ZADD", KEYS[2], ARGV[2], ARGV[1])
decrement_count(KEYS[3])
redis.call("INCR", KEYS[4])

local retention = tonumber(ARGV[4])
if retention > 0 then
  redis.call("PEXPIRE", KEYS[1], retention)
  local id = redis.call("HGET", KEYS[1], "id")
  if id then
    redis.call("PEXPIRE", ARGV[5] .. id, retention)
  end
end

return 1
`

var deactivateTokenLua = redis.NewScript(deactivateTokenScript)

const touchTokenScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HGET", KEYS[1], "active") ~= "1" then
  return 0
end
redis.call("HSET", KEYS[1], "last_used", ARGV[1], "last_ip", ARGV[2])
redis.call("HINCRBY", KEYS[1], "uses", 1)
return 1
`

var touchTokenLua = redis.NewScript(touchTokenScript)

const purgeTokenScript = `
local function decrement_count(count_key)
  local count = tonumber(redis.call("GET", count_key) or "0")
  if count > 1 then
    redis.call("DECR", count_key)
  elseif count == 1 then
    redis.call("DEL", count_key)
  end
end

local digest = ARGV[1]
redis.call("ZREM", KEYS[2], digest)
redis.call("ZREM", KEYS[3], digest)

local fields = redis.call("HMGET", KEYS[1], "id", "uid", "active")
if not fields[1] then
  return 0
end

redis.call("DEL", KEYS[1])
redis.call("DEL", ARGV[2] .. fields[1])
redis.call("SREM", ARGV[3] .. fields[2], digest)

if fields[3] == "1" then
  decrement_count(KEYS[4])
else
  decrement_count(KEYS[5])
end

return 1
`

var purgeTokenLua = redis.NewScript(purgeTokenScript)

// RedisStore keeps token records as Redis hashes keyed by digest, with a
// per-user set and two sorted sets (expiry, deactivation time) feeding
// listings and sweeps. Record keys carry a TTL backstop of lifetime plus
// the inactive retention window, so even a stalled sweeper cannot leak
// records forever.
type RedisStore struct {
	redis             redis.UniversalClient
	prefix            string
	inactiveRetention time.Duration
}

// NewRedisStore creates a [RedisStore]. prefix sets the key namespace;
// inactiveRetention bounds how long deactivated records stay readable.
func NewRedisStore(redisClient redis.UniversalClient, prefix string, inactiveRetention time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "rt"
	}
	return &RedisStore{
		redis:             redisClient,
		prefix:            prefix,
		inactiveRetention: inactiveRetention,
	}
}

func (s *RedisStore) recordKey(digest string) string {
	return s.prefix + ":tok:" + digest
}

func (s *RedisStore) idPrefix() string {
	return s.prefix + ":id:"
}

func (s *RedisStore) userPrefix() string {
	return s.prefix + ":user:"
}

func (s *RedisStore) userKey(userID string) string {
	return s.userPrefix() + userID
}

func (s *RedisStore) expiryKey() string {
	return s.prefix + ":exp"
}

func (s *RedisStore) inactiveKey() string {
	return s.prefix + ":inact"
}

func (s *RedisStore) activeCountKey() string {
	return s.prefix + ":count:active"
}

func (s *RedisStore) inactiveCountKey() string {
	return s.prefix + ":count:inactive"
}

// Put creates the record under its digest. The write is a single Lua
// script so the existence check and the index updates cannot interleave
// with a concurrent Put of the same digest.
func (s *RedisStore) Put(ctx context.Context, rec *Record) error {
	ttl := rec.ExpiresAt.Sub(rec.CreatedAt) + s.inactiveRetention
	if ttl <= 0 {
		ttl = time.Second
	}

	result, err := putTokenLua.Run(
		ctx,
		s.redis,
		[]string{
			s.recordKey(rec.Digest),
			s.idPrefix() + rec.TokenID,
			s.userKey(rec.UserID),
			s.expiryKey(),
			s.activeCountKey(),
		},
		rec.TokenID,
		rec.UserID,
		rec.CreatedAt.UnixMilli(),
		rec.ExpiresAt.UnixMilli(),
		rec.IssuedIP,
		rec.UserAgent,
		ttl.Milliseconds(),
		rec.Digest,
		rec.Location,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if result == 0 {
		return ErrDuplicateToken
	}

	return nil
}

// GetByDigest fetches and decodes the record hash.
func (s *RedisStore) GetByDigest(ctx context.Context, digest string) (*Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.recordKey(digest)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrTokenNotFound
	}

	return decodeRecord(digest, fields)
}

// GetByID resolves the public token ID through the pointer key, then
// fetches the record.
func (s *RedisStore) GetByID(ctx context.Context, tokenID string) (*Record, error) {
	digest, err := s.redis.Get(ctx, s.idPrefix()+tokenID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return s.GetByDigest(ctx, digest)
}

// Deactivate runs the compare-and-swap script: exactly one concurrent
// caller observes the won status for a given digest.
func (s *RedisStore) Deactivate(ctx context.Context, digest, reason string, at time.Time) (bool, error) {
	result, err := deactivateTokenLua.Run(
		ctx,
		s.redis,
		[]string{
			s.recordKey(digest),
			s.inactiveKey(),
			s.activeCountKey(),
			s.inactiveCountKey(),
		},
		digest,
		at.UnixMilli(),
		reason,
		s.inactiveRetention.Milliseconds(),
		s.idPrefix(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	switch result {
	case deactivateStatusWon:
		return true, nil
	case deactivateStatusInactive:
		return false, nil
	case deactivateStatusNotFound:
		return false, ErrTokenNotFound
	default:
		return false, fmt.Errorf("%w: unknown deactivate script status %d", ErrStoreUnavailable, result)
	}
}

// Touch stamps last-used bookkeeping. Missing or inactive records are
// skipped without error.
func (s *RedisStore) Touch(ctx context.Context, digest, ip string, at time.Time) error {
	err := touchTokenLua.Run(
		ctx,
		s.redis,
		[]string{s.recordKey(digest)},
		at.UnixMilli(),
		ip,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ListByUser fetches the user's records through the per-user index,
// ordered by last use (creation time for never-used records), most
// recent first. Digests whose record has already been purged or TTL'd
// away are dropped from the result.
func (s *RedisStore) ListByUser(ctx context.Context, userID string, includeInactive bool) ([]*Record, error) {
	digests, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Record{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(digests) == 0 {
		return []*Record{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(digests))
	for i, digest := range digests {
		cmds[i] = pipe.HGetAll(ctx, s.recordKey(digest))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	records := make([]*Record, 0, len(digests))
	for i, cmd := range cmds {
		fields, cmdErr := cmd.Result()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, cmdErr)
		}
		if len(fields) == 0 {
			continue
		}

		rec, decErr := decodeRecord(digests[i], fields)
		if decErr != nil {
			return nil, decErr
		}
		if !rec.Active && !includeInactive {
			continue
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].LastSeen().After(records[j].LastSeen())
	})

	return records, nil
}

// DeactivateAllByUser flips every active record in the user's index and
// returns how many flips this call performed. Records raced away by a
// concurrent deactivation are counted by the winner, not here.
func (s *RedisStore) DeactivateAllByUser(ctx context.Context, userID, reason string, at time.Time) (int, error) {
	digests, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var flipped int
	for _, digest := range digests {
		won, dErr := s.Deactivate(ctx, digest, reason, at)
		if dErr != nil {
			if errors.Is(dErr, ErrTokenNotFound) {
				continue
			}
			return flipped, dErr
		}
		if won {
			flipped++
		}
	}

	return flipped, nil
}

// PurgeExpired removes every record whose expiry precedes the cutoff,
// active or not, along with all of its index entries.
func (s *RedisStore) PurgeExpired(ctx context.Context, before time.Time) (int, error) {
	return s.purgeByScore(ctx, s.expiryKey(), before)
}

// PurgeInactive removes inactive records deactivated before the cutoff.
func (s *RedisStore) PurgeInactive(ctx context.Context, before time.Time) (int, error) {
	return s.purgeByScore(ctx, s.inactiveKey(), before)
}

func (s *RedisStore) purgeByScore(ctx context.Context, zsetKey string, before time.Time) (int, error) {
	digests, err := s.redis.ZRangeByScore(ctx, zsetKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var removed int
	for _, digest := range digests {
		result, runErr := purgeTokenLua.Run(
			ctx,
			s.redis,
			[]string{
				s.recordKey(digest),
				s.expiryKey(),
				s.inactiveKey(),
				s.activeCountKey(),
				s.inactiveCountKey(),
			},
			digest,
			s.idPrefix(),
			s.userPrefix(),
		).Int64()
		if runErr != nil {
			return removed, fmt.Errorf("%w: %v", ErrStoreUnavailable, runErr)
		}
		removed += int(result)
	}

	return removed, nil
}

// CountByState reads the maintained state counters.
func (s *RedisStore) CountByState(ctx context.Context) (Counts, error) {
	var counts Counts

	active, err := s.redis.Get(ctx, s.activeCountKey()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return counts, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	inactive, err := s.redis.Get(ctx, s.inactiveCountKey()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return counts, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if active < 0 {
		active = 0
	}
	if inactive < 0 {
		inactive = 0
	}

	counts.Active = active
	counts.Inactive = inactive
	counts.Total = active + inactive
	return counts, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}

func decodeRecord(digest string, fields map[string]string) (*Record, error) {
	rec := &Record{
		Digest:    digest,
		TokenID:   fields["id"],
		UserID:    fields["uid"],
		IssuedIP:  fields["issued_ip"],
		LastIP:    fields["last_ip"],
		UserAgent: fields["ua"],
		Location:  fields["loc"],
		Active:    fields["active"] == "1",
	}
	if rec.TokenID == "" || rec.UserID == "" {
		return nil, fmt.Errorf("%w: corrupt record for digest %s", ErrStoreUnavailable, digest)
	}

	var err error
	if rec.CreatedAt, err = parseMilliField(fields, "created"); err != nil {
		return nil, err
	}
	if rec.ExpiresAt, err = parseMilliField(fields, "expires"); err != nil {
		return nil, err
	}
	if rec.LastUsedAt, err = parseMilliField(fields, "last_used"); err != nil {
		return nil, err
	}
	if rec.DeactivatedAt, err = parseMilliField(fields, "deactivated"); err != nil {
		return nil, err
	}
	rec.DeactivationReason = fields["reason"]

	if raw := fields["uses"]; raw != "" {
		uses, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid uses field: %v", ErrStoreUnavailable, err)
		}
		rec.UsageCount = uses
	}

	return rec, nil
}

func parseMilliField(fields map[string]string, name string) (time.Time, error) {
	raw, ok := fields[name]
	if !ok || raw == "" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid %s field: %v", ErrStoreUnavailable, name, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
