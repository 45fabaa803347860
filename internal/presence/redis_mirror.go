package presence

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisOnlineKey   = "presence:online"
	redisLastSeenKey = "presence:last_seen"
)

// applyChange writes only when the change is newer than the stored last-seen (unix
// microseconds), so changes delivered out of order cannot regress the mirror.
var applyChange = redis.NewScript(`
local current = redis.call("HGET", KEYS[2], ARGV[1])
if current and tonumber(current) >= tonumber(ARGV[3]) then
  return 0
end
if ARGV[2] == "1" then
  redis.call("SADD", KEYS[1], ARGV[1])
else
  redis.call("SREM", KEYS[1], ARGV[1])
end
redis.call("HSET", KEYS[2], ARGV[1], ARGV[3])
return 1
`)

// RedisMirror keeps a shared copy of presence for other services. Registry state stays
// authoritative for this process.
type RedisMirror struct {
	rdb *redis.Client
}

func NewRedisMirror(rdb *redis.Client) *RedisMirror {
	return &RedisMirror{rdb: rdb}
}

func (m *RedisMirror) Apply(ctx context.Context, change Change) error {
	online := "0"
	if change.Online {
		online = "1"
	}
	keys := []string{redisOnlineKey, redisLastSeenKey}
	return applyChange.Run(ctx, m.rdb, keys, change.UserID, online, change.At.UnixMicro()).Err()
}

func (m *RedisMirror) IsOnline(ctx context.Context, userID string) (bool, error) {
	return m.rdb.SIsMember(ctx, redisOnlineKey, userID).Result()
}

// LastSeen returns the zero time when the user was never seen.
func (m *RedisMirror) LastSeen(ctx context.Context, userID string) (time.Time, error) {
	raw, err := m.rdb.HGet(ctx, redisLastSeenKey, userID).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	us, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMicro(us), nil
}

// Reset clears the mirror; called at startup since the registry always starts empty.
func (m *RedisMirror) Reset(ctx context.Context) error {
	return m.rdb.Del(ctx, redisOnlineKey).Err()
}
