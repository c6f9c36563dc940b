package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// checkAndIncrScript increments the counter only while it is below the limit,
// so rejected attempts never consume quota. The key expires at the next UTC midnight.
var checkAndIncrScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
if current >= limit then
	return {0, current}
end
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('EXPIREAT', KEYS[1], ARGV[2])
end
return {1, n}
`)

var releaseScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current <= 0 then
	return 0
end
return redis.call('DECR', KEYS[1])
`)

// Decision is the outcome of a CheckAndIncrement call.
type Decision struct {
	Allowed bool
	Count   int64 // counter value after the call
	Limit   int64
	Key     string // counter key the call touched
}

// Counter tracks user-authored messages per user per UTC day.
type Counter interface {
	CheckAndIncrement(ctx context.Context, userID int64, limit int) (Decision, error)
	Release(ctx context.Context, d Decision) error
	Current(ctx context.Context, userID int64) (int64, error)
	Reset(ctx context.Context, userID int64) error
}

type RedisCounter struct {
	client redis.Cmdable
	now    func() time.Time
}

// NewRedisCounter returns a counter backed by the given Redis client.
func NewRedisCounter(client redis.Cmdable) *RedisCounter {
	return &RedisCounter{client: client, now: time.Now}
}

// WithClock replaces the time source; used to cross day boundaries in tests.
func (c *RedisCounter) WithClock(now func() time.Time) *RedisCounter {
	c.now = now
	return c
}

// Key returns the counter key for a user on the UTC day containing t.
func Key(userID int64, t time.Time) string {
	return fmt.Sprintf("quota:daily:%d:%s", userID, t.UTC().Format(time.DateOnly))
}

// NextReset returns the UTC midnight following t.
func NextReset(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day()+1, 0, 0, 0, 0, time.UTC)
}

func (c *RedisCounter) CheckAndIncrement(ctx context.Context, userID int64, limit int) (Decision, error) {
	now := c.now()
	key := Key(userID, now)
	if limit <= 0 {
		return Decision{Allowed: false, Limit: int64(limit), Key: key}, nil
	}

	res, err := checkAndIncrScript.Run(ctx, c.client,
		[]string{key},
		limit, NextReset(now).Unix(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("quota check for user %d: %w", userID, err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("quota check for user %d: unexpected script reply %v", userID, res)
	}

	return Decision{Allowed: res[0] == 1, Count: res[1], Limit: int64(limit), Key: key}, nil
}

// Release gives back the slot an allowed decision took, on the day that decision counted against.
func (c *RedisCounter) Release(ctx context.Context, d Decision) error {
	if !d.Allowed || d.Key == "" {
		return nil
	}
	if err := releaseScript.Run(ctx, c.client, []string{d.Key}).Err(); err != nil {
		return fmt.Errorf("quota release %s: %w", d.Key, err)
	}
	return nil
}

func (c *RedisCounter) Current(ctx context.Context, userID int64) (int64, error) {
	n, err := c.client.Get(ctx, Key(userID, c.now())).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota read for user %d: %w", userID, err)
	}
	return n, nil
}

func (c *RedisCounter) Reset(ctx context.Context, userID int64) error {
	return c.client.Del(ctx, Key(userID, c.now())).Err()
}
