package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// bucketScript refills whole intervals since the last refill, then
// takes one token if any is left.  State is a hash of the remaining
// tokens and the refill watermark in milliseconds.
var bucketScript = redis.NewScript(`
	local now = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local refill = tonumber(ARGV[3])
	local interval = tonumber(ARGV[4])

	local tokens = tonumber(redis.call('HGET', KEYS[1], 't'))
	local mark = tonumber(redis.call('HGET', KEYS[1], 'm'))
	if tokens == nil or mark == nil then
		tokens, mark = capacity, now
	end

	local steps = math.floor(math.max(0, now - mark) / interval)
	if steps > 0 then
		tokens = math.min(capacity, tokens + steps * refill)
		mark = mark + steps * interval
	end

	local wait = 0
	if tokens >= 1 then
		tokens = tokens - 1
	else
		wait = interval - (now - mark)
	end
	redis.call('HSET', KEYS[1], 't', tokens, 'm', mark)
	redis.call('PEXPIRE', KEYS[1], ARGV[5])
	if wait > 0 then
		return { 0, tokens, wait }
	end
	return { 1, tokens, 0 }
`)

// TokenBucket is a Redis token bucket: Capacity requests in a burst,
// refilled by Refill tokens every Interval.  Idle buckets expire after TTL.
type TokenBucket struct {
	rdb      *redis.Client
	Capacity int
	Refill   int
	Interval time.Duration
	TTL      time.Duration
	now      func() time.Time
}

func NewTokenBucket(rdb *redis.Client, capacity, refill int, interval, ttl time.Duration) *TokenBucket {
	return &TokenBucket{rdb: rdb, Capacity: capacity, Refill: refill, Interval: interval, TTL: ttl, now: time.Now}
}

func (b *TokenBucket) Allow(ctx context.Context, key string) (Decision, error) {
	vals, err := bucketScript.Run(ctx, b.rdb, []string{key},
		b.now().UnixMilli(), b.Capacity, b.Refill, b.Interval.Milliseconds(), b.TTL.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(vals) != 3 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected bucket result %v", vals)
	}
	return Decision{
		Allowed:    vals[0] == 1,
		Remaining:  int(vals[1]),
		RetryAfter: time.Duration(vals[2]) * time.Millisecond,
	}, nil
}
