// Package ratelimit throttles scan requests per device with a fixed
// window counter.  The Redis limiter keeps the counter shared across
// application instances; the memory limiter serves tests and
// deployments running without Redis.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Defaults for scan throttling: ten scans per device per minute.
const (
	DefaultLimit  = 10
	DefaultWindow = time.Minute
)

// Decision is the outcome of one hit against a window.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds.
func (d Decision) RetryAfterSeconds() int {
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 0 {
		return 0
	}
	return secs
}

// Limiter counts one hit for key and reports whether it fits the window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

var fixedWindowScript = redis.NewScript(`
	local n = redis.call('INCR', KEYS[1])
	if n == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	local ttl = redis.call('PTTL', KEYS[1])
	if ttl < 0 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
		ttl = tonumber(ARGV[1])
	end
	return { n, ttl }
`)

// RedisLimiter implements a fixed window with one atomic Lua call.
type RedisLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
}

func NewRedisLimiter(rdb *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, limit: limit, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	vals, err := fixedWindowScript.Run(ctx, l.rdb, []string{key}, l.window.Milliseconds()).Result()
	if err != nil {
		return Decision{}, err
	}
	arr, ok := vals.([]interface{})
	if !ok || len(arr) != 2 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected script result %#v", vals)
	}
	count, ttl := asInt64(arr[0]), asInt64(arr[1])
	return decide(l.limit, count, time.Duration(ttl)*time.Millisecond), nil
}

func decide(limit int, count int64, resetIn time.Duration) Decision {
	if count > int64(limit) {
		return Decision{Allowed: false, Remaining: 0, RetryAfter: resetIn}
	}
	return Decision{Allowed: true, Remaining: limit - int(count)}
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

const sweepThreshold = 1024

type window struct {
	count int64
	reset time.Time
}

// MemoryLimiter is a process-local fixed window limiter.
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	windows map[string]*window
}

// NewMemoryLimiter returns a limiter using now as its clock; nil means time.Now.
func NewMemoryLimiter(limit int, win time.Duration, now func() time.Time) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{limit: limit, window: win, now: now, windows: make(map[string]*window)}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.reset) {
		w = &window{reset: now.Add(l.window)}
		l.windows[key] = w
		if len(l.windows) > sweepThreshold {
			l.sweep(now)
		}
	}
	w.count++
	return decide(l.limit, w.count, w.reset.Sub(now)), nil
}

// sweep drops expired windows so the map does not grow with every
// device ever seen.
func (l *MemoryLimiter) sweep(now time.Time) {
	for k, w := range l.windows {
		if !now.Before(w.reset) {
			delete(l.windows, k)
		}
	}
}

// ScanGuard applies a Limiter to scanning devices.
type ScanGuard struct {
	limiter Limiter
	prefix  string
	log     *zap.Logger
}

// NewScanGuard wraps limiter.  Keys are "<prefix>:<deviceID>".
func NewScanGuard(limiter Limiter, prefix string, log *zap.Logger) *ScanGuard {
	if prefix == "" {
		prefix = "scan"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ScanGuard{limiter: limiter, prefix: prefix, log: log}
}

// Allow counts one scan for deviceID.  Offline retries are counted
// like any other scan.  Limiter failures let the scan through.
func (g *ScanGuard) Allow(ctx context.Context, deviceID string) Decision {
	d, err := g.limiter.Allow(ctx, g.prefix+":"+deviceID)
	if err != nil {
		g.log.Warn("scan throttle unavailable, allowing request",
			zap.String("device_id", deviceID), zap.Error(err))
		return Decision{Allowed: true}
	}
	return d
}
