package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/ceremony-admission/internal/config"
	"github.com/iliyamo/ceremony-admission/internal/ratelimit"
)

// NewTokenBucket limits graduate and administrator endpoints with a
// Redis token bucket.  It is a no-op when disabled or without Redis.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	bucket := ratelimit.NewTokenBucket(rdb, cfg.Capacity, cfg.RefillTokens, cfg.RefillInterval, cfg.TTL)
	return RateLimit(cfg, bucket, log)
}

// RateLimit applies limiter to every request, keyed by cfg.KeyStrategy.
// Limiter errors let the request through.
func RateLimit(cfg config.RateLimitConfig, limiter ratelimit.Limiter, log *zap.Logger) echo.MiddlewareFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			d, err := limiter.Allow(c.Request().Context(), key)
			if err != nil {
				log.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				secs := d.RetryAfterSeconds()
				h.Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "too_many_requests",
					"message":     fmt.Sprintf("rate limit exceeded, retry in %d seconds", secs),
					"retry_after": secs,
				})
			}
			return next(c)
		}
	}
}

// buildRateKey joins the prefix with the parts selected by the key
// strategy: ip, user, ip_user, user_route or (default) ip_user_route.
func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	var parts []string
	strategy := strings.ToLower(cfg.KeyStrategy)
	if strategy != "user" && strategy != "user_route" {
		parts = append(parts, "ip", ip)
	}
	if strategy != "ip" {
		parts = append(parts, "user", rateKeyUser(c))
	}
	if strategy == "user_route" || strategy == "ip_user_route" || !knownStrategy(strategy) {
		parts = append(parts, "route", c.Request().Method+" "+c.Path())
	}
	return cfg.Prefix + ":" + strings.Join(parts, ":")
}

func knownStrategy(s string) bool {
	switch s {
	case "ip", "user", "ip_user", "user_route", "ip_user_route":
		return true
	}
	return false
}
