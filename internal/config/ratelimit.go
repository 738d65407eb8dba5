package config

import "time"

// RateLimitConfig drives the token bucket applied to graduate and
// administrator endpoints.  Scan requests use ScanThrottleConfig instead.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string
	Prefix         string
}

func LoadRateLimitConfig() RateLimitConfig {
	def := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       envInt("RATE_LIMIT_CAPACITY", 60),
		RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "ip_user_route"),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
	}
	if def.Capacity < 1 {
		def.Capacity = 1
	}
	if def.RefillTokens < 1 {
		def.RefillTokens = 1
	}
	if def.RefillInterval <= 0 {
		def.RefillInterval = time.Second
	}
	if minTTL := 5 * def.RefillInterval; def.TTL < minTTL {
		def.TTL = minTTL
	}
	return def
}

// ScanThrottleConfig limits how many scans one device may submit per
// window.  Without Redis the limit is enforced per process.
type ScanThrottleConfig struct {
	Limit  int
	Window time.Duration
	Prefix string
}

func LoadScanThrottleConfig() ScanThrottleConfig {
	cfg := ScanThrottleConfig{
		Limit:  envInt("SCAN_THROTTLE_LIMIT", 10),
		Window: envDur("SCAN_THROTTLE_WINDOW", time.Minute),
		Prefix: envStr("SCAN_THROTTLE_PREFIX", "scan"),
	}
	if cfg.Limit < 1 {
		cfg.Limit = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return cfg
}
