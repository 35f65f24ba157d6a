package config

import (
	"os"
	"strconv"
	"time"
)

// RateLimitConfig describes one token bucket.  Capacity is the burst size,
// RefillTokens are added every RefillInterval.  TTL bounds how long an idle
// bucket is remembered.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string
	Prefix         string
	Debug          bool
}

// RateLimits groups the buckets applied to the API: a general per-IP bucket,
// a strict bucket for credential endpoints and a per-account bucket for
// authenticated routes.
type RateLimits struct {
	Global RateLimitConfig
	Auth   RateLimitConfig
	User   RateLimitConfig
}

func LoadRateLimits() RateLimits {
	global := LoadRateLimitConfig()

	auth := global
	auth.Capacity = envInt("AUTH_RATE_LIMIT_CAPACITY", 5)
	auth.RefillTokens = 1
	auth.RefillInterval = envDur("AUTH_RATE_LIMIT_REFILL_INTERVAL", 3*time.Minute)
	auth.KeyStrategy = "ip_route"
	auth.Prefix = global.Prefix + ":auth"
	auth.TTL = maxDur(global.TTL, 5*auth.RefillInterval)

	user := global
	user.Capacity = envInt("USER_RATE_LIMIT_CAPACITY", 100)
	user.RefillTokens = 1
	user.RefillInterval = envDur("USER_RATE_LIMIT_REFILL_INTERVAL", 9*time.Second)
	user.KeyStrategy = "user"
	user.Prefix = global.Prefix + ":user"
	user.TTL = maxDur(global.TTL, 5*user.RefillInterval)

	return RateLimits{Global: global, Auth: auth, User: user}
}

func LoadRateLimitConfig() RateLimitConfig {
	def := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       envInt("RATE_LIMIT_CAPACITY", 100),
		RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", 9*time.Second),
		TTL:            envDur("RATE_LIMIT_TTL", 15*time.Minute),
		KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "ip"),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
		Debug:          envBool("RATE_LIMIT_DEBUG", false),
	}
	if b := envInt("RATE_LIMIT_BURST", -1); b > 0 {
		def.Capacity = b
	}
	if every := envDur("RATE_LIMIT_REFILL_EVERY", 0); every > 0 {
		def.RefillTokens = 1
		def.RefillInterval = every
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
	minTTL := 5 * def.RefillInterval
	if def.TTL < minTTL {
		def.TTL = minTTL
	}
	return def
}

func maxDur(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
