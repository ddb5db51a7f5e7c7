package config

import "time"

// RateLimitConfig tunes the redis token bucket guarding the checkout
// surface.  Opening a session parks inventory behind a hold, so the
// budget is deliberately small: a burst of attempts, then a steady
// refill.  KeyStrategy picks what identifies a bucket; "buyer_route"
// scopes the budget per buyer per endpoint, "buyer" shares one budget
// across the whole surface, "route" throttles an endpoint globally.
type RateLimitConfig struct {
	Enabled        bool
	Burst          int // bucket capacity
	RefillTokens   int // tokens returned per interval
	RefillInterval time.Duration
	TTL            time.Duration // idle bucket eviction
	KeyStrategy    string
	Prefix         string
	Debug          bool
}

// LoadRateLimitConfig reads the RATE_LIMIT_* environment variables,
// falling back to defaults sized for interactive checkout traffic.
func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Burst:          envInt("RATE_LIMIT_BURST", 30),
		RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    getenv("RATE_LIMIT_KEY_STRATEGY", "buyer_route"),
		Prefix:         getenv("RATE_LIMIT_PREFIX", "checkout:rl"),
		Debug:          envBool("RATE_LIMIT_DEBUG", false),
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.RefillTokens < 1 {
		cfg.RefillTokens = 1
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	// An idle bucket must outlive several refill rounds, or a blocked
	// caller gets a fresh burst just by waiting out the eviction.
	if min := 5 * cfg.RefillInterval; cfg.TTL < min {
		cfg.TTL = min
	}
	return cfg
}
