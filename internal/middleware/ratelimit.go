package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/ticketcore/checkout-service/internal/config"
)

// tokenBucketScript refills and drains one bucket atomically.  Bucket
// state lives in a redis hash holding the token count and the last
// refill stamp; the reply is {allowed, remaining, retry_after_ms}.
var tokenBucketScript = redis.NewScript(`
local bucket = KEYS[1]
local now_ms = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local refill = tonumber(ARGV[3])
local interval_ms = tonumber(ARGV[4])
local ttl_s = tonumber(ARGV[5])

local state = redis.call('HMGET', bucket, 'tokens', 'refilled_ms')
local tokens = tonumber(state[1])
local refilled = tonumber(state[2])
if tokens == nil or refilled == nil then
    tokens = burst
    refilled = now_ms
end

local rounds = math.floor(math.max(0, now_ms - refilled) / interval_ms)
if rounds > 0 then
    tokens = math.min(burst, tokens + rounds * refill)
    refilled = refilled + rounds * interval_ms
end

local allowed = 0
local retry_ms = 0
if tokens > 0 then
    allowed = 1
    tokens = tokens - 1
else
    retry_ms = math.max(0, interval_ms - (now_ms - refilled))
end

redis.call('HMSET', bucket, 'tokens', tokens, 'refilled_ms', refilled)
redis.call('EXPIRE', bucket, ttl_s)
return {allowed, tokens, retry_ms}
`)

// passthrough disables a middleware without changing the chain shape.
func passthrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

// NewTokenBucket throttles checkout traffic per buyer.  Opening a
// session is cheap for the caller and parks real inventory behind a
// hold, so the bucket keys on who is buying rather than on the raw
// connection.  A nil redis client or a redis outage lets traffic
// through: the inventory ledger, not the limiter, protects capacity.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passthrough
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := bucketKey(cfg, c)
			res, err := tokenBucketScript.Run(c.Request().Context(), rdb, []string{key},
				time.Now().UnixMilli(),
				cfg.Burst,
				cfg.RefillTokens,
				cfg.RefillInterval.Milliseconds(),
				int64(cfg.TTL/time.Second),
			).Int64Slice()
			if err != nil || len(res) != 3 {
				if cfg.Debug {
					c.Logger().Warnf("ratelimit: script failed for %s: %v", key, err)
				}
				return next(c)
			}

			allowed, remaining, retryMs := res[0] == 1, res[1], res[2]
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Burst))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if !allowed {
				secs := int(math.Ceil(float64(retryMs) / 1000))
				h.Set("Retry-After", strconv.Itoa(secs))
				if cfg.Debug {
					c.Logger().Infof("ratelimit: blocked %s, retry in %ds", key, secs)
				}
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error": "too many checkout attempts, slow down",
					"code":  "RATE_LIMITED",
				})
			}
			return next(c)
		}
	}
}

// buyerIdentity names the party behind a request: the authenticated
// member, the guest identity when one is presented, the client IP as a
// last resort.  Keying on the buyer keeps one aggressive guest from
// burning the budget of everyone behind the same NAT.
func buyerIdentity(c echo.Context) string {
	if id := MemberID(c); id != "" {
		return "m:" + id
	}
	if as := c.QueryParam("as"); as != "" {
		return "g:" + strings.ToLower(as)
	}
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

func bucketKey(cfg config.RateLimitConfig, c echo.Context) string {
	route := c.Request().Method + " " + c.Path()
	switch strings.ToLower(cfg.KeyStrategy) {
	case "buyer":
		return cfg.Prefix + ":" + buyerIdentity(c)
	case "route":
		return cfg.Prefix + ":" + route
	default: // buyer_route
		return cfg.Prefix + ":" + buyerIdentity(c) + ":" + route
	}
}
