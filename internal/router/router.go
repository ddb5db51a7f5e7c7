package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/ticketcore/checkout-service/internal/config"
	"github.com/ticketcore/checkout-service/internal/handler"
	"github.com/ticketcore/checkout-service/internal/middleware"
)

// Handlers bundles every HTTP handler the API mounts.
type Handlers struct {
	Checkout *handler.CheckoutHandler
	Tiers    *handler.TierHandler
	Webhook  *handler.WebhookHandler
}

// Register mounts all routes on the provided Echo instance.
//
// The health check stays outside every middleware so probes never hit
// redis.  The tier listing is public and response-cached.  Checkout
// routes run the optional member auth so a bearer token resolves to a
// member identity while guests pass through.  The webhook endpoint is
// authenticated by its HMAC signature, not by JWT, and is exempt from
// rate limiting so provider retries are never throttled.
func Register(e *echo.Echo, h Handlers, jwtSecret string, rdb *redis.Client) {
	e.GET("/healthz", handler.Health)

	rl := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

	public := e.Group("/v1", rl)
	public.GET("/events/:id/tiers", h.Tiers.ListByEvent, cache)

	// Auth runs before the limiter so the bucket keys on the member
	// identity instead of the connection.
	sessions := e.Group("/v1", middleware.OptionalMemberAuth(jwtSecret), rl)
	sessions.POST("/checkout-sessions", h.Checkout.CreateSession)
	sessions.GET("/checkout-sessions/:id", h.Checkout.GetStatus)
	sessions.POST("/checkout-sessions/:id/cancel", h.Checkout.Cancel)
	sessions.POST("/checkout-sessions/:id/extend", h.Checkout.Extend)
	sessions.GET("/orders/:id", h.Checkout.GetOrder)

	e.POST("/v1/webhooks/payment", h.Webhook.Receive)
}
