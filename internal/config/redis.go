package config

import (
	"context"
	"crypto/tls"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient builds the shared redis client behind checkout
// throttling and the tier-availability response cache.  Redis is an
// optimization here, not a source of truth: when it is unreachable the
// function logs, returns nil, and both middlewares degrade to
// unthrottled, uncached handling.
//
// Configuration comes from REDIS_ADDR (host:port), or REDIS_HOST and
// REDIS_PORT which together take precedence, plus REDIS_PASSWORD,
// REDIS_DB, and REDIS_TLS.
func NewRedisClient() *redis.Client {
	addr := getenv("REDIS_ADDR", "localhost:6379")
	if host, port := getenv("REDIS_HOST", ""), getenv("REDIS_PORT", ""); host != "" && port != "" {
		addr = host + ":" + port
	}

	var tlsConf *tls.Config
	if envBool("REDIS_TLS", false) {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(&redis.Options{
		Addr:      addr,
		Password:  getenv("REDIS_PASSWORD", ""),
		DB:        envInt("REDIS_DB", 0),
		TLSConfig: tlsConf,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("redis unreachable at %s, throttling and caching disabled: %v", addr, err)
		return nil
	}
	return client
}
