package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/ticketcore/checkout-service/internal/config"
)

// bodyRecorder tees the response body up to a limit so a hit can be
// replayed later.  An oversized body flows through to the client but is
// never cached.
type bodyRecorder struct {
	http.ResponseWriter
	status   int
	buf      bytes.Buffer
	overflow bool
	limit    int
}

func (w *bodyRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	if !w.overflow {
		if w.limit > 0 && w.buf.Len()+len(b) > w.limit {
			w.overflow = true
			w.buf.Reset()
		} else {
			w.buf.Write(b)
		}
	}
	return w.ResponseWriter.Write(b)
}

// Cached bodies are small JSON; an entry packs the status code, the
// content type, and the body with newline separators.
func encodeEntry(status int, contentType string, body []byte) []byte {
	out := make([]byte, 0, len(body)+len(contentType)+8)
	out = strconv.AppendInt(out, int64(status), 10)
	out = append(out, '\n')
	out = append(out, contentType...)
	out = append(out, '\n')
	out = append(out, body...)
	return out
}

func decodeEntry(raw []byte) (status int, contentType string, body []byte, ok bool) {
	i := bytes.IndexByte(raw, '\n')
	if i < 0 {
		return 0, "", nil, false
	}
	n, err := strconv.Atoi(string(raw[:i]))
	if err != nil {
		return 0, "", nil, false
	}
	rest := raw[i+1:]
	j := bytes.IndexByte(rest, '\n')
	if j < 0 {
		return 0, "", nil, false
	}
	return n, string(rest[:j]), rest[j+1:], true
}

// cacheKey hashes the concrete request path (not the route pattern, so
// every event keeps its own entry) plus the query string, under the
// configured prefix.
func cacheKey(cfg config.CacheConfig, c echo.Context) string {
	r := c.Request()
	tail := r.URL.Path
	if strings.ToLower(cfg.KeyStrategy) != "path" && r.URL.RawQuery != "" {
		tail += "?" + r.URL.RawQuery
	}
	sum := sha1.Sum([]byte(tail))
	return fmt.Sprintf("%s:%x", cfg.Prefix, sum)
}

// NewRedisCache absorbs availability polling on read endpoints.  Every
// purchase page refreshes the tier listing on a timer, and the answer
// only moves when a hold settles, so a few seconds of caching shields
// MySQL from the crowd without the numbers going visibly stale.  Only
// successful responses to the configured methods are stored; a nil
// client disables caching.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passthrough
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Methods[c.Request().Method] {
				return next(c)
			}
			key := cacheKey(cfg, c)

			if raw, err := rdb.Get(c.Request().Context(), key).Bytes(); err == nil {
				if status, contentType, body, ok := decodeEntry(raw); ok {
					h := c.Response().Header()
					if contentType != "" {
						h.Set(echo.HeaderContentType, contentType)
					}
					h.Set("X-Cache", "HIT")
					c.Response().WriteHeader(status)
					_, err := c.Response().Write(body)
					return err
				}
			}

			rec := &bodyRecorder{
				ResponseWriter: c.Response().Writer,
				status:         http.StatusOK,
				limit:          cfg.MaxBodyBytes,
			}
			c.Response().Writer = rec
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}

			if rec.status == http.StatusOK && !rec.overflow {
				entry := encodeEntry(rec.status, c.Response().Header().Get(echo.HeaderContentType), rec.buf.Bytes())
				// Detached context: a client hangup must not abort the
				// store.
				_ = rdb.SetEx(context.Background(), key, entry, ttl).Err()
			}
			return nil
		}
	}
}
