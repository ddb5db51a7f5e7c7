package middleware

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ticketcore/checkout-service/internal/config"
)

func TestCacheEntryRoundTrip(t *testing.T) {
	body := []byte(`{"tiers":[{"id":10,"available":3}]}`)
	status, contentType, got, ok := decodeEntry(encodeEntry(200, "application/json", body))
	if !ok {
		t.Fatal("decode failed")
	}
	if status != 200 || contentType != "application/json" || !bytes.Equal(got, body) {
		t.Fatalf("decoded status=%d type=%q body=%q", status, contentType, got)
	}

	// Bodies containing newlines survive, only the first two separators
	// are structural.
	_, _, got, ok = decodeEntry(encodeEntry(200, "text/plain", []byte("a\nb\nc")))
	if !ok || string(got) != "a\nb\nc" {
		t.Fatalf("multiline body = %q, ok=%v", got, ok)
	}

	if _, _, _, ok := decodeEntry([]byte("garbage")); ok {
		t.Fatal("garbage decoded as a valid entry")
	}
}

// Two events must never share a cache entry even though they match the
// same route pattern.
func TestCacheKeySeparatesEvents(t *testing.T) {
	cfg := config.CacheConfig{Prefix: "checkout:avail", KeyStrategy: "path_query"}
	e := echo.New()

	keyFor := func(target string) string {
		req := httptest.NewRequest("GET", target, nil)
		c := e.NewContext(req, httptest.NewRecorder())
		c.SetPath("/v1/events/:id/tiers")
		return cacheKey(cfg, c)
	}

	a := keyFor("/v1/events/7/tiers")
	b := keyFor("/v1/events/8/tiers")
	if a == b {
		t.Fatal("events 7 and 8 share a cache key")
	}
	if a != keyFor("/v1/events/7/tiers") {
		t.Fatal("cache key is not stable for identical requests")
	}
}

func TestBodyRecorderOverflowSkipsBuffering(t *testing.T) {
	rec := &bodyRecorder{ResponseWriter: httptest.NewRecorder(), status: 200, limit: 8}
	if _, err := rec.Write([]byte("12345")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := rec.Write([]byte("67890")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !rec.overflow {
		t.Fatal("recorder did not flag overflow past the limit")
	}
	if rec.buf.Len() != 0 {
		t.Fatalf("buffered %d bytes after overflow, want 0", rec.buf.Len())
	}
}

func TestRedisCacheNilClientPassesThrough(t *testing.T) {
	mw := NewRedisCache(config.LoadCacheConfig(), nil)
	called := false
	next := func(c echo.Context) error { called = true; return nil }

	e := echo.New()
	req := httptest.NewRequest("GET", "/v1/events/7/tiers", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	if err := mw(next)(c); err != nil {
		t.Fatalf("passthrough: %v", err)
	}
	if !called {
		t.Fatal("handler not reached without a redis client")
	}
}
