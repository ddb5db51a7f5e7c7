package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ticketcore/checkout-service/internal/config"
)

func testContext(t *testing.T, target string) echo.Context {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest("POST", target, nil)
	req.RemoteAddr = "198.51.100.7:4455"
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/checkout-sessions")
	return c
}

func TestBuyerIdentityPrecedence(t *testing.T) {
	c := testContext(t, "/v1/checkout-sessions?as=Guest@Example.com")
	if got := buyerIdentity(c); got != "g:guest@example.com" {
		t.Fatalf("guest identity = %q, want lowercased guest email", got)
	}

	// A member identity outranks the guest parameter.
	c.Set("member_id", "member-42")
	if got := buyerIdentity(c); got != "m:member-42" {
		t.Fatalf("member identity = %q, want m:member-42", got)
	}

	c = testContext(t, "/v1/checkout-sessions")
	if got := buyerIdentity(c); got != "ip:198.51.100.7" {
		t.Fatalf("anonymous identity = %q, want the client IP", got)
	}
}

func TestBucketKeyStrategies(t *testing.T) {
	cfg := config.RateLimitConfig{Prefix: "checkout:rl", KeyStrategy: "buyer_route"}
	c := testContext(t, "/v1/checkout-sessions")
	c.Set("member_id", "member-42")

	want := "checkout:rl:m:member-42:POST /v1/checkout-sessions"
	if got := bucketKey(cfg, c); got != want {
		t.Fatalf("buyer_route key = %q, want %q", got, want)
	}

	cfg.KeyStrategy = "buyer"
	if got := bucketKey(cfg, c); got != "checkout:rl:m:member-42" {
		t.Fatalf("buyer key = %q", got)
	}

	cfg.KeyStrategy = "route"
	if got := bucketKey(cfg, c); got != "checkout:rl:POST /v1/checkout-sessions" {
		t.Fatalf("route key = %q", got)
	}
}

func TestTokenBucketNilClientPassesThrough(t *testing.T) {
	mw := NewTokenBucket(config.LoadRateLimitConfig(), nil)
	called := false
	next := func(c echo.Context) error { called = true; return nil }
	if err := mw(next)(testContext(t, "/v1/checkout-sessions")); err != nil {
		t.Fatalf("passthrough: %v", err)
	}
	if !called {
		t.Fatal("handler not reached without a redis client")
	}
}
