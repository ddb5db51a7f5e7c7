package payment

import (
	"testing"
	"time"
)

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	secret := "whsec_test"
	body := []byte(`{"id":"evt_1","provider_ref":"ps_1","type":"payment.succeeded"}`)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("accepts a freshly signed delivery", func(t *testing.T) {
		header := SignatureHeader(secret, now.Unix(), body)
		if err := VerifySignature(secret, header, body, now); err != nil {
			t.Fatalf("expected valid signature, got %v", err)
		}
	})

	t.Run("rejects a tampered body", func(t *testing.T) {
		header := SignatureHeader(secret, now.Unix(), body)
		if err := VerifySignature(secret, header, []byte(`{}`), now); err != ErrBadSignature {
			t.Fatalf("expected ErrBadSignature, got %v", err)
		}
	})

	t.Run("rejects the wrong secret", func(t *testing.T) {
		header := SignatureHeader("whsec_other", now.Unix(), body)
		if err := VerifySignature(secret, header, body, now); err != ErrBadSignature {
			t.Fatalf("expected ErrBadSignature, got %v", err)
		}
	})

	t.Run("rejects a stale timestamp", func(t *testing.T) {
		old := now.Add(-SignatureTolerance - time.Second)
		header := SignatureHeader(secret, old.Unix(), body)
		if err := VerifySignature(secret, header, body, now); err != ErrBadSignature {
			t.Fatalf("expected ErrBadSignature, got %v", err)
		}
	})

	t.Run("rejects malformed headers", func(t *testing.T) {
		for _, header := range []string{"", "t=abc,v1=ff", "v1=ff", "t=123", "t=123,v1=zz"} {
			if err := VerifySignature(secret, header, body, now); err != ErrBadSignature {
				t.Fatalf("header %q: expected ErrBadSignature, got %v", header, err)
			}
		}
	})
}

func TestParseNotification(t *testing.T) {
	t.Parallel()

	t.Run("decodes a complete notification", func(t *testing.T) {
		n, err := ParseNotification([]byte(`{"id":"evt_1","provider_ref":"ps_1","type":"payment.succeeded"}`))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if n.EventID != "evt_1" || n.ProviderRef != "ps_1" || n.Outcome != OutcomeSucceeded {
			t.Fatalf("unexpected notification %+v", n)
		}
	})

	t.Run("rejects missing fields", func(t *testing.T) {
		if _, err := ParseNotification([]byte(`{"id":"evt_1"}`)); err == nil {
			t.Fatal("expected an error for missing fields")
		}
	})

	t.Run("rejects invalid json", func(t *testing.T) {
		if _, err := ParseNotification([]byte(`not-json`)); err == nil {
			t.Fatal("expected an error for invalid json")
		}
	})
}
