package service

import (
	"context"
	"testing"
	"time"

	"github.com/ticketcore/checkout-service/internal/model"
	"github.com/ticketcore/checkout-service/internal/payment"
)

func TestSweepExpiresLapsedSessions(t *testing.T) {
	ctx := context.Background()
	r := newRig()
	r.seedEvent(1)
	r.seedTier(10, 1, 2500, 10, 8)

	lapsed := openSession(t, r, 10, 2, "")

	// A fresh session started later must survive the sweep.
	r.clock.Advance(8 * time.Minute)
	fresh, err := r.checkout.CreateSession(ctx, CreateSessionInput{
		EventID:    1,
		Selections: []Selection{{TierID: 10, Quantity: 1}},
		Buyer:      model.NewGuestRef("blair@example.com", "Blair"),
	})
	if err != nil {
		t.Fatalf("fresh session: %v", err)
	}

	r.clock.Advance(3 * time.Minute)
	if err := r.sweeper.SweepOnce(ctx); err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}

	expired, _ := r.store.sessionStore().Get(ctx, lapsed.ID)
	if expired.Status != model.SessionStatusExpired {
		t.Fatalf("lapsed session status = %s, want EXPIRED", expired.Status)
	}
	alive, _ := r.store.sessionStore().Get(ctx, fresh.Session.ID)
	if alive.Status != model.SessionStatusPending {
		t.Fatalf("fresh session status = %s, want PENDING", alive.Status)
	}
	if got := r.tier(t, 10).Reserved; got != 1 {
		t.Fatalf("reserved = %d after sweep, want 1 (only the fresh hold)", got)
	}

	holds, _ := r.store.ListBySession(ctx, lapsed.ID)
	for _, h := range holds {
		if h.Status != model.HoldStatusExpired {
			t.Fatalf("hold %s status = %s after sweep, want EXPIRED", h.ID, h.Status)
		}
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r := newRig()
	r.seedEvent(1)
	r.seedTier(10, 1, 2500, 10, 8)
	openSession(t, r, 10, 2, "")

	r.clock.Advance(11 * time.Minute)
	if err := r.sweeper.SweepOnce(ctx); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	if err := r.sweeper.SweepOnce(ctx); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if got := r.tier(t, 10).Reserved; got != 0 {
		t.Fatalf("reserved = %d, a double sweep must not go negative", got)
	}
}

func TestSweepSkipsConvertedSessions(t *testing.T) {
	ctx := context.Background()
	r := newRig()
	r.seedEvent(1)
	r.seedTier(10, 1, 2500, 10, 8)
	session := openSession(t, r, 10, 2, "")

	if err := r.reconcile.HandleNotification(ctx, notification("evt_s", session.ProviderRef, payment.OutcomeSucceeded)); err != nil {
		t.Fatalf("HandleNotification: %v", err)
	}

	r.clock.Advance(11 * time.Minute)
	if err := r.sweeper.SweepOnce(ctx); err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}

	stored, _ := r.store.sessionStore().Get(ctx, session.ID)
	if stored.Status != model.SessionStatusConverted {
		t.Fatalf("status = %s after sweep, conversion must stick", stored.Status)
	}
	tier := r.tier(t, 10)
	if tier.Issued != 2 || tier.Reserved != 0 {
		t.Fatalf("tier counters = reserved %d issued %d, want 0/2", tier.Reserved, tier.Issued)
	}
}
