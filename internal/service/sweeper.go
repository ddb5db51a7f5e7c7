package service

import (
	"context"
	"log"
	"time"

	"github.com/ticketcore/checkout-service/internal/clock"
	"github.com/ticketcore/checkout-service/internal/model"
)

const (
	defaultSweepInterval = 30 * time.Second
	sweepBatchSize       = 200
)

// Sweeper settles lapsed holds and sessions in the background.  Readers
// already treat lapsed rows as expired, so the sweep only has to catch
// up the ledger; it races safely against the reconciler and against
// other sweeper instances because every settlement goes through the same
// conditional status gates.
type Sweeper struct {
	ledger   Ledger
	holds    HoldStore
	sessions SessionStore
	clock    clock.Clock
	interval time.Duration
}

// NewSweeper constructs a Sweeper.  A non-positive interval falls back
// to the default.
func NewSweeper(ledger Ledger, holds HoldStore, sessions SessionStore, clk clock.Clock, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{
		ledger:   ledger,
		holds:    holds,
		sessions: sessions,
		clock:    clk,
		interval: interval,
	}
}

// Run sweeps on a ticker until the context is cancelled.  Meant to be
// launched as a goroutine from main.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("sweeper: started, interval %s", s.interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("sweeper: stopped")
			return
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				log.Printf("sweeper: sweep failed: %v", err)
			}
		}
	}
}

// SweepOnce runs one full pass: expire lapsed sessions (and their
// holds), then expire any lapsed holds left over.  Each settlement is a
// conditional update, so a hold the reconciler committed a moment ago is
// simply skipped.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	now := s.clock.Now()

	sessions, err := s.sessions.ListLapsedPending(ctx, now, sweepBatchSize)
	if err != nil {
		return err
	}
	for _, session := range sessions {
		if err := s.expireSession(ctx, session); err != nil {
			log.Printf("sweeper: expire session %s: %v", session.ID, err)
		}
	}

	holds, err := s.holds.ListLapsedActive(ctx, now, sweepBatchSize)
	if err != nil {
		return err
	}
	for _, hold := range holds {
		if err := s.ledger.Expire(ctx, hold.ID); err != nil {
			log.Printf("sweeper: expire hold %s: %v", hold.ID, err)
		}
	}
	return nil
}

// expireSession moves a lapsed pending session to EXPIRED and returns
// its inventory.  Losing the transition gate means the reconciler
// converted the session first; its holds are then committed and the
// expiry calls below are no-ops.
func (s *Sweeper) expireSession(ctx context.Context, session model.CheckoutSession) error {
	won, err := s.sessions.Transition(ctx, session.ID, model.SessionStatusPending, model.SessionStatusExpired)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}
	for _, it := range session.Items {
		if err := s.ledger.Expire(ctx, it.HoldID); err != nil {
			return err
		}
	}
	return nil
}
