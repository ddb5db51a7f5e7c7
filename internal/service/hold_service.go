package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ticketcore/checkout-service/internal/clock"
	"github.com/ticketcore/checkout-service/internal/model"
	"github.com/ticketcore/checkout-service/internal/repository"
)

const defaultHoldTTL = 10 * time.Minute

// HoldService creates and extends holds against the inventory ledger.
// The reserve-then-insert pair runs in one transaction, so a hold row
// exists if and only if the tier's reserved counter accounts for it.
type HoldService struct {
	ledger  Ledger
	holds   HoldStore
	clock   clock.Clock
	holdTTL time.Duration
}

// HoldServiceOption customises a HoldService.
type HoldServiceOption func(*HoldService)

// WithHoldTTL overrides the default TTL for new holds.
func WithHoldTTL(d time.Duration) HoldServiceOption {
	return func(s *HoldService) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

// NewHoldService constructs a HoldService.
func NewHoldService(ledger Ledger, holds HoldStore, clk clock.Clock, opts ...HoldServiceOption) *HoldService {
	svc := &HoldService{
		ledger:  ledger,
		holds:   holds,
		clock:   clk,
		holdTTL: defaultHoldTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// TTL returns the configured hold lifetime.
func (s *HoldService) TTL() time.Duration { return s.holdTTL }

// CreateHold validates the quantity against the tier's per-order cap,
// atomically claims inventory, and inserts the hold row owned by the
// given session.  repository.ErrSoldOut surfaces unchanged when the
// quantity does not fit; repository.ErrConflict signals a transient lock
// conflict that is safe to retry.
func (s *HoldService) CreateHold(ctx context.Context, sessionID string, tierID uint64, quantity int) (model.Hold, error) {
	if quantity <= 0 {
		return model.Hold{}, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}

	tier, err := s.ledger.GetTier(ctx, tierID)
	if err != nil {
		return model.Hold{}, err
	}
	if tier.MaxPerOrder > 0 && quantity > tier.MaxPerOrder {
		return model.Hold{}, fmt.Errorf("%w: quantity %d above per-order limit %d", ErrValidation, quantity, tier.MaxPerOrder)
	}

	now := s.clock.Now()
	hold := model.Hold{
		ID:        newUUID(),
		SessionID: sessionID,
		TierID:    tierID,
		Quantity:  quantity,
		Status:    model.HoldStatusActive,
		ExpiresAt: now.Add(s.holdTTL),
		CreatedAt: now,
	}

	err = s.holds.WithTx(ctx, func(ctx context.Context) error {
		if err := s.ledger.Reserve(ctx, tierID, quantity); err != nil {
			return err
		}
		return s.holds.Create(ctx, hold)
	})
	if err != nil {
		return model.Hold{}, err
	}
	return hold, nil
}

// ExtendHold pushes an active, unlapsed hold's expiry to newExpiry.
func (s *HoldService) ExtendHold(ctx context.Context, holdID string, newExpiry time.Time) error {
	err := s.holds.ExtendExpiry(ctx, holdID, newExpiry, s.clock.Now())
	if err == repository.ErrHoldNotActive {
		return ErrSessionExpired
	}
	return err
}
