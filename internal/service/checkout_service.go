package service

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/ticketcore/checkout-service/internal/clock"
	"github.com/ticketcore/checkout-service/internal/model"
	"github.com/ticketcore/checkout-service/internal/payment"
	"github.com/ticketcore/checkout-service/internal/pricing"
	"github.com/ticketcore/checkout-service/internal/queue"
)

const (
	defaultMaxExtensions = 1
	defaultExtendTTL     = 5 * time.Minute
	defaultCurrency      = "USD"
)

// CheckoutService is the top-level orchestrator: it turns a buyer's
// selection into a pending session with holds, prices the order, opens
// the payment handoff, and drives the pending -> converted / failed /
// expired / cancelled state machine together with the reconciler and the
// sweep.
type CheckoutService struct {
	ledger    Ledger
	holdSvc   *HoldService
	sessions  SessionStore
	codes     *AccessCodeService
	orders    OrderStore
	gateway   payment.Gateway
	publisher EventPublisher
	clock     clock.Clock

	currency      string
	maxExtensions int
	extendTTL     time.Duration
}

// CheckoutServiceOption customises a CheckoutService.
type CheckoutServiceOption func(*CheckoutService)

// WithCurrency sets the charge currency.
func WithCurrency(c string) CheckoutServiceOption {
	return func(s *CheckoutService) {
		if c != "" {
			s.currency = strings.ToUpper(c)
		}
	}
}

// WithExtension configures how many extensions a session may use and how
// much time each one adds.
func WithExtension(max int, extra time.Duration) CheckoutServiceOption {
	return func(s *CheckoutService) {
		if max >= 0 {
			s.maxExtensions = max
		}
		if extra > 0 {
			s.extendTTL = extra
		}
	}
}

// NewCheckoutService constructs a CheckoutService.
func NewCheckoutService(
	ledger Ledger,
	holdSvc *HoldService,
	sessions SessionStore,
	codes *AccessCodeService,
	orders OrderStore,
	gateway payment.Gateway,
	publisher EventPublisher,
	clk clock.Clock,
	opts ...CheckoutServiceOption,
) *CheckoutService {
	svc := &CheckoutService{
		ledger:        ledger,
		holdSvc:       holdSvc,
		sessions:      sessions,
		codes:         codes,
		orders:        orders,
		gateway:       gateway,
		publisher:     publisher,
		clock:         clk,
		currency:      defaultCurrency,
		maxExtensions: defaultMaxExtensions,
		extendTTL:     defaultExtendTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Selection is one requested tier/quantity pair.
type Selection struct {
	TierID   uint64
	Quantity int
}

// CreateSessionInput carries everything needed to open a session.
// GuestCode is only meaningful for guest buyers.
type CreateSessionInput struct {
	EventID    uint64
	Selections []Selection
	Buyer      model.BuyerRef
	GuestCode  string
}

// CreateSessionResult is the session plus the payment handoff material
// the client needs to collect payment.  Handoff is zero for free orders,
// which convert immediately.
type CreateSessionResult struct {
	Session model.CheckoutSession
	Handoff payment.Handoff
}

// CreateSession validates the event and selections, reserves inventory
// hold by hold inside one transaction (all-or-nothing: any failure rolls
// every reservation back), prices the order per line, and opens the
// payment handoff.  Inventory and validation errors surface before any
// provider call is made.
func (s *CheckoutService) CreateSession(ctx context.Context, in CreateSessionInput) (CreateSessionResult, error) {
	if err := validateInput(in); err != nil {
		return CreateSessionResult{}, err
	}

	now := s.clock.Now()

	event, err := s.ledger.GetEvent(ctx, in.EventID)
	if err != nil {
		return CreateSessionResult{}, err
	}
	if event.Ended(now) {
		return CreateSessionResult{}, ErrEventEnded
	}

	var accessCodeID *uint64
	if in.GuestCode != "" {
		code, err := s.codes.Validate(ctx, in.EventID, in.GuestCode)
		if err != nil {
			return CreateSessionResult{}, err
		}
		if code.TierID != nil {
			for _, sel := range in.Selections {
				if sel.TierID != *code.TierID {
					return CreateSessionResult{}, ErrCodeTierMismatch
				}
			}
		}
		accessCodeID = &code.ID
	}

	// Price every line up front so validation failures surface before any
	// inventory is touched.
	quotes := make([]pricing.Quote, len(in.Selections))
	for i, sel := range in.Selections {
		tier, err := s.ledger.GetTier(ctx, sel.TierID)
		if err != nil {
			return CreateSessionResult{}, err
		}
		if tier.EventID != in.EventID {
			return CreateSessionResult{}, fmt.Errorf("%w: tier %d does not belong to event %d", ErrValidation, sel.TierID, in.EventID)
		}
		quotes[i] = pricing.PriceLine(tier.PriceCents, sel.Quantity)
	}
	total := pricing.Sum(quotes...)

	session := model.CheckoutSession{
		ID:            newUUID(),
		EventID:       in.EventID,
		Buyer:         in.Buyer,
		Status:        model.SessionStatusPending,
		SubtotalCents: total.SubtotalCents,
		FeeCents:      total.FeeCents,
		TotalCents:    total.TotalCents,
		Currency:      s.currency,
		AccessCodeID:  accessCodeID,
		ExpiresAt:     now.Add(s.holdSvc.TTL()),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.sessions.WithTx(ctx, func(ctx context.Context) error {
		if err := s.sessions.Create(ctx, session); err != nil {
			return err
		}
		items := make([]model.LineItem, 0, len(in.Selections))
		for i, sel := range in.Selections {
			hold, err := s.holdSvc.CreateHold(ctx, session.ID, sel.TierID, sel.Quantity)
			if err != nil {
				// Rolling back the transaction releases every hold created
				// so far in this call.
				return err
			}
			if hold.ExpiresAt.Before(session.ExpiresAt) {
				session.ExpiresAt = hold.ExpiresAt
			}
			items = append(items, model.LineItem{
				SessionID:      session.ID,
				TierID:         sel.TierID,
				HoldID:         hold.ID,
				Quantity:       sel.Quantity,
				UnitPriceCents: quotes[i].SubtotalCents / int64(sel.Quantity),
				SubtotalCents:  quotes[i].SubtotalCents,
				FeeCents:       quotes[i].FeeCents,
				TotalCents:     quotes[i].TotalCents,
			})
		}
		session.Items = items
		return s.sessions.AddItems(ctx, session.ID, items)
	})
	if err != nil {
		return CreateSessionResult{}, err
	}

	// Free orders have nothing to collect: convert immediately.
	if session.TotalCents == 0 {
		converted, err := s.convertFree(ctx, session)
		if err != nil {
			return CreateSessionResult{}, err
		}
		return CreateSessionResult{Session: converted}, nil
	}

	handoff, err := s.gateway.CreateHandoff(ctx, session.TotalCents, session.Currency, map[string]string{
		"session_id": session.ID,
		"event_id":   strconv.FormatUint(session.EventID, 10),
	})
	if err != nil {
		// The buyer never saw this session; give the inventory back.
		s.abandonSession(ctx, session)
		return CreateSessionResult{}, fmt.Errorf("%w: %v", ErrPaymentHandoff, err)
	}

	if err := s.sessions.SetProviderRef(ctx, session.ID, handoff.ProviderRef); err != nil {
		s.abandonSession(ctx, session)
		return CreateSessionResult{}, err
	}
	session.ProviderRef = handoff.ProviderRef

	return CreateSessionResult{Session: session, Handoff: handoff}, nil
}

// abandonSession fails a session whose payment handoff could not be
// opened and synchronously releases its holds.
func (s *CheckoutService) abandonSession(ctx context.Context, session model.CheckoutSession) {
	won, err := s.sessions.Transition(ctx, session.ID, model.SessionStatusPending, model.SessionStatusFailed)
	if err != nil {
		log.Printf("checkout: abandon session %s: %v", session.ID, err)
		return
	}
	if !won {
		return
	}
	for _, it := range session.Items {
		if err := s.ledger.Release(ctx, it.HoldID); err != nil {
			log.Printf("checkout: release hold %s: %v", it.HoldID, err)
		}
	}
}

// convertFree commits a zero-total session without a payment handoff.
func (s *CheckoutService) convertFree(ctx context.Context, session model.CheckoutSession) (model.CheckoutSession, error) {
	now := s.clock.Now()
	order := buildOrder(session, now)

	err := s.sessions.WithTx(ctx, func(ctx context.Context) error {
		won, err := s.sessions.Transition(ctx, session.ID, model.SessionStatusPending, model.SessionStatusConverted)
		if err != nil {
			return err
		}
		if !won {
			return ErrSessionNotPending
		}
		for _, it := range session.Items {
			if err := s.ledger.Commit(ctx, it.HoldID); err != nil {
				return err
			}
		}
		if session.AccessCodeID != nil {
			if err := s.codes.Consume(ctx, *session.AccessCodeID); err != nil {
				log.Printf("checkout: consume access code %d for session %s: %v", *session.AccessCodeID, session.ID, err)
			}
		}
		return s.orders.Create(ctx, order)
	})
	if err != nil {
		return model.CheckoutSession{}, err
	}

	session.Status = model.SessionStatusConverted
	publishOrderConfirmed(ctx, s.publisher, session, order, now)
	return session, nil
}

// StatusView is the read-only session state exposed to the buyer.
type StatusView struct {
	Status     model.SessionStatus
	ExpiresAt  time.Time
	CanExtend  bool
	TotalCents int64
	Currency   string
}

// GetStatus returns the session state for the buyer that owns it.  The
// lazy-expiry rule applies: a pending session past its TTL reports
// EXPIRED even before the sweep has settled the row.  Reads never mutate
// the ledger.
func (s *CheckoutService) GetStatus(ctx context.Context, sessionID, requesterIdentity string) (StatusView, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return StatusView{}, err
	}
	if !session.Buyer.Matches(requesterIdentity) {
		return StatusView{}, ErrForbidden
	}
	status := session.EffectiveStatus(s.clock.Now())
	return StatusView{
		Status:     status,
		ExpiresAt:  session.ExpiresAt,
		CanExtend:  status == model.SessionStatusPending && session.ExtendCount < s.maxExtensions,
		TotalCents: session.TotalCents,
		Currency:   session.Currency,
	}, nil
}

// Cancel aborts a pending session on the buyer's behalf and releases its
// holds synchronously before returning.
func (s *CheckoutService) Cancel(ctx context.Context, sessionID, requesterIdentity string) error {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.Buyer.Matches(requesterIdentity) {
		return ErrForbidden
	}
	switch session.EffectiveStatus(s.clock.Now()) {
	case model.SessionStatusPending:
	case model.SessionStatusExpired:
		return ErrSessionExpired
	default:
		return ErrSessionNotPending
	}

	won, err := s.sessions.Transition(ctx, sessionID, model.SessionStatusPending, model.SessionStatusCancelled)
	if err != nil {
		return err
	}
	if !won {
		return ErrSessionNotPending
	}
	for _, it := range session.Items {
		if err := s.ledger.Release(ctx, it.HoldID); err != nil {
			return err
		}
	}
	return nil
}

// Extend grants the session's bounded extension: expires_at moves forward
// by the configured extra duration, on the session and on every hold it
// owns.  A session past its TTL or out of extensions cannot be extended.
func (s *CheckoutService) Extend(ctx context.Context, sessionID, requesterIdentity string) (StatusView, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return StatusView{}, err
	}
	if !session.Buyer.Matches(requesterIdentity) {
		return StatusView{}, ErrForbidden
	}
	now := s.clock.Now()
	switch session.EffectiveStatus(now) {
	case model.SessionStatusPending:
	case model.SessionStatusExpired:
		return StatusView{}, ErrSessionExpired
	default:
		return StatusView{}, ErrSessionNotPending
	}
	if session.ExtendCount >= s.maxExtensions {
		return StatusView{}, ErrExtensionLimit
	}

	newExpiry := session.ExpiresAt.Add(s.extendTTL)
	won, err := s.sessions.Extend(ctx, sessionID, newExpiry, now, s.maxExtensions)
	if err != nil {
		return StatusView{}, err
	}
	if !won {
		// Lost to a concurrent extend, the sweep, or the webhook path.
		return StatusView{}, ErrExtensionLimit
	}
	for _, it := range session.Items {
		if err := s.holdSvc.ExtendHold(ctx, it.HoldID, newExpiry); err != nil {
			return StatusView{}, err
		}
	}
	return StatusView{
		Status:     model.SessionStatusPending,
		ExpiresAt:  newExpiry,
		CanExtend:  session.ExtendCount+1 < s.maxExtensions,
		TotalCents: session.TotalCents,
		Currency:   session.Currency,
	}, nil
}

// GetOrder returns the order a converted session produced, for the buyer
// that owns the session.
func (s *CheckoutService) GetOrder(ctx context.Context, orderID, requesterIdentity string) (model.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return model.Order{}, err
	}
	session, err := s.sessions.Get(ctx, order.SessionID)
	if err != nil {
		return model.Order{}, err
	}
	if !session.Buyer.Matches(requesterIdentity) {
		return model.Order{}, ErrForbidden
	}
	return order, nil
}

// ListTiers returns the tiers of an event for availability display.
func (s *CheckoutService) ListTiers(ctx context.Context, eventID uint64) (model.Event, []model.TicketTier, error) {
	event, err := s.ledger.GetEvent(ctx, eventID)
	if err != nil {
		return model.Event{}, nil, err
	}
	tiers, err := s.ledger.ListTiersByEvent(ctx, eventID)
	if err != nil {
		return model.Event{}, nil, err
	}
	return event, tiers, nil
}

func validateInput(in CreateSessionInput) error {
	if in.EventID == 0 {
		return fmt.Errorf("%w: event id is required", ErrValidation)
	}
	if len(in.Selections) == 0 {
		return fmt.Errorf("%w: at least one selection is required", ErrValidation)
	}
	seen := make(map[uint64]struct{}, len(in.Selections))
	for _, sel := range in.Selections {
		if sel.TierID == 0 {
			return fmt.Errorf("%w: tier id is required", ErrValidation)
		}
		if sel.Quantity <= 0 {
			return fmt.Errorf("%w: quantity must be positive", ErrValidation)
		}
		if _, dup := seen[sel.TierID]; dup {
			return fmt.Errorf("%w: duplicate selection for tier %d", ErrValidation, sel.TierID)
		}
		seen[sel.TierID] = struct{}{}
	}
	switch in.Buyer.Kind {
	case model.BuyerKindMember:
		if in.Buyer.MemberID == "" {
			return fmt.Errorf("%w: member id is required", ErrValidation)
		}
		if in.GuestCode != "" {
			return fmt.Errorf("%w: access codes apply to guest checkout only", ErrValidation)
		}
	case model.BuyerKindGuest:
		if in.Buyer.Email == "" || !strings.Contains(in.Buyer.Email, "@") {
			return fmt.Errorf("%w: a valid guest email is required", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown buyer kind %q", ErrValidation, in.Buyer.Kind)
	}
	return nil
}

// buildOrder mints the order and its tickets for a converting session.
func buildOrder(session model.CheckoutSession, now time.Time) model.Order {
	order := model.Order{
		ID:         newUUID(),
		SessionID:  session.ID,
		Status:     model.OrderStatusPaid,
		TotalCents: session.TotalCents,
		Currency:   session.Currency,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, it := range session.Items {
		for i := 0; i < it.Quantity; i++ {
			order.Tickets = append(order.Tickets, model.Ticket{
				ID:       newUUID(),
				OrderID:  order.ID,
				TierID:   it.TierID,
				IssuedAt: now,
			})
		}
	}
	return order
}

func publishOrderConfirmed(ctx context.Context, publisher EventPublisher, session model.CheckoutSession, order model.Order, now time.Time) {
	if publisher == nil {
		return
	}
	buyer := session.Buyer.MemberID
	if session.Buyer.Kind == model.BuyerKindGuest {
		buyer = session.Buyer.Email
	}
	event := queue.OrderConfirmedEvent{
		OrderID:          order.ID,
		SessionID:        session.ID,
		EventID:          session.EventID,
		BuyerKind:        string(session.Buyer.Kind),
		Buyer:            buyer,
		TicketCount:      len(order.Tickets),
		TotalAmountCents: order.TotalCents,
		Currency:         order.Currency,
		ConfirmedAt:      now.Format(time.RFC3339),
	}
	if err := publisher.OrderConfirmed(ctx, event); err != nil {
		log.Printf("checkout: publish order confirmed for %s: %v", order.ID, err)
	}
}
