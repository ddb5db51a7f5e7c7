package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ticketcore/checkout-service/internal/model"
	"github.com/ticketcore/checkout-service/internal/payment"
	"github.com/ticketcore/checkout-service/internal/queue"
	"github.com/ticketcore/checkout-service/internal/repository"
)

// memStore is an in-memory stand-in for the MySQL repositories.  It
// implements every store interface the services consume so one instance
// can back a whole scenario, and it enforces the same semantics the SQL
// does: conditional updates arbitrated under one mutex.
type memStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	events     map[uint64]model.Event
	tiers      map[uint64]*model.TicketTier
	holds      map[string]*model.Hold
	sessions   map[string]*model.CheckoutSession
	items      map[string][]model.LineItem
	codes      map[uint64]*model.GuestAccessCode
	plaintexts map[uint64]string
	orders     map[string]*model.Order

	webhookEvents map[string]string
	exceptions    []exceptionRecord

	failCreateHold  bool
	failCreateOrder bool
}

type exceptionRecord struct {
	sessionID, providerRef, providerEventID, reason string
}

func newMemStore() *memStore {
	return &memStore{
		events:        make(map[uint64]model.Event),
		tiers:         make(map[uint64]*model.TicketTier),
		holds:         make(map[string]*model.Hold),
		sessions:      make(map[string]*model.CheckoutSession),
		items:         make(map[string][]model.LineItem),
		codes:         make(map[uint64]*model.GuestAccessCode),
		plaintexts:    make(map[uint64]string),
		orders:        make(map[string]*model.Order),
		webhookEvents: make(map[string]string),
	}
}

type fakeTxKey struct{}

// WithTx snapshots mutable state and restores it when fn fails, so the
// fake rolls back the way a real transaction would.  A nested call joins
// the enclosing transaction, mirroring how withTx joins a tx already in
// the context; top-level transactions are serialized so a rollback never
// clobbers a concurrent writer.
func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		return fn(ctx)
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()
	snap := m.snapshot()
	if err := fn(context.WithValue(ctx, fakeTxKey{}, struct{}{})); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	tiers         map[uint64]model.TicketTier
	holds         map[string]model.Hold
	sessions      map[string]model.CheckoutSession
	items         map[string][]model.LineItem
	codes         map[uint64]model.GuestAccessCode
	orders        map[string]model.Order
	webhookEvents map[string]string
	exceptions    []exceptionRecord
}

func (m *memStore) snapshot() memSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := memSnapshot{
		tiers:         make(map[uint64]model.TicketTier, len(m.tiers)),
		holds:         make(map[string]model.Hold, len(m.holds)),
		sessions:      make(map[string]model.CheckoutSession, len(m.sessions)),
		items:         make(map[string][]model.LineItem, len(m.items)),
		codes:         make(map[uint64]model.GuestAccessCode, len(m.codes)),
		orders:        make(map[string]model.Order, len(m.orders)),
		webhookEvents: make(map[string]string, len(m.webhookEvents)),
		exceptions:    append([]exceptionRecord(nil), m.exceptions...),
	}
	for id, t := range m.tiers {
		snap.tiers[id] = *t
	}
	for id, h := range m.holds {
		snap.holds[id] = *h
	}
	for id, s := range m.sessions {
		snap.sessions[id] = *s
	}
	for id, li := range m.items {
		snap.items[id] = append([]model.LineItem(nil), li...)
	}
	for id, c := range m.codes {
		snap.codes[id] = *c
	}
	for id, o := range m.orders {
		snap.orders[id] = *o
	}
	for id, outcome := range m.webhookEvents {
		snap.webhookEvents[id] = outcome
	}
	return snap
}

func (m *memStore) restore(snap memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tiers = make(map[uint64]*model.TicketTier, len(snap.tiers))
	for id, t := range snap.tiers {
		cp := t
		m.tiers[id] = &cp
	}
	m.holds = make(map[string]*model.Hold, len(snap.holds))
	for id, h := range snap.holds {
		cp := h
		m.holds[id] = &cp
	}
	m.sessions = make(map[string]*model.CheckoutSession, len(snap.sessions))
	for id, s := range snap.sessions {
		cp := s
		m.sessions[id] = &cp
	}
	m.items = snap.items
	m.codes = make(map[uint64]*model.GuestAccessCode, len(snap.codes))
	for id, c := range snap.codes {
		cp := c
		m.codes[id] = &cp
	}
	m.orders = make(map[string]*model.Order, len(snap.orders))
	for id, o := range snap.orders {
		cp := o
		m.orders[id] = &cp
	}
	m.webhookEvents = make(map[string]string, len(snap.webhookEvents))
	for id, outcome := range snap.webhookEvents {
		m.webhookEvents[id] = outcome
	}
	m.exceptions = snap.exceptions
}

func (m *memStore) addEvent(e model.Event) { m.events[e.ID] = e }

func (m *memStore) addTier(t model.TicketTier) { m.tiers[t.ID] = &t }

func (m *memStore) addCode(c model.GuestAccessCode, plaintext string) {
	m.codes[c.ID] = &c
	m.plaintexts[c.ID] = plaintext
}

func (m *memStore) GetEvent(ctx context.Context, eventID uint64) (model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[eventID]
	if !ok {
		return model.Event{}, repository.ErrEventNotFound
	}
	return e, nil
}

func (m *memStore) GetTier(ctx context.Context, tierID uint64) (model.TicketTier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tiers[tierID]
	if !ok {
		return model.TicketTier{}, repository.ErrTierNotFound
	}
	return *t, nil
}

func (m *memStore) ListTiersByEvent(ctx context.Context, eventID uint64) ([]model.TicketTier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TicketTier
	for _, t := range m.tiers {
		if t.EventID == eventID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) Reserve(ctx context.Context, tierID uint64, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tiers[tierID]
	if !ok {
		return repository.ErrTierNotFound
	}
	if t.Reserved+t.Issued+quantity > t.Capacity {
		return repository.ErrSoldOut
	}
	t.Reserved += quantity
	return nil
}

func (m *memStore) Release(ctx context.Context, holdID string) error {
	return m.settle(holdID, model.HoldStatusReleased)
}

func (m *memStore) Expire(ctx context.Context, holdID string) error {
	return m.settle(holdID, model.HoldStatusExpired)
}

func (m *memStore) settle(holdID string, to model.HoldStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holds[holdID]
	if !ok {
		return repository.ErrHoldNotFound
	}
	if h.Status != model.HoldStatusActive {
		return nil
	}
	h.Status = to
	m.tiers[h.TierID].Reserved -= h.Quantity
	return nil
}

func (m *memStore) Commit(ctx context.Context, holdID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holds[holdID]
	if !ok {
		return repository.ErrHoldNotFound
	}
	if h.Status != model.HoldStatusActive {
		if h.Status == model.HoldStatusCommitted {
			return repository.ErrAlreadyCommitted
		}
		return repository.ErrHoldNotActive
	}
	h.Status = model.HoldStatusCommitted
	t := m.tiers[h.TierID]
	t.Reserved -= h.Quantity
	t.Issued += h.Quantity
	return nil
}

func (m *memStore) Create(ctx context.Context, h model.Hold) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateHold {
		return errors.New("simulated insert failure")
	}
	m.holds[h.ID] = &h
	return nil
}

func (m *memStore) Get(ctx context.Context, holdID string) (model.Hold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holds[holdID]
	if !ok {
		return model.Hold{}, repository.ErrHoldNotFound
	}
	return *h, nil
}

func (m *memStore) ListBySession(ctx context.Context, sessionID string) ([]model.Hold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Hold
	for _, h := range m.holds {
		if h.SessionID == sessionID {
			out = append(out, *h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) ExtendExpiry(ctx context.Context, holdID string, newExpiry, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holds[holdID]
	if !ok {
		return repository.ErrHoldNotFound
	}
	if h.Status != model.HoldStatusActive || !h.ExpiresAt.After(now) {
		return repository.ErrHoldNotActive
	}
	h.ExpiresAt = newExpiry
	return nil
}

func (m *memStore) ListLapsedActive(ctx context.Context, now time.Time, limit int) ([]model.Hold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Hold
	for _, h := range m.holds {
		if h.Status == model.HoldStatusActive && !h.ExpiresAt.After(now) {
			out = append(out, *h)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// --- SessionStore ---

// CreateSession is the SessionStore Create; the method name differs from
// HoldStore's Create only at the interface seam, so memStore exposes the
// hold one directly and sessions go through sessionView.
type sessionView struct{ *memStore }

func (m *memStore) sessionStore() sessionView { return sessionView{m} }

func (v sessionView) Create(ctx context.Context, s model.CheckoutSession) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	cp := s
	cp.Items = nil
	v.sessions[s.ID] = &cp
	return nil
}

func (v sessionView) AddItems(ctx context.Context, sessionID string, items []model.LineItem) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.items[sessionID] = append(v.items[sessionID], items...)
	return nil
}

func (v sessionView) Get(ctx context.Context, sessionID string) (model.CheckoutSession, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.sessions[sessionID]
	if !ok {
		return model.CheckoutSession{}, repository.ErrSessionNotFound
	}
	cp := *s
	cp.Items = append([]model.LineItem(nil), v.items[sessionID]...)
	return cp, nil
}

func (v sessionView) GetByProviderRef(ctx context.Context, providerRef string) (model.CheckoutSession, error) {
	v.mu.Lock()
	var id string
	for _, s := range v.sessions {
		if s.ProviderRef == providerRef {
			id = s.ID
			break
		}
	}
	v.mu.Unlock()
	if id == "" {
		return model.CheckoutSession{}, repository.ErrSessionNotFound
	}
	return v.Get(ctx, id)
}

func (v sessionView) SetProviderRef(ctx context.Context, sessionID, providerRef string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.sessions[sessionID]
	if !ok {
		return repository.ErrSessionNotFound
	}
	s.ProviderRef = providerRef
	return nil
}

func (v sessionView) Transition(ctx context.Context, sessionID string, from, to model.SessionStatus) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.sessions[sessionID]
	if !ok {
		return false, repository.ErrSessionNotFound
	}
	if s.Status != from {
		return false, nil
	}
	s.Status = to
	return true, nil
}

func (v sessionView) Extend(ctx context.Context, sessionID string, newExpiry, now time.Time, maxExtensions int) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.sessions[sessionID]
	if !ok {
		return false, repository.ErrSessionNotFound
	}
	if s.Status != model.SessionStatusPending || !s.ExpiresAt.After(now) || s.ExtendCount >= maxExtensions {
		return false, nil
	}
	s.ExpiresAt = newExpiry
	s.ExtendCount++
	return true, nil
}

func (v sessionView) ListLapsedPending(ctx context.Context, now time.Time, limit int) ([]model.CheckoutSession, error) {
	v.mu.Lock()
	var ids []string
	for _, s := range v.sessions {
		if s.Status == model.SessionStatusPending && !s.ExpiresAt.After(now) {
			ids = append(ids, s.ID)
		}
		if len(ids) == limit {
			break
		}
	}
	v.mu.Unlock()
	out := make([]model.CheckoutSession, 0, len(ids))
	for _, id := range ids {
		s, err := v.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// --- AccessCodeStore ---

type codeView struct{ *memStore }

func (m *memStore) codeStore() codeView { return codeView{m} }

func (v codeView) Get(ctx context.Context, codeID uint64) (model.GuestAccessCode, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	c, ok := v.codes[codeID]
	if !ok {
		return model.GuestAccessCode{}, repository.ErrCodeNotFound
	}
	return *c, nil
}

func (v codeView) FindByPlaintext(ctx context.Context, eventID uint64, plaintext string) (model.GuestAccessCode, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for id, c := range v.codes {
		if c.EventID == eventID && strings.EqualFold(v.plaintexts[id], plaintext) {
			return *c, nil
		}
	}
	return model.GuestAccessCode{}, repository.ErrCodeNotFound
}

func (v codeView) ConsumeUse(ctx context.Context, codeID uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	c, ok := v.codes[codeID]
	if !ok {
		return repository.ErrCodeNotFound
	}
	if c.UsedCount >= c.MaxUses {
		return repository.ErrUsesExhausted
	}
	c.UsedCount++
	return nil
}

// --- OrderStore ---

type orderView struct{ *memStore }

func (m *memStore) orderStore() orderView { return orderView{m} }

func (v orderView) Create(ctx context.Context, o model.Order) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failCreateOrder {
		return errors.New("insert order: connection reset")
	}
	v.orders[o.ID] = &o
	return nil
}

func (v orderView) Get(ctx context.Context, orderID string) (model.Order, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.orders[orderID]
	if !ok {
		return model.Order{}, repository.ErrOrderNotFound
	}
	return *o, nil
}

func (v orderView) GetBySessionID(ctx context.Context, sessionID string) (model.Order, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, o := range v.orders {
		if o.SessionID == sessionID {
			return *o, nil
		}
	}
	return model.Order{}, repository.ErrOrderNotFound
}

func (v orderView) MarkRefunded(ctx context.Context, orderID string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.orders[orderID]
	if !ok {
		return false, repository.ErrOrderNotFound
	}
	if o.Status != model.OrderStatusPaid {
		return false, nil
	}
	o.Status = model.OrderStatusRefunded
	return true, nil
}

// --- WebhookEventStore / ExceptionStore ---

type webhookView struct{ *memStore }

func (m *memStore) webhookStore() webhookView { return webhookView{m} }

func (v webhookView) Record(ctx context.Context, providerEventID, providerRef, outcome string, receivedAt time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, dup := v.webhookEvents[providerEventID]; dup {
		return repository.ErrDuplicateWebhookEvent
	}
	v.webhookEvents[providerEventID] = outcome
	return nil
}

type exceptionView struct{ *memStore }

func (m *memStore) exceptionStore() exceptionView { return exceptionView{m} }

func (v exceptionView) Record(ctx context.Context, sessionID, providerRef, providerEventID, reason string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.exceptions = append(v.exceptions, exceptionRecord{sessionID, providerRef, providerEventID, reason})
	return nil
}

// testClock is a settable clock so expiry can be driven forward mid-test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{now: t.UTC()} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- EventPublisher ---

type fakePublisher struct {
	mu        sync.Mutex
	confirmed []queue.OrderConfirmedEvent
	alerts    []queue.ReconciliationExceptionEvent
}

func (p *fakePublisher) OrderConfirmed(ctx context.Context, event queue.OrderConfirmedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmed = append(p.confirmed, event)
	return nil
}

func (p *fakePublisher) ReconciliationException(ctx context.Context, event queue.ReconciliationExceptionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, event)
	return nil
}

// --- payment.Gateway ---

type fakeGateway struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (g *fakeGateway) CreateHandoff(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (payment.Handoff, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.fail {
		return payment.Handoff{}, errors.New("provider unavailable")
	}
	return payment.Handoff{
		ProviderRef:  "ps_" + metadata["session_id"],
		Mode:         payment.ModeEmbedded,
		ClientSecret: "cs_test",
	}, nil
}
