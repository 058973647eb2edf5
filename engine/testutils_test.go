package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/assetauction/core"
)

const custodian core.Principal = "engine"

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(dur time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(dur)
}

type fakeAuth struct {
	mu     sync.Mutex
	roles  map[core.Role]map[core.Principal]bool
	paused bool
}

func (a *fakeAuth) grant(role core.Role, p core.Principal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.roles[role] == nil {
		a.roles[role] = make(map[core.Principal]bool)
	}
	a.roles[role][p] = true
}

func (a *fakeAuth) HasRole(_ context.Context, role core.Role, p core.Principal) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.roles[role][p]
}

func (a *fakeAuth) IsGloballyPaused(context.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.paused
}

type fakeAssets struct {
	mu     sync.Mutex
	owners map[core.AssetID]core.Principal
	failTo map[core.Principal]bool
}

func (r *fakeAssets) mint(asset core.AssetID, owner core.Principal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[asset] = owner
}

func (r *fakeAssets) setFailTo(p core.Principal, fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failTo[p] = fail
}

func (r *fakeAssets) ownerOf(asset core.AssetID) core.Principal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.owners[asset]
}

func (r *fakeAssets) OwnerOf(_ context.Context, asset core.AssetID) (core.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[asset]
	if !ok {
		return "", fmt.Errorf("unknown asset %s", asset)
	}
	return owner, nil
}

func (r *fakeAssets) Transfer(_ context.Context, asset core.AssetID, from, to core.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failTo[to] {
		return errors.New("registry rejected transfer")
	}
	if r.owners[asset] != from {
		return fmt.Errorf("%s does not own %s", from, asset)
	}
	r.owners[asset] = to
	return nil
}

// royaltyAssets adds the royalty capability to fakeAssets.
type royaltyAssets struct {
	*fakeAssets
	recipient core.Principal
	bps       uint32
	err       error
}

func (r *royaltyAssets) RoyaltyInfo(_ context.Context, _ core.AssetID, price decimal.Decimal) (core.Principal, decimal.Decimal, error) {
	if r.err != nil {
		return "", decimal.Zero, r.err
	}
	return r.recipient, core.ApplyBps(price, r.bps), nil
}

type fakePayouts struct {
	mu       sync.Mutex
	received map[core.Principal]decimal.Decimal
	reject   map[core.Principal]bool
	onSend   func(to core.Principal, amount decimal.Decimal)
}

func (p *fakePayouts) Send(_ context.Context, to core.Principal, amount decimal.Decimal) error {
	p.mu.Lock()
	if p.reject[to] {
		p.mu.Unlock()
		return errors.New("recipient rejected value")
	}
	p.received[to] = p.received[to].Add(amount)
	hook := p.onSend
	p.mu.Unlock()

	if hook != nil {
		hook(to, amount)
	}
	return nil
}

func (p *fakePayouts) setReject(to core.Principal, reject bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reject[to] = reject
}

func (p *fakePayouts) total(to core.Principal) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.received[to].String()
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) kinds() []EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventKind, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (s *recordingSink) last(kind EventKind) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Kind == kind {
			return s.events[i], true
		}
	}
	return Event{}, false
}

func (s *recordingSink) count(kind EventKind) int {
	n := 0
	for _, k := range s.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

type harness struct {
	e       *Engine
	clock   *fakeClock
	auth    *fakeAuth
	assets  *fakeAssets
	payouts *fakePayouts
	sink    *recordingSink
	minted  int
}

type harnessOption func(*Options, *harness)

func withFees(mutate func(*core.FeeConfig)) harnessOption {
	return func(o *Options, _ *harness) {
		mutate(&o.Fees)
	}
}

func withRoyalty(recipient core.Principal, bps uint32, err error) harnessOption {
	return func(o *Options, h *harness) {
		o.Assets = &royaltyAssets{fakeAssets: h.assets, recipient: recipient, bps: bps, err: err}
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		clock:   &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)},
		auth:    &fakeAuth{roles: make(map[core.Role]map[core.Principal]bool)},
		assets:  &fakeAssets{owners: make(map[core.AssetID]core.Principal), failTo: make(map[core.Principal]bool)},
		payouts: &fakePayouts{received: make(map[core.Principal]decimal.Decimal), reject: make(map[core.Principal]bool)},
		sink:    &recordingSink{},
	}
	h.auth.grant(core.RoleAdmin, "admin")

	o := Options{
		Auth:             h.auth,
		Assets:           h.assets,
		Payouts:          h.payouts,
		Clock:            h.clock,
		Events:           h.sink,
		Custodian:        custodian,
		AssetRegistryRef: "test-registry",
		Fees:             core.DefaultFeeConfig(),
	}
	for _, opt := range opts {
		opt(&o, h)
	}

	e, err := New(o)
	assert.NoError(t, err)
	h.e = e
	return h
}

// create mints asset to seller and lists it.
func (h *harness) create(t *testing.T, seller core.Principal, p core.CreateParams) uint64 {
	t.Helper()
	if p.AssetID == "" {
		h.minted++
		p.AssetID = core.AssetID(fmt.Sprintf("asset-%d", h.minted))
	}
	if p.Duration == 0 {
		p.Duration = time.Hour
	}
	h.assets.mint(p.AssetID, seller)
	id, err := h.e.CreateAuction(context.Background(), seller, p)
	assert.NoError(t, err)
	return id
}

func (h *harness) auction(t *testing.T, id uint64) core.Auction {
	t.Helper()
	a, err := h.e.GetAuction(id)
	assert.NoError(t, err)
	return a
}

func (h *harness) invariants(t *testing.T) {
	t.Helper()
	assert.NoError(t, h.e.CheckInvariants())
}
