// Package engine implements the auction lifecycle, the per-format bidding
// rules, settlement, the admin surface and the read queries.
//
// All mutations are serialized by one mutex and follow the same shape: lock,
// check every precondition, apply every effect (ledger, auction, stats,
// indexes), record the external interactions in a plan, unlock, then run the
// plan. Payout recipients may call back into the engine while the plan runs;
// they observe fully committed state. A payout the rail rejects is credited to
// the recipient's pull balance instead of failing the operation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/assetauction/core"
	"github.com/cloudx-io/assetauction/escrow"
)

// Options wires an Engine to its collaborators.
type Options struct {
	Auth    AuthorizationProvider
	Assets  AssetRegistry
	Payouts Payouts
	Clock   Clock
	Events  EventSink
	Ledger  *escrow.Ledger

	// Custodian is the principal that holds listed assets in the registry.
	Custodian        core.Principal
	AssetRegistryRef string
	Fees             core.FeeConfig
	Logger           *zerolog.Logger
}

// Engine is the auction engine. It is safe for concurrent use.
type Engine struct {
	mu sync.Mutex

	auth        AuthorizationProvider
	assets      AssetRegistry
	payouts     Payouts
	clock       Clock
	events      EventSink
	ledger      *escrow.Ledger
	custodian   core.Principal
	registryRef string
	log         zerolog.Logger

	fees   core.FeeConfig
	paused bool

	nextID      uint64
	auctions    map[uint64]*core.Auction
	commitments map[uint64]map[core.Principal]*core.Commitment
	commitOrder map[uint64][]core.Principal
	listed      map[core.AssetID]uint64
	closing     map[uint64]struct{}
	records     map[uint64]core.SettlementRecord
	stats       core.Stats
	ix          *index
}

// New creates an Engine. Auth, Assets, Payouts and Custodian are required.
func New(opts Options) (*Engine, error) {
	if opts.Auth == nil {
		return nil, errors.New("authorization provider is required")
	}
	if opts.Assets == nil {
		return nil, errors.New("asset registry is required")
	}
	if opts.Payouts == nil {
		return nil, errors.New("payout rail is required")
	}
	if opts.Custodian == "" {
		return nil, errors.New("custodian principal is required")
	}
	if err := opts.Fees.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fee config: %w", err)
	}

	e := &Engine{
		auth:        opts.Auth,
		assets:      opts.Assets,
		payouts:     opts.Payouts,
		clock:       opts.Clock,
		events:      opts.Events,
		ledger:      opts.Ledger,
		custodian:   opts.Custodian,
		registryRef: opts.AssetRegistryRef,
		fees:        opts.Fees,
		auctions:    make(map[uint64]*core.Auction),
		commitments: make(map[uint64]map[core.Principal]*core.Commitment),
		commitOrder: make(map[uint64][]core.Principal),
		listed:      make(map[core.AssetID]uint64),
		closing:     make(map[uint64]struct{}),
		records:     make(map[uint64]core.SettlementRecord),
		stats:       newStats(),
		ix:          newIndex(),
	}
	if e.clock == nil {
		e.clock = SystemClock{}
	}
	if e.events == nil {
		e.events = nopSink{}
	}
	if e.ledger == nil {
		e.ledger = escrow.NewLedger()
	}
	if opts.Logger != nil {
		e.log = opts.Logger.With().Str("component", "engine").Logger()
	} else {
		e.log = zerolog.Nop()
	}
	return e, nil
}

// Ledger exposes the escrow ledger for inspection.
func (e *Engine) Ledger() *escrow.Ledger {
	return e.ledger
}

type assetMove struct {
	auctionID uint64
	asset     core.AssetID
	from      core.Principal
	to        core.Principal
}

// plan collects the external interactions of one operation.
type plan struct {
	transfers []escrow.Transfer
	assets    []assetMove
	events    []Event
}

func (p *plan) pay(t escrow.Transfer) {
	p.transfers = append(p.transfers, t)
}

func (p *plan) emit(ev Event) {
	p.events = append(p.events, ev)
}

func (p *plan) moveAsset(a *core.Auction, from, to core.Principal) {
	p.assets = append(p.assets, assetMove{auctionID: a.ID, asset: a.AssetID, from: from, to: to})
}

// txn is the working state of one locked section.
type txn struct {
	plan
	now time.Time
	// settle lists auctions that entered settlement and must be finished
	// once the lock is released.
	settle []uint64
}

// run executes fn under the engine lock and then performs the interactions it
// planned. Pausable operations are rejected while the engine or the
// authorization provider reports pause.
func (e *Engine) run(ctx context.Context, pausable bool, fn func(tx *txn) error) error {
	if pausable && e.auth.IsGloballyPaused(ctx) {
		return core.ErrPaused
	}

	tx := &txn{now: e.clock.Now()}
	e.mu.Lock()
	if pausable && e.paused {
		e.mu.Unlock()
		return core.ErrPaused
	}
	err := fn(tx)
	e.mu.Unlock()
	if err != nil {
		return err
	}

	e.execute(ctx, &tx.plan)
	for _, id := range tx.settle {
		if err := e.finishSettlement(ctx, id, tx.now); err != nil {
			return err
		}
	}
	return nil
}

// execute publishes the planned events and performs asset moves and payouts.
// It must be called without holding the lock.
func (e *Engine) execute(ctx context.Context, p *plan) {
	for _, ev := range p.events {
		e.events.Publish(ev)
	}

	for _, mv := range p.assets {
		if err := e.assets.Transfer(ctx, mv.asset, mv.from, mv.to); err != nil {
			e.log.Warn().Err(err).
				Uint64("auction_id", mv.auctionID).
				Str("asset_id", string(mv.asset)).
				Str("to", string(mv.to)).
				Msg("asset transfer failed, left claimable")
			e.mu.Lock()
			if a, ok := e.auctions[mv.auctionID]; ok {
				a.AssetClaimed = false
			}
			e.mu.Unlock()
		}
	}

	for _, t := range p.transfers {
		_ = e.send(ctx, t)
	}
}

// send pushes one transfer over the payout rail and settles it in the ledger.
func (e *Engine) send(ctx context.Context, t escrow.Transfer) error {
	if err := e.payouts.Send(ctx, t.To, t.Amount); err != nil {
		if _, ferr := e.ledger.Fail(t.ID); ferr != nil {
			e.log.Error().Err(ferr).Str("transfer_id", t.ID).Msg("failed to record rejected payout")
			return err
		}
		e.log.Warn().Err(err).
			Uint64("auction_id", t.AuctionID).
			Str("to", string(t.To)).
			Str("amount", t.Amount.String()).
			Str("reason", string(t.Reason)).
			Msg("payout rejected, credited to pull balance")

		ev := newEvent(EventPayoutCredited, nil, e.clock.Now())
		ev.AuctionID = t.AuctionID
		ev.Principal = t.To
		ev.Amount = t.Amount
		ev.Detail = string(t.Reason)
		e.events.Publish(ev)
		return err
	}
	if err := e.ledger.Complete(t.ID); err != nil {
		e.log.Error().Err(err).Str("transfer_id", t.ID).Msg("failed to complete payout")
	}
	return nil
}

// authorize checks that p holds role or the admin role.
func (e *Engine) authorize(ctx context.Context, p core.Principal, role core.Role) error {
	if p == "" {
		return core.Authorizationf("caller is required")
	}
	if e.auth.HasRole(ctx, role, p) || e.auth.HasRole(ctx, core.RoleAdmin, p) {
		return nil
	}
	return core.Authorizationf("%s lacks role %s", p, role)
}

// lookupLocked returns a visible auction. Pending auctions are invisible.
func (e *Engine) lookupLocked(id uint64) (*core.Auction, error) {
	a, ok := e.auctions[id]
	if !ok || a.Status == core.StatusPending {
		return nil, fmt.Errorf("auction %d: %w", id, core.ErrNotFound)
	}
	return a, nil
}

// mutableLocked returns an auction that is not in the middle of settlement.
func (e *Engine) mutableLocked(id uint64) (*core.Auction, error) {
	a, err := e.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	if _, ok := e.closing[id]; ok {
		return nil, core.Statef("auction %d is being settled", id)
	}
	return a, nil
}

// releaseLocked releases value from escrow into the plan.
func (e *Engine) releaseLocked(tx *txn, a *core.Auction, holder, to core.Principal, amount decimal.Decimal, reason escrow.Reason) error {
	t, err := e.ledger.Release(a.ID, holder, to, amount, reason)
	if err != nil {
		return err
	}
	tx.pay(t)
	return nil
}

// refundLocked refunds holder's whole entry and emits a refund notification.
func (e *Engine) refundLocked(tx *txn, a *core.Auction, holder core.Principal, reason escrow.Reason) {
	t, ok := e.ledger.Refund(a.ID, holder, reason)
	if !ok {
		return
	}
	tx.pay(t)
	tx.emit(refundEvent(a, t, tx.now))
}

func refundEvent(a *core.Auction, t escrow.Transfer, at time.Time) Event {
	ev := newEvent(EventBidRefunded, a, at)
	ev.Principal = t.To
	ev.Amount = t.Amount
	ev.Detail = string(t.Reason)
	return ev
}

// setEndLocked moves the end time of an open auction forward.
func (e *Engine) setEndLocked(tx *txn, a *core.Auction, end time.Time, cause string) {
	if !end.After(a.EndTime) {
		return
	}
	a.EndTime = end
	e.ix.setEnd(a.ID, end)

	ev := newEvent(EventAuctionExtended, a, tx.now)
	ev.EndTime = end
	ev.Detail = cause
	tx.emit(ev)
}
