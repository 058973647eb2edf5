package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/assetauction/core"
)

// CreateAuction lists an asset owned by seller and takes custody of it.
//
// The auction is inserted as Pending, invisible to every read and operation,
// while the asset moves into custody. A failed custody transfer removes it
// again and returns a funds error.
func (e *Engine) CreateAuction(ctx context.Context, seller core.Principal, p core.CreateParams) (uint64, error) {
	if seller == "" {
		return 0, core.Validationf("seller is required")
	}
	if err := validateCreate(p); err != nil {
		return 0, err
	}
	if e.auth.IsGloballyPaused(ctx) {
		return 0, core.ErrPaused
	}

	owner, err := e.assets.OwnerOf(ctx, p.AssetID)
	if err != nil {
		return 0, core.Validationf("asset %s: %v", p.AssetID, err)
	}
	if owner != seller {
		return 0, core.Authorizationf("%s does not own asset %s", seller, p.AssetID)
	}

	now := e.clock.Now()
	e.mu.Lock()
	if e.paused {
		e.mu.Unlock()
		return 0, core.ErrPaused
	}
	if listedIn, ok := e.listed[p.AssetID]; ok {
		e.mu.Unlock()
		return 0, core.Statef("asset %s is already listed in auction %d", p.AssetID, listedIn)
	}
	e.nextID++
	a := &core.Auction{
		ID:               e.nextID,
		AssetID:          p.AssetID,
		AssetRegistryRef: e.registryRef,
		Seller:           seller,
		Format:           p.Format,
		Status:           core.StatusPending,
		StartPrice:       p.StartPrice,
		ReservePrice:     p.ReservePrice,
		BuyNowPrice:      p.BuyNowPrice,
		StartTime:        now,
		EndTime:          now.Add(p.Duration),
		HighestBid:       decimal.Zero,
		BidIncrement:     p.BidIncrement,
		CreatedAt:        now,
	}
	switch p.Format {
	case core.FormatAscending, core.FormatReserveGated:
		a.ExtensionSeconds = int64(e.fees.AntiSnipeWindow.Seconds())
	case core.FormatSealed:
		a.RevealDeadline = a.EndTime.Add(e.fees.RevealWindow)
	}
	e.auctions[a.ID] = a
	e.listed[a.AssetID] = a.ID
	e.mu.Unlock()

	if err := e.assets.Transfer(ctx, p.AssetID, seller, e.custodian); err != nil {
		e.mu.Lock()
		delete(e.auctions, a.ID)
		delete(e.listed, a.AssetID)
		e.mu.Unlock()
		e.log.Warn().Err(err).Str("asset_id", string(p.AssetID)).Str("seller", string(seller)).Msg("custody transfer failed, auction discarded")
		return 0, core.Fundsf("custody transfer of asset %s failed: %v", p.AssetID, err)
	}

	tx := &txn{now: now}
	e.mu.Lock()
	a.Status = core.StatusActive
	e.ix.addAuction(a)
	e.recordCreated(a.Format)
	ev := newEvent(EventAuctionCreated, a, now)
	ev.Principal = seller
	ev.Amount = a.StartPrice
	ev.EndTime = a.EndTime
	tx.emit(ev)
	e.mu.Unlock()

	e.execute(ctx, &tx.plan)
	e.log.Info().Uint64("auction_id", a.ID).
		Str("format", a.Format.String()).
		Str("asset_id", string(a.AssetID)).
		Str("seller", string(seller)).
		Time("end_time", a.EndTime).
		Msg("auction created")
	return a.ID, nil
}

// CancelAuction lets the seller withdraw an open auction. Every outstanding
// deposit is refunded and the asset goes back to the seller.
func (e *Engine) CancelAuction(ctx context.Context, caller core.Principal, id uint64, reason string) error {
	return e.run(ctx, true, func(tx *txn) error {
		a, err := e.mutableLocked(id)
		if err != nil {
			return err
		}
		if caller != a.Seller {
			return core.Authorizationf("only the seller may cancel auction %d", id)
		}
		if !a.Status.Open() {
			return core.Statef("auction %d is %s", id, a.Status)
		}
		if reason == "" {
			reason = "cancelled by seller"
		}
		return e.cancelLocked(tx, a, reason, decimal.Zero)
	})
}

// EmergencyCancel cancels any open auction without seller consent. It is
// allowed while paused.
func (e *Engine) EmergencyCancel(ctx context.Context, caller core.Principal, id uint64, reason string) error {
	if err := e.authorize(ctx, caller, core.RoleEmergency); err != nil {
		return err
	}
	return e.run(ctx, false, func(tx *txn) error {
		a, err := e.mutableLocked(id)
		if err != nil {
			return err
		}
		if !a.Status.Open() {
			return core.Statef("auction %d is %s", id, a.Status)
		}
		if reason == "" {
			reason = "emergency cancellation"
		}
		e.log.Warn().Uint64("auction_id", id).Str("caller", string(caller)).Str("reason", reason).Msg("emergency cancel")
		return e.cancelLocked(tx, a, fmt.Sprintf("emergency: %s", reason), decimal.Zero)
	})
}

// ExtendAuction pushes the end of an open auction back by extra. Sealed
// auctions move their reveal deadline by the same amount.
func (e *Engine) ExtendAuction(ctx context.Context, caller core.Principal, id uint64, extraSeconds int64) error {
	if err := e.authorize(ctx, caller, core.RoleOperator); err != nil {
		return err
	}
	if extraSeconds <= 0 {
		return core.Validationf("extension must be positive, got %ds", extraSeconds)
	}
	return e.run(ctx, true, func(tx *txn) error {
		extra := secondsToDuration(extraSeconds)
		if extra > e.fees.MaxExtension {
			return core.Validationf("extension %s exceeds maximum %s", extra, e.fees.MaxExtension)
		}
		a, err := e.mutableLocked(id)
		if err != nil {
			return err
		}
		if !a.Status.Open() {
			return core.Statef("auction %d is %s", id, a.Status)
		}
		if a.Format == core.FormatSealed {
			a.RevealDeadline = a.RevealDeadline.Add(extra)
		}
		e.setEndLocked(tx, a, a.EndTime.Add(extra), "operator")
		e.log.Info().Uint64("auction_id", id).Dur("extra", extra).Time("end_time", a.EndTime).Msg("auction extended")
		return nil
	})
}

// StartRevealPhase moves a sealed auction whose bidding has closed into the
// reveal phase. Anyone may call it.
func (e *Engine) StartRevealPhase(ctx context.Context, caller core.Principal, id uint64) error {
	return e.run(ctx, true, func(tx *txn) error {
		a, err := e.mutableLocked(id)
		if err != nil {
			return err
		}
		return strategyFor(a.Format).startReveal(e, tx, a)
	})
}

// PlaceBid places an open bid on an ascending or reserve-gated auction. The
// bid value is attached to the call and held in escrow.
func (e *Engine) PlaceBid(ctx context.Context, bidder core.Principal, id uint64, amount decimal.Decimal) error {
	return e.run(ctx, true, func(tx *txn) error {
		a, err := e.mutableLocked(id)
		if err != nil {
			return err
		}
		return strategyFor(a.Format).placeBid(e, tx, a, bidder, amount)
	})
}

// BuyNowDescending buys a descending auction at its current price. Any
// payment above the price is refunded in the same call.
func (e *Engine) BuyNowDescending(ctx context.Context, buyer core.Principal, id uint64, payment decimal.Decimal) error {
	return e.run(ctx, true, func(tx *txn) error {
		a, err := e.mutableLocked(id)
		if err != nil {
			return err
		}
		return strategyFor(a.Format).buyNow(e, tx, a, buyer, payment)
	})
}

// SubmitCommitment records a sealed bid. deposit is the hidden bid amount and
// is held in escrow until the reveal.
func (e *Engine) SubmitCommitment(ctx context.Context, bidder core.Principal, id uint64, commitHash string, deposit decimal.Decimal) error {
	return e.run(ctx, true, func(tx *txn) error {
		a, err := e.mutableLocked(id)
		if err != nil {
			return err
		}
		return strategyFor(a.Format).submitCommitment(e, tx, a, bidder, commitHash, deposit)
	})
}

// RevealBid opens a sealed bid. A mismatching hash returns
// core.ErrInvalidReveal and changes nothing.
func (e *Engine) RevealBid(ctx context.Context, bidder core.Principal, id uint64, amount decimal.Decimal, nonce string) error {
	return e.run(ctx, true, func(tx *txn) error {
		a, err := e.mutableLocked(id)
		if err != nil {
			return err
		}
		return strategyFor(a.Format).revealBid(e, tx, a, bidder, amount, nonce)
	})
}
