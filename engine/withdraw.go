package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/assetauction/core"
	"github.com/cloudx-io/assetauction/escrow"
)

// Withdraw sends caller's whole pull balance. A rejected send re-credits it.
func (e *Engine) Withdraw(ctx context.Context, caller core.Principal) (decimal.Decimal, error) {
	var t escrow.Transfer
	err := e.run(ctx, true, func(tx *txn) error {
		var err error
		t, err = e.ledger.WithdrawCredit(caller)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}

	if err := e.send(ctx, t); err != nil {
		return decimal.Zero, core.Fundsf("withdrawal to %s failed: %v", caller, err)
	}
	ev := newEvent(EventWithdrawal, nil, e.clock.Now())
	ev.Principal = caller
	ev.Amount = t.Amount
	e.events.Publish(ev)
	e.log.Info().Str("principal", string(caller)).Str("amount", t.Amount.String()).Msg("pull balance withdrawn")
	return t.Amount, nil
}

// ClaimAsset retries the custody transfer of a closed auction whose asset
// could not be delivered. Only the entitled principal may claim.
func (e *Engine) ClaimAsset(ctx context.Context, caller core.Principal, id uint64) error {
	var mv assetMove
	err := e.run(ctx, true, func(tx *txn) error {
		a, err := e.lookupLocked(id)
		if err != nil {
			return err
		}
		if !a.Status.Terminal() {
			return core.Statef("auction %d is %s", id, a.Status)
		}
		if a.AssetClaimed {
			return core.Statef("asset of auction %d already delivered", id)
		}
		if caller != a.AssetRecipient {
			return core.Authorizationf("%s is not entitled to the asset of auction %d", caller, id)
		}
		a.AssetClaimed = true
		mv = assetMove{auctionID: id, asset: a.AssetID, from: e.custodian, to: caller}
		return nil
	})
	if err != nil {
		return err
	}

	if err := e.assets.Transfer(ctx, mv.asset, mv.from, mv.to); err != nil {
		e.mu.Lock()
		e.auctions[id].AssetClaimed = false
		e.mu.Unlock()
		return core.Fundsf("asset transfer for auction %d failed: %v", id, err)
	}

	e.mu.Lock()
	ev := newEvent(EventAssetClaimed, e.auctions[id], e.clock.Now())
	e.mu.Unlock()
	ev.Principal = caller
	e.events.Publish(ev)
	e.log.Info().Uint64("auction_id", id).Str("principal", string(caller)).Msg("asset claimed")
	return nil
}
