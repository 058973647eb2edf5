package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/assetauction/core"
	"github.com/cloudx-io/assetauction/escrow"
)

// SettleAuction closes an auction that is due. Anyone may call it. An auction
// without a qualifying bid is closed through the cancellation path and its
// record carries OutcomeCancelled.
func (e *Engine) SettleAuction(ctx context.Context, caller core.Principal, id uint64) (core.SettlementRecord, error) {
	err := e.run(ctx, true, func(tx *txn) error {
		a, err := e.mutableLocked(id)
		if err != nil {
			return err
		}
		if err := strategyFor(a.Format).settleable(e, a, tx.now); err != nil {
			return err
		}
		if a.Format == core.FormatSealed && a.Status == core.StatusActive {
			e.enterRevealLocked(tx, a)
		}
		e.log.Info().Uint64("auction_id", id).Str("caller", string(caller)).Msg("settlement triggered")
		e.beginSettleLocked(tx, a)
		return nil
	})
	if err != nil {
		return core.SettlementRecord{}, err
	}

	rec, _ := e.GetSettlementRecord(id)
	return rec, nil
}

// beginSettleLocked freezes an auction for settlement. Until finishSettlement
// runs, every mutation of the auction is rejected.
func (e *Engine) beginSettleLocked(tx *txn, a *core.Auction) {
	e.closing[a.ID] = struct{}{}
	tx.settle = append(tx.settle, a.ID)
}

type royaltyQuote struct {
	recipient core.Principal
	amount    decimal.Decimal
}

// quoteRoyalty asks the asset registry for a royalty on the sale. Registries
// without the capability, and failing lookups, yield no royalty.
func (e *Engine) quoteRoyalty(ctx context.Context, id uint64, asset core.AssetID, price decimal.Decimal) royaltyQuote {
	rp, ok := e.assets.(RoyaltyProvider)
	if !ok {
		return royaltyQuote{amount: decimal.Zero}
	}
	recipient, amount, err := rp.RoyaltyInfo(ctx, asset, price)
	if err != nil {
		e.log.Warn().Err(err).Uint64("auction_id", id).Str("asset_id", string(asset)).Msg("royalty lookup failed, paying none")
		return royaltyQuote{amount: decimal.Zero}
	}
	if recipient == "" || !amount.IsPositive() {
		return royaltyQuote{amount: decimal.Zero}
	}
	return royaltyQuote{recipient: recipient, amount: amount}
}

// finishSettlement completes a settlement begun under the lock. The royalty
// quote is an external call and is taken while the auction is frozen.
func (e *Engine) finishSettlement(ctx context.Context, id uint64, now time.Time) error {
	e.mu.Lock()
	a := e.auctions[id]
	sale := a.HasBid() && strategyFor(a.Format).qualifies(a)
	asset, price := a.AssetID, a.HighestBid
	e.mu.Unlock()

	q := royaltyQuote{amount: decimal.Zero}
	if sale {
		q = e.quoteRoyalty(ctx, id, asset, price)
	}

	tx := &txn{now: now}
	e.mu.Lock()
	err := e.settleLocked(tx, a, q)
	delete(e.closing, id)
	e.mu.Unlock()
	if err != nil {
		e.log.Error().Err(err).Uint64("auction_id", id).Msg("settlement failed")
		return err
	}

	e.execute(ctx, &tx.plan)
	return nil
}

// settleLocked performs the settlement effects: unrevealed deposits first,
// then either the sale split or the cancellation path.
func (e *Engine) settleLocked(tx *txn, a *core.Auction, q royaltyQuote) error {
	forfeited := decimal.Zero
	if a.Format == core.FormatSealed {
		var err error
		if forfeited, err = e.disposeUnrevealedLocked(tx, a); err != nil {
			return err
		}
	}

	if !a.HasBid() {
		return e.cancelLocked(tx, a, "no bids", forfeited)
	}
	if !strategyFor(a.Format).qualifies(a) {
		return e.cancelLocked(tx, a, "reserve not met", forfeited)
	}

	winner := a.HighestBidder
	split := core.SplitProceeds(a.HighestBid, e.fees.PlatformFeeBps, q.recipient, q.amount)
	if split.RoyaltyCapped {
		e.log.Warn().Uint64("auction_id", a.ID).
			Str("royalty_quoted", q.amount.String()).
			Str("royalty_paid", split.RoyaltyFee.String()).
			Msg("royalty capped at sale remainder")
	}

	if err := e.ledger.AccrueFee(a.ID, winner, split.PlatformFee); err != nil {
		return err
	}
	if split.RoyaltyFee.IsPositive() {
		if err := e.releaseLocked(tx, a, winner, split.RoyaltyRecipient, split.RoyaltyFee, escrow.ReasonRoyalty); err != nil {
			return err
		}
	}
	if split.SellerProceeds.IsPositive() {
		if err := e.releaseLocked(tx, a, winner, a.Seller, split.SellerProceeds, escrow.ReasonProceeds); err != nil {
			return err
		}
	}
	refunds := 0
	for _, t := range e.ledger.RefundAll(a.ID, escrow.ReasonRefund) {
		tx.pay(t)
		tx.emit(refundEvent(a, t, tx.now))
		refunds++
	}

	a.Status = core.StatusSettled
	a.SellerPaid = true
	a.AssetClaimed = true
	a.AssetRecipient = winner
	a.ClosedAt = tx.now
	e.ix.close(a.ID)
	delete(e.listed, a.AssetID)
	e.recordSettled(a.HighestBid, split.PlatformFee.Add(forfeited))

	rec := core.SettlementRecord{
		AuctionID:        a.ID,
		AssetID:          a.AssetID,
		Format:           a.Format,
		Outcome:          core.OutcomeSettled,
		Seller:           a.Seller,
		Winner:           winner,
		WinningBid:       a.HighestBid,
		PlatformFee:      split.PlatformFee,
		RoyaltyRecipient: split.RoyaltyRecipient,
		RoyaltyFee:       split.RoyaltyFee,
		SellerProceeds:   split.SellerProceeds,
		Refunds:          refunds,
		Forfeited:        forfeited,
		ClosedAt:         tx.now,
	}
	e.records[a.ID] = rec
	tx.moveAsset(a, e.custodian, winner)

	ev := newEvent(EventAuctionSettled, a, tx.now)
	ev.Principal = winner
	ev.Amount = a.HighestBid
	ev.Record = &rec
	tx.emit(ev)

	e.log.Info().Uint64("auction_id", a.ID).
		Str("format", a.Format.String()).
		Str("winner", string(winner)).
		Str("winning_bid", a.HighestBid.String()).
		Str("platform_fee", split.PlatformFee.String()).
		Str("royalty_fee", split.RoyaltyFee.String()).
		Str("seller_proceeds", split.SellerProceeds.String()).
		Msg("auction settled")
	return nil
}

// cancelLocked refunds every outstanding entry, returns the asset to the
// seller and closes the auction as cancelled.
func (e *Engine) cancelLocked(tx *txn, a *core.Auction, reason string, forfeited decimal.Decimal) error {
	refunds := 0
	for _, t := range e.ledger.RefundAll(a.ID, escrow.ReasonRefund) {
		tx.pay(t)
		tx.emit(refundEvent(a, t, tx.now))
		refunds++
	}

	a.Status = core.StatusCancelled
	a.CancelReason = reason
	a.AssetClaimed = true
	a.AssetRecipient = a.Seller
	a.ClosedAt = tx.now
	e.ix.close(a.ID)
	delete(e.listed, a.AssetID)
	e.recordCancelled(forfeited)

	rec := core.SettlementRecord{
		AuctionID:      a.ID,
		AssetID:        a.AssetID,
		Format:         a.Format,
		Outcome:        core.OutcomeCancelled,
		Seller:         a.Seller,
		WinningBid:     decimal.Zero,
		PlatformFee:    decimal.Zero,
		RoyaltyFee:     decimal.Zero,
		SellerProceeds: decimal.Zero,
		Refunds:        refunds,
		Forfeited:      forfeited,
		Reason:         reason,
		ClosedAt:       tx.now,
	}
	e.records[a.ID] = rec
	tx.moveAsset(a, e.custodian, a.Seller)

	ev := newEvent(EventAuctionCancelled, a, tx.now)
	ev.Principal = a.Seller
	ev.Detail = reason
	ev.Record = &rec
	tx.emit(ev)

	e.log.Info().Uint64("auction_id", a.ID).
		Str("format", a.Format.String()).
		Str("reason", reason).
		Int("refunds", refunds).
		Msg("auction cancelled")
	return nil
}
