package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/assetauction/core"
	"github.com/cloudx-io/assetauction/escrow"
)

// ascending is open outcry: every bid must beat the leader by the increment
// rule and the displaced leader is refunded at once.
type ascending struct {
	unsupported
}

func (s ascending) validate(p core.CreateParams) error {
	if !p.ReservePrice.IsZero() {
		return core.Validationf("%s auctions take no reserve price", s.format)
	}
	if p.BuyNowPrice.IsPositive() && !p.BuyNowPrice.GreaterThan(p.StartPrice) {
		return core.Validationf("buy-now price %s must exceed start price %s", p.BuyNowPrice, p.StartPrice)
	}
	return nil
}

func (ascending) placeBid(e *Engine, tx *txn, a *core.Auction, bidder core.Principal, amount decimal.Decimal) error {
	if err := checkActive(a); err != nil {
		return err
	}
	if err := checkBidder(a, bidder); err != nil {
		return err
	}
	if err := core.ValidateAmount("bid", amount, false); err != nil {
		return err
	}
	if a.Ended(tx.now) {
		return core.Timingf("auction %d ended at %s", a.ID, a.EndTime.Format(time.RFC3339))
	}
	if !core.BidMeetsIncrement(amount, a.HighestBid, a.StartPrice, a.BidIncrement, e.fees.MinBidIncrementBps) {
		next := core.MinNextBid(a.HighestBid, a.StartPrice, a.BidIncrement, e.fees.MinBidIncrementBps)
		return core.Validationf("bid %s below minimum %s", amount, next)
	}

	if err := e.ledger.Deposit(a.ID, bidder, amount); err != nil {
		return err
	}
	prevBidder, prevBid := a.HighestBidder, a.HighestBid
	a.HighestBidder = bidder
	a.HighestBid = amount
	a.BidCount++
	if !a.ReserveReached && core.MeetsReserve(amount, a.ReservePrice) {
		a.ReserveReached = true
	}
	e.ix.addBidder(a.ID, bidder)

	ev := newEvent(EventBidPlaced, a, tx.now)
	ev.Principal = bidder
	ev.Amount = amount
	tx.emit(ev)

	window := time.Duration(a.ExtensionSeconds) * time.Second
	if window > 0 && a.EndTime.Sub(tx.now) < window {
		e.setEndLocked(tx, a, tx.now.Add(window), "anti-snipe")
	}

	if prevBidder != "" {
		if err := e.releaseLocked(tx, a, prevBidder, prevBidder, prevBid, escrow.ReasonOutbid); err != nil {
			return err
		}
		t := tx.transfers[len(tx.transfers)-1]
		tx.emit(refundEvent(a, t, tx.now))
	}

	if a.BuyNowPrice.IsPositive() && amount.GreaterThanOrEqual(a.BuyNowPrice) {
		a.EndedEarly = true
		e.beginSettleLocked(tx, a)
	}
	return nil
}

func (ascending) settleable(_ *Engine, a *core.Auction, now time.Time) error {
	if err := checkSettleable(a); err != nil {
		return err
	}
	if !a.Ended(now) {
		return core.Timingf("auction %d ends at %s", a.ID, a.EndTime.Format(time.RFC3339))
	}
	return nil
}
