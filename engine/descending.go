package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/assetauction/core"
	"github.com/cloudx-io/assetauction/escrow"
)

// descending is a Dutch auction: the first caller paying the current price
// wins.
type descending struct {
	unsupported
}

func (s descending) validate(p core.CreateParams) error {
	if !p.ReservePrice.LessThan(p.StartPrice) {
		return core.Validationf("reserve price %s must be below start price %s", p.ReservePrice, p.StartPrice)
	}
	if !p.BuyNowPrice.IsZero() {
		return core.Validationf("%s auctions take no buy-now price", s.format)
	}
	if !p.BidIncrement.IsZero() {
		return core.Validationf("%s auctions take no bid increment", s.format)
	}
	return nil
}

func (descending) buyNow(e *Engine, tx *txn, a *core.Auction, buyer core.Principal, payment decimal.Decimal) error {
	if err := checkActive(a); err != nil {
		return err
	}
	if err := checkBidder(a, buyer); err != nil {
		return err
	}
	if err := core.ValidateAmount("payment", payment, false); err != nil {
		return err
	}
	if !tx.now.Before(a.EndTime) {
		return core.Timingf("auction %d ended at %s", a.ID, a.EndTime.Format(time.RFC3339))
	}
	price := core.DescendingPrice(a.StartPrice, a.ReservePrice, a.StartTime, a.EndTime, tx.now)
	if !price.IsPositive() {
		return core.Timingf("auction %d has no remaining price", a.ID)
	}
	if payment.LessThan(price) {
		return core.Fundsf("payment %s below current price %s", payment, price)
	}

	if err := e.ledger.Deposit(a.ID, buyer, payment); err != nil {
		return err
	}
	if excess := payment.Sub(price); excess.IsPositive() {
		if err := e.releaseLocked(tx, a, buyer, buyer, excess, escrow.ReasonExcess); err != nil {
			return err
		}
		tx.emit(refundEvent(a, tx.transfers[len(tx.transfers)-1], tx.now))
	}

	a.HighestBidder = buyer
	a.HighestBid = price
	a.BidCount++
	a.ReserveReached = true
	a.EndedEarly = true
	e.ix.addBidder(a.ID, buyer)

	ev := newEvent(EventBidPlaced, a, tx.now)
	ev.Principal = buyer
	ev.Amount = price
	tx.emit(ev)

	e.beginSettleLocked(tx, a)
	return nil
}

// settleable lets an unsold descending auction close once its curve has run
// out; a sold one is settled in the buying call.
func (descending) settleable(_ *Engine, a *core.Auction, now time.Time) error {
	if err := checkSettleable(a); err != nil {
		return err
	}
	if !a.Ended(now) {
		return core.Timingf("auction %d ends at %s", a.ID, a.EndTime.Format(time.RFC3339))
	}
	return nil
}
