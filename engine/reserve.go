package engine

import (
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/assetauction/core"
)

// reserveGated is ascending with a reserve: bids below it are accepted, but
// the auction only sells once some bid has met it.
type reserveGated struct {
	ascending
}

func (s reserveGated) validate(p core.CreateParams) error {
	if p.ReservePrice.LessThan(p.StartPrice) {
		return core.Validationf("reserve price %s must be at least start price %s", p.ReservePrice, p.StartPrice)
	}
	if p.BuyNowPrice.IsPositive() {
		if !p.BuyNowPrice.GreaterThan(p.StartPrice) {
			return core.Validationf("buy-now price %s must exceed start price %s", p.BuyNowPrice, p.StartPrice)
		}
		if p.BuyNowPrice.LessThan(p.ReservePrice) {
			return core.Validationf("buy-now price %s must be at least reserve price %s", p.BuyNowPrice, p.ReservePrice)
		}
	}
	return nil
}

func (s reserveGated) placeBid(e *Engine, tx *txn, a *core.Auction, bidder core.Principal, amount decimal.Decimal) error {
	reached := a.ReserveReached
	if err := s.ascending.placeBid(e, tx, a, bidder, amount); err != nil {
		return err
	}
	if !reached && a.ReserveReached {
		ev := newEvent(EventReserveReached, a, tx.now)
		ev.Principal = bidder
		ev.Amount = amount
		tx.emit(ev)
		e.log.Info().Uint64("auction_id", a.ID).Str("bid", amount.String()).Msg("reserve reached")
	}
	return nil
}

func (reserveGated) qualifies(a *core.Auction) bool {
	return a.ReserveReached
}
