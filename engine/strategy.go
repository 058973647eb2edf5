package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/assetauction/core"
)

// strategy holds the format-specific rules. Every method runs under the
// engine lock and must finish all checks before its first effect.
type strategy interface {
	validate(p core.CreateParams) error
	placeBid(e *Engine, tx *txn, a *core.Auction, bidder core.Principal, amount decimal.Decimal) error
	buyNow(e *Engine, tx *txn, a *core.Auction, buyer core.Principal, payment decimal.Decimal) error
	submitCommitment(e *Engine, tx *txn, a *core.Auction, bidder core.Principal, hash string, deposit decimal.Decimal) error
	startReveal(e *Engine, tx *txn, a *core.Auction) error
	revealBid(e *Engine, tx *txn, a *core.Auction, bidder core.Principal, amount decimal.Decimal, nonce string) error
	// settleable reports whether settlement may start at now.
	settleable(e *Engine, a *core.Auction, now time.Time) error
	// qualifies reports whether the leading bid may buy the asset.
	qualifies(a *core.Auction) bool
}

var strategies = map[core.Format]strategy{
	core.FormatAscending:    ascending{unsupported{core.FormatAscending}},
	core.FormatDescending:   descending{unsupported{core.FormatDescending}},
	core.FormatSealed:       sealed{unsupported{core.FormatSealed}},
	core.FormatReserveGated: reserveGated{ascending{unsupported{core.FormatReserveGated}}},
}

func strategyFor(f core.Format) strategy {
	return strategies[f]
}

// unsupported rejects every format-specific operation. Strategies embed it
// and override what their format allows.
type unsupported struct {
	format core.Format
}

func (u unsupported) placeBid(_ *Engine, _ *txn, a *core.Auction, _ core.Principal, _ decimal.Decimal) error {
	return core.Statef("auction %d is %s and does not accept bids", a.ID, u.format)
}

func (u unsupported) buyNow(_ *Engine, _ *txn, a *core.Auction, _ core.Principal, _ decimal.Decimal) error {
	return core.Statef("auction %d is %s and has no descending buy-now", a.ID, u.format)
}

func (u unsupported) submitCommitment(_ *Engine, _ *txn, a *core.Auction, _ core.Principal, _ string, _ decimal.Decimal) error {
	return core.Statef("auction %d is %s and does not accept commitments", a.ID, u.format)
}

func (u unsupported) startReveal(_ *Engine, _ *txn, a *core.Auction) error {
	return core.Statef("auction %d is %s and has no reveal phase", a.ID, u.format)
}

func (u unsupported) revealBid(_ *Engine, _ *txn, a *core.Auction, _ core.Principal, _ decimal.Decimal, _ string) error {
	return core.Statef("auction %d is %s and has no reveal phase", a.ID, u.format)
}

func (unsupported) qualifies(*core.Auction) bool {
	return true
}

// validateCreate applies the rules shared by every format, then the format's
// own rules.
func validateCreate(p core.CreateParams) error {
	if p.AssetID == "" {
		return core.Validationf("asset id is required")
	}
	s := strategyFor(p.Format)
	if s == nil {
		return core.Validationf("unsupported auction format %d", uint8(p.Format))
	}
	if err := core.ValidateAmount("start price", p.StartPrice, false); err != nil {
		return err
	}
	if err := core.ValidateAmount("reserve price", p.ReservePrice, true); err != nil {
		return err
	}
	if err := core.ValidateAmount("buy-now price", p.BuyNowPrice, true); err != nil {
		return err
	}
	if err := core.ValidateAmount("bid increment", p.BidIncrement, true); err != nil {
		return err
	}
	if p.Duration < core.MinAuctionDuration || p.Duration > core.MaxAuctionDuration {
		return core.Validationf("duration %s outside [%s, %s]", p.Duration, core.MinAuctionDuration, core.MaxAuctionDuration)
	}
	return s.validate(p)
}

func checkBidder(a *core.Auction, bidder core.Principal) error {
	if bidder == "" {
		return core.Validationf("bidder is required")
	}
	if bidder == a.Seller {
		return core.Authorizationf("seller cannot bid on own auction %d", a.ID)
	}
	return nil
}

func checkActive(a *core.Auction) error {
	if a.Status != core.StatusActive {
		return core.Statef("auction %d is %s", a.ID, a.Status)
	}
	return nil
}

func checkSettleable(a *core.Auction) error {
	if a.Status.Terminal() {
		return core.Statef("auction %d is already %s", a.ID, a.Status)
	}
	return nil
}
