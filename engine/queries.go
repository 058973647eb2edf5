package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/assetauction/core"
)

// GetAuction returns a copy of a visible auction.
func (e *Engine) GetAuction(id uint64) (core.Auction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := e.lookupLocked(id)
	if err != nil {
		return core.Auction{}, err
	}
	return *a, nil
}

// GetCurrentDescendingPrice returns the price a buyer would pay now.
func (e *Engine) GetCurrentDescendingPrice(id uint64) (decimal.Decimal, error) {
	now := e.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := e.lookupLocked(id)
	if err != nil {
		return decimal.Zero, err
	}
	if a.Format != core.FormatDescending {
		return decimal.Zero, core.Validationf("auction %d is %s, not descending", id, a.Format)
	}
	if a.Status != core.StatusActive {
		return decimal.Zero, core.Statef("auction %d is %s", id, a.Status)
	}
	return core.DescendingPrice(a.StartPrice, a.ReservePrice, a.StartTime, a.EndTime, now), nil
}

// GetUserAuctions returns the auctions listed by seller, oldest first.
func (e *Engine) GetUserAuctions(seller core.Principal) []core.Auction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.collectLocked(e.ix.bySeller[seller])
}

// GetUserBids returns the auctions bidder has bid or committed on, in the
// order of their first bid.
func (e *Engine) GetUserBids(bidder core.Principal) []core.Auction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.collectLocked(e.ix.byBidder[bidder])
}

// GetActiveAuctions returns every auction still open (Active or Revealing).
func (e *Engine) GetActiveAuctions() []core.Auction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.collectLocked(e.ix.open())
}

// GetAuctionsByFormat returns every auction of format f, oldest first.
func (e *Engine) GetAuctionsByFormat(f core.Format) ([]core.Auction, error) {
	if !f.Valid() {
		return nil, core.Validationf("unsupported auction format %d", uint8(f))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.collectLocked(e.ix.byFormat[f]), nil
}

// GetEndingSoon returns active auctions whose bidding closes within window,
// soonest first.
func (e *Engine) GetEndingSoon(window time.Duration) []core.Auction {
	now := e.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]core.Auction, 0)
	for _, id := range e.ix.endingWithin(now, window) {
		a := e.auctions[id]
		if a.Status != core.StatusActive || a.EndedEarly {
			continue
		}
		out = append(out, *a)
	}
	return out
}

// HasUserBid reports whether bidder has bid or committed on auction id.
func (e *Engine) HasUserBid(id uint64, bidder core.Principal) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ix.hasBid(id, bidder)
}

// GetCommitment returns bidder's sealed commitment on auction id.
func (e *Engine) GetCommitment(id uint64, bidder core.Principal) (core.Commitment, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.commitments[id][bidder]
	if !ok {
		return core.Commitment{}, false
	}
	return *c, true
}

// GetSettlementRecord returns how auction id was closed.
func (e *Engine) GetSettlementRecord(id uint64) (core.SettlementRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.records[id]
	return rec, ok
}

// PendingWithdrawal returns p's pull balance.
func (e *Engine) PendingWithdrawal(p core.Principal) decimal.Decimal {
	return e.ledger.Credit(p)
}

// PlatformFeeBalance returns the accrued platform fees.
func (e *Engine) PlatformFeeBalance() decimal.Decimal {
	return e.ledger.PlatformFees()
}

// EscrowBalance returns all value held by the engine.
func (e *Engine) EscrowBalance() decimal.Decimal {
	return e.ledger.Balance()
}

// CheckInvariants verifies the ledger books and the per-auction record
// invariants.
func (e *Engine) CheckInvariants() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ledger.CheckInvariant(); err != nil {
		return err
	}
	for id, a := range e.auctions {
		if a.HighestBid.IsZero() != (a.HighestBidder == "") {
			return fmt.Errorf("auction %d: highest bid %s with bidder %q", id, a.HighestBid, a.HighestBidder)
		}
		if a.Status.Open() && a.Format != core.FormatSealed {
			held := decimal.Zero
			for _, amount := range e.ledger.Entries(id) {
				held = held.Add(amount)
			}
			if !held.Equal(a.HighestBid) {
				return fmt.Errorf("auction %d: escrow holds %s for highest bid %s", id, held, a.HighestBid)
			}
		}
	}
	return nil
}

func (e *Engine) collectLocked(ids []uint64) []core.Auction {
	out := make([]core.Auction, 0, len(ids))
	for _, id := range ids {
		if a, ok := e.auctions[id]; ok && a.Status != core.StatusPending {
			out = append(out, *a)
		}
	}
	return out
}
