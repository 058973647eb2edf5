package engine

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/assetauction/core"
	"github.com/cloudx-io/assetauction/escrow"
)

// sealed is commit/reveal. Deposits are held per bidder while bidding is
// open; amounts become known only in the reveal phase.
type sealed struct {
	unsupported
}

func (s sealed) validate(p core.CreateParams) error {
	if !p.ReservePrice.IsZero() {
		return core.Validationf("%s auctions take no reserve price", s.format)
	}
	if !p.BuyNowPrice.IsZero() {
		return core.Validationf("%s auctions take no buy-now price", s.format)
	}
	if !p.BidIncrement.IsZero() {
		return core.Validationf("%s auctions take no bid increment", s.format)
	}
	return nil
}

func (sealed) submitCommitment(e *Engine, tx *txn, a *core.Auction, bidder core.Principal, hash string, deposit decimal.Decimal) error {
	if err := checkActive(a); err != nil {
		return err
	}
	if err := checkBidder(a, bidder); err != nil {
		return err
	}
	hash = strings.ToLower(strings.TrimSpace(hash))
	if !core.ValidCommitHash(hash) {
		return core.Validationf("commitment must be a hex-encoded SHA-256 digest")
	}
	if err := core.ValidateAmount("deposit", deposit, false); err != nil {
		return err
	}
	if !tx.now.Before(a.EndTime) {
		return core.Timingf("bidding on auction %d closed at %s", a.ID, a.EndTime.Format(time.RFC3339))
	}
	if _, ok := e.commitments[a.ID][bidder]; ok {
		return core.Statef("%s already committed to auction %d", bidder, a.ID)
	}

	if err := e.ledger.Deposit(a.ID, bidder, deposit); err != nil {
		return err
	}
	if e.commitments[a.ID] == nil {
		e.commitments[a.ID] = make(map[core.Principal]*core.Commitment)
	}
	e.commitments[a.ID][bidder] = &core.Commitment{
		Bidder:      bidder,
		CommitHash:  hash,
		LockedValue: deposit,
		CommittedAt: tx.now,
	}
	e.commitOrder[a.ID] = append(e.commitOrder[a.ID], bidder)
	a.BidCount++
	e.ix.addBidder(a.ID, bidder)

	ev := newEvent(EventCommitmentSubmitted, a, tx.now)
	ev.Principal = bidder
	ev.Amount = deposit
	tx.emit(ev)
	return nil
}

func (sealed) startReveal(e *Engine, tx *txn, a *core.Auction) error {
	if err := checkActive(a); err != nil {
		return err
	}
	if tx.now.Before(a.EndTime) {
		return core.Timingf("bidding on auction %d is open until %s", a.ID, a.EndTime.Format(time.RFC3339))
	}
	e.enterRevealLocked(tx, a)
	return nil
}

func (sealed) revealBid(e *Engine, tx *txn, a *core.Auction, bidder core.Principal, amount decimal.Decimal, nonce string) error {
	switch a.Status {
	case core.StatusRevealing:
	case core.StatusActive:
		return core.Timingf("auction %d has not entered the reveal phase", a.ID)
	default:
		return core.Statef("auction %d is %s", a.ID, a.Status)
	}
	if !tx.now.Before(a.RevealDeadline) {
		return core.Timingf("reveal window of auction %d closed at %s", a.ID, a.RevealDeadline.Format(time.RFC3339))
	}
	c, ok := e.commitments[a.ID][bidder]
	if !ok {
		return core.Statef("%s has no commitment in auction %d", bidder, a.ID)
	}
	if c.Revealed {
		return core.Statef("%s already revealed in auction %d", bidder, a.ID)
	}
	if err := core.ValidateAmount("amount", amount, false); err != nil {
		return err
	}
	if core.ComputeCommitHash(amount, nonce, bidder) != c.CommitHash {
		return core.ErrInvalidReveal
	}
	if !amount.Equal(c.LockedValue) {
		return core.Fundsf("revealed amount %s differs from deposit %s", amount, c.LockedValue)
	}

	c.Revealed = true
	c.RevealedAmount = amount

	ev := newEvent(EventBidRevealed, a, tx.now)
	ev.Principal = bidder
	ev.Amount = amount
	tx.emit(ev)

	if amount.GreaterThan(a.HighestBid) && amount.GreaterThanOrEqual(a.StartPrice) {
		prev := a.HighestBidder
		a.HighestBidder = bidder
		a.HighestBid = amount
		a.ReserveReached = true
		if prev != "" {
			e.refundLocked(tx, a, prev, escrow.ReasonOutbid)
		}
		return nil
	}
	e.refundLocked(tx, a, bidder, escrow.ReasonRefund)
	return nil
}

// settleable allows settlement once every commitment is revealed or the
// reveal window has closed. An auction nobody moved into the reveal phase
// becomes settleable when its reveal window would have closed.
func (sealed) settleable(e *Engine, a *core.Auction, now time.Time) error {
	if err := checkSettleable(a); err != nil {
		return err
	}
	if !now.Before(a.RevealDeadline) {
		return nil
	}
	if a.Status == core.StatusActive {
		if now.Before(a.EndTime) {
			return core.Timingf("auction %d ends at %s", a.ID, a.EndTime.Format(time.RFC3339))
		}
		return core.Statef("auction %d must enter the reveal phase before settlement", a.ID)
	}
	if e.unrevealedLocked(a.ID) > 0 {
		return core.Timingf("reveal window of auction %d is open until %s", a.ID, a.RevealDeadline.Format(time.RFC3339))
	}
	return nil
}

func (e *Engine) enterRevealLocked(tx *txn, a *core.Auction) {
	a.Status = core.StatusRevealing
	ev := newEvent(EventRevealPhaseStarted, a, tx.now)
	ev.EndTime = a.RevealDeadline
	tx.emit(ev)
	e.log.Info().Uint64("auction_id", a.ID).Time("reveal_deadline", a.RevealDeadline).Msg("reveal phase started")
}

func (e *Engine) unrevealedLocked(id uint64) int {
	n := 0
	for _, c := range e.commitments[id] {
		if !c.Revealed {
			n++
		}
	}
	return n
}

// disposeUnrevealedLocked applies the unrevealed-deposit policy at settlement
// and returns the amount forfeited to the platform.
func (e *Engine) disposeUnrevealedLocked(tx *txn, a *core.Auction) (decimal.Decimal, error) {
	forfeited := decimal.Zero
	for _, bidder := range e.commitOrder[a.ID] {
		c := e.commitments[a.ID][bidder]
		if c.Revealed {
			continue
		}
		held := e.ledger.Entry(a.ID, bidder)
		if !held.IsPositive() {
			continue
		}
		if e.fees.UnrevealedPolicy == core.UnrevealedForfeit {
			if err := e.ledger.AccrueFee(a.ID, bidder, held); err != nil {
				return decimal.Zero, err
			}
			forfeited = forfeited.Add(held)
			continue
		}
		e.refundLocked(tx, a, bidder, escrow.ReasonRefund)
	}
	if forfeited.IsPositive() {
		e.log.Info().Uint64("auction_id", a.ID).Str("amount", forfeited.String()).Msg("unrevealed deposits forfeited")
	}
	return forfeited, nil
}
