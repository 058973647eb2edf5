// Package escrow holds value on behalf of auction participants.
//
// The ledger is the only component that moves value. Outbound value leaves in
// two steps: Release/Refund/Withdraw* reserve an in-flight Transfer, and the
// caller reports the outcome of the external send with Complete or Fail. A
// failed send is credited to the recipient's pull balance.
package escrow

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/assetauction/core"
)

// ErrInvariant is returned by CheckInvariant when the books do not balance.
var ErrInvariant = errors.New("escrow invariant violated")

// Reason tags why value leaves escrow.
type Reason string

const (
	ReasonOutbid       Reason = "outbid"
	ReasonRefund       Reason = "refund"
	ReasonExcess       Reason = "excess"
	ReasonProceeds     Reason = "proceeds"
	ReasonRoyalty      Reason = "royalty"
	ReasonWithdrawal   Reason = "withdrawal"
	ReasonPlatformFees Reason = "platform_fees"
)

// Transfer is an outbound movement of value awaiting its external send.
type Transfer struct {
	ID        string          `json:"id"`
	AuctionID uint64          `json:"auction_id,omitempty"`
	To        core.Principal  `json:"to"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    Reason          `json:"reason"`
}

// Account tracks the per-auction totals used by the conservation invariant.
type Account struct {
	Deposited decimal.Decimal `json:"deposited"`
	Released  decimal.Decimal `json:"released"`
}

// Ledger tracks escrow entries per (auction, holder), pull credits, accrued
// platform fees and in-flight transfers.
type Ledger struct {
	mu           sync.Mutex
	balance      decimal.Decimal
	entries      map[uint64]map[core.Principal]decimal.Decimal
	accounts     map[uint64]*Account
	credits      map[core.Principal]decimal.Decimal
	platformFees decimal.Decimal
	inFlight     map[string]Transfer
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		entries:  make(map[uint64]map[core.Principal]decimal.Decimal),
		accounts: make(map[uint64]*Account),
		credits:  make(map[core.Principal]decimal.Decimal),
		inFlight: make(map[string]Transfer),
	}
}

// Deposit records value attached to a call as held for holder in auction.
func (l *Ledger) Deposit(auctionID uint64, holder core.Principal, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return core.Validationf("deposit must be positive, got %s", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	held := l.holdings(auctionID)
	held[holder] = held[holder].Add(amount)
	acct := l.account(auctionID)
	acct.Deposited = acct.Deposited.Add(amount)
	l.balance = l.balance.Add(amount)
	return nil
}

// Release moves amount out of holder's entry towards to.
func (l *Ledger) Release(auctionID uint64, holder, to core.Principal, amount decimal.Decimal, reason Reason) (Transfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.debitEntry(auctionID, holder, amount); err != nil {
		return Transfer{}, err
	}
	return l.newTransfer(auctionID, to, amount, reason), nil
}

// Refund releases holder's whole entry back to holder. ok is false when
// nothing is held.
func (l *Ledger) Refund(auctionID uint64, holder core.Principal, reason Reason) (Transfer, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	amount := l.entries[auctionID][holder]
	if !amount.IsPositive() {
		return Transfer{}, false
	}
	_ = l.debitEntry(auctionID, holder, amount)
	return l.newTransfer(auctionID, holder, amount, reason), true
}

// RefundAll refunds every outstanding entry of an auction, ordered by holder.
func (l *Ledger) RefundAll(auctionID uint64, reason Reason) []Transfer {
	l.mu.Lock()
	defer l.mu.Unlock()

	holders := make([]core.Principal, 0, len(l.entries[auctionID]))
	for holder := range l.entries[auctionID] {
		holders = append(holders, holder)
	}
	sort.Slice(holders, func(i, j int) bool { return holders[i] < holders[j] })

	transfers := make([]Transfer, 0, len(holders))
	for _, holder := range holders {
		amount := l.entries[auctionID][holder]
		_ = l.debitEntry(auctionID, holder, amount)
		transfers = append(transfers, l.newTransfer(auctionID, holder, amount, reason))
	}
	return transfers
}

// AccrueFee moves amount from holder's entry into the platform fee balance.
func (l *Ledger) AccrueFee(auctionID uint64, holder core.Principal, amount decimal.Decimal) error {
	if amount.IsZero() {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.debitEntry(auctionID, holder, amount); err != nil {
		return err
	}
	l.platformFees = l.platformFees.Add(amount)
	return nil
}

// Complete marks an in-flight transfer as delivered.
func (l *Ledger) Complete(transferID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.inFlight[transferID]
	if !ok {
		return fmt.Errorf("unknown transfer %s", transferID)
	}
	delete(l.inFlight, transferID)
	l.balance = l.balance.Sub(t.Amount)
	return nil
}

// Fail returns the value of an undelivered transfer to the books. Platform
// fee withdrawals go back to the fee balance; everything else becomes a pull
// credit for the recipient.
func (l *Ledger) Fail(transferID string) (Transfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.inFlight[transferID]
	if !ok {
		return Transfer{}, fmt.Errorf("unknown transfer %s", transferID)
	}
	delete(l.inFlight, transferID)
	if t.Reason == ReasonPlatformFees {
		l.platformFees = l.platformFees.Add(t.Amount)
	} else {
		l.credits[t.To] = l.credits[t.To].Add(t.Amount)
	}
	return t, nil
}

// WithdrawCredit reserves the whole pull credit of p for sending.
func (l *Ledger) WithdrawCredit(p core.Principal) (Transfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	amount := l.credits[p]
	if !amount.IsPositive() {
		return Transfer{}, core.Fundsf("no pending withdrawal for %s", p)
	}
	delete(l.credits, p)
	return l.newTransfer(0, p, amount, ReasonWithdrawal), nil
}

// WithdrawFees reserves amount of accrued platform fees for sending to to.
func (l *Ledger) WithdrawFees(to core.Principal, amount decimal.Decimal) (Transfer, error) {
	if err := core.ValidateAmount("withdrawal amount", amount, false); err != nil {
		return Transfer{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if amount.GreaterThan(l.platformFees) {
		return Transfer{}, core.Fundsf("withdrawal %s exceeds accrued platform fees %s", amount, l.platformFees)
	}
	l.platformFees = l.platformFees.Sub(amount)
	return l.newTransfer(0, to, amount, ReasonPlatformFees), nil
}

// Balance is the total value held by the engine.
func (l *Ledger) Balance() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// Entry returns the value held for holder in auction.
func (l *Ledger) Entry(auctionID uint64, holder core.Principal) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[auctionID][holder]
}

// Entries returns a copy of the outstanding entries of an auction.
func (l *Ledger) Entries(auctionID uint64) map[core.Principal]decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[core.Principal]decimal.Decimal, len(l.entries[auctionID]))
	for holder, amount := range l.entries[auctionID] {
		out[holder] = amount
	}
	return out
}

// Credit returns the pull balance of p.
func (l *Ledger) Credit(p core.Principal) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.credits[p]
}

// PlatformFees returns the accrued, not yet withdrawn platform fees.
func (l *Ledger) PlatformFees() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.platformFees
}

// Account returns the deposit/release totals of an auction.
func (l *Ledger) Account(auctionID uint64) Account {
	l.mu.Lock()
	defer l.mu.Unlock()

	if acct, ok := l.accounts[auctionID]; ok {
		return *acct
	}
	return Account{}
}

// InFlight returns the transfers reserved but not yet completed or failed.
func (l *Ledger) InFlight() []Transfer {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Transfer, 0, len(l.inFlight))
	for _, t := range l.inFlight {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CheckInvariant verifies that
//
//	balance == Σentries + Σcredits + platformFees + Σin-flight
//
// and, for every auction, deposited == Σentries + released.
func (l *Ledger) CheckInvariant() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	held := decimal.Zero
	for auctionID, byHolder := range l.entries {
		auctionHeld := decimal.Zero
		for holder, amount := range byHolder {
			if amount.IsNegative() {
				return fmt.Errorf("%w: negative entry %s for %s in auction %d", ErrInvariant, amount, holder, auctionID)
			}
			auctionHeld = auctionHeld.Add(amount)
		}
		held = held.Add(auctionHeld)
	}

	for auctionID, acct := range l.accounts {
		auctionHeld := decimal.Zero
		for _, amount := range l.entries[auctionID] {
			auctionHeld = auctionHeld.Add(amount)
		}
		if !acct.Deposited.Equal(auctionHeld.Add(acct.Released)) {
			return fmt.Errorf("%w: auction %d deposited %s but holds %s and released %s",
				ErrInvariant, auctionID, acct.Deposited, auctionHeld, acct.Released)
		}
	}

	credits := decimal.Zero
	for _, amount := range l.credits {
		credits = credits.Add(amount)
	}
	pending := decimal.Zero
	for _, t := range l.inFlight {
		pending = pending.Add(t.Amount)
	}

	expected := held.Add(credits).Add(l.platformFees).Add(pending)
	if !l.balance.Equal(expected) {
		return fmt.Errorf("%w: balance %s != entries %s + credits %s + fees %s + in-flight %s",
			ErrInvariant, l.balance, held, credits, l.platformFees, pending)
	}
	return nil
}

func (l *Ledger) holdings(auctionID uint64) map[core.Principal]decimal.Decimal {
	held, ok := l.entries[auctionID]
	if !ok {
		held = make(map[core.Principal]decimal.Decimal)
		l.entries[auctionID] = held
	}
	return held
}

func (l *Ledger) account(auctionID uint64) *Account {
	acct, ok := l.accounts[auctionID]
	if !ok {
		acct = &Account{}
		l.accounts[auctionID] = acct
	}
	return acct
}

func (l *Ledger) debitEntry(auctionID uint64, holder core.Principal, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return core.Validationf("release amount must be positive, got %s", amount)
	}
	held := l.entries[auctionID][holder]
	if amount.GreaterThan(held) {
		return core.Fundsf("auction %d holds %s for %s, cannot release %s", auctionID, held, holder, amount)
	}

	remaining := held.Sub(amount)
	if remaining.IsZero() {
		delete(l.entries[auctionID], holder)
		if len(l.entries[auctionID]) == 0 {
			delete(l.entries, auctionID)
		}
	} else {
		l.entries[auctionID][holder] = remaining
	}
	acct := l.account(auctionID)
	acct.Released = acct.Released.Add(amount)
	return nil
}

func (l *Ledger) newTransfer(auctionID uint64, to core.Principal, amount decimal.Decimal, reason Reason) Transfer {
	t := Transfer{
		ID:        uuid.NewString(),
		AuctionID: auctionID,
		To:        to,
		Amount:    amount,
		Reason:    reason,
	}
	l.inFlight[t.ID] = t
	return t
}
