package core

import (
	"github.com/shopspring/decimal"
)

// AmountPrecision is the number of fractional digits an amount may carry
// (base-unit precision of the value rail).
const AmountPrecision int32 = 18

// ValidateAmount rejects negative amounts and amounts finer than
// AmountPrecision. Zero is accepted only when allowZero is set.
func ValidateAmount(name string, amount decimal.Decimal, allowZero bool) error {
	if amount.IsNegative() {
		return Validationf("%s must not be negative, got %s", name, amount)
	}
	if amount.IsZero() && !allowZero {
		return Validationf("%s must be positive", name)
	}
	if !amount.Equal(amount.Truncate(AmountPrecision)) {
		return Validationf("%s has more than %d decimal places", name, AmountPrecision)
	}
	return nil
}

// ApplyBps returns amount * bps / 10000, rounded down to AmountPrecision.
func ApplyBps(amount decimal.Decimal, bps uint32) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(int64(bps))).Shift(-4).Truncate(AmountPrecision)
}

// MeetsReserve returns true if the bid meets or exceeds the reserve price.
// A zero reserve is always met by a positive bid.
func MeetsReserve(bid, reserve decimal.Decimal) bool {
	if !bid.IsPositive() {
		return false
	}
	return bid.GreaterThanOrEqual(reserve)
}

// MinNextBid returns the smallest bid an open-outcry auction accepts.
//
// With no bid yet the start price is the floor. Otherwise the next bid must
// exceed the current highest bid by at least
// max(bidIncrement, highestBid * minIncrementBps / 10000), and always strictly.
func MinNextBid(highest, startPrice, bidIncrement decimal.Decimal, minIncrementBps uint32) decimal.Decimal {
	if !highest.IsPositive() {
		return startPrice
	}
	step := decimal.Max(bidIncrement, ApplyBps(highest, minIncrementBps))
	return highest.Add(step)
}

// BidMeetsIncrement reports whether bid is acceptable against the current
// leader. When a positive step applies the bid must reach highest+step;
// with a zero step it must still strictly exceed highest.
func BidMeetsIncrement(bid, highest, startPrice, bidIncrement decimal.Decimal, minIncrementBps uint32) bool {
	if !bid.IsPositive() {
		return false
	}
	next := MinNextBid(highest, startPrice, bidIncrement, minIncrementBps)
	if !bid.GreaterThanOrEqual(next) {
		return false
	}
	if highest.IsPositive() {
		return bid.GreaterThan(highest)
	}
	return true
}
