package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// DescendingPrice returns the price of a descending auction at now.
//
// The price decays linearly from startPrice at startTime to reservePrice at
// endTime and is clamped at both ends. It is a pure function of time; nothing
// about it is stored. The result is rounded down to AmountPrecision.
func DescendingPrice(startPrice, reservePrice decimal.Decimal, startTime, endTime, now time.Time) decimal.Decimal {
	if !now.After(startTime) {
		return startPrice
	}
	if !now.Before(endTime) {
		return reservePrice
	}

	total := endTime.Sub(startTime)
	if total <= 0 {
		return reservePrice
	}
	elapsed := now.Sub(startTime)

	drop := startPrice.Sub(reservePrice).
		Mul(decimal.NewFromInt(elapsed.Nanoseconds())).
		DivRound(decimal.NewFromInt(total.Nanoseconds()), AmountPrecision+2)

	price := startPrice.Sub(drop).Truncate(AmountPrecision)
	if price.LessThan(reservePrice) {
		return reservePrice
	}
	return price
}
