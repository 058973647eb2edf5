package core

import (
	"errors"
	"testing"

	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestMeetsReserve(t *testing.T) {
	tests := []struct {
		name     string
		bid      string
		reserve  string
		expected bool
	}{
		{"bid above reserve", "3.0", "2.5", true},
		{"bid at reserve", "2.5", "2.5", true},
		{"bid below reserve", "2.0", "2.5", false},
		{"zero reserve - positive bid passes", "1.0", "0", true},
		{"zero bid never meets", "0", "0", false},
		{"precision edge case - fails", "2.499999999999999999", "2.5", false},
		{"very small difference - passes", "2.500000000000000001", "2.5", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check.Equal(t, tt.expected, MeetsReserve(d(tt.bid), d(tt.reserve)))
		})
	}
}

func TestMinNextBid(t *testing.T) {
	tests := []struct {
		name      string
		highest   string
		start     string
		increment string
		bps       uint32
		expected  string
	}{
		{"no bid uses start price", "0", "1", "0.1", 500, "1"},
		{"fixed increment dominates", "1", "1", "0.1", 500, "1.1"},
		{"percentage dominates", "10", "1", "0.1", 500, "10.5"},
		{"zero increment and zero bps", "2", "1", "0", 0, "2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MinNextBid(d(tt.highest), d(tt.start), d(tt.increment), tt.bps)
			check.Equal(t, d(tt.expected).String(), got.String())
		})
	}
}

func TestBidMeetsIncrement(t *testing.T) {
	start := d("1.0")
	increment := d("0.1")

	// first bid at start price
	check.True(t, BidMeetsIncrement(d("1.0"), decimal.Zero, start, increment, 500))
	// first bid below start price
	check.False(t, BidMeetsIncrement(d("0.99"), decimal.Zero, start, increment, 500))
	// below increment over 1.0
	check.False(t, BidMeetsIncrement(d("1.05"), d("1.0"), start, increment, 500))
	// above increment
	check.True(t, BidMeetsIncrement(d("1.2"), d("1.0"), start, increment, 500))
	// equal bid never wins even with a zero step
	check.False(t, BidMeetsIncrement(d("2"), d("2"), start, decimal.Zero, 0))
	check.True(t, BidMeetsIncrement(d("2.000000000000000001"), d("2"), start, decimal.Zero, 0))
	// zero bid
	check.False(t, BidMeetsIncrement(decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero, 0))
}

func TestValidateAmount(t *testing.T) {
	check.NoError(t, ValidateAmount("price", d("1.5"), false))
	check.NoError(t, ValidateAmount("price", decimal.Zero, true))

	err := ValidateAmount("price", decimal.Zero, false)
	check.True(t, errors.Is(err, ErrValidation))

	err = ValidateAmount("price", d("-1"), true)
	check.True(t, errors.Is(err, ErrValidation))

	err = ValidateAmount("price", d("0.0000000000000000001"), false)
	check.True(t, errors.Is(err, ErrValidation))
}

func TestSplitProceeds(t *testing.T) {
	t.Run("platform fee only", func(t *testing.T) {
		split := SplitProceeds(d("10"), 250, "", decimal.Zero)
		check.Equal(t, "0.25", split.PlatformFee.String())
		check.Equal(t, "9.75", split.SellerProceeds.String())
		check.Equal(t, "0", split.RoyaltyFee.String())
		check.Equal(t, Principal(""), split.RoyaltyRecipient)
	})

	t.Run("royalty deducted from seller", func(t *testing.T) {
		split := SplitProceeds(d("10"), 250, "creator", d("0.5"))
		check.Equal(t, "0.25", split.PlatformFee.String())
		check.Equal(t, "0.5", split.RoyaltyFee.String())
		check.Equal(t, "9.25", split.SellerProceeds.String())
		check.False(t, split.RoyaltyCapped)
	})

	t.Run("royalty capped at remainder", func(t *testing.T) {
		split := SplitProceeds(d("10"), 1000, "creator", d("20"))
		check.Equal(t, "1", split.PlatformFee.String())
		check.Equal(t, "9", split.RoyaltyFee.String())
		check.Equal(t, "0", split.SellerProceeds.String())
		check.True(t, split.RoyaltyCapped)
	})

	t.Run("parts sum to total", func(t *testing.T) {
		split := SplitProceeds(d("3.333333333333333333"), 333, "creator", d("0.1"))
		sum := split.PlatformFee.Add(split.RoyaltyFee).Add(split.SellerProceeds)
		check.True(t, sum.Equal(split.Total))
	})
}
