package core

import (
	"github.com/shopspring/decimal"
)

// FeeSplit is the division of a winning amount between platform, royalty
// recipient and seller. The three parts always sum to Total.
type FeeSplit struct {
	Total            decimal.Decimal
	PlatformFee      decimal.Decimal
	RoyaltyRecipient Principal
	RoyaltyFee       decimal.Decimal
	SellerProceeds   decimal.Decimal
	RoyaltyCapped    bool
}

// SplitProceeds computes the settlement split of a winning amount.
//
// Parameters:
//   - winning: the amount paid by the winner
//   - platformFeeBps: platform fee in basis points
//   - royaltyRecipient, royalty: the optional royalty quote (zero royalty when
//     the asset registry does not support royalties)
//
// The royalty is capped at what remains after the platform fee so the
// seller proceeds never go negative; RoyaltyCapped reports when that happened.
func SplitProceeds(winning decimal.Decimal, platformFeeBps uint32, royaltyRecipient Principal, royalty decimal.Decimal) FeeSplit {
	platformFee := ApplyBps(winning, platformFeeBps)
	remaining := winning.Sub(platformFee)

	split := FeeSplit{
		Total:       winning,
		PlatformFee: platformFee,
		RoyaltyFee:  decimal.Zero,
	}

	if royaltyRecipient != "" && royalty.IsPositive() {
		royalty = royalty.Truncate(AmountPrecision)
		if royalty.GreaterThan(remaining) {
			royalty = remaining
			split.RoyaltyCapped = true
		}
		split.RoyaltyRecipient = royaltyRecipient
		split.RoyaltyFee = royalty
	}

	split.SellerProceeds = remaining.Sub(split.RoyaltyFee)
	return split
}
