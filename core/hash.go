package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"
)

// ComputeCommitHash computes the sealed-bid commitment hash.
// Bidders compute it off-line when committing; the engine recomputes it on reveal.
//
// Formula: SHA256(amount + "|" + nonce + "|" + bidder)
//
// The amount is formatted with exactly AmountPrecision decimal places so that
// "1", "1.0" and "1.000" all bind to the same commitment.
func ComputeCommitHash(amount decimal.Decimal, nonce string, bidder Principal) string {
	data := fmt.Sprintf("%s|%s|%s", amount.StringFixed(AmountPrecision), nonce, bidder)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// ValidCommitHash reports whether h looks like a hex-encoded SHA-256 digest.
func ValidCommitHash(h string) bool {
	if len(h) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(h)
	return err == nil
}

// ComputeRecordHash computes a digest of a settlement record that receipts
// and validators can compare.
//
// Formula: SHA256(auction_id + "|" + outcome + "|" + winner + "|" + winning_bid + "|" + seller_proceeds)
func ComputeRecordHash(rec SettlementRecord) string {
	data := fmt.Sprintf("%d|%s|%s|%s|%s",
		rec.AuctionID,
		rec.Outcome,
		rec.Winner,
		rec.WinningBid.StringFixed(AmountPrecision),
		rec.SellerProceeds.StringFixed(AmountPrecision),
	)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
