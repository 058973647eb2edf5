package validation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/assetauction/core"
	"github.com/cloudx-io/assetauction/engineapi"
	"github.com/cloudx-io/assetauction/engineapi/parsing"
)

// ValidateReceipt verifies a settlement receipt: the ES256 signature under
// the given key, the internal consistency of the payload, its record hash and
// the caller's expectations.
//
// Returns an error only when the inputs cannot be decoded at all; failed
// checks are reported in the result.
func ValidateReceipt(input *ReceiptValidationInput) (*ReceiptValidationResult, error) {
	if input == nil {
		return nil, fmt.Errorf("validation input is nil")
	}

	key, err := ParsePublicKeyPEM(input.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}
	msg, err := input.Receipt.Decode()
	if err != nil {
		return nil, err
	}
	payload, err := parsing.DecodeReceiptPayload(msg)
	if err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}

	result := &ReceiptValidationResult{
		Payload:           payload,
		ValidationDetails: []string{},
	}

	if err := VerifyReceiptSignature(msg, key); err != nil {
		result.ValidationDetails = append(result.ValidationDetails, err.Error())
	} else {
		result.SignatureValid = true
		result.ValidationDetails = append(result.ValidationDetails, "Receipt signature verified")
	}

	amounts, problems := checkPayload(payload)
	if len(problems) == 0 {
		result.PayloadValid = true
		result.ValidationDetails = append(result.ValidationDetails, "Receipt payload consistent")
	} else {
		result.ValidationDetails = append(result.ValidationDetails, problems...)
	}

	if amounts != nil {
		hash := core.ComputeRecordHash(core.SettlementRecord{
			AuctionID:      payload.AuctionID,
			Outcome:        core.Outcome(payload.Outcome),
			Winner:         core.Principal(payload.Winner),
			WinningBid:     amounts.winningBid,
			SellerProceeds: amounts.sellerProceeds,
		})
		if hash == payload.RecordHash {
			result.RecordHashValid = true
			result.ValidationDetails = append(result.ValidationDetails, "Record hash verified")
		} else {
			result.ValidationDetails = append(result.ValidationDetails,
				fmt.Sprintf("Record hash mismatch: receipt %s, computed %s", payload.RecordHash, hash))
		}
	}

	mismatches := checkExpectations(input, payload)
	if len(mismatches) == 0 {
		result.ExpectationsMet = true
		result.ValidationDetails = append(result.ValidationDetails, "Receipt matches expected outcome")
	} else {
		result.ValidationDetails = append(result.ValidationDetails, mismatches...)
	}

	return result, nil
}

type receiptAmounts struct {
	winningBid     decimal.Decimal
	platformFee    decimal.Decimal
	royaltyFee     decimal.Decimal
	sellerProceeds decimal.Decimal
	forfeited      decimal.Decimal
}

// checkPayload returns the parsed amounts (nil if any fails to parse) and
// every inconsistency found.
func checkPayload(p *engineapi.ReceiptPayload) (*receiptAmounts, []string) {
	var problems []string
	parse := func(name, value string) decimal.Decimal {
		d, err := decimal.NewFromString(value)
		if err != nil {
			problems = append(problems, fmt.Sprintf("Invalid %s %q", name, value))
			return decimal.Zero
		}
		if d.IsNegative() {
			problems = append(problems, fmt.Sprintf("Negative %s %s", name, value))
		}
		return d
	}

	a := &receiptAmounts{
		winningBid:     parse("winning bid", p.WinningBid),
		platformFee:    parse("platform fee", p.PlatformFee),
		royaltyFee:     parse("royalty fee", p.RoyaltyFee),
		sellerProceeds: parse("seller proceeds", p.SellerProceeds),
		forfeited:      parse("forfeited amount", p.Forfeited),
	}
	if len(problems) > 0 {
		return nil, problems
	}

	if p.AuctionID == 0 {
		problems = append(problems, "Missing auction id")
	}
	if p.ReceiptID == "" {
		problems = append(problems, "Missing receipt id")
	}

	switch core.Outcome(p.Outcome) {
	case core.OutcomeSettled:
		if p.Winner == "" {
			problems = append(problems, "Settled receipt has no winner")
		}
		split := a.platformFee.Add(a.royaltyFee).Add(a.sellerProceeds)
		if !split.Equal(a.winningBid) {
			problems = append(problems, fmt.Sprintf("Split %s does not add up to winning bid %s", split, a.winningBid))
		}
	case core.OutcomeCancelled:
		if p.Winner != "" || !a.winningBid.IsZero() || !a.sellerProceeds.IsZero() {
			problems = append(problems, "Cancelled receipt carries a sale")
		}
	default:
		problems = append(problems, fmt.Sprintf("Unknown outcome %q", p.Outcome))
	}
	return a, problems
}

func checkExpectations(in *ReceiptValidationInput, p *engineapi.ReceiptPayload) []string {
	var mismatches []string
	if in.AuctionID != 0 && in.AuctionID != p.AuctionID {
		mismatches = append(mismatches, fmt.Sprintf("Auction id mismatch: expected %d, got %d", in.AuctionID, p.AuctionID))
	}
	if in.Outcome != "" && string(in.Outcome) != p.Outcome {
		mismatches = append(mismatches, fmt.Sprintf("Outcome mismatch: expected %s, got %s", in.Outcome, p.Outcome))
	}
	if in.Winner != "" && string(in.Winner) != p.Winner {
		mismatches = append(mismatches, fmt.Sprintf("Winner mismatch: expected %s, got %s", in.Winner, p.Winner))
	}
	if in.WinningBid != "" {
		want, err := decimal.NewFromString(in.WinningBid)
		got, gotErr := decimal.NewFromString(p.WinningBid)
		switch {
		case err != nil:
			mismatches = append(mismatches, fmt.Sprintf("Invalid expected winning bid %q", in.WinningBid))
		case gotErr != nil || !want.Equal(got):
			mismatches = append(mismatches, fmt.Sprintf("Winning bid mismatch: expected %s, got %s", in.WinningBid, p.WinningBid))
		}
	}
	return mismatches
}
