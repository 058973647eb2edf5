package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cloudx-io/assetauction/core"
	"github.com/cloudx-io/assetauction/engineapi"
	"github.com/cloudx-io/assetauction/validation"
)

// logger writes bare messages to stdout, which is what a CLI user expects.
var logger = zerolog.New(zerolog.ConsoleWriter{
	Out:          os.Stdout,
	NoColor:      true,
	PartsExclude: []string{zerolog.TimestampFieldName, zerolog.LevelFieldName},
})

func main() {
	var (
		receiptPath   = flag.String("receipt", "", "Path to receipt JSON file (required)")
		publicKeyPath = flag.String("public-key", "", "Path to signing public key PEM file (required)")
		auctionID     = flag.Uint64("auction-id", 0, "Expected auction id")
		outcome       = flag.String("outcome", "", "Expected outcome: settled or cancelled")
		winner        = flag.String("winner", "", "Expected winner")
		winningBid    = flag.String("winning-bid", "", "Expected winning bid")
		outputFormat  = flag.String("format", "text", "Output format: text or json")
		help          = flag.Bool("help", false, "Show usage information")
	)

	flag.Parse()

	if *help || *receiptPath == "" || *publicKeyPath == "" {
		showUsage()
		if *receiptPath == "" || *publicKeyPath == "" {
			os.Exit(1)
		}
		os.Exit(0)
	}

	r, err := readReceipt(*receiptPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading receipt: %v\n", err)
		os.Exit(2)
	}

	publicKey, err := os.ReadFile(*publicKeyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading public key: %v\n", err)
		os.Exit(2)
	}

	result, err := validation.ValidateReceipt(&validation.ReceiptValidationInput{
		Receipt:    r.COSE,
		PublicKey:  string(publicKey),
		AuctionID:  *auctionID,
		Outcome:    core.Outcome(strings.ToLower(*outcome)),
		Winner:     core.Principal(*winner),
		WinningBid: *winningBid,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
		os.Exit(2)
	}

	if *outputFormat == "json" {
		if err := outputJSON(result); err != nil {
			fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
			os.Exit(2)
		}
	} else {
		outputText(result)
	}

	if !result.IsValid() {
		os.Exit(1)
	}
	os.Exit(0)
}

func showUsage() {
	for _, line := range []string{
		"Settlement Receipt Validator",
		"",
		"Verifies a signed auction settlement receipt.",
		"",
		"Usage:",
		"  receipt-validator --receipt <path> --public-key <pem> [options]",
		"",
		"Required Flags:",
		"  --receipt <path>                  Path to receipt JSON (get_receipt response or receipt object)",
		"  --public-key <path>               Path to signing public key PEM file",
		"",
		"Optional Flags:",
		"  --auction-id <id>                 Expected auction id",
		"  --outcome <settled|cancelled>     Expected outcome",
		"  --winner <principal>              Expected winner",
		"  --winning-bid <amount>            Expected winning bid",
		"  --format <text|json>              Output format (default: text)",
		"  --help                            Show this help message",
		"",
		"Exit Codes:",
		"  0 - Validation passed",
		"  1 - Validation failed",
		"  2 - Invalid input or runtime error",
	} {
		logger.Info().Msg(line)
	}
}

// readReceipt accepts either a bare receipt object or a full daemon response.
func readReceipt(path string) (*engineapi.Receipt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var resp engineapi.Response
	if err := json.Unmarshal(data, &resp); err == nil && resp.Receipt != nil {
		return resp.Receipt, nil
	}

	var r engineapi.Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if r.COSE == "" {
		return nil, fmt.Errorf("missing cose field in receipt")
	}
	return &r, nil
}

func outputText(result *validation.ReceiptValidationResult) {
	logger.Info().Msg("Settlement Receipt Validator")
	logger.Info().Msg("============================")
	if p := result.Payload; p != nil {
		logger.Info().Msg("")
		logger.Info().Msgf("  Receipt:          %s", p.ReceiptID)
		logger.Info().Msgf("  Auction:          %d (%s)", p.AuctionID, p.Format)
		logger.Info().Msgf("  Outcome:          %s", p.Outcome)
		if p.Winner != "" {
			logger.Info().Msgf("  Winner:           %s", p.Winner)
			logger.Info().Msgf("  Winning bid:      %s", p.WinningBid)
		}
		if p.Reason != "" {
			logger.Info().Msgf("  Reason:           %s", p.Reason)
		}
	}

	logger.Info().Msg("")
	logger.Info().Msg("Details:")
	for _, d := range result.ValidationDetails {
		logger.Info().Msgf("  - %s", d)
	}

	logger.Info().Msg("")
	logger.Info().Msg("Summary:")
	logger.Info().Msgf("  Signature Valid:   %v", result.SignatureValid)
	logger.Info().Msgf("  Payload Valid:     %v", result.PayloadValid)
	logger.Info().Msgf("  Record Hash Valid: %v", result.RecordHashValid)
	logger.Info().Msgf("  Expectations Met:  %v", result.ExpectationsMet)

	logger.Info().Msg("")
	logger.Info().Msg("============================")
	if result.IsValid() {
		logger.Info().Msg("VALIDATION: ✓ PASSED")
	} else {
		logger.Info().Msg("VALIDATION: ✗ FAILED")
	}
}

func outputJSON(result *validation.ReceiptValidationResult) error {
	output := map[string]any{
		"valid":             result.IsValid(),
		"signature_valid":   result.SignatureValid,
		"payload_valid":     result.PayloadValid,
		"record_hash_valid": result.RecordHashValid,
		"expectations_met":  result.ExpectationsMet,
		"receipt":           result.Payload,
		"details":           result.ValidationDetails,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(data))
	return err
}
