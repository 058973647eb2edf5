package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/cloudx-io/assetauction/engineapi"
	"github.com/cloudx-io/assetauction/validation"
)

var logger = zerolog.New(zerolog.ConsoleWriter{
	Out:          os.Stdout,
	NoColor:      true,
	PartsExclude: []string{zerolog.TimestampFieldName, zerolog.LevelFieldName},
})

func main() {
	var (
		attestationPath = flag.String("attestation", "", "Path to receipt_key response JSON file (required)")
		publicKeyPath   = flag.String("public-key", "", "Path to public key PEM file (required)")
		pcrPath         = flag.String("pcrs", validation.DefaultPCRConfigPath(), "Path to known PCR sets")
		outputFormat    = flag.String("format", "text", "Output format: text or json")
		help            = flag.Bool("help", false, "Show usage information")
	)

	flag.Parse()

	if *help || *attestationPath == "" || *publicKeyPath == "" {
		showUsage()
		if *attestationPath == "" || *publicKeyPath == "" {
			os.Exit(1)
		}
		os.Exit(0)
	}

	keyResponse, err := readKeyResponse(*attestationPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading attestation: %v\n", err)
		os.Exit(2)
	}

	publicKey, err := os.ReadFile(*publicKeyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading public key: %v\n", err)
		os.Exit(2)
	}

	result, err := validation.ValidateKeyAttestationWithPCRs(keyResponse.KeyAttestation, string(publicKey), *pcrPath)
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
		"Receipt Key Attestation Validator",
		"",
		"Checks that the receipt signing key was generated inside a known enclave image.",
		"",
		"Usage:",
		"  key-validator --attestation <path> --public-key <pem> [options]",
		"",
		"Required Flags:",
		"  --attestation <path>              Path to receipt_key response JSON file",
		"  --public-key <path>               Path to public key PEM file",
		"",
		"Optional Flags:",
		"  --pcrs <path>                     Known PCR sets (default: validation/pcrs.json)",
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

// readKeyResponse accepts either a bare key object or a full daemon response.
func readKeyResponse(path string) (*engineapi.KeyResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var resp engineapi.Response
	if err := json.Unmarshal(data, &resp); err == nil && resp.Key != nil {
		if resp.Key.KeyAttestation == "" {
			return nil, fmt.Errorf("missing key_attestation field in key response")
		}
		return resp.Key, nil
	}

	var keyResponse engineapi.KeyResponse
	if err := json.Unmarshal(data, &keyResponse); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if keyResponse.KeyAttestation == "" {
		return nil, fmt.Errorf("missing key_attestation field in key response")
	}
	return &keyResponse, nil
}

func outputText(result *validation.KeyValidationResult) {
	logger.Info().Msg("Receipt Key Attestation Validator")
	logger.Info().Msg("=================================")
	logger.Info().Msg("")
	logger.Info().Msg("Details:")
	for _, d := range result.ValidationDetails {
		logger.Info().Msgf("  - %s", d)
	}

	logger.Info().Msg("")
	logger.Info().Msg("Summary:")
	logger.Info().Msgf("  PCRs Valid:        %v", result.PCRsValid)
	logger.Info().Msgf("  Certificate Valid: %v", result.CertificateValid)
	logger.Info().Msgf("  Signature Valid:   %v", result.SignatureValid)
	logger.Info().Msgf("  Public Key Match:  %v", result.PublicKeyMatch)

	logger.Info().Msg("")
	logger.Info().Msg("=================================")
	if result.IsValid() {
		logger.Info().Msg("VALIDATION: ✓ PASSED")
	} else {
		logger.Info().Msg("VALIDATION: ✗ FAILED")
	}
}

func outputJSON(result *validation.KeyValidationResult) error {
	output := map[string]any{
		"valid":             result.IsValid(),
		"pcrs_valid":        result.PCRsValid,
		"certificate_valid": result.CertificateValid,
		"signature_valid":   result.SignatureValid,
		"public_key_match":  result.PublicKeyMatch,
		"details":           result.ValidationDetails,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(data))
	return err
}
