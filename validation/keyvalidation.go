package validation

import (
	"fmt"
	"strings"

	"github.com/cloudx-io/assetauction/engineapi"
	"github.com/cloudx-io/assetauction/engineapi/parsing"
)

// ValidateKeyAttestation validates a Nitro attestation of the receipt signing
// key against the PCR sets in the default pcrs.json.
//
// Parameters:
//   - attestationCOSEBase64: KeyResponse.KeyAttestation
//   - expectedPublicKey: PEM-encoded public key to validate (from KeyResponse.PublicKey)
//
// Returns:
//   - KeyValidationResult with detailed results (call result.IsValid() to check overall status)
//   - error if validation cannot be performed (e.g., malformed input, missing config)
func ValidateKeyAttestation(attestationCOSEBase64 engineapi.COSEBase64, expectedPublicKey string) (*KeyValidationResult, error) {
	return ValidateKeyAttestationWithPCRs(attestationCOSEBase64, expectedPublicKey, DefaultPCRConfigPath())
}

// ValidateKeyAttestationWithPCRs is ValidateKeyAttestation with an explicit
// PCR configuration file.
func ValidateKeyAttestationWithPCRs(attestationCOSEBase64 engineapi.COSEBase64, expectedPublicKey, pcrConfigPath string) (*KeyValidationResult, error) {
	baseResult, err := validateCommonAttestation(attestationCOSEBase64, pcrConfigPath)
	if err != nil {
		return nil, err
	}

	coseBytes, err := attestationCOSEBase64.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode COSE bytes: %w", err)
	}
	keyAttestation, err := parsing.ParseKeyAttestation(coseBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key attestation: %w", err)
	}

	result := &KeyValidationResult{
		BaseValidationResult: *baseResult,
	}

	if keyAttestation.UserData == nil || keyAttestation.UserData.PublicKey == "" {
		result.ValidationDetails = append(result.ValidationDetails, "Public key missing from attestation")
		return result, nil
	}

	// PEM encoders disagree on trailing newlines
	providedKeyTrimmed := strings.TrimSpace(expectedPublicKey)
	attestedKeyTrimmed := strings.TrimSpace(keyAttestation.UserData.PublicKey)

	if providedKeyTrimmed == attestedKeyTrimmed {
		result.PublicKeyMatch = true
		result.ValidationDetails = append(result.ValidationDetails, "Public key matches attestation")
	} else {
		result.ValidationDetails = append(result.ValidationDetails, "Public key mismatch: provided key does not match attested key")
	}

	return result, nil
}
