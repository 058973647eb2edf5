package validation

import (
	"github.com/cloudx-io/assetauction/core"
	"github.com/cloudx-io/assetauction/engineapi"
)

// BaseValidationResult contains common validation results for all attestation types
type BaseValidationResult struct {
	PCRsValid         bool
	CertificateValid  bool
	SignatureValid    bool
	ValidationDetails []string
}

// KeyValidationResult contains validation results specific to key attestations
type KeyValidationResult struct {
	BaseValidationResult
	PublicKeyMatch bool
}

// IsValid returns true if all key validation checks passed
func (r *KeyValidationResult) IsValid() bool {
	return r.PCRsValid && r.CertificateValid && r.SignatureValid && r.PublicKeyMatch
}

// ReceiptValidationInput names a receipt, the key expected to have signed it
// and the outcome the caller expects. Zero expectation fields are not checked.
type ReceiptValidationInput struct {
	Receipt   engineapi.COSEBase64
	PublicKey string // PEM

	AuctionID  uint64
	Outcome    core.Outcome
	Winner     core.Principal
	WinningBid string
}

// ReceiptValidationResult contains the per-check results of a receipt.
type ReceiptValidationResult struct {
	SignatureValid    bool
	PayloadValid      bool
	RecordHashValid   bool
	ExpectationsMet   bool
	Payload           *engineapi.ReceiptPayload
	ValidationDetails []string
}

// IsValid returns true if all receipt checks passed
func (r *ReceiptValidationResult) IsValid() bool {
	return r.SignatureValid && r.PayloadValid && r.RecordHashValid && r.ExpectationsMet
}

// PCRSet represents a known-good set of PCR measurements
type PCRSet struct {
	PCR0    string `json:"pcr0"`
	PCR1    string `json:"pcr1"`
	PCR2    string `json:"pcr2"`
	Release string `json:"release"` // auctiond release the enclave image was built from
}

// PCRConfig represents the PCR configuration file structure
type PCRConfig struct {
	PCRSets []PCRSet `json:"pcr_sets"`
}
