// Package parsing decodes the CBOR structures carried inside COSE_Sign1
// messages: receipt payloads and Nitro attestation documents.
package parsing

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/cloudx-io/assetauction/engineapi"
)

// ExtractCOSEPayload extracts the payload from a COSE_Sign1 4-element array
// COSE_Sign1 structure: [protected, unprotected, payload, signature]
// Returns the payload bytes (element 2)
func ExtractCOSEPayload(coseBytes []byte) ([]byte, error) {
	var coseArray []any
	err := cbor.Unmarshal(coseBytes, &coseArray)
	if err != nil {
		return nil, fmt.Errorf("parse COSE array: %w", err)
	}

	if len(coseArray) != 4 {
		return nil, fmt.Errorf("invalid COSE_Sign1 structure: expected 4 elements, got %d", len(coseArray))
	}

	payload, ok := coseArray[2].([]byte)
	if !ok {
		return nil, fmt.Errorf("invalid payload in COSE structure")
	}

	return payload, nil
}

// DecodeReceiptPayload decodes the receipt carried by a COSE_Sign1 message.
// It does not check the signature.
func DecodeReceiptPayload(msg engineapi.COSE) (*engineapi.ReceiptPayload, error) {
	payload, err := ExtractCOSEPayload(msg)
	if err != nil {
		return nil, err
	}

	var receipt engineapi.ReceiptPayload
	if err := cbor.Unmarshal(payload, &receipt); err != nil {
		return nil, fmt.Errorf("decode receipt payload: %w", err)
	}
	return &receipt, nil
}
