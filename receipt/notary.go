package receipt

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/assetauction/core"
	"github.com/cloudx-io/assetauction/engine"
	"github.com/cloudx-io/assetauction/engineapi"
)

// Options configures a Notary.
type Options struct {
	Keys *KeyManager
	// Attester, when set, attests the signing key in KeyResponse.
	Attester Attester
	Logger   *zerolog.Logger
	Now      func() time.Time
}

// Notary signs a receipt for every closed auction and keeps them in memory.
// It is an engine.EventSink.
type Notary struct {
	keys     *KeyManager
	signer   cose.Signer
	encMode  cbor.EncMode
	attester Attester
	now      func() time.Time
	log      zerolog.Logger

	mu       sync.RWMutex
	receipts map[uint64]engineapi.Receipt
}

var _ engine.EventSink = (*Notary)(nil)

func NewNotary(opts Options) (*Notary, error) {
	if opts.Keys == nil {
		return nil, errors.New("signing key is required")
	}
	signer, err := opts.Keys.signer()
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}
	encMode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("create CBOR encoder: %w", err)
	}

	n := &Notary{
		keys:     opts.Keys,
		signer:   signer,
		encMode:  encMode,
		attester: opts.Attester,
		now:      opts.Now,
		receipts: make(map[uint64]engineapi.Receipt),
	}
	if n.now == nil {
		n.now = time.Now
	}
	if opts.Logger != nil {
		n.log = opts.Logger.With().Str("component", "notary").Logger()
	} else {
		n.log = zerolog.Nop()
	}
	return n, nil
}

// Publish signs the record carried by settlement and cancellation events.
func (n *Notary) Publish(ev engine.Event) {
	if ev.Record == nil {
		return
	}
	if ev.Kind != engine.EventAuctionSettled && ev.Kind != engine.EventAuctionCancelled {
		return
	}
	r, err := n.Sign(*ev.Record)
	if err != nil {
		n.log.Error().Err(err).Uint64("auction_id", ev.Record.AuctionID).Msg("failed to sign receipt")
		return
	}
	n.log.Info().
		Uint64("auction_id", r.AuctionID).
		Str("receipt_id", r.ReceiptID).
		Str("outcome", string(r.Outcome)).
		Msg("receipt issued")
}

// Payload builds the CBOR payload for rec.
func Payload(receiptID string, rec core.SettlementRecord, issuedAt time.Time) engineapi.ReceiptPayload {
	return engineapi.ReceiptPayload{
		ReceiptID:        receiptID,
		AuctionID:        rec.AuctionID,
		AssetID:          string(rec.AssetID),
		Format:           rec.Format.String(),
		Outcome:          string(rec.Outcome),
		Seller:           string(rec.Seller),
		Winner:           string(rec.Winner),
		WinningBid:       rec.WinningBid.StringFixed(core.AmountPrecision),
		PlatformFee:      rec.PlatformFee.StringFixed(core.AmountPrecision),
		RoyaltyRecipient: string(rec.RoyaltyRecipient),
		RoyaltyFee:       rec.RoyaltyFee.StringFixed(core.AmountPrecision),
		SellerProceeds:   rec.SellerProceeds.StringFixed(core.AmountPrecision),
		Refunds:          rec.Refunds,
		Forfeited:        rec.Forfeited.StringFixed(core.AmountPrecision),
		Reason:           rec.Reason,
		ClosedAt:         rec.ClosedAt.UnixMilli(),
		IssuedAt:         issuedAt.UnixMilli(),
		RecordHash:       core.ComputeRecordHash(rec),
	}
}

// Sign issues and stores a receipt for rec. A later receipt for the same
// auction replaces the earlier one.
func (n *Notary) Sign(rec core.SettlementRecord) (engineapi.Receipt, error) {
	issuedAt := n.now().UTC()
	payload := Payload(uuid.NewString(), rec, issuedAt)

	body, err := n.encMode.Marshal(payload)
	if err != nil {
		return engineapi.Receipt{}, fmt.Errorf("encode receipt payload: %w", err)
	}

	msg := cose.NewSign1Message()
	msg.Headers.Protected[cose.HeaderLabelAlgorithm] = cose.AlgorithmES256
	msg.Headers.Unprotected[cose.HeaderLabelKeyID] = []byte(n.keys.KeyID())
	msg.Payload = body
	if err := msg.Sign(rand.Reader, nil, n.signer); err != nil {
		return engineapi.Receipt{}, fmt.Errorf("sign receipt: %w", err)
	}

	raw, err := (*cose.UntaggedSign1Message)(msg).MarshalCBOR()
	if err != nil {
		return engineapi.Receipt{}, fmt.Errorf("encode COSE_Sign1: %w", err)
	}

	r := engineapi.Receipt{
		ReceiptID:  payload.ReceiptID,
		AuctionID:  rec.AuctionID,
		Outcome:    rec.Outcome,
		RecordHash: payload.RecordHash,
		COSE:       engineapi.COSE(raw).EncodeBase64(),
		IssuedAt:   issuedAt,
	}

	n.mu.Lock()
	n.receipts[rec.AuctionID] = r
	n.mu.Unlock()
	return r, nil
}

// Receipt returns the receipt issued for an auction.
func (n *Notary) Receipt(auctionID uint64) (engineapi.Receipt, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	r, ok := n.receipts[auctionID]
	return r, ok
}

// KeyResponse describes the signing key, attested when an attester is set.
func (n *Notary) KeyResponse() (*engineapi.KeyResponse, error) {
	publicKeyPEM, err := n.keys.PublicKeyPEM()
	if err != nil {
		return nil, fmt.Errorf("failed to export public key: %w", err)
	}

	resp := &engineapi.KeyResponse{
		Algorithm: engineapi.ReceiptKeyAlgorithm,
		KeyID:     n.keys.KeyID(),
		PublicKey: publicKeyPEM,
	}
	if n.attester == nil {
		return resp, nil
	}

	attestation, err := GenerateKeyAttestation(n.attester, n.keys)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key attestation: %w", err)
	}
	resp.KeyAttestation = attestation.EncodeBase64()
	return resp, nil
}
