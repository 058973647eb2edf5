// Package engineapi defines the JSON protocol spoken by the auction daemon and
// the signed receipt and attestation formats it hands out.
package engineapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/assetauction/core"
)

// Request types understood by the daemon.
const (
	TypePing                  = "ping"
	TypeCreateAuction         = "create_auction"
	TypePlaceBid              = "place_bid"
	TypeBuyNow                = "buy_now"
	TypeSubmitCommitment      = "submit_commitment"
	TypeStartReveal           = "start_reveal"
	TypeRevealBid             = "reveal_bid"
	TypeSettleAuction         = "settle_auction"
	TypeCancelAuction         = "cancel_auction"
	TypeEmergencyCancel       = "emergency_cancel"
	TypeExtendAuction         = "extend_auction"
	TypeUpdatePlatformFee     = "update_platform_fee"
	TypeUpdateMinBidIncrement = "update_min_bid_increment"
	TypeUpdateMaxExtension    = "update_max_extension"
	TypePause                 = "pause"
	TypeUnpause               = "unpause"
	TypeWithdrawPlatformFees  = "withdraw_platform_fees"
	TypeWithdraw              = "withdraw"
	TypeClaimAsset            = "claim_asset"
	TypeGetAuction            = "get_auction"
	TypeGetDescendingPrice    = "get_descending_price"
	TypeGetUserAuctions       = "get_user_auctions"
	TypeGetUserBids           = "get_user_bids"
	TypeGetActiveAuctions     = "get_active_auctions"
	TypeGetAuctionsByFormat   = "get_auctions_by_format"
	TypeGetEndingSoon         = "get_ending_soon"
	TypeHasUserBid            = "has_user_bid"
	TypeGetStats              = "get_stats"
	TypeGetFormatDistribution = "get_format_distribution"
	TypeGetReceipt            = "get_receipt"
	TypeReceiptKey            = "receipt_key"
	TypeError                 = "error"
)

const (
	ReceiptKeyAlgorithm = "ECDSA-P256"
	ReceiptKeyPurpose   = "receipt-signing"
)

// Envelope carries the fields common to every request. Caller is the
// principal the request acts for.
type Envelope struct {
	Type   string         `json:"type"`
	Caller core.Principal `json:"caller,omitempty"`
}

// CreateAuctionRequest lists an asset.
type CreateAuctionRequest struct {
	Envelope
	AssetID         core.AssetID    `json:"asset_id"`
	Format          core.Format     `json:"format"`
	StartPrice      decimal.Decimal `json:"start_price"`
	ReservePrice    decimal.Decimal `json:"reserve_price"`
	BuyNowPrice     decimal.Decimal `json:"buy_now_price"`
	BidIncrement    decimal.Decimal `json:"bid_increment"`
	DurationSeconds int64           `json:"duration_seconds"`
}

// Params converts the request into engine parameters.
func (r CreateAuctionRequest) Params() core.CreateParams {
	return core.CreateParams{
		AssetID:      r.AssetID,
		Format:       r.Format,
		StartPrice:   r.StartPrice,
		ReservePrice: r.ReservePrice,
		BuyNowPrice:  r.BuyNowPrice,
		BidIncrement: r.BidIncrement,
		Duration:     time.Duration(r.DurationSeconds) * time.Second,
	}
}

// BidRequest serves place_bid, buy_now, submit_commitment and reveal_bid.
// Amount is the value attached to the call (the bid, the payment or the
// sealed deposit), or the revealed amount for reveal_bid.
type BidRequest struct {
	Envelope
	AuctionID  uint64          `json:"auction_id"`
	Amount     decimal.Decimal `json:"amount"`
	CommitHash string          `json:"commit_hash,omitempty"`
	Nonce      string          `json:"nonce,omitempty"`
}

// AuctionRequest serves the requests that address a single auction.
type AuctionRequest struct {
	Envelope
	AuctionID uint64 `json:"auction_id"`
	Reason    string `json:"reason,omitempty"`
	Seconds   int64  `json:"seconds,omitempty"`
}

// AdminRequest serves the parameter, pause and treasury requests.
type AdminRequest struct {
	Envelope
	Bps       uint32          `json:"bps,omitempty"`
	Seconds   int64           `json:"seconds,omitempty"`
	Recipient core.Principal  `json:"recipient,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
}

// QueryRequest serves the list and lookup reads.
type QueryRequest struct {
	Envelope
	AuctionID     uint64         `json:"auction_id,omitempty"`
	Principal     core.Principal `json:"principal,omitempty"`
	Format        core.Format    `json:"format,omitempty"`
	WindowSeconds int64          `json:"window_seconds,omitempty"`
}

// Response is the single response shape of the daemon. Only the fields
// relevant to the request type are set.
type Response struct {
	Type           string                 `json:"type"`
	Success        bool                   `json:"success"`
	ErrorKind      string                 `json:"error_kind,omitempty"`
	Message        string                 `json:"message,omitempty"`
	AuctionID      uint64                 `json:"auction_id,omitempty"`
	Auction        *core.Auction          `json:"auction,omitempty"`
	Auctions       []core.Auction         `json:"auctions,omitempty"`
	Record         *core.SettlementRecord `json:"record,omitempty"`
	Amount         *decimal.Decimal       `json:"amount,omitempty"`
	HasBid         *bool                  `json:"has_bid,omitempty"`
	Stats          *core.Stats            `json:"stats,omitempty"`
	Distribution   map[core.Format]uint64 `json:"distribution,omitempty"`
	Receipt        *Receipt               `json:"receipt,omitempty"`
	Key            *KeyResponse           `json:"key,omitempty"`
	ProcessingTime int64                  `json:"processing_time_ms"`
}

// ReceiptPayload is the CBOR body of a signed receipt. Amounts are decimal
// strings at core.AmountPrecision places and times are Unix milliseconds, so
// the deterministic encoding of a record never changes.
type ReceiptPayload struct {
	ReceiptID        string `cbor:"receipt_id" json:"receipt_id"`
	AuctionID        uint64 `cbor:"auction_id" json:"auction_id"`
	AssetID          string `cbor:"asset_id" json:"asset_id"`
	Format           string `cbor:"format" json:"format"`
	Outcome          string `cbor:"outcome" json:"outcome"`
	Seller           string `cbor:"seller" json:"seller"`
	Winner           string `cbor:"winner" json:"winner"`
	WinningBid       string `cbor:"winning_bid" json:"winning_bid"`
	PlatformFee      string `cbor:"platform_fee" json:"platform_fee"`
	RoyaltyRecipient string `cbor:"royalty_recipient" json:"royalty_recipient"`
	RoyaltyFee       string `cbor:"royalty_fee" json:"royalty_fee"`
	SellerProceeds   string `cbor:"seller_proceeds" json:"seller_proceeds"`
	Refunds          int    `cbor:"refunds" json:"refunds"`
	Forfeited        string `cbor:"forfeited" json:"forfeited"`
	Reason           string `cbor:"reason" json:"reason"`
	ClosedAt         int64  `cbor:"closed_at" json:"closed_at"`
	IssuedAt         int64  `cbor:"issued_at" json:"issued_at"`
	RecordHash       string `cbor:"record_hash" json:"record_hash"`
}

// Receipt is a signed statement of how an auction closed.
type Receipt struct {
	ReceiptID  string       `json:"receipt_id"`
	AuctionID  uint64       `json:"auction_id"`
	Outcome    core.Outcome `json:"outcome"`
	RecordHash string       `json:"record_hash"`
	COSE       COSEBase64   `json:"cose"`
	IssuedAt   time.Time    `json:"issued_at"`
}

// KeyResponse describes the receipt signing key.
type KeyResponse struct {
	Algorithm      string     `json:"algorithm"`
	KeyID          string     `json:"key_id"`
	PublicKey      string     `json:"public_key"` // PEM format
	KeyAttestation COSEBase64 `json:"key_attestation,omitempty"`
}

// PCRs represents the Platform Configuration Registers from AWS Nitro Enclaves
type PCRs struct {
	// PCR0: Hash of the Enclave Image File (EIF)
	ImageFileHash string `json:"0"`

	// PCR1: Hash of the Linux kernel and initial RAM data (initramfs)
	KernelHash string `json:"1"`

	// PCR2: Hash of user applications, excluding the boot ramfs
	ApplicationHash string `json:"2"`

	// PCR3: Hash of the IAM role assigned to the parent instance
	IAMRoleHash string `json:"3"`

	// PCR4: Hash of the parent instance's ID
	InstanceIDHash string `json:"4"`

	// PCR8: Hash of the enclave image file's signing certificate
	SigningCertHash string `json:"8,omitempty"`
}

// AttestationDoc holds the fields common to every Nitro attestation.
type AttestationDoc struct {
	ModuleID        string    `json:"module_id"`
	Timestamp       time.Time `json:"timestamp"`
	DigestAlgorithm string    `json:"digest"`
	PCRs            PCRs      `json:"pcrs"`
	Certificate     string    `json:"certificate"`
	CABundle        []string  `json:"cabundle"`
	PublicKey       string    `json:"public_key"`
	Nonce           string    `json:"nonce"`
}

// KeyAttestationDoc is an attestation binding the receipt signing key to an
// enclave image.
type KeyAttestationDoc struct {
	AttestationDoc
	UserData *KeyAttestationUserData `json:"user_data"`
}

// KeyAttestationUserData is embedded in a key attestation.
type KeyAttestationUserData struct {
	KeyAlgorithm string `json:"key_algorithm"`
	PublicKey    string `json:"public_key"` // PEM-encoded public key
	Purpose      string `json:"purpose"`
}
