package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Principal identifies a party (seller, bidder, admin, platform account).
type Principal string

// AssetID identifies a uniquely-identified asset in the external asset registry.
type AssetID string

// Format selects the competitive-sale mechanism of an auction.
type Format uint8

const (
	FormatAscending Format = iota + 1
	FormatDescending
	FormatSealed
	FormatReserveGated
)

// Formats lists every supported format in declaration order.
var Formats = []Format{FormatAscending, FormatDescending, FormatSealed, FormatReserveGated}

var formatNames = map[Format]string{
	FormatAscending:    "ascending",
	FormatDescending:   "descending",
	FormatSealed:       "sealed",
	FormatReserveGated: "reserve_gated",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("format(%d)", uint8(f))
}

// Valid reports whether f is one of the supported formats.
func (f Format) Valid() bool {
	_, ok := formatNames[f]
	return ok
}

// ParseFormat parses a format name as produced by Format.String.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for f, name := range formatNames {
		if name == s {
			return f, nil
		}
	}
	return 0, Validationf("unknown auction format %q", s)
}

func (f Format) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("invalid format %d", uint8(f))
	}
	return []byte(f.String()), nil
}

func (f *Format) UnmarshalText(text []byte) error {
	parsed, err := ParseFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Status is the lifecycle state of an auction.
//
// Pending exists only while an auction is being constructed and is never
// returned by reads. Revealing is reachable only by the sealed format.
type Status uint8

const (
	StatusPending Status = iota
	StatusActive
	StatusRevealing
	StatusSettled
	StatusCancelled
)

var statusNames = map[Status]string{
	StatusPending:   "pending",
	StatusActive:    "active",
	StatusRevealing: "revealing",
	StatusSettled:   "settled",
	StatusCancelled: "cancelled",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusSettled || s == StatusCancelled
}

// Open reports whether the auction is live (Active or Revealing).
func (s Status) Open() bool {
	return s == StatusActive || s == StatusRevealing
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// step for format f.
func (s Status) CanTransition(next Status, f Format) bool {
	switch s {
	case StatusPending:
		return next == StatusActive
	case StatusActive:
		if next == StatusRevealing {
			return f == FormatSealed
		}
		if next == StatusSettled {
			return f != FormatSealed
		}
		return next == StatusCancelled
	case StatusRevealing:
		return next == StatusSettled || next == StatusCancelled
	default:
		return false
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for st, name := range statusNames {
		if name == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown auction status %q", string(text))
}

// Auction is the canonical record of one listed asset sale.
type Auction struct {
	ID               uint64          `json:"id"`
	AssetID          AssetID         `json:"asset_id"`
	AssetRegistryRef string          `json:"asset_registry_ref"`
	Seller           Principal       `json:"seller"`
	Format           Format          `json:"format"`
	Status           Status          `json:"status"`
	StartPrice       decimal.Decimal `json:"start_price"`
	ReservePrice     decimal.Decimal `json:"reserve_price"`
	BuyNowPrice      decimal.Decimal `json:"buy_now_price"` // zero = disabled
	StartTime        time.Time       `json:"start_time"`
	EndTime          time.Time       `json:"end_time"`
	ExtensionSeconds int64           `json:"extension_seconds"` // anti-snipe window
	RevealDeadline   time.Time       `json:"reveal_deadline,omitempty"`
	HighestBidder    Principal       `json:"highest_bidder,omitempty"`
	HighestBid       decimal.Decimal `json:"highest_bid"`
	BidIncrement     decimal.Decimal `json:"bid_increment"`
	BidCount         int             `json:"bid_count"`
	ReserveReached   bool            `json:"reserve_reached"`
	EndedEarly       bool            `json:"ended_early"`
	AssetClaimed     bool            `json:"asset_claimed"`
	SellerPaid       bool            `json:"seller_paid"`
	AssetRecipient   Principal       `json:"asset_recipient,omitempty"`
	CancelReason     string          `json:"cancel_reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	ClosedAt         time.Time       `json:"closed_at,omitempty"`
}

// HasBid reports whether a leading bid exists.
func (a *Auction) HasBid() bool {
	return a.HighestBidder != "" && a.HighestBid.IsPositive()
}

// Ended reports whether bidding time is over at now.
func (a *Auction) Ended(now time.Time) bool {
	return a.EndedEarly || !now.Before(a.EndTime)
}

// Commitment is a sealed-format bid: a hash binding (amount, nonce, bidder)
// and the deposit locked alongside it.
type Commitment struct {
	Bidder         Principal       `json:"bidder"`
	CommitHash     string          `json:"commit_hash"`
	LockedValue    decimal.Decimal `json:"locked_value"`
	Revealed       bool            `json:"revealed"`
	RevealedAmount decimal.Decimal `json:"revealed_amount"`
	CommittedAt    time.Time       `json:"committed_at"`
}

// UnrevealedPolicy decides what happens to sealed deposits that were never
// revealed when the auction settles.
type UnrevealedPolicy string

const (
	UnrevealedRefund  UnrevealedPolicy = "refund"
	UnrevealedForfeit UnrevealedPolicy = "forfeit"
)

const (
	MaxPlatformFeeBps     = 1000
	MaxMinBidIncrementBps = 2000
	MaxExtensionLimit     = 7 * 24 * time.Hour
	MinAuctionDuration    = time.Hour
	MaxAuctionDuration    = 30 * 24 * time.Hour
)

// FeeConfig holds the process-wide parameters mutated only through the admin
// surface.
type FeeConfig struct {
	PlatformFeeBps     uint32           `json:"platform_fee_bps"`
	MinBidIncrementBps uint32           `json:"min_bid_increment_bps"`
	MaxExtension       time.Duration    `json:"max_extension"`
	AntiSnipeWindow    time.Duration    `json:"anti_snipe_window"`
	RevealWindow       time.Duration    `json:"reveal_window"`
	UnrevealedPolicy   UnrevealedPolicy `json:"unrevealed_policy"`
}

// DefaultFeeConfig returns the deployment defaults.
func DefaultFeeConfig() FeeConfig {
	return FeeConfig{
		PlatformFeeBps:     250,
		MinBidIncrementBps: 500,
		MaxExtension:       24 * time.Hour,
		AntiSnipeWindow:    10 * time.Minute,
		RevealWindow:       24 * time.Hour,
		UnrevealedPolicy:   UnrevealedRefund,
	}
}

// Validate checks every bound of the configuration.
func (c FeeConfig) Validate() error {
	if c.PlatformFeeBps > MaxPlatformFeeBps {
		return Validationf("platform fee %d bps exceeds maximum %d bps", c.PlatformFeeBps, MaxPlatformFeeBps)
	}
	if c.MinBidIncrementBps > MaxMinBidIncrementBps {
		return Validationf("minimum bid increment %d bps exceeds maximum %d bps", c.MinBidIncrementBps, MaxMinBidIncrementBps)
	}
	if c.MaxExtension < 0 || c.MaxExtension > MaxExtensionLimit {
		return Validationf("max extension %s outside [0, %s]", c.MaxExtension, MaxExtensionLimit)
	}
	if c.AntiSnipeWindow < 0 {
		return Validationf("anti-snipe window must not be negative")
	}
	if c.RevealWindow <= 0 {
		return Validationf("reveal window must be positive")
	}
	switch c.UnrevealedPolicy {
	case UnrevealedRefund, UnrevealedForfeit:
	default:
		return Validationf("unknown unrevealed policy %q", c.UnrevealedPolicy)
	}
	return nil
}

// CreateParams are the seller-supplied parameters of a new auction.
type CreateParams struct {
	AssetID      AssetID         `json:"asset_id"`
	Format       Format          `json:"format"`
	StartPrice   decimal.Decimal `json:"start_price"`
	ReservePrice decimal.Decimal `json:"reserve_price"`
	BuyNowPrice  decimal.Decimal `json:"buy_now_price"`
	Duration     time.Duration   `json:"duration"`
	BidIncrement decimal.Decimal `json:"bid_increment"`
}

// Stats are derived counters kept in sync by lifecycle transitions.
type Stats struct {
	TotalCount        uint64            `json:"total_count"`
	ActiveCount       uint64            `json:"active_count"`
	SettledCount      uint64            `json:"settled_count"`
	CancelledCount    uint64            `json:"cancelled_count"`
	TotalVolume       decimal.Decimal   `json:"total_volume"`
	TotalPlatformFees decimal.Decimal   `json:"total_platform_fees"`
	FormatCounts      map[Format]uint64 `json:"format_counts"`
}

// Outcome is the terminal result recorded for an auction.
type Outcome string

const (
	OutcomeSettled   Outcome = "settled"
	OutcomeCancelled Outcome = "cancelled"
)

// SettlementRecord describes how an auction was closed and how value moved.
type SettlementRecord struct {
	AuctionID        uint64          `json:"auction_id"`
	AssetID          AssetID         `json:"asset_id"`
	Format           Format          `json:"format"`
	Outcome          Outcome         `json:"outcome"`
	Seller           Principal       `json:"seller"`
	Winner           Principal       `json:"winner,omitempty"`
	WinningBid       decimal.Decimal `json:"winning_bid"`
	PlatformFee      decimal.Decimal `json:"platform_fee"`
	RoyaltyRecipient Principal       `json:"royalty_recipient,omitempty"`
	RoyaltyFee       decimal.Decimal `json:"royalty_fee"`
	SellerProceeds   decimal.Decimal `json:"seller_proceeds"`
	Refunds          int             `json:"refunds"`
	Forfeited        decimal.Decimal `json:"forfeited"`
	Reason           string          `json:"reason,omitempty"`
	ClosedAt         time.Time       `json:"closed_at"`
}

// Role names a capability checked against the authorization provider.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleFeeManager Role = "fee_manager"
	RolePauser     Role = "pauser"
	RoleTreasurer  Role = "treasurer"
	RoleOperator   Role = "operator"
	RoleEmergency  Role = "emergency"
)
