package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/assetauction/core"
)

// EventKind names a notification.
type EventKind string

const (
	EventAuctionCreated      EventKind = "auction_created"
	EventBidPlaced           EventKind = "bid_placed"
	EventBidRefunded         EventKind = "bid_refunded"
	EventCommitmentSubmitted EventKind = "commitment_submitted"
	EventRevealPhaseStarted  EventKind = "reveal_phase_started"
	EventBidRevealed         EventKind = "bid_revealed"
	EventReserveReached      EventKind = "reserve_reached"
	EventAuctionSettled      EventKind = "auction_settled"
	EventAuctionCancelled    EventKind = "auction_cancelled"
	EventAuctionExtended     EventKind = "auction_extended"
	EventParameterChanged    EventKind = "parameter_changed"
	EventPaused              EventKind = "paused"
	EventUnpaused            EventKind = "unpaused"
	EventPayoutCredited      EventKind = "payout_credited"
	EventWithdrawal          EventKind = "withdrawal"
	EventPlatformFeesPaid    EventKind = "platform_fees_withdrawn"
	EventAssetClaimed        EventKind = "asset_claimed"
)

// Event is a notification of a committed state transition.
type Event struct {
	ID        string                 `json:"id"`
	Kind      EventKind              `json:"kind"`
	AuctionID uint64                 `json:"auction_id,omitempty"`
	Format    core.Format            `json:"format,omitempty"`
	Principal core.Principal         `json:"principal,omitempty"`
	Amount    decimal.Decimal        `json:"amount"`
	Detail    string                 `json:"detail,omitempty"`
	EndTime   time.Time              `json:"end_time,omitempty"`
	Record    *core.SettlementRecord `json:"record,omitempty"`
	At        time.Time              `json:"at"`
}

func newEvent(kind EventKind, a *core.Auction, at time.Time) Event {
	ev := Event{
		ID:     uuid.NewString(),
		Kind:   kind,
		Amount: decimal.Zero,
		At:     at,
	}
	if a != nil {
		ev.AuctionID = a.ID
		ev.Format = a.Format
	}
	return ev
}
