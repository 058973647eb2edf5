package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/assetauction/core"
)

func TestCreateAuction_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.assets.mint("asset-x", "seller")

	tests := []struct {
		name string
		p    core.CreateParams
	}{
		{"missing asset", core.CreateParams{Format: core.FormatAscending, StartPrice: d("1"), Duration: time.Hour}},
		{"unknown format", core.CreateParams{AssetID: "asset-x", Format: core.Format(9), StartPrice: d("1"), Duration: time.Hour}},
		{"zero start price", core.CreateParams{AssetID: "asset-x", Format: core.FormatAscending, Duration: time.Hour}},
		{"too short", core.CreateParams{AssetID: "asset-x", Format: core.FormatAscending, StartPrice: d("1"), Duration: 30 * time.Minute}},
		{"too long", core.CreateParams{AssetID: "asset-x", Format: core.FormatAscending, StartPrice: d("1"), Duration: 31 * 24 * time.Hour}},
		{"ascending with reserve", core.CreateParams{AssetID: "asset-x", Format: core.FormatAscending, StartPrice: d("1"), ReservePrice: d("2"), Duration: time.Hour}},
		{"buy-now below start", core.CreateParams{AssetID: "asset-x", Format: core.FormatAscending, StartPrice: d("2"), BuyNowPrice: d("1"), Duration: time.Hour}},
		{"descending reserve above start", core.CreateParams{AssetID: "asset-x", Format: core.FormatDescending, StartPrice: d("1"), ReservePrice: d("2"), Duration: time.Hour}},
		{"descending with increment", core.CreateParams{AssetID: "asset-x", Format: core.FormatDescending, StartPrice: d("3"), ReservePrice: d("1"), BidIncrement: d("0.1"), Duration: time.Hour}},
		{"sealed with buy-now", core.CreateParams{AssetID: "asset-x", Format: core.FormatSealed, StartPrice: d("1"), BuyNowPrice: d("5"), Duration: time.Hour}},
		{"reserve below start", core.CreateParams{AssetID: "asset-x", Format: core.FormatReserveGated, StartPrice: d("2"), ReservePrice: d("1"), Duration: time.Hour}},
		{"buy-now below reserve", core.CreateParams{AssetID: "asset-x", Format: core.FormatReserveGated, StartPrice: d("1"), ReservePrice: d("5"), BuyNowPrice: d("3"), Duration: time.Hour}},
		{"too precise", core.CreateParams{AssetID: "asset-x", Format: core.FormatAscending, StartPrice: d("0.0000000000000000001"), Duration: time.Hour}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.e.CreateAuction(ctx, "seller", tt.p)
			check.True(t, errors.Is(err, core.ErrValidation))
		})
	}
	check.Equal(t, core.Principal("seller"), h.assets.ownerOf("asset-x"))
	check.Equal(t, uint64(0), h.e.GetStats().TotalCount)
}

func TestCreateAuction_TakesCustody(t *testing.T) {
	h := newHarness(t)

	id := h.create(t, "seller", core.CreateParams{AssetID: "asset-1", Format: core.FormatAscending, StartPrice: d("1")})
	check.Equal(t, uint64(1), id)
	check.Equal(t, custodian, h.assets.ownerOf("asset-1"))

	a := h.auction(t, id)
	check.Equal(t, core.StatusActive, a.Status)
	check.Equal(t, "test-registry", a.AssetRegistryRef)
	check.Equal(t, int64(600), a.ExtensionSeconds)
	check.Equal(t, h.clock.Now().Add(time.Hour), a.EndTime)
	check.Equal(t, []EventKind{EventAuctionCreated}, h.sink.kinds())
}

func TestCreateAuction_RequiresOwnership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.assets.mint("asset-1", "seller")

	_, err := h.e.CreateAuction(ctx, "mallory", core.CreateParams{AssetID: "asset-1", Format: core.FormatAscending, StartPrice: d("1"), Duration: time.Hour})
	check.True(t, errors.Is(err, core.ErrAuthorization))

	_, err = h.e.CreateAuction(ctx, "seller", core.CreateParams{AssetID: "asset-404", Format: core.FormatAscending, StartPrice: d("1"), Duration: time.Hour})
	check.True(t, errors.Is(err, core.ErrValidation))

	// once listed the asset is held by the engine and cannot be listed again
	h.create(t, "seller", core.CreateParams{AssetID: "asset-1", Format: core.FormatAscending, StartPrice: d("1")})
	_, err = h.e.CreateAuction(ctx, "seller", core.CreateParams{AssetID: "asset-1", Format: core.FormatAscending, StartPrice: d("1"), Duration: time.Hour})
	check.True(t, errors.Is(err, core.ErrAuthorization))
}

func TestCreateAuction_CustodyFailureLeavesNoRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.assets.mint("asset-1", "seller")
	h.assets.setFailTo(custodian, true)

	p := core.CreateParams{AssetID: "asset-1", Format: core.FormatAscending, StartPrice: d("1"), Duration: time.Hour}
	_, err := h.e.CreateAuction(ctx, "seller", p)
	check.True(t, errors.Is(err, core.ErrFunds))

	_, err = h.e.GetAuction(1)
	check.True(t, errors.Is(err, core.ErrNotFound))
	check.Equal(t, 0, len(h.e.GetActiveAuctions()))
	check.Equal(t, 0, len(h.e.GetUserAuctions("seller")))
	check.Equal(t, uint64(0), h.e.GetStats().TotalCount)
	check.Equal(t, 0, len(h.sink.kinds()))

	h.assets.setFailTo(custodian, false)
	id, err := h.e.CreateAuction(ctx, "seller", p)
	assert.NoError(t, err)
	check.Equal(t, core.StatusActive, h.auction(t, id).Status)
}

func TestAscending_BidSequence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, "seller", core.CreateParams{Format: core.FormatAscending, StartPrice: d("1.0")})

	err := h.e.PlaceBid(ctx, "alice", id, d("0.99"))
	check.True(t, errors.Is(err, core.ErrValidation))

	assert.NoError(t, h.e.PlaceBid(ctx, "alice", id, d("1.0")))

	// 5% over 1.0 is required
	err = h.e.PlaceBid(ctx, "bob", id, d("1.04"))
	check.True(t, errors.Is(err, core.ErrValidation))

	assert.NoError(t, h.e.PlaceBid(ctx, "bob", id, d("1.05")))
	check.Equal(t, "1", h.payouts.total("alice"))

	assert.NoError(t, h.e.PlaceBid(ctx, "carol", id, d("1.2")))
	check.Equal(t, "1.05", h.payouts.total("bob"))

	a := h.auction(t, id)
	check.Equal(t, core.Principal("carol"), a.HighestBidder)
	check.Equal(t, "1.2", a.HighestBid.String())
	check.Equal(t, 3, a.BidCount)
	check.Equal(t, "1.2", h.e.EscrowBalance().String())
	h.invariants(t)

	err = h.e.PlaceBid(ctx, "seller", id, d("2"))
	check.True(t, errors.Is(err, core.ErrAuthorization))

	h.clock.advance(time.Hour)
	err = h.e.PlaceBid(ctx, "alice", id, d("2"))
	check.True(t, errors.Is(err, core.ErrTiming))

	rec, err := h.e.SettleAuction(ctx, "anyone", id)
	assert.NoError(t, err)
	check.Equal(t, core.OutcomeSettled, rec.Outcome)
	check.Equal(t, core.Principal("carol"), rec.Winner)
	check.Equal(t, "0.03", rec.PlatformFee.String())
	check.Equal(t, "1.17", rec.SellerProceeds.String())
	check.Equal(t, "1.17", h.payouts.total("seller"))
	check.Equal(t, core.Principal("carol"), h.assets.ownerOf(a.AssetID))
	check.Equal(t, "0.03", h.e.EscrowBalance().String())
	check.Equal(t, "0.03", h.e.PlatformFeeBalance().String())
	h.invariants(t)

	a = h.auction(t, id)
	check.Equal(t, core.StatusSettled, a.Status)
	check.True(t, a.AssetClaimed)
	check.True(t, a.SellerPaid)
	check.Equal(t, 2, h.sink.count(EventBidRefunded))
}

func TestAscending_IncrementUsesLargerStep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, "seller", core.CreateParams{Format: core.FormatAscending, StartPrice: d("1"), BidIncrement: d("0.5")})

	assert.NoError(t, h.e.PlaceBid(ctx, "alice", id, d("1")))
	err := h.e.PlaceBid(ctx, "bob", id, d("1.49"))
	check.True(t, errors.Is(err, core.ErrValidation))
	assert.NoError(t, h.e.PlaceBid(ctx, "bob", id, d("1.5")))
}

func TestAscending_AntiSnipeExtends(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, "seller", core.CreateParams{Format: core.FormatAscending, StartPrice: d("1")})
	start := h.clock.Now()

	assert.NoError(t, h.e.PlaceBid(ctx, "alice", id, d("1")))
	check.Equal(t, start.Add(time.Hour), h.auction(t, id).EndTime)

	h.clock.advance(55 * time.Minute)
	assert.NoError(t, h.e.PlaceBid(ctx, "bob", id, d("2")))
	check.Equal(t, start.Add(65*time.Minute), h.auction(t, id).EndTime)

	ev, ok := h.sink.last(EventAuctionExtended)
	assert.True(t, ok)
	check.Equal(t, "anti-snipe", ev.Detail)

	// still open past the original end
	h.clock.advance(6 * time.Minute)
	_, err := h.e.SettleAuction(ctx, "anyone", id)
	check.True(t, errors.Is(err, core.ErrTiming))
	assert.NoError(t, h.e.PlaceBid(ctx, "alice", id, d("3")))
}

func TestAscending_BuyNowSettlesImmediately(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, "seller", core.CreateParams{Format: core.FormatAscending, StartPrice: d("1"), BuyNowPrice: d("5")})

	assert.NoError(t, h.e.PlaceBid(ctx, "alice", id, d("1")))
	assert.NoError(t, h.e.PlaceBid(ctx, "bob", id, d("5")))

	a := h.auction(t, id)
	check.Equal(t, core.StatusSettled, a.Status)
	check.True(t, a.EndedEarly)
	rec, ok := h.e.GetSettlementRecord(id)
	assert.True(t, ok)
	check.Equal(t, core.Principal("bob"), rec.Winner)
	check.Equal(t, "1", h.payouts.total("alice"))

	err := h.e.PlaceBid(ctx, "carol", id, d("6"))
	check.True(t, errors.Is(err, core.ErrState))
	h.invariants(t)
}

func TestReserveGated_NotMetCancels(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, "seller", core.CreateParams{Format: core.FormatReserveGated, StartPrice: d("1"), ReservePrice: d("5")})
	asset := h.auction(t, id).AssetID

	assert.NoError(t, h.e.PlaceBid(ctx, "alice", id, d("1")))
	assert.NoError(t, h.e.PlaceBid(ctx, "bob", id, d("2")))
	check.False(t, h.auction(t, id).ReserveReached)
	check.Equal(t, 0, h.sink.count(EventReserveReached))

	h.clock.advance(time.Hour)
	rec, err := h.e.SettleAuction(ctx, "anyone", id)
	assert.NoError(t, err)
	check.Equal(t, core.OutcomeCancelled, rec.Outcome)
	check.Equal(t, "reserve not met", rec.Reason)

	a := h.auction(t, id)
	check.Equal(t, core.StatusCancelled, a.Status)
	check.Equal(t, core.Principal("seller"), h.assets.ownerOf(asset))
	check.Equal(t, "1", h.payouts.total("alice"))
	check.Equal(t, "2", h.payouts.total("bob"))
	check.Equal(t, "0", h.e.EscrowBalance().String())

	stats := h.e.GetStats()
	check.Equal(t, uint64(1), stats.CancelledCount)
	check.Equal(t, uint64(0), stats.ActiveCount)
	check.Equal(t, "0", stats.TotalVolume.String())
	h.invariants(t)
}

func TestReserveGated_MetSells(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, "seller", core.CreateParams{Format: core.FormatReserveGated, StartPrice: d("1"), ReservePrice: d("5")})

	assert.NoError(t, h.e.PlaceBid(ctx, "alice", id, d("1")))
	assert.NoError(t, h.e.PlaceBid(ctx, "bob", id, d("5")))
	assert.NoError(t, h.e.PlaceBid(ctx, "alice", id, d("6")))
	check.True(t, h.auction(t, id).ReserveReached)
	check.Equal(t, 1, h.sink.count(EventReserveReached))

	h.clock.advance(time.Hour)
	rec, err := h.e.SettleAuction(ctx, "anyone", id)
	assert.NoError(t, err)
	check.Equal(t, core.OutcomeSettled, rec.Outcome)
	check.Equal(t, core.Principal("alice"), rec.Winner)
	check.Equal(t, "0.15", rec.PlatformFee.String())
	check.Equal(t, "5.85", rec.SellerProceeds.String())
}

func TestDescending_BuyNowWithOverpay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, "seller", core.CreateParams{Format: core.FormatDescending, StartPrice: d("3"), ReservePrice: d("1"), Duration: 3600 * time.Second})

	price, err := h.e.GetCurrentDescendingPrice(id)
	assert.NoError(t, err)
	check.Equal(t, "3", price.String())

	h.clock.advance(1800 * time.Second)
	price, err = h.e.GetCurrentDescendingPrice(id)
	assert.NoError(t, err)
	check.Equal(t, "2", price.String())

	err = h.e.BuyNowDescending(ctx, "bob", id, d("1.9"))
	check.True(t, errors.Is(err, core.ErrFunds))

	assert.NoError(t, h.e.BuyNowDescending(ctx, "bob", id, d("2.5")))
	check.Equal(t, "0.5", h.payouts.total("bob"))

	a := h.auction(t, id)
	check.Equal(t, core.StatusSettled, a.Status)
	check.Equal(t, "2", a.HighestBid.String())
	rec, ok := h.e.GetSettlementRecord(id)
	assert.True(t, ok)
	check.Equal(t, "0.05", rec.PlatformFee.String())
	check.Equal(t, "1.95", rec.SellerProceeds.String())
	check.Equal(t, core.Principal("bob"), h.assets.ownerOf(a.AssetID))
	h.invariants(t)

	err = h.e.BuyNowDescending(ctx, "carol", id, d("3"))
	check.True(t, errors.Is(err, core.ErrState))
	_, err = h.e.GetCurrentDescendingPrice(id)
	check.True(t, errors.Is(err, core.ErrState))
}

func TestDescending_ExpiresUnsold(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, "seller", core.CreateParams{Format: core.FormatDescending, StartPrice: d("3"), ReservePrice: d("1")})

	err := h.e.PlaceBid(ctx, "alice", id, d("3"))
	check.True(t, errors.Is(err, core.ErrState))

	h.clock.advance(time.Hour)
	err = h.e.BuyNowDescending(ctx, "alice", id, d("3"))
	check.True(t, errors.Is(err, core.ErrTiming))

	rec, err := h.e.SettleAuction(ctx, "anyone", id)
	assert.NoError(t, err)
	check.Equal(t, core.OutcomeCancelled, rec.Outcome)
	check.Equal(t, "no bids", rec.Reason)
}

func TestCancelAuction(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, "seller", core.CreateParams{Format: core.FormatAscending, StartPrice: d("1")})
	assert.NoError(t, h.e.PlaceBid(ctx, "alice", id, d("1")))

	err := h.e.CancelAuction(ctx, "alice", id, "")
	check.True(t, errors.Is(err, core.ErrAuthorization))

	assert.NoError(t, h.e.CancelAuction(ctx, "seller", id, ""))
	a := h.auction(t, id)
	check.Equal(t, core.StatusCancelled, a.Status)
	check.Equal(t, "cancelled by seller", a.CancelReason)
	check.Equal(t, "1", h.payouts.total("alice"))
	check.Equal(t, core.Principal("seller"), h.assets.ownerOf(a.AssetID))

	err = h.e.CancelAuction(ctx, "seller", id, "")
	check.True(t, errors.Is(err, core.ErrState))
	_, err = h.e.SettleAuction(ctx, "anyone", id)
	check.True(t, errors.Is(err, core.ErrState))
	h.invariants(t)
}

func TestStatusIsMonotonic(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, "seller", core.CreateParams{Format: core.FormatSealed, StartPrice: d("1")})

	var seen []core.Status
	observe := func() {
		seen = append(seen, h.auction(t, id).Status)
	}
	observe()
	assert.NoError(t, h.e.SubmitCommitment(ctx, "alice", id, core.ComputeCommitHash(d("2"), "n", "alice"), d("2")))
	observe()
	h.clock.advance(time.Hour)
	assert.NoError(t, h.e.StartRevealPhase(ctx, "anyone", id))
	observe()
	assert.NoError(t, h.e.RevealBid(ctx, "alice", id, d("2"), "n"))
	observe()
	_, err := h.e.SettleAuction(ctx, "anyone", id)
	assert.NoError(t, err)
	observe()

	for i := 1; i < len(seen); i++ {
		check.True(t, seen[i] == seen[i-1] || seen[i-1].CanTransition(seen[i], core.FormatSealed))
	}
	check.Equal(t, core.StatusSettled, seen[len(seen)-1])
}
