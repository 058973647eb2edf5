package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/assetauction/config"
	"github.com/cloudx-io/assetauction/core"
	"github.com/cloudx-io/assetauction/engineapi"
	"github.com/cloudx-io/assetauction/validation"
)

func TestHandle_Ping(t *testing.T) {
	h := newHarness(t, config.Default().Server)

	resp := h.call(t, envelope(engineapi.TypePing, ""))
	check.True(t, resp.Success)
	check.Equal(t, "pong", resp.Type)
	check.Equal(t, "auction server is healthy", resp.Message)
}

func TestHandle_AscendingFlowWithReceipt(t *testing.T) {
	h := newHarness(t, config.Default().Server)
	ctx := context.Background()

	id := h.createAscending(t, "art-1")
	owner, err := h.collab.assets.OwnerOf(ctx, "art-1")
	assert.NoError(t, err)
	check.Equal(t, core.Principal("custody"), owner)

	resp := h.call(t, engineapi.BidRequest{Envelope: envelope(engineapi.TypePlaceBid, "alice"), AuctionID: id, Amount: d("5")})
	assert.True(t, resp.Success)
	check.Equal(t, "place_bid_response", resp.Type)
	check.Equal(t, "95", h.collab.wallets.Balance("alice").String())

	resp = h.call(t, engineapi.BidRequest{Envelope: envelope(engineapi.TypePlaceBid, "bob"), AuctionID: id, Amount: d("10")})
	assert.True(t, resp.Success)
	check.Equal(t, "100", h.collab.wallets.Balance("alice").String())
	check.Equal(t, "90", h.collab.wallets.Balance("bob").String())

	resp = h.call(t, engineapi.QueryRequest{Envelope: envelope(engineapi.TypeHasUserBid, "alice"), AuctionID: id})
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.HasBid)
	check.True(t, *resp.HasBid)

	resp = h.call(t, engineapi.AuctionRequest{Envelope: envelope(engineapi.TypeSettleAuction, "anyone"), AuctionID: id})
	check.False(t, resp.Success)
	check.Equal(t, "timing", resp.ErrorKind)

	h.clock.advance(2 * time.Hour)
	resp = h.call(t, engineapi.AuctionRequest{Envelope: envelope(engineapi.TypeSettleAuction, "anyone"), AuctionID: id})
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Record)
	check.Equal(t, core.OutcomeSettled, resp.Record.Outcome)
	check.Equal(t, core.Principal("bob"), resp.Record.Winner)
	check.Equal(t, "0.25", resp.Record.PlatformFee.String())
	check.Equal(t, "1", resp.Record.RoyaltyFee.String())
	check.Equal(t, "8.75", resp.Record.SellerProceeds.String())

	owner, err = h.collab.assets.OwnerOf(ctx, "art-1")
	assert.NoError(t, err)
	check.Equal(t, core.Principal("bob"), owner)
	check.Equal(t, "8.75", h.collab.wallets.Balance("seller").String())
	check.Equal(t, "1", h.collab.wallets.Balance("creator").String())
	check.NoError(t, h.engine.CheckInvariants())

	// the receipt handed back with the settlement verifies against the
	// published key
	assert.NotNil(t, resp.Receipt)
	keyResp := h.call(t, envelope(engineapi.TypeReceiptKey, ""))
	assert.True(t, keyResp.Success)
	assert.NotNil(t, keyResp.Key)
	check.Equal(t, engineapi.ReceiptKeyAlgorithm, keyResp.Key.Algorithm)

	result, err := validation.ValidateReceipt(&validation.ReceiptValidationInput{
		Receipt:    resp.Receipt.COSE,
		PublicKey:  keyResp.Key.PublicKey,
		AuctionID:  id,
		Outcome:    core.OutcomeSettled,
		Winner:     "bob",
		WinningBid: "10",
	})
	assert.NoError(t, err)
	check.True(t, result.IsValid())

	stored := h.call(t, engineapi.AuctionRequest{Envelope: envelope(engineapi.TypeGetReceipt, ""), AuctionID: id})
	assert.True(t, stored.Success)
	assert.NotNil(t, stored.Receipt)
	check.Equal(t, resp.Receipt.ReceiptID, stored.Receipt.ReceiptID)

	stats := h.call(t, envelope(engineapi.TypeGetStats, ""))
	assert.True(t, stats.Success)
	check.Equal(t, uint64(1), stats.Stats.SettledCount)
	check.Equal(t, "10", stats.Stats.TotalVolume.String())
}

func TestHandle_SealedFlow(t *testing.T) {
	h := newHarness(t, config.Default().Server)

	resp := h.call(t, engineapi.CreateAuctionRequest{
		Envelope:        envelope(engineapi.TypeCreateAuction, "seller"),
		AssetID:         "art-2",
		Format:          core.FormatSealed,
		StartPrice:      d("1"),
		DurationSeconds: 3600,
	})
	assert.True(t, resp.Success)
	id := resp.AuctionID

	for bidder, amount := range map[core.Principal]string{"alice": "7", "bob": "9"} {
		resp = h.call(t, engineapi.BidRequest{
			Envelope:   envelope(engineapi.TypeSubmitCommitment, bidder),
			AuctionID:  id,
			Amount:     d(amount),
			CommitHash: core.ComputeCommitHash(d(amount), "nonce-"+string(bidder), bidder),
		})
		assert.True(t, resp.Success)
	}
	check.Equal(t, "93", h.collab.wallets.Balance("alice").String())
	check.Equal(t, "91", h.collab.wallets.Balance("bob").String())

	// revealing while bidding is open is a timing error and costs nothing
	resp = h.call(t, engineapi.BidRequest{Envelope: envelope(engineapi.TypeRevealBid, "alice"), AuctionID: id, Amount: d("7"), Nonce: "nonce-alice"})
	check.False(t, resp.Success)
	check.Equal(t, "timing", resp.ErrorKind)
	check.Equal(t, "93", h.collab.wallets.Balance("alice").String())

	h.clock.advance(time.Hour)
	resp = h.call(t, engineapi.AuctionRequest{Envelope: envelope(engineapi.TypeStartReveal, "anyone"), AuctionID: id})
	assert.True(t, resp.Success)

	for bidder, amount := range map[core.Principal]string{"alice": "7", "bob": "9"} {
		resp = h.call(t, engineapi.BidRequest{
			Envelope:  envelope(engineapi.TypeRevealBid, bidder),
			AuctionID: id,
			Amount:    d(amount),
			Nonce:     "nonce-" + string(bidder),
		})
		assert.True(t, resp.Success)
	}

	resp = h.call(t, engineapi.AuctionRequest{Envelope: envelope(engineapi.TypeSettleAuction, "anyone"), AuctionID: id})
	assert.True(t, resp.Success)
	check.Equal(t, core.Principal("bob"), resp.Record.Winner)
	check.Equal(t, "100", h.collab.wallets.Balance("alice").String())
	check.Equal(t, "91", h.collab.wallets.Balance("bob").String())
	check.NoError(t, h.engine.CheckInvariants())
}

func TestHandle_DevModeRefundsRejectedValue(t *testing.T) {
	h := newHarness(t, config.Default().Server)
	id := h.createAscending(t, "art-1")

	// not enough in the wallet
	resp := h.call(t, engineapi.BidRequest{Envelope: envelope(engineapi.TypePlaceBid, "alice"), AuctionID: id, Amount: d("500")})
	check.False(t, resp.Success)
	check.Equal(t, "funds", resp.ErrorKind)
	check.Equal(t, "100", h.collab.wallets.Balance("alice").String())

	// the engine rejects a bid below the start price and the value comes back
	resp = h.call(t, engineapi.BidRequest{Envelope: envelope(engineapi.TypePlaceBid, "alice"), AuctionID: id, Amount: d("0.5")})
	check.False(t, resp.Success)
	check.Equal(t, "100", h.collab.wallets.Balance("alice").String())
	check.False(t, h.engine.HasUserBid(id, "alice"))
}

func TestHandle_Errors(t *testing.T) {
	h := newHarness(t, config.Default().Server)

	resp := h.server.handle(context.Background(), []byte("{not json"))
	check.False(t, resp.Success)
	check.Equal(t, engineapi.TypeError, resp.Type)
	check.Equal(t, "validation", resp.ErrorKind)

	resp = h.call(t, envelope("launch_rockets", "alice"))
	check.False(t, resp.Success)
	check.Equal(t, engineapi.TypeError, resp.Type)
	check.Equal(t, "validation", resp.ErrorKind)

	resp = h.call(t, engineapi.QueryRequest{Envelope: envelope(engineapi.TypeGetAuction, ""), AuctionID: 42})
	check.False(t, resp.Success)
	check.Equal(t, "get_auction_response", resp.Type)
	check.Equal(t, "validation", resp.ErrorKind)

	resp = h.call(t, engineapi.AdminRequest{Envelope: envelope(engineapi.TypePause, "alice")})
	check.False(t, resp.Success)
	check.Equal(t, "authorization", resp.ErrorKind)

	resp = h.call(t, engineapi.AuctionRequest{Envelope: envelope(engineapi.TypeGetReceipt, ""), AuctionID: 42})
	check.False(t, resp.Success)
}

func TestHandle_AdminAndQueries(t *testing.T) {
	h := newHarness(t, config.Default().Server)
	id := h.createAscending(t, "art-1")

	resp := h.call(t, engineapi.AdminRequest{Envelope: envelope(engineapi.TypeUpdatePlatformFee, "root"), Bps: 300})
	assert.True(t, resp.Success)
	check.Equal(t, uint32(300), h.engine.FeeConfig().PlatformFeeBps)

	resp = h.call(t, engineapi.AdminRequest{Envelope: envelope(engineapi.TypePause, "root")})
	assert.True(t, resp.Success)
	resp = h.call(t, engineapi.BidRequest{Envelope: envelope(engineapi.TypePlaceBid, "alice"), AuctionID: id, Amount: d("5")})
	check.False(t, resp.Success)
	check.Equal(t, "authorization", resp.ErrorKind)
	check.Equal(t, "100", h.collab.wallets.Balance("alice").String())
	resp = h.call(t, engineapi.AdminRequest{Envelope: envelope(engineapi.TypeUnpause, "root")})
	assert.True(t, resp.Success)

	resp = h.call(t, engineapi.QueryRequest{Envelope: envelope(engineapi.TypeGetUserAuctions, "seller")})
	assert.True(t, resp.Success)
	check.Equal(t, 1, len(resp.Auctions))

	resp = h.call(t, engineapi.QueryRequest{Envelope: envelope(engineapi.TypeGetAuctionsByFormat, ""), Format: core.FormatAscending})
	assert.True(t, resp.Success)
	check.Equal(t, 1, len(resp.Auctions))

	resp = h.call(t, engineapi.QueryRequest{Envelope: envelope(engineapi.TypeGetEndingSoon, ""), WindowSeconds: 7200})
	assert.True(t, resp.Success)
	check.Equal(t, 1, len(resp.Auctions))

	resp = h.call(t, engineapi.QueryRequest{Envelope: envelope(engineapi.TypeGetEndingSoon, ""), WindowSeconds: -1})
	check.False(t, resp.Success)

	resp = h.call(t, envelope(engineapi.TypeGetFormatDistribution, ""))
	assert.True(t, resp.Success)
	check.Equal(t, uint64(1), resp.Distribution[core.FormatAscending])

	resp = h.call(t, engineapi.AuctionRequest{Envelope: envelope(engineapi.TypeCancelAuction, "seller"), AuctionID: id, Reason: "changed my mind"})
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Record)
	check.Equal(t, core.OutcomeCancelled, resp.Record.Outcome)
	check.NotNil(t, resp.Receipt)
}

func TestHandle_WithdrawFallback(t *testing.T) {
	h := newHarness(t, config.Default().Server)
	id := h.createAscending(t, "art-2")

	resp := h.call(t, envelope(engineapi.TypeWithdraw, "alice"))
	check.False(t, resp.Success)
	check.Equal(t, "funds", resp.ErrorKind)

	resp = h.call(t, engineapi.BidRequest{Envelope: envelope(engineapi.TypePlaceBid, "alice"), AuctionID: id, Amount: d("5")})
	assert.True(t, resp.Success)

	// alice's wallet refuses the outbid refund, so it waits in her pull balance
	h.collab.wallets.Reject("alice", true)
	resp = h.call(t, engineapi.BidRequest{Envelope: envelope(engineapi.TypePlaceBid, "bob"), AuctionID: id, Amount: d("10")})
	assert.True(t, resp.Success)
	check.Equal(t, "95", h.collab.wallets.Balance("alice").String())
	check.Equal(t, "5", h.engine.PendingWithdrawal("alice").String())

	h.collab.wallets.Reject("alice", false)
	resp = h.call(t, envelope(engineapi.TypeWithdraw, "alice"))
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Amount)
	check.Equal(t, "5", resp.Amount.String())
	check.Equal(t, "100", h.collab.wallets.Balance("alice").String())
	check.NoError(t, h.engine.CheckInvariants())
}

func TestHandle_RateLimit(t *testing.T) {
	cfg := config.Default().Server
	cfg.RateLimit = 0.001
	cfg.RateBurst = 1
	h := newHarness(t, cfg)

	h.createAscending(t, "art-1")
	resp := h.call(t, engineapi.CreateAuctionRequest{
		Envelope:        envelope(engineapi.TypeCreateAuction, "seller"),
		AssetID:         "art-2",
		Format:          core.FormatAscending,
		StartPrice:      d("1"),
		DurationSeconds: 3600,
	})
	check.False(t, resp.Success)
	check.Equal(t, "rate_limited", resp.ErrorKind)

	// reads are never limited
	resp = h.call(t, engineapi.QueryRequest{Envelope: envelope(engineapi.TypeGetActiveAuctions, "seller")})
	check.True(t, resp.Success)

	// other callers have their own budget
	resp = h.call(t, engineapi.BidRequest{Envelope: envelope(engineapi.TypePlaceBid, "alice"), AuctionID: 1, Amount: d("2")})
	check.True(t, resp.Success)
}

func TestServe_TCP(t *testing.T) {
	cfg := config.Default().Server
	cfg.Address = "127.0.0.1:0"
	h := newHarness(t, cfg)

	listener, err := net.Listen("tcp", cfg.Address)
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.server.Serve(ctx, listener) }()

	client := &engineapi.Client{Address: listener.Addr().String(), Timeout: 5 * time.Second}
	resp, err := client.Do(context.Background(), envelope(engineapi.TypePing, ""))
	assert.NoError(t, err)
	check.Equal(t, "pong", resp.Type)

	resp, err = client.Do(context.Background(), engineapi.CreateAuctionRequest{
		Envelope:        envelope(engineapi.TypeCreateAuction, "seller"),
		AssetID:         "art-1",
		Format:          core.FormatDescending,
		StartPrice:      d("10"),
		ReservePrice:    d("2"),
		DurationSeconds: 3600,
	})
	assert.NoError(t, err)
	assert.True(t, resp.Success)

	resp, err = client.Do(context.Background(), engineapi.QueryRequest{
		Envelope:  envelope(engineapi.TypeGetDescendingPrice, ""),
		AuctionID: resp.AuctionID,
	})
	assert.NoError(t, err)
	assert.True(t, resp.Success)
	check.Equal(t, "10", resp.Amount.String())

	cancel()
	select {
	case err := <-done:
		check.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestCallerLimiter_Disabled(t *testing.T) {
	l := newCallerLimiter(0, 0)
	check.True(t, l == nil)
	for range 100 {
		check.True(t, l.Allow("alice"))
	}
}
