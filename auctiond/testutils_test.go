package main

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/assetauction/config"
	"github.com/cloudx-io/assetauction/core"
	"github.com/cloudx-io/assetauction/engine"
	"github.com/cloudx-io/assetauction/engineapi"
	"github.com/cloudx-io/assetauction/metrics"
	"github.com/cloudx-io/assetauction/receipt"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) advance(dur time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(dur)
}

type harness struct {
	clock   *testClock
	collab  *collaborators
	engine  *engine.Engine
	notary  *receipt.Notary
	metrics *metrics.Collector
	hub     *Hub
	server  *Server
}

func testBootstrap() config.BootstrapConfig {
	return config.BootstrapConfig{
		Roles: map[string][]string{
			string(core.RoleAdmin): {"root"},
		},
		Assets: []config.AssetConfig{
			{ID: "art-1", Owner: "seller", RoyaltyRecipient: "creator", RoyaltyBps: 1000},
			{ID: "art-2", Owner: "seller"},
		},
		Balances: map[string]string{
			"alice": "100",
			"bob":   "100",
		},
	}
}

// newHarness wires a dev-mode server over in-memory collaborators and a
// controllable clock.
func newHarness(t *testing.T, serverCfg config.ServerConfig) *harness {
	t.Helper()
	logger := zerolog.Nop()

	collab, err := bootstrap(testBootstrap())
	assert.NoError(t, err)

	keys, err := receipt.NewKeyManager()
	assert.NoError(t, err)
	notary, err := receipt.NewNotary(receipt.Options{Keys: keys, Logger: &logger})
	assert.NoError(t, err)

	collector := metrics.NewCollector("test")
	hub := NewHub(8, logger)
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	eng, err := engine.New(engine.Options{
		Auth:      collab.roles,
		Assets:    collab.assets,
		Payouts:   collab.wallets,
		Clock:     clock,
		Events:    engine.MultiSink{notary, collector, hub},
		Custodian: "custody",
		Fees:      core.DefaultFeeConfig(),
		Logger:    &logger,
	})
	assert.NoError(t, err)

	server := NewServer(ServerOptions{
		Config:  serverCfg,
		Engine:  eng,
		Wallets: collab.wallets,
		Notary:  notary,
		Metrics: collector,
		Logger:  logger,
	})

	return &harness{
		clock:   clock,
		collab:  collab,
		engine:  eng,
		notary:  notary,
		metrics: collector,
		hub:     hub,
		server:  server,
	}
}

func (h *harness) call(t *testing.T, req any) engineapi.Response {
	t.Helper()
	data, err := json.Marshal(req)
	assert.NoError(t, err)
	return h.server.handle(context.Background(), data)
}

func envelope(typ string, caller core.Principal) engineapi.Envelope {
	return engineapi.Envelope{Type: typ, Caller: caller}
}

func (h *harness) createAscending(t *testing.T, asset core.AssetID) uint64 {
	t.Helper()
	resp := h.call(t, engineapi.CreateAuctionRequest{
		Envelope:        envelope(engineapi.TypeCreateAuction, "seller"),
		AssetID:         asset,
		Format:          core.FormatAscending,
		StartPrice:      d("1"),
		DurationSeconds: 3600,
	})
	assert.True(t, resp.Success)
	return resp.AuctionID
}
