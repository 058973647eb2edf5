package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/rs/zerolog"

	"github.com/cloudx-io/assetauction/core"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "auctiond.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	check.Equal(t, core.DefaultFeeConfig(), cfg.FeeConfig())
	check.Equal(t, zerolog.InfoLevel, cfg.ZerologLevel())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  network: vsock
  vsock_port: 5005
  max_workers: 4
fees:
  platform_fee_bps: 100
  anti_snipe_window: 5m
  unrevealed_policy: forfeit
log:
  level: debug
  format: console
bootstrap:
  roles:
    admin: [root]
    pauser: [ops]
  assets:
    - id: art-1
      owner: sam
      royalty_recipient: creator
      royalty_bps: 500
  balances:
    alice: "100.5"
`)

	cfg, err := Load(path)
	assert.NoError(t, err)
	check.Equal(t, "vsock", cfg.Server.Network)
	check.Equal(t, uint32(5005), cfg.Server.VsockPort)
	check.Equal(t, 4, cfg.Server.MaxWorkers)
	// untouched sections keep their defaults
	check.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	check.Equal(t, "auction-engine", cfg.Engine.Custodian)

	fees := cfg.FeeConfig()
	check.Equal(t, uint32(100), fees.PlatformFeeBps)
	check.Equal(t, uint32(500), fees.MinBidIncrementBps)
	check.Equal(t, 5*time.Minute, fees.AntiSnipeWindow)
	check.Equal(t, core.UnrevealedForfeit, fees.UnrevealedPolicy)

	check.Equal(t, zerolog.DebugLevel, cfg.ZerologLevel())
	check.Equal(t, []string{"root"}, cfg.Bootstrap.Roles["admin"])
	check.Equal(t, 1, len(cfg.Bootstrap.Assets))
	check.Equal(t, uint32(500), cfg.Bootstrap.Assets[0].RoyaltyBps)
	check.Equal(t, "100.5", cfg.Bootstrap.Balances["alice"])
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  address: 127.0.0.1:9000\n")
	t.Setenv("AUCTIOND_ADDRESS", "0.0.0.0:9100")
	t.Setenv("AUCTIOND_PLATFORM_FEE_BPS", "300")
	t.Setenv("AUCTIOND_REVEAL_WINDOW", "2h")
	t.Setenv("AUCTIOND_DEV_MODE", "true")

	cfg, err := Load(path)
	assert.NoError(t, err)
	check.Equal(t, "0.0.0.0:9100", cfg.Server.Address)
	check.Equal(t, uint32(300), cfg.Fees.PlatformFeeBps)
	check.Equal(t, 2*time.Hour, cfg.Fees.RevealWindow)
	check.True(t, cfg.Engine.DevMode)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	check.Error(t, err)

	_, err = Load(writeConfig(t, "server: [not, a, map]"))
	check.Error(t, err)

	_, err = Load(writeConfig(t, "fees:\n  platform_fee_bps: 5000\n"))
	check.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "network", mutate: func(c *Config) { c.Server.Network = "udp" }, want: "server.network"},
		{name: "tcp address", mutate: func(c *Config) { c.Server.Address = "" }, want: "server.address"},
		{name: "vsock port", mutate: func(c *Config) { c.Server.Network = "vsock"; c.Server.VsockPort = 0 }, want: "server.vsock_port"},
		{name: "workers", mutate: func(c *Config) { c.Server.MaxWorkers = 0 }, want: "server.max_workers"},
		{name: "burst", mutate: func(c *Config) { c.Server.RateBurst = 0 }, want: "server.rate_burst"},
		{name: "http address", mutate: func(c *Config) { c.HTTP.Address = "" }, want: "http.address"},
		{name: "custodian", mutate: func(c *Config) { c.Engine.Custodian = "" }, want: "engine.custodian"},
		{name: "increment bound", mutate: func(c *Config) { c.Fees.MinBidIncrementBps = 2001 }, want: "fees:"},
		{name: "policy", mutate: func(c *Config) { c.Fees.UnrevealedPolicy = "keep" }, want: "fees:"},
		{name: "log level", mutate: func(c *Config) { c.Log.Level = "loud" }, want: "log.level"},
		{name: "log format", mutate: func(c *Config) { c.Log.Format = "xml" }, want: "log.format"},
		{name: "role", mutate: func(c *Config) { c.Bootstrap.Roles = map[string][]string{"king": {"x"}} }, want: "unknown role"},
		{name: "asset", mutate: func(c *Config) { c.Bootstrap.Assets = []AssetConfig{{ID: "a"}} }, want: "bootstrap.assets[0]"},
		{name: "royalty", mutate: func(c *Config) {
			c.Bootstrap.Assets = []AssetConfig{{ID: "a", Owner: "o", RoyaltyBps: 10001}}
		}, want: "royalty_bps"},
		{name: "balance", mutate: func(c *Config) { c.Bootstrap.Balances = map[string]string{"a": "-1"} }, want: "bootstrap.balances.a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			check.Error(t, err)
			if err != nil {
				check.True(t, strings.Contains(err.Error(), tt.want))
			}
		})
	}

	// every problem is reported, not only the first
	cfg := Default()
	cfg.Server.MaxWorkers = 0
	cfg.Log.Format = "xml"
	err := cfg.Validate()
	check.Error(t, err)
	if err != nil {
		check.True(t, strings.Contains(err.Error(), "server.max_workers"))
		check.True(t, strings.Contains(err.Error(), "log.format"))
	}
}
