// Package config loads the auctiond configuration: a YAML file, then a .env
// file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/cloudx-io/assetauction/core"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	HTTP      HTTPConfig      `yaml:"http"`
	Engine    EngineConfig    `yaml:"engine"`
	Fees      FeesConfig      `yaml:"fees"`
	Receipts  ReceiptsConfig  `yaml:"receipts"`
	Log       LogConfig       `yaml:"log"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

// ServerConfig configures the request listener.
type ServerConfig struct {
	Network     string        `yaml:"network" env:"AUCTIOND_NETWORK"` // tcp or vsock
	Address     string        `yaml:"address" env:"AUCTIOND_ADDRESS"`
	VsockPort   uint32        `yaml:"vsock_port" env:"AUCTIOND_VSOCK_PORT"`
	MaxWorkers  int           `yaml:"max_workers" env:"AUCTIOND_MAX_WORKERS"`
	ReadTimeout time.Duration `yaml:"read_timeout" env:"AUCTIOND_READ_TIMEOUT"`
	// RateLimit is the sustained number of mutating requests per second
	// allowed for one caller. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit" env:"AUCTIOND_RATE_LIMIT"`
	RateBurst int     `yaml:"rate_burst" env:"AUCTIOND_RATE_BURST"`
}

// HTTPConfig configures the side server for health, metrics and the event feed.
type HTTPConfig struct {
	Enabled     bool   `yaml:"enabled" env:"AUCTIOND_HTTP_ENABLED"`
	Address     string `yaml:"address" env:"AUCTIOND_HTTP_ADDRESS"`
	EventBuffer int    `yaml:"event_buffer" env:"AUCTIOND_HTTP_EVENT_BUFFER"`
}

type EngineConfig struct {
	Custodian        string `yaml:"custodian" env:"AUCTIOND_CUSTODIAN"`
	AssetRegistryRef string `yaml:"asset_registry_ref" env:"AUCTIOND_ASSET_REGISTRY_REF"`
	// DevMode debits the in-memory wallet of the caller for value-carrying
	// requests. Without it value is taken as already attached.
	DevMode bool `yaml:"dev_mode" env:"AUCTIOND_DEV_MODE"`
}

type FeesConfig struct {
	PlatformFeeBps     uint32        `yaml:"platform_fee_bps" env:"AUCTIOND_PLATFORM_FEE_BPS"`
	MinBidIncrementBps uint32        `yaml:"min_bid_increment_bps" env:"AUCTIOND_MIN_BID_INCREMENT_BPS"`
	MaxExtension       time.Duration `yaml:"max_extension" env:"AUCTIOND_MAX_EXTENSION"`
	AntiSnipeWindow    time.Duration `yaml:"anti_snipe_window" env:"AUCTIOND_ANTI_SNIPE_WINDOW"`
	RevealWindow       time.Duration `yaml:"reveal_window" env:"AUCTIOND_REVEAL_WINDOW"`
	UnrevealedPolicy   string        `yaml:"unrevealed_policy" env:"AUCTIOND_UNREVEALED_POLICY"`
}

type ReceiptsConfig struct {
	Enabled bool `yaml:"enabled" env:"AUCTIOND_RECEIPTS_ENABLED"`
	// KeyFile persists the signing key. Empty means an ephemeral key.
	KeyFile string `yaml:"key_file" env:"AUCTIOND_RECEIPTS_KEY_FILE"`
	// Attest requests a Nitro attestation of the signing key.
	Attest bool `yaml:"attest" env:"AUCTIOND_RECEIPTS_ATTEST"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"AUCTIOND_LOG_LEVEL"`
	Format string `yaml:"format" env:"AUCTIOND_LOG_FORMAT"` // json or console
}

// BootstrapConfig seeds the in-memory collaborators at startup.
type BootstrapConfig struct {
	Roles    map[string][]string `yaml:"roles"`    // role -> principals
	Assets   []AssetConfig       `yaml:"assets"`   // minted before serving
	Balances map[string]string   `yaml:"balances"` // principal -> decimal amount
}

type AssetConfig struct {
	ID               string `yaml:"id"`
	Owner            string `yaml:"owner"`
	RoyaltyRecipient string `yaml:"royalty_recipient"`
	RoyaltyBps       uint32 `yaml:"royalty_bps"`
}

// Default returns a configuration that validates and serves on localhost.
func Default() *Config {
	fees := core.DefaultFeeConfig()
	return &Config{
		Server: ServerConfig{
			Network:     "tcp",
			Address:     "127.0.0.1:7400",
			VsockPort:   5000,
			MaxWorkers:  32,
			ReadTimeout: 30 * time.Second,
			RateLimit:   20,
			RateBurst:   40,
		},
		HTTP: HTTPConfig{
			Enabled:     true,
			Address:     "127.0.0.1:7401",
			EventBuffer: 64,
		},
		Engine: EngineConfig{
			Custodian: "auction-engine",
		},
		Fees: FeesConfig{
			PlatformFeeBps:     fees.PlatformFeeBps,
			MinBidIncrementBps: fees.MinBidIncrementBps,
			MaxExtension:       fees.MaxExtension,
			AntiSnipeWindow:    fees.AntiSnipeWindow,
			RevealWindow:       fees.RevealWindow,
			UnrevealedPolicy:   string(fees.UnrevealedPolicy),
		},
		Receipts: ReceiptsConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from Default, the YAML file at path (skipped
// when path is empty), a .env file in the working directory if present, and
// the AUCTIOND_* environment. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var knownRoles = map[core.Role]bool{
	core.RoleAdmin:      true,
	core.RoleFeeManager: true,
	core.RolePauser:     true,
	core.RoleTreasurer:  true,
	core.RoleOperator:   true,
	core.RoleEmergency:  true,
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Server.Network {
	case "tcp":
		if c.Server.Address == "" {
			fail("server.address is required for tcp")
		}
	case "vsock":
		if c.Server.VsockPort == 0 {
			fail("server.vsock_port is required for vsock")
		}
	default:
		fail("server.network must be tcp or vsock, got %q", c.Server.Network)
	}
	if c.Server.MaxWorkers <= 0 {
		fail("server.max_workers must be positive")
	}
	if c.Server.ReadTimeout <= 0 {
		fail("server.read_timeout must be positive")
	}
	if c.Server.RateLimit < 0 {
		fail("server.rate_limit must not be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst <= 0 {
		fail("server.rate_burst must be positive when rate limiting")
	}

	if c.HTTP.Enabled && c.HTTP.Address == "" {
		fail("http.address is required when http is enabled")
	}
	if c.HTTP.EventBuffer < 0 {
		fail("http.event_buffer must not be negative")
	}

	if c.Engine.Custodian == "" {
		fail("engine.custodian is required")
	}
	if err := c.FeeConfig().Validate(); err != nil {
		fail("fees: %w", err)
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		fail("log.level: %w", err)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		fail("log.format must be json or console, got %q", c.Log.Format)
	}

	for role, principals := range c.Bootstrap.Roles {
		if !knownRoles[core.Role(role)] {
			fail("bootstrap.roles: unknown role %q", role)
		}
		for _, p := range principals {
			if strings.TrimSpace(p) == "" {
				fail("bootstrap.roles.%s: empty principal", role)
			}
		}
	}
	for i, a := range c.Bootstrap.Assets {
		if a.ID == "" || a.Owner == "" {
			fail("bootstrap.assets[%d]: id and owner are required", i)
		}
		if a.RoyaltyBps > 10000 {
			fail("bootstrap.assets[%d]: royalty_bps %d exceeds 10000", i, a.RoyaltyBps)
		}
	}
	for p, amount := range c.Bootstrap.Balances {
		d, err := decimal.NewFromString(amount)
		if err != nil || d.IsNegative() {
			fail("bootstrap.balances.%s: invalid amount %q", p, amount)
		}
	}

	return errors.Join(errs...)
}

// FeeConfig converts the fees section for the engine.
func (c *Config) FeeConfig() core.FeeConfig {
	return core.FeeConfig{
		PlatformFeeBps:     c.Fees.PlatformFeeBps,
		MinBidIncrementBps: c.Fees.MinBidIncrementBps,
		MaxExtension:       c.Fees.MaxExtension,
		AntiSnipeWindow:    c.Fees.AntiSnipeWindow,
		RevealWindow:       c.Fees.RevealWindow,
		UnrevealedPolicy:   core.UnrevealedPolicy(c.Fees.UnrevealedPolicy),
	}
}

// ZerologLevel returns the configured level. It assumes Validate passed.
func (c *Config) ZerologLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
