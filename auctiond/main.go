// Command auctiond runs the auction engine behind a one-request-per-connection
// JSON protocol over tcp or vsock, with an optional HTTP side server for
// health, metrics and the notification feed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/assetauction/config"
	"github.com/cloudx-io/assetauction/core"
	"github.com/cloudx-io/assetauction/engine"
	"github.com/cloudx-io/assetauction/memory"
	"github.com/cloudx-io/assetauction/metrics"
	"github.com/cloudx-io/assetauction/receipt"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(2)
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log.Logger); err != nil {
		log.Fatal().Err(err).Msg("auction daemon stopped")
	}
}

func setupLogging(cfg *config.Config) {
	zerolog.SetGlobalLevel(cfg.ZerologLevel())
	if cfg.Log.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// collaborators are the in-process stand-ins for the external registry,
// role table and value rail.
type collaborators struct {
	assets  *memory.Assets
	roles   *memory.Roles
	wallets *memory.Wallets
}

func bootstrap(b config.BootstrapConfig) (*collaborators, error) {
	c := &collaborators{
		assets:  memory.NewAssets(),
		roles:   memory.NewRoles(),
		wallets: memory.NewWallets(),
	}
	for role, principals := range b.Roles {
		for _, p := range principals {
			c.roles.Grant(core.Role(role), core.Principal(p))
		}
	}
	for _, a := range b.Assets {
		if err := c.assets.Mint(core.AssetID(a.ID), core.Principal(a.Owner)); err != nil {
			return nil, fmt.Errorf("bootstrap asset %s: %w", a.ID, err)
		}
		if a.RoyaltyRecipient != "" && a.RoyaltyBps > 0 {
			if err := c.assets.SetRoyalty(core.AssetID(a.ID), core.Principal(a.RoyaltyRecipient), a.RoyaltyBps); err != nil {
				return nil, fmt.Errorf("bootstrap royalty %s: %w", a.ID, err)
			}
		}
	}
	for p, amount := range b.Balances {
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("bootstrap balance %s: %w", p, err)
		}
		if err := c.wallets.Fund(core.Principal(p), d); err != nil {
			return nil, fmt.Errorf("bootstrap balance %s: %w", p, err)
		}
	}
	return c, nil
}

func newNotary(cfg config.ReceiptsConfig, logger zerolog.Logger) (*receipt.Notary, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	keys, err := receipt.LoadOrCreateKeyManager(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize receipt key: %w", err)
	}
	opts := receipt.Options{Keys: keys, Logger: &logger}
	if cfg.Attest {
		attester, err := receipt.NitroAttester()
		if err != nil {
			return nil, err
		}
		opts.Attester = attester
	}
	notary, err := receipt.NewNotary(opts)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("key_id", keys.KeyID()).Bool("attest", cfg.Attest).Msg("receipt signing key ready")
	return notary, nil
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	collab, err := bootstrap(cfg.Bootstrap)
	if err != nil {
		return err
	}

	notary, err := newNotary(cfg.Receipts, logger)
	if err != nil {
		return err
	}
	collector := metrics.NewCollector("")
	hub := NewHub(cfg.HTTP.EventBuffer, logger)

	sinks := engine.MultiSink{collector, hub}
	if notary != nil {
		// the notary goes first so receipts exist before subscribers hear of the close
		sinks = engine.MultiSink{notary, collector, hub}
	}

	eng, err := engine.New(engine.Options{
		Auth:             collab.roles,
		Assets:           collab.assets,
		Payouts:          collab.wallets,
		Events:           sinks,
		Custodian:        core.Principal(cfg.Engine.Custodian),
		AssetRegistryRef: cfg.Engine.AssetRegistryRef,
		Fees:             cfg.FeeConfig(),
		Logger:           &logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	opts := ServerOptions{
		Config:  cfg.Server,
		Engine:  eng,
		Notary:  notary,
		Metrics: collector,
		Logger:  logger,
	}
	if cfg.Engine.DevMode {
		opts.Wallets = collab.wallets
		logger.Warn().Msg("dev mode: attached value is debited from in-memory wallets")
	}
	server := NewServer(opts)

	listener, err := server.Listen()
	if err != nil {
		return err
	}

	if cfg.HTTP.Enabled {
		httpServer := &http.Server{
			Addr:              cfg.HTTP.Address,
			Handler:           newRouter(eng, notary, collector, hub, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info().Str("address", cfg.HTTP.Address).Msg("http server listening")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("http server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("http server shutdown failed")
			}
		}()
	}

	return server.Serve(ctx, listener)
}
