package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/mdlayher/vsock"
	"github.com/rs/zerolog"

	"github.com/cloudx-io/assetauction/config"
	"github.com/cloudx-io/assetauction/core"
	"github.com/cloudx-io/assetauction/engine"
	"github.com/cloudx-io/assetauction/engineapi"
	"github.com/cloudx-io/assetauction/memory"
	"github.com/cloudx-io/assetauction/metrics"
	"github.com/cloudx-io/assetauction/receipt"
)

// maxRequestBytes caps a single request body.
const maxRequestBytes = 1 << 20

var (
	errRateLimited = errors.New("rate limit exceeded")
	errUnknownType = errors.New("unknown request type")
)

// mutating lists the request types subject to per-caller rate limiting.
var mutating = map[string]bool{
	engineapi.TypeCreateAuction:         true,
	engineapi.TypePlaceBid:              true,
	engineapi.TypeBuyNow:                true,
	engineapi.TypeSubmitCommitment:      true,
	engineapi.TypeStartReveal:           true,
	engineapi.TypeRevealBid:             true,
	engineapi.TypeSettleAuction:         true,
	engineapi.TypeCancelAuction:         true,
	engineapi.TypeEmergencyCancel:       true,
	engineapi.TypeExtendAuction:         true,
	engineapi.TypeUpdatePlatformFee:     true,
	engineapi.TypeUpdateMinBidIncrement: true,
	engineapi.TypeUpdateMaxExtension:    true,
	engineapi.TypePause:                 true,
	engineapi.TypeUnpause:               true,
	engineapi.TypeWithdrawPlatformFees:  true,
	engineapi.TypeWithdraw:              true,
	engineapi.TypeClaimAsset:            true,
}

// ServerOptions wires a Server.
type ServerOptions struct {
	Config config.ServerConfig
	Engine *engine.Engine
	// Wallets, when set, is debited for the value attached to bids, buy-now
	// payments and sealed deposits before the engine sees them.
	Wallets *memory.Wallets
	// Notary is nil when receipts are disabled.
	Notary  *receipt.Notary
	Metrics *metrics.Collector
	Logger  zerolog.Logger
}

// Server serves one JSON request per connection.
type Server struct {
	cfg     config.ServerConfig
	engine  *engine.Engine
	wallets *memory.Wallets
	notary  *receipt.Notary
	metrics *metrics.Collector
	limiter *callerLimiter
	log     zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	m := opts.Metrics
	if m == nil {
		m = metrics.NewCollector("")
	}
	return &Server{
		cfg:     opts.Config,
		engine:  opts.Engine,
		wallets: opts.Wallets,
		notary:  opts.Notary,
		metrics: m,
		limiter: newCallerLimiter(opts.Config.RateLimit, opts.Config.RateBurst),
		log:     opts.Logger.With().Str("component", "server").Logger(),
	}
}

// Listen opens the configured tcp or vsock listener.
func (s *Server) Listen() (net.Listener, error) {
	switch s.cfg.Network {
	case "vsock":
		listener, err := vsock.Listen(s.cfg.VsockPort, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create vsock listener: %w", err)
		}
		return listener, nil
	default:
		listener, err := net.Listen("tcp", s.cfg.Address)
		if err != nil {
			return nil, fmt.Errorf("failed to create tcp listener: %w", err)
		}
		return listener, nil
	}
}

// Serve accepts connections until ctx is cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	maxWorkers := s.cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	semaphore := make(chan struct{}, maxWorkers)

	s.log.Info().
		Str("address", listener.Addr().String()).
		Int("max_workers", maxWorkers).
		Msg("auction server listening")

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Error().Err(err).Msg("failed to accept connection")
			continue
		}

		// Acquire worker slot - immediate rejection if pool full
		select {
		case semaphore <- struct{}{}:
			s.metrics.RecordInFlight(1)
			go func(c net.Conn) {
				defer func() {
					s.metrics.RecordInFlight(-1)
					<-semaphore
				}()
				s.handleConnection(ctx, c)
			}(conn)
		default:
			s.log.Warn().Msg("no workers available, rejecting connection")
			s.metrics.RecordRejected("busy")
			if err := conn.Close(); err != nil {
				s.log.Error().Err(err).Msg("failed to close rejected connection")
			}
		}
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("panic recovered in connection handler")
		}
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.log.Error().Err(err).Msg("failed to close connection")
		}
	}()

	timeout := s.cfg.ReadTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(timeout))

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(conn, maxRequestBytes)); err != nil {
		s.log.Error().Err(err).Msg("failed to read request")
		return
	}

	resp := s.handle(ctx, buf.Bytes())
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.log.Error().Err(err).Str("type", resp.Type).Msg("failed to encode response")
	}
}

// handle decodes, rate limits and dispatches one request.
func (s *Server) handle(ctx context.Context, data []byte) engineapi.Response {
	start := time.Now()

	var env engineapi.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.metrics.RecordRejected("malformed")
		return failure(engineapi.TypeError, core.Validationf("decode request: %v", err), start)
	}

	respType := env.Type + "_response"
	if env.Type == engineapi.TypePing {
		respType = "pong"
	}

	if mutating[env.Type] && !s.limiter.Allow(env.Caller) {
		s.metrics.RecordRejected("rate_limited")
		s.log.Warn().Str("type", env.Type).Str("caller", string(env.Caller)).Msg("request rate limited")
		return failure(respType, errRateLimited, start)
	}

	resp, err := s.dispatch(ctx, env.Type, data)
	if errors.Is(err, errUnknownType) {
		s.metrics.RecordRejected("unknown_type")
		return failure(engineapi.TypeError, err, start)
	}
	s.metrics.RecordRequest(env.Type, time.Since(start), err)

	if err != nil {
		s.log.Warn().Err(err).
			Str("type", env.Type).
			Str("caller", string(env.Caller)).
			Msg("request rejected")
		return failure(respType, err, start)
	}

	resp.Type = respType
	resp.Success = true
	resp.ProcessingTime = time.Since(start).Milliseconds()
	return resp
}

func failure(respType string, err error, start time.Time) engineapi.Response {
	kind := core.KindOf(err)
	switch {
	case errors.Is(err, errRateLimited):
		kind = "rate_limited"
	case errors.Is(err, errUnknownType):
		kind = "validation"
	}
	return engineapi.Response{
		Type:           respType,
		Success:        false,
		ErrorKind:      kind,
		Message:        err.Error(),
		ProcessingTime: time.Since(start).Milliseconds(),
	}
}
