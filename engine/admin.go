package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/assetauction/core"
	"github.com/cloudx-io/assetauction/escrow"
)

// UpdatePlatformFee sets the platform fee applied at settlement.
func (e *Engine) UpdatePlatformFee(ctx context.Context, caller core.Principal, bps uint32) error {
	if err := e.authorize(ctx, caller, core.RoleFeeManager); err != nil {
		return err
	}
	if bps > core.MaxPlatformFeeBps {
		return core.Validationf("platform fee %d bps exceeds maximum %d bps", bps, core.MaxPlatformFeeBps)
	}
	return e.run(ctx, true, func(tx *txn) error {
		old := e.fees.PlatformFeeBps
		e.fees.PlatformFeeBps = bps
		e.parameterChangedLocked(tx, caller, "platform_fee_bps", fmt.Sprint(old), fmt.Sprint(bps))
		return nil
	})
}

// UpdateMinBidIncrement sets the percentage floor of the bid increment rule.
func (e *Engine) UpdateMinBidIncrement(ctx context.Context, caller core.Principal, bps uint32) error {
	if err := e.authorize(ctx, caller, core.RoleFeeManager); err != nil {
		return err
	}
	if bps > core.MaxMinBidIncrementBps {
		return core.Validationf("minimum bid increment %d bps exceeds maximum %d bps", bps, core.MaxMinBidIncrementBps)
	}
	return e.run(ctx, true, func(tx *txn) error {
		old := e.fees.MinBidIncrementBps
		e.fees.MinBidIncrementBps = bps
		e.parameterChangedLocked(tx, caller, "min_bid_increment_bps", fmt.Sprint(old), fmt.Sprint(bps))
		return nil
	})
}

// UpdateMaxExtension sets the largest single operator extension.
func (e *Engine) UpdateMaxExtension(ctx context.Context, caller core.Principal, seconds int64) error {
	if err := e.authorize(ctx, caller, core.RoleFeeManager); err != nil {
		return err
	}
	if seconds < 0 {
		return core.Validationf("max extension must not be negative, got %ds", seconds)
	}
	d := secondsToDuration(seconds)
	if d > core.MaxExtensionLimit {
		return core.Validationf("max extension %s exceeds limit %s", d, core.MaxExtensionLimit)
	}
	return e.run(ctx, true, func(tx *txn) error {
		old := e.fees.MaxExtension
		e.fees.MaxExtension = d
		e.parameterChangedLocked(tx, caller, "max_extension", old.String(), d.String())
		return nil
	})
}

// Pause rejects every pausable operation until Unpause.
func (e *Engine) Pause(ctx context.Context, caller core.Principal) error {
	if err := e.authorize(ctx, caller, core.RolePauser); err != nil {
		return err
	}
	return e.run(ctx, false, func(tx *txn) error {
		if e.paused {
			return core.Statef("engine is already paused")
		}
		e.paused = true
		ev := newEvent(EventPaused, nil, tx.now)
		ev.Principal = caller
		tx.emit(ev)
		e.log.Warn().Str("caller", string(caller)).Msg("engine paused")
		return nil
	})
}

// Unpause lifts a Pause.
func (e *Engine) Unpause(ctx context.Context, caller core.Principal) error {
	if err := e.authorize(ctx, caller, core.RolePauser); err != nil {
		return err
	}
	return e.run(ctx, false, func(tx *txn) error {
		if !e.paused {
			return core.Statef("engine is not paused")
		}
		e.paused = false
		ev := newEvent(EventUnpaused, nil, tx.now)
		ev.Principal = caller
		tx.emit(ev)
		e.log.Info().Str("caller", string(caller)).Msg("engine unpaused")
		return nil
	})
}

// WithdrawPlatformFees sends up to the accrued platform fees to recipient.
// A rejected send returns the amount to the fee balance.
func (e *Engine) WithdrawPlatformFees(ctx context.Context, caller, recipient core.Principal, amount decimal.Decimal) error {
	if err := e.authorize(ctx, caller, core.RoleTreasurer); err != nil {
		return err
	}
	if recipient == "" {
		return core.Validationf("recipient is required")
	}

	var t escrow.Transfer
	err := e.run(ctx, true, func(tx *txn) error {
		var err error
		t, err = e.ledger.WithdrawFees(recipient, amount)
		return err
	})
	if err != nil {
		return err
	}

	if err := e.send(ctx, t); err != nil {
		return core.Fundsf("platform fee withdrawal to %s failed: %v", recipient, err)
	}
	ev := newEvent(EventPlatformFeesPaid, nil, e.clock.Now())
	ev.Principal = recipient
	ev.Amount = amount
	ev.Detail = string(caller)
	e.events.Publish(ev)
	e.log.Info().Str("recipient", string(recipient)).Str("amount", amount.String()).Msg("platform fees withdrawn")
	return nil
}

// FeeConfig returns the current parameters.
func (e *Engine) FeeConfig() core.FeeConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fees
}

// Paused reports whether the engine or the authorization provider is paused.
func (e *Engine) Paused(ctx context.Context) bool {
	e.mu.Lock()
	paused := e.paused
	e.mu.Unlock()
	return paused || e.auth.IsGloballyPaused(ctx)
}

func (e *Engine) parameterChangedLocked(tx *txn, caller core.Principal, name, old, updated string) {
	ev := newEvent(EventParameterChanged, nil, tx.now)
	ev.Principal = caller
	ev.Detail = fmt.Sprintf("%s: %s -> %s", name, old, updated)
	tx.emit(ev)
	e.log.Info().Str("parameter", name).Str("old", old).Str("new", updated).Str("caller", string(caller)).Msg("parameter changed")
}

// secondsToDuration converts without overflowing; anything past the
// representable range saturates.
func secondsToDuration(seconds int64) time.Duration {
	const maxSeconds = int64(1<<63-1) / int64(time.Second)
	if seconds > maxSeconds {
		return time.Duration(1<<63 - 1)
	}
	return time.Duration(seconds) * time.Second
}
