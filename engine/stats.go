package engine

import (
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/assetauction/core"
)

func newStats() core.Stats {
	return core.Stats{
		TotalVolume:       decimal.Zero,
		TotalPlatformFees: decimal.Zero,
		FormatCounts:      make(map[core.Format]uint64, len(core.Formats)),
	}
}

// Stats are written only by these transition hooks.

func (e *Engine) recordCreated(f core.Format) {
	e.stats.TotalCount++
	e.stats.ActiveCount++
	e.stats.FormatCounts[f]++
}

func (e *Engine) recordSettled(volume, fees decimal.Decimal) {
	e.stats.ActiveCount--
	e.stats.SettledCount++
	e.stats.TotalVolume = e.stats.TotalVolume.Add(volume)
	e.stats.TotalPlatformFees = e.stats.TotalPlatformFees.Add(fees)
}

func (e *Engine) recordCancelled(forfeited decimal.Decimal) {
	e.stats.ActiveCount--
	e.stats.CancelledCount++
	e.stats.TotalPlatformFees = e.stats.TotalPlatformFees.Add(forfeited)
}

// GetStats returns a snapshot of the running counters.
func (e *Engine) GetStats() core.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := e.stats
	out.FormatCounts = e.formatDistributionLocked()
	return out
}

// GetFormatDistribution returns the number of auctions created per format.
// Every format is present, with zero when unused.
func (e *Engine) GetFormatDistribution() map[core.Format]uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.formatDistributionLocked()
}

func (e *Engine) formatDistributionLocked() map[core.Format]uint64 {
	out := make(map[core.Format]uint64, len(core.Formats))
	for _, f := range core.Formats {
		out[f] = e.stats.FormatCounts[f]
	}
	return out
}
