package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/assetauction/core"
)

// AuthorizationProvider answers capability and pause queries. Implementations
// must be side-effect free.
type AuthorizationProvider interface {
	HasRole(ctx context.Context, role core.Role, p core.Principal) bool
	IsGloballyPaused(ctx context.Context) bool
}

// AssetRegistry is the external ownership registry of auctioned assets.
type AssetRegistry interface {
	OwnerOf(ctx context.Context, asset core.AssetID) (core.Principal, error)
	Transfer(ctx context.Context, asset core.AssetID, from, to core.Principal) error
}

// RoyaltyProvider is an optional capability of an AssetRegistry.
type RoyaltyProvider interface {
	RoyaltyInfo(ctx context.Context, asset core.AssetID, salePrice decimal.Decimal) (core.Principal, decimal.Decimal, error)
}

// Payouts is the value rail. Send may call back into the engine.
type Payouts interface {
	Send(ctx context.Context, to core.Principal, amount decimal.Decimal) error
}

// Clock supplies the current time. The engine never schedules anything; all
// time checks read the clock at call time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// EventSink receives engine notifications after state has been committed.
type EventSink interface {
	Publish(Event)
}

// MultiSink fans an event out to several sinks in order.
type MultiSink []EventSink

func (m MultiSink) Publish(ev Event) {
	for _, s := range m {
		s.Publish(ev)
	}
}

type nopSink struct{}

func (nopSink) Publish(Event) {}
