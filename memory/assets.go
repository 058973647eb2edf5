// Package memory provides in-process implementations of the engine's external
// collaborators. They are safe for concurrent use and intended for tests and
// local development.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/assetauction/core"
	"github.com/cloudx-io/assetauction/engine"
)

var (
	ErrUnknownAsset = errors.New("unknown asset")
	ErrNotOwner     = errors.New("sender does not own asset")
)

type royalty struct {
	recipient core.Principal
	bps       uint32
}

// Assets is an in-memory asset ownership registry with optional per-asset
// royalties.
type Assets struct {
	mu        sync.RWMutex
	owners    map[core.AssetID]core.Principal
	royalties map[core.AssetID]royalty
	frozen    map[core.Principal]bool
}

var _ engine.AssetRegistry = (*Assets)(nil)
var _ engine.RoyaltyProvider = (*Assets)(nil)

// NewAssets creates an empty registry.
func NewAssets() *Assets {
	return &Assets{
		owners:    make(map[core.AssetID]core.Principal),
		royalties: make(map[core.AssetID]royalty),
		frozen:    make(map[core.Principal]bool),
	}
}

// Mint registers asset as owned by owner. Minting an existing asset fails.
func (a *Assets) Mint(asset core.AssetID, owner core.Principal) error {
	if asset == "" || owner == "" {
		return errors.New("asset and owner are required")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.owners[asset]; exists {
		return fmt.Errorf("asset %s already minted", asset)
	}
	a.owners[asset] = owner
	return nil
}

// SetRoyalty attaches a royalty of bps on every sale of asset.
func (a *Assets) SetRoyalty(asset core.AssetID, recipient core.Principal, bps uint32) error {
	if bps > 10000 {
		return fmt.Errorf("royalty %d bps exceeds 10000", bps)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.owners[asset]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	if recipient == "" || bps == 0 {
		delete(a.royalties, asset)
		return nil
	}
	a.royalties[asset] = royalty{recipient: recipient, bps: bps}
	return nil
}

// Freeze makes every transfer to p fail until unfrozen.
func (a *Assets) Freeze(p core.Principal, frozen bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if frozen {
		a.frozen[p] = true
	} else {
		delete(a.frozen, p)
	}
}

func (a *Assets) OwnerOf(_ context.Context, asset core.AssetID) (core.Principal, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	owner, ok := a.owners[asset]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	return owner, nil
}

func (a *Assets) Transfer(_ context.Context, asset core.AssetID, from, to core.Principal) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	owner, ok := a.owners[asset]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	if owner != from {
		return fmt.Errorf("%w: %s is held by %s, not %s", ErrNotOwner, asset, owner, from)
	}
	if a.frozen[to] {
		return fmt.Errorf("recipient %s cannot receive assets", to)
	}
	a.owners[asset] = to
	return nil
}

func (a *Assets) RoyaltyInfo(_ context.Context, asset core.AssetID, salePrice decimal.Decimal) (core.Principal, decimal.Decimal, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	r, ok := a.royalties[asset]
	if !ok {
		return "", decimal.Zero, nil
	}
	return r.recipient, core.ApplyBps(salePrice, r.bps), nil
}
