package memory

import (
	"context"
	"sync"

	"github.com/cloudx-io/assetauction/core"
	"github.com/cloudx-io/assetauction/engine"
)

// Roles is an in-memory capability table with a global pause switch.
type Roles struct {
	mu     sync.RWMutex
	grants map[core.Role]map[core.Principal]struct{}
	paused bool
}

var _ engine.AuthorizationProvider = (*Roles)(nil)

// NewRoles creates an empty table.
func NewRoles() *Roles {
	return &Roles{grants: make(map[core.Role]map[core.Principal]struct{})}
}

func (r *Roles) Grant(role core.Role, p core.Principal) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.grants[role]
	if !ok {
		set = make(map[core.Principal]struct{})
		r.grants[role] = set
	}
	set[p] = struct{}{}
}

func (r *Roles) Revoke(role core.Role, p core.Principal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.grants[role], p)
}

// SetPaused switches the global pause reported to the engine.
func (r *Roles) SetPaused(paused bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = paused
}

func (r *Roles) HasRole(_ context.Context, role core.Role, p core.Principal) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.grants[role][p]
	return ok
}

func (r *Roles) IsGloballyPaused(context.Context) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.paused
}
