package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/assetauction/core"
	"github.com/cloudx-io/assetauction/engine"
)

// Wallets is an in-memory value rail. Principals hold balances; value attached
// to engine calls is debited before the call and sends credit the recipient.
type Wallets struct {
	mu       sync.Mutex
	balances map[core.Principal]decimal.Decimal
	rejects  map[core.Principal]bool
	hooks    map[core.Principal]func(context.Context, decimal.Decimal)
}

var _ engine.Payouts = (*Wallets)(nil)

// NewWallets creates an empty rail.
func NewWallets() *Wallets {
	return &Wallets{
		balances: make(map[core.Principal]decimal.Decimal),
		rejects:  make(map[core.Principal]bool),
		hooks:    make(map[core.Principal]func(context.Context, decimal.Decimal)),
	}
}

// Fund adds amount to p's balance.
func (w *Wallets) Fund(p core.Principal, amount decimal.Decimal) error {
	if err := core.ValidateAmount("amount", amount, false); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[p] = w.balances[p].Add(amount)
	return nil
}

// Debit takes amount from p, failing when the balance is short.
func (w *Wallets) Debit(p core.Principal, amount decimal.Decimal) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.balances[p].LessThan(amount) {
		return core.Fundsf("%s holds %s, needs %s", p, w.balances[p], amount)
	}
	w.balances[p] = w.balances[p].Sub(amount)
	return nil
}

// Credit returns amount to p without going through Send.
func (w *Wallets) Credit(p core.Principal, amount decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[p] = w.balances[p].Add(amount)
}

func (w *Wallets) Balance(p core.Principal) decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[p]
}

// Reject makes every Send to p fail until cleared.
func (w *Wallets) Reject(p core.Principal, reject bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if reject {
		w.rejects[p] = true
	} else {
		delete(w.rejects, p)
	}
}

// OnReceive registers a callback run after p is credited by Send. The
// callback runs outside the rail's lock and may call back into the engine.
func (w *Wallets) OnReceive(p core.Principal, fn func(context.Context, decimal.Decimal)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if fn == nil {
		delete(w.hooks, p)
		return
	}
	w.hooks[p] = fn
}

func (w *Wallets) Send(ctx context.Context, to core.Principal, amount decimal.Decimal) error {
	w.mu.Lock()
	if w.rejects[to] {
		w.mu.Unlock()
		return fmt.Errorf("wallet %s rejected %s", to, amount)
	}
	w.balances[to] = w.balances[to].Add(amount)
	hook := w.hooks[to]
	w.mu.Unlock()

	if hook != nil {
		hook(ctx, amount)
	}
	return nil
}
