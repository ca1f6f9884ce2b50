package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/famledger/id"
	"github.com/xraph/famledger/recurring"
	"github.com/xraph/famledger/transaction"
	"github.com/xraph/famledger/types"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// Hook implementations are discovered once at registration.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onTransactionCreated  []OnTransactionCreated
	onTransactionApproved []OnTransactionApproved
	onTransactionRejected []OnTransactionRejected
	onTransactionDeleted  []OnTransactionDeleted
	onTransactionUpdated  []OnTransactionUpdated
	onBalanceRecalculated []OnBalanceRecalculated
	onRecurringCreated    []OnRecurringCreated
	onRecurringDeleted    []OnRecurringDeleted
	onRecurringProcessed  []OnRecurringProcessed
	onDuePassCompleted    []OnDuePassCompleted
	onInterestSynced      []OnInterestSynced
	onParentRemoved       []OnParentRemoved
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-call hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	var hooks []string
	cache := func(ok bool, name string, add func()) {
		if ok {
			add()
			hooks = append(hooks, name)
		}
	}

	v1, ok := p.(OnInit)
	cache(ok, "OnInit", func() { r.onInit = append(r.onInit, v1) })
	v2, ok := p.(OnShutdown)
	cache(ok, "OnShutdown", func() { r.onShutdown = append(r.onShutdown, v2) })
	v3, ok := p.(OnTransactionCreated)
	cache(ok, "OnTransactionCreated", func() { r.onTransactionCreated = append(r.onTransactionCreated, v3) })
	v4, ok := p.(OnTransactionApproved)
	cache(ok, "OnTransactionApproved", func() { r.onTransactionApproved = append(r.onTransactionApproved, v4) })
	v5, ok := p.(OnTransactionRejected)
	cache(ok, "OnTransactionRejected", func() { r.onTransactionRejected = append(r.onTransactionRejected, v5) })
	v6, ok := p.(OnTransactionDeleted)
	cache(ok, "OnTransactionDeleted", func() { r.onTransactionDeleted = append(r.onTransactionDeleted, v6) })
	v7, ok := p.(OnTransactionUpdated)
	cache(ok, "OnTransactionUpdated", func() { r.onTransactionUpdated = append(r.onTransactionUpdated, v7) })
	v8, ok := p.(OnBalanceRecalculated)
	cache(ok, "OnBalanceRecalculated", func() { r.onBalanceRecalculated = append(r.onBalanceRecalculated, v8) })
	v9, ok := p.(OnRecurringCreated)
	cache(ok, "OnRecurringCreated", func() { r.onRecurringCreated = append(r.onRecurringCreated, v9) })
	v10, ok := p.(OnRecurringDeleted)
	cache(ok, "OnRecurringDeleted", func() { r.onRecurringDeleted = append(r.onRecurringDeleted, v10) })
	v11, ok := p.(OnRecurringProcessed)
	cache(ok, "OnRecurringProcessed", func() { r.onRecurringProcessed = append(r.onRecurringProcessed, v11) })
	v12, ok := p.(OnDuePassCompleted)
	cache(ok, "OnDuePassCompleted", func() { r.onDuePassCompleted = append(r.onDuePassCompleted, v12) })
	v13, ok := p.(OnInterestSynced)
	cache(ok, "OnInterestSynced", func() { r.onInterestSynced = append(r.onInterestSynced, v13) })
	v14, ok := p.(OnParentRemoved)
	cache(ok, "OnParentRemoved", func() { r.onParentRemoved = append(r.onParentRemoved, v14) })

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", hooks,
	)

	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit calls fn for every plugin in list. Failures are logged and never
// returned; a hook cannot fail the ledger operation that triggered it.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, list func(*Registry) []T, fn func(T) error) {
	r.mu.RLock()
	plugins := list(r)
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, l any) {
	emit(ctx, r, "OnInit", func(r *Registry) []OnInit { return r.onInit },
		func(p OnInit) error { return p.OnInit(ctx, l) })
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", func(r *Registry) []OnShutdown { return r.onShutdown },
		func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

func (r *Registry) EmitTransactionCreated(ctx context.Context, t *transaction.Transaction) {
	emit(ctx, r, "OnTransactionCreated", func(r *Registry) []OnTransactionCreated { return r.onTransactionCreated },
		func(p OnTransactionCreated) error { return p.OnTransactionCreated(ctx, t) })
}

func (r *Registry) EmitTransactionApproved(ctx context.Context, t *transaction.Transaction) {
	emit(ctx, r, "OnTransactionApproved", func(r *Registry) []OnTransactionApproved { return r.onTransactionApproved },
		func(p OnTransactionApproved) error { return p.OnTransactionApproved(ctx, t) })
}

func (r *Registry) EmitTransactionRejected(ctx context.Context, t *transaction.Transaction) {
	emit(ctx, r, "OnTransactionRejected", func(r *Registry) []OnTransactionRejected { return r.onTransactionRejected },
		func(p OnTransactionRejected) error { return p.OnTransactionRejected(ctx, t) })
}

func (r *Registry) EmitTransactionDeleted(ctx context.Context, t *transaction.Transaction) {
	emit(ctx, r, "OnTransactionDeleted", func(r *Registry) []OnTransactionDeleted { return r.onTransactionDeleted },
		func(p OnTransactionDeleted) error { return p.OnTransactionDeleted(ctx, t) })
}

func (r *Registry) EmitTransactionUpdated(ctx context.Context, t *transaction.Transaction, delta types.Money) {
	emit(ctx, r, "OnTransactionUpdated", func(r *Registry) []OnTransactionUpdated { return r.onTransactionUpdated },
		func(p OnTransactionUpdated) error { return p.OnTransactionUpdated(ctx, t, delta) })
}

func (r *Registry) EmitBalanceRecalculated(ctx context.Context, accountID id.AccountID, oldBalance, newBalance types.Money, counted int) {
	emit(ctx, r, "OnBalanceRecalculated", func(r *Registry) []OnBalanceRecalculated { return r.onBalanceRecalculated },
		func(p OnBalanceRecalculated) error {
			return p.OnBalanceRecalculated(ctx, accountID, oldBalance, newBalance, counted)
		})
}

func (r *Registry) EmitRecurringCreated(ctx context.Context, d *recurring.Definition) {
	emit(ctx, r, "OnRecurringCreated", func(r *Registry) []OnRecurringCreated { return r.onRecurringCreated },
		func(p OnRecurringCreated) error { return p.OnRecurringCreated(ctx, d) })
}

func (r *Registry) EmitRecurringDeleted(ctx context.Context, recID id.RecurringID) {
	emit(ctx, r, "OnRecurringDeleted", func(r *Registry) []OnRecurringDeleted { return r.onRecurringDeleted },
		func(p OnRecurringDeleted) error { return p.OnRecurringDeleted(ctx, recID) })
}

func (r *Registry) EmitRecurringProcessed(ctx context.Context, d *recurring.Definition, posted []*transaction.Transaction) {
	emit(ctx, r, "OnRecurringProcessed", func(r *Registry) []OnRecurringProcessed { return r.onRecurringProcessed },
		func(p OnRecurringProcessed) error { return p.OnRecurringProcessed(ctx, d, posted) })
}

func (r *Registry) EmitDuePassCompleted(ctx context.Context, processed, failed int, elapsed time.Duration) {
	emit(ctx, r, "OnDuePassCompleted", func(r *Registry) []OnDuePassCompleted { return r.onDuePassCompleted },
		func(p OnDuePassCompleted) error { return p.OnDuePassCompleted(ctx, processed, failed, elapsed) })
}

func (r *Registry) EmitInterestSynced(ctx context.Context, processed int) {
	emit(ctx, r, "OnInterestSynced", func(r *Registry) []OnInterestSynced { return r.onInterestSynced },
		func(p OnInterestSynced) error { return p.OnInterestSynced(ctx, processed) })
}

func (r *Registry) EmitParentRemoved(ctx context.Context, childID, parentID id.UserID) {
	emit(ctx, r, "OnParentRemoved", func(r *Registry) []OnParentRemoved { return r.onParentRemoved },
		func(p OnParentRemoved) error { return p.OnParentRemoved(ctx, childID, parentID) })
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the ledger.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(r.timeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
