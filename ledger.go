package famledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/famledger/access"
	"github.com/xraph/famledger/plugin"
	"github.com/xraph/famledger/store"
)

// Ledger is the family finance consistency engine. It owns every balance
// mutation, runs the recurrence scheduler and keeps interest definitions in
// step with account state.
type Ledger struct {
	store    store.Store
	plugins  *plugin.Registry
	logger   *slog.Logger
	resolver *access.Resolver
	locks    *keyedLocks
	now      func() time.Time

	// passMu serializes due passes.
	passMu sync.Mutex

	// Background workers
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Configuration
	schedulerInterval  time.Duration
	processConcurrency int
	refreshInterest    bool
	disableScheduler   bool
	skipMigrate        bool
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:              s,
		plugins:            plugin.NewRegistry(),
		logger:             slog.Default(),
		resolver:           access.NewResolver(s),
		locks:              newKeyedLocks(),
		now:                func() time.Time { return time.Now().UTC() },
		stopChan:           make(chan struct{}),
		schedulerInterval:  time.Hour,
		processConcurrency: 4,
		refreshInterest:    true,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock replaces the wall clock used for timestamps and due checks.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithSchedulerInterval sets how often the background worker runs a due
// pass. Zero or negative disables the worker.
func WithSchedulerInterval(d time.Duration) Option {
	return func(l *Ledger) {
		if d <= 0 {
			l.disableScheduler = true
			return
		}
		l.schedulerInterval = d
	}
}

// WithProcessConcurrency bounds how many due definitions post at once.
func WithProcessConcurrency(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.processConcurrency = n
		}
	}
}

// WithInterestRefresh toggles the interest sync and refresh that precede
// every due pass.
func WithInterestRefresh(enabled bool) Option {
	return func(l *Ledger) {
		l.refreshInterest = enabled
	}
}

// WithoutScheduler disables the background due-pass worker. ProcessDue can
// still be called directly.
func WithoutScheduler() Option {
	return func(l *Ledger) {
		l.disableScheduler = true
	}
}

// WithoutMigrate makes Start skip store migrations.
func WithoutMigrate() Option {
	return func(l *Ledger) {
		l.skipMigrate = true
	}
}

// Store returns the underlying store.
func (l *Ledger) Store() store.Store { return l.store }

// Plugins returns the plugin registry.
func (l *Ledger) Plugins() *plugin.Registry { return l.plugins }

// Resolver returns the access resolver.
func (l *Ledger) Resolver() *access.Resolver { return l.resolver }

// Start migrates the store, initializes plugins and begins background
// workers.
func (l *Ledger) Start(ctx context.Context) error {
	if !l.skipMigrate {
		if err := l.store.Migrate(ctx); err != nil {
			return internal("migrate", err)
		}
	}

	l.plugins.EmitInit(ctx, l)

	if !l.disableScheduler {
		l.wg.Add(1)
		go l.schedulerWorker(ctx)
	}

	l.logger.Info("famledger started",
		"scheduler", !l.disableScheduler,
		"scheduler_interval", l.schedulerInterval,
		"process_concurrency", l.processConcurrency,
	)

	return nil
}

// Stop shuts down background workers, notifies plugins and closes the store.
func (l *Ledger) Stop() error {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()

	ctx := context.Background()
	l.plugins.EmitShutdown(ctx)

	l.logger.Info("famledger stopped")
	return l.store.Close()
}

// schedulerWorker runs a due pass on every tick until Stop.
func (l *Ledger) schedulerWorker(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.schedulerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return

		case <-ctx.Done():
			return

		case <-ticker.C:
			res, err := l.ProcessDue(ctx, l.now())
			if err != nil {
				l.logger.Error("scheduled due pass failed", "error", err)
				continue
			}
			for _, ie := range res.Errors {
				l.logger.Warn("recurring item failed",
					"recurring_id", ie.RecurringID.String(),
					"name", ie.Name,
					"error", ie.Err,
				)
			}
		}
	}
}
