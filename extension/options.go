package extension

import (
	"time"

	"github.com/xraph/famledger"
	"github.com/xraph/famledger/plugin"
	"github.com/xraph/famledger/store"
)

// Option configures the famledger Forge extension.
type Option func(*Extension)

// WithStore sets the store for the ledger engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithLedgerOption passes a famledger.Option through to the underlying engine.
func WithLedgerOption(opt famledger.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, opt)
	}
}

// WithPlugin registers a ledger plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, famledger.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithDisableScheduler keeps the background due-pass worker from starting.
func WithDisableScheduler() Option {
	return func(e *Extension) { e.config.DisableScheduler = true }
}

// WithSchedulerInterval sets how often the worker runs a due pass.
func WithSchedulerInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.SchedulerInterval = d }
}

// WithProcessConcurrency bounds how many due definitions post at once.
func WithProcessConcurrency(n int) Option {
	return func(e *Extension) { e.config.ProcessConcurrency = n }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
