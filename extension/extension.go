// Package extension provides the Forge extension adapter for famledger.
//
// It implements the forge.Extension interface to integrate the family
// ledger into a Forge application with DI registration and lifecycle
// management. The scheduler worker starts and stops with the app.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.famledger" or
// "famledger" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/famledger"
	"github.com/xraph/famledger/store"
	"github.com/xraph/famledger/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "famledger"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Family finance ledger with allowances, approvals and interest"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts famledger as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *famledger.Ledger
	store      store.Store
	ledgerOpts []famledger.Option
}

// New creates a new famledger Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Ledger instance.
// This is nil until Register is called.
func (e *Extension) Engine() *famledger.Ledger { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the ledger engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	// Build ledger options from resolved config.
	opts := e.buildLedgerOpts()

	e.engine = famledger.New(e.store, opts...)

	return vessel.Provide(fapp.Container(), func() (*famledger.Ledger, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("famledger: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("famledger: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildLedgerOpts constructs famledger.Option values from the resolved config.
func (e *Extension) buildLedgerOpts() []famledger.Option {
	opts := make([]famledger.Option, 0, len(e.ledgerOpts)+4)

	opts = append(opts, famledger.WithProcessConcurrency(e.config.ProcessConcurrency))
	if e.config.DisableScheduler {
		opts = append(opts, famledger.WithoutScheduler())
	} else {
		opts = append(opts, famledger.WithSchedulerInterval(e.config.SchedulerInterval))
	}
	if e.config.DisableMigrate {
		opts = append(opts, famledger.WithoutMigrate())
	}

	// Pass-through options win over config-derived ones.
	opts = append(opts, e.ledgerOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("famledger: configuration is required but not found in config files; " +
				"ensure 'extensions.famledger' or 'famledger' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("famledger: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("disable_scheduler", e.config.DisableScheduler),
		forge.F("scheduler_interval", e.config.SchedulerInterval),
		forge.F("process_concurrency", e.config.ProcessConcurrency),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.famledger" first (namespaced pattern).
	if cm.IsSet("extensions.famledger") {
		if err := cm.Bind("extensions.famledger", &cfg); err == nil {
			e.Logger().Debug("famledger: loaded config from file",
				forge.F("key", "extensions.famledger"),
			)
			return cfg, true
		}
		e.Logger().Warn("famledger: failed to bind extensions.famledger config",
			forge.F("error", "bind failed"),
		)
	}

	// Try top-level "famledger" key.
	if cm.IsSet("famledger") {
		if err := cm.Bind("famledger", &cfg); err == nil {
			e.Logger().Debug("famledger: loaded config from file",
				forge.F("key", "famledger"),
			)
			return cfg, true
		}
		e.Logger().Warn("famledger: failed to bind famledger config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.SchedulerInterval == 0 {
		cfg.SchedulerInterval = defaults.SchedulerInterval
	}
	if cfg.ProcessConcurrency == 0 {
		cfg.ProcessConcurrency = defaults.ProcessConcurrency
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.DisableScheduler {
		yamlConfig.DisableScheduler = true
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.SchedulerInterval == 0 && programmaticConfig.SchedulerInterval != 0 {
		yamlConfig.SchedulerInterval = programmaticConfig.SchedulerInterval
	}
	if yamlConfig.ProcessConcurrency == 0 && programmaticConfig.ProcessConcurrency != 0 {
		yamlConfig.ProcessConcurrency = programmaticConfig.ProcessConcurrency
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
