package extension

import "time"

// Config holds the famledger extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.famledger" or "famledger" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DisableScheduler keeps the background due-pass worker from starting.
	// ProcessDue can still be called through the engine.
	DisableScheduler bool `json:"disable_scheduler" mapstructure:"disable_scheduler" yaml:"disable_scheduler"`

	// SchedulerInterval is how often the worker runs a due pass (default: 1h).
	SchedulerInterval time.Duration `json:"scheduler_interval" mapstructure:"scheduler_interval" yaml:"scheduler_interval"`

	// ProcessConcurrency bounds how many due definitions post at once
	// (default: 4).
	ProcessConcurrency int `json:"process_concurrency" mapstructure:"process_concurrency" yaml:"process_concurrency"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SchedulerInterval:  time.Hour,
		ProcessConcurrency: 4,
	}
}
