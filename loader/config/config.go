// Package config holds the configuration recognised by this subsystem.
// It is plain data: parsing a config file into this struct is the host's
// job, not this subsystem's. cmd/loaderdemo demonstrates one way a host
// might populate it, with github.com/pelletier/go-toml/v2.
package config

// Config holds the configuration recognised by this subsystem.
type Config struct {
	// TexturesEnabled: when false, texture container expansion discards
	// work silently.
	TexturesEnabled bool `toml:"textures_enabled"`
	// StrictResourceChecking: when true, descriptor allocation failure is
	// fatal rather than dropped.
	StrictResourceChecking bool `toml:"strict_resource_checking"`
	// JobSchedulerWidth bounds how many Jobs' completion orchestrations
	// run in parallel. Default 4.
	JobSchedulerWidth int `toml:"job_scheduler_width"`
	// PipelinePortParallelism bounds per-port worker concurrency within a
	// pipeline. Default 6.
	PipelinePortParallelism int `toml:"pipeline_port_parallelism"`
}

// Default returns this subsystem's documented default configuration.
func Default() Config {
	return Config{
		TexturesEnabled:         true,
		StrictResourceChecking:  false,
		JobSchedulerWidth:       4,
		PipelinePortParallelism: 6,
	}
}

// WithDefaults fills any zero-valued numeric fields with their spec
// defaults, so a partially-populated config (e.g. decoded from a TOML
// file that only overrides one key) still behaves sanely.
func (c Config) WithDefaults() Config {
	if c.JobSchedulerWidth <= 0 {
		c.JobSchedulerWidth = 4
	}
	if c.PipelinePortParallelism <= 0 {
		c.PipelinePortParallelism = 6
	}
	return c
}
