// Package config loads runtime settings for the event bus, the injection
// container and the ambient services around them.
//
// Files are TOML or YAML, chosen by extension. Every section has defaults,
// so a file only needs the keys it changes:
//
//	[bus]
//	enable_history = true
//	max_history_size = 50
//
//	[frame]
//	frame_rate = 60
package config

import (
	"fmt"
	"slices"

	"go.uber.org/multierr"

	"github.com/dshills/scenekit/internal/event"
	"github.com/dshills/scenekit/internal/inject"
	"github.com/dshills/scenekit/internal/logging"
	"github.com/dshills/scenekit/internal/tracing"
)

// Frame rate defaults, in ticks per second.
const (
	DefaultFrameRate   = 60
	DefaultPhysicsRate = 60
)

// Config is the complete runtime configuration.
type Config struct {
	Bus       event.Settings  `toml:"bus" yaml:"bus" mapstructure:"bus"`
	Container inject.Settings `toml:"container" yaml:"container" mapstructure:"container"`
	Log       logging.Config  `toml:"log" yaml:"log" mapstructure:"log"`
	Tracing   tracing.Config  `toml:"tracing" yaml:"tracing" mapstructure:"tracing"`
	Frame     FrameConfig     `toml:"frame" yaml:"frame" mapstructure:"frame"`
}

// FrameConfig sets the rates of the simulated host loop.
type FrameConfig struct {
	FrameRate   int `toml:"frame_rate" yaml:"frame_rate" mapstructure:"frame_rate"`
	PhysicsRate int `toml:"physics_rate" yaml:"physics_rate" mapstructure:"physics_rate"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Bus:       event.DefaultSettings(),
		Container: inject.Settings{DefaultScope: inject.DefaultScope},
		Log:       logging.DefaultConfig(),
		Tracing:   tracing.DefaultConfig(),
		Frame: FrameConfig{
			FrameRate:   DefaultFrameRate,
			PhysicsRate: DefaultPhysicsRate,
		},
	}
}

var (
	logLevels   = []string{"debug", "info", "warn", "warning", "error"}
	logFormats  = []string{"console", "json"}
	exporters   = []string{"stdout", "none", ""}
	maxRateTick = 1000
)

// Validate checks every section and returns all problems found.
func (c *Config) Validate() error {
	var errs error
	invalid := func(path, msg string, value any) {
		errs = multierr.Append(errs, &ValidationError{Path: path, Message: msg, Value: value})
	}

	if c.Bus.MaxHistorySize < 0 {
		invalid("bus.max_history_size", "must not be negative", c.Bus.MaxHistorySize)
	}
	if c.Bus.SlowHandlerMS < 0 {
		invalid("bus.slow_handler_ms", "must not be negative", c.Bus.SlowHandlerMS)
	}
	if !slices.Contains(logLevels, c.Log.Level) {
		invalid("log.level", fmt.Sprintf("must be one of %v", logLevels), c.Log.Level)
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		invalid("log.format", fmt.Sprintf("must be one of %v", logFormats), c.Log.Format)
	}
	if !slices.Contains(exporters, c.Tracing.Exporter) {
		invalid("tracing.exporter", "must be stdout or none", c.Tracing.Exporter)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		invalid("tracing.sample_rate", "must be between 0 and 1", c.Tracing.SampleRate)
	}
	if c.Frame.FrameRate <= 0 || c.Frame.FrameRate > maxRateTick {
		invalid("frame.frame_rate", fmt.Sprintf("must be in 1..%d", maxRateTick), c.Frame.FrameRate)
	}
	if c.Frame.PhysicsRate <= 0 || c.Frame.PhysicsRate > maxRateTick {
		invalid("frame.physics_rate", fmt.Sprintf("must be in 1..%d", maxRateTick), c.Frame.PhysicsRate)
	}
	return errs
}
