// Package config loads dispatcher and host loop settings from a YAML file
// and DISPATCHER_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Swind/go-cycle-dispatcher/core"
)

const (
	envName            = "DISPATCHER_NAME"
	envHistoryCapacity = "DISPATCHER_HISTORY_CAPACITY"
	envStrict          = "DISPATCHER_STRICT_COMPLETION"
	envFrameInterval   = "DISPATCHER_FRAME_INTERVAL"
	envFixedStep       = "DISPATCHER_FIXED_STEP"
	envTickInterval    = "DISPATCHER_TICK_INTERVAL"
	envLogLevel        = "DISPATCHER_LOG_LEVEL"
	envLogFormat       = "DISPATCHER_LOG_FORMAT"
	envMetricsAddr     = "DISPATCHER_METRICS_ADDR"
	envMetricsEnabled  = "DISPATCHER_METRICS_ENABLED"
)

// Config is the full set of settings for a dispatcher process.
type Config struct {
	Dispatcher DispatcherSection `yaml:"dispatcher"`
	Host       HostSection       `yaml:"host"`
	Log        LogSection        `yaml:"log"`
	Metrics    MetricsSection    `yaml:"metrics"`
}

// DispatcherSection maps onto core.DispatcherConfig.
type DispatcherSection struct {
	Name             string `yaml:"name"`
	HistoryCapacity  int    `yaml:"history_capacity"`
	StrictCompletion bool   `yaml:"strict_completion"`
}

// HostSection maps onto core.HostLoopConfig.
type HostSection struct {
	FrameInterval         time.Duration `yaml:"frame_interval"`
	FixedStep             time.Duration `yaml:"fixed_step"`
	MaxFixedStepsPerFrame int           `yaml:"max_fixed_steps_per_frame"`
	TickInterval          time.Duration `yaml:"tick_interval"`
	ShutdownOnStop        bool          `yaml:"shutdown_on_stop"`
}

// LogSection selects the log level and output format ("text" or "json").
type LogSection struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsSection configures the Prometheus exporter and stats poller.
type MetricsSection struct {
	Enabled      bool          `yaml:"enabled"`
	ListenAddr   string        `yaml:"listen_addr"`
	Namespace    string        `yaml:"namespace"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	host := core.DefaultHostLoopConfig()
	return &Config{
		Dispatcher: DispatcherSection{
			Name:            "main",
			HistoryCapacity: 100,
		},
		Host: HostSection{
			FrameInterval:         host.FrameInterval,
			FixedStep:             host.FixedStep,
			MaxFixedStepsPerFrame: host.MaxFixedStepsPerFrame,
			TickInterval:          host.TickInterval,
			ShutdownOnStop:        host.ShutdownOnStop,
		},
		Log: LogSection{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsSection{
			Enabled:      true,
			ListenAddr:   ":9464",
			Namespace:    "dispatch",
			PollInterval: time.Second,
		},
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.decode(bytes.NewReader(data)); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML from r over the defaults and validates it. Environment
// variables are not consulted.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(r); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(envName); ok && v != "" {
		c.Dispatcher.Name = v
	}
	if v, ok := lookup(envLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup(envLogFormat); ok && v != "" {
		c.Log.Format = v
	}
	if v, ok := lookup(envMetricsAddr); ok && v != "" {
		c.Metrics.ListenAddr = v
	}

	var errs []error
	envInt(lookup, envHistoryCapacity, &c.Dispatcher.HistoryCapacity, &errs)
	envBool(lookup, envStrict, &c.Dispatcher.StrictCompletion, &errs)
	envBool(lookup, envMetricsEnabled, &c.Metrics.Enabled, &errs)
	envDuration(lookup, envFrameInterval, &c.Host.FrameInterval, &errs)
	envDuration(lookup, envFixedStep, &c.Host.FixedStep, &errs)
	envDuration(lookup, envTickInterval, &c.Host.TickInterval, &errs)
	return errors.Join(errs...)
}

func envInt(lookup func(string) (string, bool), key string, dst *int, errs *[]error) {
	if v, ok := lookup(key); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
}

func envBool(lookup func(string) (string, bool), key string, dst *bool, errs *[]error) {
	if v, ok := lookup(key); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}
}

func envDuration(lookup func(string) (string, bool), key string, dst *time.Duration, errs *[]error) {
	if v, ok := lookup(key); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Dispatcher.Name == "" {
		errs = append(errs, errors.New("dispatcher.name is required"))
	}
	if c.Dispatcher.HistoryCapacity < 1 {
		errs = append(errs, fmt.Errorf("dispatcher.history_capacity must be positive, got %d", c.Dispatcher.HistoryCapacity))
	}
	if c.Host.FrameInterval <= 0 {
		errs = append(errs, fmt.Errorf("host.frame_interval must be positive, got %v", c.Host.FrameInterval))
	}
	if c.Host.FixedStep <= 0 {
		errs = append(errs, fmt.Errorf("host.fixed_step must be positive, got %v", c.Host.FixedStep))
	}
	if c.Host.MaxFixedStepsPerFrame < 1 {
		errs = append(errs, fmt.Errorf("host.max_fixed_steps_per_frame must be positive, got %d", c.Host.MaxFixedStepsPerFrame))
	}
	if c.Host.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("host.tick_interval must be positive, got %v", c.Host.TickInterval))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		errs = append(errs, errors.New("metrics.listen_addr is required when metrics are enabled"))
	}
	if c.Metrics.Enabled && c.Metrics.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("metrics.poll_interval must be positive, got %v", c.Metrics.PollInterval))
	}
	return errors.Join(errs...)
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() core.LogLevel {
	return core.ParseLogLevel(c.Log.Level)
}

// DispatcherConfig builds a core config. Nil logger and metrics fall back to
// the core defaults.
func (c *Config) DispatcherConfig(logger core.Logger, metrics core.Metrics) *core.DispatcherConfig {
	cfg := core.DefaultDispatcherConfig()
	cfg.Name = c.Dispatcher.Name
	cfg.HistoryCapacity = c.Dispatcher.HistoryCapacity
	cfg.StrictCompletion = c.Dispatcher.StrictCompletion
	if logger != nil {
		cfg.Logger = logger
	}
	if metrics != nil {
		cfg.Metrics = metrics
	}
	return cfg
}

// HostLoopConfig builds the host loop pacing.
func (c *Config) HostLoopConfig(logger core.Logger) *core.HostLoopConfig {
	return &core.HostLoopConfig{
		FrameInterval:         c.Host.FrameInterval,
		FixedStep:             c.Host.FixedStep,
		MaxFixedStepsPerFrame: c.Host.MaxFixedStepsPerFrame,
		TickInterval:          c.Host.TickInterval,
		ShutdownOnStop:        c.Host.ShutdownOnStop,
		Logger:                logger,
	}
}
