// Package config holds the mailbox simulator configuration, loaded with
// viper from an optional config file plus MBOXSIM_* environment overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the complete simulator configuration.
type Config struct {
	Mailbox MailboxConfig `mapstructure:"mailbox"`
	Link    LinkConfig    `mapstructure:"link"`
	Run     RunConfig     `mapstructure:"run"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// MailboxConfig controls the mailbox core.
type MailboxConfig struct {
	// QueueBytes is the software queue capacity per direction, in bytes.
	// The core rounds it up to a power of two of at least one message.
	QueueBytes int `mapstructure:"queue_bytes"`
}

// LinkConfig controls the simulated physical link.
type LinkConfig struct {
	// Channels is the number of logical channels sharing the link.
	Channels int `mapstructure:"channels"`
	// Depth is the hardware FIFO depth in messages.
	Depth int `mapstructure:"depth"`
	// Variant selects the hardware generation: "flagged" or "pipelined".
	Variant string `mapstructure:"variant"`
}

// RunConfig controls the simulated workload.
type RunConfig struct {
	// Messages is how many words each channel sends.
	Messages int `mapstructure:"messages"`
	// TimeoutMs bounds the whole round trip.
	TimeoutMs int `mapstructure:"timeout_ms"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is a zerolog level name ("debug", "info", ...).
	Level string `mapstructure:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Mailbox: MailboxConfig{
			QueueBytes: 256,
		},
		Link: LinkConfig{
			Channels: 2,
			Depth:    4,
			Variant:  "flagged",
		},
		Run: RunConfig{
			Messages:  64,
			TimeoutMs: 5000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// SetDefaults registers default values with viper.
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("mailbox.queue_bytes", defaults.Mailbox.QueueBytes)
	viper.SetDefault("link.channels", defaults.Link.Channels)
	viper.SetDefault("link.depth", defaults.Link.Depth)
	viper.SetDefault("link.variant", defaults.Link.Variant)
	viper.SetDefault("run.messages", defaults.Run.Messages)
	viper.SetDefault("run.timeout_ms", defaults.Run.TimeoutMs)
	viper.SetDefault("logging.level", defaults.Logging.Level)
}

// Load builds the configuration from viper's current state.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return &cfg, nil
}

// Validate returns a description of every invalid field.
func (c *Config) Validate() []string {
	var errs []string
	if c.Mailbox.QueueBytes < 0 {
		errs = append(errs, fmt.Sprintf("mailbox.queue_bytes = %d, must be >= 0", c.Mailbox.QueueBytes))
	}
	if c.Link.Channels < 1 {
		errs = append(errs, fmt.Sprintf("link.channels = %d, must be >= 1", c.Link.Channels))
	}
	if c.Link.Depth < 1 {
		errs = append(errs, fmt.Sprintf("link.depth = %d, must be >= 1", c.Link.Depth))
	}
	switch c.Link.Variant {
	case "flagged", "pipelined":
	default:
		errs = append(errs, fmt.Sprintf("link.variant = %q, must be \"flagged\" or \"pipelined\"", c.Link.Variant))
	}
	if c.Run.Messages < 1 {
		errs = append(errs, fmt.Sprintf("run.messages = %d, must be >= 1", c.Run.Messages))
	}
	return errs
}
