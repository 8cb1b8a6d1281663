// Package config handles TOML configuration for certusage.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/yairfalse/certusage/internal/identity"
	"github.com/yairfalse/certusage/pkg/usage"
)

// DefaultBeanstalkNamespace is the listener namespace holding SSLCertificateArns.
const DefaultBeanstalkNamespace = "aws:elbv2:listener:443"

// Config is the root configuration structure.
type Config struct {
	AWS          AWSConfig                    `toml:"aws"`
	Environments map[string]EnvironmentConfig `toml:"environments" validate:"dive"`
	Scan         ScanConfig                   `toml:"scan"`
	Output       OutputConfig                 `toml:"output"`
	OTEL         OTELConfig                   `toml:"otel"`
	Metrics      PushConfig                   `toml:"metrics"`
	History      HistoryConfig                `toml:"history"`
	Log          LogConfig                    `toml:"log"`
}

// AWSConfig holds AWS provider settings.
type AWSConfig struct {
	Region  string `toml:"region"`
	Profile string `toml:"profile"`
}

// EnvironmentConfig is one named deployment environment.
type EnvironmentConfig struct {
	Account string `toml:"account" validate:"required,numeric,len=12"`
	Region  string `toml:"region" validate:"required"`
}

// ScanConfig holds scan settings.
type ScanConfig struct {
	Parallel                      bool          `toml:"parallel"`
	TimeoutStr                    string        `toml:"timeout"`
	Timeout                       time.Duration `toml:"-"`
	Skip                          []string      `toml:"skip"`
	Only                          []string      `toml:"only"`
	BeanstalkNamespace            string        `toml:"beanstalk_namespace" validate:"required"`
	AppRunnerAllValidationRecords bool          `toml:"apprunner_all_validation_records"`
}

// OutputConfig holds output settings.
type OutputConfig struct {
	Formats []string `toml:"formats" validate:"min=1,dive,oneof=text json table"`
}

// OTELConfig holds OpenTelemetry settings.
type OTELConfig struct {
	Endpoint    string        `toml:"endpoint"`
	Insecure    bool          `toml:"insecure"`
	ServiceName string        `toml:"service_name"`
	Traces      TracesConfig  `toml:"traces"`
	Metrics     MetricsConfig `toml:"metrics"`
}

// TracesConfig holds tracing settings.
type TracesConfig struct {
	Enabled    bool    `toml:"enabled"`
	SampleRate float64 `toml:"sample_rate" validate:"gte=0,lte=1"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// PushConfig holds Prometheus Pushgateway settings.
type PushConfig struct {
	Pushgateway string `toml:"pushgateway" validate:"omitempty,url"`
	Job         string `toml:"job"`
}

// HistoryConfig holds the run history settings. An empty path disables it.
type HistoryConfig struct {
	Path string `toml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level" validate:"oneof=debug info warn error"`
}

// DefaultEnvironments is the built-in profile set, used when the
// configuration declares none.
func DefaultEnvironments() map[string]EnvironmentConfig {
	return map[string]EnvironmentConfig{
		"staging": {Account: "589470546847", Region: "eu-west-1"},
	}
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses a TOML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := parseTimeout(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if len(cfg.Environments) == 0 {
		cfg.Environments = DefaultEnvironments()
	}
	if cfg.Scan.BeanstalkNamespace == "" {
		cfg.Scan.BeanstalkNamespace = DefaultBeanstalkNamespace
	}
	if len(cfg.Output.Formats) == 0 {
		cfg.Output.Formats = []string{"text"}
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "certusage"
	}
	if cfg.Metrics.Job == "" {
		cfg.Metrics.Job = "certusage"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func parseTimeout(cfg *Config) error {
	if cfg.Scan.TimeoutStr == "" {
		return nil
	}
	d, err := time.ParseDuration(cfg.Scan.TimeoutStr)
	if err != nil {
		return fmt.Errorf("parse timeout %q: %w", cfg.Scan.TimeoutStr, err)
	}
	cfg.Scan.Timeout = d
	return nil
}

// Validate checks the configuration is valid.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for _, name := range append(append([]string{}, c.Scan.Skip...), c.Scan.Only...) {
		if _, err := usage.ParseKind(name); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
	}
	if c.Scan.Timeout < 0 {
		return fmt.Errorf("scan: timeout must not be negative (got %s)", c.Scan.Timeout)
	}
	return nil
}

// Profiles converts the environments into resolver profiles.
func (c *Config) Profiles() map[string]identity.Profile {
	out := make(map[string]identity.Profile, len(c.Environments))
	for name, env := range c.Environments {
		out[name] = identity.Profile{Name: name, Account: env.Account, Region: env.Region}
	}
	return out
}
