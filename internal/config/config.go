package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/FairForge/drfailover/internal/ha"
	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration
type Config struct {
	Failover ha.DRConfig  `yaml:"failover"`
	Server   ServerConfig `yaml:"server"`
	AWS      AWSConfig    `yaml:"aws"`
	LogLevel string       `yaml:"log_level"`
}

// ServerConfig configures the alarm trigger server
type ServerConfig struct {
	Port          int     `yaml:"port"`
	WebhookSecret string  `yaml:"webhook_secret"`
	TriggerRate   float64 `yaml:"trigger_rate"`  // alarm triggers per second, 0 = unlimited
	TriggerBurst  int     `yaml:"trigger_burst"`
}

// AWSConfig carries optional static credentials; empty means the SDK default chain
type AWSConfig struct {
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

// Default returns a config with every default filled in
func Default() *Config {
	return &Config{
		Failover: *ha.DefaultDRConfig(),
		Server: ServerConfig{
			Port:         8080,
			TriggerRate:  1,
			TriggerBurst: 3,
		},
		LogLevel: "info",
	}
}

// Load resolves the configuration for one invocation: defaults, then the
// optional DR_CONFIG_FILE, then environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("DR_CONFIG_FILE"); path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays a YAML file onto cfg
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied path
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the whole configuration
func (c *Config) Validate() error {
	var errs []error
	if err := c.Failover.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port out of range: %d", c.Server.Port))
	}
	if c.Server.TriggerRate < 0 {
		errs = append(errs, fmt.Errorf("trigger rate must not be negative: %v", c.Server.TriggerRate))
	}
	if (c.AWS.AccessKeyID == "") != (c.AWS.SecretAccessKey == "") {
		errs = append(errs, errors.New("aws access key id and secret access key must be set together"))
	}
	return errors.Join(errs...)
}
