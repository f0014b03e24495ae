// Package config provides configuration management for the analytics service.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

const (
	// defaultCacheTTL is used when cache.chain_ttl is unset
	defaultCacheTTL = time.Minute
	// defaultFanout is used when enrich.fanout is unset
	defaultFanout = 4
	// defaultPassTimeout bounds one enrichment pass when enrich.pass_timeout is unset
	defaultPassTimeout = 30 * time.Second
	// defaultPort is used when server.port is unset
	defaultPort = 8080
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Provider    ProviderConfig    `yaml:"provider"`
	Cache       CacheConfig       `yaml:"cache"`
	Enrich      EnrichConfig      `yaml:"enrich"`
	Server      ServerConfig      `yaml:"server"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // sandbox | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// ProviderConfig defines market data provider API settings.
type ProviderConfig struct {
	APIKey      string `yaml:"api_key"`
	APIEndpoint string `yaml:"api_endpoint"`
	AccountID   string `yaml:"account_id"`
}

// CacheConfig defines chain cache settings.
type CacheConfig struct {
	ChainTTL string `yaml:"chain_ttl"` // Go duration, e.g. "60s"
}

// EnrichConfig defines enrichment pass parameters.
type EnrichConfig struct {
	Fanout      int    `yaml:"fanout"`       // concurrent chain fetches
	PassTimeout string `yaml:"pass_timeout"` // Go duration for one pass
}

// ServerConfig defines the HTTP API settings.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"` // empty disables auth
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.Environment.Mode != "sandbox" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'sandbox' or 'live'")
	}
	switch c.Environment.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be debug, info, warn or error")
	}

	if c.Provider.APIKey == "" {
		return fmt.Errorf("provider.api_key is required")
	}

	if c.Cache.ChainTTL != "" {
		if _, err := time.ParseDuration(c.Cache.ChainTTL); err != nil {
			return fmt.Errorf("cache.chain_ttl invalid: %w", err)
		}
	}

	if c.Enrich.Fanout < 0 {
		return fmt.Errorf("enrich.fanout must be >= 0")
	}
	if c.Enrich.PassTimeout != "" {
		if _, err := time.ParseDuration(c.Enrich.PassTimeout); err != nil {
			return fmt.Errorf("enrich.pass_timeout invalid: %w", err)
		}
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [0, 65535]")
	}

	return nil
}

// IsSandbox returns true when the service is configured against the
// provider's sandbox environment.
func (c *Config) IsSandbox() bool {
	return c.Environment.Mode == "sandbox"
}

// GetChainTTL returns the configured chain cache lifetime.
func (c *Config) GetChainTTL() time.Duration {
	d, err := time.ParseDuration(c.Cache.ChainTTL)
	if err != nil || d <= 0 {
		return defaultCacheTTL
	}
	return d
}

// GetFanout returns the configured enrichment fan-out.
func (c *Config) GetFanout() int {
	if c.Enrich.Fanout <= 0 {
		return defaultFanout
	}
	return c.Enrich.Fanout
}

// GetPassTimeout returns the deadline applied to one enrichment pass.
func (c *Config) GetPassTimeout() time.Duration {
	d, err := time.ParseDuration(c.Enrich.PassTimeout)
	if err != nil || d <= 0 {
		return defaultPassTimeout
	}
	return d
}

// GetPort returns the HTTP listen port.
func (c *Config) GetPort() int {
	if c.Server.Port == 0 {
		return defaultPort
	}
	return c.Server.Port
}
