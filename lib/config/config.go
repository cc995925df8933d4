// Copyright 2026 The Voteroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for voteroom binaries.
//
// Configuration is loaded from a single YAML file specified by the
// VOTEROOM_CONFIG environment variable or a --config flag. There are
// no fallbacks or automatic discovery: the file is the single source
// of truth, which keeps a client that signs irreversible transactions
// deterministic and auditable. The file may contain
// environment-specific sections (development, staging, production)
// that override base values when the environment matches.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment identifies the deployment type.
type Environment string

const (
	// Development is for local mock chains (hardhat-style nodes).
	Development Environment = "development"
	// Staging is for public testnets.
	Staging Environment = "staging"
	// Production is for mainnet deployments.
	Production Environment = "production"
)

// Config is the master configuration for voteroom.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Network configures the ledger connection.
	Network NetworkConfig `yaml:"network"`

	// Relay configures the fee-sponsor endpoint.
	Relay RelayConfig `yaml:"relay"`

	// Store configures the local keyed store.
	Store StoreConfig `yaml:"store"`

	// Session configures the per-room session controller.
	Session SessionConfig `yaml:"session"`

	// Per-environment overrides, applied after the base config.
	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides contains fields that can be overridden per environment.
type Overrides struct {
	Network *NetworkConfig `yaml:"network,omitempty"`
	Relay   *RelayConfig   `yaml:"relay,omitempty"`
	Store   *StoreConfig   `yaml:"store,omitempty"`
}

// NetworkConfig configures the ledger connection.
type NetworkConfig struct {
	// RPCURL is the JSON-RPC endpoint of the chain node.
	RPCURL string `yaml:"rpc_url"`

	// ChainID guards against signing for the wrong network.
	ChainID uint64 `yaml:"chain_id"`

	// ContractAddress is the deployed voting contract. Passed
	// explicitly to constructors; there is no module-level default.
	ContractAddress string `yaml:"contract_address"`
}

// RelayConfig configures the fee-sponsor relay.
type RelayConfig struct {
	// URL is the base URL of the sponsor service. Empty disables the
	// sponsored join path.
	URL string `yaml:"url"`

	// Timeout bounds each relay request. Default: 30s.
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig configures the local keyed store.
type StoreConfig struct {
	// Path is the SQLite database file for vote memos and the
	// password-validation cache. Empty means in-memory only.
	Path string `yaml:"path"`
}

// SessionConfig configures the session controller's timing.
type SessionConfig struct {
	// PollInterval is the reconciliation poll cadence. Default: 10s.
	PollInterval time.Duration `yaml:"poll_interval"`

	// CountdownInterval is the countdown tick cadence. Default: 1s.
	CountdownInterval time.Duration `yaml:"countdown_interval"`

	// LoadTimeout bounds the initial room load. Default: 20s.
	LoadTimeout time.Duration `yaml:"load_timeout"`

	// PasswordTTL bounds the lifetime of cached password validations.
	// Default: 5m.
	PasswordTTL time.Duration `yaml:"password_ttl"`
}

// Default returns the default configuration. The defaults exist to
// give every field a sensible zero-value before the file is merged in,
// not as a substitute for the file.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Environment: Development,
		Network: NetworkConfig{
			RPCURL:  "http://localhost:8545",
			ChainID: 31337,
		},
		Relay: RelayConfig{
			Timeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Path: filepath.Join(homeDir, ".cache", "voteroom", "store.db"),
		},
		Session: SessionConfig{
			PollInterval:      10 * time.Second,
			CountdownInterval: time.Second,
			LoadTimeout:       20 * time.Second,
			PasswordTTL:       5 * time.Minute,
		},
	}
}

// Load loads configuration from the VOTEROOM_CONFIG environment
// variable. Fails if it is not set; there is no hidden fallback.
func Load() (*Config, error) {
	configPath := os.Getenv("VOTEROOM_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("VOTEROOM_CONFIG environment variable not set; " +
			"set it to the path of your voteroom.yaml config file, or use --config")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, applies
// environment overrides, and fills unset timing fields with defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.fillDefaults()
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Network != nil {
		if overrides.Network.RPCURL != "" {
			c.Network.RPCURL = overrides.Network.RPCURL
		}
		if overrides.Network.ChainID != 0 {
			c.Network.ChainID = overrides.Network.ChainID
		}
		if overrides.Network.ContractAddress != "" {
			c.Network.ContractAddress = overrides.Network.ContractAddress
		}
	}
	if overrides.Relay != nil {
		if overrides.Relay.URL != "" {
			c.Relay.URL = overrides.Relay.URL
		}
		if overrides.Relay.Timeout != 0 {
			c.Relay.Timeout = overrides.Relay.Timeout
		}
	}
	if overrides.Store != nil && overrides.Store.Path != "" {
		c.Store.Path = overrides.Store.Path
	}
}

func (c *Config) fillDefaults() {
	defaults := Default()
	if c.Relay.Timeout <= 0 {
		c.Relay.Timeout = defaults.Relay.Timeout
	}
	if c.Session.PollInterval <= 0 {
		c.Session.PollInterval = defaults.Session.PollInterval
	}
	if c.Session.CountdownInterval <= 0 {
		c.Session.CountdownInterval = defaults.Session.CountdownInterval
	}
	if c.Session.LoadTimeout <= 0 {
		c.Session.LoadTimeout = defaults.Session.LoadTimeout
	}
	if c.Session.PasswordTTL <= 0 {
		c.Session.PasswordTTL = defaults.Session.PasswordTTL
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Network.RPCURL == "" {
		errs = append(errs, fmt.Errorf("network.rpc_url is required"))
	}
	if c.Network.ContractAddress == "" {
		errs = append(errs, fmt.Errorf("network.contract_address is required"))
	}
	if c.Network.ChainID == 0 {
		errs = append(errs, fmt.Errorf("network.chain_id is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
