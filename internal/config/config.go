// Package config loads client configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything the client needs to talk to the ledger.
type Config struct {
	// RPCURL is the ledger node JSON-RPC endpoint.
	RPCURL string `yaml:"rpc_url"`
	// ContractAddress is the deployed EduChain contract address.
	ContractAddress string `yaml:"contract_address"`
	// ChainID is the expected network identity; 0 skips the check.
	ChainID uint64 `yaml:"chain_id"`

	// RequestTimeout bounds individual RPC calls.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// ConfirmWait bounds a confirmation wait after submission.
	ConfirmWait time.Duration `yaml:"confirm_wait"`
	// PollInterval is the receipt polling interval.
	PollInterval time.Duration `yaml:"poll_interval"`

	// RateLimit caps outbound RPC calls per second; 0 disables.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	// WalletBridgeURL is the websocket endpoint delivering wallet
	// account-change events; empty disables the bridge.
	WalletBridgeURL string `yaml:"wallet_bridge_url"`

	// RefreshSchedule is the cron spec for background cache refresh;
	// empty disables it.
	RefreshSchedule string `yaml:"refresh_schedule"`
}

// Default returns the configuration defaults.
func Default() Config {
	return Config{
		RPCURL:          "http://127.0.0.1:8545",
		RequestTimeout:  30 * time.Second,
		ConfirmWait:     2 * time.Minute,
		PollInterval:    2 * time.Second,
		RefreshSchedule: "@every 30s",
	}
}

// Load reads configuration from path and applies environment overrides.
// A missing file is not an error; defaults plus environment are used.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.LoadFromEnv()
	return cfg, cfg.Validate()
}

// LoadFromEnv applies EDUCHAIN_* environment variable overrides.
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("EDUCHAIN_RPC_URL"); v != "" {
		c.RPCURL = v
	}
	if v := os.Getenv("EDUCHAIN_CONTRACT_ADDRESS"); v != "" {
		c.ContractAddress = v
	}
	if v := os.Getenv("EDUCHAIN_CHAIN_ID"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.ChainID = id
		}
	}
	if v := os.Getenv("EDUCHAIN_CONFIRM_WAIT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ConfirmWait = d
		}
	}
	if v := os.Getenv("EDUCHAIN_WALLET_BRIDGE_URL"); v != "" {
		c.WalletBridgeURL = v
	}
	if v := os.Getenv("EDUCHAIN_REFRESH_SCHEDULE"); v != "" {
		c.RefreshSchedule = v
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc_url is required")
	}
	if c.ContractAddress == "" {
		return fmt.Errorf("contract_address is required")
	}
	return nil
}
