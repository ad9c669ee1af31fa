// Package config provides centralized configuration for the hashield
// daemon. All tunable parameters (endpoints, addresses, margins,
// timeouts) MUST be defined here. No hardcoded values should exist
// elsewhere in the codebase.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Config errors.
var (
	ErrInvalidConfig = errors.New("invalid configuration")
)

// DefaultPlaceholderAddress is the sentinel address handed to dApps in
// place of the real session address. Requests referencing it are
// rewritten to the active session before signing.
const DefaultPlaceholderAddress = "0xA6a49d09321f701AB4295e5eB115E65EcF9b83B5"

// Config is the daemon's full configuration tree.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Storage StorageConfig `yaml:"storage"`
	RPC     RPCConfig     `yaml:"rpc"`
	Chain   ChainConfig   `yaml:"chain"`
	Keyring KeyringConfig `yaml:"keyring"`
	Funding FundingConfig `yaml:"funding"`
	Pool    PoolConfig    `yaml:"pool"`
	Escrow  EscrowConfig  `yaml:"escrow"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Privacy PrivacyConfig `yaml:"privacy"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// StorageConfig locates the daemon's data directory.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// RPCConfig controls the wallet API server.
type RPCConfig struct {
	Listen string `yaml:"listen"`
}

// ChainConfig points at the EVM chain the daemon transacts on.
type ChainConfig struct {
	RPCURL  string `yaml:"rpc_url"`
	ChainID uint64 `yaml:"chain_id"`
}

// KeyringConfig locates the encrypted master seed.
type KeyringConfig struct {
	SeedFile string `yaml:"seed_file"`
}

// FundingConfig tunes the session funding pipeline.
type FundingConfig struct {
	// SafetyMarginWei is added on top of the computed deficit so a fee
	// bump between funding and broadcast cannot strand the session.
	SafetyMarginWei string `yaml:"safety_margin_wei"`

	// PollIntervalSec is the delay between balance checks while
	// waiting for funds to arrive.
	PollIntervalSec int `yaml:"poll_interval_sec"`

	// MaxAttempts bounds the balance polls per funding source.
	MaxAttempts int `yaml:"max_attempts"`
}

// PoolConfig locates the on-chain liquidity pool.
type PoolConfig struct {
	Address string `yaml:"address"`
}

// EscrowConfig locates the settlement contracts and the relayer key.
type EscrowConfig struct {
	ResolverAddress string `yaml:"resolver_address"`
	EscrowAddress   string `yaml:"escrow_address"`
	DomainName      string `yaml:"domain_name"`
	DomainVersion   string `yaml:"domain_version"`
	RelayerFeeWei   string `yaml:"relayer_fee_wei"`
}

// BridgeConfig points at the external swap daemon.
type BridgeConfig struct {
	RPCURL              string  `yaml:"rpc_url"`
	Username            string  `yaml:"username"`
	Password            string  `yaml:"password"`
	RelayerEndpoint     string  `yaml:"relayer_endpoint"`
	DefaultExchangeRate float64 `yaml:"default_exchange_rate"`
}

// PrivacyConfig controls address substitution.
type PrivacyConfig struct {
	AddressSubstitution bool   `yaml:"address_substitution"`
	PlaceholderAddress  string `yaml:"placeholder_address"`
}

// DefaultConfig returns the daemon defaults. Base Sepolia is the
// default chain.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Storage: StorageConfig{DataDir: "~/.hashield"},
		RPC:     RPCConfig{Listen: "127.0.0.1:8545"},
		Chain: ChainConfig{
			RPCURL:  "https://sepolia.base.org",
			ChainID: 84532,
		},
		Keyring: KeyringConfig{SeedFile: "~/.hashield/seed.enc"},
		Funding: FundingConfig{
			SafetyMarginWei: "10000000000000000", // 0.01 ETH
			PollIntervalSec: 3,
			MaxAttempts:     5,
		},
		Escrow: EscrowConfig{
			DomainName:    "XMREscrowSrc",
			DomainVersion: "1",
			RelayerFeeWei: "1000000000000000", // 0.001 ETH
		},
		Bridge: BridgeConfig{
			RPCURL: "http://127.0.0.1:5000",
		},
		Privacy: PrivacyConfig{
			AddressSubstitution: true,
			PlaceholderAddress:  DefaultPlaceholderAddress,
		},
	}
}

// Load reads a YAML config file, layering it over the defaults.
// A missing file returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("%w: chain.rpc_url is required", ErrInvalidConfig)
	}
	if c.RPC.Listen == "" {
		return fmt.Errorf("%w: rpc.listen is required", ErrInvalidConfig)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("%w: storage.data_dir is required", ErrInvalidConfig)
	}
	if c.Funding.PollIntervalSec <= 0 {
		return fmt.Errorf("%w: funding.poll_interval_sec must be positive", ErrInvalidConfig)
	}
	if c.Funding.MaxAttempts <= 0 {
		return fmt.Errorf("%w: funding.max_attempts must be positive", ErrInvalidConfig)
	}
	for name, addr := range map[string]string{
		"pool.address":            c.Pool.Address,
		"escrow.resolver_address": c.Escrow.ResolverAddress,
		"escrow.escrow_address":   c.Escrow.EscrowAddress,
	} {
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("%w: %s is not a valid address", ErrInvalidConfig, name)
		}
	}
	if c.Privacy.AddressSubstitution && !common.IsHexAddress(c.Privacy.PlaceholderAddress) {
		return fmt.Errorf("%w: privacy.placeholder_address is not a valid address", ErrInvalidConfig)
	}
	return nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
