package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// NetworkConfig selects the ledger node and chain.
type NetworkConfig struct {
	RPCURL  string `yaml:"rpc_url"`
	WSURL   string `yaml:"ws_url"` // optional; enables push log subscriptions
	ChainID int64  `yaml:"chain_id"`
}

// WalletConfig carries the signing identity material. Exactly one of
// PrivateKey or Mnemonic is expected; values are normally injected via env.
type WalletConfig struct {
	PrivateKey     string `yaml:"private_key"`
	Mnemonic       string `yaml:"mnemonic"`
	DerivationPath string `yaml:"derivation_path"`
}

// LogConfig mirrors pkg/logger.Config.
type LogConfig struct {
	Level      string `yaml:"level"`
	OutputFile string `yaml:"output_file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// StatusAPIConfig controls the read-only HTTP status server.
type StatusAPIConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// GasOracleConfig points at a gas-station style price endpoint. Fast
// switches pricing from the standard tier to the fast one.
type GasOracleConfig struct {
	URL  string `yaml:"url"`
	Fast bool   `yaml:"fast"`
}

// Config is the full godex configuration.
type Config struct {
	Network   NetworkConfig   `yaml:"network"`
	Wallet    WalletConfig    `yaml:"wallet"`
	Log       LogConfig       `yaml:"log"`
	StatusAPI StatusAPIConfig `yaml:"status_api"`
	GasOracle GasOracleConfig `yaml:"gas_oracle"`

	// Deployments maps chain id -> logical contract name -> address.
	// This plays the role of the framework deployment artifacts: resolution
	// of a name not present for the active chain is a binding error, not a
	// retryable fault.
	Deployments map[int64]map[string]string `yaml:"deployments"`
}

// Default returns a config pointed at a local development node.
func Default() *Config {
	return &Config{
		Network: NetworkConfig{
			RPCURL:  "http://localhost:8545",
			ChainID: 1337,
		},
		Log: LogConfig{
			Level:      "info",
			OutputFile: "logs/godex.log",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
		StatusAPI: StatusAPIConfig{
			ListenAddr: "127.0.0.1:7465",
		},
		Deployments: make(map[int64]map[string]string),
	}
}

// Load reads the YAML config at path, layered over Default, then applies
// .env and environment overrides. A missing file is not an error: defaults
// plus environment are enough for a local node.
func Load(path string) (*Config, error) {
	// .env first so os.Getenv sees it. Absence is fine.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if cfg.Network.RPCURL == "" {
		return nil, fmt.Errorf("network.rpc_url is required")
	}
	if cfg.Network.ChainID <= 0 {
		return nil, fmt.Errorf("network.chain_id is required")
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GODEX_RPC_URL"); v != "" {
		c.Network.RPCURL = v
	}
	if v := os.Getenv("GODEX_WS_URL"); v != "" {
		c.Network.WSURL = v
	}
	if v := os.Getenv("GODEX_CHAIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Network.ChainID = id
		}
	}
	if v := os.Getenv("PRIVATE_KEY"); v != "" {
		c.Wallet.PrivateKey = v
	}
	if v := os.Getenv("MNEMONIC"); v != "" {
		c.Wallet.Mnemonic = v
	}
	if v := os.Getenv("GODEX_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("GODEX_GAS_ORACLE_URL"); v != "" {
		c.GasOracle.URL = v
	}
	if v := os.Getenv("GODEX_STATUS_ADDR"); v != "" {
		c.StatusAPI.ListenAddr = v
		c.StatusAPI.Enabled = true
	}
}

// DeploymentAddress returns the configured address for a logical contract
// name on the given chain. ok is false when the chain or name is unknown.
func (c *Config) DeploymentAddress(chainID int64, name string) (string, bool) {
	byName, ok := c.Deployments[chainID]
	if !ok {
		return "", false
	}
	addr, ok := byName[name]
	return addr, ok
}
