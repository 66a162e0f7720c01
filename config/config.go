// Package config holds the halopay server configuration and its validation.
package config

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	halopay "github.com/halopay/halopay-go"
)

// Environment variable names for server configuration
const (
	EnvPort            = "HALOPAY_PORT"
	EnvNetwork         = "HALOPAY_NETWORK"
	EnvContractAddress = "HALOPAY_CONTRACT_ADDRESS"
	EnvRPCURL          = "HALOPAY_RPC_URL"
	EnvOperatorKey     = "HALOPAY_OPERATOR_PRIVATE_KEY"
	EnvTokenAddress    = "HALOPAY_TOKEN_ADDRESS"
	EnvDataDir         = "HALOPAY_DATA_DIR"
	EnvStoreBackend    = "HALOPAY_STORE_BACKEND"
	EnvDebug           = "HALOPAY_DEBUG"
)

// Store backend identifiers
const (
	StoreBackendBadger = "badger"
	StoreBackendMemory = "memory"
)

// ServerConfig represents the complete configuration for a halopay server.
type ServerConfig struct {
	// Port is the HTTP listen port.
	Port int `json:"port"`

	// Network selects the chain binding (see halopay.SupportedNetworks).
	Network string `json:"network"`

	// ContractAddress is the verifying contract every signature commits to.
	ContractAddress string `json:"contract_address"`

	// RpcUrl is the Ethereum JSON-RPC endpoint.
	RpcUrl string `json:"rpc_url"`

	// OperatorPrivateKey signs and pays gas for transferFrom transactions.
	OperatorPrivateKey string `json:"-"`

	// TokenAddress overrides the network's verified USDC address when set.
	TokenAddress string `json:"token_address,omitempty"`

	// DataDir is the badger data directory.
	DataDir string `json:"data_dir"`

	// StoreBackend selects the persistence backend ("badger" or "memory").
	StoreBackend string `json:"store_backend"`

	// Debug enables verbose logging.
	Debug bool `json:"debug"`

	// Chain is resolved from Network during validation.
	Chain halopay.ChainConfig `json:"-"`
}

// Validate checks the configuration and resolves the chain binding.
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1-65535, got %d", c.Port)
	}

	chain, err := halopay.ChainByNetwork(c.Network)
	if err != nil {
		return fmt.Errorf("unsupported network %q, supported: %v", c.Network, halopay.SupportedNetworks())
	}
	c.Chain = chain

	if c.ContractAddress == "" {
		return fmt.Errorf("contract address cannot be empty")
	}
	if !common.IsHexAddress(c.ContractAddress) {
		return fmt.Errorf("invalid contract address format: %s", c.ContractAddress)
	}

	if c.TokenAddress == "" {
		c.TokenAddress = chain.USDCAddress
	}
	if !common.IsHexAddress(c.TokenAddress) {
		return fmt.Errorf("invalid token address format: %s", c.TokenAddress)
	}

	if c.RpcUrl == "" {
		return fmt.Errorf("rpc url cannot be empty")
	}

	if c.OperatorPrivateKey == "" {
		return fmt.Errorf("operator private key cannot be empty")
	}

	switch c.StoreBackend {
	case StoreBackendBadger:
		if c.DataDir == "" {
			return fmt.Errorf("data dir cannot be empty with the badger backend")
		}
	case StoreBackendMemory:
		// nothing to check
	default:
		return fmt.Errorf("unsupported store backend %q (want %q or %q)", c.StoreBackend, StoreBackendBadger, StoreBackendMemory)
	}

	return nil
}
