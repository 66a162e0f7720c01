// Package halopay implements the authorization and replay-protection engine
// for NFC secure-element ("HaLo chip") USDC payments: the payer/device
// registry, the deterministic payment digest, signature-to-identity recovery,
// the per-payer nonce ledger, and the payment executor that ties them to a
// token transfer. The payer's chip signs an off-chain digest; a merchant
// later redeems that signature through the executor and pays execution cost.
//
// This file provides verified USDC addresses and chain identifiers for the
// EVM networks the engine can be bound to, so servers and clients agree on
// the (chainId, contract) pair every signature commits to.
package halopay

import "fmt"

// ChainConfig contains chain-specific configuration for USDC payments.
// All USDC addresses were verified against Circle's published deployments.
type ChainConfig struct {
	// NetworkID is the network identifier used in configuration (e.g., "base").
	NetworkID string

	// ChainID is the EVM chain identifier bound into every payment digest.
	ChainID uint64

	// USDCAddress is the official Circle USDC contract address.
	USDCAddress string

	// Decimals is the number of decimal places for USDC (always 6).
	Decimals uint8
}

// Mainnet chain configurations
var (
	// EthereumMainnet is the configuration for Ethereum mainnet.
	EthereumMainnet = ChainConfig{
		NetworkID:   "ethereum",
		ChainID:     1,
		USDCAddress: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		Decimals:    6,
	}

	// BaseMainnet is the configuration for Base mainnet.
	BaseMainnet = ChainConfig{
		NetworkID:   "base",
		ChainID:     8453,
		USDCAddress: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		Decimals:    6,
	}

	// PolygonMainnet is the configuration for Polygon PoS mainnet.
	PolygonMainnet = ChainConfig{
		NetworkID:   "polygon",
		ChainID:     137,
		USDCAddress: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
		Decimals:    6,
	}

	// AvalancheMainnet is the configuration for Avalanche C-Chain mainnet.
	AvalancheMainnet = ChainConfig{
		NetworkID:   "avalanche",
		ChainID:     43114,
		USDCAddress: "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E",
		Decimals:    6,
	}
)

// Testnet chain configurations
var (
	// Sepolia is the configuration for Ethereum Sepolia.
	Sepolia = ChainConfig{
		NetworkID:   "sepolia",
		ChainID:     11155111,
		USDCAddress: "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
		Decimals:    6,
	}

	// BaseSepolia is the configuration for Base Sepolia.
	BaseSepolia = ChainConfig{
		NetworkID:   "base-sepolia",
		ChainID:     84532,
		USDCAddress: "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Decimals:    6,
	}

	// PolygonAmoy is the configuration for Polygon Amoy.
	PolygonAmoy = ChainConfig{
		NetworkID:   "polygon-amoy",
		ChainID:     80002,
		USDCAddress: "0x41E94Eb019C0762f9Bfcf9Fb1E58725BfB0e7582",
		Decimals:    6,
	}

	// AvalancheFuji is the configuration for Avalanche Fuji.
	AvalancheFuji = ChainConfig{
		NetworkID:   "avalanche-fuji",
		ChainID:     43113,
		USDCAddress: "0x5425890298aed601595a70AB815c96711a31Bc65",
		Decimals:    6,
	}
)

// AllChains lists every supported chain configuration.
var AllChains = []ChainConfig{
	EthereumMainnet,
	BaseMainnet,
	PolygonMainnet,
	AvalancheMainnet,
	Sepolia,
	BaseSepolia,
	PolygonAmoy,
	AvalancheFuji,
}

// ChainByNetwork returns the chain configuration for a network identifier.
// Returns ErrInvalidNetwork for unknown networks.
func ChainByNetwork(networkID string) (ChainConfig, error) {
	for _, c := range AllChains {
		if c.NetworkID == networkID {
			return c, nil
		}
	}
	return ChainConfig{}, fmt.Errorf("%w: %s", ErrInvalidNetwork, networkID)
}

// ChainByID returns the chain configuration for an EVM chain id.
// Returns ErrInvalidNetwork for unknown chain ids.
func ChainByID(chainID uint64) (ChainConfig, error) {
	for _, c := range AllChains {
		if c.ChainID == chainID {
			return c, nil
		}
	}
	return ChainConfig{}, fmt.Errorf("%w: chain id %d", ErrInvalidNetwork, chainID)
}

// SupportedNetworks returns the identifiers of all supported networks.
func SupportedNetworks() []string {
	ids := make([]string, 0, len(AllChains))
	for _, c := range AllChains {
		ids = append(ids, c.NetworkID)
	}
	return ids
}
