package main

import (
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	halopay "github.com/halopay/halopay-go"
	"github.com/halopay/halopay-go/config"
	"github.com/halopay/halopay-go/digest"
	"github.com/halopay/halopay-go/executor"
	"github.com/halopay/halopay-go/httpapi"
	"github.com/halopay/halopay-go/logger"
	"github.com/halopay/halopay-go/nonceledger"
	"github.com/halopay/halopay-go/persistence"
	badgerstore "github.com/halopay/halopay-go/persistence/badger"
	"github.com/halopay/halopay-go/persistence/memory"
	"github.com/halopay/halopay-go/registry"
	"github.com/halopay/halopay-go/token/erc20"
)

func main() {
	app := &cli.App{
		Name:  "halopay-server",
		Usage: "HaLo chip payment authorization server",
		Description: `Redeems USDC payments authorized by NFC secure-element signatures.

Payers bind a HaLo device address to their account; merchants submit
device-signed payment authorizations and pay gas for the resulting
transferFrom. The server verifies each signature against the registered
device, enforces per-payer nonce replay protection, and settles through
the configured token contract.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   8000,
				Usage:   "HTTP server port",
				EnvVars: []string{config.EnvPort},
			},
			&cli.StringFlag{
				Name:     "network",
				Aliases:  []string{"n"},
				Usage:    fmt.Sprintf("network binding: %s", strings.Join(halopay.SupportedNetworks(), ", ")),
				EnvVars:  []string{config.EnvNetwork},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "contract-address",
				Aliases:  []string{"contract"},
				Usage:    "verifying contract address bound into every payment digest",
				EnvVars:  []string{config.EnvContractAddress},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "rpc-url",
				Aliases: []string{"rpc"},
				Usage:   "Ethereum JSON-RPC endpoint URL",
				Value:   "http://localhost:8545",
				EnvVars: []string{config.EnvRPCURL},
			},
			&cli.StringFlag{
				Name:     "operator-private-key",
				Aliases:  []string{"key"},
				Usage:    "gas-paying key (hex) that submits transferFrom transactions",
				EnvVars:  []string{config.EnvOperatorKey},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "token-address",
				Aliases: []string{"token"},
				Usage:   "ERC-20 token address (defaults to the network's verified USDC)",
				EnvVars: []string{config.EnvTokenAddress},
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "badger data directory",
				Value:   "./halopay-data",
				EnvVars: []string{config.EnvDataDir},
			},
			&cli.StringFlag{
				Name:    "store-backend",
				Usage:   "persistence backend: badger or memory",
				Value:   config.StoreBackendBadger,
				EnvVars: []string{config.EnvStoreBackend},
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "enable verbose logging",
				EnvVars: []string{config.EnvDebug},
			},
		},
		Action: runServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func runServer(c *cli.Context) error {
	cfg := &config.ServerConfig{
		Port:               c.Int("port"),
		Network:            c.String("network"),
		ContractAddress:    c.String("contract-address"),
		RpcUrl:             c.String("rpc-url"),
		OperatorPrivateKey: c.String("operator-private-key"),
		TokenAddress:       c.String("token-address"),
		DataDir:            c.String("data-dir"),
		StoreBackend:       c.String("store-backend"),
		Debug:              c.Bool("debug"),
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	zlog, err := logger.NewLogger(&logger.Config{Debug: cfg.Debug})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = zlog.Sync() }()

	var store persistence.Store
	switch cfg.StoreBackend {
	case config.StoreBackendBadger:
		store, err = badgerstore.NewBadgerStore(cfg.DataDir, zlog)
		if err != nil {
			return fmt.Errorf("failed to open badger store: %w", err)
		}
	case config.StoreBackendMemory:
		zlog.Sugar().Warn("using in-memory store - all registrations and nonces are lost on restart")
		store = memory.NewMemoryStore()
	}
	defer func() { _ = store.Close() }()

	if err := store.HealthCheck(); err != nil {
		return fmt.Errorf("store health check failed: %w", err)
	}

	tok, err := erc20.NewClient(
		c.Context,
		cfg.RpcUrl,
		common.HexToAddress(cfg.TokenAddress),
		new(big.Int).SetUint64(cfg.Chain.ChainID),
		cfg.OperatorPrivateKey,
		zlog,
	)
	if err != nil {
		return fmt.Errorf("failed to create token client: %w", err)
	}
	defer tok.Close()

	contract := common.HexToAddress(cfg.ContractAddress)
	builder := digest.NewBuilder(new(big.Int).SetUint64(cfg.Chain.ChainID), contract)

	reg := registry.New(store, zlog)
	nonces := nonceledger.New(store)
	exec := executor.New(reg, nonces, tok, builder, tok.Operator(), zlog)

	handlers := httpapi.New(reg, nonces, exec, zlog)

	addr := fmt.Sprintf(":%d", cfg.Port)
	zlog.Sugar().Infow("halopay server listening",
		"addr", addr,
		"network", cfg.Network,
		"chainId", cfg.Chain.ChainID,
		"contract", contract.Hex(),
		"token", cfg.TokenAddress,
		"operator", tok.Operator().Hex(),
	)

	return http.ListenAndServe(addr, handlers.Router())
}
