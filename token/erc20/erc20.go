// Package erc20 implements the token collaborator over a live ERC-20
// deployment (USDC in practice) via JSON-RPC. The client holds the operator
// key that pays gas for transferFrom; payers only need an on-chain allowance
// to the operator, never ETH.
package erc20

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/halopay/halopay-go/retry"
	"github.com/halopay/halopay-go/token"
)

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transferFrom","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

// Client is a token.Token backed by an ERC-20 contract over JSON-RPC.
type Client struct {
	eth         *ethclient.Client
	contract    *bind.BoundContract
	tokenAddr   common.Address
	chainID     *big.Int
	operatorKey *ecdsa.PrivateKey
	operator    common.Address
	logger      *zap.Logger
}

var _ token.Token = (*Client)(nil)

// NewClient dials rpcURL and binds the ERC-20 at tokenAddr. operatorKeyHex is
// the gas-paying key that submits transferFrom transactions; its address is
// the spender payers grant their allowance to.
func NewClient(ctx context.Context, rpcURL string, tokenAddr common.Address, chainID *big.Int, operatorKeyHex string, logger *zap.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc endpoint %s: %w", rpcURL, err)
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 abi: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(operatorKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid operator key: %w", err)
	}

	c := &Client{
		eth:         eth,
		contract:    bind.NewBoundContract(tokenAddr, parsed, eth, eth, eth),
		tokenAddr:   tokenAddr,
		chainID:     new(big.Int).Set(chainID),
		operatorKey: key,
		operator:    crypto.PubkeyToAddress(key.PublicKey),
		logger:      logger,
	}

	logger.Sugar().Infow("erc20 client initialized",
		"token", tokenAddr.Hex(), "operator", c.operator.Hex(), "chainId", chainID.String())

	return c, nil
}

// Operator returns the gas-paying spender address.
func (c *Client) Operator() common.Address {
	return c.operator
}

// Allowance returns the amount owner has approved spender to move.
// Transient RPC failures are retried; the call is a pure read.
func (c *Client) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return c.read(ctx, "allowance", owner, spender)
}

// BalanceOf returns the token balance of an account.
func (c *Client) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return c.read(ctx, "balanceOf", account)
}

func (c *Client) read(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	return retry.Do(ctx, retry.DefaultConfig, retry.IsTransientRPC, func() (*big.Int, error) {
		var out []interface{}
		if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
			return nil, fmt.Errorf("%s call failed: %w", method, err)
		}

		value, ok := out[0].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("unexpected %s return type %T", method, out[0])
		}
		return value, nil
	})
}

// TransferFrom submits a transferFrom transaction signed by the operator key
// and waits for it to be mined. A reverted receipt is returned as an error.
func (c *Client) TransferFrom(ctx context.Context, owner, recipient common.Address, amount *big.Int) (common.Hash, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(c.operatorKey, c.chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to build transactor: %w", err)
	}
	opts.Context = ctx

	tx, err := c.contract.Transact(opts, "transferFrom", owner, recipient, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("transferFrom failed: %w", err)
	}

	c.logger.Sugar().Infow("transferFrom submitted",
		"tx", tx.Hash().Hex(), "owner", owner.Hex(), "recipient", recipient.Hex(), "amount", amount.String())

	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("waiting for transferFrom receipt: %w", err)
	}
	if receipt.Status != 1 {
		return common.Hash{}, fmt.Errorf("transferFrom reverted: tx %s", tx.Hash().Hex())
	}

	return tx.Hash(), nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}
