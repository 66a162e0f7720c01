// Package executor orchestrates payment redemption: it resolves the payer's
// registered device, rebuilds the payment digest, verifies the device
// signature, guards against replay through the nonce ledger, and moves funds
// through the token collaborator, all as one atomic state transition.
package executor

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	halopay "github.com/halopay/halopay-go"
	"github.com/halopay/halopay-go/digest"
	"github.com/halopay/halopay-go/nonceledger"
	"github.com/halopay/halopay-go/registry"
	"github.com/halopay/halopay-go/token"
	"github.com/halopay/halopay-go/verify"
)

// Executor validates and settles device-authorized payments.
//
// Every execution runs under a single mutex spanning validation through
// commit, so no call ever observes intermediate state. The nonce is consumed
// before the external transfer call (so a reentrant call cannot race past the
// replay check) and released again if the transfer fails, keeping nonce
// consumption and transfer indivisible either way.
type Executor struct {
	registry *registry.Registry
	nonces   *nonceledger.Ledger
	token    token.Token
	builder  *digest.Builder
	spender  common.Address
	logger   *zap.Logger
	callback halopay.EventCallback
	mu       sync.Mutex
}

// Option configures an Executor.
type Option func(*Executor)

// WithEventCallback sets a callback invoked on every executed payment.
// Callbacks run after the executor's lock is released, so they may submit
// further payments.
func WithEventCallback(cb halopay.EventCallback) Option {
	return func(e *Executor) {
		e.callback = cb
	}
}

// New creates an Executor. builder fixes the (chainId, contract) pair every
// accepted signature must commit to; spender is the address that holds payer
// allowances and is checked against the requested amount before transfer.
func New(reg *registry.Registry, nonces *nonceledger.Ledger, tok token.Token, builder *digest.Builder, spender common.Address, logger *zap.Logger, opts ...Option) *Executor {
	e := &Executor{
		registry: reg,
		nonces:   nonces,
		token:    tok,
		builder:  builder,
		spender:  spender,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecutePayment redeems a device-signed payment authorization for an
// explicitly named payer.
//
// Validation order is load-bearing; each check assumes the earlier ones
// passed:
//
//  1. payer/merchant zero address
//  2. amount nil, zero, or negative; nil nonce
//  3. payer has a registered device
//  4. rebuild digest from (payer, merchant, amount, nonce, chainId, contract)
//  5. signature recovers to the registered device
//  6. nonce unconsumed
//  7. allowance covers amount
//  8. consume nonce, transfer, record (atomic)
//
// On success exactly one nonce is consumed and one transfer performed, and a
// PaymentRecord is returned. On any failure no state mutation survives.
func (e *Executor) ExecutePayment(ctx context.Context, payer, merchant common.Address, amount, nonce *big.Int, sig []byte) (*halopay.PaymentRecord, error) {
	e.mu.Lock()
	record, err := e.execute(ctx, payer, merchant, amount, nonce, sig)
	e.mu.Unlock()

	if err != nil {
		return nil, err
	}

	e.emit(record)
	return record, nil
}

// ExecutePaymentFromDevice redeems a payment identified by the signing device
// rather than the payer; the payer is resolved through the registry. Fails
// with ErrHaloNotAuthorized when the device has no current binding.
func (e *Executor) ExecutePaymentFromDevice(ctx context.Context, device, merchant common.Address, amount, nonce *big.Int, sig []byte) (*halopay.PaymentRecord, error) {
	e.mu.Lock()
	record, err := e.executeFromDevice(ctx, device, merchant, amount, nonce, sig)
	e.mu.Unlock()

	if err != nil {
		return nil, err
	}

	e.emit(record)
	return record, nil
}

func (e *Executor) executeFromDevice(ctx context.Context, device, merchant common.Address, amount, nonce *big.Int, sig []byte) (*halopay.PaymentRecord, error) {
	payer, err := e.registry.PayerOf(device)
	if err != nil {
		return nil, err
	}
	if payer == (common.Address{}) {
		return nil, halopay.ErrHaloNotAuthorized
	}

	return e.execute(ctx, payer, merchant, amount, nonce, sig)
}

// execute runs the validation pipeline and commit. Callers hold e.mu.
func (e *Executor) execute(ctx context.Context, payer, merchant common.Address, amount, nonce *big.Int, sig []byte) (*halopay.PaymentRecord, error) {
	if payer == (common.Address{}) || merchant == (common.Address{}) {
		return nil, halopay.ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, halopay.ErrInvalidAmount
	}
	if nonce == nil {
		return nil, halopay.ErrInvalidNonce
	}

	device, err := e.registry.DeviceOf(payer)
	if err != nil {
		return nil, err
	}
	if device == (common.Address{}) {
		return nil, halopay.ErrHaloNotAuthorized
	}

	// The digest is always rebuilt here; caller-supplied digests are never
	// accepted.
	raw := e.builder.Build(payer, merchant, amount, nonce)
	signable := digest.Signable(raw)

	signer, err := verify.Recover(signable, sig)
	if err != nil {
		return nil, err
	}
	if signer != device {
		return nil, halopay.ErrInvalidSignature
	}

	used, err := e.nonces.IsUsed(payer, nonce)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, halopay.ErrNonceAlreadyUsed
	}

	allowance, err := e.token.Allowance(ctx, payer, e.spender)
	if err != nil {
		return nil, err
	}
	if allowance.Cmp(amount) < 0 {
		return nil, halopay.ErrInsufficientAllowance
	}

	// Commit: nonce first, then the external transfer. A transfer failure
	// releases the nonce so the same authorization can be retried.
	if err := e.nonces.Consume(payer, nonce); err != nil {
		return nil, err
	}

	txHash, err := e.token.TransferFrom(ctx, payer, merchant, amount)
	if err != nil {
		if relErr := e.nonces.Release(payer, nonce); relErr != nil {
			e.logger.Sugar().Errorw("failed to release nonce after transfer failure",
				"payer", payer.Hex(), "nonce", nonce.String(), "error", relErr)
		}
		// Token collaborator errors pass through untranslated.
		return nil, err
	}

	record := &halopay.PaymentRecord{
		ID:        uuid.NewString(),
		Payer:     payer,
		Merchant:  merchant,
		Amount:    new(big.Int).Set(amount),
		Nonce:     new(big.Int).Set(nonce),
		Device:    device,
		TxHash:    txHash,
		Timestamp: time.Now(),
	}

	e.logger.Sugar().Infow("payment executed",
		"id", record.ID,
		"payer", payer.Hex(),
		"merchant", merchant.Hex(),
		"amount", amount.String(),
		"nonce", nonce.String(),
		"device", device.Hex(),
		"tx", txHash.Hex(),
	)

	return record, nil
}

// emit fires the payment event. Called after the executor's lock is released
// so callbacks may submit further payments.
func (e *Executor) emit(record *halopay.PaymentRecord) {
	if e.callback == nil {
		return
	}

	e.callback(halopay.Event{
		Type:      halopay.EventPaymentExecuted,
		Timestamp: record.Timestamp,
		Payer:     record.Payer,
		Device:    record.Device,
		Merchant:  record.Merchant,
		Amount:    record.Amount,
		Nonce:     record.Nonce,
		Record:    record,
	})
}
