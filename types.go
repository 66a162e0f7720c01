package halopay

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Registration is the active binding between a payer and its authorized device.
// The relation is bijective while active: one device per payer, one payer per
// device, and both directions are always written together.
type Registration struct {
	// Payer is the account whose funds move and who owns the token allowance.
	Payer common.Address `json:"payer"`

	// Device is the address derived from the secure element's key slot.
	Device common.Address `json:"device"`
}

// PaymentRecord is the auditable result of one successful payment execution.
// Created exactly once per execution and immutable thereafter.
type PaymentRecord struct {
	// ID uniquely identifies this record.
	ID string `json:"id"`

	// Payer is the account the funds were pulled from.
	Payer common.Address `json:"payer"`

	// Merchant is the account that received the funds.
	Merchant common.Address `json:"merchant"`

	// Amount is the transferred amount in atomic token units.
	Amount *big.Int `json:"amount"`

	// Nonce is the per-payer anti-replay value consumed by this payment.
	Nonce *big.Int `json:"nonce"`

	// Device is the registered device address that signed the authorization.
	Device common.Address `json:"device"`

	// TxHash is the hash of the resulting token transfer transaction.
	TxHash common.Hash `json:"txHash"`

	// Timestamp is when the payment was executed.
	Timestamp time.Time `json:"timestamp"`
}

// AmountToBigInt converts a decimal amount string to *big.Int in atomic units.
// For example, "1.5" with 6 decimals becomes 1500000.
func AmountToBigInt(amount string, decimals int) (*big.Int, error) {
	value := new(big.Float)
	if _, ok := value.SetString(amount); !ok {
		return nil, ErrInvalidAmount
	}

	multiplier := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	value.Mul(value, multiplier)

	result, accuracy := value.Int(nil)
	if accuracy != big.Exact {
		return nil, ErrInvalidAmount
	}
	return result, nil
}

// BigIntToAmount converts a *big.Int in atomic units to a decimal string.
// For example, 1500000 with 6 decimals becomes "1.500000".
func BigIntToAmount(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}

	f := new(big.Float).SetInt(value)
	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f.Quo(f, divisor)

	return f.Text('f', decimals)
}
