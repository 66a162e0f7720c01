// Package persistence defines the storage surface behind the address registry
// and the nonce ledger: one registration relation indexed by payer and by
// device, and one consumed-nonce set keyed by (payer, nonce). Implementations
// must be thread-safe and must write both registration indexes in a single
// atomic step so no reader ever observes a half-binding.
package persistence

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Store is the persisted state surface for the authorization engine.
//
// Lookups report absence with the zero address (registrations) or false
// (nonces); errors are reserved for storage failures. All operations on a
// closed store return ErrStoreClosed.
type Store interface {
	// Registration relation

	// SaveRegistration writes payer→device and device→payer together.
	// It does not enforce domain invariants; the registry layer does.
	SaveRegistration(payer, device common.Address) error

	// DeleteRegistration removes both directions of the binding.
	// Idempotent: deleting an absent binding is not an error.
	DeleteRegistration(payer, device common.Address) error

	// DeviceOf returns the device bound to payer, or the zero address.
	DeviceOf(payer common.Address) (common.Address, error)

	// PayerOf returns the payer a device is bound to, or the zero address.
	PayerOf(device common.Address) (common.Address, error)

	// Consumed-nonce set

	// MarkNonceUsed records (payer, nonce) as consumed.
	MarkNonceUsed(payer common.Address, nonce *big.Int) error

	// ReleaseNonce removes (payer, nonce) from the consumed set. Only the
	// executor's rollback path calls this; a consumed nonce is otherwise
	// permanent. Idempotent.
	ReleaseNonce(payer common.Address, nonce *big.Int) error

	// IsNonceUsed reports whether (payer, nonce) has been consumed.
	IsNonceUsed(payer common.Address, nonce *big.Int) (bool, error)

	// Lifecycle

	// Close cleanly shuts down the store. Idempotent.
	Close() error

	// HealthCheck verifies the store is operational.
	HealthCheck() error
}

// NonceKey renders the canonical (payer, nonce) key shared by implementations.
func NonceKey(payer common.Address, nonce *big.Int) string {
	return payer.Hex() + ":" + nonce.String()
}
