// Package memory provides an in-memory Store for tests and development.
package memory

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	halopay "github.com/halopay/halopay-go"
	"github.com/halopay/halopay-go/persistence"
)

// MemoryStore is an in-memory implementation of persistence.Store.
// All data is lost when the process exits; use the badger store in production.
// Thread-safe via sync.RWMutex.
type MemoryStore struct {
	mu sync.RWMutex

	// Registration relation, both indexes kept in lockstep
	deviceByPayer map[common.Address]common.Address
	payerByDevice map[common.Address]common.Address

	// Consumed nonces keyed by persistence.NonceKey
	usedNonces map[string]struct{}

	closed bool
}

var _ persistence.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		deviceByPayer: make(map[common.Address]common.Address),
		payerByDevice: make(map[common.Address]common.Address),
		usedNonces:    make(map[string]struct{}),
	}
}

// SaveRegistration writes both directions of the binding.
func (m *MemoryStore) SaveRegistration(payer, device common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return halopay.ErrStoreClosed
	}

	m.deviceByPayer[payer] = device
	m.payerByDevice[device] = payer
	return nil
}

// DeleteRegistration removes both directions of the binding.
func (m *MemoryStore) DeleteRegistration(payer, device common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return halopay.ErrStoreClosed
	}

	delete(m.deviceByPayer, payer)
	delete(m.payerByDevice, device)
	return nil
}

// DeviceOf returns the device bound to payer, or the zero address.
func (m *MemoryStore) DeviceOf(payer common.Address) (common.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return common.Address{}, halopay.ErrStoreClosed
	}

	return m.deviceByPayer[payer], nil
}

// PayerOf returns the payer bound to device, or the zero address.
func (m *MemoryStore) PayerOf(device common.Address) (common.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return common.Address{}, halopay.ErrStoreClosed
	}

	return m.payerByDevice[device], nil
}

// MarkNonceUsed records (payer, nonce) as consumed.
func (m *MemoryStore) MarkNonceUsed(payer common.Address, nonce *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return halopay.ErrStoreClosed
	}

	m.usedNonces[persistence.NonceKey(payer, nonce)] = struct{}{}
	return nil
}

// ReleaseNonce removes (payer, nonce) from the consumed set.
func (m *MemoryStore) ReleaseNonce(payer common.Address, nonce *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return halopay.ErrStoreClosed
	}

	delete(m.usedNonces, persistence.NonceKey(payer, nonce))
	return nil
}

// IsNonceUsed reports whether (payer, nonce) has been consumed.
func (m *MemoryStore) IsNonceUsed(payer common.Address, nonce *big.Int) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false, halopay.ErrStoreClosed
	}

	_, used := m.usedNonces[persistence.NonceKey(payer, nonce)]
	return used, nil
}

// Close shuts down the store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck verifies the store is operational.
func (m *MemoryStore) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return halopay.ErrStoreClosed
	}
	return nil
}
