// Package nonceledger tracks consumed payment nonces per payer.
package nonceledger

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	halopay "github.com/halopay/halopay-go"
	"github.com/halopay/halopay-go/persistence"
)

// Ledger is the per-payer consumed-nonce set. A (payer, nonce) pair can be
// consumed at most once; the same numeric nonce remains available to every
// other payer. Consume must only be called after signature and authorization
// checks have passed, and always inside the executor's atomic section.
type Ledger struct {
	store persistence.Store
	mu    sync.Mutex
}

// New creates a Ledger over the given store.
func New(store persistence.Store) *Ledger {
	return &Ledger{store: store}
}

// IsUsed reports whether (payer, nonce) has been consumed.
func (l *Ledger) IsUsed(payer common.Address, nonce *big.Int) (bool, error) {
	return l.store.IsNonceUsed(payer, nonce)
}

// Consume marks (payer, nonce) as consumed.
// Fails with ErrNonceAlreadyUsed if the pair was consumed before.
func (l *Ledger) Consume(payer common.Address, nonce *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	used, err := l.store.IsNonceUsed(payer, nonce)
	if err != nil {
		return err
	}
	if used {
		return halopay.ErrNonceAlreadyUsed
	}

	return l.store.MarkNonceUsed(payer, nonce)
}

// Release returns (payer, nonce) to the unconsumed state. This exists solely
// for the executor's rollback when the transfer guarded by the nonce fails;
// a nonce consumed by a completed payment is permanent.
func (l *Ledger) Release(payer common.Address, nonce *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.store.ReleaseNonce(payer, nonce)
}
