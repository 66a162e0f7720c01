// Package badger provides a durable, disk-backed Store using Badger.
package badger

import (
	"context"
	"fmt"
	"math/big"
	"path/filepath"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	halopay "github.com/halopay/halopay-go"
	"github.com/halopay/halopay-go/persistence"
)

// Key prefixes for namespacing
const (
	keyPrefixRegPayer  = "reg:payer:"
	keyPrefixRegDevice = "reg:device:"
	keyPrefixNonce     = "nonce:"
	keySchemaVersion   = "metadata:schema_version"
	currentSchema      = "v1"
)

// BadgerStore is a production persistence.Store backed by Badger with
// SyncWrites enabled. Both registration indexes are written inside one Badger
// transaction, so a crash never leaves a half-binding behind.
type BadgerStore struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

var _ persistence.Store = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) a Badger-backed store at dataPath.
// A background goroutine runs periodic value-log garbage collection.
func NewBadgerStore(dataPath string, logger *zap.Logger) (*BadgerStore, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.SyncWrites = true // fsync per write: consumed nonces must survive a crash
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bs := &BadgerStore{
		db:     db,
		logger: logger,
	}

	if err := bs.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bs.gcCancel = cancel
	bs.gcWg.Add(1)
	go bs.runGC(ctx)

	logger.Sugar().Infow("badger store initialized", "path", absPath)

	return bs, nil
}

func (b *BadgerStore) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchema))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existing string
		err = item.Value(func(val []byte) error {
			existing = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existing != currentSchema {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existing, currentSchema)
		}
		return nil
	})
}

func (b *BadgerStore) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && err != badgerdb.ErrNoRewrite {
				b.logger.Sugar().Warnw("badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func payerKey(payer common.Address) []byte {
	return []byte(keyPrefixRegPayer + payer.Hex())
}

func deviceKey(device common.Address) []byte {
	return []byte(keyPrefixRegDevice + device.Hex())
}

func nonceKey(payer common.Address, nonce *big.Int) []byte {
	return []byte(keyPrefixNonce + persistence.NonceKey(payer, nonce))
}

// SaveRegistration writes both directions of the binding in one transaction.
func (b *BadgerStore) SaveRegistration(payer, device common.Address) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return halopay.ErrStoreClosed
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Set(payerKey(payer), device.Bytes()); err != nil {
			return err
		}
		return txn.Set(deviceKey(device), payer.Bytes())
	})
}

// DeleteRegistration removes both directions of the binding in one transaction.
func (b *BadgerStore) DeleteRegistration(payer, device common.Address) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return halopay.ErrStoreClosed
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Delete(payerKey(payer)); err != nil {
			return err
		}
		return txn.Delete(deviceKey(device))
	})
}

// DeviceOf returns the device bound to payer, or the zero address.
func (b *BadgerStore) DeviceOf(payer common.Address) (common.Address, error) {
	return b.lookupAddress(payerKey(payer))
}

// PayerOf returns the payer bound to device, or the zero address.
func (b *BadgerStore) PayerOf(device common.Address) (common.Address, error) {
	return b.lookupAddress(deviceKey(device))
}

func (b *BadgerStore) lookupAddress(key []byte) (common.Address, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return common.Address{}, halopay.ErrStoreClosed
	}

	var addr common.Address
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if err == badgerdb.ErrKeyNotFound {
			return nil // absent binding is not an error
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			if len(val) != common.AddressLength {
				return fmt.Errorf("invalid address data length: %d", len(val))
			}
			addr = common.BytesToAddress(val)
			return nil
		})
	})
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to look up registration: %w", err)
	}

	return addr, nil
}

// MarkNonceUsed records (payer, nonce) as consumed.
func (b *BadgerStore) MarkNonceUsed(payer common.Address, nonce *big.Int) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return halopay.ErrStoreClosed
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(nonceKey(payer, nonce), []byte{1})
	})
}

// ReleaseNonce removes (payer, nonce) from the consumed set.
func (b *BadgerStore) ReleaseNonce(payer common.Address, nonce *big.Int) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return halopay.ErrStoreClosed
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(nonceKey(payer, nonce))
	})
}

// IsNonceUsed reports whether (payer, nonce) has been consumed.
func (b *BadgerStore) IsNonceUsed(payer common.Address, nonce *big.Int) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false, halopay.ErrStoreClosed
	}

	used := false
	err := b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(nonceKey(payer, nonce))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		used = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to check nonce: %w", err)
	}

	return used, nil
}

// Close shuts down the store.
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("badger store closed")
	return nil
}

// HealthCheck verifies the store is operational.
func (b *BadgerStore) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return halopay.ErrStoreClosed
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
