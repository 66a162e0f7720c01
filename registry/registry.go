// Package registry maintains the bidirectional binding between payer accounts
// and their authorized HaLo device addresses.
package registry

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	halopay "github.com/halopay/halopay-go"
	"github.com/halopay/halopay-go/persistence"
)

// Registry enforces the registration invariants over a persistence.Store:
// at most one device per payer, at most one payer per device, and both
// directions of the relation always mutated together.
//
// Re-registration policy: a payer that already has a bound device must revoke
// it before binding a new one. Cross-payer device collisions are always
// rejected.
type Registry struct {
	store    persistence.Store
	logger   *zap.Logger
	callback halopay.EventCallback
	mu       sync.Mutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithEventCallback sets a callback invoked on every successful registration
// and revocation. Callbacks run after the registry's lock is released, so
// they may call back into the registry.
func WithEventCallback(cb halopay.EventCallback) Option {
	return func(r *Registry) {
		r.callback = cb
	}
}

// New creates a Registry over the given store.
func New(store persistence.Store, logger *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds device to payer.
//
// Fails with ErrZeroAddress for a zero payer or device, ErrHaloAlreadyRegistered
// when the device is bound to a different payer, and ErrPayerAlreadyRegistered
// when the payer already has a binding (including to the same device).
func (r *Registry) Register(payer, device common.Address) error {
	if payer == (common.Address{}) || device == (common.Address{}) {
		return halopay.ErrZeroAddress
	}

	if err := r.register(payer, device); err != nil {
		return err
	}

	r.logger.Sugar().Infow("device registered", "payer", payer.Hex(), "device", device.Hex())
	r.emit(halopay.Event{
		Type:      halopay.EventRegistered,
		Timestamp: time.Now(),
		Payer:     payer,
		Device:    device,
	})

	return nil
}

// register holds the lock for the check-and-save only. The caller emits the
// event after the lock is released so callbacks may re-enter the registry.
func (r *Registry) register(payer, device common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	boundPayer, err := r.store.PayerOf(device)
	if err != nil {
		return err
	}
	if boundPayer != (common.Address{}) && boundPayer != payer {
		return halopay.ErrHaloAlreadyRegistered
	}

	boundDevice, err := r.store.DeviceOf(payer)
	if err != nil {
		return err
	}
	if boundDevice != (common.Address{}) {
		return halopay.ErrPayerAlreadyRegistered
	}

	return r.store.SaveRegistration(payer, device)
}

// Revoke removes the payer's device binding.
// Fails with ErrNotAuthorized when the payer has no bound device.
func (r *Registry) Revoke(payer common.Address) error {
	device, err := r.revoke(payer)
	if err != nil {
		return err
	}

	r.logger.Sugar().Infow("device revoked", "payer", payer.Hex(), "device", device.Hex())
	r.emit(halopay.Event{
		Type:      halopay.EventRevoked,
		Timestamp: time.Now(),
		Payer:     payer,
		Device:    device,
	})

	return nil
}

func (r *Registry) revoke(payer common.Address) (common.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, err := r.store.DeviceOf(payer)
	if err != nil {
		return common.Address{}, err
	}
	if device == (common.Address{}) {
		return common.Address{}, halopay.ErrNotAuthorized
	}

	if err := r.store.DeleteRegistration(payer, device); err != nil {
		return common.Address{}, err
	}

	return device, nil
}

// DeviceOf returns the device bound to payer, or the zero address when none.
func (r *Registry) DeviceOf(payer common.Address) (common.Address, error) {
	return r.store.DeviceOf(payer)
}

// PayerOf returns the payer a device is bound to, or the zero address when
// none. Callers must treat the zero address as "not registered", never as a
// valid payer.
func (r *Registry) PayerOf(device common.Address) (common.Address, error) {
	return r.store.PayerOf(device)
}

func (r *Registry) emit(ev halopay.Event) {
	if r.callback != nil {
		r.callback(ev)
	}
}
