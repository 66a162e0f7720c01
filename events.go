package halopay

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType represents the type of an authorization lifecycle event.
type EventType string

const (
	// EventRegistered indicates a device was bound to a payer.
	EventRegistered EventType = "registered"

	// EventRevoked indicates a payer's device binding was removed.
	EventRevoked EventType = "revoked"

	// EventPaymentExecuted indicates a payment was executed and its nonce consumed.
	EventPaymentExecuted EventType = "payment_executed"
)

// Event is an auditable notification emitted on every successful registration,
// revocation, or payment execution. Events are observability output only; no
// internal logic reads them back.
type Event struct {
	// Type is the event type.
	Type EventType

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// Payer is the payer account the event concerns.
	Payer common.Address

	// Device is the device address involved.
	Device common.Address

	// Merchant is the payment recipient (payment events only).
	Merchant common.Address

	// Amount is the payment amount in atomic units (payment events only).
	Amount *big.Int

	// Nonce is the consumed anti-replay value (payment events only).
	Nonce *big.Int

	// Record is the full payment record (payment events only).
	Record *PaymentRecord
}

// EventCallback is a function that handles lifecycle events. Callbacks run
// synchronously before the emitting call returns, but after the component has
// released its internal lock, so they may call back into the engine. They
// should still be fast; spawn a goroutine for anything slow.
type EventCallback func(Event)
