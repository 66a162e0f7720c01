package halopay

import (
	"errors"
	"fmt"
)

// Standard halopay error definitions.
//
// Every error below describes a caller input or state problem, not an internal
// fault. A call that returns one of these has performed no state mutation; the
// merchant tooling should treat it as "this payment attempt did not happen".
// Token collaborator errors (balance shortfall, reverts) are propagated as-is
// and are deliberately absent from this taxonomy.

var (
	// ErrZeroAddress indicates a payer, merchant, or device address was the zero address.
	ErrZeroAddress = errors.New("halopay: zero address")

	// ErrInvalidAmount indicates a nil, zero, or negative payment amount.
	ErrInvalidAmount = errors.New("halopay: invalid amount")

	// ErrInvalidNonce indicates a nil payment nonce.
	ErrInvalidNonce = errors.New("halopay: invalid nonce")

	// ErrHaloAlreadyRegistered indicates the device is already bound to a different payer.
	ErrHaloAlreadyRegistered = errors.New("halopay: halo address already registered")

	// ErrPayerAlreadyRegistered indicates the payer already has a bound device
	// and must revoke it before registering a new one.
	ErrPayerAlreadyRegistered = errors.New("halopay: payer already has a registered device")

	// ErrNotAuthorized indicates the payer has no registered device.
	ErrNotAuthorized = errors.New("halopay: no device registered for payer")

	// ErrHaloNotAuthorized indicates the device address resolves to no registered payer.
	ErrHaloNotAuthorized = errors.New("halopay: halo address not authorized")

	// ErrInvalidSignature indicates a malformed signature or one that does not
	// recover to the registered device address.
	ErrInvalidSignature = errors.New("halopay: invalid signature")

	// ErrNonceAlreadyUsed indicates the (payer, nonce) pair was already consumed.
	ErrNonceAlreadyUsed = errors.New("halopay: nonce already used")

	// ErrInsufficientAllowance indicates the payer's token allowance does not cover the amount.
	ErrInsufficientAllowance = errors.New("halopay: insufficient allowance")

	// ErrInvalidKey indicates an invalid private key.
	ErrInvalidKey = errors.New("halopay: invalid private key")

	// ErrInvalidKeystore indicates an invalid keystore file.
	ErrInvalidKeystore = errors.New("halopay: invalid keystore file")

	// ErrInvalidMnemonic indicates an invalid mnemonic phrase.
	ErrInvalidMnemonic = errors.New("halopay: invalid mnemonic phrase")

	// ErrInvalidNetwork indicates an unknown or unsupported network.
	ErrInvalidNetwork = errors.New("halopay: invalid or unsupported network")

	// ErrStoreClosed indicates an operation on a closed persistence store.
	ErrStoreClosed = errors.New("halopay: store is closed")
)

// ErrorCode classifies a PaymentError for programmatic handling.
type ErrorCode string

const (
	// ErrCodeRegistration covers device registration and revocation failures.
	ErrCodeRegistration ErrorCode = "REGISTRATION"

	// ErrCodeAuthorization covers signature and device-binding failures.
	ErrCodeAuthorization ErrorCode = "AUTHORIZATION"

	// ErrCodeReplay covers consumed-nonce rejections.
	ErrCodeReplay ErrorCode = "REPLAY"

	// ErrCodeTransfer covers token transfer and allowance failures.
	ErrCodeTransfer ErrorCode = "TRANSFER"

	// ErrCodeSigningFailed covers device signer failures.
	ErrCodeSigningFailed ErrorCode = "SIGNING_FAILED"

	// ErrCodeStorage covers persistence layer failures.
	ErrCodeStorage ErrorCode = "STORAGE"
)

// PaymentError wraps a sentinel error with a code and structured details.
type PaymentError struct {
	Code    ErrorCode
	Message string
	Err     error
	Details map[string]interface{}
}

// NewPaymentError creates a PaymentError with an initialized details map.
func NewPaymentError(code ErrorCode, message string, err error) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a key/value pair and returns the error for chaining.
func (e *PaymentError) WithDetails(key string, value interface{}) *PaymentError {
	e.Details[key] = value
	return e
}
