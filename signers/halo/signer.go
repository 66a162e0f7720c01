// Package halo provides a software stand-in for a HaLo chip key slot: it
// holds a secp256k1 key and signs raw payment digests the same way the
// physical secure element does. Intended for development and tests; in
// production the signature arrives from the NFC device itself.
package halo

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	halopay "github.com/halopay/halopay-go"
)

// Signer implements halopay.DeviceSigner with a local private key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

var _ halopay.DeviceSigner = (*Signer)(nil)

// SignerOption configures a Signer.
type SignerOption func(*Signer) error

// NewSigner creates a new device signer with the given options.
// Exactly one key source option must be supplied.
func NewSigner(opts ...SignerOption) (*Signer, error) {
	s := &Signer{}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.privateKey == nil {
		return nil, halopay.ErrInvalidKey
	}

	s.address = crypto.PubkeyToAddress(s.privateKey.PublicKey)
	return s, nil
}

// WithPrivateKey sets the private key from a hex string.
func WithPrivateKey(hexKey string) SignerOption {
	return func(s *Signer) error {
		hexKey = strings.TrimPrefix(hexKey, "0x")

		privateKey, err := crypto.HexToECDSA(hexKey)
		if err != nil {
			return halopay.ErrInvalidKey
		}

		s.privateKey = privateKey
		return nil
	}
}

// WithGeneratedKey generates a fresh random key. Useful in tests.
func WithGeneratedKey() SignerOption {
	return func(s *Signer) error {
		privateKey, err := crypto.GenerateKey()
		if err != nil {
			return halopay.ErrInvalidKey
		}

		s.privateKey = privateKey
		return nil
	}
}

// Address returns the device address derived from the signing key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignDigest signs the raw payment digest under the EIP-191 personal-message
// convention and returns a 65-byte recoverable signature with v in {27, 28},
// matching what signature recovery expects.
func (s *Signer) SignDigest(digest common.Hash) ([]byte, error) {
	signable := accounts.TextHash(digest.Bytes())

	sig, err := crypto.Sign(signable, s.privateKey)
	if err != nil {
		return nil, halopay.NewPaymentError(halopay.ErrCodeSigningFailed, "failed to sign digest", err)
	}

	// Ethereum-style recovery id
	sig[64] += 27

	return sig, nil
}
