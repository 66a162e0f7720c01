// Package verify recovers signer identities from payment signatures.
// Recovery is stateless and side-effect-free; whether the recovered identity
// is authorized is the caller's comparison against the registered device.
package verify

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	halopay "github.com/halopay/halopay-go"
)

// SignatureLength is the expected r||s||v signature size in bytes.
const SignatureLength = 65

// Recover returns the address that produced sig over the signable digest.
// The recovery id may be 0/1 or the Ethereum-style 27/28; both are accepted.
// Malformed signatures return ErrInvalidSignature rather than silently
// recovering to an unrelated identity.
func Recover(signable common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d, want %d", halopay.ErrInvalidSignature, len(sig), SignatureLength)
	}

	// Normalize v without mutating the caller's slice.
	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	if normalized[64] == 27 || normalized[64] == 28 {
		normalized[64] -= 27
	}
	if normalized[64] > 1 {
		return common.Address{}, fmt.Errorf("%w: recovery id %d", halopay.ErrInvalidSignature, sig[64])
	}

	pub, err := crypto.SigToPub(signable.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", halopay.ErrInvalidSignature, err)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

// Matches reports whether sig over the signable digest was produced by expected.
// A malformed signature is reported as a non-match along with the error.
func Matches(signable common.Hash, sig []byte, expected common.Address) (bool, error) {
	recovered, err := Recover(signable, sig)
	if err != nil {
		return false, err
	}
	return recovered == expected, nil
}
