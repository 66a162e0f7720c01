package halopay

import "github.com/ethereum/go-ethereum/common"

// DeviceSigner produces recoverable signatures the way a HaLo chip key slot
// does: given a raw payment digest it returns a 65-byte r||s||v signature
// over the digest's canonical signed-message form. The engine itself never
// signs; implementations exist for development and testing, while production
// signatures arrive from the physical secure element.
type DeviceSigner interface {
	// Address returns the address derived from the signing key.
	Address() common.Address

	// SignDigest signs the raw payment digest and returns a 65-byte
	// recoverable signature with v in {27, 28}.
	SignDigest(digest common.Hash) ([]byte, error)
}
