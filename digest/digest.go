// Package digest builds the deterministic, domain-separated payment digest a
// HaLo device signs. The digest binds payer, merchant, amount, nonce, chain
// id, and verifying contract, so a captured signature cannot be replayed with
// any parameter changed, on another chain, or against another deployment.
//
// The digest is always rebuilt server-side from the payment parameters;
// callers never supply one. Accepting a caller-supplied digest would allow
// hash-substitution attacks.
package digest

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DomainTag is the constant protocol prefix mixed into every payment digest.
const DomainTag = "HALO_PAYMENT"

// Builder computes payment digests for one deployment: a fixed chain id and
// verifying contract address. Builders are immutable and safe for concurrent use.
type Builder struct {
	chainID  *big.Int
	contract common.Address
}

// NewBuilder creates a digest builder bound to a chain id and verifying contract.
func NewBuilder(chainID *big.Int, contract common.Address) *Builder {
	return &Builder{
		chainID:  new(big.Int).Set(chainID),
		contract: contract,
	}
}

// ChainID returns the chain id the builder is bound to.
func (b *Builder) ChainID() *big.Int {
	return new(big.Int).Set(b.chainID)
}

// Contract returns the verifying contract address the builder is bound to.
func (b *Builder) Contract() common.Address {
	return b.contract
}

// Build computes the raw payment digest:
//
//	keccak256(DomainTag || payer || merchant || amount || nonce || chainId || contract)
//
// with amount, nonce, and chainId left-padded to 32 bytes. Callers must pass
// non-nil amount and nonce; the executor rejects nil values before building.
// This is the value handed to the device signer, not the value signatures are
// recovered against; see Signable.
func (b *Builder) Build(payer, merchant common.Address, amount, nonce *big.Int) common.Hash {
	packed := make([]byte, 0, len(DomainTag)+20+20+32+32+32+20)
	packed = append(packed, []byte(DomainTag)...)
	packed = append(packed, payer.Bytes()...)
	packed = append(packed, merchant.Bytes()...)
	packed = append(packed, common.LeftPadBytes(amount.Bytes(), 32)...)
	packed = append(packed, common.LeftPadBytes(nonce.Bytes(), 32)...)
	packed = append(packed, common.LeftPadBytes(b.chainID.Bytes(), 32)...)
	packed = append(packed, b.contract.Bytes()...)

	return crypto.Keccak256Hash(packed)
}

// Signable applies the EIP-191 personal-message convention to a raw digest:
//
//	keccak256("\x19Ethereum Signed Message:\n32" || raw)
//
// This is the value signatures are produced over and recovered against. It is
// a distinct transform from the raw digest and the two must never be conflated.
func Signable(raw common.Hash) common.Hash {
	return common.BytesToHash(accounts.TextHash(raw.Bytes()))
}
