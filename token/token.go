// Package token defines the fungible-token collaborator the payment executor
// moves funds through. The engine only needs allowance reads and transferFrom;
// standard token semantics (balances, decimals) are assumed, not redesigned.
package token

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Token is the boundary contract with the fungible-token collaborator.
//
// Errors returned by TransferFrom (balance shortfall, reverts) are the
// collaborator's own and are propagated to merchants untranslated.
type Token interface {
	// Allowance returns the amount owner has approved spender to move.
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)

	// TransferFrom moves amount from owner to recipient using the spender's
	// approval, returning the hash of the resulting transaction.
	TransferFrom(ctx context.Context, owner, recipient common.Address, amount *big.Int) (common.Hash, error)
}
