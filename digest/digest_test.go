package digest

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	testPayer    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testMerchant = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testContract = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func newTestBuilder() *Builder {
	return NewBuilder(big.NewInt(8453), testContract)
}

func TestBuildDeterministic(t *testing.T) {
	b := newTestBuilder()

	d1 := b.Build(testPayer, testMerchant, big.NewInt(1000), big.NewInt(1))
	d2 := b.Build(testPayer, testMerchant, big.NewInt(1000), big.NewInt(1))

	if d1 != d2 {
		t.Errorf("same inputs produced different digests: %s vs %s", d1.Hex(), d2.Hex())
	}
	if d1 == (common.Hash{}) {
		t.Error("digest is zero")
	}
}

func TestBuildParameterSensitivity(t *testing.T) {
	base := newTestBuilder().Build(testPayer, testMerchant, big.NewInt(1000), big.NewInt(1))

	tests := []struct {
		name   string
		digest common.Hash
	}{
		{
			name: "different payer",
			digest: newTestBuilder().Build(
				common.HexToAddress("0x4444444444444444444444444444444444444444"),
				testMerchant, big.NewInt(1000), big.NewInt(1)),
		},
		{
			name: "different merchant",
			digest: newTestBuilder().Build(
				testPayer,
				common.HexToAddress("0x4444444444444444444444444444444444444444"),
				big.NewInt(1000), big.NewInt(1)),
		},
		{
			name:   "different amount",
			digest: newTestBuilder().Build(testPayer, testMerchant, big.NewInt(1001), big.NewInt(1)),
		},
		{
			name:   "different nonce",
			digest: newTestBuilder().Build(testPayer, testMerchant, big.NewInt(1000), big.NewInt(2)),
		},
		{
			name: "different chain id",
			digest: NewBuilder(big.NewInt(1), testContract).
				Build(testPayer, testMerchant, big.NewInt(1000), big.NewInt(1)),
		},
		{
			name: "different contract",
			digest: NewBuilder(big.NewInt(8453), common.HexToAddress("0x5555555555555555555555555555555555555555")).
				Build(testPayer, testMerchant, big.NewInt(1000), big.NewInt(1)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.digest == base {
				t.Error("digest did not change with the parameter")
			}
		})
	}
}

// Swapping which operand carries which value must change the digest even when
// the concatenated bytes could otherwise collide.
func TestBuildFieldOrdering(t *testing.T) {
	b := newTestBuilder()

	d1 := b.Build(testPayer, testMerchant, big.NewInt(5), big.NewInt(7))
	d2 := b.Build(testMerchant, testPayer, big.NewInt(5), big.NewInt(7))
	d3 := b.Build(testPayer, testMerchant, big.NewInt(7), big.NewInt(5))

	if d1 == d2 {
		t.Error("swapping payer and merchant did not change the digest")
	}
	if d1 == d3 {
		t.Error("swapping amount and nonce did not change the digest")
	}
}

func TestSignable(t *testing.T) {
	raw := newTestBuilder().Build(testPayer, testMerchant, big.NewInt(1000), big.NewInt(1))

	signable := Signable(raw)
	if signable == raw {
		t.Error("signable digest must differ from the raw digest")
	}
	if signable != Signable(raw) {
		t.Error("signable transform is not deterministic")
	}
}

func TestBuilderAccessors(t *testing.T) {
	b := newTestBuilder()

	if b.ChainID().Cmp(big.NewInt(8453)) != 0 {
		t.Errorf("ChainID = %s, want 8453", b.ChainID())
	}
	if b.Contract() != testContract {
		t.Errorf("Contract = %s, want %s", b.Contract().Hex(), testContract.Hex())
	}

	// Mutating the returned chain id must not affect the builder.
	b.ChainID().SetInt64(1)
	if b.ChainID().Cmp(big.NewInt(8453)) != 0 {
		t.Error("ChainID returned internal state")
	}
}

func TestBuildLargeValues(t *testing.T) {
	b := newTestBuilder()

	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	d := b.Build(testPayer, testMerchant, max, max)
	if d == (common.Hash{}) {
		t.Error("digest is zero for max values")
	}
}
