package executor

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	halopay "github.com/halopay/halopay-go"
	"github.com/halopay/halopay-go/digest"
	"github.com/halopay/halopay-go/nonceledger"
	"github.com/halopay/halopay-go/persistence/memory"
	"github.com/halopay/halopay-go/registry"
	"github.com/halopay/halopay-go/signers/halo"
)

var (
	testMerchant = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testContract = common.HexToAddress("0x3333333333333333333333333333333333333333")
	testSpender  = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

// fakeToken is an in-memory token ledger standing in for the chain client.
type fakeToken struct {
	balances    map[common.Address]*big.Int
	allowances  map[common.Address]*big.Int
	transferErr error
	transfers   int
}

func newFakeToken() *fakeToken {
	return &fakeToken{
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]*big.Int),
	}
}

func (f *fakeToken) setBalance(owner common.Address, v int64)   { f.balances[owner] = big.NewInt(v) }
func (f *fakeToken) setAllowance(owner common.Address, v int64) { f.allowances[owner] = big.NewInt(v) }

func (f *fakeToken) balance(owner common.Address) *big.Int {
	if b, ok := f.balances[owner]; ok {
		return b
	}
	return big.NewInt(0)
}

func (f *fakeToken) Allowance(_ context.Context, owner, _ common.Address) (*big.Int, error) {
	if a, ok := f.allowances[owner]; ok {
		return new(big.Int).Set(a), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeToken) TransferFrom(_ context.Context, owner, recipient common.Address, amount *big.Int) (common.Hash, error) {
	if f.transferErr != nil {
		return common.Hash{}, f.transferErr
	}

	f.transfers++
	f.balances[owner] = new(big.Int).Sub(f.balance(owner), amount)
	f.balances[recipient] = new(big.Int).Add(f.balance(recipient), amount)
	f.allowances[owner] = new(big.Int).Sub(f.allowances[owner], amount)

	return crypto.Keccak256Hash(owner.Bytes(), recipient.Bytes(), amount.Bytes()), nil
}

type fixture struct {
	exec   *Executor
	reg    *registry.Registry
	nonces *nonceledger.Ledger
	token  *fakeToken
	signer *halo.Signer
	payer  common.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewMemoryStore()
	logger := zap.NewNop()

	signer, err := halo.NewSigner(halo.WithGeneratedKey())
	if err != nil {
		t.Fatalf("failed to create device signer: %v", err)
	}

	payer := common.HexToAddress("0x1111111111111111111111111111111111111111")

	reg := registry.New(store, logger)
	if err := reg.Register(payer, signer.Address()); err != nil {
		t.Fatalf("failed to register device: %v", err)
	}

	token := newFakeToken()
	token.setBalance(payer, 1000)
	token.setAllowance(payer, 1000)

	nonces := nonceledger.New(store)
	builder := digest.NewBuilder(big.NewInt(8453), testContract)

	return &fixture{
		exec:   New(reg, nonces, token, builder, testSpender, logger),
		reg:    reg,
		nonces: nonces,
		token:  token,
		signer: signer,
		payer:  payer,
	}
}

// sign produces a device signature over the payment parameters the way the
// chip does: over the raw digest, EIP-191 wrapped by the signer.
func (f *fixture) sign(t *testing.T, payer, merchant common.Address, amount, nonce *big.Int) []byte {
	t.Helper()

	raw := digest.NewBuilder(big.NewInt(8453), testContract).Build(payer, merchant, amount, nonce)
	sig, err := f.signer.SignDigest(raw)
	if err != nil {
		t.Fatalf("failed to sign digest: %v", err)
	}
	return sig
}

func TestExecutePayment(t *testing.T) {
	f := newFixture(t)
	amount, nonce := big.NewInt(10), big.NewInt(1)
	sig := f.sign(t, f.payer, testMerchant, amount, nonce)

	record, err := f.exec.ExecutePayment(context.Background(), f.payer, testMerchant, amount, nonce, sig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if record.ID == "" {
		t.Error("record has no id")
	}
	if record.Payer != f.payer || record.Merchant != testMerchant {
		t.Error("record carries wrong parties")
	}
	if record.Device != f.signer.Address() {
		t.Errorf("record.Device = %s, want %s", record.Device.Hex(), f.signer.Address().Hex())
	}
	if record.Amount.Cmp(amount) != 0 {
		t.Errorf("record.Amount = %s, want %s", record.Amount, amount)
	}
	if record.TxHash == (common.Hash{}) {
		t.Error("record has no transaction hash")
	}

	if got := f.token.balance(f.payer); got.Cmp(big.NewInt(990)) != 0 {
		t.Errorf("payer balance = %s, want 990", got)
	}
	if got := f.token.balance(testMerchant); got.Cmp(big.NewInt(10)) != 0 {
		t.Errorf("merchant balance = %s, want 10", got)
	}

	used, err := f.nonces.IsUsed(f.payer, nonce)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !used {
		t.Error("nonce not consumed by successful payment")
	}
}

func TestExecutePaymentReplay(t *testing.T) {
	f := newFixture(t)
	amount, nonce := big.NewInt(10), big.NewInt(1)
	sig := f.sign(t, f.payer, testMerchant, amount, nonce)

	if _, err := f.exec.ExecutePayment(context.Background(), f.payer, testMerchant, amount, nonce, sig); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Replaying the identical authorization must fail and move nothing.
	if _, err := f.exec.ExecutePayment(context.Background(), f.payer, testMerchant, amount, nonce, sig); !errors.Is(err, halopay.ErrNonceAlreadyUsed) {
		t.Fatalf("expected ErrNonceAlreadyUsed, got %v", err)
	}
	if f.token.transfers != 1 {
		t.Errorf("transfers = %d, want 1", f.token.transfers)
	}

	// A fresh nonce with its own signature still works.
	nonce2 := big.NewInt(2)
	sig2 := f.sign(t, f.payer, testMerchant, amount, nonce2)
	if _, err := f.exec.ExecutePayment(context.Background(), f.payer, testMerchant, amount, nonce2, sig2); err != nil {
		t.Errorf("fresh nonce rejected: %v", err)
	}
}

func TestExecutePaymentNonceScopedPerPayer(t *testing.T) {
	f := newFixture(t)

	otherPayer := common.HexToAddress("0x5555555555555555555555555555555555555555")
	otherSigner, err := halo.NewSigner(halo.WithGeneratedKey())
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}
	if err := f.reg.Register(otherPayer, otherSigner.Address()); err != nil {
		t.Fatalf("failed to register second payer: %v", err)
	}
	f.token.setBalance(otherPayer, 1000)
	f.token.setAllowance(otherPayer, 1000)

	amount, nonce := big.NewInt(10), big.NewInt(1)

	sig := f.sign(t, f.payer, testMerchant, amount, nonce)
	if _, err := f.exec.ExecutePayment(context.Background(), f.payer, testMerchant, amount, nonce, sig); err != nil {
		t.Fatalf("first payer's payment failed: %v", err)
	}

	// The same numeric nonce is still fresh for the other payer.
	raw := digest.NewBuilder(big.NewInt(8453), testContract).Build(otherPayer, testMerchant, amount, nonce)
	otherSig, err := otherSigner.SignDigest(raw)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	if _, err := f.exec.ExecutePayment(context.Background(), otherPayer, testMerchant, amount, nonce, otherSig); err != nil {
		t.Fatalf("second payer's payment with the same numeric nonce failed: %v", err)
	}

	if f.token.transfers != 2 {
		t.Errorf("transfers = %d, want 2", f.token.transfers)
	}
}

func TestExecutePaymentWrongSigner(t *testing.T) {
	f := newFixture(t)
	amount, nonce := big.NewInt(10), big.NewInt(1)

	intruder, err := halo.NewSigner(halo.WithGeneratedKey())
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}
	raw := digest.NewBuilder(big.NewInt(8453), testContract).Build(f.payer, testMerchant, amount, nonce)
	sig, err := intruder.SignDigest(raw)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}

	if _, err := f.exec.ExecutePayment(context.Background(), f.payer, testMerchant, amount, nonce, sig); !errors.Is(err, halopay.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if f.token.transfers != 0 {
		t.Error("transfer performed despite invalid signature")
	}

	used, _ := f.nonces.IsUsed(f.payer, nonce)
	if used {
		t.Error("nonce consumed despite invalid signature")
	}
}

func TestExecutePaymentTamperedParameters(t *testing.T) {
	f := newFixture(t)
	amount, nonce := big.NewInt(10), big.NewInt(1)
	sig := f.sign(t, f.payer, testMerchant, amount, nonce)

	other := common.HexToAddress("0x5555555555555555555555555555555555555555")

	tests := []struct {
		name     string
		merchant common.Address
		amount   *big.Int
		nonce    *big.Int
	}{
		{"inflated amount", testMerchant, big.NewInt(500), nonce},
		{"redirected merchant", other, amount, nonce},
		{"shifted nonce", testMerchant, amount, big.NewInt(99)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.exec.ExecutePayment(context.Background(), f.payer, tt.merchant, tt.amount, tt.nonce, sig)
			if !errors.Is(err, halopay.ErrInvalidSignature) {
				t.Errorf("expected ErrInvalidSignature, got %v", err)
			}
		})
	}

	if f.token.transfers != 0 {
		t.Error("transfer performed despite tampered parameters")
	}
}

func TestExecutePaymentRevokedDevice(t *testing.T) {
	f := newFixture(t)
	amount, nonce := big.NewInt(10), big.NewInt(1)
	sig := f.sign(t, f.payer, testMerchant, amount, nonce)

	if err := f.reg.Revoke(f.payer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A signature captured before revocation is dead afterwards.
	if _, err := f.exec.ExecutePayment(context.Background(), f.payer, testMerchant, amount, nonce, sig); !errors.Is(err, halopay.ErrHaloNotAuthorized) {
		t.Fatalf("expected ErrHaloNotAuthorized, got %v", err)
	}
	if f.token.transfers != 0 {
		t.Error("transfer performed for revoked device")
	}
}

func TestExecutePaymentInvalidInputs(t *testing.T) {
	f := newFixture(t)
	sig := f.sign(t, f.payer, testMerchant, big.NewInt(10), big.NewInt(1))

	tests := []struct {
		name     string
		payer    common.Address
		merchant common.Address
		amount   *big.Int
		nonce    *big.Int
		want     error
	}{
		{"zero payer", common.Address{}, testMerchant, big.NewInt(10), big.NewInt(1), halopay.ErrZeroAddress},
		{"zero merchant", f.payer, common.Address{}, big.NewInt(10), big.NewInt(1), halopay.ErrZeroAddress},
		{"nil amount", f.payer, testMerchant, nil, big.NewInt(1), halopay.ErrInvalidAmount},
		{"zero amount", f.payer, testMerchant, big.NewInt(0), big.NewInt(1), halopay.ErrInvalidAmount},
		{"negative amount", f.payer, testMerchant, big.NewInt(-5), big.NewInt(1), halopay.ErrInvalidAmount},
		{"nil nonce", f.payer, testMerchant, big.NewInt(10), nil, halopay.ErrInvalidNonce},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.exec.ExecutePayment(context.Background(), tt.payer, tt.merchant, tt.amount, tt.nonce, sig)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	// The device-resolving entry point shares the guard.
	if _, err := f.exec.ExecutePaymentFromDevice(context.Background(), f.signer.Address(), testMerchant, big.NewInt(10), nil, sig); !errors.Is(err, halopay.ErrInvalidNonce) {
		t.Errorf("expected ErrInvalidNonce, got %v", err)
	}
}

func TestExecutePaymentInsufficientAllowance(t *testing.T) {
	f := newFixture(t)
	f.token.setAllowance(f.payer, 5)

	amount, nonce := big.NewInt(10), big.NewInt(1)
	sig := f.sign(t, f.payer, testMerchant, amount, nonce)

	if _, err := f.exec.ExecutePayment(context.Background(), f.payer, testMerchant, amount, nonce, sig); !errors.Is(err, halopay.ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}

	// The nonce survives the rejection; raising the allowance lets the same
	// authorization succeed.
	f.token.setAllowance(f.payer, 1000)
	if _, err := f.exec.ExecutePayment(context.Background(), f.payer, testMerchant, amount, nonce, sig); err != nil {
		t.Errorf("retry after allowance increase failed: %v", err)
	}
}

func TestExecutePaymentTransferFailureRollsBackNonce(t *testing.T) {
	f := newFixture(t)
	amount, nonce := big.NewInt(10), big.NewInt(1)
	sig := f.sign(t, f.payer, testMerchant, amount, nonce)

	transferErr := errors.New("execution reverted")
	f.token.transferErr = transferErr

	_, err := f.exec.ExecutePayment(context.Background(), f.payer, testMerchant, amount, nonce, sig)
	if !errors.Is(err, transferErr) {
		t.Fatalf("expected the token error untranslated, got %v", err)
	}

	used, err := f.nonces.IsUsed(f.payer, nonce)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if used {
		t.Fatal("nonce left consumed after failed transfer")
	}

	// The same nonce and signature succeed once the transfer path recovers.
	f.token.transferErr = nil
	if _, err := f.exec.ExecutePayment(context.Background(), f.payer, testMerchant, amount, nonce, sig); err != nil {
		t.Errorf("retry after transfer failure failed: %v", err)
	}
}

func TestExecutePaymentFromDevice(t *testing.T) {
	f := newFixture(t)
	amount, nonce := big.NewInt(10), big.NewInt(1)
	sig := f.sign(t, f.payer, testMerchant, amount, nonce)

	record, err := f.exec.ExecutePaymentFromDevice(context.Background(), f.signer.Address(), testMerchant, amount, nonce, sig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Payer != f.payer {
		t.Errorf("resolved payer = %s, want %s", record.Payer.Hex(), f.payer.Hex())
	}
}

func TestExecutePaymentFromUnknownDevice(t *testing.T) {
	f := newFixture(t)
	amount, nonce := big.NewInt(10), big.NewInt(1)
	sig := f.sign(t, f.payer, testMerchant, amount, nonce)

	unknown := common.HexToAddress("0x9999999999999999999999999999999999999999")
	if _, err := f.exec.ExecutePaymentFromDevice(context.Background(), unknown, testMerchant, amount, nonce, sig); !errors.Is(err, halopay.ErrHaloNotAuthorized) {
		t.Fatalf("expected ErrHaloNotAuthorized, got %v", err)
	}
}

func TestCallbackMaySubmitFollowupPayment(t *testing.T) {
	f := newFixture(t)

	// A subscriber chaining a second payment off the first must not deadlock
	// against the executor's own lock.
	followupNonce := big.NewInt(2)
	followupSig := f.sign(t, f.payer, testMerchant, big.NewInt(5), followupNonce)

	chained := false
	f.exec.callback = func(ev halopay.Event) {
		if chained {
			return
		}
		chained = true
		if _, err := f.exec.ExecutePayment(context.Background(), f.payer, testMerchant, big.NewInt(5), followupNonce, followupSig); err != nil {
			t.Errorf("re-entrant payment failed: %v", err)
		}
	}

	amount, nonce := big.NewInt(10), big.NewInt(1)
	sig := f.sign(t, f.payer, testMerchant, amount, nonce)

	if _, err := f.exec.ExecutePayment(context.Background(), f.payer, testMerchant, amount, nonce, sig); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.token.transfers != 2 {
		t.Errorf("transfers = %d, want 2", f.token.transfers)
	}
}

func TestExecutePaymentEvent(t *testing.T) {
	f := newFixture(t)

	var got *halopay.Event
	f.exec.callback = func(ev halopay.Event) { got = &ev }

	amount, nonce := big.NewInt(10), big.NewInt(1)
	sig := f.sign(t, f.payer, testMerchant, amount, nonce)

	record, err := f.exec.ExecutePayment(context.Background(), f.payer, testMerchant, amount, nonce, sig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got == nil {
		t.Fatal("no event emitted")
	}
	if got.Type != halopay.EventPaymentExecuted {
		t.Errorf("event type = %v, want %v", got.Type, halopay.EventPaymentExecuted)
	}
	if got.Record == nil || got.Record.ID != record.ID {
		t.Error("event does not carry the payment record")
	}
}
