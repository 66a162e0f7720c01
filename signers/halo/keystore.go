package halo

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	halopay "github.com/halopay/halopay-go"
)

// WithKeystore loads the private key from an encrypted keystore file.
func WithKeystore(keystorePath, password string) SignerOption {
	return func(s *Signer) error {
		data, err := os.ReadFile(keystorePath)
		if err != nil {
			return fmt.Errorf("%w: %v", halopay.ErrInvalidKeystore, err)
		}

		var keyJSON struct {
			Crypto keystore.CryptoJSON `json:"crypto"`
		}
		if err := json.Unmarshal(data, &keyJSON); err != nil {
			return fmt.Errorf("%w: invalid JSON format", halopay.ErrInvalidKeystore)
		}

		privateKeyBytes, err := keystore.DecryptDataV3(keyJSON.Crypto, password)
		if err != nil {
			return fmt.Errorf("%w: decryption failed", halopay.ErrInvalidKeystore)
		}

		privateKey, err := crypto.ToECDSA(privateKeyBytes)
		if err != nil {
			return fmt.Errorf("%w: invalid private key", halopay.ErrInvalidKeystore)
		}

		s.privateKey = privateKey
		return nil
	}
}

// WithMnemonic derives the private key from a BIP39 mnemonic phrase.
// Derivation path: m/44'/60'/0'/0/{accountIndex}
func WithMnemonic(mnemonic string, accountIndex uint32) SignerOption {
	return func(s *Signer) error {
		if !bip39.IsMnemonicValid(mnemonic) {
			return halopay.ErrInvalidMnemonic
		}

		seed := bip39.NewSeed(mnemonic, "")

		key, err := bip32.NewMasterKey(seed)
		if err != nil {
			return fmt.Errorf("%w: %v", halopay.ErrInvalidMnemonic, err)
		}

		// m/44'/60'/0'/0/{index}
		for _, child := range []uint32{
			bip32.FirstHardenedChild + 44,
			bip32.FirstHardenedChild + 60,
			bip32.FirstHardenedChild + 0,
			0,
			accountIndex,
		} {
			key, err = key.NewChildKey(child)
			if err != nil {
				return fmt.Errorf("%w: %v", halopay.ErrInvalidMnemonic, err)
			}
		}

		privateKey, err := crypto.ToECDSA(key.Key)
		if err != nil {
			return fmt.Errorf("%w: %v", halopay.ErrInvalidMnemonic, err)
		}

		s.privateKey = privateKey
		return nil
	}
}
