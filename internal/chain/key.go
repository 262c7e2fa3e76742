package chain

import (
	"fmt"

	"github.com/cosmos/cosmos-sdk/crypto/hd"
	"github.com/cosmos/cosmos-sdk/crypto/keys/secp256k1"
	cryptotypes "github.com/cosmos/cosmos-sdk/crypto/types"
	"github.com/cosmos/cosmos-sdk/types/bech32"
	"github.com/cosmos/go-bip39"
)

// defaultHDPath is the standard Cosmos SDK secp256k1 derivation path.
const defaultHDPath = "m/44'/118'/0'/0/0"

// DeriveSigningKey derives a secp256k1 signing key from a BIP-39 mnemonic,
// the way a keyring backend would. The mnemonic is not retained beyond this
// call.
func DeriveSigningKey(mnemonic string) (cryptotypes.PrivKey, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("signing key mnemonic is not a valid BIP-39 phrase")
	}

	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("failed to derive seed from mnemonic: %w", err)
	}

	master, chainCode := hd.ComputeMastersFromSeed(seed)

	derived, err := hd.DerivePrivateKeyForPath(master, chainCode, defaultHDPath)
	if err != nil {
		return nil, fmt.Errorf("failed to derive private key from mnemonic: %w", err)
	}

	return &secp256k1.PrivKey{Key: derived}, nil
}

// AddressFromPubKey renders the bech32 account address for a public key
// under the given human-readable prefix.
func AddressFromPubKey(pubKey cryptotypes.PubKey, addressPrefix string) (string, error) {
	address, err := bech32.ConvertAndEncode(addressPrefix, pubKey.Address().Bytes())
	if err != nil {
		return "", fmt.Errorf("failed to encode account address: %w", err)
	}

	return address, nil
}
