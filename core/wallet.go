package core

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	bip39 "github.com/tyler-smith/go-bip39"
	log "github.com/sirupsen/logrus"
)

// walletLogger is the package-level structured logger, overridable by the
// hosting process.
var walletLogger = log.New()

// SetWalletLogger lets the composition root redirect wallet logging.
func SetWalletLogger(l *log.Logger) { walletLogger = l }

// Wallet holds a secp256k1 keypair and the address derived from it. Wallets
// are created in memory only; any durability is a collaborator's concern.
type Wallet struct {
	PrivateKey   *ecdsa.PrivateKey
	PublicKeyPEM string
	Address      Address
}

// CreateWallet generates a fresh secp256k1 keypair and derives its address.
func CreateWallet() (*Wallet, error) {
	priv, err := GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("core: generate keypair: %w", err)
	}
	return walletFromPrivateKey(priv)
}

func walletFromPrivateKey(priv *ecdsa.PrivateKey) (*Wallet, error) {
	pubPEM, err := MarshalPublicKeyPEM(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("core: marshal public key: %w", err)
	}
	addr := addressFromPubKeyPEM([]byte(pubPEM))
	walletLogger.WithField("address", addr).Debug("wallet created")
	return &Wallet{PrivateKey: priv, PublicKeyPEM: pubPEM, Address: addr}, nil
}

// GenerateMnemonic returns a fresh BIP-39 recovery phrase. This is a
// convenience layered on top of plain key generation; the phrase is never
// required by the core and callers that don't need recoverability can keep
// using CreateWallet.
func GenerateMnemonic(entropyBits int) (string, error) {
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return "", fmt.Errorf("core: bip39 entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// WalletFromMnemonic derives a wallet deterministically from a BIP-39
// phrase, letting a user recover their address across process restarts
// without the core persisting anything itself.
func WalletFromMnemonic(mnemonic, passphrase string) (*Wallet, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("core: invalid mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	priv, err := privateKeyFromSeed(seed)
	if err != nil {
		return nil, err
	}
	return walletFromPrivateKey(priv)
}

// Sign returns base64(ECDSA-SHA256) over the canonical encoding of content.
func (w *Wallet) Sign(content map[string]interface{}) (string, error) {
	return SignContent(w.PrivateKey, content)
}

// VerifySignature is the static verification entry point used by
// transaction variants: it never returns an error, only a boolean, and
// returns false on any decoding/verification error.
func VerifySignature(content map[string]interface{}, sigB64, pubKeyPEM string) bool {
	return VerifyContent(content, sigB64, pubKeyPEM)
}
