// Package wallet supplies the active signing identity. The account is a
// queryable external fact: callers re-read it before every submission rather
// than capturing it once at session start.
package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
)

// ErrIdentityUnavailable is returned when no signing identity is configured.
var ErrIdentityUnavailable = errors.New("wallet: no active signing identity")

// DefaultDerivationPath is the standard Ethereum account 0 path.
const DefaultDerivationPath = "m/44'/60'/0'/0/0"

// Wallet holds the local signing key. The key may be replaced mid-session
// via SetPrivateKey; ActiveAccount always reflects the current key.
type Wallet struct {
	mu  sync.RWMutex
	key *ecdsa.PrivateKey
}

// FromPrivateKey builds a wallet from a hex-encoded private key.
func FromPrivateKey(hexKey string) (*Wallet, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, ErrIdentityUnavailable
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("wallet: invalid private key: %w", err)
	}
	return &Wallet{key: key}, nil
}

// FromMnemonic derives a wallet from a BIP-39 mnemonic. An empty path uses
// DefaultDerivationPath.
func FromMnemonic(mnemonic, derivationPath string) (*Wallet, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if mnemonic == "" {
		return nil, ErrIdentityUnavailable
	}
	if derivationPath == "" {
		derivationPath = DefaultDerivationPath
	}

	hd, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("wallet: invalid mnemonic: %w", err)
	}
	path, err := hdwallet.ParseDerivationPath(derivationPath)
	if err != nil {
		return nil, fmt.Errorf("wallet: invalid derivation path %q: %w", derivationPath, err)
	}
	acct, err := hd.Derive(path, false)
	if err != nil {
		return nil, fmt.Errorf("wallet: derive failed: %w", err)
	}
	key, err := hd.PrivateKey(acct)
	if err != nil {
		return nil, fmt.Errorf("wallet: private key failed: %w", err)
	}
	return &Wallet{key: key}, nil
}

// ActiveAccount returns the address of the current signing key.
func (w *Wallet) ActiveAccount() (common.Address, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.key == nil {
		return common.Address{}, ErrIdentityUnavailable
	}
	return crypto.PubkeyToAddress(w.key.PublicKey), nil
}

// PrivateKey returns the current signing key.
func (w *Wallet) PrivateKey() (*ecdsa.PrivateKey, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.key == nil {
		return nil, ErrIdentityUnavailable
	}
	return w.key, nil
}

// SetPrivateKey replaces the signing key.
func (w *Wallet) SetPrivateKey(key *ecdsa.PrivateKey) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.key = key
}
