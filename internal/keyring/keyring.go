// Package keyring manages the HD wallet and the per-dApp session
// identities derived from it. Each dApp connection gets its own
// derived key so addresses never correlate across sites.
package keyring

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"

	"github.com/madschristensen99/hashield/pkg/logging"
)

// Keyring errors.
var (
	ErrNoMaster    = errors.New("no wallet imported")
	ErrBadMnemonic = errors.New("invalid mnemonic")
	ErrNoSession   = errors.New("no active session")
	ErrBadIndex    = errors.New("session index out of range")
)

// BIP44 path components for EVM keys: m/44'/60'/0'/0/index.
const (
	purposeBIP44 = 44
	coinTypeETH  = 60
)

// SessionIdentity is one derived account. Index 0 is the controller
// identity that holds pool funds; indexes 1..n are per-dApp sessions.
type SessionIdentity struct {
	Index   uint32
	Address common.Address
	priv    *btcec.PrivateKey
}

// PrivateKey returns the identity's key in ECDSA form for signing.
func (s *SessionIdentity) PrivateKey() *ecdsa.PrivateKey {
	return s.priv.ToECDSA()
}

// CounterStore persists the session counter across restarts.
type CounterStore interface {
	SessionCounter() (uint32, error)
	SetSessionCounter(n uint32) error
}

// Keyring derives session identities from a BIP39 master key. The
// session counter is persisted before a newly derived identity is
// handed out, so a crash can never reassign an index.
type Keyring struct {
	mu      sync.Mutex
	master  *hdkeychain.ExtendedKey
	counter CounterStore
	current *SessionIdentity
	log     *logging.Logger
}

// New creates a keyring backed by store. No master key is loaded yet.
func New(store CounterStore, log *logging.Logger) *Keyring {
	return &Keyring{
		counter: store,
		log:     log.Component("keyring"),
	}
}

// GenerateMnemonic generates a new 24-word BIP39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate mnemonic: %w", err)
	}

	return mnemonic, nil
}

// ValidateMnemonic checks if a mnemonic is valid.
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}

// ImportMnemonic loads a BIP39 mnemonic as the master key. The
// passphrase is optional.
func (k *Keyring) ImportMnemonic(mnemonic, passphrase string) error {
	if !bip39.IsMnemonicValid(mnemonic) {
		return ErrBadMnemonic
	}

	seed := bip39.NewSeed(mnemonic, passphrase)
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return fmt.Errorf("failed to create master key: %w", err)
	}

	k.mu.Lock()
	k.master = master
	k.current = nil
	k.mu.Unlock()

	k.log.Info("wallet imported")
	return nil
}

// HasMaster reports whether a master key is loaded.
func (k *Keyring) HasMaster() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.master != nil
}

// ControllerIdentity returns the index-0 identity. It signs pool and
// escrow operations and is never exposed to dApps.
func (k *Keyring) ControllerIdentity() (*SessionIdentity, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.deriveLocked(0)
}

// ControllerAddress returns the controller identity's address.
func (k *Keyring) ControllerAddress() (common.Address, error) {
	id, err := k.ControllerIdentity()
	if err != nil {
		return common.Address{}, err
	}
	return id.Address, nil
}

// DeriveNext allocates the next session index, persists the counter
// and returns the new identity as the current session. The counter is
// written before the key is derived.
func (k *Keyring) DeriveNext() (*SessionIdentity, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.master == nil {
		return nil, ErrNoMaster
	}

	n, err := k.counter.SessionCounter()
	if err != nil {
		return nil, fmt.Errorf("failed to read session counter: %w", err)
	}

	next := n + 1
	if err := k.counter.SetSessionCounter(next); err != nil {
		return nil, fmt.Errorf("failed to persist session counter: %w", err)
	}

	id, err := k.deriveLocked(next)
	if err != nil {
		return nil, err
	}

	k.current = id
	k.log.Info("derived session identity", "index", next, "address", id.Address.Hex())
	return id, nil
}

// Restore re-derives a previously allocated session and makes it the
// current one. The counter is not advanced.
func (k *Keyring) Restore(index uint32) (*SessionIdentity, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.master == nil {
		return nil, ErrNoMaster
	}

	n, err := k.counter.SessionCounter()
	if err != nil {
		return nil, fmt.Errorf("failed to read session counter: %w", err)
	}
	if index == 0 || index > n {
		return nil, fmt.Errorf("%w: %d (allocated 1..%d)", ErrBadIndex, index, n)
	}

	id, err := k.deriveLocked(index)
	if err != nil {
		return nil, err
	}

	k.current = id
	k.log.Info("restored session identity", "index", index, "address", id.Address.Hex())
	return id, nil
}

// Current returns the active session identity.
func (k *Keyring) Current() (*SessionIdentity, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.current == nil {
		return nil, ErrNoSession
	}
	return k.current, nil
}

// Sessions re-derives all allocated session identities in index order.
func (k *Keyring) Sessions() ([]*SessionIdentity, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.master == nil {
		return nil, ErrNoMaster
	}

	n, err := k.counter.SessionCounter()
	if err != nil {
		return nil, fmt.Errorf("failed to read session counter: %w", err)
	}

	out := make([]*SessionIdentity, 0, n)
	for i := uint32(1); i <= n; i++ {
		id, err := k.deriveLocked(i)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// Clear drops the master key and current session from memory.
func (k *Keyring) Clear() {
	k.mu.Lock()
	k.master = nil
	k.current = nil
	k.mu.Unlock()
	k.log.Info("wallet cleared")
}

// deriveLocked derives m/44'/60'/0'/0/index. Callers hold k.mu.
func (k *Keyring) deriveLocked(index uint32) (*SessionIdentity, error) {
	if k.master == nil {
		return nil, ErrNoMaster
	}

	key := k.master
	path := []uint32{
		hdkeychain.HardenedKeyStart + purposeBIP44,
		hdkeychain.HardenedKeyStart + coinTypeETH,
		hdkeychain.HardenedKeyStart + 0,
		0,
		index,
	}
	for _, step := range path {
		var err error
		key, err = key.Derive(step)
		if err != nil {
			return nil, fmt.Errorf("failed to derive index %d: %w", index, err)
		}
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("failed to extract private key: %w", err)
	}

	return &SessionIdentity{
		Index:   index,
		Address: crypto.PubkeyToAddress(priv.ToECDSA().PublicKey),
		priv:    priv,
	}, nil
}
