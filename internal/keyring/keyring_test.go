package keyring

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/madschristensen99/hashield/pkg/logging"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// memCounter records every counter write so tests can check ordering.
type memCounter struct {
	n      uint32
	writes []uint32
	failAt uint32
}

func (m *memCounter) SessionCounter() (uint32, error) { return m.n, nil }

func (m *memCounter) SetSessionCounter(n uint32) error {
	if m.failAt != 0 && n == m.failAt {
		return errors.New("disk full")
	}
	m.n = n
	m.writes = append(m.writes, n)
	return nil
}

func newTestKeyring(t *testing.T, store CounterStore) *Keyring {
	t.Helper()
	k := New(store, logging.New(nil))
	if err := k.ImportMnemonic(testMnemonic, ""); err != nil {
		t.Fatalf("failed to import mnemonic: %v", err)
	}
	return k
}

func TestImportMnemonicRejectsInvalid(t *testing.T) {
	k := New(&memCounter{}, logging.New(nil))
	if err := k.ImportMnemonic("not a mnemonic", ""); !errors.Is(err, ErrBadMnemonic) {
		t.Errorf("expected ErrBadMnemonic, got %v", err)
	}
	if k.HasMaster() {
		t.Error("keyring should not have a master key after failed import")
	}
}

func TestDeriveNextIncrementsAndPersists(t *testing.T) {
	store := &memCounter{}
	k := newTestKeyring(t, store)

	first, err := k.DeriveNext()
	if err != nil {
		t.Fatalf("failed to derive: %v", err)
	}
	if first.Index != 1 {
		t.Errorf("first session index = %d, want 1", first.Index)
	}

	second, err := k.DeriveNext()
	if err != nil {
		t.Fatalf("failed to derive: %v", err)
	}
	if second.Index != 2 {
		t.Errorf("second session index = %d, want 2", second.Index)
	}
	if first.Address == second.Address {
		t.Error("consecutive sessions should have distinct addresses")
	}

	if len(store.writes) != 2 || store.writes[0] != 1 || store.writes[1] != 2 {
		t.Errorf("unexpected counter writes: %v", store.writes)
	}
}

func TestDeriveNextPersistsBeforeReturning(t *testing.T) {
	store := &memCounter{failAt: 1}
	k := newTestKeyring(t, store)

	if _, err := k.DeriveNext(); err == nil {
		t.Fatal("expected error when counter write fails")
	}
	// The failed index must not be handed out.
	if _, err := k.Current(); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession after failed derive, got %v", err)
	}
}

func TestRestoreDoesNotAdvanceCounter(t *testing.T) {
	store := &memCounter{}
	k := newTestKeyring(t, store)

	first, err := k.DeriveNext()
	if err != nil {
		t.Fatalf("failed to derive: %v", err)
	}
	if _, err := k.DeriveNext(); err != nil {
		t.Fatalf("failed to derive: %v", err)
	}

	restored, err := k.Restore(1)
	if err != nil {
		t.Fatalf("failed to restore: %v", err)
	}
	if restored.Address != first.Address {
		t.Error("restored session should recover the original address")
	}
	if store.n != 2 {
		t.Errorf("restore should not advance counter, got %d", store.n)
	}

	cur, err := k.Current()
	if err != nil {
		t.Fatalf("failed to get current: %v", err)
	}
	if cur.Index != 1 {
		t.Errorf("current index = %d, want 1", cur.Index)
	}
}

func TestRestoreRejectsUnallocatedIndex(t *testing.T) {
	k := newTestKeyring(t, &memCounter{})

	if _, err := k.Restore(1); !errors.Is(err, ErrBadIndex) {
		t.Errorf("expected ErrBadIndex, got %v", err)
	}
	if _, err := k.Restore(0); !errors.Is(err, ErrBadIndex) {
		t.Errorf("expected ErrBadIndex for index 0, got %v", err)
	}
}

func TestControllerIsNotASession(t *testing.T) {
	k := newTestKeyring(t, &memCounter{})

	controller, err := k.ControllerIdentity()
	if err != nil {
		t.Fatalf("failed to get controller: %v", err)
	}
	if controller.Index != 0 {
		t.Errorf("controller index = %d, want 0", controller.Index)
	}

	session, err := k.DeriveNext()
	if err != nil {
		t.Fatalf("failed to derive: %v", err)
	}
	if session.Address == controller.Address {
		t.Error("session address should differ from controller address")
	}
}

func TestDerivationIsDeterministic(t *testing.T) {
	k1 := newTestKeyring(t, &memCounter{})
	k2 := newTestKeyring(t, &memCounter{})

	a, err := k1.DeriveNext()
	if err != nil {
		t.Fatalf("failed to derive: %v", err)
	}
	b, err := k2.DeriveNext()
	if err != nil {
		t.Fatalf("failed to derive: %v", err)
	}
	if a.Address != b.Address {
		t.Error("same mnemonic and index should yield same address")
	}
}

func TestNoMasterErrors(t *testing.T) {
	k := New(&memCounter{}, logging.New(nil))

	if _, err := k.DeriveNext(); !errors.Is(err, ErrNoMaster) {
		t.Errorf("DeriveNext: expected ErrNoMaster, got %v", err)
	}
	if _, err := k.Sessions(); !errors.Is(err, ErrNoMaster) {
		t.Errorf("Sessions: expected ErrNoMaster, got %v", err)
	}
}

func TestClear(t *testing.T) {
	k := newTestKeyring(t, &memCounter{})
	if _, err := k.DeriveNext(); err != nil {
		t.Fatalf("failed to derive: %v", err)
	}

	k.Clear()
	if k.HasMaster() {
		t.Error("master key should be dropped after Clear")
	}
	if _, err := k.Current(); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession after Clear, got %v", err)
	}
}

func TestPersonalSignRecovers(t *testing.T) {
	k := newTestKeyring(t, &memCounter{})
	id, err := k.DeriveNext()
	if err != nil {
		t.Fatalf("failed to derive: %v", err)
	}

	msg := []byte("hello hashield")
	sig, err := id.PersonalSign(msg)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}
	if sig[64] != 27 && sig[64] != 28 {
		t.Errorf("recovery byte = %d, want 27 or 28", sig[64])
	}

	prefix := "\x19Ethereum Signed Message:\n14"
	hash := crypto.Keccak256([]byte(prefix), msg)
	recSig := make([]byte, 65)
	copy(recSig, sig)
	recSig[64] -= 27

	pub, err := crypto.SigToPub(hash, recSig)
	if err != nil {
		t.Fatalf("failed to recover pubkey: %v", err)
	}
	if crypto.PubkeyToAddress(*pub) != id.Address {
		t.Error("recovered address should match signer")
	}
}
