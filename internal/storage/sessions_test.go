package storage

import "testing"

func TestSessionCounterDefaultsToZero(t *testing.T) {
	s := newTestStorage(t)

	n, err := s.SessionCounter()
	if err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	if n != 0 {
		t.Errorf("fresh counter = %d, want 0", n)
	}
}

func TestSessionCounterSetGet(t *testing.T) {
	s := newTestStorage(t)

	for _, want := range []uint32{1, 2, 3, 100} {
		if err := s.SetSessionCounter(want); err != nil {
			t.Fatalf("failed to set counter to %d: %v", want, err)
		}
		got, err := s.SessionCounter()
		if err != nil {
			t.Fatalf("failed to read counter: %v", err)
		}
		if got != want {
			t.Errorf("counter = %d, want %d", got, want)
		}
	}
}

func TestClearWalletResetsCounter(t *testing.T) {
	s := newTestStorage(t)

	if err := s.SetSessionCounter(5); err != nil {
		t.Fatalf("failed to set counter: %v", err)
	}
	if err := s.ClearWallet(); err != nil {
		t.Fatalf("failed to clear wallet: %v", err)
	}

	n, err := s.SessionCounter()
	if err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	if n != 0 {
		t.Errorf("counter after clear = %d, want 0", n)
	}
}
