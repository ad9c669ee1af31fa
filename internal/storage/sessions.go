// Package storage - session counter persistence.
package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

const sessionCounterKey = "session_counter"

// SessionCounter returns the highest allocated session index, or 0 if
// no session has been derived yet.
func (s *Storage) SessionCounter() (uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRow(
		`SELECT value FROM settings WHERE key = ?`, sessionCounterKey,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read session counter: %w", err)
	}

	n, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("corrupt session counter %q: %w", value, err)
	}

	return uint32(n), nil
}

// SetSessionCounter persists the session counter.
func (s *Storage) SetSessionCounter(n uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, sessionCounterKey, strconv.FormatUint(uint64(n), 10), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to persist session counter: %w", err)
	}

	return nil
}

// ClearWallet removes the session counter so a freshly imported wallet
// starts allocating from index 1 again.
func (s *Storage) ClearWallet() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM settings WHERE key = ?`, sessionCounterKey)
	if err != nil {
		return fmt.Errorf("failed to clear session counter: %w", err)
	}

	return nil
}
