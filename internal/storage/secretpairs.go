// Package storage - hash-lock secret pair persistence.
package storage

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/madschristensen99/hashield/internal/secrets"
)

// Secret pair errors
var (
	ErrSecretPairNotFound      = errors.New("secret pair not found")
	ErrSecretPairAlreadyExists = errors.New("secret pair already exists for this order")
)

// SaveSecretPair persists the hash-lock pair for an order. Each order
// hash gets exactly one pair.
func (s *Storage) SaveSecretPair(orderHash string, pair *secrets.Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO secret_pairs (
			order_hash, claim_secret, refund_secret, claim_hash, refund_hash, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`,
		orderHash,
		hex.EncodeToString(pair.ClaimSecret[:]),
		hex.EncodeToString(pair.RefundSecret[:]),
		hex.EncodeToString(pair.ClaimHash[:]),
		hex.EncodeToString(pair.RefundHash[:]),
		time.Now().Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSecretPairAlreadyExists
		}
		return fmt.Errorf("failed to save secret pair: %w", err)
	}

	return nil
}

// GetSecretPair retrieves the hash-lock pair for an order.
func (s *Storage) GetSecretPair(orderHash string) (*secrets.Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var claimSecret, refundSecret, claimHash, refundHash string
	err := s.db.QueryRow(`
		SELECT claim_secret, refund_secret, claim_hash, refund_hash
		FROM secret_pairs WHERE order_hash = ?
	`, orderHash).Scan(&claimSecret, &refundSecret, &claimHash, &refundHash)
	if err == sql.ErrNoRows {
		return nil, ErrSecretPairNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read secret pair: %w", err)
	}

	pair := &secrets.Pair{}
	if err := decode32(claimSecret, pair.ClaimSecret[:]); err != nil {
		return nil, fmt.Errorf("corrupt claim secret: %w", err)
	}
	if err := decode32(refundSecret, pair.RefundSecret[:]); err != nil {
		return nil, fmt.Errorf("corrupt refund secret: %w", err)
	}
	if err := decode32(claimHash, pair.ClaimHash[:]); err != nil {
		return nil, fmt.Errorf("corrupt claim hash: %w", err)
	}
	if err := decode32(refundHash, pair.RefundHash[:]); err != nil {
		return nil, fmt.Errorf("corrupt refund hash: %w", err)
	}

	return pair, nil
}

// DeleteSecretPair removes the pair for an order after settlement.
func (s *Storage) DeleteSecretPair(orderHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`DELETE FROM secret_pairs WHERE order_hash = ?`, orderHash)
	if err != nil {
		return fmt.Errorf("failed to delete secret pair: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if n == 0 {
		return ErrSecretPairNotFound
	}

	return nil
}

func decode32(s string, dst []byte) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != len(dst) {
		return fmt.Errorf("expected %d bytes, got %d", len(dst), len(b))
	}
	copy(dst, b)
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.Code == sqlite3.ErrConstraint
	}
	return false
}
