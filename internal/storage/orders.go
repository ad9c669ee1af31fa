// Package storage - cross-chain order records.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Order errors
var (
	ErrOrderNotFound = errors.New("order not found")
)

// OrderStatus tracks an order through its lifecycle.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusActive    OrderStatus = "active"
	OrderStatusSettled   OrderStatus = "settled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFailed    OrderStatus = "failed"
)

// Order is the metadata for one bridge order.
type Order struct {
	ID        string
	OrderHash string
	Status    OrderStatus

	SrcChainID uint64
	DstChainID uint64
	SrcToken   string
	DstToken   string
	Amount     string // wei, decimal string

	WalletAddress  string
	CounterAddress string

	SwapID string

	CreatedAt time.Time
	UpdatedAt *time.Time
}

// CreateOrder inserts a new order record.
func (s *Storage) CreateOrder(order *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	if order.Status == "" {
		order.Status = OrderStatusPending
	}

	var swapID *string
	if order.SwapID != "" {
		swapID = &order.SwapID
	}

	_, err := s.db.Exec(`
		INSERT INTO orders (
			id, order_hash, status,
			src_chain_id, dst_chain_id, src_token, dst_token, amount,
			wallet_address, counter_address, swap_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		order.ID, order.OrderHash, string(order.Status),
		order.SrcChainID, order.DstChainID, order.SrcToken, order.DstToken, order.Amount,
		order.WalletAddress, order.CounterAddress, swapID, order.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	return nil
}

// GetOrder retrieves an order by ID.
func (s *Storage) GetOrder(id string) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, order_hash, status,
			src_chain_id, dst_chain_id, src_token, dst_token, amount,
			wallet_address, counter_address, swap_id, created_at, updated_at
		FROM orders WHERE id = ?
	`, id)

	return scanOrder(row)
}

// GetOrderByHash retrieves an order by its order hash.
func (s *Storage) GetOrderByHash(orderHash string) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, order_hash, status,
			src_chain_id, dst_chain_id, src_token, dst_token, amount,
			wallet_address, counter_address, swap_id, created_at, updated_at
		FROM orders WHERE order_hash = ?
	`, orderHash)

	return scanOrder(row)
}

// UpdateOrder overwrites an order record. Last write wins.
func (s *Storage) UpdateOrder(order *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	order.UpdatedAt = &now

	var swapID *string
	if order.SwapID != "" {
		swapID = &order.SwapID
	}

	result, err := s.db.Exec(`
		UPDATE orders SET
			order_hash = ?, status = ?,
			src_chain_id = ?, dst_chain_id = ?, src_token = ?, dst_token = ?, amount = ?,
			wallet_address = ?, counter_address = ?, swap_id = ?, updated_at = ?
		WHERE id = ?
	`,
		order.OrderHash, string(order.Status),
		order.SrcChainID, order.DstChainID, order.SrcToken, order.DstToken, order.Amount,
		order.WalletAddress, order.CounterAddress, swapID, now.Unix(),
		order.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// ListOrders returns orders, optionally filtered by status, newest first.
func (s *Storage) ListOrders(status OrderStatus) ([]*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, order_hash, status,
			src_chain_id, dst_chain_id, src_token, dst_token, amount,
			wallet_address, counter_address, swap_id, created_at, updated_at
		FROM orders
	`
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	return orders, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var order Order
	var status string
	var swapID sql.NullString
	var createdAt int64
	var updatedAt sql.NullInt64

	err := row.Scan(
		&order.ID, &order.OrderHash, &status,
		&order.SrcChainID, &order.DstChainID, &order.SrcToken, &order.DstToken, &order.Amount,
		&order.WalletAddress, &order.CounterAddress, &swapID, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}

	order.Status = OrderStatus(status)
	if swapID.Valid {
		order.SwapID = swapID.String
	}
	order.CreatedAt = time.Unix(createdAt, 0)
	if updatedAt.Valid {
		t := time.Unix(updatedAt.Int64, 0)
		order.UpdatedAt = &t
	}

	return &order, nil
}
