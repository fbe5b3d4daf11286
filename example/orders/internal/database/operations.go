package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when no order has the requested id.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicate is returned when an order id is already taken.
	ErrDuplicate = errors.New("order already exists")
	// ErrStale is returned when an update names an outdated version.
	ErrStale = errors.New("order was modified")
)

const uniqueViolation = "23505"

// Order is a row of the orders table. Version backs the ETag.
type Order struct {
	ID       int64  `db:"id"       json:"id"`
	Customer string `db:"customer" json:"customer"`
	Total    int64  `db:"total"    json:"total"`
	Version  int64  `db:"version"  json:"-"`
}

// CreateTable creates the orders table if it doesn't exist.
func (db *DB) CreateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS orders (
			id BIGINT PRIMARY KEY,
			customer VARCHAR(100) NOT NULL,
			total BIGINT NOT NULL,
			version BIGINT NOT NULL DEFAULT 1
		)
	`
	_, err := db.ExecContext(ctx, query)
	return err
}

// Get returns the order with id.
func (db *DB) Get(ctx context.Context, id int64) (Order, error) {
	var o Order
	err := db.GetContext(ctx, &o, "SELECT id, customer, total, version FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return o, err
}

// List returns take orders after skipping skip, ordered by id.
func (db *DB) List(ctx context.Context, skip, take int64) ([]Order, error) {
	var orders []Order
	err := db.SelectContext(ctx, &orders,
		"SELECT id, customer, total, version FROM orders ORDER BY id OFFSET $1 LIMIT $2", skip, take)
	return orders, err
}

// Count returns the number of orders.
func (db *DB) Count(ctx context.Context) (int64, error) {
	var n int64
	err := db.GetContext(ctx, &n, "SELECT COUNT(*) FROM orders")
	return n, err
}

// Create inserts o with version 1.
func (db *DB) Create(ctx context.Context, o Order) (Order, error) {
	o.Version = 1
	_, err := db.NamedExecContext(ctx,
		"INSERT INTO orders (id, customer, total, version) VALUES (:id, :customer, :total, :version)", o)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return Order{}, ErrDuplicate
	}
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

// Update sets the total of order id when its version is still version, and
// bumps the version.
func (db *DB) Update(ctx context.Context, id, version, total int64) (Order, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var o Order
	err = tx.GetContext(ctx, &o, "SELECT id, customer, total, version FROM orders WHERE id = $1 FOR UPDATE", id)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	if o.Version != version {
		return Order{}, ErrStale
	}

	o.Total = total
	o.Version++
	if _, err := tx.ExecContext(ctx,
		"UPDATE orders SET total = $1, version = $2 WHERE id = $3", o.Total, o.Version, o.ID); err != nil {
		return Order{}, err
	}
	return o, tx.Commit()
}
