package database

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // Register postgres driver

	"github.com/kroma-labs/apiclient-go/example/orders/internal/config"
)

// DB wraps the sqlx connection holding the orders table.
type DB struct {
	*sqlx.DB
}

// New opens the orders database and creates its schema.
func New(ctx context.Context) (*DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", config.DefaultDSN)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(config.DefaultMaxOpen)
	db.SetMaxIdleConns(config.DefaultMaxIdle)
	db.SetConnMaxLifetime(time.Duration(config.DefaultMaxLifetime) * time.Second)
	db.SetConnMaxIdleTime(time.Duration(config.DefaultMaxIdleTime) * time.Second)

	d := &DB{DB: db}
	if err := d.CreateTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}
