package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-storefront/internal/checkout"
	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/domain/product"
	"github.com/example/ec-storefront/internal/outbox"
	"github.com/google/uuid"
)

// PostgresUnitOfWork runs checkout writes in a single database transaction.
type PostgresUnitOfWork struct {
	db *sql.DB
}

func NewPostgresUnitOfWork(db *sql.DB) *PostgresUnitOfWork {
	return &PostgresUnitOfWork{db: db}
}

// WithinTx commits when fn returns nil and rolls back otherwise. A cancelled
// ctx makes database/sql roll the transaction back.
func (u *PostgresUnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, tx checkout.Tx) error) error {
	sqlTx, err := u.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(ctx, &postgresTx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("tx err: %w; rollback err: %v", err, rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) CreateOrder(ctx context.Context, o *order.Order) (string, error) {
	id := o.ID
	if id == "" {
		id = uuid.New().String()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, o.UserID, o.OrderDate, o.TotalAmount, o.Status, o.ShippingAddress, o.OrderDate)
	if err != nil {
		return "", fmt.Errorf("insert order: %w", err)
	}
	return id, nil
}

func (t *postgresTx) AddOrderItems(ctx context.Context, orderID string, items []order.Item) error {
	for _, it := range items {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, product_name, quantity, price)
			VALUES ($1, $2, $3, $4, $5)
		`, orderID, it.ProductID, it.ProductName, it.Quantity, it.Price)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

// DecrementStock is a single conditional update, so concurrent checkouts
// can never drive stock below zero. When no row is updated the current
// stock is read back to tell a shortage from a missing product.
func (t *postgresTx) DecrementStock(ctx context.Context, productID string, quantity int) error {
	if !validID(productID) {
		return product.ErrProductNotFound
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
	`, productID, quantity)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var available int
	err = t.tx.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return product.ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("read stock: %w", err)
	}
	return &product.ShortageError{ProductID: productID, Requested: quantity, Available: available}
}

func (t *postgresTx) EnqueueEvent(ctx context.Context, eventType, aggregateID string, payload any) error {
	evt, err := outbox.NewEvent(eventType, aggregateID, payload, time.Now().UTC())
	if err != nil {
		return err
	}
	return insertOutbox(ctx, t.tx, evt)
}
