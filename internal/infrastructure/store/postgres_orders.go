package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/lib/pq"
)

const orderColumns = `id, user_id, order_date, total_amount, status, shipping_address, updated_at`

// PostgresOrders reads and updates the order ledger.
type PostgresOrders struct {
	db *sql.DB
}

func NewPostgresOrders(db *sql.DB) *PostgresOrders {
	return &PostgresOrders{db: db}
}

// FindOrder returns the order only if it belongs to userID. Orders owned by
// someone else are reported as not found.
func (r *PostgresOrders) FindOrder(ctx context.Context, id, userID string) (*order.Order, error) {
	if !validID(id) || !validID(userID) {
		return nil, order.ErrOrderNotFound
	}
	return r.findOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 AND user_id = $2`, id, userID)
}

func (r *PostgresOrders) FindOrderByID(ctx context.Context, id string) (*order.Order, error) {
	if !validID(id) {
		return nil, order.ErrOrderNotFound
	}
	return r.findOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *PostgresOrders) ListOrdersByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	if !validID(userID) {
		return nil, nil
	}
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY order_date DESC`, userID)
}

func (r *PostgresOrders) ListOrders(ctx context.Context) ([]*order.Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY order_date DESC`)
}

// UpdateOrderStatus moves an order from one status to another. It fails
// with order.ErrInvalidStatus if the order is no longer in status from.
func (r *PostgresOrders) UpdateOrderStatus(ctx context.Context, id string, from, to order.Status, at time.Time) error {
	if !validID(id) {
		return order.ErrOrderNotFound
	}
	var current order.Status
	err := r.db.QueryRowContext(ctx, `
		WITH target AS (SELECT id, status FROM orders WHERE id = $1 FOR UPDATE)
		UPDATE orders o SET status = CASE WHEN t.status = $2 THEN $3 ELSE t.status END,
		                    updated_at = CASE WHEN t.status = $2 THEN $4 ELSE o.updated_at END
		FROM target t
		WHERE o.id = t.id
		RETURNING t.status
	`, id, from, to, at).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return order.ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if current != from {
		return order.ErrInvalidStatus
	}
	return nil
}

func scanOrder(row interface{ Scan(...any) error }) (*order.Order, error) {
	var o order.Order
	err := row.Scan(&o.ID, &o.UserID, &o.OrderDate, &o.TotalAmount, &o.Status, &o.ShippingAddress, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *PostgresOrders) findOne(ctx context.Context, query string, args ...any) (*order.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if err := r.loadItems(ctx, []*order.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *PostgresOrders) list(ctx context.Context, query string, args ...any) ([]*order.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// loadItems fills Items for all orders with a single query.
func (r *PostgresOrders) loadItems(ctx context.Context, orders []*order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[string]*order.Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, product_name, quantity, price
		FROM order_items WHERE order_id = ANY($1::uuid[]) ORDER BY id
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID string
		var it order.Item
		if err := rows.Scan(&orderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.Price); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	return rows.Err()
}
