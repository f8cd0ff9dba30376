package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/ec-storefront/internal/domain/product"
	"github.com/lib/pq"
)

const productColumns = `id, name, category, sub_category, description, image_path, price, stock, created_at, updated_at`

// PostgresCatalog stores products in PostgreSQL
type PostgresCatalog struct {
	db *sql.DB
}

func NewPostgresCatalog(db *sql.DB) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

func scanProduct(row interface{ Scan(...any) error }) (*product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.SubCategory, &p.Description, &p.ImagePath,
		&p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *PostgresCatalog) FindProductByID(ctx context.Context, id string) (*product.Product, error) {
	if !validID(id) {
		return nil, product.ErrProductNotFound
	}
	p, err := scanProduct(c.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, product.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	return p, nil
}

// FindProductsByID returns the products that exist among ids, keyed by id.
func (c *PostgresCatalog) FindProductsByID(ctx context.Context, ids []string) (map[string]*product.Product, error) {
	out := make(map[string]*product.Product, len(ids))
	ids = validIDs(ids)
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1::uuid[])`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (c *PostgresCatalog) ListProducts(ctx context.Context) ([]*product.Product, error) {
	return c.queryProducts(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at, id`)
}

// LowStockProducts lists products whose stock is below threshold, scarcest first.
func (c *PostgresCatalog) LowStockProducts(ctx context.Context, threshold int) ([]*product.Product, error) {
	return c.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE stock < $1 ORDER BY stock, created_at`, threshold)
}

func (c *PostgresCatalog) queryProducts(ctx context.Context, query string, args ...any) ([]*product.Product, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []*product.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (c *PostgresCatalog) CreateProduct(ctx context.Context, p *product.Product) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.Name, p.Category, p.SubCategory, p.Description, p.ImagePath, p.Price, p.Stock, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (c *PostgresCatalog) UpdateProduct(ctx context.Context, p *product.Product) error {
	if !validID(p.ID) {
		return product.ErrProductNotFound
	}
	res, err := c.db.ExecContext(ctx, `
		UPDATE products SET
			name = $2, category = $3, sub_category = $4, description = $5,
			image_path = $6, price = $7, stock = $8, updated_at = $9
		WHERE id = $1
	`, p.ID, p.Name, p.Category, p.SubCategory, p.Description, p.ImagePath, p.Price, p.Stock, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return requireRow(res, product.ErrProductNotFound)
}

func (c *PostgresCatalog) DeleteProduct(ctx context.Context, id string) error {
	if !validID(id) {
		return product.ErrProductNotFound
	}
	res, err := c.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if pqCode(err) == pqForeignKeyViolation {
		return product.ErrProductInUse
	}
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return requireRow(res, product.ErrProductNotFound)
}

// UpdateProductStock sets stock to newStock, or shifts it by stockChange,
// keeping it within [0, product.MaxStock]. It returns the resulting stock.
func (c *PostgresCatalog) UpdateProductStock(ctx context.Context, id string, newStock, stockChange *int) (int, error) {
	if !validID(id) {
		return 0, product.ErrProductNotFound
	}
	var stock int
	err := c.db.QueryRowContext(ctx, `
		UPDATE products
		SET stock = GREATEST(LEAST(COALESCE($2::bigint, stock::bigint + COALESCE($3::bigint, 0)), 2147483647), 0),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING stock
	`, id, nullInt(newStock), nullInt(stockChange)).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, product.ErrProductNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("update stock: %w", err)
	}
	return stock, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
