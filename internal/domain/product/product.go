package product

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultLowStockThreshold is the stock level below which a product is
// reported on the admin dashboard.
const DefaultLowStockThreshold = 10

// MaxStock is the largest stock level the catalog column holds.
const MaxStock = math.MaxInt32

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInvalidPrice      = errors.New("price must be positive")
	ErrInvalidName       = errors.New("name is required")
	ErrInvalidStock      = errors.New("stock cannot be negative")
	ErrStockOutOfRange   = errors.New("stock value is out of range")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrProductInUse      = errors.New("product is referenced by existing orders")
)

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	SubCategory string          `json:"sub_category"`
	Description string          `json:"description"`
	ImagePath   string          `json:"image_path"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Draft holds the editable attributes of a product.
type Draft struct {
	Name        string
	Category    string
	SubCategory string
	Description string
	ImagePath   string
	Price       decimal.Decimal
	Stock       int
}

func (d Draft) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrInvalidName
	}
	if !d.Price.Round(2).IsPositive() {
		return ErrInvalidPrice
	}
	if d.Stock < 0 {
		return ErrInvalidStock
	}
	if d.Stock > MaxStock {
		return ErrStockOutOfRange
	}
	return nil
}

// New builds a product from a validated draft. Prices are kept at two
// decimal places.
func New(d Draft, now time.Time) (*Product, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	p := &Product{
		ID:        uuid.New().String(),
		CreatedAt: now,
	}
	p.apply(d, now)
	return p, nil
}

// Edit replaces the editable attributes of p.
func (p *Product) Edit(d Draft, now time.Time) error {
	if err := d.Validate(); err != nil {
		return err
	}
	p.apply(d, now)
	return nil
}

func (p *Product) apply(d Draft, now time.Time) {
	p.Name = strings.TrimSpace(d.Name)
	p.Category = d.Category
	p.SubCategory = d.SubCategory
	p.Description = d.Description
	p.ImagePath = d.ImagePath
	p.Price = d.Price.Round(2)
	p.Stock = d.Stock
	p.UpdatedAt = now
}

// ValidateStockAdjustment rejects admin stock values the catalog cannot
// represent.
func ValidateStockAdjustment(newStock, stockChange *int) error {
	for _, v := range []*int{newStock, stockChange} {
		if v != nil && (*v > MaxStock || *v < -MaxStock) {
			return ErrStockOutOfRange
		}
	}
	return nil
}

// NextStock resolves an admin stock update. An absolute value wins over a
// relative change, and the result stays within [0, MaxStock].
func NextStock(current int, newStock, stockChange *int) (int, bool) {
	var next int64
	switch {
	case newStock != nil:
		next = int64(*newStock)
	case stockChange != nil:
		next = int64(current) + int64(*stockChange)
	default:
		return current, false
	}
	next = max(0, min(next, MaxStock))
	return int(next), true
}

func (p *Product) InStock() bool {
	return p.Stock > 0
}

func (p *Product) IsLowStock(threshold int) bool {
	return p.Stock < threshold
}

// ShortageError reports a stock decrement that could not be satisfied.
type ShortageError struct {
	ProductID string
	Requested int
	Available int
}

func (e *ShortageError) Error() string {
	return fmt.Sprintf("product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *ShortageError) Unwrap() error {
	return ErrInsufficientStock
}
