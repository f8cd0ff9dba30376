package command

import "github.com/shopspring/decimal"

// Product Commands
type CreateProduct struct {
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	SubCategory string          `json:"sub_category"`
	Description string          `json:"description"`
	ImagePath   string          `json:"image_path"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
}

type UpdateProduct struct {
	ProductID   string          `json:"-"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	SubCategory string          `json:"sub_category"`
	Description string          `json:"description"`
	ImagePath   string          `json:"image_path"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
}

type DeleteProduct struct {
	ProductID string `json:"product_id"`
}

// UpdateStock sets stock to NewStock, or adjusts it by StockChange when
// NewStock is absent.
type UpdateStock struct {
	ProductID   string `json:"-"`
	NewStock    *int   `json:"new_stock"`
	StockChange *int   `json:"stock_change"`
}

// Cart Commands
type AddToCart struct {
	SessionID string `json:"-"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type UpdateCartQuantity struct {
	SessionID string `json:"-"`
	ProductID string `json:"-"`
	Quantity  int    `json:"quantity"`
}

type RemoveFromCart struct {
	SessionID string `json:"-"`
	ProductID string `json:"product_id"`
}

type ClearCart struct {
	SessionID string `json:"-"`
}

// Order Commands
type PlaceOrder struct {
	SessionID       string `json:"-"`
	UserID          string `json:"-"`
	ShippingAddress string `json:"shipping_address"`
}

type UpdateOrderStatus struct {
	OrderID string `json:"-"`
	Status  string `json:"status"`
}
