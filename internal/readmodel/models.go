package readmodel

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/ec-storefront/internal/domain/cart"
	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/domain/product"
)

// FormatMoney renders an amount with exactly two decimals.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// ProductView is the read model for catalog listings
type ProductView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	SubCategory string `json:"sub_category,omitempty"`
	Description string `json:"description"`
	ImagePath   string `json:"image_path,omitempty"`
	Price       string `json:"price"`
	Stock       int    `json:"stock"`
	InStock     bool   `json:"in_stock"`
}

func NewProductView(p *product.Product) ProductView {
	return ProductView{
		ID:          p.ID,
		Name:        p.Name,
		Category:    p.Category,
		SubCategory: p.SubCategory,
		Description: p.Description,
		ImagePath:   p.ImagePath,
		Price:       FormatMoney(p.Price),
		Stock:       p.Stock,
		InStock:     p.InStock(),
	}
}

func NewProductViews(ps []*product.Product) []ProductView {
	out := make([]ProductView, 0, len(ps))
	for _, p := range ps {
		out = append(out, NewProductView(p))
	}
	return out
}

// CartLineView is a cart line with the product's current stock. Available
// is -1 when the product no longer exists.
type CartLineView struct {
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name"`
	ProductImage string `json:"product_image,omitempty"`
	Price        string `json:"price"`
	Quantity     int    `json:"quantity"`
	Subtotal     string `json:"subtotal"`
	Available    int    `json:"available"`
}

// CartView is the read model for the session cart
type CartView struct {
	Lines []CartLineView `json:"lines"`
	Total string         `json:"total"`
	Count int            `json:"count"`
}

// NewCartView builds the cart view. live maps product ids to the current
// catalog entry; lines whose product is absent report Available as -1.
func NewCartView(c *cart.Cart, live map[string]*product.Product) CartView {
	lines := c.Lines()
	view := CartView{
		Lines: make([]CartLineView, 0, len(lines)),
		Total: FormatMoney(c.Total()),
		Count: c.Count(),
	}
	for _, l := range lines {
		available := -1
		if p, ok := live[l.ProductID]; ok {
			available = p.Stock
		}
		view.Lines = append(view.Lines, CartLineView{
			ProductID:    l.ProductID,
			ProductName:  l.Name,
			ProductImage: l.Image,
			Price:        FormatMoney(l.UnitPrice),
			Quantity:     l.Quantity,
			Subtotal:     FormatMoney(l.Subtotal()),
			Available:    available,
		})
	}
	return view
}

type OrderItemView struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	Price       string `json:"price"`
	Subtotal    string `json:"subtotal"`
}

// OrderView is the read model for order history and order detail
type OrderView struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	OrderDate       time.Time       `json:"order_date"`
	Status          string          `json:"status"`
	ShippingAddress string          `json:"shipping_address"`
	TotalAmount     string          `json:"total_amount"`
	ItemCount       int             `json:"item_count"`
	Items           []OrderItemView `json:"items"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func NewOrderView(o *order.Order) OrderView {
	view := OrderView{
		ID:              o.ID,
		UserID:          o.UserID,
		OrderDate:       o.OrderDate,
		Status:          string(o.Status),
		ShippingAddress: o.ShippingAddress,
		TotalAmount:     FormatMoney(o.TotalAmount),
		ItemCount:       o.ItemCount(),
		Items:           make([]OrderItemView, 0, len(o.Items)),
		UpdatedAt:       o.UpdatedAt,
	}
	for _, it := range o.Items {
		view.Items = append(view.Items, OrderItemView{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       FormatMoney(it.Price),
			Subtotal:    FormatMoney(it.Subtotal()),
		})
	}
	return view
}

func NewOrderViews(orders []*order.Order) []OrderView {
	out := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, NewOrderView(o))
	}
	return out
}

type LowStockItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	Stock     int    `json:"stock"`
}

// LowStockSummary lists products whose stock is below Threshold, lowest
// stock first.
type LowStockSummary struct {
	Threshold  int            `json:"threshold"`
	Count      int            `json:"count"`
	OutOfStock int            `json:"out_of_stock"`
	Products   []LowStockItem `json:"products"`
}

func NewLowStockSummary(threshold int, ps []*product.Product) LowStockSummary {
	summary := LowStockSummary{
		Threshold: threshold,
		Count:     len(ps),
		Products:  make([]LowStockItem, 0, len(ps)),
	}
	for _, p := range ps {
		if p.Stock == 0 {
			summary.OutOfStock++
		}
		summary.Products = append(summary.Products, LowStockItem{
			ProductID: p.ID,
			Name:      p.Name,
			Category:  p.Category,
			Stock:     p.Stock,
		})
	}
	return summary
}
