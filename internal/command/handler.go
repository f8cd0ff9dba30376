package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/checkout"
	"github.com/example/ec-storefront/internal/domain/cart"
	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/domain/product"
)

var (
	ErrOutOfStock   = errors.New("product is out of stock")
	ErrNoStockValue = errors.New("either new_stock or stock_change is required")
)

// StockLimitError rejects a cart quantity larger than the product's stock.
// Adding tells an add-to-cart request from a quantity update.
type StockLimitError struct {
	Available int
	Adding    bool
}

func (e *StockLimitError) Error() string {
	return fmt.Sprintf("only %d in stock", e.Available)
}

func (e *StockLimitError) Unwrap() error {
	return product.ErrInsufficientStock
}

type Catalog interface {
	FindProductByID(ctx context.Context, id string) (*product.Product, error)
	CreateProduct(ctx context.Context, p *product.Product) error
	UpdateProduct(ctx context.Context, p *product.Product) error
	DeleteProduct(ctx context.Context, id string) error
	UpdateProductStock(ctx context.Context, id string, newStock, stockChange *int) (int, error)
}

type Orders interface {
	FindOrderByID(ctx context.Context, id string) (*order.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, from, to order.Status, at time.Time) error
}

type Handler struct {
	catalog  Catalog
	orders   Orders
	carts    *cart.Service
	checkout *checkout.Service
	now      func() time.Time
	logger   *zap.Logger
}

func NewHandler(
	catalog Catalog,
	orders Orders,
	carts *cart.Service,
	checkoutSvc *checkout.Service,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		catalog:  catalog,
		orders:   orders,
		carts:    carts,
		checkout: checkoutSvc,
		now:      time.Now,
		logger:   logger.Named("command"),
	}
}

// ============================================
// Products
// ============================================

func (h *Handler) CreateProduct(ctx context.Context, cmd CreateProduct) (*product.Product, error) {
	p, err := product.New(product.Draft{
		Name:        cmd.Name,
		Category:    cmd.Category,
		SubCategory: cmd.SubCategory,
		Description: cmd.Description,
		ImagePath:   cmd.ImagePath,
		Price:       cmd.Price,
		Stock:       cmd.Stock,
	}, h.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := h.catalog.CreateProduct(ctx, p); err != nil {
		return nil, err
	}
	h.logger.Info("product created", zap.String("product_id", p.ID), zap.String("name", p.Name))
	return p, nil
}

func (h *Handler) UpdateProduct(ctx context.Context, cmd UpdateProduct) (*product.Product, error) {
	p, err := h.catalog.FindProductByID(ctx, cmd.ProductID)
	if err != nil {
		return nil, err
	}
	err = p.Edit(product.Draft{
		Name:        cmd.Name,
		Category:    cmd.Category,
		SubCategory: cmd.SubCategory,
		Description: cmd.Description,
		ImagePath:   cmd.ImagePath,
		Price:       cmd.Price,
		Stock:       cmd.Stock,
	}, h.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := h.catalog.UpdateProduct(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeleteProduct fails with product.ErrProductInUse while orders reference it.
func (h *Handler) DeleteProduct(ctx context.Context, cmd DeleteProduct) error {
	if err := h.catalog.DeleteProduct(ctx, cmd.ProductID); err != nil {
		return err
	}
	h.logger.Info("product deleted", zap.String("product_id", cmd.ProductID))
	return nil
}

// UpdateStock applies an admin stock correction and returns the new level.
// The result is clamped at zero.
func (h *Handler) UpdateStock(ctx context.Context, cmd UpdateStock) (int, error) {
	if cmd.NewStock == nil && cmd.StockChange == nil {
		return 0, ErrNoStockValue
	}
	if err := product.ValidateStockAdjustment(cmd.NewStock, cmd.StockChange); err != nil {
		return 0, err
	}
	stock, err := h.catalog.UpdateProductStock(ctx, cmd.ProductID, cmd.NewStock, cmd.StockChange)
	if err != nil {
		return 0, err
	}
	h.logger.Info("stock updated", zap.String("product_id", cmd.ProductID), zap.Int("stock", stock))
	return stock, nil
}

// ============================================
// Cart
// ============================================

// AddToCart adds a product to the session cart. A non-positive quantity
// means one. The requested quantity is checked against current stock; the
// quantity already in the cart is not.
func (h *Handler) AddToCart(ctx context.Context, cmd AddToCart) (*cart.Cart, error) {
	if cmd.Quantity <= 0 {
		cmd.Quantity = 1
	}
	p, err := h.catalog.FindProductByID(ctx, cmd.ProductID)
	if err != nil {
		return nil, err
	}
	if p.Stock <= 0 {
		return nil, ErrOutOfStock
	}
	if p.Stock < cmd.Quantity {
		return nil, &StockLimitError{Available: p.Stock, Adding: true}
	}
	return h.carts.Mutate(ctx, cmd.SessionID, func(c *cart.Cart) error {
		return c.Add(p, cmd.Quantity)
	})
}

// UpdateCartQuantity sets a line's quantity. Zero or less removes the line
// without consulting the catalog.
func (h *Handler) UpdateCartQuantity(ctx context.Context, cmd UpdateCartQuantity) (*cart.Cart, error) {
	if cmd.Quantity > 0 {
		p, err := h.catalog.FindProductByID(ctx, cmd.ProductID)
		if err != nil {
			return nil, err
		}
		if p.Stock < cmd.Quantity {
			return nil, &StockLimitError{Available: p.Stock}
		}
	}
	return h.carts.Mutate(ctx, cmd.SessionID, func(c *cart.Cart) error {
		c.UpdateQuantity(cmd.ProductID, cmd.Quantity)
		return nil
	})
}

func (h *Handler) RemoveFromCart(ctx context.Context, cmd RemoveFromCart) (*cart.Cart, error) {
	return h.carts.Mutate(ctx, cmd.SessionID, func(c *cart.Cart) error {
		c.Remove(cmd.ProductID)
		return nil
	})
}

func (h *Handler) ClearCart(ctx context.Context, cmd ClearCart) error {
	return h.carts.Clear(ctx, cmd.SessionID)
}

// ============================================
// Orders
// ============================================

func (h *Handler) PlaceOrder(ctx context.Context, cmd PlaceOrder) (*checkout.Result, error) {
	return h.checkout.PlaceOrder(ctx, checkout.Request{
		SessionID:       cmd.SessionID,
		UserID:          cmd.UserID,
		ShippingAddress: cmd.ShippingAddress,
	})
}

// UpdateOrderStatus moves an order along the admin workflow. The store
// re-checks the current status so a concurrent change is not overwritten.
func (h *Handler) UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatus) (*order.Order, error) {
	target, err := order.ParseStatus(cmd.Status)
	if err != nil {
		return nil, err
	}
	o, err := h.orders.FindOrderByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	from := o.Status
	now := h.now().UTC()
	if err := o.TransitionTo(target, now); err != nil {
		return nil, err
	}
	if err := h.orders.UpdateOrderStatus(ctx, o.ID, from, target, now); err != nil {
		return nil, err
	}
	h.logger.Info("order status updated",
		zap.String("order_id", o.ID),
		zap.String("from", string(from)),
		zap.String("to", string(target)),
	)
	return o, nil
}
