package query

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/domain/cart"
	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/domain/product"
	"github.com/example/ec-storefront/internal/readmodel"
)

type Catalog interface {
	FindProductByID(ctx context.Context, id string) (*product.Product, error)
	FindProductsByID(ctx context.Context, ids []string) (map[string]*product.Product, error)
	ListProducts(ctx context.Context) ([]*product.Product, error)
	LowStockProducts(ctx context.Context, threshold int) ([]*product.Product, error)
}

type Orders interface {
	FindOrder(ctx context.Context, id, userID string) (*order.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]*order.Order, error)
	ListOrders(ctx context.Context) ([]*order.Order, error)
}

type Carts interface {
	Load(ctx context.Context, sessionID string) (*cart.Cart, error)
}

type Handler struct {
	catalog           Catalog
	orders            Orders
	carts             Carts
	lowStockThreshold int
	logger            *zap.Logger
}

func NewHandler(catalog Catalog, orders Orders, carts Carts, lowStockThreshold int, logger *zap.Logger) *Handler {
	if lowStockThreshold <= 0 {
		lowStockThreshold = product.DefaultLowStockThreshold
	}
	return &Handler{
		catalog:           catalog,
		orders:            orders,
		carts:             carts,
		lowStockThreshold: lowStockThreshold,
		logger:            logger.Named("query"),
	}
}

// Products
func (h *Handler) GetProduct(ctx context.Context, id string) (*ProductView, error) {
	p, err := h.catalog.FindProductByID(ctx, id)
	if err != nil {
		return nil, err
	}
	view := readmodel.NewProductView(p)
	return &view, nil
}

func (h *Handler) ListProducts(ctx context.Context) ([]ProductView, error) {
	ps, err := h.catalog.ListProducts(ctx)
	if err != nil {
		h.logger.Error("list products failed", zap.Error(err))
		return nil, fmt.Errorf("list products: %w", err)
	}
	return readmodel.NewProductViews(ps), nil
}

// Cart

// GetCart returns the session cart with the current stock of every line's
// product. Stored prices are shown as captured; stock is read live.
func (h *Handler) GetCart(ctx context.Context, sessionID string) (*CartView, error) {
	c, err := h.carts.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var live map[string]*product.Product
	if !c.IsEmpty() {
		live, err = h.catalog.FindProductsByID(ctx, c.ProductIDs())
		if err != nil {
			h.logger.Error("load cart products failed", zap.String("session_id", sessionID), zap.Error(err))
			return nil, fmt.Errorf("load cart products: %w", err)
		}
	}
	view := readmodel.NewCartView(c, live)
	return &view, nil
}

// Orders

// GetOrder returns an order owned by userID. Orders of other users are
// reported as order.ErrOrderNotFound.
func (h *Handler) GetOrder(ctx context.Context, id, userID string) (*OrderView, error) {
	o, err := h.orders.FindOrder(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	view := readmodel.NewOrderView(o)
	return &view, nil
}

// ListOrdersByUser returns the user's orders, newest first.
func (h *Handler) ListOrdersByUser(ctx context.Context, userID string) ([]OrderView, error) {
	os, err := h.orders.ListOrdersByUser(ctx, userID)
	if err != nil {
		h.logger.Error("list user orders failed", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return readmodel.NewOrderViews(os), nil
}

// ListAllOrders returns all orders (for admin use)
func (h *Handler) ListAllOrders(ctx context.Context) ([]OrderView, error) {
	os, err := h.orders.ListOrders(ctx)
	if err != nil {
		h.logger.Error("list all orders failed", zap.Error(err))
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return readmodel.NewOrderViews(os), nil
}

// Inventory
func (h *Handler) LowStock(ctx context.Context) (*LowStockSummary, error) {
	ps, err := h.catalog.LowStockProducts(ctx, h.lowStockThreshold)
	if err != nil {
		h.logger.Error("low stock query failed", zap.Error(err))
		return nil, fmt.Errorf("low stock products: %w", err)
	}
	summary := readmodel.NewLowStockSummary(h.lowStockThreshold, ps)
	return &summary, nil
}
