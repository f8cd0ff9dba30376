package query

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/checkout"
	"github.com/example/ec-storefront/internal/domain/cart"
	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/domain/product"
	"github.com/example/ec-storefront/internal/infrastructure/store"
)

type queryFixture struct {
	handler *Handler
	store   *store.MemoryStore
	carts   *cart.Service
}

func newTestQueryHandler(t *testing.T) *queryFixture {
	t.Helper()
	s := store.NewMemoryStore()
	carts := cart.NewService(store.NewMemorySessionStore(time.Hour))
	return &queryFixture{
		handler: NewHandler(s, s, carts, 0, zap.NewNop()),
		store:   s,
		carts:   carts,
	}
}

func (f *queryFixture) addProduct(t *testing.T, name, price string, stock int) *product.Product {
	t.Helper()
	p, err := product.New(product.Draft{Name: name, Category: "Stationery", Price: decimal.RequireFromString(price), Stock: stock}, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.store.CreateProduct(context.Background(), p))
	return p
}

func (f *queryFixture) addOrder(t *testing.T, userID string, placed time.Time, items ...order.Item) string {
	t.Helper()
	o := &order.Order{UserID: userID, OrderDate: placed, Status: order.StatusPending, TotalAmount: decimal.NewFromInt(1)}
	var id string
	err := f.store.WithinTx(context.Background(), func(ctx context.Context, tx checkout.Tx) error {
		var err error
		id, err = tx.CreateOrder(ctx, o)
		if err != nil {
			return err
		}
		return tx.AddOrderItems(ctx, id, items)
	})
	require.NoError(t, err)
	return id
}

// ============================================
// Product Query Tests
// ============================================

func TestHandler_GetProduct_Found(t *testing.T) {
	f := newTestQueryHandler(t)
	p := f.addProduct(t, "Fountain Pen", "24.5", 3)

	view, err := f.handler.GetProduct(context.Background(), p.ID)

	require.NoError(t, err)
	assert.Equal(t, "Fountain Pen", view.Name)
	assert.Equal(t, "24.50", view.Price)
	assert.True(t, view.InStock)
}

func TestHandler_GetProduct_NotFound(t *testing.T) {
	f := newTestQueryHandler(t)

	view, err := f.handler.GetProduct(context.Background(), "non-existent")

	assert.ErrorIs(t, err, product.ErrProductNotFound)
	assert.Nil(t, view)
}

func TestHandler_ListProducts(t *testing.T) {
	f := newTestQueryHandler(t)
	f.addProduct(t, "Product 1", "1", 1)
	f.addProduct(t, "Product 2", "2", 0)

	views, err := f.handler.ListProducts(context.Background())

	require.NoError(t, err)
	assert.Len(t, views, 2)
}

// ============================================
// Cart Query Tests
// ============================================

func TestHandler_GetCart_Empty(t *testing.T) {
	f := newTestQueryHandler(t)

	view, err := f.handler.GetCart(context.Background(), "sess-1")

	require.NoError(t, err)
	assert.Empty(t, view.Lines)
	assert.Equal(t, "0.00", view.Total)
	assert.Equal(t, 0, view.Count)
}

func TestHandler_GetCart_ShowsLiveStock(t *testing.T) {
	ctx := context.Background()
	f := newTestQueryHandler(t)
	p := f.addProduct(t, "Notebook", "3.20", 8)

	_, err := f.carts.Mutate(ctx, "sess-1", func(c *cart.Cart) error { return c.Add(p, 2) })
	require.NoError(t, err)

	five := 5
	_, err = f.store.UpdateProductStock(ctx, p.ID, &five, nil)
	require.NoError(t, err)

	view, err := f.handler.GetCart(ctx, "sess-1")

	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, 5, view.Lines[0].Available)
	assert.Equal(t, "6.40", view.Total)
	assert.Equal(t, 2, view.Count)
}

// ============================================
// Order Query Tests
// ============================================

func TestHandler_ListOrdersByUser_NewestFirst(t *testing.T) {
	f := newTestQueryHandler(t)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	first := f.addOrder(t, "user-1", base)
	second := f.addOrder(t, "user-1", base.Add(time.Hour))
	f.addOrder(t, "user-2", base)

	views, err := f.handler.ListOrdersByUser(context.Background(), "user-1")

	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, second, views[0].ID)
	assert.Equal(t, first, views[1].ID)
}

func TestHandler_ListOrdersByUser_None(t *testing.T) {
	f := newTestQueryHandler(t)

	views, err := f.handler.ListOrdersByUser(context.Background(), "nobody")

	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestHandler_GetOrder_ScopedToOwner(t *testing.T) {
	f := newTestQueryHandler(t)
	id := f.addOrder(t, "user-1", time.Now(), order.Item{ProductID: "p1", ProductName: "Pen", Quantity: 2, Price: decimal.NewFromInt(3)})

	view, err := f.handler.GetOrder(context.Background(), id, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, view.ItemCount)

	_, err = f.handler.GetOrder(context.Background(), id, "user-2")
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestHandler_ListAllOrders(t *testing.T) {
	f := newTestQueryHandler(t)
	f.addOrder(t, "user-1", time.Now())
	f.addOrder(t, "user-2", time.Now())

	views, err := f.handler.ListAllOrders(context.Background())

	require.NoError(t, err)
	assert.Len(t, views, 2)
}

// ============================================
// Inventory Query Tests
// ============================================

func TestHandler_LowStock(t *testing.T) {
	f := newTestQueryHandler(t)
	f.addProduct(t, "Plenty", "1", 50)
	f.addProduct(t, "Few", "1", 4)
	f.addProduct(t, "None", "1", 0)

	summary, err := f.handler.LowStock(context.Background())

	require.NoError(t, err)
	assert.Equal(t, product.DefaultLowStockThreshold, summary.Threshold)
	assert.Equal(t, 2, summary.Count)
	assert.Equal(t, 1, summary.OutOfStock)
	assert.Equal(t, "None", summary.Products[0].Name)
}
