package checkout_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/ec-storefront/internal/checkout"
	"github.com/example/ec-storefront/internal/domain/cart"
	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/domain/product"
	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/infrastructure/store/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// faultyUoW wraps a unit of work and fails the named Tx operation.
type faultyUoW struct {
	inner  checkout.UnitOfWork
	failOn string
	err    error
}

func (f *faultyUoW) WithinTx(ctx context.Context, fn func(ctx context.Context, tx checkout.Tx) error) error {
	return f.inner.WithinTx(ctx, func(ctx context.Context, tx checkout.Tx) error {
		return fn(ctx, &faultyTx{Tx: tx, uow: f})
	})
}

type faultyTx struct {
	checkout.Tx
	uow *faultyUoW
}

func (t *faultyTx) CreateOrder(ctx context.Context, o *order.Order) (string, error) {
	if t.uow.failOn == "CreateOrder" {
		return "", t.uow.err
	}
	return t.Tx.CreateOrder(ctx, o)
}

func (t *faultyTx) AddOrderItems(ctx context.Context, orderID string, items []order.Item) error {
	if t.uow.failOn == "AddOrderItems" {
		return t.uow.err
	}
	return t.Tx.AddOrderItems(ctx, orderID, items)
}

func (t *faultyTx) EnqueueEvent(ctx context.Context, eventType, aggregateID string, payload any) error {
	if t.uow.failOn == "EnqueueEvent" {
		return t.uow.err
	}
	return t.Tx.EnqueueEvent(ctx, eventType, aggregateID, payload)
}

// staleCatalog reports generous stock so the pre-check passes and only the
// transaction sees the real level.
type staleCatalog struct {
	inner checkout.Catalog
}

func (c staleCatalog) FindProductsByID(ctx context.Context, ids []string) (map[string]*product.Product, error) {
	found, err := c.inner.FindProductsByID(ctx, ids)
	for _, p := range found {
		p.Stock = 1000
	}
	return found, err
}

type recordingIdentity struct {
	mu      sync.Mutex
	updates map[string]string
	err     error
}

func (r *recordingIdentity) UpdateAddress(ctx context.Context, userID, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.updates == nil {
		r.updates = make(map[string]string)
	}
	r.updates[userID] = address
	return nil
}

type recordingRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordingRecorder) ObserveCheckout(outcome string, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

type fixture struct {
	db       *store.MemoryStore
	sessions *mocks.MockSessionStore
	carts    *cart.Service
	identity *recordingIdentity
	recorder *recordingRecorder
	service  *checkout.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:       store.NewMemoryStore(),
		sessions: mocks.NewMockSessionStore(),
		identity: &recordingIdentity{},
		recorder: &recordingRecorder{},
	}
	f.carts = cart.NewService(f.sessions)
	f.service = checkout.NewService(f.carts, f.db, f.db, f.identity, zap.NewNop(), checkout.WithRecorder(f.recorder))
	return f
}

func (f *fixture) product(t *testing.T, name, price string, stock int) *product.Product {
	t.Helper()
	p, err := product.New(product.Draft{Name: name, Price: decimal.RequireFromString(price), Stock: stock}, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.db.CreateProduct(context.Background(), p))
	return p
}

func (f *fixture) addToCart(t *testing.T, sessionID string, p *product.Product, qty int) {
	t.Helper()
	_, err := f.carts.Mutate(context.Background(), sessionID, func(c *cart.Cart) error {
		return c.Add(p, qty)
	})
	require.NoError(t, err)
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := f.db.FindProductByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func (f *fixture) cartLines(t *testing.T, sessionID string) []cart.Line {
	t.Helper()
	c, err := f.carts.Load(context.Background(), sessionID)
	require.NoError(t, err)
	return c.Lines()
}

func (f *fixture) orderCount(t *testing.T) int {
	t.Helper()
	orders, err := f.db.ListOrders(context.Background())
	require.NoError(t, err)
	return len(orders)
}

func request(sessionID string) checkout.Request {
	return checkout.Request{SessionID: sessionID, UserID: "user-1", ShippingAddress: "1 Main St"}
}

func requireFailure(t *testing.T, err error, kind error) *checkout.Failure {
	t.Helper()
	var f *checkout.Failure
	require.ErrorAs(t, err, &f)
	require.ErrorIs(t, err, kind)
	return f
}

// ============================================
// Success Tests
// ============================================

func TestPlaceOrder_Success(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Kettle", "29.99", 5)
	f.addToCart(t, "sess-1", p, 2)

	res, err := f.service.PlaceOrder(context.Background(), request("sess-1"))

	require.NoError(t, err)
	o := res.Order
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, "59.98", o.TotalAmount.StringFixed(2))
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, "1 Main St", o.ShippingAddress)
	require.Len(t, o.Items, 1)
	assert.Equal(t, p.ID, o.Items[0].ProductID)
	assert.Equal(t, 2, o.Items[0].Quantity)
	assert.Equal(t, "29.99", o.Items[0].Price.StringFixed(2))
	assert.Equal(t, fmt.Sprintf("Order placed successfully! Order ID: #%s", o.ID), res.Message)

	assert.Equal(t, 3, f.stock(t, p.ID))
	assert.Empty(t, f.cartLines(t, "sess-1"))

	stored, err := f.db.FindOrder(context.Background(), o.ID, "user-1")
	require.NoError(t, err)
	assert.True(t, stored.TotalAmount.Equal(stored.ItemsTotal()))

	pending, err := f.db.FetchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, order.EventOrderPlaced, pending[0].EventType)
	assert.Equal(t, o.ID, pending[0].AggregateID)

	assert.Equal(t, "1 Main St", f.identity.updates["user-1"])
	assert.Equal(t, []string{"success"}, f.recorder.outcomes)
}

func TestPlaceOrder_ItemsFollowCartOrder(t *testing.T) {
	f := newFixture(t)
	a := f.product(t, "A", "1.00", 5)
	b := f.product(t, "B", "2.00", 5)
	c := f.product(t, "C", "3.00", 5)
	f.addToCart(t, "sess-1", c, 1)
	f.addToCart(t, "sess-1", a, 1)
	f.addToCart(t, "sess-1", b, 1)

	res, err := f.service.PlaceOrder(context.Background(), request("sess-1"))

	require.NoError(t, err)
	ids := make([]string, len(res.Order.Items))
	for i, it := range res.Order.Items {
		ids[i] = it.ProductID
	}
	assert.Equal(t, []string{c.ID, a.ID, b.ID}, ids)
}

func TestPlaceOrder_TotalFrozenAtCartPrice(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Kettle", "29.99", 5)
	f.addToCart(t, "sess-1", p, 1)

	p.Price = decimal.RequireFromString("99.00")
	require.NoError(t, f.db.UpdateProduct(context.Background(), p))

	res, err := f.service.PlaceOrder(context.Background(), request("sess-1"))

	require.NoError(t, err)
	assert.Equal(t, "29.99", res.Order.TotalAmount.StringFixed(2))
	assert.Equal(t, "29.99", res.Order.Items[0].Price.StringFixed(2))
}

func TestPlaceOrder_StockCanReachZero(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Kettle", "10.00", 2)
	f.addToCart(t, "sess-1", p, 2)

	_, err := f.service.PlaceOrder(context.Background(), request("sess-1"))

	require.NoError(t, err)
	assert.Equal(t, 0, f.stock(t, p.ID))
}

// ============================================
// Recoverable Failure Tests
// ============================================

func TestPlaceOrder_EmptyCart(t *testing.T) {
	f := newFixture(t)

	res, err := f.service.PlaceOrder(context.Background(), request("sess-1"))

	failure := requireFailure(t, err, checkout.ErrEmptyCart)
	assert.Nil(t, res)
	assert.Equal(t, "Your cart is empty.", failure.Error())
	assert.True(t, failure.Recoverable())
	assert.Equal(t, 0, f.orderCount(t))
	assert.Empty(t, f.sessions.SetCalls)
	assert.Empty(t, f.sessions.RemoveCalls)
	assert.Equal(t, []string{"empty_cart"}, f.recorder.outcomes)
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Lamp", "15.00", 3)
	f.addToCart(t, "sess-1", p, 10)

	res, err := f.service.PlaceOrder(context.Background(), request("sess-1"))

	failure := requireFailure(t, err, checkout.ErrInsufficientStock)
	assert.Nil(t, res)
	assert.Equal(t, p.ID, failure.ProductID)
	assert.Equal(t, 3, failure.Available)
	assert.Equal(t, "Insufficient stock for Lamp. Only 3 available.", failure.Error())
	assert.Equal(t, 0, f.orderCount(t))
	assert.Equal(t, 3, f.stock(t, p.ID))

	lines := f.cartLines(t, "sess-1")
	require.Len(t, lines, 1)
	assert.Equal(t, 10, lines[0].Quantity)
	assert.Empty(t, f.identity.updates)
}

func TestPlaceOrder_ProductMissing(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Ghost", "5.00", 3)
	f.addToCart(t, "sess-1", p, 1)
	require.NoError(t, f.db.DeleteProduct(context.Background(), p.ID))

	_, err := f.service.PlaceOrder(context.Background(), request("sess-1"))

	failure := requireFailure(t, err, checkout.ErrProductMissing)
	assert.Equal(t, "Product Ghost is no longer available.", failure.Error())
	assert.Len(t, f.cartLines(t, "sess-1"), 1)
}

func TestPlaceOrder_ReportsFirstOffendingLine(t *testing.T) {
	f := newFixture(t)
	ok := f.product(t, "Fine", "1.00", 10)
	first := f.product(t, "First", "1.00", 1)
	second := f.product(t, "Second", "1.00", 0)
	f.addToCart(t, "sess-1", ok, 1)
	f.addToCart(t, "sess-1", first, 2)
	f.addToCart(t, "sess-1", second, 2)

	for i := 0; i < 3; i++ {
		_, err := f.service.PlaceOrder(context.Background(), request("sess-1"))
		failure := requireFailure(t, err, checkout.ErrInsufficientStock)
		assert.Equal(t, first.ID, failure.ProductID)
		assert.Equal(t, "Insufficient stock for First. Only 1 available.", failure.Error())
	}
}

func TestPlaceOrder_RequiresUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.PlaceOrder(context.Background(), checkout.Request{SessionID: "sess-1"})

	assert.ErrorIs(t, err, checkout.ErrMissingUser)
}

// ============================================
// Transactional Phase Tests
// ============================================

func TestPlaceOrder_StockChangedDuringCheckout(t *testing.T) {
	f := newFixture(t)
	a := f.product(t, "A", "1.00", 5)
	b := f.product(t, "B", "1.00", 1)
	f.addToCart(t, "sess-1", a, 2)
	f.addToCart(t, "sess-1", b, 3)
	service := checkout.NewService(f.carts, staleCatalog{f.db}, f.db, f.identity, zap.NewNop())

	_, err := service.PlaceOrder(context.Background(), request("sess-1"))

	failure := requireFailure(t, err, checkout.ErrInsufficientStock)
	assert.Equal(t, b.ID, failure.ProductID)
	assert.Equal(t, 1, failure.Available)
	assert.Equal(t, 5, f.stock(t, a.ID), "earlier decrement rolled back")
	assert.Equal(t, 1, f.stock(t, b.ID))
	assert.Equal(t, 0, f.orderCount(t))
	assert.Len(t, f.cartLines(t, "sess-1"), 2)
}

func TestPlaceOrder_TransactionErrorRollsBack(t *testing.T) {
	for _, op := range []string{"CreateOrder", "AddOrderItems", "EnqueueEvent"} {
		t.Run(op, func(t *testing.T) {
			f := newFixture(t)
			p := f.product(t, "Kettle", "29.99", 5)
			f.addToCart(t, "sess-1", p, 2)
			dbErr := errors.New("connection reset")
			uow := &faultyUoW{inner: f.db, failOn: op, err: dbErr}
			service := checkout.NewService(f.carts, f.db, uow, f.identity, zap.NewNop())

			res, err := service.PlaceOrder(context.Background(), request("sess-1"))

			failure := requireFailure(t, err, checkout.ErrTransaction)
			assert.ErrorIs(t, err, dbErr)
			assert.Nil(t, res)
			assert.False(t, failure.Recoverable())
			assert.Equal(t, "An error occurred while processing your order. Please try again.", failure.Error())
			assert.Equal(t, 5, f.stock(t, p.ID))
			assert.Equal(t, 0, f.orderCount(t))
			assert.Len(t, f.cartLines(t, "sess-1"), 1)
			assert.Empty(t, f.identity.updates)

			pending, err := f.db.FetchPending(context.Background(), 10)
			require.NoError(t, err)
			assert.Empty(t, pending)
		})
	}
}

func TestPlaceOrder_CartLoadFailure(t *testing.T) {
	f := newFixture(t)
	f.sessions.GetErr = errors.New("session backend down")

	_, err := f.service.PlaceOrder(context.Background(), request("sess-1"))

	requireFailure(t, err, checkout.ErrTransaction)
}

// ============================================
// Post-Commit Tests
// ============================================

func TestPlaceOrder_AddressFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.identity.err = errors.New("profile service down")
	p := f.product(t, "Kettle", "29.99", 5)
	f.addToCart(t, "sess-1", p, 1)

	res, err := f.service.PlaceOrder(context.Background(), request("sess-1"))

	require.NoError(t, err)
	assert.NotEmpty(t, res.Order.ID)
	assert.Equal(t, 4, f.stock(t, p.ID))
	assert.Empty(t, f.cartLines(t, "sess-1"))
}

func TestPlaceOrder_BlankAddressSkipsProfileUpdate(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Kettle", "29.99", 5)
	f.addToCart(t, "sess-1", p, 1)

	_, err := f.service.PlaceOrder(context.Background(), checkout.Request{SessionID: "sess-1", UserID: "user-1"})

	require.NoError(t, err)
	assert.Empty(t, f.identity.updates)
}

func TestPlaceOrder_CartClearFailureKeepsOrder(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Kettle", "29.99", 5)
	f.addToCart(t, "sess-1", p, 1)
	f.sessions.RemoveErr = errors.New("session backend down")

	res, err := f.service.PlaceOrder(context.Background(), request("sess-1"))

	require.NoError(t, err)
	assert.Equal(t, 1, f.orderCount(t))
	assert.NotEmpty(t, res.Order.ID)
}

// ============================================
// Concurrency Tests
// ============================================

func TestPlaceOrder_ConcurrentCheckoutsNeverOversell(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Limited", "50.00", 5)
	const shoppers = 12
	for i := 0; i < shoppers; i++ {
		f.addToCart(t, fmt.Sprintf("sess-%d", i), p, 1)
	}

	var wg sync.WaitGroup
	results := make([]error, shoppers)
	for i := 0; i < shoppers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.service.PlaceOrder(context.Background(), checkout.Request{
				SessionID: fmt.Sprintf("sess-%d", i),
				UserID:    fmt.Sprintf("user-%d", i),
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, checkout.ErrInsufficientStock)
	}
	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 0, f.stock(t, p.ID))
	assert.Equal(t, 5, f.orderCount(t))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "success", checkout.Outcome(nil))
	assert.Equal(t, "rejected", checkout.Outcome(checkout.ErrMissingUser))
	assert.Equal(t, "transaction_error", checkout.Outcome(&checkout.Failure{Kind: checkout.ErrTransaction}))
}
