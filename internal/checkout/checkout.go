// Package checkout converts a session cart into a persisted order while
// keeping catalog stock consistent.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-storefront/internal/domain/cart"
	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/domain/product"
	"go.uber.org/zap"
)

var ErrMissingUser = errors.New("checkout requires a signed-in user")

// Carts loads and stores session carts.
type Carts interface {
	Load(ctx context.Context, sessionID string) (*cart.Cart, error)
	Save(ctx context.Context, sessionID string, c *cart.Cart) error
}

// Catalog reads current product state outside of a transaction.
type Catalog interface {
	FindProductsByID(ctx context.Context, ids []string) (map[string]*product.Product, error)
}

// Identity updates the signed-in user's profile.
type Identity interface {
	UpdateAddress(ctx context.Context, userID, address string) error
}

// Tx is the set of writes performed atomically by a checkout.
type Tx interface {
	// CreateOrder stores o and returns its identifier.
	CreateOrder(ctx context.Context, o *order.Order) (string, error)
	AddOrderItems(ctx context.Context, orderID string, items []order.Item) error
	// DecrementStock lowers stock by quantity only if enough is available.
	// A shortfall is reported as *product.ShortageError.
	DecrementStock(ctx context.Context, productID string, quantity int) error
	EnqueueEvent(ctx context.Context, eventType, aggregateID string, payload any) error
}

// UnitOfWork runs fn inside a transaction. The transaction commits only when
// fn returns nil and ctx is still live.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Recorder observes checkout outcomes.
type Recorder interface {
	ObserveCheckout(outcome string, elapsed time.Duration)
}

type Request struct {
	SessionID       string
	UserID          string
	ShippingAddress string
}

type Result struct {
	Order   *order.Order
	Message string
}

type Service struct {
	carts    Carts
	catalog  Catalog
	uow      UnitOfWork
	identity Identity
	logger   *zap.Logger
	recorder Recorder
	now      func() time.Time
}

type Option func(*Service)

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(carts Carts, catalog Catalog, uow UnitOfWork, identity Identity, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		carts:    carts,
		catalog:  catalog,
		uow:      uow,
		identity: identity,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// PlaceOrder validates the session cart against live stock, then creates the
// order, its items and the stock decrements in one transaction. The cart is
// cleared only after a successful commit. Every failure is a *Failure.
func (s *Service) PlaceOrder(ctx context.Context, req Request) (*Result, error) {
	start := s.now()
	res, err := s.placeOrder(ctx, req)
	s.observe(start, err)
	return res, err
}

func (s *Service) placeOrder(ctx context.Context, req Request) (*Result, error) {
	if req.UserID == "" {
		return nil, ErrMissingUser
	}

	c, err := s.carts.Load(ctx, req.SessionID)
	if err != nil {
		return nil, transactionFailed(err)
	}
	if c.IsEmpty() {
		return nil, emptyCart()
	}
	lines := c.Lines()

	products, err := s.catalog.FindProductsByID(ctx, c.ProductIDs())
	if err != nil {
		return nil, transactionFailed(fmt.Errorf("load products: %w", err))
	}
	if f := precheck(lines, products); f != nil {
		return nil, f
	}

	o := &order.Order{
		UserID:          req.UserID,
		OrderDate:       s.now().UTC(),
		TotalAmount:     c.Total(),
		Status:          order.StatusPending,
		ShippingAddress: req.ShippingAddress,
	}
	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return s.write(ctx, tx, o, lines)
	})
	if err != nil {
		var f *Failure
		if errors.As(err, &f) {
			return nil, f
		}
		s.logger.Error("checkout transaction rolled back",
			zap.String("session_id", req.SessionID),
			zap.String("user_id", req.UserID),
			zap.Error(err),
		)
		return nil, transactionFailed(err)
	}

	s.afterCommit(ctx, req, c, o)

	return &Result{
		Order:   o,
		Message: fmt.Sprintf("Order placed successfully! Order ID: #%s", o.ID),
	}, nil
}

// precheck reports the first line, in cart order, whose product is gone or
// short on stock.
func precheck(lines []cart.Line, products map[string]*product.Product) *Failure {
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			return productMissing(l.ProductID, l.Name)
		}
		if p.Stock < l.Quantity {
			return insufficientStock(l.ProductID, l.Name, p.Stock)
		}
	}
	return nil
}

func (s *Service) write(ctx context.Context, tx Tx, o *order.Order, lines []cart.Line) error {
	id, err := tx.CreateOrder(ctx, o)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	o.ID = id

	for _, l := range lines {
		if err := tx.DecrementStock(ctx, l.ProductID, l.Quantity); err != nil {
			var short *product.ShortageError
			switch {
			case errors.As(err, &short):
				return insufficientStock(l.ProductID, l.Name, short.Available)
			case errors.Is(err, product.ErrProductNotFound):
				return productMissing(l.ProductID, l.Name)
			default:
				return fmt.Errorf("decrement stock for %s: %w", l.ProductID, err)
			}
		}
		item := order.Item{
			ProductID:   l.ProductID,
			ProductName: l.Name,
			Quantity:    l.Quantity,
			Price:       l.UnitPrice,
		}
		if err := tx.AddOrderItems(ctx, o.ID, []order.Item{item}); err != nil {
			return fmt.Errorf("add order item %s: %w", l.ProductID, err)
		}
		o.Items = append(o.Items, item)
	}

	if err := tx.EnqueueEvent(ctx, order.EventOrderPlaced, o.ID, order.NewOrderPlaced(o)); err != nil {
		return fmt.Errorf("enqueue %s: %w", order.EventOrderPlaced, err)
	}
	return nil
}

// afterCommit runs the secondary effects of a committed order. They run even
// if the request is cancelled, and their failures never undo the order.
func (s *Service) afterCommit(ctx context.Context, req Request, c *cart.Cart, o *order.Order) {
	ctx = context.WithoutCancel(ctx)

	if req.ShippingAddress != "" && s.identity != nil {
		if err := s.identity.UpdateAddress(ctx, req.UserID, req.ShippingAddress); err != nil {
			s.logger.Warn("order placed without saving shipping address",
				zap.String("order_id", o.ID),
				zap.String("user_id", req.UserID),
				zap.Error(&Failure{Kind: ErrAddressUpdate, Err: err}),
			)
		}
	}

	c.Clear()
	if err := s.carts.Save(ctx, req.SessionID, c); err != nil {
		s.logger.Warn("order placed but cart was not cleared",
			zap.String("order_id", o.ID),
			zap.String("session_id", req.SessionID),
			zap.Error(err),
		)
	}

	s.logger.Info("order placed",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.UserID),
		zap.String("total", o.TotalAmount.StringFixed(2)),
		zap.Int("items", len(o.Items)),
	)
}

func (s *Service) observe(start time.Time, err error) {
	if s.recorder == nil {
		return
	}
	s.recorder.ObserveCheckout(Outcome(err), s.now().Sub(start))
}

// Outcome labels a checkout result for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrProductMissing):
		return "product_missing"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrTransaction):
		return "transaction_error"
	default:
		return "rejected"
	}
}
