package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/ec-storefront/internal/checkout"
	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/domain/product"
	"github.com/example/ec-storefront/internal/domain/user"
	"github.com/example/ec-storefront/internal/outbox"
	"github.com/google/uuid"
)

// MemoryStore keeps catalog, orders, users and the outbox in process memory.
// Transactions hold the store lock for their whole duration, so writers are
// fully serialized.
type MemoryStore struct {
	mu sync.RWMutex

	products     map[string]*product.Product
	productOrder []string
	orders       map[string]*order.Order
	orderOrder   []string
	users        map[string]*user.User
	outbox       []outbox.Event
	now          func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[string]*product.Product),
		orders:   make(map[string]*order.Order),
		users:    make(map[string]*user.User),
		now:      time.Now,
	}
}

// ============================================
// Catalog
// ============================================

func (s *MemoryStore) FindProductByID(ctx context.Context, id string) (*product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, product.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) FindProductsByID(ctx context.Context, ids []string) (map[string]*product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*product.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (s *MemoryStore) ListProducts(ctx context.Context) ([]*product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*product.Product, 0, len(s.productOrder))
	for _, id := range s.productOrder {
		cp := *s.products[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) CreateProduct(ctx context.Context, p *product.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	cp := *p
	s.products[p.ID] = &cp
	s.productOrder = append(s.productOrder, p.ID)
	return nil
}

func (s *MemoryStore) UpdateProduct(ctx context.Context, p *product.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[p.ID]; !ok {
		return product.ErrProductNotFound
	}
	cp := *p
	s.products[p.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteProduct(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return product.ErrProductNotFound
	}
	for _, o := range s.orders {
		for _, it := range o.Items {
			if it.ProductID == id {
				return product.ErrProductInUse
			}
		}
	}
	delete(s.products, id)
	for i, pid := range s.productOrder {
		if pid == id {
			s.productOrder = append(s.productOrder[:i], s.productOrder[i+1:]...)
			break
		}
	}
	return nil
}

// UpdateProductStock applies an admin stock change and returns the new level.
func (s *MemoryStore) UpdateProductStock(ctx context.Context, id string, newStock, stockChange *int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return 0, product.ErrProductNotFound
	}
	if next, changed := product.NextStock(p.Stock, newStock, stockChange); changed {
		p.Stock = next
		p.UpdatedAt = s.now()
	}
	return p.Stock, nil
}

func (s *MemoryStore) LowStockProducts(ctx context.Context, threshold int) ([]*product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*product.Product
	for _, id := range s.productOrder {
		if p := s.products[id]; p.IsLowStock(threshold) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Stock < out[j].Stock })
	return out, nil
}

// ============================================
// Orders
// ============================================

// FindOrder returns the order only if it belongs to userID.
func (s *MemoryStore) FindOrder(ctx context.Context, id, userID string) (*order.Order, error) {
	o, err := s.FindOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, order.ErrOrderNotFound
	}
	return o, nil
}

func (s *MemoryStore) FindOrderByID(ctx context.Context, id string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

// ListOrdersByUser returns the user's orders, newest first.
func (s *MemoryStore) ListOrdersByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	return s.listOrders(func(o *order.Order) bool { return o.UserID == userID }), nil
}

func (s *MemoryStore) ListOrders(ctx context.Context) ([]*order.Order, error) {
	return s.listOrders(func(*order.Order) bool { return true }), nil
}

func (s *MemoryStore) listOrders(keep func(*order.Order) bool) []*order.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*order.Order
	for i := len(s.orderOrder) - 1; i >= 0; i-- {
		if o := s.orders[s.orderOrder[i]]; keep(o) {
			out = append(out, cloneOrder(o))
		}
	}
	return out
}

// UpdateOrderStatus moves an order from one status to another. It fails
// with order.ErrInvalidStatus if the order is no longer in status from.
func (s *MemoryStore) UpdateOrderStatus(ctx context.Context, id string, from, to order.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return order.ErrOrderNotFound
	}
	if o.Status != from {
		return order.ErrInvalidStatus
	}
	o.Status = to
	o.UpdatedAt = at
	return nil
}

func cloneOrder(o *order.Order) *order.Order {
	cp := *o
	cp.Items = append([]order.Item(nil), o.Items...)
	return &cp
}

// ============================================
// Users
// ============================================

func (s *MemoryStore) CreateUser(ctx context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == u.Email {
			return user.ErrEmailTaken
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) FindUserByEmail(ctx context.Context, email string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrUserNotFound
}

func (s *MemoryStore) FindUserByID(ctx context.Context, id string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) UpdateUserAddress(ctx context.Context, id, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return user.ErrUserNotFound
	}
	u.Address = address
	u.UpdatedAt = s.now()
	return nil
}

// ============================================
// Outbox
// ============================================

func (s *MemoryStore) FetchPending(ctx context.Context, limit int) ([]outbox.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit > len(s.outbox) {
		limit = len(s.outbox)
	}
	out := make([]outbox.Event, limit)
	copy(out, s.outbox[:limit])
	return out, nil
}

func (s *MemoryStore) MarkSent(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sent := make(map[string]bool, len(ids))
	for _, id := range ids {
		sent[id] = true
	}
	remaining := s.outbox[:0]
	for _, evt := range s.outbox {
		if !sent[evt.ID] {
			remaining = append(remaining, evt)
		}
	}
	s.outbox = remaining
	return nil
}

// ============================================
// Transactions
// ============================================

// WithinTx stages writes in a memoryTx and applies them only when fn
// succeeds and ctx has not been cancelled.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx checkout.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		store:  s,
		stock:  make(map[string]int),
		orders: make(map[string]*order.Order),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type memoryTx struct {
	store      *MemoryStore
	stock      map[string]int
	orders     map[string]*order.Order
	orderOrder []string
	events     []outbox.Event
}

func (tx *memoryTx) CreateOrder(ctx context.Context, o *order.Order) (string, error) {
	id := o.ID
	if id == "" {
		id = uuid.New().String()
	}
	cp := *o
	cp.ID = id
	cp.Items = nil
	tx.orders[id] = &cp
	tx.orderOrder = append(tx.orderOrder, id)
	return id, nil
}

func (tx *memoryTx) AddOrderItems(ctx context.Context, orderID string, items []order.Item) error {
	o, ok := tx.orders[orderID]
	if !ok {
		return order.ErrOrderNotFound
	}
	o.Items = append(o.Items, items...)
	return nil
}

func (tx *memoryTx) DecrementStock(ctx context.Context, productID string, quantity int) error {
	p, ok := tx.store.products[productID]
	if !ok {
		return product.ErrProductNotFound
	}
	current, staged := tx.stock[productID]
	if !staged {
		current = p.Stock
	}
	if current < quantity {
		return &product.ShortageError{ProductID: productID, Requested: quantity, Available: current}
	}
	tx.stock[productID] = current - quantity
	return nil
}

func (tx *memoryTx) EnqueueEvent(ctx context.Context, eventType, aggregateID string, payload any) error {
	evt, err := outbox.NewEvent(eventType, aggregateID, payload, tx.store.now())
	if err != nil {
		return err
	}
	tx.events = append(tx.events, evt)
	return nil
}

func (tx *memoryTx) commit() {
	s := tx.store
	now := s.now()
	for id, stock := range tx.stock {
		s.products[id].Stock = stock
		s.products[id].UpdatedAt = now
	}
	for _, id := range tx.orderOrder {
		s.orders[id] = tx.orders[id]
		s.orderOrder = append(s.orderOrder, id)
	}
	s.outbox = append(s.outbox, tx.events...)
}
