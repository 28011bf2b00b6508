package orders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akbansal/sweetshop/internal/domain"
)

type fakeStockStore struct {
	mu       sync.Mutex
	products map[uuid.UUID]*domain.Product
}

func newFakeStockStore(products ...*domain.Product) *fakeStockStore {
	s := &fakeStockStore{
		products: make(map[uuid.UUID]*domain.Product),
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *fakeStockStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStockStore) Reserve(_ context.Context, productID uuid.UUID, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok || p.Stock < quantity {
		return domain.ErrStockConflict
	}
	p.Stock -= quantity
	return nil
}

func (s *fakeStockStore) Release(_ context.Context, productID uuid.UUID, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return domain.ErrNotFound
	}
	p.Stock += quantity
	return nil
}

func (s *fakeStockStore) stock(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].Stock
}

type fakeCartStore struct {
	mu      sync.Mutex
	carts   map[uuid.UUID]*domain.Cart
	cleared int
}

func newFakeCartStore() *fakeCartStore {
	return &fakeCartStore{carts: make(map[uuid.UUID]*domain.Cart)}
}

func (s *fakeCartStore) Get(_ context.Context, userID uuid.UUID) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.carts[userID]; ok {
		cp := *c
		cp.Items = append([]domain.CartItem(nil), c.Items...)
		return &cp, nil
	}
	return &domain.Cart{UserID: userID, Items: []domain.CartItem{}, Total: decimal.Zero}, nil
}

func (s *fakeCartStore) Clear(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.carts[userID]; ok {
		c.Items = nil
	}
	s.cleared++
	return nil
}

func (s *fakeCartStore) put(userID uuid.UUID, items ...domain.CartItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[userID] = &domain.Cart{UserID: userID, Items: items}
}

type fakeOrderStore struct {
	mu        sync.Mutex
	orders    map[uuid.UUID]*domain.Order
	createErr error
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: make(map[uuid.UUID]*domain.Order)}
}

func (s *fakeOrderStore) Create(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	order.ID = uuid.New()
	cp := *order
	cp.Items = append([]domain.OrderItem(nil), order.Items...)
	s.orders[order.ID] = &cp
	return nil
}

func (s *fakeOrderStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	return &cp, nil
}

func (s *fakeOrderStore) ListByUser(_ context.Context, userID uuid.UUID) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *fakeOrderStore) ListAll(_ context.Context) ([]domain.OrderWithOwner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.OrderWithOwner
	for _, o := range s.orders {
		out = append(out, domain.OrderWithOwner{Order: *o})
	}
	return out, nil
}

func (s *fakeOrderStore) UpdateStatus(_ context.Context, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	o.Status = status
	cp := *o
	return &cp, nil
}

func (s *fakeOrderStore) CancelPending(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status != domain.OrderStatusPending {
		return false, nil
	}
	o.Status = domain.OrderStatusCancelled
	return true, nil
}

type fakeUserStore struct {
	users map[uuid.UUID]*domain.User
}

func (s *fakeUserStore) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *fakePublisher) Publish(_ context.Context, _ string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type serviceFixture struct {
	svc       *Service
	orders    *fakeOrderStore
	carts     *fakeCartStore
	stock     *fakeStockStore
	placed    *fakePublisher
	cancelled *fakePublisher
	userID    uuid.UUID
}

func newServiceFixture(t *testing.T, products ...*domain.Product) *serviceFixture {
	t.Helper()

	userID := uuid.New()
	f := &serviceFixture{
		orders:    newFakeOrderStore(),
		carts:     newFakeCartStore(),
		stock:     newFakeStockStore(products...),
		placed:    &fakePublisher{},
		cancelled: &fakePublisher{},
		userID:    userID,
	}

	users := &fakeUserStore{users: map[uuid.UUID]*domain.User{
		userID: {ID: userID, Username: "priya", Email: "priya@example.com", Role: "customer"},
	}}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewService(f.orders, f.carts, f.stock, users, logger).
		WithPublishers(f.placed, f.cancelled)
	return f
}

func product(name string, price int64, stock int) *domain.Product {
	return &domain.Product{
		ID:    uuid.New(),
		Name:  name,
		Price: decimal.NewFromInt(price),
		Stock: stock,
	}
}

func cartLine(p *domain.Product, quantity int) domain.CartItem {
	return domain.CartItem{
		ID:        uuid.New(),
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Quantity:  quantity,
	}
}

func TestPlaceValidation(t *testing.T) {
	f := newServiceFixture(t)

	var validation *domain.ValidationError

	_, err := f.svc.Place(context.Background(), f.userID, "  ", "cash")
	require.ErrorAs(t, err, &validation)

	_, err = f.svc.Place(context.Background(), f.userID, "12 Park St", "")
	require.ErrorAs(t, err, &validation)
}

func TestPlaceEmptyCart(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Place(context.Background(), f.userID, "12 Park St", "cash")
	require.ErrorIs(t, err, domain.ErrEmptyCart)
	assert.Empty(t, f.orders.orders)
}

func TestPlaceInsufficientStock(t *testing.T) {
	ladoo := product("Motichoor Ladoo", 10, 2)
	f := newServiceFixture(t, ladoo)
	f.carts.put(f.userID, cartLine(ladoo, 3))

	_, err := f.svc.Place(context.Background(), f.userID, "12 Park St", "cash")

	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "Motichoor Ladoo", insufficient.ProductName)

	// Nothing moved: stock intact, no order, cart untouched.
	assert.Equal(t, 2, f.stock.stock(ladoo.ID))
	assert.Empty(t, f.orders.orders)
	assert.Zero(t, f.carts.cleared)
	assert.Zero(t, f.placed.count())
}

func TestPlaceSuccess(t *testing.T) {
	ladoo := product("Motichoor Ladoo", 10, 5)
	barfi := product("Kaju Barfi", 25, 4)
	f := newServiceFixture(t, ladoo, barfi)
	f.carts.put(f.userID, cartLine(ladoo, 3), cartLine(barfi, 1))

	order, err := f.svc.Place(context.Background(), f.userID, "12 Park St", "cash")
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.True(t, order.Total.Equal(decimal.NewFromInt(55)), "total = %s", order.Total)
	require.Len(t, order.Items, 2)
	assert.Equal(t, "Motichoor Ladoo", order.Items[0].Name)
	assert.True(t, order.Items[0].Price.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, 3, order.Items[0].Quantity)

	assert.Equal(t, 2, f.stock.stock(ladoo.ID))
	assert.Equal(t, 3, f.stock.stock(barfi.ID))
	assert.Equal(t, 1, f.carts.cleared)

	cart, err := f.carts.Get(context.Background(), f.userID)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())

	require.Equal(t, 1, f.placed.count())
	event, ok := f.placed.events[0].(domain.OrderPlacedEvent)
	require.True(t, ok)
	assert.Equal(t, order.ID, event.OrderID)
	assert.Equal(t, "priya@example.com", event.OwnerEmail)
}

func TestPlaceSnapshotsCurrentPrice(t *testing.T) {
	ladoo := product("Motichoor Ladoo", 10, 5)
	f := newServiceFixture(t, ladoo)

	// The cart was filled when the price was different; placement snapshots
	// the catalog's current price, not the cart's stale one.
	stale := cartLine(ladoo, 2)
	stale.UnitPrice = decimal.NewFromInt(7)
	f.carts.put(f.userID, stale)

	order, err := f.svc.Place(context.Background(), f.userID, "12 Park St", "upi")
	require.NoError(t, err)
	assert.True(t, order.Items[0].Price.Equal(decimal.NewFromInt(10)))
	assert.True(t, order.Total.Equal(decimal.NewFromInt(20)))
}

func TestPlaceReleasesOnPersistFailure(t *testing.T) {
	ladoo := product("Motichoor Ladoo", 10, 5)
	barfi := product("Kaju Barfi", 25, 4)
	f := newServiceFixture(t, ladoo, barfi)
	f.carts.put(f.userID, cartLine(ladoo, 2), cartLine(barfi, 1))
	f.orders.createErr = errors.New("connection reset")

	_, err := f.svc.Place(context.Background(), f.userID, "12 Park St", "cash")
	require.Error(t, err)

	// Both reservations rolled back.
	assert.Equal(t, 5, f.stock.stock(ladoo.ID))
	assert.Equal(t, 4, f.stock.stock(barfi.ID))
	assert.Zero(t, f.carts.cleared)
	assert.Zero(t, f.placed.count())
}

func TestPlaceCompensatesLostReservation(t *testing.T) {
	ladoo := product("Motichoor Ladoo", 10, 5)
	barfi := product("Kaju Barfi", 25, 1)
	f := newServiceFixture(t, ladoo, barfi)
	f.carts.put(f.userID, cartLine(ladoo, 2), cartLine(barfi, 1))

	// Concurrent shopper takes the last barfi between validation and
	// reservation: drain it behind the service's back after wiring the cart.
	require.NoError(t, f.stock.Reserve(context.Background(), barfi.ID, 1))

	_, err := f.svc.Place(context.Background(), f.userID, "12 Park St", "cash")

	// Pre-validation already sees the drained stock here, so the failure can
	// surface as either kind; state must be untouched either way.
	var insufficient *domain.InsufficientStockError
	if !errors.As(err, &insufficient) {
		require.ErrorIs(t, err, domain.ErrStockConflict)
	}

	assert.Equal(t, 5, f.stock.stock(ladoo.ID))
	assert.Equal(t, 0, f.stock.stock(barfi.ID))
	assert.Empty(t, f.orders.orders)
}

func TestPlaceConcurrentContention(t *testing.T) {
	barfi := product("Kaju Barfi", 25, 1)

	f1 := newServiceFixture(t, barfi)
	// Second buyer shares the same catalog.
	f2 := newServiceFixture(t)
	f2.stock = f1.stock
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f2.svc = NewService(f2.orders, f2.carts, f1.stock, &fakeUserStore{users: map[uuid.UUID]*domain.User{}}, logger)

	f1.carts.put(f1.userID, cartLine(barfi, 1))
	f2.carts.put(f2.userID, cartLine(barfi, 1))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = f1.svc.Place(context.Background(), f1.userID, "12 Park St", "cash")
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = f2.svc.Place(context.Background(), f2.userID, "9 Lake Rd", "card")
	}()
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var insufficient *domain.InsufficientStockError
		if !errors.As(err, &insufficient) {
			require.ErrorIs(t, err, domain.ErrStockConflict)
		}
	}

	assert.Equal(t, 1, succeeded, "exactly one placement must win")
	assert.Equal(t, 0, f1.stock.stock(barfi.ID))
}

func TestCancel(t *testing.T) {
	ladoo := product("Motichoor Ladoo", 10, 5)
	f := newServiceFixture(t, ladoo)
	f.carts.put(f.userID, cartLine(ladoo, 3))

	order, err := f.svc.Place(context.Background(), f.userID, "12 Park St", "cash")
	require.NoError(t, err)
	require.Equal(t, 2, f.stock.stock(ladoo.ID))

	t.Run("stranger cannot cancel", func(t *testing.T) {
		_, err := f.svc.Cancel(context.Background(), uuid.New(), order.ID)
		require.ErrorIs(t, err, domain.ErrForbidden)
		assert.Equal(t, 2, f.stock.stock(ladoo.ID))
	})

	t.Run("unknown order", func(t *testing.T) {
		_, err := f.svc.Cancel(context.Background(), f.userID, uuid.New())
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("owner cancels pending order and stock returns", func(t *testing.T) {
		cancelled, err := f.svc.Cancel(context.Background(), f.userID, order.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
		assert.Equal(t, 5, f.stock.stock(ladoo.ID))
		assert.Equal(t, 1, f.cancelled.count())

		stored, err := f.orders.GetByID(context.Background(), order.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusCancelled, stored.Status)
	})

	t.Run("second cancel is rejected without restock", func(t *testing.T) {
		_, err := f.svc.Cancel(context.Background(), f.userID, order.ID)
		require.ErrorIs(t, err, domain.ErrInvalidTransition)
		assert.Equal(t, 5, f.stock.stock(ladoo.ID))
		assert.Equal(t, 1, f.cancelled.count())
	})
}

func TestCancelNonPending(t *testing.T) {
	ladoo := product("Motichoor Ladoo", 10, 5)
	f := newServiceFixture(t, ladoo)
	f.carts.put(f.userID, cartLine(ladoo, 2))

	order, err := f.svc.Place(context.Background(), f.userID, "12 Park St", "cash")
	require.NoError(t, err)

	_, err = f.svc.SetStatus(context.Background(), order.ID, domain.OrderStatusShipped)
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), f.userID, order.ID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, 3, f.stock.stock(ladoo.ID), "shipped order must not restock")
}

func TestGetOwnership(t *testing.T) {
	ladoo := product("Motichoor Ladoo", 10, 5)
	f := newServiceFixture(t, ladoo)
	f.carts.put(f.userID, cartLine(ladoo, 1))

	order, err := f.svc.Place(context.Background(), f.userID, "12 Park St", "cash")
	require.NoError(t, err)

	_, err = f.svc.Get(context.Background(), order.ID, f.userID, false)
	assert.NoError(t, err)

	_, err = f.svc.Get(context.Background(), order.ID, uuid.New(), true)
	assert.NoError(t, err, "admin may read any order")

	_, err = f.svc.Get(context.Background(), order.ID, uuid.New(), false)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.Get(context.Background(), uuid.New(), f.userID, false)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSetStatus(t *testing.T) {
	ladoo := product("Motichoor Ladoo", 10, 5)
	f := newServiceFixture(t, ladoo)
	f.carts.put(f.userID, cartLine(ladoo, 1))

	order, err := f.svc.Place(context.Background(), f.userID, "12 Park St", "cash")
	require.NoError(t, err)

	t.Run("rejects unknown status", func(t *testing.T) {
		var validation *domain.ValidationError
		_, err := f.svc.SetStatus(context.Background(), order.ID, "refunded")
		require.ErrorAs(t, err, &validation)
	})

	t.Run("unknown order", func(t *testing.T) {
		_, err := f.svc.SetStatus(context.Background(), uuid.New(), domain.OrderStatusShipped)
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("overwrites without transition check", func(t *testing.T) {
		updated, err := f.svc.SetStatus(context.Background(), order.ID, domain.OrderStatusDelivered)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusDelivered, updated.Status)

		// The admin escape hatch can even move backwards.
		updated, err = f.svc.SetStatus(context.Background(), order.ID, domain.OrderStatusProcessing)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusProcessing, updated.Status)
	})
}
