package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akbansal/sweetshop/internal/access"
	"github.com/akbansal/sweetshop/internal/domain"
)

type fakeStore struct {
	carts map[uuid.UUID]*domain.Cart
}

func newFakeStore() *fakeStore {
	return &fakeStore{carts: make(map[uuid.UUID]*domain.Cart)}
}

func (s *fakeStore) cart(userID uuid.UUID) *domain.Cart {
	if c, ok := s.carts[userID]; ok {
		return c
	}
	c := &domain.Cart{UserID: userID, Items: []domain.CartItem{}}
	s.carts[userID] = c
	return c
}

func (s *fakeStore) Get(_ context.Context, userID uuid.UUID) (*domain.Cart, error) {
	c := s.cart(userID)
	cp := *c
	cp.Items = append([]domain.CartItem(nil), c.Items...)
	cp.Total = decimal.Zero
	for i := range cp.Items {
		cp.Items[i].Subtotal = cp.Items[i].UnitPrice.Mul(decimal.NewFromInt(int64(cp.Items[i].Quantity)))
		cp.Total = cp.Total.Add(cp.Items[i].Subtotal)
	}
	return &cp, nil
}

func (s *fakeStore) UpsertItem(_ context.Context, userID, productID uuid.UUID, quantity int) error {
	c := s.cart(userID)
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity = quantity
			return nil
		}
	}
	c.Items = append(c.Items, domain.CartItem{
		ID:        uuid.New(),
		ProductID: productID,
		Quantity:  quantity,
	})
	return nil
}

func (s *fakeStore) UpdateItem(_ context.Context, userID, itemID uuid.UUID, quantity int) (bool, error) {
	c := s.cart(userID)
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items[i].Quantity = quantity
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) RemoveItem(_ context.Context, userID, itemID uuid.UUID) (bool, error) {
	c := s.cart(userID)
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) Clear(_ context.Context, userID uuid.UUID) error {
	s.cart(userID).Items = nil
	return nil
}

type fakeProducts struct {
	products map[uuid.UUID]*domain.Product
}

func (s *fakeProducts) GetByID(_ context.Context, id uuid.UUID) (*domain.Product, error) {
	if p, ok := s.products[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

type cartFixture struct {
	h        *Handler
	store    *fakeStore
	products *fakeProducts
	userID   uuid.UUID
}

func newCartFixture(products ...*domain.Product) *cartFixture {
	f := &cartFixture{
		store:    newFakeStore(),
		products: &fakeProducts{products: make(map[uuid.UUID]*domain.Product)},
		userID:   uuid.New(),
	}
	for _, p := range products {
		f.products.products[p.ID] = p
	}
	f.h = NewHandler(f.store, f.products, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func (f *cartFixture) request(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			panic(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	ctx := access.WithIdentity(req.Context(), access.Identity{UserID: f.userID, Role: access.RoleCustomer})
	return req.WithContext(ctx)
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) domain.Cart {
	t.Helper()
	var cart domain.Cart
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cart))
	return cart
}

func TestHandleGetRequiresIdentity(t *testing.T) {
	f := newCartFixture()

	rec := httptest.NewRecorder()
	f.h.HandleGet(rec, httptest.NewRequest(http.MethodGet, "/cart", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleGetEmptyCart(t *testing.T) {
	f := newCartFixture()

	rec := httptest.NewRecorder()
	f.h.HandleGet(rec, f.request(http.MethodGet, "/cart", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	cart := decodeCart(t, rec)
	assert.Empty(t, cart.Items)
	assert.True(t, cart.Total.IsZero())
}

func TestHandleAddItem(t *testing.T) {
	ladoo := &domain.Product{ID: uuid.New(), Name: "Motichoor Ladoo", Price: decimal.NewFromInt(10), Stock: 5}

	t.Run("adds a line", func(t *testing.T) {
		f := newCartFixture(ladoo)

		rec := httptest.NewRecorder()
		f.h.HandleAddItem(rec, f.request(http.MethodPost, "/cart/items", map[string]any{
			"product_id": ladoo.ID,
			"quantity":   2,
		}))

		require.Equal(t, http.StatusOK, rec.Code)
		cart := decodeCart(t, rec)
		require.Len(t, cart.Items, 1)
		assert.Equal(t, 2, cart.Items[0].Quantity)
	})

	t.Run("repeated add grows the same line", func(t *testing.T) {
		f := newCartFixture(ladoo)

		for range 2 {
			rec := httptest.NewRecorder()
			f.h.HandleAddItem(rec, f.request(http.MethodPost, "/cart/items", map[string]any{
				"product_id": ladoo.ID,
				"quantity":   2,
			}))
			require.Equal(t, http.StatusOK, rec.Code)
		}

		cart, err := f.store.Get(context.Background(), f.userID)
		require.NoError(t, err)
		require.Len(t, cart.Items, 1)
		assert.Equal(t, 4, cart.Items[0].Quantity)
	})

	t.Run("rejects quantity beyond stock", func(t *testing.T) {
		f := newCartFixture(ladoo)

		rec := httptest.NewRecorder()
		f.h.HandleAddItem(rec, f.request(http.MethodPost, "/cart/items", map[string]any{
			"product_id": ladoo.ID,
			"quantity":   6,
		}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("combined quantity beyond stock", func(t *testing.T) {
		f := newCartFixture(ladoo)

		rec := httptest.NewRecorder()
		f.h.HandleAddItem(rec, f.request(http.MethodPost, "/cart/items", map[string]any{
			"product_id": ladoo.ID,
			"quantity":   3,
		}))
		require.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		f.h.HandleAddItem(rec, f.request(http.MethodPost, "/cart/items", map[string]any{
			"product_id": ladoo.ID,
			"quantity":   3,
		}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown product", func(t *testing.T) {
		f := newCartFixture()

		rec := httptest.NewRecorder()
		f.h.HandleAddItem(rec, f.request(http.MethodPost, "/cart/items", map[string]any{
			"product_id": uuid.New(),
			"quantity":   1,
		}))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("non-positive quantity", func(t *testing.T) {
		f := newCartFixture(ladoo)

		rec := httptest.NewRecorder()
		f.h.HandleAddItem(rec, f.request(http.MethodPost, "/cart/items", map[string]any{
			"product_id": ladoo.ID,
			"quantity":   0,
		}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleUpdateItem(t *testing.T) {
	ladoo := &domain.Product{ID: uuid.New(), Name: "Motichoor Ladoo", Price: decimal.NewFromInt(10), Stock: 5}
	f := newCartFixture(ladoo)
	require.NoError(t, f.store.UpsertItem(context.Background(), f.userID, ladoo.ID, 2))
	itemID := f.store.cart(f.userID).Items[0].ID

	t.Run("sets new quantity", func(t *testing.T) {
		req := f.request(http.MethodPut, "/cart/items/"+itemID.String(), map[string]any{"quantity": 4})
		req.SetPathValue("itemId", itemID.String())

		rec := httptest.NewRecorder()
		f.h.HandleUpdateItem(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		cart := decodeCart(t, rec)
		require.Len(t, cart.Items, 1)
		assert.Equal(t, 4, cart.Items[0].Quantity)
	})

	t.Run("rejects quantity beyond stock", func(t *testing.T) {
		req := f.request(http.MethodPut, "/cart/items/"+itemID.String(), map[string]any{"quantity": 6})
		req.SetPathValue("itemId", itemID.String())

		rec := httptest.NewRecorder()
		f.h.HandleUpdateItem(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown item", func(t *testing.T) {
		other := uuid.NewString()
		req := f.request(http.MethodPut, "/cart/items/"+other, map[string]any{"quantity": 1})
		req.SetPathValue("itemId", other)

		rec := httptest.NewRecorder()
		f.h.HandleUpdateItem(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleRemoveItem(t *testing.T) {
	ladoo := &domain.Product{ID: uuid.New(), Name: "Motichoor Ladoo", Price: decimal.NewFromInt(10), Stock: 5}
	f := newCartFixture(ladoo)
	require.NoError(t, f.store.UpsertItem(context.Background(), f.userID, ladoo.ID, 2))
	itemID := f.store.cart(f.userID).Items[0].ID

	req := f.request(http.MethodDelete, "/cart/items/"+itemID.String(), nil)
	req.SetPathValue("itemId", itemID.String())

	rec := httptest.NewRecorder()
	f.h.HandleRemoveItem(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	cart := decodeCart(t, rec)
	assert.Empty(t, cart.Items)

	rec = httptest.NewRecorder()
	f.h.HandleRemoveItem(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleClear(t *testing.T) {
	ladoo := &domain.Product{ID: uuid.New(), Name: "Motichoor Ladoo", Price: decimal.NewFromInt(10), Stock: 5}
	f := newCartFixture(ladoo)
	require.NoError(t, f.store.UpsertItem(context.Background(), f.userID, ladoo.ID, 2))

	rec := httptest.NewRecorder()
	f.h.HandleClear(rec, f.request(http.MethodDelete, "/cart", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	cart := decodeCart(t, rec)
	assert.Empty(t, cart.Items)
	assert.True(t, cart.Total.IsZero())
}
