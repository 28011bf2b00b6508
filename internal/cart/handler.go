package cart

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/akbansal/sweetshop/internal/access"
	"github.com/akbansal/sweetshop/internal/domain"
)

type Store interface {
	Get(ctx context.Context, userID uuid.UUID) (*domain.Cart, error)
	UpsertItem(ctx context.Context, userID, productID uuid.UUID, quantity int) error
	UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) (bool, error)
	RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (bool, error)
	Clear(ctx context.Context, userID uuid.UUID) error
}

// ProductGetter is the slice of the catalog the cart needs for existence and
// stock checks.
type ProductGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
}

type Handler struct {
	store    Store
	products ProductGetter
	logger   *slog.Logger
}

func NewHandler(store Store, products ProductGetter, logger *slog.Logger) *Handler {
	return &Handler{
		store:    store,
		products: products,
		logger:   logger,
	}
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := access.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	cart, err := h.store.Get(r.Context(), id.UserID)
	if err != nil {
		h.logger.Error("failed to get cart", "error", err, "user_id", id.UserID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, cart)
}

type addItemRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	id, ok := access.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Quantity <= 0 {
		h.writeError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}

	product, err := h.products.GetByID(r.Context(), req.ProductID)
	if err != nil {
		h.logger.Error("failed to get product", "error", err, "product_id", req.ProductID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if product == nil {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	cart, err := h.store.Get(r.Context(), id.UserID)
	if err != nil {
		h.logger.Error("failed to get cart", "error", err, "user_id", id.UserID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	// An existing line for the product grows by the requested quantity.
	quantity := req.Quantity
	for _, item := range cart.Items {
		if item.ProductID == req.ProductID {
			quantity += item.Quantity
			break
		}
	}

	if product.Stock < quantity {
		h.writeError(w, http.StatusBadRequest, (&domain.InsufficientStockError{ProductName: product.Name}).Error())
		return
	}

	if err := h.store.UpsertItem(r.Context(), id.UserID, req.ProductID, quantity); err != nil {
		h.logger.Error("failed to add cart item", "error", err, "user_id", id.UserID, "product_id", req.ProductID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.respondWithCart(w, r, id.UserID)
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) HandleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := access.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	itemID, err := uuid.Parse(r.PathValue("itemId"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Quantity <= 0 {
		h.writeError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}

	cart, err := h.store.Get(r.Context(), id.UserID)
	if err != nil {
		h.logger.Error("failed to get cart", "error", err, "user_id", id.UserID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	var line *domain.CartItem
	for i := range cart.Items {
		if cart.Items[i].ID == itemID {
			line = &cart.Items[i]
			break
		}
	}

	if line == nil {
		h.writeError(w, http.StatusNotFound, "item not found in cart")
		return
	}

	product, err := h.products.GetByID(r.Context(), line.ProductID)
	if err != nil {
		h.logger.Error("failed to get product", "error", err, "product_id", line.ProductID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if product == nil || product.Stock < req.Quantity {
		name := line.Name
		if product != nil {
			name = product.Name
		}
		h.writeError(w, http.StatusBadRequest, (&domain.InsufficientStockError{ProductName: name}).Error())
		return
	}

	updated, err := h.store.UpdateItem(r.Context(), id.UserID, itemID, req.Quantity)
	if err != nil {
		h.logger.Error("failed to update cart item", "error", err, "user_id", id.UserID, "item_id", itemID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if !updated {
		h.writeError(w, http.StatusNotFound, "item not found in cart")
		return
	}

	h.respondWithCart(w, r, id.UserID)
}

func (h *Handler) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := access.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	itemID, err := uuid.Parse(r.PathValue("itemId"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	removed, err := h.store.RemoveItem(r.Context(), id.UserID, itemID)
	if err != nil {
		h.logger.Error("failed to remove cart item", "error", err, "user_id", id.UserID, "item_id", itemID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if !removed {
		h.writeError(w, http.StatusNotFound, "item not found in cart")
		return
	}

	h.respondWithCart(w, r, id.UserID)
}

func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	id, ok := access.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.store.Clear(r.Context(), id.UserID); err != nil {
		h.logger.Error("failed to clear cart", "error", err, "user_id", id.UserID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.respondWithCart(w, r, id.UserID)
}

func (h *Handler) respondWithCart(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	cart, err := h.store.Get(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to reload cart", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, cart)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
