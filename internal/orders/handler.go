package orders

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/akbansal/sweetshop/internal/access"
	"github.com/akbansal/sweetshop/internal/domain"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

type placeOrderRequest struct {
	DeliveryAddress string `json:"delivery_address"`
	PaymentMethod   string `json:"payment_method"`
}

func (h *Handler) HandlePlace(w http.ResponseWriter, r *http.Request) {
	id, ok := access.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.service.Place(r.Context(), id.UserID, req.DeliveryAddress, req.PaymentMethod)
	if err != nil {
		h.respondError(w, err, "place order", "user_id", id.UserID)
		return
	}

	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	id, ok := access.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	orders, err := h.service.ListMine(r.Context(), id.UserID)
	if err != nil {
		h.respondError(w, err, "list orders", "user_id", id.UserID)
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) HandleListAll(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListAll(r.Context())
	if err != nil {
		h.respondError(w, err, "list all orders")
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := access.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	orderID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.service.Get(r.Context(), orderID, id.UserID, id.Admin())
	if err != nil {
		h.respondError(w, err, "get order", "order_id", orderID)
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

type updateStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.service.SetStatus(r.Context(), orderID, req.Status)
	if err != nil {
		h.respondError(w, err, "update order status", "order_id", orderID)
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := access.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	orderID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.service.Cancel(r.Context(), id.UserID, orderID)
	if err != nil {
		h.respondError(w, err, "cancel order", "order_id", orderID)
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

// respondError maps workflow errors onto the HTTP contract. Anything not a
// known kind is logged and hidden behind a 500.
func (h *Handler) respondError(w http.ResponseWriter, err error, op string, logArgs ...any) {
	var validation *domain.ValidationError
	var insufficient *domain.InsufficientStockError

	switch {
	case errors.As(err, &validation):
		h.writeError(w, http.StatusBadRequest, validation.Message)
	case errors.Is(err, domain.ErrEmptyCart):
		h.writeError(w, http.StatusBadRequest, "cart is empty")
	case errors.As(err, &insufficient):
		h.writeError(w, http.StatusBadRequest, insufficient.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		h.writeError(w, http.StatusBadRequest, "cannot cancel order in current status")
	case errors.Is(err, domain.ErrForbidden):
		h.writeError(w, http.StatusForbidden, "access denied")
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, domain.ErrStockConflict):
		h.writeError(w, http.StatusConflict, "stock changed, please retry")
	default:
		h.logger.Error("failed to "+op, append([]any{"error", err}, logArgs...)...)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
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
