package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/akbansal/sweetshop/internal/domain"
	"github.com/akbansal/sweetshop/internal/telemetry"
)

// CartStore is the slice of the cart the workflow needs.
type CartStore interface {
	Get(ctx context.Context, userID uuid.UUID) (*domain.Cart, error)
	Clear(ctx context.Context, userID uuid.UUID) error
}

// StockStore is the slice of the catalog the workflow needs. Reserve must be
// atomic per product: decrement only if enough stock remains, as one
// indivisible step.
type StockStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	Reserve(ctx context.Context, productID uuid.UUID, quantity int) error
	Release(ctx context.Context, productID uuid.UUID, quantity int) error
}

type OrderStore interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Order, error)
	ListAll(ctx context.Context) ([]domain.OrderWithOwner, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error)
	CancelPending(ctx context.Context, id uuid.UUID) (bool, error)
}

// UserStore resolves owner contact details for outgoing events.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Service runs the order workflow: cart → immutable order snapshot with
// stock reservation, and the status lifecycle afterwards.
type Service struct {
	orders    OrderStore
	carts     CartStore
	stock     StockStore
	users     UserStore
	placed    Publisher
	cancelled Publisher
	metrics   *telemetry.OrderMetrics
	logger    *slog.Logger
}

func NewService(orders OrderStore, carts CartStore, stock StockStore, users UserStore, logger *slog.Logger) *Service {
	return &Service{
		orders: orders,
		carts:  carts,
		stock:  stock,
		users:  users,
		logger: logger,
	}
}

// WithPublishers attaches the event producers. Either may be nil; events are
// then skipped.
func (s *Service) WithPublishers(placed, cancelled Publisher) *Service {
	s.placed = placed
	s.cancelled = cancelled
	return s
}

func (s *Service) WithMetrics(m *telemetry.OrderMetrics) *Service {
	s.metrics = m
	return s
}

// Place turns the user's cart into an order. Stock is committed first, one
// atomic conditional decrement per product, then the order is persisted and
// the cart cleared. Any failure along the way releases whatever was already
// reserved, so a failed placement leaves cart, orders, and stock untouched.
func (s *Service) Place(ctx context.Context, userID uuid.UUID, deliveryAddress, paymentMethod string) (*domain.Order, error) {
	if strings.TrimSpace(deliveryAddress) == "" {
		return nil, domain.Validationf("delivery address is required")
	}
	if strings.TrimSpace(paymentMethod) == "" {
		return nil, domain.Validationf("payment method is required")
	}

	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if cart.IsEmpty() {
		return nil, domain.ErrEmptyCart
	}

	// Pass 1: validate against current stock and snapshot current
	// name/price per line. Nothing is mutated yet, so a shortfall here
	// rejects the whole placement for free.
	items := make([]domain.OrderItem, 0, len(cart.Items))
	total := decimal.Zero
	for _, line := range cart.Items {
		product, err := s.stock.GetByID(ctx, line.ProductID)
		if err != nil {
			return nil, fmt.Errorf("load product %s: %w", line.ProductID, err)
		}
		if product == nil || product.Stock < line.Quantity {
			name := line.Name
			if product != nil {
				name = product.Name
			}
			return nil, &domain.InsufficientStockError{ProductName: name}
		}

		items = append(items, domain.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  line.Quantity,
		})
		total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	// Pass 2: commit stock. A decrement can still lose to a concurrent
	// placement; on the first loss every already-reserved line is released
	// before the error surfaces.
	reserved := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		if err := s.stock.Reserve(ctx, item.ProductID, item.Quantity); err != nil {
			s.release(ctx, reserved)
			if errors.Is(err, domain.ErrStockConflict) {
				s.metrics.StockConflict(ctx)
				s.logger.Warn("placement lost stock race", "user_id", userID, "product_id", item.ProductID)
				return nil, domain.ErrStockConflict
			}
			return nil, fmt.Errorf("reserve stock for %s: %w", item.ProductID, err)
		}
		reserved = append(reserved, item)
	}

	order := &domain.Order{
		UserID:          userID,
		Items:           items,
		Total:           total,
		Status:          domain.OrderStatusPending,
		DeliveryAddress: deliveryAddress,
		PaymentMethod:   paymentMethod,
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.orders.Create(ctx, order); err != nil {
		s.release(ctx, reserved)
		return nil, fmt.Errorf("persist order: %w", err)
	}

	if err := s.carts.Clear(ctx, userID); err != nil {
		// The order and its stock are committed; a stale cart is the
		// lesser evil and clears on the next mutation.
		s.logger.Error("failed to clear cart after placement", "error", err, "user_id", userID, "order_id", order.ID)
	}

	s.publish(ctx, s.placed, order.ID, domain.OrderPlacedEvent{
		OrderID:    order.ID,
		UserID:     order.UserID,
		OwnerEmail: s.ownerEmail(ctx, order.UserID),
		Items:      order.Items,
		Total:      order.Total,
		Timestamp:  order.CreatedAt,
	})
	s.metrics.OrderPlaced(ctx)

	s.logger.Info("order placed", "order_id", order.ID, "user_id", userID, "total", order.Total)
	return order, nil
}

// Cancel is the owner-only pending → cancelled transition with compensating
// restock. It is the sole path returning committed stock to the catalog.
func (s *Service) Cancel(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}
	if order.UserID != userID {
		return nil, domain.ErrForbidden
	}

	cancelled, err := s.orders.CancelPending(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("cancel order: %w", err)
	}
	if !cancelled {
		return nil, domain.ErrInvalidTransition
	}

	s.release(ctx, order.Items)

	order.Status = domain.OrderStatusCancelled

	s.publish(ctx, s.cancelled, order.ID, domain.OrderCancelledEvent{
		OrderID:    order.ID,
		UserID:     order.UserID,
		OwnerEmail: s.ownerEmail(ctx, order.UserID),
		Items:      order.Items,
		Timestamp:  time.Now().UTC(),
	})
	s.metrics.OrderCancelled(ctx)

	s.logger.Info("order cancelled", "order_id", order.ID, "user_id", userID)
	return order, nil
}

// Get enforces the ownership rule: owners and admins only.
func (s *Service) Get(ctx context.Context, orderID, callerID uuid.UUID, callerIsAdmin bool) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}
	if order.UserID != callerID && !callerIsAdmin {
		return nil, domain.ErrForbidden
	}
	return order, nil
}

func (s *Service) ListMine(ctx context.Context, userID uuid.UUID) ([]domain.Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

func (s *Service) ListAll(ctx context.Context) ([]domain.OrderWithOwner, error) {
	return s.orders.ListAll(ctx)
}

// SetStatus is the admin overwrite: any known status, no transition check.
func (s *Service) SetStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus) (*domain.Order, error) {
	if !status.Valid() {
		return nil, domain.Validationf("unknown status %q", status)
	}

	order, err := s.orders.UpdateStatus(ctx, orderID, status)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}

	s.logger.Info("order status updated", "order_id", order.ID, "status", order.Status)
	return order, nil
}

// release increments stock back for each item. Failures are logged and the
// remaining items still released; a lost increment here means stock leaked
// low, never negative.
func (s *Service) release(ctx context.Context, items []domain.OrderItem) {
	for _, item := range items {
		if err := s.stock.Release(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("failed to release stock", "error", err, "product_id", item.ProductID, "quantity", item.Quantity)
		}
	}
}

func (s *Service) ownerEmail(ctx context.Context, userID uuid.UUID) string {
	if s.users == nil {
		return ""
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.logger.Error("failed to resolve order owner", "error", err, "user_id", userID)
		return ""
	}
	if user == nil {
		return ""
	}
	return user.Email
}

func (s *Service) publish(ctx context.Context, p Publisher, orderID uuid.UUID, event any) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, orderID.String(), event); err != nil {
		s.logger.Error("failed to publish order event", "error", err, "order_id", orderID)
	}
}
