package orders

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/akbansal/sweetshop/internal/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	order.ID = uuid.New()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, total, status, delivery_address, payment_method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, order.ID, order.UserID, order.Total, order.Status, order.DeliveryAddress, order.PaymentMethod, order.CreatedAt)
	if err != nil {
		return err
	}

	for i := range order.Items {
		order.Items[i].ID = uuid.New()
		item := order.Items[i]
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, name, price, quantity)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, item.ID, order.ID, item.ProductID, item.Name, item.Price, item.Quantity)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order := &domain.Order{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, total, status, delivery_address, payment_method, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id).Scan(&order.ID, &order.UserID, &order.Total, &order.Status,
		&order.DeliveryAddress, &order.PaymentMethod, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, name, price, quantity
		FROM order_items
		WHERE order_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Name, &item.Price, &item.Quantity); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return order, nil
}

// ListByUser returns the user's orders, newest first, with items loaded in
// one batched query instead of one query per order.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, total, status, delivery_address, payment_method, created_at, updated_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[uuid.UUID]*domain.Order)
	var orderIDs []uuid.UUID

	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.UserID, &order.Total, &order.Status,
			&order.DeliveryAddress, &order.PaymentMethod, &order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, err
		}
		order.Items = []domain.OrderItem{}
		orderMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	if err := r.loadItems(ctx, orderMap, orderIDs); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

// ListAll returns every order, newest first, with the owner's username and
// email resolved for the admin view.
func (r *Repository) ListAll(ctx context.Context) ([]domain.OrderWithOwner, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT o.id, o.user_id, o.total, o.status, o.delivery_address, o.payment_method,
		       o.created_at, o.updated_at, u.username, u.email
		FROM orders o
		JOIN users u ON u.id = o.user_id
		ORDER BY o.created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[uuid.UUID]*domain.Order)
	owners := make(map[uuid.UUID][2]string)
	var orderIDs []uuid.UUID

	for rows.Next() {
		var order domain.Order
		var username, email string
		if err := rows.Scan(&order.ID, &order.UserID, &order.Total, &order.Status,
			&order.DeliveryAddress, &order.PaymentMethod, &order.CreatedAt, &order.UpdatedAt,
			&username, &email); err != nil {
			return nil, err
		}
		order.Items = []domain.OrderItem{}
		orderMap[order.ID] = &order
		owners[order.ID] = [2]string{username, email}
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.OrderWithOwner{}, nil
	}

	if err := r.loadItems(ctx, orderMap, orderIDs); err != nil {
		return nil, err
	}

	orders := make([]domain.OrderWithOwner, 0, len(orderIDs))
	for _, id := range orderIDs {
		owner := owners[id]
		orders = append(orders, domain.OrderWithOwner{
			Order:         *orderMap[id],
			OwnerUsername: owner[0],
			OwnerEmail:    owner[1],
		})
	}

	return orders, nil
}

func (r *Repository) loadItems(ctx context.Context, orderMap map[uuid.UUID]*domain.Order, orderIDs []uuid.UUID) error {
	ids := make([]string, len(orderIDs))
	for i, id := range orderIDs {
		ids[i] = id.String()
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, id, product_id, name, price, quantity
		FROM order_items
		WHERE order_id = ANY($1::uuid[])
	`, pq.Array(ids))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var orderID uuid.UUID
		var item domain.OrderItem
		if err := rows.Scan(&orderID, &item.ID, &item.ProductID, &item.Name, &item.Price, &item.Quantity); err != nil {
			return err
		}
		order := orderMap[orderID]
		order.Items = append(order.Items, item)
	}

	return rows.Err()
}

// UpdateStatus overwrites the status unconditionally. This is the admin
// escape hatch; owner-facing transitions go through CancelPending.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, id)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	if rowsAffected == 0 {
		return nil, nil
	}

	return r.GetByID(ctx, id)
}

// CancelPending flips a pending order to cancelled as one conditional update,
// so a cancellation racing another cancellation or an admin transition cannot
// restock twice.
func (r *Repository) CancelPending(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, domain.OrderStatusCancelled, id, domain.OrderStatusPending)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}
