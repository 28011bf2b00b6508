package cart

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/akbansal/sweetshop/internal/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Get loads the user's cart with names, current unit prices and the derived
// total resolved from the catalog. A user without a cart row gets an empty
// cart; the row itself is created lazily on the first add.
func (r *Repository) Get(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ci.id, ci.product_id, p.name, p.price, ci.quantity
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_user_id = $1
		ORDER BY ci.created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cart := &domain.Cart{
		UserID: userID,
		Items:  []domain.CartItem{},
		Total:  decimal.Zero,
	}

	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Name, &item.UnitPrice, &item.Quantity); err != nil {
			return nil, err
		}
		item.Subtotal = item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		cart.Total = cart.Total.Add(item.Subtotal)
		cart.Items = append(cart.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return cart, nil
}

// UpsertItem sets the absolute quantity of the user's line for a product,
// creating the cart and the line as needed. The unique (cart, product)
// constraint keeps one line per product.
func (r *Repository) UpsertItem(ctx context.Context, userID, productID uuid.UUID, quantity int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO carts (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cart_items (id, cart_user_id, product_id, quantity, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cart_user_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity
	`, uuid.New(), userID, productID, quantity, time.Now().UTC())
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *Repository) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE cart_items SET quantity = $3
		WHERE cart_user_id = $1 AND id = $2
	`, userID, itemID, quantity)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

func (r *Repository) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE cart_user_id = $1 AND id = $2
	`, userID, itemID)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

// Clear empties the cart but keeps the cart row, matching the post-checkout
// behavior: the cart exists, with no items.
func (r *Repository) Clear(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM cart_items WHERE cart_user_id = $1
	`, userID)
	return err
}
