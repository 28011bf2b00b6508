package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartItem is a cart line with the product's name and unit price resolved
// from the catalog at read time. Prices are never stored on the line, so
// catalog price changes are visible in the cart until checkout.
type CartItem struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Cart holds one user's pending selection. Total is derived from the items
// on every read and is not persisted.
type Cart struct {
	UserID uuid.UUID       `json:"user_id"`
	Items  []CartItem      `json:"items"`
	Total  decimal.Decimal `json:"total"`
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}
