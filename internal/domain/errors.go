package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrForbidden         = errors.New("access denied")
	ErrInvalidTransition = errors.New("cannot change order in current status")

	// ErrStockConflict is returned when a conditional stock decrement loses a
	// race: the quantity was available when validated but gone by the time the
	// decrement ran. The operation has already been fully compensated when a
	// caller sees this error.
	ErrStockConflict = errors.New("stock changed concurrently")
)

// InsufficientStockError names the product whose available stock cannot cover
// the requested quantity.
type InsufficientStockError struct {
	ProductName string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s", e.ProductName)
}

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
