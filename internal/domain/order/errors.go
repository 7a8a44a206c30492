package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned by a Store when the order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrConcurrentModification is returned by a Store when the stored version
	// differs from the expected one.
	ErrConcurrentModification = errors.New("order was modified concurrently")
	// ErrInvalidQuantity is returned for negative found quantities and
	// non-positive ordered quantities.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrLineNotFound is returned when a product id does not match any line.
	ErrLineNotFound = errors.New("order line not found")
	// ErrDuplicateProduct is returned when an order lists a product twice.
	ErrDuplicateProduct = errors.New("duplicate product in order")
	// ErrEmptyLines is returned when an order has no lines.
	ErrEmptyLines = errors.New("order has no lines")
)

// InvalidQuantityError indicates a quantity outside its allowed range.
type InvalidQuantityError struct {
	ProductID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid quantity %d for product %s", e.Quantity, e.ProductID)
}

func (e *InvalidQuantityError) Is(target error) bool { return target == ErrInvalidQuantity }

// LineNotFoundError indicates a product id that is not part of the order.
type LineNotFoundError struct {
	ProductID string
}

func (e *LineNotFoundError) Error() string {
	return fmt.Sprintf("product %s is not part of the order", e.ProductID)
}

func (e *LineNotFoundError) Is(target error) bool { return target == ErrLineNotFound }

// DuplicateProductError indicates a product listed on more than one line.
type DuplicateProductError struct {
	ProductID string
}

func (e *DuplicateProductError) Error() string {
	return fmt.Sprintf("product %s appears on more than one line", e.ProductID)
}

func (e *DuplicateProductError) Is(target error) bool { return target == ErrDuplicateProduct }
