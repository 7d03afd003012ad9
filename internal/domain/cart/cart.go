package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/techtrove/internal/domain/product"
)

// ErrNotFound is returned when a cart line does not exist.
var ErrNotFound = errors.New("cart line not found")

// InvalidQuantityError indicates a non-positive quantity was requested.
type InvalidQuantityError struct {
	Quantity int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0, got %d", e.Quantity)
}

// Line is one entry in a user's cart, joined with the current product state
// for display. Product price and stock here are live values, not snapshots:
// the order workflow re-derives both at checkout time.
type Line struct {
	EntryID  string
	Product  product.Product
	Quantity int
	AddedAt  time.Time
}

// Store holds each user's cart as a set of (product, quantity) lines.
// A user has at most one line per product; adding the same product again
// increases the existing line's quantity.
type Store interface {
	// Lines returns the user's cart ordered by product name.
	Lines(ctx context.Context, userID string) ([]Line, error)

	// Add upserts a line: an existing (user, product) line has its quantity
	// increased by quantity, otherwise a new line is created.
	// Returns product.ErrNotFound if the product does not exist and an
	// InvalidQuantityError if quantity <= 0.
	Add(ctx context.Context, userID, productID string, quantity int) error

	// SetQuantity replaces a line's quantity. A quantity <= 0 removes the line.
	SetQuantity(ctx context.Context, entryID string, quantity int) error

	// Remove deletes a single line.
	Remove(ctx context.Context, entryID string) error

	// Clear deletes all of the user's lines. Clearing an empty cart is a no-op.
	Clear(ctx context.Context, userID string) error
}
