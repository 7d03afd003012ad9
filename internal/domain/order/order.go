package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Order status values. An order starts PENDING and only its status may
// change afterwards; every other field is immutable once written.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusShipped    = "SHIPPED"
	StatusDelivered  = "DELIVERED"
	StatusCancelled  = "CANCELLED"
)

// Sentinel errors for order placement and lookup.
var (
	ErrEmptyCart = errors.New("cart is empty")
	ErrNotFound  = errors.New("order not found")
)

// InsufficientStockError indicates a requested quantity exceeds the
// product's available stock. It carries enough detail for the caller to
// show the user which product to adjust.
type InsufficientStockError struct {
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.ProductName, e.Requested, e.Available)
}

// ProductVanishedError indicates a cart line references a product that no
// longer exists in the catalog. It signals referential-integrity drift and
// is treated as an infrastructure-class failure, not a user-facing one.
type ProductVanishedError struct {
	ProductID string
}

func (e *ProductVanishedError) Error() string {
	return fmt.Sprintf("product %s no longer exists", e.ProductID)
}

// Order is the durable record of a placed order. The total and shipping
// address are snapshots taken at placement time and are never recomputed.
type Order struct {
	ID              string
	UserID          *string
	OrderDate       time.Time
	Total           decimal.Decimal
	ShippingAddress string
	Status          string
	Details         []Detail
}

// Detail is one line item of an order. ProductName and PriceAtPurchase are
// snapshots of the product state at placement time, decoupled from any later
// catalog edits. ProductID becomes nil if the product is later deleted.
type Detail struct {
	ID              string
	OrderID         string
	ProductID       *string
	ProductName     string
	Quantity        int
	PriceAtPurchase decimal.Decimal
}

// Subtotal returns quantity times the price snapshot.
func (d Detail) Subtotal() decimal.Decimal {
	return d.PriceAtPurchase.Mul(decimal.NewFromInt(int64(d.Quantity)))
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create writes the order header, its detail rows, and the matching
	// stock decrements in one transaction. Either everything is applied or
	// nothing is: a stock shortfall rolls the whole order back and returns
	// an *InsufficientStockError (or *ProductVanishedError when the product
	// row is gone entirely).
	Create(ctx context.Context, o *Order) error

	GetByID(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	ListAll(ctx context.Context) ([]Order, error)
	UpdateStatus(ctx context.Context, id, status string) error
}

// ValidStatus reports whether s is one of the known order statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}
