package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID              string
	Name            string
	Brand           string
	Model           string
	Description     string
	Price           decimal.Decimal
	Stock           int
	ManufactureDate *time.Time
	CategoryID      *string
}

// StockLevel is a point-in-time view of a product's available stock.
// It is advisory outside the checkout transaction: the authoritative stock
// check is the conditional decrement performed during order creation.
type StockLevel struct {
	ProductID string
	Name      string
	Quantity  int
}

// Repository defines catalog and inventory operations for products.
//
// Stock is never decremented through this interface. The decrement happens
// inside the order creation transaction so that the check and the write are
// a single conditional statement evaluated by the database.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	ListByCategory(ctx context.Context, categoryID string) ([]Product, error)

	// Stock returns the product's name and current stock quantity.
	Stock(ctx context.Context, id string) (*StockLevel, error)

	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
	// SetStock overwrites the absolute stock count (admin restock).
	SetStock(ctx context.Context, id string, quantity int) error
}

// Category groups products in the catalog.
type Category struct {
	ID   string
	Name string
}

// CategoryRepository defines read and write operations for categories.
type CategoryRepository interface {
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, c *Category) error
	DeleteCategory(ctx context.Context, id string) error
}
