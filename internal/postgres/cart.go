package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/techtrove/internal/domain/cart"
	"github.com/xenking/techtrove/internal/domain/product"
)

const (
	listCartLinesSQL = `SELECT c.id, c.quantity, c.added_at,
			p.id, p.name, p.brand, p.model, p.description, p.price, p.stock, p.manufacture_date, p.category_id
		FROM cart_lines c
		JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY p.name, p.id`

	// One line per (user, product): a conflicting insert folds into the
	// existing line's quantity instead of creating a duplicate row.
	upsertCartLineSQL = `INSERT INTO cart_lines (id, user_id, product_id, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity`

	setCartQuantitySQL = `UPDATE cart_lines SET quantity = $2 WHERE id = $1`

	deleteCartLineSQL = `DELETE FROM cart_lines WHERE id = $1`

	clearCartSQL = `DELETE FROM cart_lines WHERE user_id = $1`
)

// foreignKeyViolation is the PostgreSQL error code for FK constraint failures.
const foreignKeyViolation = "23503"

var _ cart.Store = (*CartStore)(nil)

// CartStore implements cart.Store backed by PostgreSQL.
type CartStore struct {
	pool *pgxpool.Pool
}

// NewCartStore returns a CartStore that uses the given pool.
func NewCartStore(pool *pgxpool.Pool) *CartStore {
	return &CartStore{pool: pool}
}

// Lines returns the user's cart lines joined with current product state,
// ordered by product name.
func (s *CartStore) Lines(ctx context.Context, userID string) ([]cart.Line, error) {
	rows, err := s.pool.Query(ctx, listCartLinesSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing cart for user %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanCartLine)
}

// Add upserts a cart line, increasing the quantity of an existing
// (user, product) line. The product's existence is enforced by the foreign
// key, which maps to product.ErrNotFound.
func (s *CartStore) Add(ctx context.Context, userID, productID string, quantity int) error {
	if quantity <= 0 {
		return &cart.InvalidQuantityError{Quantity: quantity}
	}

	_, err := s.pool.Exec(ctx, upsertCartLineSQL, uuid.New().String(), userID, productID, quantity)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return product.ErrNotFound
		}
		return fmt.Errorf("adding product %q to cart for user %q: %w", productID, userID, err)
	}
	return nil
}

// SetQuantity replaces a line's quantity; a non-positive quantity removes the
// line instead.
func (s *CartStore) SetQuantity(ctx context.Context, entryID string, quantity int) error {
	if quantity <= 0 {
		return s.Remove(ctx, entryID)
	}

	tag, err := s.pool.Exec(ctx, setCartQuantitySQL, entryID, quantity)
	if err != nil {
		return fmt.Errorf("updating cart line %q: %w", entryID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrNotFound
	}
	return nil
}

// Remove deletes a single cart line.
func (s *CartStore) Remove(ctx context.Context, entryID string) error {
	tag, err := s.pool.Exec(ctx, deleteCartLineSQL, entryID)
	if err != nil {
		return fmt.Errorf("removing cart line %q: %w", entryID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrNotFound
	}
	return nil
}

// Clear deletes all of the user's cart lines. Clearing an already-empty cart
// succeeds.
func (s *CartStore) Clear(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, clearCartSQL, userID); err != nil {
		return fmt.Errorf("clearing cart for user %q: %w", userID, err)
	}
	return nil
}

func scanCartLine(row pgx.CollectableRow) (cart.Line, error) {
	var l cart.Line
	err := row.Scan(
		&l.EntryID, &l.Quantity, &l.AddedAt,
		&l.Product.ID, &l.Product.Name, &l.Product.Brand, &l.Product.Model,
		&l.Product.Description, &l.Product.Price, &l.Product.Stock,
		&l.Product.ManufactureDate, &l.Product.CategoryID,
	)
	return l, err
}
