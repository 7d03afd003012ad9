package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/techtrove/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (id, user_id, total_amount, shipping_address, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING order_date`

	insertOrderDetailSQL = `INSERT INTO order_details (id, order_id, product_id, product_name, quantity, price_at_purchase)
		VALUES ($1, $2, $3, $4, $5, $6)`

	// The stock guard. The WHERE clause makes check and decrement one
	// statement evaluated by the database, so two concurrent orders can
	// never both pass a stale read: the loser's update matches zero rows.
	decrementStockSQL = `UPDATE products SET stock = stock - $2
		WHERE id = $1 AND stock >= $2`

	// Consulted only after a zero-row decrement, inside the same
	// transaction, so the reported availability matches what the guard saw.
	explainShortfallSQL = `SELECT name, stock FROM products WHERE id = $1`

	orderColumns = `id, user_id, order_date, total_amount, shipping_address, status`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY order_date DESC, id`

	listAllOrdersSQL = `SELECT ` + orderColumns + ` FROM orders ORDER BY order_date DESC, id`

	listDetailsByOrdersSQL = `SELECT id, order_id, product_id, product_name, quantity, price_at_purchase
		FROM order_details WHERE order_id = ANY($1) ORDER BY product_name, id`

	updateOrderStatusSQL = `UPDATE orders SET status = $2 WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create writes the order header, its detail rows, and the stock decrements
// for every line in a single transaction. Any stock shortfall aborts the
// whole order: the deferred rollback undoes every write, and the caller gets
// an *order.InsufficientStockError (or *order.ProductVanishedError when the
// product row is gone). On success o.OrderDate is set to the committed value.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning order transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, insertOrderSQL,
		o.ID, o.UserID, o.Total, o.ShippingAddress, o.Status,
	).Scan(&o.OrderDate)
	if err != nil {
		return fmt.Errorf("inserting order %q: %w", o.ID, err)
	}

	for i := range o.Details {
		d := &o.Details[i]

		_, err := tx.Exec(ctx, insertOrderDetailSQL,
			d.ID, o.ID, d.ProductID, d.ProductName, d.Quantity, d.PriceAtPurchase,
		)
		if err != nil {
			return fmt.Errorf("inserting detail for product %q in order %q: %w", d.ProductName, o.ID, err)
		}

		tag, err := tx.Exec(ctx, decrementStockSQL, *d.ProductID, d.Quantity)
		if err != nil {
			return fmt.Errorf("decrementing stock for product %q: %w", *d.ProductID, err)
		}
		if tag.RowsAffected() == 0 {
			return r.explainShortfall(ctx, tx, d)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order %q: %w", o.ID, err)
	}
	return nil
}

// explainShortfall turns a zero-row decrement into a typed error by reading
// the product row within the same transaction.
func (r *OrderRepository) explainShortfall(ctx context.Context, tx pgx.Tx, d *order.Detail) error {
	var (
		name      string
		available int
	)
	err := tx.QueryRow(ctx, explainShortfallSQL, *d.ProductID).Scan(&name, &available)
	if errors.Is(err, pgx.ErrNoRows) {
		return &order.ProductVanishedError{ProductID: *d.ProductID}
	}
	if err != nil {
		return fmt.Errorf("reading stock for product %q: %w", *d.ProductID, err)
	}

	return &order.InsufficientStockError{
		ProductName: name,
		Requested:   d.Quantity,
		Available:   available,
	}
}

// GetByID returns a single order with its detail rows.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	if err := r.attachDetails(ctx, []*order.Order{&o}); err != nil {
		return nil, err
	}
	return &o, nil
}

// ListByUser returns the user's orders, newest first, with details attached.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %q: %w", userID, err)
	}
	return r.collectWithDetails(ctx, rows)
}

// ListAll returns every order, newest first, with details attached.
func (r *OrderRepository) ListAll(ctx context.Context) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listAllOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return r.collectWithDetails(ctx, rows)
}

// UpdateStatus changes an order's status, the only mutable field.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id, status string) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, status)
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) collectWithDetails(ctx context.Context, rows pgx.Rows) ([]order.Order, error) {
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("scanning orders: %w", err)
	}

	refs := make([]*order.Order, len(orders))
	for i := range orders {
		refs[i] = &orders[i]
	}
	if err := r.attachDetails(ctx, refs); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachDetails loads detail rows for all given orders in one query.
func (r *OrderRepository) attachDetails(ctx context.Context, orders []*order.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	byID := make(map[string]*order.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
	}

	rows, err := r.pool.Query(ctx, listDetailsByOrdersSQL, ids)
	if err != nil {
		return fmt.Errorf("listing order details: %w", err)
	}

	details, err := pgx.CollectRows(rows, scanOrderDetail)
	if err != nil {
		return fmt.Errorf("scanning order details: %w", err)
	}

	for _, d := range details {
		if o, ok := byID[d.OrderID]; ok {
			o.Details = append(o.Details, d)
		}
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(&o.ID, &o.UserID, &o.OrderDate, &o.Total, &o.ShippingAddress, &o.Status)
	return o, err
}

func scanOrderDetail(row pgx.CollectableRow) (order.Detail, error) {
	var d order.Detail
	err := row.Scan(&d.ID, &d.OrderID, &d.ProductID, &d.ProductName, &d.Quantity, &d.PriceAtPurchase)
	return d, err
}
