package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/techtrove/internal/domain/payment"
)

const (
	insertPaymentSQL = `INSERT INTO payments (id, order_id, method, external_txn_ref, status)
		VALUES ($1, $2, $3, $4, $5)`

	getPaymentByOrderSQL = `SELECT id, order_id, method, external_txn_ref, payment_date, status
		FROM payments WHERE order_id = $1 ORDER BY payment_date DESC LIMIT 1`
)

var _ payment.Recorder = (*PaymentRecorder)(nil)

// PaymentRecorder implements payment.Recorder backed by PostgreSQL.
// There is no gateway behind it: every record is written COMPLETED with a
// demo transaction reference.
type PaymentRecorder struct {
	pool *pgxpool.Pool
}

// NewPaymentRecorder returns a PaymentRecorder that uses the given pool.
func NewPaymentRecorder(pool *pgxpool.Pool) *PaymentRecorder {
	return &PaymentRecorder{pool: pool}
}

// Record appends a COMPLETED payment for the order and returns its ID.
// The amount is implied by the order's total snapshot; it is accepted here so
// the interface survives a future gateway that needs it.
func (r *PaymentRecorder) Record(ctx context.Context, orderID string, _ decimal.Decimal, method string) (string, error) {
	id := uuid.New().String()
	externalRef := fmt.Sprintf("DEMO-TXN-%d", time.Now().UnixMilli())

	_, err := r.pool.Exec(ctx, insertPaymentSQL, id, orderID, method, externalRef, payment.StatusCompleted)
	if err != nil {
		return "", fmt.Errorf("recording payment for order %q: %w", orderID, err)
	}
	return id, nil
}

// GetByOrderID returns the most recent payment for the order.
func (r *PaymentRecorder) GetByOrderID(ctx context.Context, orderID string) (*payment.Payment, error) {
	var p payment.Payment
	err := r.pool.QueryRow(ctx, getPaymentByOrderSQL, orderID).Scan(
		&p.ID, &p.OrderID, &p.Method, &p.ExternalRef, &p.Date, &p.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("getting payment for order %q: %w", orderID, err)
	}
	return &p, nil
}
