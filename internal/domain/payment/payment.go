package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status enumerates payment record states.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusRefunded  Status = "REFUNDED"
)

// ErrNotFound is returned when no payment exists for an order.
var ErrNotFound = errors.New("payment not found")

// Payment is an appended settlement record for an order. This system has no
// real gateway: records are written once, immediately COMPLETED, with a demo
// transaction reference.
type Payment struct {
	ID          string
	OrderID     string
	Method      string
	ExternalRef string
	Date        time.Time
	Status      Status
}

// Recorder appends payment records referencing existing orders. Recording is
// intentionally outside the order transaction: an order survives a failed
// payment record, which is logged by the caller instead of rolled back.
type Recorder interface {
	// Record writes a COMPLETED payment for the order and returns its ID.
	Record(ctx context.Context, orderID string, amount decimal.Decimal, method string) (string, error)

	// GetByOrderID returns the most recent payment for the order.
	GetByOrderID(ctx context.Context, orderID string) (*Payment, error)
}
