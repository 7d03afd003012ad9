package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/techtrove/internal/domain/cart"
	"github.com/xenking/techtrove/internal/domain/payment"
)

// paymentMethod is the demo settlement descriptor recorded for every order.
const paymentMethod = "Cash on Delivery (Demo)"

// CheckoutRequest holds the input for placing an order.
type CheckoutRequest struct {
	UserID          string
	ShippingAddress string
}

// CheckoutResult holds the output of a successfully placed order.
type CheckoutResult struct {
	Order *Order
}

// Service encapsulates the order placement workflow: read the cart, snapshot
// prices, commit order + stock decrements atomically, then settle.
type Service struct {
	carts    cart.Store
	orders   Repository
	payments payment.Recorder
}

// NewService creates an order Service with the required domain dependencies.
func NewService(carts cart.Store, orders Repository, payments payment.Recorder) *Service {
	return &Service{
		carts:    carts,
		orders:   orders,
		payments: payments,
	}
}

// Checkout places an order for the user's current cart.
//
// The order header, its detail rows, and the stock decrements commit in one
// database transaction inside orders.Create; a stock shortfall or vanished
// product rolls everything back and surfaces as a typed error with the cart
// and inventory untouched. Payment recording and cart clearing happen after
// the commit and are best-effort: their failures are logged, never allowed
// to unwind an already durable order.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	lines, err := s.carts.Lines(ctx, req.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "fetch cart")
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	// Snapshot product names and prices into detail rows and compute the
	// total once. The snapshots are authoritative from here on: later price
	// edits must not affect this order.
	orderID := uuid.New().String()
	details := make([]Detail, len(lines))
	total := decimal.Zero
	for i, line := range lines {
		productID := line.Product.ID
		details[i] = Detail{
			ID:              uuid.New().String(),
			OrderID:         orderID,
			ProductID:       &productID,
			ProductName:     line.Product.Name,
			Quantity:        line.Quantity,
			PriceAtPurchase: line.Product.Price,
		}
		total = total.Add(details[i].Subtotal())
	}

	userID := req.UserID
	o := &Order{
		ID:              orderID,
		UserID:          &userID,
		Total:           total.Round(2),
		ShippingAddress: req.ShippingAddress,
		Status:          StatusPending,
		Details:         details,
	}

	if err := s.orders.Create(ctx, o); err != nil {
		var (
			stockErr    *InsufficientStockError
			vanishedErr *ProductVanishedError
		)
		if errors.As(err, &stockErr) || errors.As(err, &vanishedErr) {
			return nil, err
		}
		return nil, errors.Wrap(err, "create order")
	}

	s.settle(ctx, o)

	return &CheckoutResult{Order: o}, nil
}

// settle records the demo payment and clears the cart. The order is already
// committed; failures here are operator concerns, not checkout failures.
func (s *Service) settle(ctx context.Context, o *Order) {
	lg := zctx.From(ctx)

	if _, err := s.payments.Record(ctx, o.ID, o.Total, paymentMethod); err != nil {
		lg.Error("record payment after order commit",
			zap.String("order_id", o.ID),
			zap.Stringp("user_id", o.UserID),
			zap.Error(err),
		)
	}

	if o.UserID == nil {
		return
	}
	if err := s.carts.Clear(ctx, *o.UserID); err != nil {
		lg.Error("clear cart after order commit",
			zap.String("order_id", o.ID),
			zap.String("user_id", *o.UserID),
			zap.Error(err),
		)
	}
}
