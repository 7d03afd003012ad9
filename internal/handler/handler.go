// Package handler exposes the domain over JSON HTTP endpoints and maps
// domain errors to HTTP responses in one place.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/techtrove/internal/domain/cart"
	"github.com/xenking/techtrove/internal/domain/order"
	"github.com/xenking/techtrove/internal/domain/payment"
	"github.com/xenking/techtrove/internal/domain/product"
)

// Handler serves the storefront and admin API, delegating business logic to
// the domain services and repositories.
type Handler struct {
	products   product.Repository
	categories product.CategoryRepository
	carts      cart.Store
	orders     order.Repository
	payments   payment.Recorder
	checkout   *order.Service
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	products product.Repository,
	categories product.CategoryRepository,
	carts cart.Store,
	orders order.Repository,
	payments payment.Recorder,
	checkout *order.Service,
) *Handler {
	return &Handler{
		products:   products,
		categories: categories,
		carts:      carts,
		orders:     orders,
		payments:   payments,
		checkout:   checkout,
	}
}

// Register attaches all API routes to the mux. Every route assumes the
// security middleware has already resolved the caller's identity.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("GET /api/products/{id}", h.getProduct)
	mux.HandleFunc("GET /api/products/{id}/stock", h.getProductStock)
	mux.HandleFunc("GET /api/categories", h.listCategories)

	mux.HandleFunc("GET /api/cart", h.getCart)
	mux.HandleFunc("POST /api/cart", h.addToCart)
	mux.HandleFunc("PUT /api/cart/{entryID}", h.setCartQuantity)
	mux.HandleFunc("DELETE /api/cart/{entryID}", h.removeCartLine)
	mux.HandleFunc("DELETE /api/cart", h.clearCart)

	mux.HandleFunc("POST /api/checkout", h.placeOrder)
	mux.HandleFunc("GET /api/orders", h.listOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.getOrder)
	mux.HandleFunc("GET /api/orders/{id}/payment", h.getOrderPayment)

	mux.HandleFunc("POST /api/admin/products", h.adminCreateProduct)
	mux.HandleFunc("PUT /api/admin/products/{id}", h.adminUpdateProduct)
	mux.HandleFunc("DELETE /api/admin/products/{id}", h.adminDeleteProduct)
	mux.HandleFunc("PUT /api/admin/products/{id}/stock", h.adminSetStock)
	mux.HandleFunc("POST /api/admin/categories", h.adminCreateCategory)
	mux.HandleFunc("DELETE /api/admin/categories/{id}", h.adminDeleteCategory)
	mux.HandleFunc("GET /api/admin/orders", h.adminListOrders)
	mux.HandleFunc("PATCH /api/admin/orders/{id}/status", h.adminUpdateOrderStatus)
}

// errorResponse is the uniform error body for all endpoints.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zctx.From(r.Context()).Error("encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	respondJSON(w, r, status, errorResponse{Code: status, Message: message})
}

// respondDomainError maps domain errors to HTTP responses. Business-rule
// violations keep their specific message; infrastructure failures are logged
// with context and surfaced as an opaque 500.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		stockErr    *order.InsufficientStockError
		quantityErr *cart.InvalidQuantityError
		vanishedErr *order.ProductVanishedError
	)

	switch {
	case errors.Is(err, order.ErrEmptyCart):
		respondError(w, r, http.StatusBadRequest, err.Error())
	case errors.As(err, &quantityErr):
		respondError(w, r, http.StatusUnprocessableEntity, quantityErr.Error())
	case errors.As(err, &stockErr):
		respondJSON(w, r, http.StatusConflict, insufficientStockResponse{
			Code:      http.StatusConflict,
			Message:   stockErr.Error(),
			Product:   stockErr.ProductName,
			Requested: stockErr.Requested,
			Available: stockErr.Available,
		})
	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, cart.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, payment.ErrNotFound):
		respondError(w, r, http.StatusNotFound, err.Error())
	case errors.As(err, &vanishedErr):
		// Referential-integrity drift: an infrastructure-class failure.
		zctx.From(r.Context()).Error("product vanished during checkout",
			zap.String("product_id", vanishedErr.ProductID))
		respondError(w, r, http.StatusInternalServerError, "internal error")
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		respondError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// insufficientStockResponse carries enough detail for the storefront to tell
// the user which line to adjust.
type insufficientStockResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Product   string `json:"product"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
