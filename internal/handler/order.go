package handler

import (
	"net/http"
	"time"

	"github.com/xenking/techtrove/internal/domain/order"
)

type orderDetailResponse struct {
	ID              string  `json:"id"`
	ProductID       string  `json:"productId,omitempty"`
	ProductName     string  `json:"productName"`
	Quantity        int     `json:"quantity"`
	PriceAtPurchase float64 `json:"priceAtPurchase"`
	Subtotal        float64 `json:"subtotal"`
}

type orderResponse struct {
	ID              string                `json:"id"`
	UserID          string                `json:"userId,omitempty"`
	OrderDate       time.Time             `json:"orderDate"`
	Total           float64               `json:"total"`
	ShippingAddress string                `json:"shippingAddress"`
	Status          string                `json:"status"`
	Details         []orderDetailResponse `json:"details"`
}

func toOrderResponse(o order.Order) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		OrderDate:       o.OrderDate,
		Total:           o.Total.InexactFloat64(),
		ShippingAddress: o.ShippingAddress,
		Status:          o.Status,
		Details:         make([]orderDetailResponse, len(o.Details)),
	}
	if o.UserID != nil {
		resp.UserID = *o.UserID
	}
	for i, d := range o.Details {
		dr := orderDetailResponse{
			ID:              d.ID,
			ProductName:     d.ProductName,
			Quantity:        d.Quantity,
			PriceAtPurchase: d.PriceAtPurchase.InexactFloat64(),
			Subtotal:        d.Subtotal().InexactFloat64(),
		}
		if d.ProductID != nil {
			dr.ProductID = *d.ProductID
		}
		resp.Details[i] = dr
	}
	return resp
}

type checkoutRequest struct {
	ShippingAddress string `json:"shippingAddress"`
}

// placeOrder runs the checkout workflow for the authenticated user's cart.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	info, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ShippingAddress == "" {
		respondError(w, r, http.StatusBadRequest, "shippingAddress is required")
		return
	}

	result, err := h.checkout.Checkout(r.Context(), order.CheckoutRequest{
		UserID:          info.UserID,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusCreated, toOrderResponse(*result.Order))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	info, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	orders, err := h.orders.ListByUser(r.Context(), info.UserID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o)
	}
	respondJSON(w, r, http.StatusOK, resp)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	info, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	o, err := h.orders.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	// Users only see their own orders; admin keys see everything.
	if !info.Admin && (o.UserID == nil || *o.UserID != info.UserID) {
		respondError(w, r, http.StatusNotFound, order.ErrNotFound.Error())
		return
	}

	respondJSON(w, r, http.StatusOK, toOrderResponse(*o))
}

type paymentResponse struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"orderId"`
	Method      string    `json:"method"`
	ExternalRef string    `json:"externalRef"`
	Date        time.Time `json:"date"`
	Status      string    `json:"status"`
}

// getOrderPayment returns the most recent payment for one of the caller's
// orders. The payment ledger can lag the order ledger, so a fresh order may
// legitimately 404 here.
func (h *Handler) getOrderPayment(w http.ResponseWriter, r *http.Request) {
	info, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	o, err := h.orders.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	if !info.Admin && (o.UserID == nil || *o.UserID != info.UserID) {
		respondError(w, r, http.StatusNotFound, order.ErrNotFound.Error())
		return
	}

	p, err := h.payments.GetByOrderID(r.Context(), o.ID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, paymentResponse{
		ID:          p.ID,
		OrderID:     p.OrderID,
		Method:      p.Method,
		ExternalRef: p.ExternalRef,
		Date:        p.Date,
		Status:      string(p.Status),
	})
}

func (h *Handler) adminListOrders(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}

	orders, err := h.orders.ListAll(r.Context())
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o)
	}
	respondJSON(w, r, http.StatusOK, resp)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) adminUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}

	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if !order.ValidStatus(req.Status) {
		respondError(w, r, http.StatusBadRequest, "unknown order status")
		return
	}

	if err := h.orders.UpdateStatus(r.Context(), r.PathValue("id"), req.Status); err != nil {
		respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
