package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/xenking/techtrove/internal/domain/cart"
)

type cartLineResponse struct {
	EntryID  string          `json:"entryId"`
	Product  productResponse `json:"product"`
	Quantity int             `json:"quantity"`
	Subtotal float64         `json:"subtotal"`
}

type cartResponse struct {
	Lines []cartLineResponse `json:"lines"`
	Total float64            `json:"total"`
}

func toCartResponse(lines []cart.Line) cartResponse {
	resp := cartResponse{Lines: make([]cartLineResponse, len(lines))}
	total := decimal.Zero
	for i, l := range lines {
		subtotal := l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		resp.Lines[i] = cartLineResponse{
			EntryID:  l.EntryID,
			Product:  toProductResponse(l.Product),
			Quantity: l.Quantity,
			Subtotal: subtotal.InexactFloat64(),
		}
		total = total.Add(subtotal)
	}
	resp.Total = total.Round(2).InexactFloat64()
	return resp
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	info, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	lines, err := h.carts.Lines(r.Context(), info.UserID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, toCartResponse(lines))
}

type addToCartRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request) {
	info, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req addToCartRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == "" {
		respondError(w, r, http.StatusBadRequest, "productId is required")
		return
	}

	// Advisory availability check for a friendlier error message. Not a
	// reservation: the authoritative stock guard runs inside the checkout
	// transaction, and stock may still change between here and there.
	if req.Quantity > 0 {
		if level, err := h.products.Stock(r.Context(), req.ProductID); err == nil && level.Quantity < req.Quantity {
			respondJSON(w, r, http.StatusConflict, insufficientStockResponse{
				Code:      http.StatusConflict,
				Message:   "not enough stock for " + level.Name,
				Product:   level.Name,
				Requested: req.Quantity,
				Available: level.Quantity,
			})
			return
		}
	}

	if err := h.carts.Add(r.Context(), info.UserID, req.ProductID, req.Quantity); err != nil {
		respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) setCartQuantity(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}

	var req setQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.carts.SetQuantity(r.Context(), r.PathValue("entryID"), req.Quantity); err != nil {
		respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeCartLine(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}

	if err := h.carts.Remove(r.Context(), r.PathValue("entryID")); err != nil {
		respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	info, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.carts.Clear(r.Context(), info.UserID); err != nil {
		respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
