package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/techtrove/internal/domain/product"
)

// dateLayout is the wire format for product manufacture dates.
const dateLayout = "2006-01-02"

type productResponse struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Brand           string  `json:"brand,omitempty"`
	Model           string  `json:"model,omitempty"`
	Description     string  `json:"description,omitempty"`
	Price           float64 `json:"price"`
	Stock           int     `json:"stock"`
	ManufactureDate string  `json:"manufactureDate,omitempty"`
	CategoryID      string  `json:"categoryId,omitempty"`
}

type stockResponse struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
}

type categoryResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func toProductResponse(p product.Product) productResponse {
	resp := productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Brand:       p.Brand,
		Model:       p.Model,
		Description: p.Description,
		Price:       p.Price.InexactFloat64(),
		Stock:       p.Stock,
	}
	if p.ManufactureDate != nil {
		resp.ManufactureDate = p.ManufactureDate.Format(dateLayout)
	}
	if p.CategoryID != nil {
		resp.CategoryID = *p.CategoryID
	}
	return resp
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}

	var (
		products []product.Product
		err      error
	)
	if categoryID := r.URL.Query().Get("category"); categoryID != "" {
		products, err = h.products.ListByCategory(r.Context(), categoryID)
	} else {
		products, err = h.products.List(r.Context())
	}
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	resp := make([]productResponse, len(products))
	for i, p := range products {
		resp[i] = toProductResponse(p)
	}
	respondJSON(w, r, http.StatusOK, resp)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}

	p, err := h.products.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, toProductResponse(*p))
}

func (h *Handler) getProductStock(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}

	level, err := h.products.Stock(r.Context(), r.PathValue("id"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, stockResponse{
		ProductID: level.ProductID,
		Name:      level.Name,
		Quantity:  level.Quantity,
	})
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}

	categories, err := h.categories.ListCategories(r.Context())
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	resp := make([]categoryResponse, len(categories))
	for i, c := range categories {
		resp[i] = categoryResponse{ID: c.ID, Name: c.Name}
	}
	respondJSON(w, r, http.StatusOK, resp)
}

// --- Admin catalog management ---

type productRequest struct {
	Name            string  `json:"name"`
	Brand           string  `json:"brand"`
	Model           string  `json:"model"`
	Description     string  `json:"description"`
	Price           string  `json:"price"`
	Stock           int     `json:"stock"`
	ManufactureDate string  `json:"manufactureDate"`
	CategoryID      *string `json:"categoryId"`
}

func (req *productRequest) toDomain(id string) (*product.Product, error) {
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		return nil, err
	}

	p := &product.Product{
		ID:          id,
		Name:        req.Name,
		Brand:       req.Brand,
		Model:       req.Model,
		Description: req.Description,
		Price:       price,
		Stock:       req.Stock,
		CategoryID:  req.CategoryID,
	}
	if req.ManufactureDate != "" {
		d, err := time.Parse(dateLayout, req.ManufactureDate)
		if err != nil {
			return nil, err
		}
		p.ManufactureDate = &d
	}
	return p, nil
}

func (h *Handler) adminCreateProduct(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}

	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		respondError(w, r, http.StatusBadRequest, "name is required")
		return
	}

	p, err := req.toDomain(uuid.New().String())
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid product: "+err.Error())
		return
	}
	if p.Price.IsNegative() || p.Stock < 0 {
		respondError(w, r, http.StatusBadRequest, "price and stock must be non-negative")
		return
	}

	if err := h.products.Create(r.Context(), p); err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, toProductResponse(*p))
}

func (h *Handler) adminUpdateProduct(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}

	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := req.toDomain(r.PathValue("id"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid product: "+err.Error())
		return
	}
	if p.Price.IsNegative() {
		respondError(w, r, http.StatusBadRequest, "price must be non-negative")
		return
	}

	if err := h.products.Update(r.Context(), p); err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, toProductResponse(*p))
}

func (h *Handler) adminDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}

	if err := h.products.Delete(r.Context(), r.PathValue("id")); err != nil {
		respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setStockRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) adminSetStock(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}

	var req setStockRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Quantity < 0 {
		respondError(w, r, http.StatusBadRequest, "quantity must be non-negative")
		return
	}

	if err := h.products.SetStock(r.Context(), r.PathValue("id"), req.Quantity); err != nil {
		respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type categoryRequest struct {
	Name string `json:"name"`
}

func (h *Handler) adminCreateCategory(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}

	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil || req.Name == "" {
		respondError(w, r, http.StatusBadRequest, "name is required")
		return
	}

	c := &product.Category{ID: uuid.New().String(), Name: req.Name}
	if err := h.categories.CreateCategory(r.Context(), c); err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, categoryResponse{ID: c.ID, Name: c.Name})
}

func (h *Handler) adminDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}

	if err := h.categories.DeleteCategory(r.Context(), r.PathValue("id")); err != nil {
		respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
