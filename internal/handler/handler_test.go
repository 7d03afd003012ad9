package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/techtrove/internal/domain/auth"
	"github.com/xenking/techtrove/internal/domain/cart"
	"github.com/xenking/techtrove/internal/domain/order"
	"github.com/xenking/techtrove/internal/domain/payment"
	"github.com/xenking/techtrove/internal/domain/product"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID     map[string]*product.Product
	stock    map[string]int
	stockErr error
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	products := make([]product.Product, 0, len(m.byID))
	for _, p := range m.byID {
		products = append(products, *p)
	}
	return products, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockProductRepo) ListByCategory(_ context.Context, _ string) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProductRepo) Stock(_ context.Context, id string) (*product.StockLevel, error) {
	if m.stockErr != nil {
		return nil, m.stockErr
	}
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	qty := p.Stock
	if m.stock != nil {
		qty = m.stock[id]
	}
	return &product.StockLevel{ProductID: id, Name: p.Name, Quantity: qty}, nil
}

func (m *mockProductRepo) Create(_ context.Context, p *product.Product) error {
	m.byID[p.ID] = p
	return nil
}

func (m *mockProductRepo) Update(_ context.Context, p *product.Product) error {
	if _, ok := m.byID[p.ID]; !ok {
		return product.ErrNotFound
	}
	m.byID[p.ID] = p
	return nil
}

func (m *mockProductRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.byID[id]; !ok {
		return product.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *mockProductRepo) SetStock(_ context.Context, id string, quantity int) error {
	p, ok := m.byID[id]
	if !ok {
		return product.ErrNotFound
	}
	p.Stock = quantity
	return nil
}

type mockCategoryRepo struct {
	categories []product.Category
}

func (m *mockCategoryRepo) ListCategories(_ context.Context) ([]product.Category, error) {
	return m.categories, nil
}

func (m *mockCategoryRepo) CreateCategory(_ context.Context, c *product.Category) error {
	m.categories = append(m.categories, *c)
	return nil
}

func (m *mockCategoryRepo) DeleteCategory(_ context.Context, _ string) error { return nil }

type mockCartStore struct {
	lines   []cart.Line
	added   []string
	cleared []string
	addErr  error
}

func (m *mockCartStore) Lines(_ context.Context, _ string) ([]cart.Line, error) {
	return m.lines, nil
}

func (m *mockCartStore) Add(_ context.Context, _, productID string, quantity int) error {
	if quantity <= 0 {
		return &cart.InvalidQuantityError{Quantity: quantity}
	}
	if m.addErr != nil {
		return m.addErr
	}
	m.added = append(m.added, productID)
	return nil
}

func (m *mockCartStore) SetQuantity(_ context.Context, entryID string, _ int) error {
	if entryID == "missing" {
		return cart.ErrNotFound
	}
	return nil
}

func (m *mockCartStore) Remove(_ context.Context, _ string) error { return nil }

func (m *mockCartStore) Clear(_ context.Context, userID string) error {
	m.cleared = append(m.cleared, userID)
	return nil
}

type mockOrderRepo struct {
	byID      map[string]*order.Order
	createErr error
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.byID == nil {
		m.byID = make(map[string]*order.Order)
	}
	m.byID[o.ID] = o
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (m *mockOrderRepo) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	var out []order.Order
	for _, o := range m.byID {
		if o.UserID != nil && *o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) ListAll(_ context.Context) ([]order.Order, error) {
	var out []order.Order
	for _, o := range m.byID {
		out = append(out, *o)
	}
	return out, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id, status string) error {
	o, ok := m.byID[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Status = status
	return nil
}

type mockPaymentRecorder struct {
	byOrder map[string]*payment.Payment
}

func (m *mockPaymentRecorder) Record(_ context.Context, _ string, _ decimal.Decimal, _ string) (string, error) {
	return "pay-1", nil
}

func (m *mockPaymentRecorder) GetByOrderID(_ context.Context, orderID string) (*payment.Payment, error) {
	p, ok := m.byOrder[orderID]
	if !ok {
		return nil, payment.ErrNotFound
	}
	return p, nil
}

// --- Helpers ---

type testEnv struct {
	products *mockProductRepo
	carts    *mockCartStore
	orders   *mockOrderRepo
	payments *mockPaymentRecorder
	server   http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		products: &mockProductRepo{byID: map[string]*product.Product{}},
		carts:    &mockCartStore{},
		orders:   &mockOrderRepo{byID: map[string]*order.Order{}},
		payments: &mockPaymentRecorder{byOrder: map[string]*payment.Payment{}},
	}

	checkout := order.NewService(env.carts, env.orders, env.payments)
	h := NewHandler(env.products, &mockCategoryRepo{}, env.carts, env.orders, env.payments, checkout)

	mux := http.NewServeMux()
	h.Register(mux)
	env.server = mux
	return env
}

// do performs a request with the given identity injected, mirroring what the
// security middleware does in production.
func (e *testEnv) do(t *testing.T, method, path, body string, identity *auth.APIKeyInfo) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if identity != nil {
		req = req.WithContext(context.WithValue(req.Context(), identityKey{}, identity))
	}

	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func userIdentity() *auth.APIKeyInfo {
	return &auth.APIKeyInfo{ID: "k1", UserID: "u1", Name: "shopper"}
}

func adminIdentity() *auth.APIKeyInfo {
	return &auth.APIKeyInfo{ID: "k2", UserID: "admin", Name: "ops", Admin: true}
}

func testProduct(id, name string, price string, stock int) *product.Product {
	return &product.Product{
		ID:    id,
		Name:  name,
		Price: decimal.RequireFromString(price),
		Stock: stock,
	}
}

func cartLineFor(p *product.Product, entryID string, qty int) cart.Line {
	return cart.Line{EntryID: entryID, Product: *p, Quantity: qty}
}

// --- Tests ---

func TestPlaceOrder_Success(t *testing.T) {
	env := newTestEnv(t)
	p := testProduct("p1", "Widget", "10.00", 5)
	env.products.byID["p1"] = p
	env.carts.lines = []cart.Line{cartLineFor(p, "c1", 2)}

	rec := env.do(t, http.MethodPost, "/api/checkout", `{"shippingAddress":"42 Main St"}`, userIdentity())

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.InDelta(t, 20.00, resp.Total, 1e-9)
	assert.Equal(t, order.StatusPending, resp.Status)
	require.Len(t, resp.Details, 1)
	assert.Equal(t, "Widget", resp.Details[0].ProductName)

	assert.Equal(t, []string{"u1"}, env.carts.cleared)
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/checkout", `{"shippingAddress":"42 Main St"}`, userIdentity())

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.orders.byID)
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	env := newTestEnv(t)
	p := testProduct("p1", "Widget", "10.00", 1)
	env.products.byID["p1"] = p
	env.carts.lines = []cart.Line{cartLineFor(p, "c1", 2)}
	env.orders.createErr = &order.InsufficientStockError{ProductName: "Widget", Requested: 2, Available: 1}

	rec := env.do(t, http.MethodPost, "/api/checkout", `{"shippingAddress":"42 Main St"}`, userIdentity())

	require.Equal(t, http.StatusConflict, rec.Code)

	var resp insufficientStockResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Widget", resp.Product)
	assert.Equal(t, 2, resp.Requested)
	assert.Equal(t, 1, resp.Available)

	// Cart untouched after a failed checkout.
	assert.Empty(t, env.carts.cleared)
}

func TestPlaceOrder_MissingShippingAddress(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/checkout", `{}`, userIdentity())

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceOrder_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/checkout", `{"shippingAddress":"x"}`, nil)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetCart(t *testing.T) {
	env := newTestEnv(t)
	p := testProduct("p1", "Widget", "19.99", 5)
	env.products.byID["p1"] = p
	env.carts.lines = []cart.Line{cartLineFor(p, "c1", 3)}

	rec := env.do(t, http.MethodGet, "/api/cart", "", userIdentity())

	require.Equal(t, http.StatusOK, rec.Code)

	var resp cartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Lines, 1)
	assert.InDelta(t, 59.97, resp.Lines[0].Subtotal, 1e-9)
	assert.InDelta(t, 59.97, resp.Total, 1e-9)
}

func TestAddToCart_InvalidQuantity(t *testing.T) {
	env := newTestEnv(t)
	env.products.byID["p1"] = testProduct("p1", "Widget", "10.00", 5)

	rec := env.do(t, http.MethodPost, "/api/cart", `{"productId":"p1","quantity":0}`, userIdentity())

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, env.carts.added)
}

func TestAddToCart_AdvisoryStockCheck(t *testing.T) {
	env := newTestEnv(t)
	env.products.byID["p1"] = testProduct("p1", "Widget", "10.00", 1)

	rec := env.do(t, http.MethodPost, "/api/cart", `{"productId":"p1","quantity":5}`, userIdentity())

	require.Equal(t, http.StatusConflict, rec.Code)

	var resp insufficientStockResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Requested)
	assert.Equal(t, 1, resp.Available)
}

func TestAddToCart_UnknownProduct(t *testing.T) {
	env := newTestEnv(t)
	env.carts.addErr = product.ErrNotFound

	rec := env.do(t, http.MethodPost, "/api/cart", `{"productId":"ghost","quantity":1}`, userIdentity())

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetCartQuantity_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/cart/missing", `{"quantity":2}`, userIdentity())

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOrder_OtherUsersOrderHidden(t *testing.T) {
	env := newTestEnv(t)
	owner := "someone-else"
	env.orders.byID["o1"] = &order.Order{ID: "o1", UserID: &owner, Status: order.StatusPending}

	rec := env.do(t, http.MethodGet, "/api/orders/o1", "", userIdentity())

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOrder_AdminSeesAll(t *testing.T) {
	env := newTestEnv(t)
	owner := "someone-else"
	env.orders.byID["o1"] = &order.Order{ID: "o1", UserID: &owner, Status: order.StatusPending}

	rec := env.do(t, http.MethodGet, "/api/orders/o1", "", adminIdentity())

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGetOrderPayment(t *testing.T) {
	env := newTestEnv(t)
	owner := "u1"
	env.orders.byID["o1"] = &order.Order{ID: "o1", UserID: &owner, Status: order.StatusPending}
	env.payments.byOrder["o1"] = &payment.Payment{
		ID:      "pay-1",
		OrderID: "o1",
		Method:  "Cash on Delivery (Demo)",
		Status:  payment.StatusCompleted,
	}

	rec := env.do(t, http.MethodGet, "/api/orders/o1/payment", "", userIdentity())

	require.Equal(t, http.StatusOK, rec.Code)

	var resp paymentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pay-1", resp.ID)
	assert.Equal(t, string(payment.StatusCompleted), resp.Status)
}

func TestGetOrderPayment_NotYetRecorded(t *testing.T) {
	env := newTestEnv(t)
	owner := "u1"
	env.orders.byID["o1"] = &order.Order{ID: "o1", UserID: &owner, Status: order.StatusPending}

	rec := env.do(t, http.MethodGet, "/api/orders/o1/payment", "", userIdentity())

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminUpdateOrderStatus(t *testing.T) {
	env := newTestEnv(t)
	owner := "u1"
	env.orders.byID["o1"] = &order.Order{ID: "o1", UserID: &owner, Status: order.StatusPending}

	rec := env.do(t, http.MethodPatch, "/api/admin/orders/o1/status", `{"status":"SHIPPED"}`, adminIdentity())

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, order.StatusShipped, env.orders.byID["o1"].Status)
}

func TestAdminUpdateOrderStatus_UnknownStatus(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPatch, "/api/admin/orders/o1/status", `{"status":"TELEPORTED"}`, adminIdentity())

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminEndpoints_RequireAdminKey(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPatch, "/api/admin/orders/o1/status", `{"status":"SHIPPED"}`, userIdentity())

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminCreateProduct(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/admin/products",
		`{"name":"Widget","price":"10.00","stock":5}`, adminIdentity())

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp productResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Widget", resp.Name)
	assert.NotEmpty(t, resp.ID)
	require.Len(t, env.products.byID, 1)
}

func TestAdminCreateProduct_InvalidPrice(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/admin/products",
		`{"name":"Widget","price":"not-a-number","stock":5}`, adminIdentity())

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStorageErrorIsOpaque(t *testing.T) {
	env := newTestEnv(t)
	p := testProduct("p1", "Widget", "10.00", 5)
	env.products.byID["p1"] = p
	env.carts.lines = []cart.Line{cartLineFor(p, "c1", 1)}
	env.orders.createErr = errors.New("connection refused to host db-1.internal")

	rec := env.do(t, http.MethodPost, "/api/checkout", `{"shippingAddress":"x"}`, userIdentity())

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db-1.internal")
}
