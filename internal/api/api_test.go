package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storelink/checkout/internal/domain/campaign"
	"github.com/storelink/checkout/internal/domain/catalog"
	"github.com/storelink/checkout/internal/domain/checkout"
	"github.com/storelink/checkout/internal/domain/inventory"
)

const (
	testTenant = "b3a6b6aa-3f6a-4a0e-9a59-5f0c9a3d4a10"
	testStore  = "1f0f9c2e-8b1f-4f64-9d3e-2b6f3a6d9c21"
	testOrder  = "9a4b7c3d-5e6f-4a1b-8c9d-0e1f2a3b4c5d"
)

type fakeService struct {
	quote   *checkout.Quote
	receipt *checkout.Receipt
	order   *checkout.Order
	err     error

	gotTenant  string
	gotReq     *checkout.Request
	gotOrderID string
	gotToken   string
}

func (f *fakeService) Preview(_ context.Context, tenantID string, req *checkout.Request) (*checkout.Quote, error) {
	f.gotTenant, f.gotReq = tenantID, req
	return f.quote, f.err
}

func (f *fakeService) Checkout(_ context.Context, tenantID string, req *checkout.Request) (*checkout.Receipt, error) {
	f.gotTenant, f.gotReq = tenantID, req
	return f.receipt, f.err
}

func (f *fakeService) Track(_ context.Context, tenantID, orderID, token string) (*checkout.Order, error) {
	f.gotTenant, f.gotOrderID, f.gotToken = tenantID, orderID, token
	return f.order, f.err
}

type fakeStores struct {
	store *catalog.Store
	err   error
}

func (f *fakeStores) GetByID(context.Context, string, string) (*catalog.Store, error) {
	if f.store == nil {
		return nil, catalog.ErrStoreNotFound
	}
	return f.store, nil
}

func (f *fakeStores) FirstActive(context.Context, string) (*catalog.Store, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.store == nil {
		return nil, catalog.ErrStoreNotFound
	}
	return f.store, nil
}

func do(t *testing.T, h *Handler, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(tenantHeader, testTenant)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestPreviewReturnsQuote(t *testing.T) {
	km := decimal.RequireFromString("7.25")
	svc := &fakeService{quote: &checkout.Quote{
		StoreID:   testStore,
		StoreName: "Centro",
		Lines: []checkout.PricedLine{
			{
				ProductID: "p1", Name: "Burger", UnitPrice: 2800, Quantity: 2, Total: 5600,
				Additionals: []checkout.ItemAdditional{{ID: "a1", Name: "Cheese", Price: 300}},
			},
			{ProductID: "p2", Name: "Soda", UnitPrice: 0, Quantity: 1, Total: 0, Gift: true},
		},
		Subtotal:        5600,
		Discount:        560,
		Shipping:        2700,
		ShippingDefined: true,
		DistanceKm:      &km,
		Total:           7740,
		Campaigns:       []checkout.AppliedCampaign{{CampaignID: "c1", Name: "Tenner", Discount: 560}},
	}}
	h := NewHandler(svc, &fakeStores{})

	rec := do(t, h, http.MethodPost, "/api/v1/checkout/preview",
		`{"store_id":"`+testStore+`","lines":[{"product_id":"p1","quantity":2,"additional_ids":["a1"]}]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	assert.Equal(t, testTenant, svc.gotTenant)
	require.NotNil(t, svc.gotReq)
	assert.Equal(t, testStore, svc.gotReq.StoreID)
	require.Len(t, svc.gotReq.Lines, 1)
	assert.Equal(t, []string{"a1"}, svc.gotReq.Lines[0].AdditionalIDs)

	body := decodeBody(t, rec)
	assert.Equal(t, "Centro", body["store_name"])
	assert.Equal(t, float64(5600), body["subtotal_cents"])
	assert.Equal(t, float64(560), body["discount_cents"])
	assert.Equal(t, float64(2700), body["shipping_cents"])
	assert.Equal(t, true, body["shipping_defined"])
	assert.Equal(t, float64(7.25), body["distance_km"])
	assert.Equal(t, float64(7740), body["total_cents"])

	lines, ok := body["lines"].([]any)
	require.True(t, ok)
	require.Len(t, lines, 2)
	first := lines[0].(map[string]any)
	assert.Equal(t, "Burger", first["name"])
	assert.Equal(t, float64(2800), first["unit_price_cents"])
	adds := first["additionals"].([]any)
	require.Len(t, adds, 1)
	assert.Equal(t, "Cheese", adds[0].(map[string]any)["name"])
	gift := lines[1].(map[string]any)
	assert.Equal(t, true, gift["gift"])

	campaigns := body["campaigns"].([]any)
	require.Len(t, campaigns, 1)
	assert.Equal(t, "Tenner", campaigns[0].(map[string]any)["name"])
}

func TestPreviewUndefinedShippingCarriesReason(t *testing.T) {
	svc := &fakeService{quote: &checkout.Quote{
		StoreID:        testStore,
		ShippingReason: "out_of_area",
	}}
	h := NewHandler(svc, &fakeStores{})

	rec := do(t, h, http.MethodPost, "/api/v1/checkout/preview",
		`{"store_id":"`+testStore+`","lines":[]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, false, body["shipping_defined"])
	assert.Equal(t, "out_of_area", body["shipping_reason"])
	_, hasKm := body["distance_km"]
	assert.False(t, hasKm)
}

func TestCheckoutCreatesOrder(t *testing.T) {
	created := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	sched := time.Date(2026, 9, 1, 18, 30, 0, 0, time.UTC)
	km := decimal.RequireFromString("3.2")
	svc := &fakeService{receipt: &checkout.Receipt{
		Order: &checkout.Order{
			ID:        testOrder,
			StoreID:   testStore,
			Status:    checkout.StatusReceived,
			Subtotal:  5000,
			Shipping:  800,
			Total:     5800,
			CreatedAt: created,
			Items: []checkout.OrderItem{
				{ID: "i1", ProductID: "p1", Name: "Burger", UnitPrice: 2500, Quantity: 2, Total: 5000},
			},
			Payment:  &checkout.Payment{ID: "pay1", Method: "pix", Amount: 5800, Status: checkout.PaymentPending},
			Delivery: &checkout.Delivery{ID: "d1", Address: "Av. Paulista 1000", PostalCode: "01310-100", DistanceKm: &km, Fee: 800},
		},
		TrackingToken: "deadbeef",
	}}
	h := NewHandler(svc, &fakeStores{})

	body := `{
		"store_id": "` + testStore + `",
		"coupon_code": "SAVE10",
		"customer": {"name": "Ana", "phone": "+55 11 98765-4321"},
		"payment": {"method": "pix"},
		"delivery": {"address": "Av. Paulista 1000", "postal_code": "01310-100", "lat": -23.5614, "lng": -46.6559},
		"client_shipping_cents": 800,
		"note": "ring twice",
		"delivery_date": "2026-09-01T18:30:00Z",
		"confirm_closed": true,
		"lines": [
			{"product_id": "p1", "quantity": 2, "note": "no onion"},
			{"custom_name": "Birthday cake", "custom_price_cents": 6000, "quantity": 1}
		]
	}`
	rec := do(t, h, http.MethodPost, "/api/v1/checkout", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	req := svc.gotReq
	require.NotNil(t, req)
	assert.Equal(t, "SAVE10", req.CouponCode)
	assert.Equal(t, "Ana", req.CustomerName)
	assert.Equal(t, "+55 11 98765-4321", req.CustomerPhone)
	assert.Equal(t, "pix", req.PaymentMethod)
	assert.Equal(t, "Av. Paulista 1000", req.Address.Address)
	assert.Equal(t, "01310-100", req.Address.PostalCode)
	require.NotNil(t, req.Address.Lat)
	assert.InDelta(t, -23.5614, *req.Address.Lat, 1e-9)
	assert.Equal(t, int64(800), req.ClientShipping)
	assert.Equal(t, "ring twice", req.Note)
	require.NotNil(t, req.DeliveryDate)
	assert.True(t, req.DeliveryDate.Equal(sched))
	assert.True(t, req.ConfirmClosed)
	require.Len(t, req.Lines, 2)
	assert.Equal(t, "no onion", req.Lines[0].Note)
	assert.Equal(t, "Birthday cake", req.Lines[1].CustomName)
	assert.Equal(t, int64(6000), req.Lines[1].CustomPrice)

	resp := decodeBody(t, rec)
	assert.Equal(t, "deadbeef", resp["tracking_token"])
	order := resp["order"].(map[string]any)
	assert.Equal(t, testOrder, order["id"])
	assert.Equal(t, "received", order["status"])
	assert.Equal(t, float64(5800), order["total_cents"])
	assert.Equal(t, "2026-08-25T12:00:00Z", order["created_at"])
	delivery := order["delivery"].(map[string]any)
	assert.Equal(t, float64(3.2), delivery["distance_km"])
	payment := order["payment"].(map[string]any)
	assert.Equal(t, "pending", payment["status"])
}

func TestCheckoutFillsDefaultStore(t *testing.T) {
	svc := &fakeService{receipt: &checkout.Receipt{Order: &checkout.Order{ID: testOrder}}}
	stores := &fakeStores{store: &catalog.Store{ID: testStore, Name: "Centro", Active: true}}
	h := NewHandler(svc, stores)

	rec := do(t, h, http.MethodPost, "/api/v1/checkout",
		`{"lines":[{"product_id":"p1","quantity":1}]}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, svc.gotReq)
	assert.Equal(t, testStore, svc.gotReq.StoreID)
}

func TestCheckoutNoActiveStore(t *testing.T) {
	svc := &fakeService{}
	h := NewHandler(svc, &fakeStores{})

	rec := do(t, h, http.MethodPost, "/api/v1/checkout",
		`{"lines":[{"product_id":"p1","quantity":1}]}`, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Nil(t, svc.gotReq)
}

func TestTenantHeaderRequired(t *testing.T) {
	h := NewHandler(&fakeService{}, &fakeStores{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["message"], "missing X-Tenant-ID")

	rec = do(t, h, http.MethodPost, "/api/v1/checkout", `{}`, map[string]string{tenantHeader: "not-a-uuid"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["message"], "malformed X-Tenant-ID")
}

func TestMalformedBody(t *testing.T) {
	h := NewHandler(&fakeService{}, &fakeStores{})

	for _, body := range []string{"", "{", `[]`} {
		rec := do(t, h, http.MethodPost, "/api/v1/checkout", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
}

func TestDomainErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", &checkout.ValidationError{Field: "lines[0].quantity", Reason: "must be positive"}, http.StatusBadRequest},
		{"not found", &checkout.NotFoundError{Entity: "product", ID: "p9"}, http.StatusNotFound},
		{"state conflict", &checkout.StateConflictError{Reason: "store is closed"}, http.StatusConflict},
		{"invalid coupon", campaign.ErrInvalidCoupon, http.StatusUnprocessableEntity},
		{"expired coupon", campaign.ErrCouponExpired, http.StatusUnprocessableEntity},
		{"exhausted coupon", campaign.ErrCouponUsageLimitReached, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&fakeService{err: tt.err}, &fakeStores{})
			rec := do(t, h, http.MethodPost, "/api/v1/checkout",
				`{"store_id":"`+testStore+`","lines":[{"product_id":"p1","quantity":1}]}`, nil)
			require.Equal(t, tt.wantStatus, rec.Code)

			body := decodeBody(t, rec)
			assert.Equal(t, float64(tt.wantStatus), body["code"])
			assert.Equal(t, tt.err.Error(), body["message"])
		})
	}
}

func TestValidationErrorCarriesField(t *testing.T) {
	h := NewHandler(&fakeService{err: &checkout.ValidationError{Field: "customer.phone", Reason: "required"}}, &fakeStores{})
	rec := do(t, h, http.MethodPost, "/api/v1/checkout",
		`{"store_id":"`+testStore+`","lines":[]}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "customer.phone", decodeBody(t, rec)["field"])
}

func TestInsufficientStockListsShortfalls(t *testing.T) {
	h := NewHandler(&fakeService{err: &inventory.InsufficientStockError{
		Shortfalls: []inventory.Shortfall{
			{ProductID: "p1", Available: 1, Requested: 3},
			{ProductID: "p2", Available: 0, Requested: 1},
		},
	}}, &fakeStores{})

	rec := do(t, h, http.MethodPost, "/api/v1/checkout",
		`{"store_id":"`+testStore+`","lines":[{"product_id":"p1","quantity":3}]}`, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	body := decodeBody(t, rec)
	shortfalls := body["shortfalls"].([]any)
	require.Len(t, shortfalls, 2)
	first := shortfalls[0].(map[string]any)
	assert.Equal(t, "p1", first["product_id"])
	assert.Equal(t, float64(1), first["available"])
	assert.Equal(t, float64(3), first["requested"])
}

func TestInternalErrorIsOpaque(t *testing.T) {
	h := NewHandler(&fakeService{err: errors.New("pg: connection refused")}, &fakeStores{})
	rec := do(t, h, http.MethodPost, "/api/v1/checkout",
		`{"store_id":"`+testStore+`","lines":[]}`, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "internal error", body["message"])
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestTrackOrder(t *testing.T) {
	svc := &fakeService{order: &checkout.Order{
		ID:      testOrder,
		StoreID: testStore,
		Status:  checkout.StatusDispatched,
		Pickup:  true,
		Total:   5000,
		Items: []checkout.OrderItem{
			{ID: "i1", ProductID: "p1", Name: "Burger", UnitPrice: 2500, Quantity: 2, Total: 5000},
		},
		Campaigns: []checkout.AppliedCampaign{{CampaignID: "c1", Name: "Tenner", Discount: 500}},
	}}
	h := NewHandler(svc, &fakeStores{})

	rec := do(t, h, http.MethodGet, "/api/v1/orders/"+testOrder+"/tracking?token=abc123", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testOrder, svc.gotOrderID)
	assert.Equal(t, "abc123", svc.gotToken)

	body := decodeBody(t, rec)
	assert.Equal(t, "dispatched", body["status"])
	assert.Equal(t, true, body["pickup"])
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Burger", items[0].(map[string]any)["name"])
}

func TestTrackUnknownOrder(t *testing.T) {
	h := NewHandler(&fakeService{err: &checkout.NotFoundError{Entity: "order", ID: testOrder}}, &fakeStores{})
	rec := do(t, h, http.MethodGet, "/api/v1/orders/"+testOrder+"/tracking?token=forged", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
