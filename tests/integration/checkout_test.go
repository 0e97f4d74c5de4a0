//go:build integration

package integration

import (
	"net/http"
	"regexp"
	"testing"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func TestPreview_SingleProduct(t *testing.T) {
	req := checkoutRequest{
		Pickup: true,
		Lines:  []lineRequest{{ProductID: productMargherita, Quantity: 1}},
	}
	resp := doPost(t, "/api/v1/checkout/preview", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	quote := decodeJSON[quoteResponse](t, resp)
	if quote.StoreID != seedStore {
		t.Errorf("store_id: got %q, want %q", quote.StoreID, seedStore)
	}
	if quote.StoreName != "Bella Napoli Paulista" {
		t.Errorf("store_name: got %q", quote.StoreName)
	}
	if quote.Subtotal != 5200 {
		t.Errorf("subtotal: got %d, want 5200", quote.Subtotal)
	}
	if quote.Shipping != 0 {
		t.Errorf("shipping: got %d, want 0", quote.Shipping)
	}
	if quote.Discount != 0 {
		t.Errorf("discount: got %d, want 0", quote.Discount)
	}
	if quote.Total != 5200 {
		t.Errorf("total: got %d, want 5200", quote.Total)
	}
	if len(quote.Lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(quote.Lines))
	}
	if quote.Lines[0].Name != "Pizza Margherita" {
		t.Errorf("line name: got %q", quote.Lines[0].Name)
	}
	if len(quote.Campaigns) != 0 {
		t.Errorf("expected no campaigns, got %d", len(quote.Campaigns))
	}
}

func TestPreview_AdditionalsRollIntoUnitPrice(t *testing.T) {
	req := checkoutRequest{
		Pickup: true,
		Lines: []lineRequest{{
			ProductID:     productMargherita,
			Quantity:      2,
			AdditionalIDs: []string{additionalCheese},
		}},
	}
	resp := doPost(t, "/api/v1/checkout/preview", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	quote := decodeJSON[quoteResponse](t, resp)
	if len(quote.Lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(quote.Lines))
	}

	// 5200 base + 700 extra cheese, per unit.
	line := quote.Lines[0]
	if line.UnitPrice != 5900 {
		t.Errorf("unit price: got %d, want 5900", line.UnitPrice)
	}
	if line.Total != 11800 {
		t.Errorf("line total: got %d, want 11800", line.Total)
	}
	if len(line.Additionals) != 1 || line.Additionals[0].ID != additionalCheese {
		t.Errorf("additionals: got %+v", line.Additionals)
	}
}

func TestPreview_FreeShippingOverThreshold(t *testing.T) {
	req := checkoutRequest{
		Delivery: &deliveryInfo{
			Address:    "Rua Augusta, 2000",
			PostalCode: overridePostal,
		},
		Lines: []lineRequest{{ProductID: productPepperoni, Quantity: 2}},
	}
	resp := doPost(t, "/api/v1/checkout/preview", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	quote := decodeJSON[quoteResponse](t, resp)
	if !quote.ShippingDefined {
		t.Fatalf("shipping undefined: %s", quote.ShippingReason)
	}
	// Subtotal 11600 crosses the free-delivery threshold, so the 500 cent
	// postal override is zeroed by the campaign.
	if quote.Shipping != 0 {
		t.Errorf("shipping: got %d, want 0", quote.Shipping)
	}
	if quote.Total != 11600 {
		t.Errorf("total: got %d, want 11600", quote.Total)
	}
	if !hasCampaign(quote.Campaigns, "Free delivery over R$80") {
		t.Errorf("free delivery campaign not applied: %+v", quote.Campaigns)
	}
}

func TestPreview_GiftOverThreshold(t *testing.T) {
	req := checkoutRequest{
		Pickup: true,
		Lines:  []lineRequest{{ProductID: productMargherita, Quantity: 3}},
	}
	resp := doPost(t, "/api/v1/checkout/preview", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	quote := decodeJSON[quoteResponse](t, resp)
	if quote.Total != 15600 {
		t.Errorf("total: got %d, want 15600", quote.Total)
	}

	var gift *lineResponse
	for i := range quote.Lines {
		if quote.Lines[i].Gift {
			gift = &quote.Lines[i]
			break
		}
	}
	if gift == nil {
		t.Fatalf("no gift line in %+v", quote.Lines)
	}
	if gift.ProductID != productTiramisu {
		t.Errorf("gift product: got %q, want tiramisu", gift.ProductID)
	}
	if gift.UnitPrice != 0 || gift.Total != 0 {
		t.Errorf("gift is not free: unit %d total %d", gift.UnitPrice, gift.Total)
	}
	if !hasCampaign(quote.Campaigns, "Dessert on the house over R$120") {
		t.Errorf("gift campaign not applied: %+v", quote.Campaigns)
	}
}

func TestPreview_WelcomeCoupon(t *testing.T) {
	req := checkoutRequest{
		Pickup:     true,
		CouponCode: "WELCOME10",
		Lines:      []lineRequest{{ProductID: productMargherita, Quantity: 1}},
	}
	resp := doPost(t, "/api/v1/checkout/preview", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	quote := decodeJSON[quoteResponse](t, resp)
	// 5200 * 10% = 520.
	if quote.Discount != 520 {
		t.Errorf("discount: got %d, want 520", quote.Discount)
	}
	if quote.Total != 4680 {
		t.Errorf("total: got %d, want 4680", quote.Total)
	}
	if !hasCampaign(quote.Campaigns, "Welcome 10% off") {
		t.Errorf("welcome campaign not applied: %+v", quote.Campaigns)
	}
}

func TestPreview_CouponBelowMinimum(t *testing.T) {
	req := checkoutRequest{
		Pickup:     true,
		CouponCode: "WELCOME10",
		Lines:      []lineRequest{{ProductID: productSoda, Quantity: 1}},
	}
	resp := doPost(t, "/api/v1/checkout/preview", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestPreview_InvalidCoupon(t *testing.T) {
	req := checkoutRequest{
		Pickup:     true,
		CouponCode: "NONEXISTENT",
		Lines:      []lineRequest{{ProductID: productMargherita, Quantity: 1}},
	}
	resp := doPost(t, "/api/v1/checkout/preview", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestPreview_UnknownProduct(t *testing.T) {
	req := checkoutRequest{
		Pickup: true,
		Lines:  []lineRequest{{ProductID: "00000000-0000-4000-8000-000000000000", Quantity: 1}},
	}
	resp := doPost(t, "/api/v1/checkout/preview", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestPreview_EmptyLines(t *testing.T) {
	req := checkoutRequest{Pickup: true, Lines: []lineRequest{}}
	resp := doPost(t, "/api/v1/checkout/preview", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	errResp := decodeJSON[errorResponse](t, resp)
	if errResp.Field != "lines" {
		t.Errorf("field: got %q, want lines", errResp.Field)
	}
}

func TestPreview_MissingTenantHeader(t *testing.T) {
	req := checkoutRequest{
		Pickup: true,
		Lines:  []lineRequest{{ProductID: productMargherita, Quantity: 1}},
	}
	resp := doPostTenant(t, "/api/v1/checkout/preview", req, "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestPreview_MadeToOrderWithoutSchedule(t *testing.T) {
	req := checkoutRequest{
		Pickup: true,
		Lines:  []lineRequest{{ProductID: productLemonade, Quantity: 1}},
	}
	resp := doPost(t, "/api/v1/checkout/preview", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	errResp := decodeJSON[errorResponse](t, resp)
	if errResp.Field != "lines[0].product_id" {
		t.Errorf("field: got %q, want lines[0].product_id", errResp.Field)
	}
}

func TestCheckout_Pickup(t *testing.T) {
	req := pickupOrder(lineRequest{ProductID: productMargherita, Quantity: 1})
	resp := doPost(t, "/api/v1/checkout", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	receipt := decodeJSON[receiptResponse](t, resp)
	order := receipt.Order

	if !uuidPattern.MatchString(order.ID) {
		t.Errorf("order id %q is not a UUID", order.ID)
	}
	if receipt.TrackingToken == "" {
		t.Error("tracking token is empty")
	}
	if order.Status != "received" {
		t.Errorf("status: got %q, want received", order.Status)
	}
	if !order.Pickup {
		t.Error("pickup flag lost")
	}
	if order.Total != 5200 {
		t.Errorf("total: got %d, want 5200", order.Total)
	}
	if order.Payment == nil {
		t.Fatal("payment missing")
	}
	if order.Payment.Method != "pix" || order.Payment.Amount != 5200 || order.Payment.Status != "pending" {
		t.Errorf("payment: got %+v", order.Payment)
	}
	if order.Delivery != nil {
		t.Errorf("pickup order has a delivery record: %+v", order.Delivery)
	}
}

func TestCheckout_TrackingRoundTrip(t *testing.T) {
	req := pickupOrder(lineRequest{ProductID: productMargherita, Quantity: 1})
	resp := doPost(t, "/api/v1/checkout", req)
	if resp.StatusCode != http.StatusCreated {
		resp.Body.Close()
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	receipt := decodeJSON[receiptResponse](t, resp)
	resp.Body.Close()

	// The issued token unlocks the order.
	resp = doGet(t, "/api/v1/orders/"+receipt.Order.ID+"/tracking?token="+receipt.TrackingToken)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	tracked := decodeJSON[orderResponse](t, resp)
	if tracked.ID != receipt.Order.ID {
		t.Errorf("tracked order id: got %q, want %q", tracked.ID, receipt.Order.ID)
	}

	// A wrong token is indistinguishable from a missing order.
	resp2 := doGet(t, "/api/v1/orders/"+receipt.Order.ID+"/tracking?token=bogus")
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("wrong token: expected 404, got %d", resp2.StatusCode)
	}
}

func TestCheckout_DeliveryWithOverridePostal(t *testing.T) {
	req := pickupOrder(lineRequest{ProductID: productPepperoni, Quantity: 2})
	req.Pickup = false
	req.Delivery = &deliveryInfo{
		Address:    "Rua Augusta, 2000",
		PostalCode: overridePostal,
	}
	// The override sets the resolved fee to 500, which the client must
	// echo; the free delivery campaign then zeroes it.
	req.ClientShipping = 500

	resp := doPost(t, "/api/v1/checkout", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	order := decodeJSON[receiptResponse](t, resp).Order
	if order.Shipping != 0 {
		t.Errorf("shipping: got %d, want 0", order.Shipping)
	}
	if order.Total != 11600 {
		t.Errorf("total: got %d, want 11600", order.Total)
	}
	if order.Delivery == nil {
		t.Fatal("delivery record missing")
	}
	if order.Delivery.PostalCode != overridePostal {
		t.Errorf("postal code: got %q, want %q", order.Delivery.PostalCode, overridePostal)
	}
	if order.Delivery.Fee != 0 {
		t.Errorf("delivery fee: got %d, want 0", order.Delivery.Fee)
	}
}

func TestCheckout_ShippingMismatch(t *testing.T) {
	req := pickupOrder(lineRequest{ProductID: productMargherita, Quantity: 1})
	req.Pickup = false
	req.Delivery = &deliveryInfo{PostalCode: overridePostal}
	req.ClientShipping = 100 // resolver says 500

	resp := doPost(t, "/api/v1/checkout", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	errResp := decodeJSON[errorResponse](t, resp)
	if errResp.Field != "shipping_cents" {
		t.Errorf("field: got %q, want shipping_cents", errResp.Field)
	}
}

func TestCheckout_MissingPhone(t *testing.T) {
	req := pickupOrder(lineRequest{ProductID: productMargherita, Quantity: 1})
	req.Customer = nil

	resp := doPost(t, "/api/v1/checkout", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	errResp := decodeJSON[errorResponse](t, resp)
	if errResp.Field != "customer.phone" {
		t.Errorf("field: got %q, want customer.phone", errResp.Field)
	}
}

func TestCheckout_MissingPaymentMethod(t *testing.T) {
	req := pickupOrder(lineRequest{ProductID: productMargherita, Quantity: 1})
	req.Payment = nil

	resp := doPost(t, "/api/v1/checkout", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	errResp := decodeJSON[errorResponse](t, resp)
	if errResp.Field != "payment.method" {
		t.Errorf("field: got %q, want payment.method", errResp.Field)
	}
}

func TestCheckout_InsufficientStock(t *testing.T) {
	req := pickupOrder(lineRequest{ProductID: productTiramisu, Quantity: 99})

	resp := doPost(t, "/api/v1/checkout", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	errResp := decodeJSON[errorResponse](t, resp)
	if len(errResp.Shortfalls) != 1 {
		t.Fatalf("expected 1 shortfall, got %+v", errResp.Shortfalls)
	}
	s := errResp.Shortfalls[0]
	if s.ProductID != productTiramisu {
		t.Errorf("shortfall product: got %q, want tiramisu", s.ProductID)
	}
	if s.Available != 10 || s.Requested != 99 {
		t.Errorf("shortfall: got available %d requested %d, want 10/99", s.Available, s.Requested)
	}
}

func TestTrack_UnknownOrder(t *testing.T) {
	resp := doGet(t, "/api/v1/orders/00000000-0000-4000-8000-000000000000/tracking?token=whatever")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func hasCampaign(applied []appliedCampaign, name string) bool {
	for _, c := range applied {
		if c.Name == name {
			return true
		}
	}
	return false
}
