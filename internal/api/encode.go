package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/jx"

	"github.com/storelink/checkout/internal/domain/checkout"
)

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func encodeQuote(q *checkout.Quote) []byte {
	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("store_id")
	e.Str(q.StoreID)
	e.FieldStart("store_name")
	e.Str(q.StoreName)
	e.FieldStart("lines")
	e.ArrStart()
	for _, line := range q.Lines {
		encodePricedLine(e, line)
	}
	e.ArrEnd()
	e.FieldStart("subtotal_cents")
	e.Int64(q.Subtotal)
	e.FieldStart("discount_cents")
	e.Int64(q.Discount)
	e.FieldStart("shipping_cents")
	e.Int64(q.Shipping)
	e.FieldStart("shipping_defined")
	e.Bool(q.ShippingDefined)
	if !q.ShippingDefined {
		e.FieldStart("shipping_reason")
		e.Str(string(q.ShippingReason))
	}
	if q.DistanceKm != nil {
		e.FieldStart("distance_km")
		e.RawStr(q.DistanceKm.String())
	}
	e.FieldStart("total_cents")
	e.Int64(q.Total)
	e.FieldStart("campaigns")
	e.ArrStart()
	for _, c := range q.Campaigns {
		encodeAppliedCampaign(e, c)
	}
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}

func encodeReceipt(rc *checkout.Receipt) []byte {
	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("order")
	encodeOrderInto(e, rc.Order)
	e.FieldStart("tracking_token")
	e.Str(rc.TrackingToken)
	e.ObjEnd()
	return e.Bytes()
}

func encodeOrder(o *checkout.Order) []byte {
	e := &jx.Encoder{}
	encodeOrderInto(e, o)
	return e.Bytes()
}

func encodeOrderInto(e *jx.Encoder, o *checkout.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("store_id")
	e.Str(o.StoreID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("pickup")
	e.Bool(o.Pickup)
	e.FieldStart("subtotal_cents")
	e.Int64(o.Subtotal)
	e.FieldStart("discount_cents")
	e.Int64(o.Discount)
	e.FieldStart("shipping_cents")
	e.Int64(o.Shipping)
	e.FieldStart("total_cents")
	e.Int64(o.Total)
	if o.CouponCode != "" {
		e.FieldStart("coupon_code")
		e.Str(o.CouponCode)
	}
	if o.Note != "" {
		e.FieldStart("note")
		e.Str(o.Note)
	}
	if o.DeliveryDate != nil {
		e.FieldStart("delivery_date")
		e.Str(o.DeliveryDate.UTC().Format(time.RFC3339))
	}
	e.FieldStart("created_at")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339))

	e.FieldStart("items")
	e.ArrStart()
	for _, item := range o.Items {
		encodeOrderItem(e, item)
	}
	e.ArrEnd()

	if o.Payment != nil {
		e.FieldStart("payment")
		e.ObjStart()
		e.FieldStart("method")
		e.Str(o.Payment.Method)
		e.FieldStart("amount_cents")
		e.Int64(o.Payment.Amount)
		e.FieldStart("status")
		e.Str(o.Payment.Status)
		e.ObjEnd()
	}

	if o.Delivery != nil {
		e.FieldStart("delivery")
		e.ObjStart()
		e.FieldStart("address")
		e.Str(o.Delivery.Address)
		e.FieldStart("postal_code")
		e.Str(o.Delivery.PostalCode)
		if o.Delivery.DistanceKm != nil {
			e.FieldStart("distance_km")
			e.RawStr(o.Delivery.DistanceKm.String())
		}
		e.FieldStart("fee_cents")
		e.Int64(o.Delivery.Fee)
		e.ObjEnd()
	}

	e.FieldStart("campaigns")
	e.ArrStart()
	for _, c := range o.Campaigns {
		encodeAppliedCampaign(e, c)
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodePricedLine(e *jx.Encoder, line checkout.PricedLine) {
	e.ObjStart()
	if line.ProductID != "" {
		e.FieldStart("product_id")
		e.Str(line.ProductID)
	}
	e.FieldStart("name")
	e.Str(line.Name)
	e.FieldStart("unit_price_cents")
	e.Int64(line.UnitPrice)
	e.FieldStart("quantity")
	e.Int(line.Quantity)
	e.FieldStart("total_cents")
	e.Int64(line.Total)
	e.FieldStart("gift")
	e.Bool(line.Gift)
	if line.Note != "" {
		e.FieldStart("note")
		e.Str(line.Note)
	}
	encodeAdditionals(e, line.Additionals)
	e.ObjEnd()
}

func encodeOrderItem(e *jx.Encoder, item checkout.OrderItem) {
	e.ObjStart()
	if item.ProductID != "" {
		e.FieldStart("product_id")
		e.Str(item.ProductID)
	}
	e.FieldStart("name")
	e.Str(item.Name)
	e.FieldStart("unit_price_cents")
	e.Int64(item.UnitPrice)
	e.FieldStart("quantity")
	e.Int(item.Quantity)
	e.FieldStart("total_cents")
	e.Int64(item.Total)
	e.FieldStart("gift")
	e.Bool(item.Gift)
	if item.Note != "" {
		e.FieldStart("note")
		e.Str(item.Note)
	}
	encodeAdditionals(e, item.Additionals)
	e.ObjEnd()
}

func encodeAdditionals(e *jx.Encoder, adds []checkout.ItemAdditional) {
	if len(adds) == 0 {
		return
	}
	e.FieldStart("additionals")
	e.ArrStart()
	for _, a := range adds {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(a.ID)
		e.FieldStart("name")
		e.Str(a.Name)
		e.FieldStart("price_cents")
		e.Int64(a.Price)
		e.ObjEnd()
	}
	e.ArrEnd()
}

func encodeAppliedCampaign(e *jx.Encoder, c checkout.AppliedCampaign) {
	e.ObjStart()
	e.FieldStart("campaign_id")
	e.Str(c.CampaignID)
	e.FieldStart("name")
	e.Str(c.Name)
	e.FieldStart("discount_cents")
	e.Int64(c.Discount)
	e.ObjEnd()
}
