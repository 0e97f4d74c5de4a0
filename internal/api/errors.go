package api

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/storelink/checkout/internal/domain/campaign"
	"github.com/storelink/checkout/internal/domain/checkout"
	"github.com/storelink/checkout/internal/domain/inventory"
)

// writeDomainError maps checkout failures onto the HTTP error surface:
// correctable input 400, unknown references 404, state conflicts and stock
// shortages 409, rejected coupons 422. Anything else is a 500 that logs
// the cause and answers with a generic message.
func (h *Handler) writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		validation *checkout.ValidationError
		notFound   *checkout.NotFoundError
		conflict   *checkout.StateConflictError
		stock      *inventory.InsufficientStockError
	)
	switch {
	case errors.As(err, &validation):
		writeFieldError(w, http.StatusBadRequest, validation.Error(), validation.Field)
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, conflict.Error())
	case errors.As(err, &stock):
		writeStockError(w, stock)
	case errors.Is(err, campaign.ErrInvalidCoupon),
		errors.Is(err, campaign.ErrCouponExpired),
		errors.Is(err, campaign.ErrCouponUsageLimitReached):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.internalError(ctx, w, err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeFieldError(w, status, message, "")
}

func writeFieldError(w http.ResponseWriter, status int, message, field string) {
	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(message)
	if field != "" {
		e.FieldStart("field")
		e.Str(field)
	}
	e.ObjEnd()
	writeJSON(w, status, e.Bytes())
}

func writeStockError(w http.ResponseWriter, err *inventory.InsufficientStockError) {
	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("code")
	e.Int(http.StatusConflict)
	e.FieldStart("message")
	e.Str("insufficient stock")
	e.FieldStart("shortfalls")
	e.ArrStart()
	for _, s := range err.Shortfalls {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Str(s.ProductID)
		e.FieldStart("available")
		e.Int(s.Available)
		e.FieldStart("requested")
		e.Int(s.Requested)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
	writeJSON(w, http.StatusConflict, e.Bytes())
}
