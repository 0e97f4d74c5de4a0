package api

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/storelink/checkout/internal/domain/checkout"
)

// maxBodyBytes bounds how much of a request body is read.
const maxBodyBytes = 1 << 20

// decodeRequest parses the shared preview/checkout request body. Field
// presence is not enforced here: the checkout service owns validation and
// reports missing fields with precise error locations.
func decodeRequest(r *http.Request) (*checkout.Request, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}

	var req checkout.Request
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "store_id":
			v, err := d.Str()
			req.StoreID = v
			return err
		case "pickup":
			v, err := d.Bool()
			req.Pickup = v
			return err
		case "coupon_code":
			v, err := d.Str()
			req.CouponCode = v
			return err
		case "customer":
			return d.Obj(func(d *jx.Decoder, key string) error {
				switch key {
				case "name":
					v, err := d.Str()
					req.CustomerName = v
					return err
				case "phone":
					v, err := d.Str()
					req.CustomerPhone = v
					return err
				default:
					return d.Skip()
				}
			})
		case "payment":
			return d.Obj(func(d *jx.Decoder, key string) error {
				switch key {
				case "method":
					v, err := d.Str()
					req.PaymentMethod = v
					return err
				default:
					return d.Skip()
				}
			})
		case "delivery":
			return d.Obj(func(d *jx.Decoder, key string) error {
				switch key {
				case "address":
					v, err := d.Str()
					req.Address.Address = v
					return err
				case "postal_code":
					v, err := d.Str()
					req.Address.PostalCode = v
					return err
				case "lat":
					v, err := d.Float64()
					req.Address.Lat = &v
					return err
				case "lng":
					v, err := d.Float64()
					req.Address.Lng = &v
					return err
				default:
					return d.Skip()
				}
			})
		case "client_shipping_cents":
			v, err := d.Int64()
			req.ClientShipping = v
			return err
		case "note":
			v, err := d.Str()
			req.Note = v
			return err
		case "delivery_date":
			v, err := d.Str()
			if err != nil {
				return err
			}
			when, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return errors.New("delivery_date must be RFC 3339")
			}
			req.DeliveryDate = &when
			return nil
		case "confirm_closed":
			v, err := d.Bool()
			req.ConfirmClosed = v
			return err
		case "lines":
			return d.Arr(func(d *jx.Decoder) error {
				line, err := decodeLine(d)
				if err != nil {
					return errors.Wrapf(err, "line %d", len(req.Lines))
				}
				req.Lines = append(req.Lines, line)
				return nil
			})
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, err
	}
	return &req, nil
}

func decodeLine(d *jx.Decoder) (checkout.Line, error) {
	var line checkout.Line
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "product_id":
			v, err := d.Str()
			line.ProductID = v
			return err
		case "quantity":
			v, err := d.Int()
			line.Quantity = v
			return err
		case "additional_ids":
			return d.Arr(func(d *jx.Decoder) error {
				v, err := d.Str()
				if err != nil {
					return err
				}
				line.AdditionalIDs = append(line.AdditionalIDs, v)
				return nil
			})
		case "note":
			v, err := d.Str()
			line.Note = v
			return err
		case "custom_name":
			v, err := d.Str()
			line.CustomName = v
			return err
		case "custom_price_cents":
			v, err := d.Int64()
			line.CustomPrice = v
			return err
		default:
			return d.Skip()
		}
	})
	return line, err
}
