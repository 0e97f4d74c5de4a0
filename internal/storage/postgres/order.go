package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/storelink/checkout/internal/domain/checkout"
)

const (
	createOrderSQL = `INSERT INTO orders (id, tenant_id, store_id, customer_id, status, pickup,
		subtotal_cents, discount_cents, shipping_cents, total_cents, coupon_code, note, delivery_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	createOrderItemSQL = `INSERT INTO order_items (id, order_id, product_id, name, unit_price_cents,
		quantity, total_cents, is_gift, note, additionals, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	createPaymentSQL = `INSERT INTO payments (id, order_id, method, amount_cents, status)
		VALUES ($1, $2, $3, $4, $5)`

	createDeliverySQL = `INSERT INTO deliveries (id, order_id, address, postal_code, lat, lng, distance_km, fee_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	createOrderCampaignSQL = `INSERT INTO order_campaigns (order_id, campaign_id, discount_cents, position)
		VALUES ($1, $2, $3, $4)`

	getOrderSQL = `SELECT id, tenant_id, store_id, customer_id, status, pickup,
		subtotal_cents, discount_cents, shipping_cents, total_cents, coupon_code, note, delivery_date, created_at
		FROM orders WHERE tenant_id = $1 AND id = $2`

	getOrderItemsSQL = `SELECT id, product_id, name, unit_price_cents, quantity, total_cents, is_gift, note, additionals
		FROM order_items WHERE order_id = $1 ORDER BY position, id`

	getPaymentSQL = `SELECT id, method, amount_cents, status
		FROM payments WHERE order_id = $1`

	getDeliverySQL = `SELECT id, address, postal_code, lat, lng, distance_km, fee_cents
		FROM deliveries WHERE order_id = $1`

	getOrderCampaignsSQL = `SELECT oc.campaign_id, c.name, oc.discount_cents
		FROM order_campaigns oc
		JOIN campaigns c ON c.id = oc.campaign_id
		WHERE oc.order_id = $1 ORDER BY oc.position, oc.campaign_id`
)

var (
	_ checkout.OrderWriter = (*OrderRepository)(nil)
	_ checkout.OrderReader = (*OrderRepository)(nil)
)

// OrderRepository implements order persistence backed by PostgreSQL.
type OrderRepository struct {
	db DB
}

// NewOrderRepository returns an OrderRepository that uses the given
// querier.
func NewOrderRepository(db DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// itemAdditional is the JSONB shape of one snapshotted additional on the
// order_items.additionals column.
type itemAdditional struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price_cents"`
}

// Create persists the whole order graph in one batch round trip. It is
// meant to run inside the checkout transaction.
func (r *OrderRepository) Create(ctx context.Context, o *checkout.Order) error {
	batch := &pgx.Batch{}
	batch.Queue(createOrderSQL,
		o.ID, o.TenantID, o.StoreID, o.CustomerID, o.Status, o.Pickup,
		o.Subtotal, o.Discount, o.Shipping, o.Total,
		textOrNil(o.CouponCode), o.Note, o.DeliveryDate, o.CreatedAt,
	)

	for i, item := range o.Items {
		adds := make([]itemAdditional, 0, len(item.Additionals))
		for _, a := range item.Additionals {
			adds = append(adds, itemAdditional{ID: a.ID, Name: a.Name, Price: a.Price})
		}
		addsJSON, err := json.Marshal(adds)
		if err != nil {
			return fmt.Errorf("marshaling item additionals: %w", err)
		}
		batch.Queue(createOrderItemSQL,
			item.ID, o.ID, textOrNil(item.ProductID), item.Name, item.UnitPrice,
			item.Quantity, item.Total, item.Gift, item.Note, addsJSON, i,
		)
	}

	if o.Payment != nil {
		batch.Queue(createPaymentSQL,
			o.Payment.ID, o.ID, o.Payment.Method, o.Payment.Amount, o.Payment.Status,
		)
	}
	if o.Delivery != nil {
		batch.Queue(createDeliverySQL,
			o.Delivery.ID, o.ID, o.Delivery.Address, o.Delivery.PostalCode,
			o.Delivery.Lat, o.Delivery.Lng, o.Delivery.DistanceKm, o.Delivery.Fee,
		)
	}
	for i, ac := range o.Campaigns {
		batch.Queue(createOrderCampaignSQL, o.ID, ac.CampaignID, ac.Discount, i)
	}

	br := r.db.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("creating order %q: %w", o.ID, err)
		}
	}
	return br.Close()
}

// GetByID returns the full order graph scoped to the tenant, or
// checkout.ErrOrderNotFound.
func (r *OrderRepository) GetByID(ctx context.Context, tenantID, orderID string) (*checkout.Order, error) {
	if !uuidOK(orderID) {
		return nil, checkout.ErrOrderNotFound
	}
	rows, err := r.db.Query(ctx, getOrderSQL, tenantID, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", orderID, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, checkout.ErrOrderNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", orderID, err)
	}

	if o.Items, err = r.orderItems(ctx, o.ID); err != nil {
		return nil, fmt.Errorf("getting order %q items: %w", orderID, err)
	}
	if o.Payment, err = r.orderPayment(ctx, o.ID); err != nil {
		return nil, fmt.Errorf("getting order %q payment: %w", orderID, err)
	}
	if o.Delivery, err = r.orderDelivery(ctx, o.ID); err != nil {
		return nil, fmt.Errorf("getting order %q delivery: %w", orderID, err)
	}
	if o.Campaigns, err = r.orderCampaigns(ctx, o.ID); err != nil {
		return nil, fmt.Errorf("getting order %q campaigns: %w", orderID, err)
	}
	return &o, nil
}

func (r *OrderRepository) orderItems(ctx context.Context, orderID string) ([]checkout.OrderItem, error) {
	rows, err := r.db.Query(ctx, getOrderItemsSQL, orderID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanOrderItem)
}

func (r *OrderRepository) orderPayment(ctx context.Context, orderID string) (*checkout.Payment, error) {
	rows, err := r.db.Query(ctx, getPaymentSQL, orderID)
	if err != nil {
		return nil, err
	}
	payments, err := pgx.CollectRows(rows, scanPayment)
	if err != nil || len(payments) == 0 {
		return nil, err
	}
	return &payments[0], nil
}

func (r *OrderRepository) orderDelivery(ctx context.Context, orderID string) (*checkout.Delivery, error) {
	rows, err := r.db.Query(ctx, getDeliverySQL, orderID)
	if err != nil {
		return nil, err
	}
	deliveries, err := pgx.CollectRows(rows, scanDelivery)
	if err != nil || len(deliveries) == 0 {
		return nil, err
	}
	return &deliveries[0], nil
}

func (r *OrderRepository) orderCampaigns(ctx context.Context, orderID string) ([]checkout.AppliedCampaign, error) {
	rows, err := r.db.Query(ctx, getOrderCampaignsSQL, orderID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanAppliedCampaign)
}

func scanOrder(row pgx.CollectableRow) (checkout.Order, error) {
	var (
		o      checkout.Order
		coupon *string
	)
	err := row.Scan(
		&o.ID, &o.TenantID, &o.StoreID, &o.CustomerID, &o.Status, &o.Pickup,
		&o.Subtotal, &o.Discount, &o.Shipping, &o.Total,
		&coupon, &o.Note, &o.DeliveryDate, &o.CreatedAt,
	)
	o.CouponCode = derefText(coupon)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (checkout.OrderItem, error) {
	var (
		item      checkout.OrderItem
		productID *string
		addsRaw   []byte
	)
	err := row.Scan(
		&item.ID, &productID, &item.Name, &item.UnitPrice,
		&item.Quantity, &item.Total, &item.Gift, &item.Note, &addsRaw,
	)
	if err != nil {
		return checkout.OrderItem{}, err
	}
	item.ProductID = derefText(productID)

	var adds []itemAdditional
	if err := json.Unmarshal(addsRaw, &adds); err != nil {
		return checkout.OrderItem{}, fmt.Errorf("decoding item %q additionals: %w", item.ID, err)
	}
	for _, a := range adds {
		item.Additionals = append(item.Additionals, checkout.ItemAdditional{ID: a.ID, Name: a.Name, Price: a.Price})
	}
	return item, nil
}

func scanPayment(row pgx.CollectableRow) (checkout.Payment, error) {
	var p checkout.Payment
	err := row.Scan(&p.ID, &p.Method, &p.Amount, &p.Status)
	return p, err
}

func scanDelivery(row pgx.CollectableRow) (checkout.Delivery, error) {
	var d checkout.Delivery
	err := row.Scan(&d.ID, &d.Address, &d.PostalCode, &d.Lat, &d.Lng, &d.DistanceKm, &d.Fee)
	return d, err
}

func scanAppliedCampaign(row pgx.CollectableRow) (checkout.AppliedCampaign, error) {
	var ac checkout.AppliedCampaign
	err := row.Scan(&ac.CampaignID, &ac.Name, &ac.Discount)
	return ac, err
}
