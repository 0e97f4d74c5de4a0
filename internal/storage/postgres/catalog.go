package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/storelink/checkout/internal/domain/catalog"
)

const (
	getStoreSQL = `SELECT id, tenant_id, name, timezone, address, postal_code, lat, lng,
		shipping_method, fixed_shipping_cents, pre_orders_enabled,
		hours, hours_exceptions, active, created_at
		FROM stores WHERE tenant_id = $1 AND id = $2`

	firstActiveStoreSQL = `SELECT id, tenant_id, name, timezone, address, postal_code, lat, lng,
		shipping_method, fixed_shipping_cents, pre_orders_enabled,
		hours, hours_exceptions, active, created_at
		FROM stores WHERE tenant_id = $1 AND active
		ORDER BY created_at, id LIMIT 1`

	getProductsByIDsSQL = `SELECT p.id, p.tenant_id, p.category_id, p.name, p.description, p.image_url,
		p.price_cents, p.availability, p.active,
		COALESCE(array_agg(pa.additional_id ORDER BY pa.additional_id) FILTER (WHERE pa.additional_id IS NOT NULL), '{}')
		FROM products p
		LEFT JOIN product_additionals pa ON pa.product_id = p.id
		WHERE p.tenant_id = $1 AND p.id = ANY($2)
		GROUP BY p.id`

	getAdditionalsByIDsSQL = `SELECT id, name, price_cents, active
		FROM additionals WHERE tenant_id = $1 AND id = ANY($2)`
)

var _ catalog.StoreRepository = (*StoreRepository)(nil)

// StoreRepository implements catalog.StoreRepository backed by PostgreSQL.
type StoreRepository struct {
	db DB
}

// NewStoreRepository returns a StoreRepository that uses the given querier.
func NewStoreRepository(db DB) *StoreRepository {
	return &StoreRepository{db: db}
}

// GetByID returns a single store scoped to the tenant.
func (r *StoreRepository) GetByID(ctx context.Context, tenantID, id string) (*catalog.Store, error) {
	if !uuidOK(id) {
		return nil, catalog.ErrStoreNotFound
	}
	rows, err := r.db.Query(ctx, getStoreSQL, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("getting store %q: %w", id, err)
	}

	s, err := pgx.CollectExactlyOneRow(rows, scanStore)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrStoreNotFound
		}
		return nil, fmt.Errorf("getting store %q: %w", id, err)
	}
	return &s, nil
}

// FirstActive returns the tenant's oldest active store.
func (r *StoreRepository) FirstActive(ctx context.Context, tenantID string) (*catalog.Store, error) {
	rows, err := r.db.Query(ctx, firstActiveStoreSQL, tenantID)
	if err != nil {
		return nil, fmt.Errorf("getting first active store: %w", err)
	}

	s, err := pgx.CollectExactlyOneRow(rows, scanStore)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrStoreNotFound
		}
		return nil, fmt.Errorf("getting first active store: %w", err)
	}
	return &s, nil
}

// storeWindow and storeException are the JSONB shapes of the stores.hours
// and stores.hours_exceptions columns.
type storeWindow struct {
	Weekday int    `json:"weekday"`
	Open    string `json:"open"`
	Close   string `json:"close"`
}

type storeException struct {
	Date    string      `json:"date"`
	Closed  bool        `json:"closed,omitempty"`
	Windows []dayWindow `json:"windows,omitempty"`
}

type dayWindow struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

func scanStore(row pgx.CollectableRow) (catalog.Store, error) {
	var (
		s        catalog.Store
		hoursRaw []byte
		excRaw   []byte
	)
	err := row.Scan(
		&s.ID, &s.TenantID, &s.Name, &s.Timezone, &s.Address, &s.PostalCode,
		&s.Lat, &s.Lng, &s.ShippingMethod, &s.FixedShipping, &s.PreOrdersEnabled,
		&hoursRaw, &excRaw, &s.Active, &s.CreatedAt,
	)
	if err != nil {
		return catalog.Store{}, err
	}

	var windows []storeWindow
	if err := json.Unmarshal(hoursRaw, &windows); err != nil {
		return catalog.Store{}, fmt.Errorf("decoding store %q hours: %w", s.ID, err)
	}
	for _, w := range windows {
		s.Hours = append(s.Hours, catalog.WeeklyWindow{
			Weekday: time.Weekday(w.Weekday),
			Open:    w.Open,
			Close:   w.Close,
		})
	}

	var exceptions []storeException
	if err := json.Unmarshal(excRaw, &exceptions); err != nil {
		return catalog.Store{}, fmt.Errorf("decoding store %q hour exceptions: %w", s.ID, err)
	}
	for _, exc := range exceptions {
		conv := catalog.DateException{Date: exc.Date, Closed: exc.Closed}
		for _, w := range exc.Windows {
			conv.Windows = append(conv.Windows, catalog.HourWindow{Open: w.Open, Close: w.Close})
		}
		s.Exceptions = append(s.Exceptions, conv)
	}
	return s, nil
}

var _ catalog.ProductRepository = (*ProductRepository)(nil)

// ProductRepository implements catalog.ProductRepository backed by
// PostgreSQL.
type ProductRepository struct {
	db DB
}

// NewProductRepository returns a ProductRepository that uses the given
// querier.
func NewProductRepository(db DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetByIDs returns the tenant's products matching any of the given IDs,
// each carrying the IDs of the additionals offered for it.
func (r *ProductRepository) GetByIDs(ctx context.Context, tenantID string, ids []string) ([]catalog.Product, error) {
	ids = onlyUUIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, getProductsByIDsSQL, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// AdditionalsByIDs returns the tenant's additionals matching any of the
// given IDs.
func (r *ProductRepository) AdditionalsByIDs(ctx context.Context, tenantID string, ids []string) ([]catalog.Additional, error) {
	ids = onlyUUIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, getAdditionalsByIDsSQL, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("getting additionals by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanAdditional)
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var (
		p          catalog.Product
		categoryID *string
	)
	err := row.Scan(
		&p.ID, &p.TenantID, &categoryID, &p.Name, &p.Description, &p.ImageURL,
		&p.Price, &p.Availability, &p.Active, &p.AdditionalIDs,
	)
	p.CategoryID = derefText(categoryID)
	return p, err
}

func scanAdditional(row pgx.CollectableRow) (catalog.Additional, error) {
	var a catalog.Additional
	err := row.Scan(&a.ID, &a.Name, &a.Price, &a.Active)
	return a, err
}

// uuidOK reports whether s parses as a UUID. Client-supplied ids flow into
// UUID columns, where malformed text errors the whole query instead of
// matching nothing.
func uuidOK(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func onlyUUIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if uuidOK(id) {
			out = append(out, id)
		}
	}
	return out
}
