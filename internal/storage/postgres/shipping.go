package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/storelink/checkout/internal/domain/shipping"
)

const (
	listTiersForStoreSQL = `SELECT id, tenant_id, store_id, km_min, km_max, amount_cents
		FROM shipping_tiers
		WHERE tenant_id = $1 AND (store_id = $2 OR store_id IS NULL)
		ORDER BY (store_id IS NULL), km_min, id`

	findOverrideSQL = `SELECT tenant_id, postal_code, amount_cents
		FROM shipping_overrides WHERE tenant_id = $1 AND postal_code = $2`

	upsertOverrideSQL = `INSERT INTO shipping_overrides (tenant_id, postal_code, amount_cents, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (tenant_id, postal_code) DO UPDATE
		SET amount_cents = EXCLUDED.amount_cents, updated_at = now()`
)

var _ shipping.TierRepository = (*TierRepository)(nil)

// TierRepository implements shipping.TierRepository backed by PostgreSQL.
type TierRepository struct {
	db DB
}

// NewTierRepository returns a TierRepository that uses the given querier.
func NewTierRepository(db DB) *TierRepository {
	return &TierRepository{db: db}
}

// ListForStore returns the store's own tiers followed by the tenant-wide
// ones, each group ordered by KmMin.
func (r *TierRepository) ListForStore(ctx context.Context, tenantID, storeID string) ([]shipping.Tier, error) {
	rows, err := r.db.Query(ctx, listTiersForStoreSQL, tenantID, storeID)
	if err != nil {
		return nil, fmt.Errorf("listing shipping tiers: %w", err)
	}
	return pgx.CollectRows(rows, scanTier)
}

func scanTier(row pgx.CollectableRow) (shipping.Tier, error) {
	var (
		t       shipping.Tier
		storeID *string
	)
	err := row.Scan(&t.ID, &t.TenantID, &storeID, &t.KmMin, &t.KmMax, &t.Amount)
	t.StoreID = derefText(storeID)
	return t, err
}

var _ shipping.OverrideRepository = (*OverrideRepository)(nil)

// OverrideRepository implements shipping.OverrideRepository backed by
// PostgreSQL.
type OverrideRepository struct {
	db DB
}

// NewOverrideRepository returns an OverrideRepository that uses the given
// querier.
func NewOverrideRepository(db DB) *OverrideRepository {
	return &OverrideRepository{db: db}
}

// FindByPostalCode returns the manual fee for one postal code, or
// shipping.ErrOverrideNotFound when none is set.
func (r *OverrideRepository) FindByPostalCode(ctx context.Context, tenantID, postalCode string) (*shipping.Override, error) {
	rows, err := r.db.Query(ctx, findOverrideSQL, tenantID, postalCode)
	if err != nil {
		return nil, fmt.Errorf("finding shipping override %q: %w", postalCode, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOverride)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shipping.ErrOverrideNotFound
		}
		return nil, fmt.Errorf("finding shipping override %q: %w", postalCode, err)
	}
	return &o, nil
}

// Upsert writes a batch of overrides in one round trip, replacing the fee
// of postal codes already present.
func (r *OverrideRepository) Upsert(ctx context.Context, overrides []shipping.Override) error {
	if len(overrides) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, o := range overrides {
		batch.Queue(upsertOverrideSQL, o.TenantID, o.PostalCode, o.Amount)
	}

	br := r.db.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()
	for range overrides {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upserting shipping overrides: %w", err)
		}
	}
	return br.Close()
}

func scanOverride(row pgx.CollectableRow) (shipping.Override, error) {
	var o shipping.Override
	err := row.Scan(&o.TenantID, &o.PostalCode, &o.Amount)
	return o, err
}
