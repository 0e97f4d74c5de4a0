package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/storelink/checkout/internal/domain/campaign"
)

const (
	listActiveCampaignsSQL = `SELECT id, tenant_id, name, type, percent, category_id, coupon_code,
		min_order_cents, starts_at, ends_at, usage_limit, uses, store_ids,
		apply_mode, priority, rules, active, created_at
		FROM campaigns WHERE tenant_id = $1 AND active
		ORDER BY created_at, id`

	incrementCampaignUsesSQL = `UPDATE campaigns SET uses = uses + 1
		WHERE id = $1 AND active AND (usage_limit <= 0 OR uses < usage_limit)`
)

var _ campaign.Repository = (*CampaignRepository)(nil)

// CampaignRepository implements campaign.Repository backed by PostgreSQL.
type CampaignRepository struct {
	db DB
}

// NewCampaignRepository returns a CampaignRepository that uses the given
// querier.
func NewCampaignRepository(db DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// ListActive returns the tenant's active campaigns with their rule
// documents decoded.
func (r *CampaignRepository) ListActive(ctx context.Context, tenantID string) ([]campaign.Campaign, error) {
	rows, err := r.db.Query(ctx, listActiveCampaignsSQL, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing active campaigns: %w", err)
	}
	return pgx.CollectRows(rows, scanCampaign)
}

func scanCampaign(row pgx.CollectableRow) (campaign.Campaign, error) {
	var (
		c          campaign.Campaign
		categoryID *string
		couponCode *string
		rulesRaw   []byte
	)
	err := row.Scan(
		&c.ID, &c.TenantID, &c.Name, &c.Type, &c.Percent, &categoryID, &couponCode,
		&c.MinOrder, &c.StartsAt, &c.EndsAt, &c.UsageLimit, &c.Uses, &c.StoreIDs,
		&c.ApplyMode, &c.Priority, &rulesRaw, &c.Active, &c.CreatedAt,
	)
	if err != nil {
		return campaign.Campaign{}, err
	}
	c.CategoryID = derefText(categoryID)
	c.CouponCode = derefText(couponCode)

	c.Rules, err = campaign.DecodeRules(rulesRaw)
	if err != nil {
		return campaign.Campaign{}, fmt.Errorf("decoding campaign %q rules: %w", c.ID, err)
	}
	return c, nil
}

var _ campaign.UsageStore = (*UsageStore)(nil)

// UsageStore implements campaign.UsageStore backed by PostgreSQL. It is
// meant to run inside the checkout transaction so an exhausted campaign
// rolls the whole order back.
type UsageStore struct {
	db DB
}

// NewUsageStore returns a UsageStore that uses the given querier.
func NewUsageStore(db DB) *UsageStore {
	return &UsageStore{db: db}
}

// IncrementUses adds one use to the campaign. The WHERE clause re-checks
// the limit under the row lock, so ok is false when a concurrent order
// consumed the last use or the campaign was deactivated mid-flight.
func (s *UsageStore) IncrementUses(ctx context.Context, campaignID string) (bool, error) {
	tag, err := s.db.Exec(ctx, incrementCampaignUsesSQL, campaignID)
	if err != nil {
		return false, fmt.Errorf("incrementing campaign %q uses: %w", campaignID, err)
	}
	return tag.RowsAffected() == 1, nil
}
