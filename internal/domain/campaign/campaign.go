// Package campaign implements the promotion engine: campaign entities, rule
// evaluation, and the selection pass that turns eligible campaigns into
// discount, shipping, and gift effects on a cart.
package campaign

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported campaign strategies.
type Type string

const (
	// TypeOrderPercent discounts a percentage of the order subtotal.
	TypeOrderPercent Type = "order_percent"
	// TypeShippingPercent discounts a percentage of the shipping fee.
	TypeShippingPercent Type = "shipping_percent"
	// TypeCategoryPercent discounts a percentage of one category's line total.
	TypeCategoryPercent Type = "category_percent"
	// TypeRuleSet evaluates the campaign's stored rules against the cart.
	TypeRuleSet Type = "rule_set"
)

// ApplyMode controls whether later campaigns still run after this one
// produced an effect.
type ApplyMode string

const (
	// ApplyFirst stops the selection scan once this campaign has an effect.
	ApplyFirst ApplyMode = "first"
	// ApplyStack lets the scan continue and effects accumulate.
	ApplyStack ApplyMode = "stack"
)

var (
	// ErrInvalidCoupon is returned when a supplied coupon code matches no
	// campaign or none of its campaigns produce an effect on the cart.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrCouponExpired is returned when every campaign behind a coupon code
	// is outside its valid time window.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrCouponUsageLimitReached is returned when every campaign behind a
	// coupon code has exhausted its allowed uses.
	ErrCouponUsageLimitReached = errors.New("coupon usage limit reached")
)

// Campaign is one promotion a tenant runs. MinOrder is in cents and only
// enforced for the percent types; rule sets express thresholds as
// conditions. An empty StoreIDs list means every store qualifies.
type Campaign struct {
	ID         string
	TenantID   string
	Name       string
	Type       Type
	Percent    decimal.Decimal
	CategoryID string
	CouponCode string
	MinOrder   int64
	StartsAt   *time.Time
	EndsAt     *time.Time
	UsageLimit int
	Uses       int
	StoreIDs   []string
	ApplyMode  ApplyMode
	Priority   int
	Rules      []Rule
	Active     bool
	CreatedAt  time.Time
}

// EligibleAt reports whether the campaign can run at the given instant:
// active, inside its window, and with uses remaining.
func (c *Campaign) EligibleAt(now time.Time) bool {
	if !c.Active {
		return false
	}
	if !c.windowContains(now) {
		return false
	}
	return c.UsageLimit <= 0 || c.Uses < c.UsageLimit
}

func (c *Campaign) windowContains(now time.Time) bool {
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return false
	}
	if c.EndsAt != nil && now.After(*c.EndsAt) {
		return false
	}
	return true
}

// AppliesToStore reports whether the campaign covers the given store.
func (c *Campaign) AppliesToStore(storeID string) bool {
	if len(c.StoreIDs) == 0 {
		return true
	}
	for _, id := range c.StoreIDs {
		if id == storeID {
			return true
		}
	}
	return false
}

// MatchesCoupon reports whether the campaign belongs in the candidate set
// for the given (already trimmed) coupon code. Automatic campaigns always
// qualify; couponed campaigns require a case-insensitive code match.
func (c *Campaign) MatchesCoupon(code string) bool {
	if c.CouponCode == "" {
		return true
	}
	return code != "" && strings.EqualFold(c.CouponCode, code)
}

// Gift is a free product granted by a gift action.
type Gift struct {
	ProductID string
	Quantity  int
}

// Effects accumulates what campaigns do to an order. Shipping starts at the
// resolved fee and only ever decreases; Discount and Gifts only grow.
type Effects struct {
	Discount int64
	Shipping int64
	Gifts    []Gift
}

// Repository provides campaign reads for the selection pass. Window, store,
// coupon, and usage filtering all happen in the selector so they can be
// tested without a database.
type Repository interface {
	ListActive(ctx context.Context, tenantID string) ([]Campaign, error)
}

// UsageStore mutates usage counters inside the order transaction.
type UsageStore interface {
	// IncrementUses adds one use and reports false when the campaign's
	// limit is already exhausted.
	IncrementUses(ctx context.Context, campaignID string) (bool, error)
}
