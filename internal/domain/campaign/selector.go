package campaign

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Applied records one campaign that changed the order.
type Applied struct {
	CampaignID   string
	Name         string
	CouponCode   string
	UsageLimited bool
	// Discount is the order-discount portion this campaign contributed.
	Discount int64
}

// Outcome aggregates a selection pass: the total discount, the shipping fee
// after campaign effects, granted gifts, and which campaigns applied.
type Outcome struct {
	Discount int64
	Shipping int64
	Gifts    []Gift
	Applied  []Applied
}

// Selector picks the campaigns that apply to a cart and aggregates their
// effects.
type Selector struct {
	repo Repository
	now  func() time.Time
}

// NewSelector creates a Selector backed by the given Repository.
func NewSelector(repo Repository) *Selector {
	return &Selector{repo: repo, now: time.Now}
}

// Select evaluates the tenant's campaigns against the cart. Candidates are
// filtered by activity, time window, remaining uses, store scope, and
// coupon code, then scanned in priority order (ties broken newest first).
// A campaign in ApplyFirst mode that produces an effect ends the scan.
//
// When a coupon code is supplied and no campaign carrying it ends up
// applied, Select fails with ErrInvalidCoupon (or the more specific expired
// or usage-limit error) so the caller never silently drops a code.
func (s *Selector) Select(ctx context.Context, cart *Context, couponCode string) (*Outcome, error) {
	campaigns, err := s.repo.ListActive(ctx, cart.TenantID)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}

	code := strings.TrimSpace(couponCode)
	now := s.now()

	eligible := make([]Campaign, 0, len(campaigns))
	for _, c := range campaigns {
		if !c.EligibleAt(now) || !c.AppliesToStore(cart.StoreID) || !c.MatchesCoupon(code) {
			continue
		}
		eligible = append(eligible, c)
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].Priority != eligible[j].Priority {
			return eligible[i].Priority < eligible[j].Priority
		}
		return eligible[i].CreatedAt.After(eligible[j].CreatedAt)
	})

	eff := &Effects{Shipping: cart.Shipping}
	out := &Outcome{}
	couponApplied := false

	for i := range eligible {
		c := &eligible[i]

		prevDiscount, prevShipping, prevGifts := eff.Discount, eff.Shipping, len(eff.Gifts)
		applyCampaign(c, cart, eff)
		if eff.Discount == prevDiscount && eff.Shipping == prevShipping && len(eff.Gifts) == prevGifts {
			continue
		}

		out.Applied = append(out.Applied, Applied{
			CampaignID:   c.ID,
			Name:         c.Name,
			CouponCode:   c.CouponCode,
			UsageLimited: c.UsageLimit > 0,
			Discount:     eff.Discount - prevDiscount,
		})
		if c.CouponCode != "" {
			couponApplied = true
		}
		if c.ApplyMode == ApplyFirst {
			break
		}
	}

	if code != "" && !couponApplied {
		return nil, diagnoseCoupon(campaigns, code, now)
	}

	out.Discount = eff.Discount
	out.Shipping = eff.Shipping
	out.Gifts = eff.Gifts
	return out, nil
}

// applyCampaign prices one campaign into the running effects. The percent
// types skip carts below their minimum order or with an empty base; rule
// sets scan their rules in order, a matched Stop rule ending the scan.
func applyCampaign(c *Campaign, cart *Context, eff *Effects) {
	switch c.Type {
	case TypeOrderPercent:
		if cart.Subtotal <= 0 || cart.Subtotal < c.MinOrder {
			return
		}
		eff.Discount += PercentOf(cart.Subtotal, c.Percent)
	case TypeShippingPercent:
		if eff.Shipping <= 0 || cart.Subtotal < c.MinOrder {
			return
		}
		eff.Shipping -= PercentOf(eff.Shipping, c.Percent)
	case TypeCategoryPercent:
		base := cart.LineTotalByCategory[c.CategoryID]
		if base <= 0 || cart.Subtotal < c.MinOrder {
			return
		}
		eff.Discount += PercentOf(base, c.Percent)
	case TypeRuleSet:
		for _, r := range c.Rules {
			if !r.Matches(cart) {
				continue
			}
			for _, a := range r.Actions {
				a.Apply(cart, eff)
			}
			if r.Stop {
				break
			}
		}
	}
}

// diagnoseCoupon explains why a supplied code produced no effect, checking
// the unfiltered candidate list for expired or exhausted matches.
func diagnoseCoupon(campaigns []Campaign, code string, now time.Time) error {
	sawExpired, sawExhausted := false, false
	for _, c := range campaigns {
		if c.CouponCode == "" || !strings.EqualFold(c.CouponCode, code) {
			continue
		}
		if !c.windowContains(now) {
			sawExpired = true
			continue
		}
		if c.UsageLimit > 0 && c.Uses >= c.UsageLimit {
			sawExhausted = true
		}
	}
	switch {
	case sawExpired:
		return ErrCouponExpired
	case sawExhausted:
		return ErrCouponUsageLimitReached
	default:
		return ErrInvalidCoupon
	}
}
