package campaign

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ActionType names what a rule action does to the order.
type ActionType string

const (
	// ActionFreeShipping zeroes the shipping fee.
	ActionFreeShipping ActionType = "free_shipping"
	// ActionShippingCap caps the shipping fee at a fixed amount.
	ActionShippingCap ActionType = "shipping_cap"
	// ActionShippingDiscount reduces the shipping fee by percent or amount.
	ActionShippingDiscount ActionType = "shipping_discount"
	// ActionOrderDiscount reduces the order subtotal by percent or amount.
	ActionOrderDiscount ActionType = "order_discount"
	// ActionProductDiscount reduces one product's line total.
	ActionProductDiscount ActionType = "product_discount"
	// ActionCategoryDiscount reduces one category's line total.
	ActionCategoryDiscount ActionType = "category_discount"
	// ActionGift grants free units of a product.
	ActionGift ActionType = "gift"
)

// Action is one effect granted by a matched rule. Percent and Amount are
// mutually exclusive; Amount is in cents.
type Action struct {
	Type       ActionType
	Percent    decimal.Decimal
	Amount     int64
	ProductID  string
	CategoryID string
	Quantity   int
}

// Apply folds the action into the accumulated effects. Shipping never
// increases and scoped discounts never exceed the base they apply to.
func (a Action) Apply(cart *Context, eff *Effects) {
	switch a.Type {
	case ActionFreeShipping:
		eff.Shipping = 0
	case ActionShippingCap:
		if a.Amount >= 0 && eff.Shipping > a.Amount {
			eff.Shipping = a.Amount
		}
	case ActionShippingDiscount:
		eff.Shipping -= reduction(eff.Shipping, a.Percent, a.Amount)
	case ActionOrderDiscount:
		eff.Discount += reduction(cart.Subtotal, a.Percent, a.Amount)
	case ActionProductDiscount:
		eff.Discount += reduction(cart.LineTotalByProduct[a.ProductID], a.Percent, a.Amount)
	case ActionCategoryDiscount:
		eff.Discount += reduction(cart.LineTotalByCategory[a.CategoryID], a.Percent, a.Amount)
	case ActionGift:
		if a.ProductID != "" && a.Quantity > 0 {
			eff.Gifts = append(eff.Gifts, Gift{ProductID: a.ProductID, Quantity: a.Quantity})
		}
	}
}

// reduction computes a discount against a base amount: a positive percent
// takes precedence, otherwise the fixed amount capped at the base.
func reduction(base int64, percent decimal.Decimal, amount int64) int64 {
	if base <= 0 {
		return 0
	}
	if percent.IsPositive() {
		return PercentOf(base, percent)
	}
	if amount <= 0 {
		return 0
	}
	if amount > base {
		return base
	}
	return amount
}

// PercentOf returns pct percent of the base cent amount, rounded down so a
// promotion never overshoots, and capped at the base itself.
func PercentOf(base int64, pct decimal.Decimal) int64 {
	if base <= 0 || !pct.IsPositive() {
		return 0
	}
	v := decimal.NewFromInt(base).Mul(pct).Div(hundred).Floor().IntPart()
	if v > base {
		return base
	}
	return v
}
