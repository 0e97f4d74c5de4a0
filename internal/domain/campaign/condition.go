package campaign

import "strings"

// Dimension names the cart attribute a condition inspects.
type Dimension string

const (
	// DimQuantityTotal is the summed quantity across all paid lines.
	DimQuantityTotal Dimension = "quantity_total"
	// DimProductQuantity is the quantity of one specific product.
	DimProductQuantity Dimension = "product_quantity"
	// DimHasProduct checks presence of any product from a set.
	DimHasProduct Dimension = "has_product"
	// DimHasCategory checks presence of any category from a set.
	DimHasCategory Dimension = "has_category"
	// DimSubtotal is the order subtotal in cents.
	DimSubtotal Dimension = "subtotal"
	// DimDeliveryType is "pickup" or "delivery".
	DimDeliveryType Dimension = "delivery_type"
	// DimCustomer matches the resolved customer ID.
	DimCustomer Dimension = "customer"
)

// Operator is a canonical comparison operator.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNeq      Operator = "neq"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpIn       Operator = "in"
	OpContains Operator = "contains"
)

// operatorAliases maps the operator spellings found in stored rules to their
// canonical form. Rules written by older admin tooling carry symbols and
// localized words.
var operatorAliases = map[string]Operator{
	"eq": OpEq, "=": OpEq, "==": OpEq, "===": OpEq, "igual": OpEq,
	"neq": OpNeq, "ne": OpNeq, "!=": OpNeq, "<>": OpNeq,
	"gt": OpGt, ">": OpGt, "maior": OpGt,
	"gte": OpGte, ">=": OpGte,
	"lt": OpLt, "<": OpLt, "menor": OpLt,
	"lte": OpLte, "<=": OpLte,
	"in": OpIn,
	"contains": OpContains, "contem": OpContains,
}

// NormalizeOperator resolves an operator spelling to its canonical form,
// case-insensitively.
func NormalizeOperator(raw string) (Operator, bool) {
	op, ok := operatorAliases[strings.ToLower(strings.TrimSpace(raw))]
	return op, ok
}

// Condition is one predicate over the cart. Which value field is set
// depends on the dimension: Number for numeric comparisons, Text for string
// equality, List for membership checks.
type Condition struct {
	Dimension Dimension
	Operator  Operator
	ProductID string
	Number    int64
	Text      string
	List      []string
}

// Evaluate reports whether the cart satisfies the condition. Unknown
// dimensions, unknown operators, and mismatched value kinds evaluate to
// false so a malformed rule can never widen a promotion.
func (c Condition) Evaluate(cart *Context) bool {
	switch c.Dimension {
	case DimQuantityTotal:
		return compareInt(int64(cart.TotalQuantity), c.Operator, c.Number)
	case DimProductQuantity:
		if c.ProductID == "" {
			return false
		}
		return compareInt(int64(cart.QuantityByProduct[c.ProductID]), c.Operator, c.Number)
	case DimSubtotal:
		return compareInt(cart.Subtotal, c.Operator, c.Number)
	case DimHasProduct:
		return c.anyPresent(func(id string) bool { return cart.QuantityByProduct[id] > 0 })
	case DimHasCategory:
		return c.anyPresent(func(id string) bool { return cart.QuantityByCategory[id] > 0 })
	case DimDeliveryType:
		return compareText(cart.DeliveryType(), c.Operator, c.Text)
	case DimCustomer:
		if cart.CustomerID == "" {
			return false
		}
		switch c.Operator {
		case OpEq:
			return cart.CustomerID == c.Text
		case OpIn, OpContains:
			for _, id := range c.List {
				if cart.CustomerID == id {
					return true
				}
			}
		}
		return false
	}
	return false
}

func (c Condition) anyPresent(has func(string) bool) bool {
	switch c.Operator {
	case OpIn, OpContains:
		for _, id := range c.List {
			if has(id) {
				return true
			}
		}
	case OpEq:
		return c.Text != "" && has(c.Text)
	}
	return false
}

func compareInt(have int64, op Operator, want int64) bool {
	switch op {
	case OpEq:
		return have == want
	case OpNeq:
		return have != want
	case OpGt:
		return have > want
	case OpGte:
		return have >= want
	case OpLt:
		return have < want
	case OpLte:
		return have <= want
	}
	return false
}

func compareText(have string, op Operator, want string) bool {
	switch op {
	case OpEq:
		return have == want
	case OpNeq:
		return have != want
	}
	return false
}

// Rule pairs a condition set with the actions granted when all conditions
// hold. An empty condition list always matches. Stop ends the campaign's
// rule scan after this rule fires, so ladders can express "best tier wins".
type Rule struct {
	Conditions []Condition
	Actions    []Action
	Stop       bool
}

// Matches reports whether every condition holds for the cart.
func (r Rule) Matches(cart *Context) bool {
	for _, c := range r.Conditions {
		if !c.Evaluate(cart) {
			return false
		}
	}
	return true
}
