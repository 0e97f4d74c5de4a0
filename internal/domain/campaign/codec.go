package campaign

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// DecodeRules parses and validates the JSON rule document stored on a
// rule-set campaign. Operators are normalized to canonical form here, and
// every condition and action is schema-checked against its dimension or
// type, so a document that decodes cleanly is safe to evaluate.
func DecodeRules(data []byte) ([]Rule, error) {
	if len(data) == 0 {
		return nil, nil
	}

	d := jx.DecodeBytes(data)
	if d.Next() == jx.Null {
		return nil, d.Null()
	}

	var rules []Rule
	if err := d.Arr(func(d *jx.Decoder) error {
		r, err := decodeRule(d)
		if err != nil {
			return errors.Wrapf(err, "rule %d", len(rules))
		}
		rules = append(rules, r)
		return nil
	}); err != nil {
		return nil, err
	}
	return rules, nil
}

func decodeRule(d *jx.Decoder) (Rule, error) {
	var r Rule
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "conditions":
			return d.Arr(func(d *jx.Decoder) error {
				c, err := decodeCondition(d)
				if err != nil {
					return errors.Wrapf(err, "condition %d", len(r.Conditions))
				}
				r.Conditions = append(r.Conditions, c)
				return nil
			})
		case "actions":
			return d.Arr(func(d *jx.Decoder) error {
				a, err := decodeAction(d)
				if err != nil {
					return errors.Wrapf(err, "action %d", len(r.Actions))
				}
				r.Actions = append(r.Actions, a)
				return nil
			})
		case "stop":
			v, err := d.Bool()
			r.Stop = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return r, err
	}
	if len(r.Actions) == 0 {
		return r, errors.New("missing actions")
	}
	return r, nil
}

// condValue holds the polymorphic condition "value": a number, a string, or
// an array of strings.
type condValue struct {
	kind jx.Type
	num  int64
	str  string
	list []string
}

func (v *condValue) decode(d *jx.Decoder) error {
	switch d.Next() {
	case jx.Number:
		n, err := d.Int64()
		if err != nil {
			return err
		}
		v.kind, v.num = jx.Number, n
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return err
		}
		v.kind, v.str = jx.String, s
	case jx.Array:
		v.kind = jx.Array
		return d.Arr(func(d *jx.Decoder) error {
			s, err := d.Str()
			if err != nil {
				return err
			}
			v.list = append(v.list, s)
			return nil
		})
	case jx.Null:
		return d.Null()
	default:
		return errors.Errorf("unsupported value type %s", d.Next())
	}
	return nil
}

func decodeCondition(d *jx.Decoder) (Condition, error) {
	var (
		c     Condition
		rawOp string
		val   condValue
	)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "dimension":
			var s string
			s, err = d.Str()
			c.Dimension = Dimension(s)
		case "operator":
			rawOp, err = d.Str()
		case "product_id":
			c.ProductID, err = d.Str()
		case "value":
			err = val.decode(d)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return c, err
	}

	if c.Dimension == "" {
		return c, errors.New("missing dimension")
	}
	op, ok := NormalizeOperator(rawOp)
	if !ok {
		return c, errors.Errorf("unknown operator %q", rawOp)
	}
	c.Operator = op

	switch c.Dimension {
	case DimQuantityTotal, DimSubtotal, DimProductQuantity:
		if !isComparison(op) {
			return c, errors.Errorf("operator %q not allowed for %s", rawOp, c.Dimension)
		}
		if val.kind != jx.Number {
			return c, errors.Errorf("%s requires a numeric value", c.Dimension)
		}
		c.Number = val.num
		if c.Dimension == DimProductQuantity && c.ProductID == "" {
			return c, errors.New("product_quantity requires product_id")
		}
	case DimHasProduct, DimHasCategory:
		switch op {
		case OpIn, OpContains:
			if val.kind != jx.Array || len(val.list) == 0 {
				return c, errors.Errorf("%s requires a non-empty id list", c.Dimension)
			}
			c.List = val.list
		case OpEq:
			if val.kind != jx.String || val.str == "" {
				return c, errors.Errorf("%s with %q requires a single id", c.Dimension, rawOp)
			}
			c.Text = val.str
		default:
			return c, errors.Errorf("operator %q not allowed for %s", rawOp, c.Dimension)
		}
	case DimDeliveryType:
		if op != OpEq && op != OpNeq {
			return c, errors.Errorf("operator %q not allowed for %s", rawOp, c.Dimension)
		}
		if val.kind != jx.String || (val.str != "pickup" && val.str != "delivery") {
			return c, errors.New(`delivery_type value must be "pickup" or "delivery"`)
		}
		c.Text = val.str
	case DimCustomer:
		switch op {
		case OpEq:
			if val.kind != jx.String || val.str == "" {
				return c, errors.New("customer with eq requires a single id")
			}
			c.Text = val.str
		case OpIn, OpContains:
			if val.kind != jx.Array || len(val.list) == 0 {
				return c, errors.New("customer requires a non-empty id list")
			}
			c.List = val.list
		default:
			return c, errors.Errorf("operator %q not allowed for %s", rawOp, c.Dimension)
		}
	default:
		return c, errors.Errorf("unknown dimension %q", c.Dimension)
	}
	return c, nil
}

func isComparison(op Operator) bool {
	switch op {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte:
		return true
	}
	return false
}

func decodeAction(d *jx.Decoder) (Action, error) {
	var a Action
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "type":
			var s string
			s, err = d.Str()
			a.Type = ActionType(s)
		case "percent":
			a.Percent, err = decodeDecimal(d)
			if err != nil {
				err = errors.Wrap(err, "percent")
			}
		case "amount":
			a.Amount, err = d.Int64()
		case "product_id":
			a.ProductID, err = d.Str()
		case "category_id":
			a.CategoryID, err = d.Str()
		case "quantity":
			a.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return a, err
	}

	switch a.Type {
	case ActionFreeShipping:
	case ActionShippingCap:
		if a.Amount < 0 {
			return a, errors.New("shipping_cap requires a non-negative amount")
		}
	case ActionShippingDiscount, ActionOrderDiscount:
		if err := exactlyOneReduction(a); err != nil {
			return a, err
		}
	case ActionProductDiscount:
		if a.ProductID == "" {
			return a, errors.New("product_discount requires product_id")
		}
		if err := exactlyOneReduction(a); err != nil {
			return a, err
		}
	case ActionCategoryDiscount:
		if a.CategoryID == "" {
			return a, errors.New("category_discount requires category_id")
		}
		if err := exactlyOneReduction(a); err != nil {
			return a, err
		}
	case ActionGift:
		if a.ProductID == "" {
			return a, errors.New("gift requires product_id")
		}
		if a.Quantity < 1 {
			return a, errors.New("gift requires a positive quantity")
		}
	case "":
		return a, errors.New("missing type")
	default:
		return a, errors.Errorf("unknown action type %q", a.Type)
	}
	return a, nil
}

// exactlyOneReduction enforces the percent/amount exclusivity on discount
// actions and keeps percents inside (0, 100].
func exactlyOneReduction(a Action) error {
	hasPercent := !a.Percent.IsZero()
	hasAmount := a.Amount != 0
	if hasPercent == hasAmount {
		return errors.Errorf("%s requires exactly one of percent or amount", a.Type)
	}
	if hasPercent && (!a.Percent.IsPositive() || a.Percent.GreaterThan(hundred)) {
		return errors.Errorf("percent %s out of range", a.Percent)
	}
	if hasAmount && a.Amount < 0 {
		return errors.New("amount must be positive")
	}
	return nil
}

// decodeDecimal accepts a JSON number or a numeric string.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(strings.TrimSpace(s))
	default:
		return decimal.Zero, errors.Errorf("unexpected %s", d.Next())
	}
}

// EncodeRules renders rules back to their storage form, with canonical
// operator names and percents as exact decimal strings.
func EncodeRules(rules []Rule) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, r := range rules {
		encodeRule(&e, r)
	}
	e.ArrEnd()
	return e.Bytes()
}

func encodeRule(e *jx.Encoder, r Rule) {
	e.ObjStart()
	if len(r.Conditions) > 0 {
		e.FieldStart("conditions")
		e.ArrStart()
		for _, c := range r.Conditions {
			encodeCondition(e, c)
		}
		e.ArrEnd()
	}
	e.FieldStart("actions")
	e.ArrStart()
	for _, a := range r.Actions {
		encodeAction(e, a)
	}
	e.ArrEnd()
	if r.Stop {
		e.FieldStart("stop")
		e.Bool(true)
	}
	e.ObjEnd()
}

func encodeCondition(e *jx.Encoder, c Condition) {
	e.ObjStart()
	e.FieldStart("dimension")
	e.Str(string(c.Dimension))
	e.FieldStart("operator")
	e.Str(string(c.Operator))
	if c.ProductID != "" {
		e.FieldStart("product_id")
		e.Str(c.ProductID)
	}
	e.FieldStart("value")
	switch {
	case len(c.List) > 0:
		e.ArrStart()
		for _, id := range c.List {
			e.Str(id)
		}
		e.ArrEnd()
	case c.Text != "":
		e.Str(c.Text)
	default:
		e.Int64(c.Number)
	}
	e.ObjEnd()
}

func encodeAction(e *jx.Encoder, a Action) {
	e.ObjStart()
	e.FieldStart("type")
	e.Str(string(a.Type))
	if !a.Percent.IsZero() {
		e.FieldStart("percent")
		e.Str(a.Percent.String())
	}
	if a.Amount != 0 || a.Type == ActionShippingCap {
		e.FieldStart("amount")
		e.Int64(a.Amount)
	}
	if a.ProductID != "" {
		e.FieldStart("product_id")
		e.Str(a.ProductID)
	}
	if a.CategoryID != "" {
		e.FieldStart("category_id")
		e.Str(a.CategoryID)
	}
	if a.Quantity > 0 {
		e.FieldStart("quantity")
		e.Int(a.Quantity)
	}
	e.ObjEnd()
}
