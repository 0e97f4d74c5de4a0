package campaign

// Context is the cart snapshot conditions read and actions price against.
// Monetary values are in cents. Shipping holds the resolved fee before any
// campaign effect; the selector copies it into the running Effects.
type Context struct {
	TenantID   string
	StoreID    string
	CustomerID string
	Pickup     bool

	Subtotal      int64
	Shipping      int64
	TotalQuantity int

	QuantityByProduct   map[string]int
	QuantityByCategory  map[string]int
	LineTotalByProduct  map[string]int64
	LineTotalByCategory map[string]int64
}

// DeliveryType returns the wire name of the fulfillment mode.
func (c *Context) DeliveryType() string {
	if c.Pickup {
		return "pickup"
	}
	return "delivery"
}
