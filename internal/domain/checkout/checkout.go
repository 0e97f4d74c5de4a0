// Package checkout assembles orders: it prices carts, applies campaigns,
// resolves shipping, reserves stock, and persists the result as one unit.
package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/storelink/checkout/internal/domain/campaign"
	"github.com/storelink/checkout/internal/domain/inventory"
	"github.com/storelink/checkout/internal/domain/shipping"
)

// ErrOrderNotFound is returned when a requested order does not exist.
var ErrOrderNotFound = errors.New("order not found")

// ValidationError reports request input the caller can correct.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// StateConflictError reports an operation the current state forbids, such
// as ordering from a closed store.
type StateConflictError struct {
	Reason string
}

func (e *StateConflictError) Error() string {
	return e.Reason
}

// OrderStatus tracks an order through fulfillment.
type OrderStatus string

const (
	StatusReceived   OrderStatus = "received"
	StatusAccepted   OrderStatus = "accepted"
	StatusDispatched OrderStatus = "dispatched"
	StatusDelivered  OrderStatus = "delivered"
	StatusCanceled   OrderStatus = "canceled"
)

// PaymentStatus of an order's payment record.
const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
)

// Order is the persisted order graph. Monetary values are in cents.
type Order struct {
	ID           string
	TenantID     string
	StoreID      string
	CustomerID   string
	Status       OrderStatus
	Pickup       bool
	Subtotal     int64
	Discount     int64
	Shipping     int64
	Total        int64
	CouponCode   string
	Note         string
	DeliveryDate *time.Time
	CreatedAt    time.Time

	Items     []OrderItem
	Payment   *Payment
	Delivery  *Delivery
	Campaigns []AppliedCampaign
}

// OrderItem snapshots one line at purchase time so later catalog edits
// never change what was sold. ProductID is empty for custom items.
type OrderItem struct {
	ID          string
	ProductID   string
	Name        string
	UnitPrice   int64
	Quantity    int
	Total       int64
	Gift        bool
	Note        string
	Additionals []ItemAdditional
}

// ItemAdditional snapshots one chosen additional.
type ItemAdditional struct {
	ID    string
	Name  string
	Price int64
}

// Payment records how the order will be settled.
type Payment struct {
	ID     string
	Method string
	Amount int64
	Status string
}

// Delivery records where a non-pickup order ships and at what fee.
type Delivery struct {
	ID         string
	Address    string
	PostalCode string
	Lat        *float64
	Lng        *float64
	DistanceKm *decimal.Decimal
	Fee        int64
}

// AppliedCampaign snapshots one campaign that affected the order.
type AppliedCampaign struct {
	CampaignID string
	Name       string
	Discount   int64
}

// Line is one cart entry: either a product reference or a custom item with
// its own name and price (in cents).
type Line struct {
	ProductID     string
	Quantity      int
	AdditionalIDs []string
	Note          string
	CustomName    string
	CustomPrice   int64
}

// Request carries everything needed to preview or place an order. The
// customer and payment fields are only required when placing.
type Request struct {
	StoreID        string
	Lines          []Line
	Pickup         bool
	CouponCode     string
	CustomerName   string
	CustomerPhone  string
	PaymentMethod  string
	ClientShipping int64
	Address        shipping.Destination
	Note           string
	DeliveryDate   *time.Time
	ConfirmClosed  bool
}

// PricedLine is one line after pricing. UnitPrice folds the chosen
// additionals in; gift lines price at zero.
type PricedLine struct {
	ProductID   string
	Name        string
	UnitPrice   int64
	Quantity    int
	Total       int64
	Gift        bool
	Note        string
	Additionals []ItemAdditional
}

// Quote is the priced view of a cart before it becomes an order. When the
// shipping fee could not be determined, ShippingDefined is false and
// ShippingReason says why, signalling a manually negotiated fee.
type Quote struct {
	StoreID         string
	StoreName       string
	Lines           []PricedLine
	Subtotal        int64
	Discount        int64
	Shipping        int64
	ShippingDefined bool
	ShippingReason  shipping.Reason
	DistanceKm      *decimal.Decimal
	Total           int64
	Campaigns       []AppliedCampaign
}

// Receipt is returned after an order is placed.
type Receipt struct {
	Order         *Order
	TrackingToken string
}

// OrderPlacedEvent is the notification payload published after commit.
type OrderPlacedEvent struct {
	OrderID       string
	TenantID      string
	StoreID       string
	StoreName     string
	CustomerName  string
	CustomerPhone string
	Pickup        bool
	Total         int64
	ItemCount     int
	TrackingToken string
	CreatedAt     time.Time
}

// EventPublisher announces committed orders to downstream consumers.
type EventPublisher interface {
	OrderPlaced(ctx context.Context, ev OrderPlacedEvent) error
}

// Recorder counts checkout outcomes for observability. Implementations
// must tolerate being called from request paths, so they never block.
type Recorder interface {
	Checkout(ctx context.Context, result string, elapsed time.Duration)
	StockConflict(ctx context.Context)
	CampaignsApplied(ctx context.Context, count int)
}

// OrderWriter persists a complete order graph inside a transaction.
type OrderWriter interface {
	Create(ctx context.Context, o *Order) error
}

// OrderReader loads persisted orders.
type OrderReader interface {
	GetByID(ctx context.Context, tenantID, orderID string) (*Order, error)
}

// TxRepos are the write-side repositories bound to one transaction.
type TxRepos struct {
	Orders    OrderWriter
	Stock     inventory.LockingStore
	Campaigns campaign.UsageStore
}

// TxRunner executes fn inside a single database transaction, committing
// when fn returns nil and rolling back otherwise.
type TxRunner interface {
	InTx(ctx context.Context, fn func(r TxRepos) error) error
}
