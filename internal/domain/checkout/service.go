package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/storelink/checkout/internal/domain/campaign"
	"github.com/storelink/checkout/internal/domain/catalog"
	"github.com/storelink/checkout/internal/domain/customer"
	"github.com/storelink/checkout/internal/domain/inventory"
	"github.com/storelink/checkout/internal/domain/shipping"
)

// Deps wires the service's collaborators. Events and Recorder may be nil.
type Deps struct {
	Stores    catalog.StoreRepository
	Products  catalog.ProductRepository
	Customers customer.Repository
	Selector  *campaign.Selector
	Shipping  *shipping.Resolver
	Orders    OrderReader
	Tx        TxRunner
	Events    EventPublisher
	Recorder  Recorder

	TrackingSecret []byte
	CountryCode    string
}

// Service orchestrates previewing and placing orders.
type Service struct {
	stores    catalog.StoreRepository
	products  catalog.ProductRepository
	customers customer.Repository
	selector  *campaign.Selector
	shipping  *shipping.Resolver
	orders    OrderReader
	tx        TxRunner
	events    EventPublisher
	recorder  Recorder
	secret    []byte
	country   string
	now       func() time.Time
}

// NewService creates a checkout Service from its dependencies.
func NewService(d Deps) *Service {
	return &Service{
		stores:    d.Stores,
		products:  d.Products,
		customers: d.Customers,
		selector:  d.Selector,
		shipping:  d.Shipping,
		orders:    d.Orders,
		tx:        d.Tx,
		events:    d.Events,
		recorder:  d.Recorder,
		secret:    d.TrackingSecret,
		country:   d.CountryCode,
		now:       time.Now,
	}
}

// pricing holds everything computed for a cart before persistence.
type pricing struct {
	lines    []PricedLine
	gifts    []PricedLine
	subtotal int64
	quote    shipping.Quote
	outcome  *campaign.Outcome
	discount int64
	shipping int64
	total    int64
}

// Preview prices a cart without side effects: no customer is created, no
// stock moves, no usage counters change, and opening hours are not
// enforced. Campaign coupon errors surface exactly as they would on
// checkout so clients can validate codes upfront.
func (s *Service) Preview(ctx context.Context, tenantID string, req *Request) (*Quote, error) {
	store, err := s.loadStore(ctx, tenantID, req.StoreID)
	if err != nil {
		return nil, err
	}
	pr, err := s.price(ctx, store, req, "")
	if err != nil {
		return nil, err
	}
	return pr.toQuote(store), nil
}

// Checkout validates the request, prices the cart, and persists the order,
// its payment, delivery, and campaign records in one transaction together
// with the stock reservation and campaign usage increments. A failure at
// any point leaves no trace.
func (s *Service) Checkout(ctx context.Context, tenantID string, req *Request) (*Receipt, error) {
	start := s.now()
	receipt, err := s.checkout(ctx, tenantID, req)
	s.observe(ctx, err, s.now().Sub(start))
	return receipt, err
}

func (s *Service) checkout(ctx context.Context, tenantID string, req *Request) (*Receipt, error) {
	if strings.TrimSpace(req.CustomerPhone) == "" {
		return nil, &ValidationError{Field: "customer.phone", Reason: "required"}
	}
	if req.PaymentMethod == "" {
		return nil, &ValidationError{Field: "payment.method", Reason: "required"}
	}

	store, err := s.loadStore(ctx, tenantID, req.StoreID)
	if err != nil {
		return nil, err
	}
	if err := s.gateHours(store, req); err != nil {
		return nil, err
	}

	cust, err := customer.Resolve(ctx, s.customers, tenantID, req.CustomerName, req.CustomerPhone, s.country)
	if err != nil {
		if errors.Is(err, customer.ErrInvalidPhone) {
			return nil, &ValidationError{Field: "customer.phone", Reason: "must contain digits"}
		}
		return nil, err
	}

	pr, err := s.price(ctx, store, req, cust.ID)
	if err != nil {
		return nil, err
	}

	// Reject tampered fees: when the fee is system-determined the client
	// must echo it back exactly. Undetermined fees stay as sent, they were
	// negotiated manually.
	if !req.Pickup && pr.quote.Defined && req.ClientShipping != pr.quote.Amount {
		return nil, &ValidationError{
			Field:  "shipping_cents",
			Reason: fmt.Sprintf("expected %d", pr.quote.Amount),
		}
	}

	o := s.buildOrder(store, cust, req, pr)

	err = s.tx.InTx(ctx, func(r TxRepos) error {
		if err := reserveStock(ctx, r.Stock, store.ID, pr); err != nil {
			return err
		}
		if err := r.Orders.Create(ctx, o); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		return consumeUsage(ctx, r.Campaigns, pr.outcome)
	})
	if err != nil {
		return nil, err
	}

	token := TrackingToken(s.secret, o.ID, cust.PhoneDigits)
	s.announce(ctx, store, cust, o, token)
	if s.recorder != nil && len(o.Campaigns) > 0 {
		s.recorder.CampaignsApplied(ctx, len(o.Campaigns))
	}

	return &Receipt{Order: o, TrackingToken: token}, nil
}

// Track returns the order when the token proves knowledge of the phone it
// was placed with. A wrong token gets the same answer as a missing order.
func (s *Service) Track(ctx context.Context, tenantID, orderID, token string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, tenantID, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, &NotFoundError{Entity: "order", ID: orderID}
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	cust, err := s.customers.GetByID(ctx, tenantID, o.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	if !VerifyTrackingToken(s.secret, o.ID, cust.PhoneDigits, token) {
		return nil, &NotFoundError{Entity: "order", ID: orderID}
	}
	return o, nil
}

func (s *Service) loadStore(ctx context.Context, tenantID, storeID string) (*catalog.Store, error) {
	if storeID == "" {
		return nil, &ValidationError{Field: "store_id", Reason: "required"}
	}
	st, err := s.stores.GetByID(ctx, tenantID, storeID)
	if err != nil {
		if errors.Is(err, catalog.ErrStoreNotFound) {
			return nil, &NotFoundError{Entity: "store", ID: storeID}
		}
		return nil, fmt.Errorf("get store: %w", err)
	}
	if !st.Active {
		return nil, &NotFoundError{Entity: "store", ID: storeID}
	}
	return st, nil
}

// gateHours enforces opening hours. Scheduled orders need pre-orders
// enabled and a future date inside an opening window; immediate orders on
// a closed store need pre-orders enabled plus the caller's explicit
// confirmation.
func (s *Service) gateHours(store *catalog.Store, req *Request) error {
	now := s.now()
	if req.DeliveryDate != nil {
		when := *req.DeliveryDate
		if !store.PreOrdersEnabled {
			return &StateConflictError{Reason: "store does not accept scheduled orders"}
		}
		if !when.After(now) {
			return &ValidationError{Field: "delivery_date", Reason: "must be in the future"}
		}
		if !store.OpenAt(when) {
			return &StateConflictError{Reason: "store is closed at the requested time"}
		}
		return nil
	}
	if store.OpenAt(now) {
		return nil
	}
	if store.PreOrdersEnabled && req.ConfirmClosed {
		return nil
	}
	return &StateConflictError{Reason: "store is closed"}
}

// price validates the lines, snapshots catalog prices, resolves the
// shipping fee, and runs campaign selection. It is shared by Preview and
// Checkout and has no side effects.
func (s *Service) price(ctx context.Context, store *catalog.Store, req *Request, customerID string) (*pricing, error) {
	if len(req.Lines) == 0 {
		return nil, &ValidationError{Field: "lines", Reason: "at least one item required"}
	}

	// Validate lines and collect the IDs to fetch.
	productIDs := make([]string, 0, len(req.Lines))
	additionalIDs := make([]string, 0)
	for i, ln := range req.Lines {
		if ln.Quantity <= 0 {
			return nil, &ValidationError{Field: lineField(i, "quantity"), Reason: "must be at least 1"}
		}
		switch {
		case ln.ProductID != "" && ln.CustomName != "":
			return nil, &ValidationError{Field: lineField(i, "product_id"), Reason: "line cannot be both a product and a custom item"}
		case ln.ProductID != "":
			productIDs = append(productIDs, ln.ProductID)
			additionalIDs = append(additionalIDs, ln.AdditionalIDs...)
		case ln.CustomName != "":
			if ln.CustomPrice <= 0 {
				return nil, &ValidationError{Field: lineField(i, "custom_price_cents"), Reason: "must be positive"}
			}
			if len(ln.AdditionalIDs) > 0 {
				return nil, &ValidationError{Field: lineField(i, "additional_ids"), Reason: "custom items cannot carry additionals"}
			}
		default:
			return nil, &ValidationError{Field: lineField(i, "product_id"), Reason: "product_id or custom_name required"}
		}
	}

	products, err := s.fetchProducts(ctx, store.TenantID, productIDs)
	if err != nil {
		return nil, err
	}
	additionals, err := s.fetchAdditionals(ctx, store.TenantID, additionalIDs)
	if err != nil {
		return nil, err
	}

	pr := &pricing{lines: make([]PricedLine, 0, len(req.Lines))}
	for i, ln := range req.Lines {
		pl, err := priceLine(i, ln, req, products, additionals)
		if err != nil {
			return nil, err
		}
		pr.lines = append(pr.lines, pl)
		pr.subtotal += pl.Total
	}

	pr.quote, err = s.shipping.Resolve(ctx, store, req.Address, req.Pickup)
	if err != nil {
		return nil, fmt.Errorf("resolve shipping: %w", err)
	}

	// The fee campaigns act on: the resolved one when defined, otherwise
	// the manually negotiated amount the client sent.
	shipBase := int64(0)
	switch {
	case req.Pickup:
	case pr.quote.Defined:
		shipBase = pr.quote.Amount
	default:
		shipBase = req.ClientShipping
	}

	cart := campaignContext(store, customerID, req.Pickup, pr, shipBase, products)
	pr.outcome, err = s.selector.Select(ctx, cart, req.CouponCode)
	if err != nil {
		return nil, err
	}

	pr.gifts, err = s.giftLines(ctx, store.TenantID, pr.outcome.Gifts)
	if err != nil {
		return nil, err
	}

	pr.discount = pr.outcome.Discount
	if pr.discount > pr.subtotal {
		pr.discount = pr.subtotal
	}
	pr.shipping = pr.outcome.Shipping
	pr.total = pr.subtotal - pr.discount + pr.shipping
	return pr, nil
}

func (s *Service) fetchProducts(ctx context.Context, tenantID string, ids []string) (map[string]catalog.Product, error) {
	byID := make(map[string]catalog.Product, len(ids))
	if len(ids) == 0 {
		return byID, nil
	}
	fetched, err := s.products.GetByIDs(ctx, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	for _, p := range fetched {
		byID[p.ID] = p
	}
	return byID, nil
}

func (s *Service) fetchAdditionals(ctx context.Context, tenantID string, ids []string) (map[string]catalog.Additional, error) {
	byID := make(map[string]catalog.Additional, len(ids))
	if len(ids) == 0 {
		return byID, nil
	}
	fetched, err := s.products.AdditionalsByIDs(ctx, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("get additionals: %w", err)
	}
	for _, a := range fetched {
		byID[a.ID] = a
	}
	return byID, nil
}

// priceLine snapshots one line. The unit price of a product line folds the
// chosen additionals in; custom lines carry their own name and price.
func priceLine(
	i int,
	ln Line,
	req *Request,
	products map[string]catalog.Product,
	additionals map[string]catalog.Additional,
) (PricedLine, error) {
	if ln.ProductID == "" {
		return PricedLine{
			Name:      ln.CustomName,
			UnitPrice: ln.CustomPrice,
			Quantity:  ln.Quantity,
			Total:     ln.CustomPrice * int64(ln.Quantity),
			Note:      ln.Note,
		}, nil
	}

	p, ok := products[ln.ProductID]
	if !ok || !p.Active {
		return PricedLine{}, &NotFoundError{Entity: "product", ID: ln.ProductID}
	}
	switch p.Availability {
	case catalog.AvailabilityUnavailable:
		return PricedLine{}, &ValidationError{
			Field:  lineField(i, "product_id"),
			Reason: fmt.Sprintf("product %s is unavailable", p.Name),
		}
	case catalog.AvailabilityOrder:
		if req.DeliveryDate == nil {
			return PricedLine{}, &ValidationError{
				Field:  lineField(i, "product_id"),
				Reason: fmt.Sprintf("product %s is made to order and needs a scheduled delivery date", p.Name),
			}
		}
	}

	unit := p.Price
	var chosen []ItemAdditional
	for _, aid := range ln.AdditionalIDs {
		a, ok := additionals[aid]
		if !ok || !a.Active {
			return PricedLine{}, &NotFoundError{Entity: "additional", ID: aid}
		}
		if !p.AllowsAdditional(aid) {
			return PricedLine{}, &ValidationError{
				Field:  lineField(i, "additional_ids"),
				Reason: fmt.Sprintf("additional %s not offered for product %s", a.Name, p.Name),
			}
		}
		unit += a.Price
		chosen = append(chosen, ItemAdditional{ID: a.ID, Name: a.Name, Price: a.Price})
	}

	return PricedLine{
		ProductID:   p.ID,
		Name:        p.Name,
		UnitPrice:   unit,
		Quantity:    ln.Quantity,
		Total:       unit * int64(ln.Quantity),
		Note:        ln.Note,
		Additionals: chosen,
	}, nil
}

func campaignContext(
	store *catalog.Store,
	customerID string,
	pickup bool,
	pr *pricing,
	shipBase int64,
	products map[string]catalog.Product,
) *campaign.Context {
	cart := &campaign.Context{
		TenantID:   store.TenantID,
		StoreID:    store.ID,
		CustomerID: customerID,
		Pickup:     pickup,
		Subtotal:   pr.subtotal,
		Shipping:   shipBase,

		QuantityByProduct:   make(map[string]int),
		QuantityByCategory:  make(map[string]int),
		LineTotalByProduct:  make(map[string]int64),
		LineTotalByCategory: make(map[string]int64),
	}
	for _, pl := range pr.lines {
		cart.TotalQuantity += pl.Quantity
		if pl.ProductID == "" {
			continue
		}
		cart.QuantityByProduct[pl.ProductID] += pl.Quantity
		cart.LineTotalByProduct[pl.ProductID] += pl.Total
		if cat := products[pl.ProductID].CategoryID; cat != "" {
			cart.QuantityByCategory[cat] += pl.Quantity
			cart.LineTotalByCategory[cat] += pl.Total
		}
	}
	return cart
}

// giftLines turns granted gifts into zero-priced lines. Gifts pointing at
// products that no longer exist or are inactive are dropped so a stale
// campaign cannot block checkout.
func (s *Service) giftLines(ctx context.Context, tenantID string, gifts []campaign.Gift) ([]PricedLine, error) {
	if len(gifts) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(gifts))
	for _, g := range gifts {
		ids = append(ids, g.ProductID)
	}
	products, err := s.fetchProducts(ctx, tenantID, ids)
	if err != nil {
		return nil, err
	}
	lines := make([]PricedLine, 0, len(gifts))
	for _, g := range gifts {
		p, ok := products[g.ProductID]
		if !ok || !p.Active {
			continue
		}
		lines = append(lines, PricedLine{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  g.Quantity,
			Gift:      true,
		})
	}
	return lines, nil
}

func (s *Service) buildOrder(store *catalog.Store, cust *customer.Customer, req *Request, pr *pricing) *Order {
	o := &Order{
		ID:           uuid.New().String(),
		TenantID:     store.TenantID,
		StoreID:      store.ID,
		CustomerID:   cust.ID,
		Status:       StatusReceived,
		Pickup:       req.Pickup,
		Subtotal:     pr.subtotal,
		Discount:     pr.discount,
		Shipping:     pr.shipping,
		Total:        pr.total,
		CouponCode:   strings.ToUpper(strings.TrimSpace(req.CouponCode)),
		Note:         req.Note,
		DeliveryDate: req.DeliveryDate,
		CreatedAt:    s.now(),
	}

	o.Items = make([]OrderItem, 0, len(pr.lines)+len(pr.gifts))
	for _, pl := range pr.lines {
		o.Items = append(o.Items, itemFromLine(pl))
	}
	for _, pl := range pr.gifts {
		o.Items = append(o.Items, itemFromLine(pl))
	}

	o.Payment = &Payment{
		ID:     uuid.New().String(),
		Method: req.PaymentMethod,
		Amount: pr.total,
		Status: PaymentPending,
	}
	if !req.Pickup {
		d := &Delivery{
			ID:         uuid.New().String(),
			Address:    req.Address.Address,
			PostalCode: req.Address.PostalCode,
			Lat:        req.Address.Lat,
			Lng:        req.Address.Lng,
			Fee:        pr.shipping,
		}
		if pr.quote.HasKm {
			km := pr.quote.Km
			d.DistanceKm = &km
		}
		o.Delivery = d
	}
	for _, a := range pr.outcome.Applied {
		o.Campaigns = append(o.Campaigns, AppliedCampaign{
			CampaignID: a.CampaignID,
			Name:       a.Name,
			Discount:   a.Discount,
		})
	}
	return o
}

func itemFromLine(pl PricedLine) OrderItem {
	return OrderItem{
		ID:          uuid.New().String(),
		ProductID:   pl.ProductID,
		Name:        pl.Name,
		UnitPrice:   pl.UnitPrice,
		Quantity:    pl.Quantity,
		Total:       pl.Total,
		Gift:        pl.Gift,
		Note:        pl.Note,
		Additionals: pl.Additionals,
	}
}

// reserveStock reserves paid and gift units in one batch so overlapping
// products aggregate before locking.
func reserveStock(ctx context.Context, store inventory.LockingStore, storeID string, pr *pricing) error {
	demands := make([]inventory.Demand, 0, len(pr.lines)+len(pr.gifts))
	for _, pl := range pr.lines {
		if pl.ProductID == "" {
			continue
		}
		demands = append(demands, inventory.Demand{ProductID: pl.ProductID, Quantity: pl.Quantity})
	}
	for _, pl := range pr.gifts {
		demands = append(demands, inventory.Demand{ProductID: pl.ProductID, Quantity: pl.Quantity})
	}
	return inventory.Reserve(ctx, store, storeID, demands)
}

// consumeUsage burns one use of every applied usage-limited campaign. The
// guarded increment is what holds the limit under concurrency; a failed
// guard aborts the transaction so the order never commits with a promotion
// that ran out.
func consumeUsage(ctx context.Context, usage campaign.UsageStore, out *campaign.Outcome) error {
	for _, a := range out.Applied {
		if !a.UsageLimited {
			continue
		}
		ok, err := usage.IncrementUses(ctx, a.CampaignID)
		if err != nil {
			return fmt.Errorf("increment campaign uses: %w", err)
		}
		if ok {
			continue
		}
		if a.CouponCode != "" {
			return campaign.ErrCouponUsageLimitReached
		}
		return &StateConflictError{Reason: fmt.Sprintf("promotion %s is no longer available", a.Name)}
	}
	return nil
}

func (s *Service) announce(ctx context.Context, store *catalog.Store, cust *customer.Customer, o *Order, token string) {
	if s.events == nil {
		return
	}
	ev := OrderPlacedEvent{
		OrderID:       o.ID,
		TenantID:      o.TenantID,
		StoreID:       o.StoreID,
		StoreName:     store.Name,
		CustomerName:  cust.Name,
		CustomerPhone: cust.PhoneDigits,
		Pickup:        o.Pickup,
		Total:         o.Total,
		ItemCount:     len(o.Items),
		TrackingToken: token,
		CreatedAt:     o.CreatedAt,
	}
	// Best effort after commit; the publisher logs its own failures.
	_ = s.events.OrderPlaced(ctx, ev)
}

func (s *Service) observe(ctx context.Context, err error, elapsed time.Duration) {
	if s.recorder == nil {
		return
	}
	s.recorder.Checkout(ctx, resultLabel(err), elapsed)
	var stock *inventory.InsufficientStockError
	if errors.As(err, &stock) {
		s.recorder.StockConflict(ctx)
	}
}

func resultLabel(err error) string {
	var (
		invalid  *ValidationError
		missing  *NotFoundError
		conflict *StateConflictError
		stock    *inventory.InsufficientStockError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &invalid):
		return "invalid_request"
	case errors.As(err, &missing):
		return "not_found"
	case errors.As(err, &conflict):
		return "state_conflict"
	case errors.As(err, &stock):
		return "insufficient_stock"
	case errors.Is(err, campaign.ErrInvalidCoupon),
		errors.Is(err, campaign.ErrCouponExpired),
		errors.Is(err, campaign.ErrCouponUsageLimitReached):
		return "invalid_coupon"
	default:
		return "error"
	}
}

func lineField(i int, name string) string {
	return fmt.Sprintf("lines[%d].%s", i, name)
}

func (p *pricing) toQuote(store *catalog.Store) *Quote {
	lines := make([]PricedLine, 0, len(p.lines)+len(p.gifts))
	lines = append(lines, p.lines...)
	lines = append(lines, p.gifts...)
	q := &Quote{
		StoreID:         store.ID,
		StoreName:       store.Name,
		Lines:           lines,
		Subtotal:        p.subtotal,
		Discount:        p.discount,
		Shipping:        p.shipping,
		ShippingDefined: p.quote.Defined,
		ShippingReason:  p.quote.Reason,
		Total:           p.total,
	}
	if p.quote.HasKm {
		km := p.quote.Km
		q.DistanceKm = &km
	}
	for _, a := range p.outcome.Applied {
		q.Campaigns = append(q.Campaigns, AppliedCampaign{
			CampaignID: a.CampaignID,
			Name:       a.Name,
			Discount:   a.Discount,
		})
	}
	return q
}
