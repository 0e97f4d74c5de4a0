// Command seed-db loads the demo dataset used for local development: one
// pizzeria tenant with a store on Avenida Paulista, its menu, stock
// levels, tenant-wide shipping tiers plus one postal-code override, and
// three campaigns covering the coupon, free-shipping, and gift paths.
// Every statement upserts by fixed UUID, so re-running refreshes the
// dataset in place.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/storelink/checkout/internal/domain/campaign"
	"github.com/storelink/checkout/internal/domain/shipping"
	"github.com/storelink/checkout/internal/storage/postgres"
)

// Fixed IDs keep the seed idempotent and give the README stable values to
// point curl examples at.
const (
	tenantID = "7b0c2e1a-9a4f-4d7e-8c3b-2f6a1d9e5b04"
	storeID  = "f2a9c6d1-3e58-4b0a-9f17-6c84d2b5e039"

	categoryPizzas   = "b57c3d9f-12e6-4a8b-b2c4-8e05f1a67d23"
	categoryDrinks   = "0d84f6b2-7c15-49ae-8d62-3b9e0a5c71f8"
	categoryDesserts = "6e19a8c4-d027-4f3b-a581-9c2d4e6b0f75"

	productMargherita = "3c75e0d9-48b2-4e6f-9a03-d18c5f2b7e64"
	productPepperoni  = "a12d8f36-59c0-47b9-b6e5-04f7a3c9d812"
	productSoda       = "58f0b3a7-6d24-4c1e-85d9-e67b201c4f93"
	productLemonade   = "9b46d2e8-0f73-4a5c-ae21-7d58c0b9f364"
	productTiramisu   = "e8a15c72-b4d9-40f6-93b8-5a0e6d7c21f4"

	additionalCheese = "24c9e7b0-81a5-4d3f-b7c2-f95d0e3a6b18"
	additionalOlives = "d7310fa9-5e8c-4b26-a094-1c6f8e2d5a07"

	campaignWelcome     = "41e6c0d8-2a97-4f5b-8e13-b05c9d7a2f46"
	campaignFreeShip    = "8fd52b14-c693-4078-b5ae-2e9d01c7f683"
	campaignDessertGift = "c0b87e25-169d-4da3-9f40-68a3e5b2d917"

	tierNear = "15d3a9f8-70bc-4e24-a6d1-3f82c5e09b47"
	tierMid  = "62efb807-49d1-4c5a-b398-d04a7f61e825"
	tierFar  = "af90c4e6-853b-4f17-92c8-7b5e0d3a1c69"
)

// Weekday numbering follows time.Weekday, Sunday is 0. Lunch and dinner
// service on weekdays, dinner only on weekends.
const storeHours = `[
	{"weekday": 1, "open": "11:00", "close": "15:00"},
	{"weekday": 1, "open": "18:00", "close": "23:00"},
	{"weekday": 2, "open": "11:00", "close": "15:00"},
	{"weekday": 2, "open": "18:00", "close": "23:00"},
	{"weekday": 3, "open": "11:00", "close": "15:00"},
	{"weekday": 3, "open": "18:00", "close": "23:00"},
	{"weekday": 4, "open": "11:00", "close": "15:00"},
	{"weekday": 4, "open": "18:00", "close": "23:00"},
	{"weekday": 5, "open": "11:00", "close": "15:00"},
	{"weekday": 5, "open": "18:00", "close": "23:00"},
	{"weekday": 6, "open": "18:00", "close": "23:30"},
	{"weekday": 0, "open": "18:00", "close": "22:00"}
]`

const storeExceptions = `[
	{"date": "2026-12-25", "closed": true},
	{"date": "2026-12-31", "windows": [{"open": "11:00", "close": "16:00"}]}
]`

func main() {
	var databaseURL string

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedTenant(ctx, pool); err != nil {
		return errors.Wrap(err, "seed tenant")
	}
	if err := seedStore(ctx, pool); err != nil {
		return errors.Wrap(err, "seed store")
	}
	if err := seedCatalog(ctx, pool); err != nil {
		return errors.Wrap(err, "seed catalog")
	}
	if err := seedInventory(ctx, pool); err != nil {
		return errors.Wrap(err, "seed inventory")
	}
	if err := seedShipping(ctx, pool); err != nil {
		return errors.Wrap(err, "seed shipping")
	}
	if err := seedCampaigns(ctx, pool); err != nil {
		return errors.Wrap(err, "seed campaigns")
	}
	return nil
}

func seedTenant(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("upserting tenant", slog.String("id", tenantID))

	_, err := pool.Exec(ctx, `
		INSERT INTO tenants (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		tenantID, "Bella Napoli Pizzarias")
	return err
}

func seedStore(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("upserting store", slog.String("id", storeID))

	_, err := pool.Exec(ctx, `
		INSERT INTO stores (id, tenant_id, name, timezone, address, postal_code, lat, lng,
			shipping_method, fixed_shipping_cents, pre_orders_enabled, hours, hours_exceptions, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, timezone = EXCLUDED.timezone, address = EXCLUDED.address,
			postal_code = EXCLUDED.postal_code, lat = EXCLUDED.lat, lng = EXCLUDED.lng,
			shipping_method = EXCLUDED.shipping_method,
			fixed_shipping_cents = EXCLUDED.fixed_shipping_cents,
			pre_orders_enabled = EXCLUDED.pre_orders_enabled, hours = EXCLUDED.hours,
			hours_exceptions = EXCLUDED.hours_exceptions, active = TRUE`,
		storeID, tenantID, "Bella Napoli Paulista", "America/Sao_Paulo",
		"Av. Paulista, 1578 - Bela Vista, São Paulo - SP", "01310-200",
		-23.5614, -46.6559, "tiered", 0, true, storeHours, storeExceptions)
	return err
}

func seedCatalog(ctx context.Context, pool *pgxpool.Pool) error {
	categories := []struct {
		id, name string
		sort     int
	}{
		{categoryPizzas, "Pizzas", 1},
		{categoryDrinks, "Drinks", 2},
		{categoryDesserts, "Desserts", 3},
	}
	for _, c := range categories {
		if _, err := pool.Exec(ctx, `
			INSERT INTO categories (id, tenant_id, name, sort_order, active)
			VALUES ($1, $2, $3, $4, TRUE)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name, sort_order = EXCLUDED.sort_order, active = TRUE`,
			c.id, tenantID, c.name, c.sort); err != nil {
			return errors.Wrapf(err, "upsert category %s", c.name)
		}
	}
	slog.Info("upserted categories", slog.Int("count", len(categories)))

	products := []struct {
		id, categoryID, name, description string
		price                             int64
		availability                      string
	}{
		{productMargherita, categoryPizzas, "Pizza Margherita", "Tomato, mozzarella, fresh basil", 5200, "available"},
		{productPepperoni, categoryPizzas, "Pizza Pepperoni", "Tomato, mozzarella, pepperoni", 5800, "available"},
		{productSoda, categoryDrinks, "Soda 350ml", "", 800, "available"},
		{productLemonade, categoryDrinks, "Craft Lemonade 500ml", "Pressed to order, delivery must be scheduled", 1200, "order"},
		{productTiramisu, categoryDesserts, "Tiramisu", "House-made, serves one", 2400, "available"},
	}
	for _, p := range products {
		if _, err := pool.Exec(ctx, `
			INSERT INTO products (id, tenant_id, category_id, name, description, price_cents, availability, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
			ON CONFLICT (id) DO UPDATE SET
				category_id = EXCLUDED.category_id, name = EXCLUDED.name,
				description = EXCLUDED.description, price_cents = EXCLUDED.price_cents,
				availability = EXCLUDED.availability, active = TRUE`,
			p.id, tenantID, p.categoryID, p.name, p.description, p.price, p.availability); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.name)
		}
	}
	slog.Info("upserted products", slog.Int("count", len(products)))

	additionals := []struct {
		id, name string
		price    int64
	}{
		{additionalCheese, "Extra cheese", 700},
		{additionalOlives, "Olives", 400},
	}
	for _, a := range additionals {
		if _, err := pool.Exec(ctx, `
			INSERT INTO additionals (id, tenant_id, name, price_cents, active)
			VALUES ($1, $2, $3, $4, TRUE)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name, price_cents = EXCLUDED.price_cents, active = TRUE`,
			a.id, tenantID, a.name, a.price); err != nil {
			return errors.Wrapf(err, "upsert additional %s", a.name)
		}
	}

	links := [][2]string{
		{productMargherita, additionalCheese},
		{productMargherita, additionalOlives},
		{productPepperoni, additionalCheese},
	}
	for _, l := range links {
		if _, err := pool.Exec(ctx, `
			INSERT INTO product_additionals (product_id, additional_id)
			VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			l[0], l[1]); err != nil {
			return errors.Wrap(err, "link additional")
		}
	}
	slog.Info("upserted additionals", slog.Int("count", len(additionals)), slog.Int("links", len(links)))

	return nil
}

func seedInventory(ctx context.Context, pool *pgxpool.Pool) error {
	// The lemonade gets no row: it is made to order and starts untracked.
	stock := map[string]int{
		productMargherita: 50,
		productPepperoni:  50,
		productSoda:       200,
		productTiramisu:   10,
	}

	inv := postgres.NewInventoryStore(pool)
	for productID, qty := range stock {
		if err := inv.SetQuantity(ctx, storeID, productID, qty); err != nil {
			return errors.Wrapf(err, "set stock for %s", productID)
		}
	}
	slog.Info("set stock levels", slog.Int("count", len(stock)))
	return nil
}

func seedShipping(ctx context.Context, pool *pgxpool.Pool) error {
	tiers := []struct {
		id           string
		kmMin, kmMax int64
		amount       int64
	}{
		{tierNear, 0, 3, 700},
		{tierMid, 3, 6, 1100},
		{tierFar, 6, 10, 1600},
	}
	for _, t := range tiers {
		if _, err := pool.Exec(ctx, `
			INSERT INTO shipping_tiers (id, tenant_id, store_id, km_min, km_max, amount_cents)
			VALUES ($1, $2, NULL, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				km_min = EXCLUDED.km_min, km_max = EXCLUDED.km_max,
				amount_cents = EXCLUDED.amount_cents`,
			t.id, tenantID, decimal.NewFromInt(t.kmMin), decimal.NewFromInt(t.kmMax), t.amount); err != nil {
			return errors.Wrapf(err, "upsert shipping tier %s", t.id)
		}
	}
	slog.Info("upserted shipping tiers", slog.Int("count", len(tiers)))

	overrides := postgres.NewOverrideRepository(pool)
	if err := overrides.Upsert(ctx, []shipping.Override{
		{TenantID: tenantID, PostalCode: "01310-100", Amount: 500},
	}); err != nil {
		return errors.Wrap(err, "upsert shipping override")
	}
	slog.Info("upserted shipping override", slog.String("postal_code", "01310-100"))
	return nil
}

func seedCampaigns(ctx context.Context, pool *pgxpool.Pool) error {
	campaigns := []struct {
		id, name   string
		kind       campaign.Type
		percent    decimal.Decimal
		coupon     string
		minOrder   int64
		usageLimit int
		applyMode  campaign.ApplyMode
		priority   int
		rules      []campaign.Rule
	}{
		{
			id:         campaignWelcome,
			name:       "Welcome 10% off",
			kind:       campaign.TypeOrderPercent,
			percent:    decimal.NewFromInt(10),
			coupon:     "WELCOME10",
			minOrder:   3000,
			usageLimit: 1000,
			applyMode:  campaign.ApplyFirst,
			priority:   10,
		},
		{
			id:        campaignFreeShip,
			name:      "Free delivery over R$80",
			kind:      campaign.TypeRuleSet,
			applyMode: campaign.ApplyStack,
			priority:  20,
			rules: []campaign.Rule{{
				Conditions: []campaign.Condition{{
					Dimension: campaign.DimSubtotal,
					Operator:  campaign.OpGte,
					Number:    8000,
				}},
				Actions: []campaign.Action{{Type: campaign.ActionFreeShipping}},
			}},
		},
		{
			id:        campaignDessertGift,
			name:      "Dessert on the house over R$120",
			kind:      campaign.TypeRuleSet,
			applyMode: campaign.ApplyStack,
			priority:  30,
			rules: []campaign.Rule{{
				Conditions: []campaign.Condition{{
					Dimension: campaign.DimSubtotal,
					Operator:  campaign.OpGte,
					Number:    12000,
				}},
				Actions: []campaign.Action{{
					Type:      campaign.ActionGift,
					ProductID: productTiramisu,
					Quantity:  1,
				}},
			}},
		},
	}

	for _, c := range campaigns {
		var coupon *string
		if c.coupon != "" {
			coupon = &c.coupon
		}
		rulesJSON := "[]"
		if len(c.rules) > 0 {
			rulesJSON = string(campaign.EncodeRules(c.rules))
		}

		// uses is left alone on conflict so reseeding does not hand back
		// consumed coupon budget.
		if _, err := pool.Exec(ctx, `
			INSERT INTO campaigns (id, tenant_id, name, type, percent, coupon_code,
				min_order_cents, usage_limit, apply_mode, priority, rules, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, TRUE)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name, type = EXCLUDED.type, percent = EXCLUDED.percent,
				coupon_code = EXCLUDED.coupon_code, min_order_cents = EXCLUDED.min_order_cents,
				usage_limit = EXCLUDED.usage_limit, apply_mode = EXCLUDED.apply_mode,
				priority = EXCLUDED.priority, rules = EXCLUDED.rules, active = TRUE`,
			c.id, tenantID, c.name, string(c.kind), c.percent, coupon,
			c.minOrder, c.usageLimit, string(c.applyMode), c.priority, rulesJSON); err != nil {
			return errors.Wrapf(err, "upsert campaign %s", c.name)
		}

		slog.Info("upserted campaign", slog.String("id", c.id), slog.String("name", c.name))
	}
	return nil
}
