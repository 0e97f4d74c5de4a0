// Package catalog holds the product, additional, and store entities a tenant
// sells from, together with the read interfaces the checkout flow depends on.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
)

// Sentinel errors for catalog lookups.
var (
	ErrProductNotFound    = errors.New("product not found")
	ErrAdditionalNotFound = errors.New("additional not found")
	ErrStoreNotFound      = errors.New("store not found")
)

// Availability controls how a product may enter an order.
type Availability string

const (
	// AvailabilityAvailable products can be ordered normally.
	AvailabilityAvailable Availability = "available"
	// AvailabilityOrder products are made to order and require a scheduled
	// delivery date on a store that accepts pre-orders.
	AvailabilityOrder Availability = "order"
	// AvailabilityUnavailable products cannot be ordered at all.
	AvailabilityUnavailable Availability = "unavailable"
)

// Product is a sellable catalog item. Price is in cents.
type Product struct {
	ID            string
	TenantID      string
	CategoryID    string
	Name          string
	Description   string
	ImageURL      string
	Price         int64
	Availability  Availability
	Active        bool
	AdditionalIDs []string
}

// AllowsAdditional reports whether the additional is offered for this
// product.
func (p *Product) AllowsAdditional(id string) bool {
	for _, a := range p.AdditionalIDs {
		if a == id {
			return true
		}
	}
	return false
}

// Additional is an optional extra that can be attached to a product line,
// priced per unit of the line. Price is in cents.
type Additional struct {
	ID     string
	Name   string
	Price  int64
	Active bool
}

// Category groups products for category-scoped promotions.
type Category struct {
	ID        string
	Name      string
	SortOrder int
	Active    bool
}

// ProductRepository defines batch read operations for the product catalog.
type ProductRepository interface {
	GetByIDs(ctx context.Context, tenantID string, ids []string) ([]Product, error)
	AdditionalsByIDs(ctx context.Context, tenantID string, ids []string) ([]Additional, error)
}
