// Package shipping resolves delivery fees: postal-code overrides first,
// then the store's fee scheme, with distance measured by an external matrix
// service and a corrected straight-line fallback.
package shipping

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrOverrideNotFound is returned when a postal code has no manual fee.
var ErrOverrideNotFound = errors.New("shipping override not found")

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64
	Lng float64
}

// Destination is where an order ships to. Coordinates are optional; a bare
// address can still be measured via the matrix service or the geocoder.
type Destination struct {
	Address    string
	PostalCode string
	Lat        *float64
	Lng        *float64
}

// HasCoordinates reports whether the destination carries a usable location.
func (d Destination) HasCoordinates() bool {
	return d.Lat != nil && d.Lng != nil
}

// Point returns the destination coordinates; only valid when
// HasCoordinates is true.
func (d Destination) Point() Point {
	return Point{Lat: *d.Lat, Lng: *d.Lng}
}

// Tier is one distance band of a tenant's fee table. The range is half-open
// [KmMin, KmMax); an empty StoreID means the tier is tenant-wide. Amount is
// in cents.
type Tier struct {
	ID       string
	TenantID string
	StoreID  string
	KmMin    decimal.Decimal
	KmMax    decimal.Decimal
	Amount   int64
}

func (t *Tier) contains(km decimal.Decimal) bool {
	return km.GreaterThanOrEqual(t.KmMin) && km.LessThan(t.KmMax)
}

// Override is a manually set fee for one postal code, taking precedence
// over every other scheme. Amount is in cents.
type Override struct {
	TenantID   string
	PostalCode string
	Amount     int64
}

// Reason explains why a quote could not be produced.
type Reason string

const (
	// ReasonUnsupportedMethod means the store does not deliver.
	ReasonUnsupportedMethod Reason = "unsupported_method"
	// ReasonDistanceUnavailable means the distance could not be measured.
	ReasonDistanceUnavailable Reason = "distance_unavailable"
	// ReasonOutOfArea means no tier covers the measured distance.
	ReasonOutOfArea Reason = "out_of_area"
)

// Quote is the outcome of fee resolution. Amount is in cents; Km is only
// meaningful when HasKm is set. An undefined quote carries the Reason and
// leaves the fee to manual negotiation with the customer.
type Quote struct {
	Defined bool
	Amount  int64
	Km      decimal.Decimal
	HasKm   bool
	Reason  Reason
}

// TierRepository loads the fee table relevant to one store: its own tiers
// plus the tenant-wide ones, ordered by scope then KmMin.
type TierRepository interface {
	ListForStore(ctx context.Context, tenantID, storeID string) ([]Tier, error)
}

// OverrideRepository looks up manual postal-code fees.
type OverrideRepository interface {
	FindByPostalCode(ctx context.Context, tenantID, postalCode string) (*Override, error)
}

// DistanceClient measures road distance in kilometers.
type DistanceClient interface {
	ByPoints(ctx context.Context, from, to Point) (float64, error)
	ByAddresses(ctx context.Context, from, to string) (float64, error)
}

// Geocoder resolves a free-form address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Point, error)
}
