package shipping

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/storelink/checkout/internal/domain/catalog"
)

// Resolver computes delivery fees. Resolution order: pickup is always free,
// a postal-code override wins next, then the store's scheme. Tiered stores
// need a distance: the matrix service is asked first and straight-line
// distance times the road factor covers its failures, so a flaky provider
// degrades the fee rather than the checkout.
type Resolver struct {
	tiers      TierRepository
	overrides  OverrideRepository
	distance   DistanceClient
	geocoder   Geocoder
	roadFactor decimal.Decimal
}

// NewResolver creates a Resolver. The distance client and geocoder may be
// nil, in which case only the straight-line path is available.
func NewResolver(
	tiers TierRepository,
	overrides OverrideRepository,
	distance DistanceClient,
	geocoder Geocoder,
	roadFactor decimal.Decimal,
) *Resolver {
	if !roadFactor.IsPositive() {
		roadFactor = decimal.NewFromInt(1)
	}
	return &Resolver{
		tiers:      tiers,
		overrides:  overrides,
		distance:   distance,
		geocoder:   geocoder,
		roadFactor: roadFactor,
	}
}

// Resolve computes the delivery fee quote for an order. Repository failures
// surface as errors; external measurement failures degrade to fallbacks and
// ultimately to an undefined quote with a reason.
func (r *Resolver) Resolve(ctx context.Context, store *catalog.Store, dest Destination, pickup bool) (Quote, error) {
	if pickup {
		return Quote{Defined: true}, nil
	}

	if dest.PostalCode != "" {
		ov, err := r.overrides.FindByPostalCode(ctx, store.TenantID, dest.PostalCode)
		switch {
		case err == nil:
			return Quote{Defined: true, Amount: ov.Amount}, nil
		case !errors.Is(err, ErrOverrideNotFound):
			return Quote{}, fmt.Errorf("lookup shipping override: %w", err)
		}
	}

	switch store.ShippingMethod {
	case catalog.ShippingFixed:
		return Quote{Defined: true, Amount: store.FixedShipping}, nil
	case catalog.ShippingTiered:
	default:
		return Quote{Reason: ReasonUnsupportedMethod}, nil
	}

	km, ok := r.distanceKm(ctx, store, dest)
	if !ok {
		return Quote{Reason: ReasonDistanceUnavailable}, nil
	}

	tiers, err := r.tiers.ListForStore(ctx, store.TenantID, store.ID)
	if err != nil {
		return Quote{}, fmt.Errorf("list shipping tiers: %w", err)
	}
	tier, ok := matchTier(tiers, store.ID, km)
	if !ok {
		return Quote{Km: km, HasKm: true, Reason: ReasonOutOfArea}, nil
	}

	return Quote{
		Defined: true,
		Amount:  tier.Amount + store.FixedShipping,
		Km:      km,
		HasKm:   true,
	}, nil
}

// distanceKm measures the distance between store and destination in
// kilometers, trying the matrix service before falling back to corrected
// straight-line distance.
func (r *Resolver) distanceKm(ctx context.Context, store *catalog.Store, dest Destination) (decimal.Decimal, bool) {
	if store.HasCoordinates() && dest.HasCoordinates() {
		from := Point{Lat: *store.Lat, Lng: *store.Lng}
		to := dest.Point()
		if r.distance != nil {
			if km, err := r.distance.ByPoints(ctx, from, to); err == nil && km >= 0 {
				return decimal.NewFromFloat(km), true
			}
		}
		return r.corrected(from, to), true
	}

	if dest.Address != "" {
		if r.distance != nil && store.Address != "" {
			if km, err := r.distance.ByAddresses(ctx, store.Address, dest.Address); err == nil && km >= 0 {
				return decimal.NewFromFloat(km), true
			}
		}
		if r.geocoder != nil && store.HasCoordinates() {
			if to, err := r.geocoder.Geocode(ctx, dest.Address); err == nil {
				return r.corrected(Point{Lat: *store.Lat, Lng: *store.Lng}, to), true
			}
		}
	}

	return decimal.Zero, false
}

// corrected approximates road distance as straight-line distance times the
// configured road factor.
func (r *Resolver) corrected(from, to Point) decimal.Decimal {
	return decimal.NewFromFloat(Haversine(from, to)).Mul(r.roadFactor)
}

// matchTier finds the first tier whose range contains the distance,
// store-scoped tiers taking precedence over tenant-wide ones.
func matchTier(tiers []Tier, storeID string, km decimal.Decimal) (*Tier, bool) {
	for i := range tiers {
		if tiers[i].StoreID == storeID && tiers[i].contains(km) {
			return &tiers[i], true
		}
	}
	for i := range tiers {
		if tiers[i].StoreID == "" && tiers[i].contains(km) {
			return &tiers[i], true
		}
	}
	return nil, false
}
