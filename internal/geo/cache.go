package geo

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-redis/redis/v8"

	"github.com/storelink/checkout/internal/domain/shipping"
)

// kv is the slice of the Redis API the caches need; *redis.Client
// satisfies it.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CachedDistance caches distance lookups so repeat quotes for the same
// route skip the provider. Cache failures degrade to a provider call;
// they never fail the lookup.
type CachedDistance struct {
	next shipping.DistanceClient
	rdb  kv
	ttl  time.Duration
}

// NewCachedDistance wraps next with a Redis cache.
func NewCachedDistance(next shipping.DistanceClient, rdb kv, ttl time.Duration) *CachedDistance {
	return &CachedDistance{next: next, rdb: rdb, ttl: ttl}
}

// ByPoints returns the cached distance for the route or asks the provider.
func (c *CachedDistance) ByPoints(ctx context.Context, from, to shipping.Point) (float64, error) {
	key := fmt.Sprintf("geo:km:%s:%s", roundedPoint(from), roundedPoint(to))
	if km, err := c.rdb.Get(ctx, key).Float64(); err == nil {
		return km, nil
	}
	km, err := c.next.ByPoints(ctx, from, to)
	if err != nil {
		return 0, err
	}
	c.rdb.Set(ctx, key, km, c.ttl)
	return km, nil
}

// ByAddresses returns the cached distance for the address pair or asks the
// provider.
func (c *CachedDistance) ByAddresses(ctx context.Context, from, to string) (float64, error) {
	key := "geo:kma:" + addressHash(from+"|"+to)
	if km, err := c.rdb.Get(ctx, key).Float64(); err == nil {
		return km, nil
	}
	km, err := c.next.ByAddresses(ctx, from, to)
	if err != nil {
		return 0, err
	}
	c.rdb.Set(ctx, key, km, c.ttl)
	return km, nil
}

// CachedGeocoder caches geocoding results by normalized address.
type CachedGeocoder struct {
	next shipping.Geocoder
	rdb  kv
	ttl  time.Duration
}

// NewCachedGeocoder wraps next with a Redis cache.
func NewCachedGeocoder(next shipping.Geocoder, rdb kv, ttl time.Duration) *CachedGeocoder {
	return &CachedGeocoder{next: next, rdb: rdb, ttl: ttl}
}

// Geocode returns the cached coordinates for the address or asks the
// provider.
func (c *CachedGeocoder) Geocode(ctx context.Context, address string) (shipping.Point, error) {
	key := "geo:pt:" + addressHash(address)
	if raw, err := c.rdb.Get(ctx, key).Result(); err == nil {
		if p, err := parseStoredPoint(raw); err == nil {
			return p, nil
		}
	}
	p, err := c.next.Geocode(ctx, address)
	if err != nil {
		return shipping.Point{}, err
	}
	c.rdb.Set(ctx, key, storePoint(p), c.ttl)
	return p, nil
}

// roundedPoint keys coordinates at about 11 meter precision so nearby
// lookups share cache entries.
func roundedPoint(p shipping.Point) string {
	return fmt.Sprintf("%.4f,%.4f", p.Lat, p.Lng)
}

func addressHash(s string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(s))))
	return fmt.Sprintf("%x", sum[:16])
}

func storePoint(p shipping.Point) string {
	return strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lng, 'f', -1, 64)
}

func parseStoredPoint(raw string) (shipping.Point, error) {
	lat, lng, ok := strings.Cut(raw, ",")
	if !ok {
		return shipping.Point{}, errors.New("malformed cached point")
	}
	latF, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return shipping.Point{}, errors.Wrap(err, "parse lat")
	}
	lngF, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return shipping.Point{}, errors.Wrap(err, "parse lng")
	}
	return shipping.Point{Lat: latF, Lng: lngF}, nil
}
