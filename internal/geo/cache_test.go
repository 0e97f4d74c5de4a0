package geo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storelink/checkout/internal/domain/shipping"
)

type fakeKV struct {
	data   map[string]string
	sets   map[string]string
	getErr error
}

func (f *fakeKV) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	if v, ok := f.data[key]; ok {
		return redis.NewStringResult(v, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeKV) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	if f.sets == nil {
		f.sets = map[string]string{}
	}
	f.sets[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

type staticDistance struct {
	km    float64
	err   error
	calls int
}

func (s *staticDistance) ByPoints(context.Context, shipping.Point, shipping.Point) (float64, error) {
	s.calls++
	return s.km, s.err
}

func (s *staticDistance) ByAddresses(context.Context, string, string) (float64, error) {
	s.calls++
	return s.km, s.err
}

type staticGeocoder struct {
	p     shipping.Point
	calls int
}

func (s *staticGeocoder) Geocode(context.Context, string) (shipping.Point, error) {
	s.calls++
	return s.p, nil
}

func TestCachedDistanceMissThenHit(t *testing.T) {
	kv := &fakeKV{data: map[string]string{}}
	provider := &staticDistance{km: 7.2}
	c := NewCachedDistance(provider, kv, time.Hour)
	from := shipping.Point{Lat: -23.5614, Lng: -46.6559}
	to := shipping.Point{Lat: -23.5334, Lng: -46.6559}

	km, err := c.ByPoints(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, 7.2, km)
	assert.Equal(t, 1, provider.calls)
	require.Len(t, kv.sets, 1)

	// Seed the store with what was written and ask again.
	for k, v := range kv.sets {
		kv.data[k] = v
	}
	km, err = c.ByPoints(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, 7.2, km)
	assert.Equal(t, 1, provider.calls, "second lookup served from cache")
}

func TestCachedDistanceNearbyPointsShareKey(t *testing.T) {
	kv := &fakeKV{data: map[string]string{}}
	provider := &staticDistance{km: 3}
	c := NewCachedDistance(provider, kv, time.Hour)

	_, err := c.ByPoints(context.Background(), shipping.Point{Lat: -23.56140004, Lng: -46.6559}, shipping.Point{})
	require.NoError(t, err)
	for k, v := range kv.sets {
		kv.data[k] = v
	}

	// Within rounding distance of the first origin.
	_, err = c.ByPoints(context.Background(), shipping.Point{Lat: -23.56139996, Lng: -46.6559}, shipping.Point{})
	require.NoError(t, err)
	assert.Equal(t, 1, provider.calls)
}

func TestCachedDistanceDegradesOnCacheError(t *testing.T) {
	kv := &fakeKV{getErr: errors.New("connection refused")}
	provider := &staticDistance{km: 5.5}
	c := NewCachedDistance(provider, kv, time.Hour)

	km, err := c.ByAddresses(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, 5.5, km)
	assert.Equal(t, 1, provider.calls)
}

func TestCachedDistanceProviderErrorPassesThrough(t *testing.T) {
	kv := &fakeKV{}
	provider := &staticDistance{err: errors.New("timeout")}
	c := NewCachedDistance(provider, kv, time.Hour)

	_, err := c.ByPoints(context.Background(), shipping.Point{}, shipping.Point{})
	assert.Error(t, err)
	assert.Empty(t, kv.sets, "failures are not cached")
}

func TestCachedGeocoderRoundTrip(t *testing.T) {
	kv := &fakeKV{data: map[string]string{}}
	provider := &staticGeocoder{p: shipping.Point{Lat: -23.5614, Lng: -46.6559}}
	c := NewCachedGeocoder(provider, kv, time.Hour)

	p, err := c.Geocode(context.Background(), "Av. Paulista 1000")
	require.NoError(t, err)
	assert.Equal(t, provider.p, p)
	for k, v := range kv.sets {
		kv.data[k] = v
	}

	// Address lookup is case and whitespace insensitive.
	p, err = c.Geocode(context.Background(), "  av. paulista 1000 ")
	require.NoError(t, err)
	assert.Equal(t, provider.p, p)
	assert.Equal(t, 1, provider.calls)
}

func TestCachedGeocoderIgnoresCorruptEntry(t *testing.T) {
	provider := &staticGeocoder{p: shipping.Point{Lat: 1, Lng: 2}}
	kv := &fakeKV{data: map[string]string{"geo:pt:" + addressHash("x"): "not-a-point"}}
	c := NewCachedGeocoder(provider, kv, time.Hour)

	p, err := c.Geocode(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, provider.p, p)
	assert.Equal(t, 1, provider.calls)
}
