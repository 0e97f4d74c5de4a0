package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storelink/checkout/internal/domain/shipping"
)

func TestClientByPoints(t *testing.T) {
	var gotPath string
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{"status":"ok","distance_km":7.2}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", time.Second)
	km, err := c.ByPoints(context.Background(),
		shipping.Point{Lat: -23.5614, Lng: -46.6559},
		shipping.Point{Lat: -23.5334, Lng: -46.6559})
	require.NoError(t, err)

	assert.Equal(t, 7.2, km)
	assert.Equal(t, "/v1/distance", gotPath)
	assert.Equal(t, "-23.5614,-46.6559", gotQuery.Get("origin"))
	assert.Equal(t, "-23.5334,-46.6559", gotQuery.Get("destination"))
	assert.Equal(t, "test-key", gotQuery.Get("key"))
}

func TestClientByAddresses(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{"distance_km":12.5}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	km, err := c.ByAddresses(context.Background(), "Av. Paulista 1000", "Rua Augusta 500")
	require.NoError(t, err)

	assert.Equal(t, 12.5, km)
	assert.Equal(t, "Av. Paulista 1000", gotQuery.Get("origin"))
	assert.Empty(t, gotQuery.Get("key"), "no key param without an api key")
}

func TestClientGeocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/geocode", r.URL.Path)
		assert.Equal(t, "Av. Paulista 1000", r.URL.Query().Get("address"))
		_, _ = w.Write([]byte(`{"status":"ok","lat":-23.5614,"lng":-46.6559}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	p, err := c.Geocode(context.Background(), "Av. Paulista 1000")
	require.NoError(t, err)
	assert.Equal(t, shipping.Point{Lat: -23.5614, Lng: -46.6559}, p)
}

func TestClientProviderFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			name: "provider status not ok",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"status":"no_route"}`))
			},
		},
		{
			name: "missing distance",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"status":"ok"}`))
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"distance_km"`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewClient(srv.URL, "", time.Second)
			_, err := c.ByPoints(context.Background(), shipping.Point{}, shipping.Point{})
			assert.Error(t, err)
		})
	}
}

func TestClientGeocodeMissingCoordinates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","lat":-23.5}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.Geocode(context.Background(), "nowhere")
	assert.Error(t, err)
}
