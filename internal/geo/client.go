// Package geo talks to the external distance and geocoding provider and
// adds optional Redis caching in front of it.
package geo

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/storelink/checkout/internal/domain/shipping"
)

const maxResponseBytes = 1 << 20

// Client calls the provider's HTTP API. It implements both
// shipping.DistanceClient and shipping.Geocoder.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a provider client. A non-positive timeout defaults to
// five seconds.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// ByPoints measures road distance between two coordinates in kilometers.
func (c *Client) ByPoints(ctx context.Context, from, to shipping.Point) (float64, error) {
	q := url.Values{}
	q.Set("origin", formatPoint(from))
	q.Set("destination", formatPoint(to))
	body, err := c.get(ctx, "/v1/distance", q)
	if err != nil {
		return 0, err
	}
	return decodeDistance(body)
}

// ByAddresses measures road distance between two free-form addresses in
// kilometers.
func (c *Client) ByAddresses(ctx context.Context, from, to string) (float64, error) {
	q := url.Values{}
	q.Set("origin", from)
	q.Set("destination", to)
	body, err := c.get(ctx, "/v1/distance", q)
	if err != nil {
		return 0, err
	}
	return decodeDistance(body)
}

// Geocode resolves a free-form address to coordinates.
func (c *Client) Geocode(ctx context.Context, address string) (shipping.Point, error) {
	q := url.Values{}
	q.Set("address", address)
	body, err := c.get(ctx, "/v1/geocode", q)
	if err != nil {
		return shipping.Point{}, err
	}
	return decodePoint(body)
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "call provider")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("provider returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	return body, nil
}

func decodeDistance(data []byte) (float64, error) {
	var (
		status string
		km     float64
		seenKm bool
	)
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			v, err := d.Str()
			status = v
			return err
		case "distance_km":
			v, err := d.Float64()
			km = v
			seenKm = true
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return 0, errors.Wrap(err, "decode distance response")
	}
	if status != "" && status != "ok" {
		return 0, errors.Errorf("provider status %q", status)
	}
	if !seenKm {
		return 0, errors.New("response missing distance_km")
	}
	return km, nil
}

func decodePoint(data []byte) (shipping.Point, error) {
	var (
		status   string
		p        shipping.Point
		seenLat  bool
		seenLng  bool
	)
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			v, err := d.Str()
			status = v
			return err
		case "lat":
			v, err := d.Float64()
			p.Lat = v
			seenLat = true
			return err
		case "lng":
			v, err := d.Float64()
			p.Lng = v
			seenLng = true
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return shipping.Point{}, errors.Wrap(err, "decode geocode response")
	}
	if status != "" && status != "ok" {
		return shipping.Point{}, errors.Errorf("provider status %q", status)
	}
	if !seenLat || !seenLng {
		return shipping.Point{}, errors.New("response missing coordinates")
	}
	return p, nil
}

func formatPoint(p shipping.Point) string {
	return strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lng, 'f', -1, 64)
}
