package catalog

import (
	"context"
	"strconv"
	"time"
)

// ShippingMethod selects how a store charges for delivery.
type ShippingMethod string

const (
	// ShippingTiered resolves the fee from distance tiers.
	ShippingTiered ShippingMethod = "tiered"
	// ShippingFixed charges a flat fee per delivery.
	ShippingFixed ShippingMethod = "fixed"
	// ShippingNone means the store does not deliver at all.
	ShippingNone ShippingMethod = "none"
)

// Store is a physical location orders are placed against. FixedShipping is
// in cents and only meaningful for ShippingFixed.
type Store struct {
	ID               string
	TenantID         string
	Name             string
	Timezone         string
	Address          string
	PostalCode       string
	Lat              *float64
	Lng              *float64
	ShippingMethod   ShippingMethod
	FixedShipping    int64
	PreOrdersEnabled bool
	Hours            []WeeklyWindow
	Exceptions       []DateException
	Active           bool
	CreatedAt        time.Time
}

// WeeklyWindow is one recurring opening window. Open and Close are local
// "HH:MM" clock values; a Close at or before Open spans midnight.
type WeeklyWindow struct {
	Weekday time.Weekday
	Open    string
	Close   string
}

// HourWindow is a single opening window within one day.
type HourWindow struct {
	Open  string
	Close string
}

// DateException replaces the weekly schedule on one calendar date
// ("2006-01-02" in the store's timezone). Closed wins over Windows; an
// exception with no windows and Closed unset also means closed all day.
type DateException struct {
	Date    string
	Closed  bool
	Windows []HourWindow
}

const dateLayout = "2006-01-02"

// Location resolves the store's IANA timezone, falling back to UTC when the
// name is missing or unknown.
func (s *Store) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// HasCoordinates reports whether the store has a usable geolocation.
func (s *Store) HasCoordinates() bool {
	return s.Lat != nil && s.Lng != nil
}

// OpenAt reports whether the store accepts orders at the given instant,
// evaluated in the store's own timezone. Overnight windows belong to the day
// they open on and keep covering the early hours of the next day.
func (s *Store) OpenAt(t time.Time) bool {
	local := t.In(s.Location())
	minute := local.Hour()*60 + local.Minute()

	if coversMinute(s.windowsFor(local), minute, false) {
		return true
	}
	return coversMinute(s.windowsFor(local.AddDate(0, 0, -1)), minute, true)
}

// windowsFor returns the opening windows in force on the given local date,
// exceptions taking precedence over the weekly schedule.
func (s *Store) windowsFor(day time.Time) []HourWindow {
	date := day.Format(dateLayout)
	for _, exc := range s.Exceptions {
		if exc.Date != date {
			continue
		}
		if exc.Closed {
			return nil
		}
		return exc.Windows
	}

	var windows []HourWindow
	for _, w := range s.Hours {
		if w.Weekday == day.Weekday() {
			windows = append(windows, HourWindow{Open: w.Open, Close: w.Close})
		}
	}
	return windows
}

// coversMinute reports whether any window covers the minute of day. With
// tail set the caller is asking about the day after the window's own date,
// so only the spilled-over part of overnight windows counts.
func coversMinute(windows []HourWindow, minute int, tail bool) bool {
	for _, w := range windows {
		open, ok := parseClock(w.Open)
		if !ok {
			continue
		}
		cl, ok := parseClock(w.Close)
		if !ok {
			continue
		}
		overnight := cl <= open

		switch {
		case tail:
			if overnight && minute < cl {
				return true
			}
		case overnight:
			if minute >= open {
				return true
			}
		default:
			if minute >= open && minute < cl {
				return true
			}
		}
	}
	return false
}

// parseClock converts "HH:MM" into minutes since midnight.
func parseClock(s string) (int, bool) {
	if len(s) != 5 || s[2] != ':' {
		return 0, false
	}
	h, err := strconv.Atoi(s[:2])
	if err != nil || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(s[3:])
	if err != nil || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// StoreRepository defines read operations for tenant stores.
type StoreRepository interface {
	GetByID(ctx context.Context, tenantID, id string) (*Store, error)
	// FirstActive returns the tenant's oldest active store, by creation time
	// then ID, or ErrStoreNotFound when the tenant has none.
	FirstActive(ctx context.Context, tenantID string) (*Store, error)
}

// DefaultStore is the policy for requests that do not name a store: the
// tenant's oldest active store takes the order.
func DefaultStore(ctx context.Context, stores StoreRepository, tenantID string) (*Store, error) {
	return stores.FirstActive(ctx, tenantID)
}
