// Package customer resolves order customers by phone number, tolerating the
// formatting and country-code variance of user-entered phones.
package customer

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Sentinel errors for customer resolution.
var (
	ErrNotFound     = errors.New("customer not found")
	ErrInvalidPhone = errors.New("phone must contain digits")
)

// Customer identifies who placed an order. PhoneDigits is the canonical
// digit-only form the customer was first stored under.
type Customer struct {
	ID          string
	TenantID    string
	Name        string
	PhoneDigits string
	CreatedAt   time.Time
}

// Repository defines persistence operations for customers.
type Repository interface {
	GetByID(ctx context.Context, tenantID, id string) (*Customer, error)
	// FindByPhone returns the first customer whose stored digits match any
	// candidate, preferring earlier candidates.
	FindByPhone(ctx context.Context, tenantID string, candidates []string) (*Customer, error)
	Create(ctx context.Context, c *Customer) error
}

// Resolve finds the customer matching the raw phone, creating a new record
// when no candidate form is known yet.
func Resolve(ctx context.Context, repo Repository, tenantID, name, rawPhone, countryCode string) (*Customer, error) {
	candidates := PhoneCandidates(rawPhone, countryCode)
	if len(candidates) == 0 {
		return nil, ErrInvalidPhone
	}

	c, err := repo.FindByPhone(ctx, tenantID, candidates)
	switch {
	case err == nil:
		return c, nil
	case errors.Is(err, ErrNotFound):
	default:
		return nil, fmt.Errorf("find customer: %w", err)
	}

	c = &Customer{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		Name:        name,
		PhoneDigits: candidates[0],
	}
	if err := repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return c, nil
}
