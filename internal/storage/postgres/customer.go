package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/storelink/checkout/internal/domain/customer"
)

const (
	getCustomerSQL = `SELECT id, tenant_id, name, phone_digits, created_at
		FROM customers WHERE tenant_id = $1 AND id = $2`

	findCustomerByPhoneSQL = `SELECT id, tenant_id, name, phone_digits, created_at
		FROM customers
		WHERE tenant_id = $1 AND phone_digits = ANY($2)
		ORDER BY array_position($2, phone_digits), created_at
		LIMIT 1`

	createCustomerSQL = `INSERT INTO customers (id, tenant_id, name, phone_digits)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	db DB
}

// NewCustomerRepository returns a CustomerRepository that uses the given
// querier.
func NewCustomerRepository(db DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// GetByID returns a single customer scoped to the tenant.
func (r *CustomerRepository) GetByID(ctx context.Context, tenantID, id string) (*customer.Customer, error) {
	if !uuidOK(id) {
		return nil, customer.ErrNotFound
	}
	rows, err := r.db.Query(ctx, getCustomerSQL, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("getting customer %q: %w", id, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %q: %w", id, err)
	}
	return &c, nil
}

// FindByPhone returns the first customer whose stored digits match any
// candidate, preferring earlier candidates.
func (r *CustomerRepository) FindByPhone(ctx context.Context, tenantID string, candidates []string) (*customer.Customer, error) {
	rows, err := r.db.Query(ctx, findCustomerByPhoneSQL, tenantID, candidates)
	if err != nil {
		return nil, fmt.Errorf("finding customer by phone: %w", err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("finding customer by phone: %w", err)
	}
	return &c, nil
}

// Create persists a new customer, filling CreatedAt from the database.
func (r *CustomerRepository) Create(ctx context.Context, c *customer.Customer) error {
	err := r.db.QueryRow(ctx, createCustomerSQL, c.ID, c.TenantID, c.Name, c.PhoneDigits).
		Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating customer %q: %w", c.ID, err)
	}
	return nil
}

func scanCustomer(row pgx.CollectableRow) (customer.Customer, error) {
	var c customer.Customer
	err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.PhoneDigits, &c.CreatedAt)
	return c, err
}
