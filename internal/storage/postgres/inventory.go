package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/storelink/checkout/internal/domain/inventory"
)

const (
	lockQuantitySQL = `SELECT quantity FROM store_inventory
		WHERE store_id = $1 AND product_id = $2 FOR UPDATE`

	deductQuantitySQL = `INSERT INTO store_inventory (store_id, product_id, quantity, updated_at)
		VALUES ($1, $2, 0, now())
		ON CONFLICT (store_id, product_id) DO UPDATE
		SET quantity = GREATEST(0, store_inventory.quantity - $3), updated_at = now()`

	setQuantitySQL = `INSERT INTO store_inventory (store_id, product_id, quantity, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (store_id, product_id) DO UPDATE
		SET quantity = EXCLUDED.quantity, updated_at = now()`
)

var _ inventory.LockingStore = (*InventoryStore)(nil)

// InventoryStore implements inventory.LockingStore backed by PostgreSQL.
// The row locks taken by LockQuantity last until the surrounding
// transaction ends, so the store must run on a pgx.Tx.
type InventoryStore struct {
	db DB
}

// NewInventoryStore returns an InventoryStore that uses the given querier.
func NewInventoryStore(db DB) *InventoryStore {
	return &InventoryStore{db: db}
}

// LockQuantity locks the (store, product) row and returns its quantity.
// A product without a row is untracked and reported with tracked false.
func (s *InventoryStore) LockQuantity(ctx context.Context, storeID, productID string) (int, bool, error) {
	var qty int
	err := s.db.QueryRow(ctx, lockQuantitySQL, storeID, productID).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("locking stock for %q: %w", productID, err)
	}
	return qty, true, nil
}

// DeductQuantity subtracts from the row, flooring at zero. For untracked
// products the insert arm materializes a zero-quantity row.
func (s *InventoryStore) DeductQuantity(ctx context.Context, storeID, productID string, quantity int) error {
	_, err := s.db.Exec(ctx, deductQuantitySQL, storeID, productID, quantity)
	if err != nil {
		return fmt.Errorf("deducting stock for %q: %w", productID, err)
	}
	return nil
}

// SetQuantity writes an absolute stock level, creating the row if needed.
func (s *InventoryStore) SetQuantity(ctx context.Context, storeID, productID string, quantity int) error {
	_, err := s.db.Exec(ctx, setQuantitySQL, storeID, productID, quantity)
	if err != nil {
		return fmt.Errorf("setting stock for %q: %w", productID, err)
	}
	return nil
}
