// Package inventory reserves per-store stock during checkout. Stock rows
// are advisory: a product with no row is untracked and sells freely, and
// deductions floor at zero rather than going negative.
package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Demand is the requested quantity of one product.
type Demand struct {
	ProductID string
	Quantity  int
}

// Shortfall reports a product whose stock cannot cover the request.
type Shortfall struct {
	ProductID string
	Available int
	Requested int
}

// InsufficientStockError carries every shortfall found in a batch so the
// caller can report the whole cart at once.
type InsufficientStockError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, len(e.Shortfalls))
	for i, s := range e.Shortfalls {
		parts[i] = fmt.Sprintf("%s (have %d, want %d)", s.ProductID, s.Available, s.Requested)
	}
	return "insufficient stock: " + strings.Join(parts, ", ")
}

// LockingStore gives exclusive access to stock rows for the duration of the
// surrounding transaction.
type LockingStore interface {
	// LockQuantity locks the (store, product) row and returns its quantity.
	// tracked is false when no row exists, meaning stock is not enforced
	// for this product.
	LockQuantity(ctx context.Context, storeID, productID string) (quantity int, tracked bool, err error)
	// DeductQuantity subtracts from the row, flooring at zero, creating a
	// zero-quantity row for untracked products so future sales see them.
	DeductQuantity(ctx context.Context, storeID, productID string, quantity int) error
}

// Reserve validates and applies a batch of demands against one store's
// stock. Duplicate product demands are summed, rows are locked in product
// ID order to keep concurrent reservations deadlock-free, and validation
// covers the whole batch before anything is deducted, so either every
// demand is reserved or none are and the error lists every shortfall.
func Reserve(ctx context.Context, store LockingStore, storeID string, demands []Demand) error {
	need := make(map[string]int, len(demands))
	for _, dm := range demands {
		if dm.ProductID == "" || dm.Quantity <= 0 {
			continue
		}
		need[dm.ProductID] += dm.Quantity
	}
	if len(need) == 0 {
		return nil
	}

	ids := make([]string, 0, len(need))
	for id := range need {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var short []Shortfall
	for _, id := range ids {
		qty, tracked, err := store.LockQuantity(ctx, storeID, id)
		if err != nil {
			return fmt.Errorf("lock stock for %s: %w", id, err)
		}
		if !tracked {
			continue
		}
		if qty < need[id] {
			short = append(short, Shortfall{ProductID: id, Available: qty, Requested: need[id]})
		}
	}
	if len(short) > 0 {
		return &InsufficientStockError{Shortfalls: short}
	}

	// Deduct for untracked products too: the zero row the upsert leaves
	// behind makes the product tracked from its first sale on.
	for _, id := range ids {
		if err := store.DeductQuantity(ctx, storeID, id, need[id]); err != nil {
			return fmt.Errorf("deduct stock for %s: %w", id, err)
		}
	}
	return nil
}
