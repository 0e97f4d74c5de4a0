package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storelink/checkout/internal/domain/checkout"
)

var _ checkout.TxRunner = (*TxManager)(nil)

// TxManager runs checkout write sets inside a single database transaction.
type TxManager struct {
	pool *pgxpool.Pool
}

// NewTxManager returns a TxManager that opens transactions on the given
// pool.
func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

// InTx opens a transaction, hands fn repositories bound to it, and commits
// when fn returns nil. Any error from fn rolls the transaction back and is
// returned as-is so domain sentinels stay matchable.
func (m *TxManager) InTx(ctx context.Context, fn func(r checkout.TxRepos) error) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	repos := checkout.TxRepos{
		Orders:    NewOrderRepository(tx),
		Stock:     NewInventoryStore(tx),
		Campaigns: NewUsageStore(tx),
	}
	if err := fn(repos); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
