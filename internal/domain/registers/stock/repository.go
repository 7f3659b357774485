package stock

import (
	"context"

	"docflow/internal/core/id"
)

// Repository persists stock records and their movement log.
// Every method joins the transaction carried by ctx.
type Repository interface {
	// Lock returns the record row-locked until the transaction ends,
	// creating a zero record first if none exists.
	Lock(ctx context.Context, key Key) (Record, error)

	// Save writes the counters of a record obtained from Lock.
	Save(ctx context.Context, rec Record) error

	// AppendMovements inserts movements. Movements are never updated or deleted.
	AppendMovements(ctx context.Context, movements []Movement) error

	// Get returns NOT_FOUND when the pair has never been touched.
	Get(ctx context.Context, key Key) (Record, error)

	// GetShared is Get with a share lock held until the transaction ends,
	// so writers wait while the caller reads the movement log. It never
	// creates a row.
	GetShared(ctx context.Context, key Key) (Record, error)

	ListByWarehouse(ctx context.Context, warehouseID id.ID, filter BalanceFilter) ([]Record, error)

	// ListMovements returns movements oldest first.
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}
