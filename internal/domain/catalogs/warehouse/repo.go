package warehouse

import (
	"context"

	"docflow/internal/core/id"
)

// Repository persists warehouses. Lookups return NOT_FOUND for unknown keys.
type Repository interface {
	Create(ctx context.Context, w *Warehouse) error
	GetByID(ctx context.Context, warehouseID id.ID) (*Warehouse, error)
	GetByCode(ctx context.Context, code string) (*Warehouse, error)
	List(ctx context.Context, activeOnly bool) ([]*Warehouse, error)
	SetActive(ctx context.Context, warehouseID id.ID, active bool) error
}
