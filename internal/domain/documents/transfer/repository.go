package transfer

import (
	"context"

	"docflow/internal/core/id"
	"docflow/internal/domain/catalogs/warehouse"
	"docflow/internal/domain/registers/stock"
)

// Repository persists transfers with their items.
type Repository interface {
	Create(ctx context.Context, t *Transfer) error
	GetByID(ctx context.Context, transferID id.ID) (*Transfer, error)
	// GetForUpdate locks the header row until the transaction ends.
	GetForUpdate(ctx context.Context, transferID id.ID) (*Transfer, error)
	// Update writes the header and item quantities, bumping Version.
	Update(ctx context.Context, t *Transfer) error
	Delete(ctx context.Context, transferID id.ID) error
	List(ctx context.Context, filter ListFilter) ([]*Transfer, error)
}

// Ledger is the part of the stock ledger transfers use.
type Ledger interface {
	Execute(ctx context.Context, ref stock.Reference, instructions ...stock.Instruction) ([]stock.Snapshot, error)
}

// Warehouses checks that warehouses exist and accept documents.
type Warehouses interface {
	RequireActive(ctx context.Context, warehouseID id.ID) (*warehouse.Warehouse, error)
}
