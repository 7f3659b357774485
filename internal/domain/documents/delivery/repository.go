package delivery

import (
	"context"

	"docflow/internal/core/id"
	"docflow/internal/domain/catalogs/warehouse"
	"docflow/internal/domain/registers/stock"
)

// Repository persists delivery orders with their items.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, orderID id.ID) (*Order, error)
	// GetForUpdate locks the header row until the transaction ends.
	GetForUpdate(ctx context.Context, orderID id.ID) (*Order, error)
	// Update writes header and items, bumping Version.
	Update(ctx context.Context, o *Order) error
	Delete(ctx context.Context, orderID id.ID) error
	List(ctx context.Context, filter ListFilter) ([]*Order, error)
}

// PickingLists stores picking lists.
type PickingLists interface {
	CreatePickingList(ctx context.Context, p *PickingList) error
	GetPickingList(ctx context.Context, pickingListID id.ID) (*PickingList, error)
	UpdatePickingList(ctx context.Context, p *PickingList) error
}

// Ledger is the part of the stock ledger deliveries use.
type Ledger interface {
	Execute(ctx context.Context, ref stock.Reference, instructions ...stock.Instruction) ([]stock.Snapshot, error)
}

// Warehouses checks that warehouses exist and accept documents.
type Warehouses interface {
	RequireActive(ctx context.Context, warehouseID id.ID) (*warehouse.Warehouse, error)
}
