package catalog_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"docflow/internal/core/id"
	"docflow/internal/domain/catalogs/warehouse"
	"docflow/internal/infrastructure/storage/postgres"
)

const warehouseTable = "warehouses"

// WarehouseRepo implements warehouse.Repository.
type WarehouseRepo struct {
	*BaseCatalogRepo[warehouse.Warehouse]
}

var _ warehouse.Repository = (*WarehouseRepo)(nil)

// NewWarehouseRepo creates a new warehouse repository.
func NewWarehouseRepo(txm *postgres.TxManager) *WarehouseRepo {
	return &WarehouseRepo{
		BaseCatalogRepo: NewBaseCatalogRepo[warehouse.Warehouse](txm, warehouseTable, "warehouse"),
	}
}

// Create returns CONFLICT when the code is taken.
func (r *WarehouseRepo) Create(ctx context.Context, w *warehouse.Warehouse) error {
	return r.Insert(ctx, w)
}

func (r *WarehouseRepo) GetByID(ctx context.Context, warehouseID id.ID) (*warehouse.Warehouse, error) {
	return r.FindOne(ctx, r.Select().Where(squirrel.Eq{"id": warehouseID}), warehouseID.String())
}

func (r *WarehouseRepo) GetByCode(ctx context.Context, code string) (*warehouse.Warehouse, error) {
	return r.FindOne(ctx, r.Select().Where(squirrel.Eq{"code": code}), code)
}

func (r *WarehouseRepo) List(ctx context.Context, activeOnly bool) ([]*warehouse.Warehouse, error) {
	return r.FindAll(ctx, r.listQuery(activeOnly))
}

func (r *WarehouseRepo) listQuery(activeOnly bool) squirrel.SelectBuilder {
	q := r.Select().OrderBy("code")
	if activeOnly {
		q = q.Where(squirrel.Eq{"is_active": true})
	}
	return q
}

func (r *WarehouseRepo) SetActive(ctx context.Context, warehouseID id.ID, active bool) error {
	q := r.Builder().Update(warehouseTable).
		Set("is_active", active).
		Where(squirrel.Eq{"id": warehouseID})
	return r.Exec(ctx, q, warehouseID.String())
}
