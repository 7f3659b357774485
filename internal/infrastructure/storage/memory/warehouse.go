package memory

import (
	"context"
	"sort"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/domain/catalogs/warehouse"
)

// WarehouseRepo implements warehouse.Repository.
type WarehouseRepo struct{ s *Store }

var _ warehouse.Repository = WarehouseRepo{}

// Warehouses returns the warehouse repository.
func (s *Store) Warehouses() WarehouseRepo { return WarehouseRepo{s} }

func (r WarehouseRepo) Create(ctx context.Context, w *warehouse.Warehouse) error {
	return r.s.do(ctx, func(st *state) error {
		for _, other := range st.warehouses {
			if other.Code == w.Code {
				return apperror.NewConflict("warehouse code already exists").WithDetail("code", w.Code)
			}
		}
		st.warehouses[w.ID] = *w
		return nil
	})
}

func (r WarehouseRepo) GetByID(ctx context.Context, warehouseID id.ID) (*warehouse.Warehouse, error) {
	var out *warehouse.Warehouse
	err := r.s.do(ctx, func(st *state) error {
		w, ok := st.warehouses[warehouseID]
		if !ok {
			return apperror.NewNotFound("warehouse", warehouseID.String())
		}
		out = &w
		return nil
	})
	return out, err
}

func (r WarehouseRepo) GetByCode(ctx context.Context, code string) (*warehouse.Warehouse, error) {
	var out *warehouse.Warehouse
	err := r.s.do(ctx, func(st *state) error {
		for _, w := range st.warehouses {
			if w.Code == code {
				out = &w
				return nil
			}
		}
		return apperror.NewNotFound("warehouse", code)
	})
	return out, err
}

func (r WarehouseRepo) List(ctx context.Context, activeOnly bool) ([]*warehouse.Warehouse, error) {
	var out []*warehouse.Warehouse
	err := r.s.do(ctx, func(st *state) error {
		for _, w := range st.warehouses {
			if activeOnly && !w.IsActive {
				continue
			}
			out = append(out, &w)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, err
}

func (r WarehouseRepo) SetActive(ctx context.Context, warehouseID id.ID, active bool) error {
	return r.s.do(ctx, func(st *state) error {
		w, ok := st.warehouses[warehouseID]
		if !ok {
			return apperror.NewNotFound("warehouse", warehouseID.String())
		}
		w.IsActive = active
		st.warehouses[warehouseID] = w
		return nil
	})
}
