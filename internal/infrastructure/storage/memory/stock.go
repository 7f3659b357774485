package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/domain/registers/stock"
)

// StockRepo implements stock.Repository.
type StockRepo struct{ s *Store }

var _ stock.Repository = StockRepo{}

// Stock returns the stock repository.
func (s *Store) Stock() StockRepo { return StockRepo{s} }

func (r StockRepo) Lock(ctx context.Context, key stock.Key) (stock.Record, error) {
	var rec stock.Record
	err := r.s.do(ctx, func(st *state) error {
		var ok bool
		if rec, ok = st.stock[key]; !ok {
			rec = stock.Record{ProductID: key.ProductID, WarehouseID: key.WarehouseID}
			st.stock[key] = rec
		}
		return nil
	})
	return rec, err
}

func (r StockRepo) Save(ctx context.Context, rec stock.Record) error {
	return r.s.do(ctx, func(st *state) error {
		if !rec.Valid() {
			return apperror.NewInternal(fmt.Errorf("product_stock check violated for %s/%s", rec.ProductID, rec.WarehouseID))
		}
		rec.Version++
		st.stock[rec.Key()] = rec
		return nil
	})
}

func (r StockRepo) AppendMovements(ctx context.Context, movements []stock.Movement) error {
	return r.s.do(ctx, func(st *state) error {
		st.movements = append(st.movements, movements...)
		return nil
	})
}

func (r StockRepo) Get(ctx context.Context, key stock.Key) (stock.Record, error) {
	var rec stock.Record
	err := r.s.do(ctx, func(st *state) error {
		var ok bool
		if rec, ok = st.stock[key]; !ok {
			return apperror.NewNotFound("stock record", key.ProductID.String()+"/"+key.WarehouseID.String())
		}
		return nil
	})
	return rec, err
}

// GetShared is Get: units of work are already serialized.
func (r StockRepo) GetShared(ctx context.Context, key stock.Key) (stock.Record, error) {
	return r.Get(ctx, key)
}

func (r StockRepo) ListByWarehouse(ctx context.Context, warehouseID id.ID, filter stock.BalanceFilter) ([]stock.Record, error) {
	var out []stock.Record
	err := r.s.do(ctx, func(st *state) error {
		for k, rec := range st.stock {
			if k.WarehouseID != warehouseID {
				continue
			}
			if filter.ExcludeZero && rec.Quantity == 0 && rec.Reserved == 0 && rec.Damaged == 0 {
				continue
			}
			if len(filter.ProductIDs) > 0 && !slices.Contains(filter.ProductIDs, k.ProductID) {
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return id.Compare(out[i].ProductID, out[j].ProductID) < 0 })
	return page(out, filter.Limit, filter.Offset), err
}

func (r StockRepo) ListMovements(ctx context.Context, filter stock.MovementFilter) ([]stock.Movement, error) {
	var out []stock.Movement
	err := r.s.do(ctx, func(st *state) error {
		for _, m := range st.movements {
			if filter.ProductID != nil && m.ProductID != *filter.ProductID {
				continue
			}
			if filter.WarehouseID != nil && m.WarehouseID != *filter.WarehouseID {
				continue
			}
			if filter.Type != nil && m.Type != *filter.Type {
				continue
			}
			if filter.ReferenceID != nil && (m.ReferenceID == nil || *m.ReferenceID != *filter.ReferenceID) {
				continue
			}
			if filter.From != nil && m.CreatedAt.Before(*filter.From) {
				continue
			}
			if filter.To != nil && !m.CreatedAt.Before(*filter.To) {
				continue
			}
			out = append(out, m)
		}
		return nil
	})
	return page(out, filter.Limit, filter.Offset), err
}
