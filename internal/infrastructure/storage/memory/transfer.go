package memory

import (
	"context"
	"sort"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/domain/documents/transfer"
)

// TransferRepo implements transfer.Repository.
type TransferRepo struct{ s *Store }

var _ transfer.Repository = TransferRepo{}

// Transfers returns the transfer repository.
func (s *Store) Transfers() TransferRepo { return TransferRepo{s} }

func (r TransferRepo) Create(ctx context.Context, t *transfer.Transfer) error {
	return r.s.do(ctx, func(st *state) error {
		for _, other := range st.transfers {
			if other.Number == t.Number {
				return apperror.NewConflict("transfer number already exists").WithDetail("number", t.Number)
			}
		}
		st.transfers[t.ID] = t.Clone()
		return nil
	})
}

func (r TransferRepo) GetByID(ctx context.Context, transferID id.ID) (*transfer.Transfer, error) {
	var out *transfer.Transfer
	err := r.s.do(ctx, func(st *state) error {
		t, ok := st.transfers[transferID]
		if !ok {
			return apperror.NewNotFound("warehouse transfer", transferID.String())
		}
		out = t.Clone()
		return nil
	})
	return out, err
}

func (r TransferRepo) GetForUpdate(ctx context.Context, transferID id.ID) (*transfer.Transfer, error) {
	return r.GetByID(ctx, transferID)
}

func (r TransferRepo) Update(ctx context.Context, t *transfer.Transfer) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.transfers[t.ID]; !ok {
			return apperror.NewNotFound("warehouse transfer", t.ID.String())
		}
		t.Version++
		st.transfers[t.ID] = t.Clone()
		return nil
	})
}

func (r TransferRepo) Delete(ctx context.Context, transferID id.ID) error {
	return r.s.do(ctx, func(st *state) error {
		delete(st.transfers, transferID)
		return nil
	})
}

func (r TransferRepo) List(ctx context.Context, filter transfer.ListFilter) ([]*transfer.Transfer, error) {
	var out []*transfer.Transfer
	err := r.s.do(ctx, func(st *state) error {
		for _, t := range st.transfers {
			if filter.Status != nil && t.Status != *filter.Status {
				continue
			}
			if filter.WarehouseID != nil && t.SourceWarehouseID != *filter.WarehouseID && t.DestinationWarehouseID != *filter.WarehouseID {
				continue
			}
			out = append(out, t.Clone())
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, filter.Limit, filter.Offset), err
}
