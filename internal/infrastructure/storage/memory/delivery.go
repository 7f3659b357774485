package memory

import (
	"context"
	"sort"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/domain/documents/delivery"
)

// DeliveryRepo implements delivery.Repository and delivery.PickingLists.
type DeliveryRepo struct{ s *Store }

var (
	_ delivery.Repository   = DeliveryRepo{}
	_ delivery.PickingLists = DeliveryRepo{}
)

// Deliveries returns the delivery order repository.
func (s *Store) Deliveries() DeliveryRepo { return DeliveryRepo{s} }

func (r DeliveryRepo) Create(ctx context.Context, o *delivery.Order) error {
	return r.s.do(ctx, func(st *state) error {
		for _, other := range st.deliveries {
			if other.Number == o.Number {
				return apperror.NewConflict("delivery order number already exists").WithDetail("number", o.Number)
			}
		}
		st.deliveries[o.ID] = o.Clone()
		return nil
	})
}

func (r DeliveryRepo) GetByID(ctx context.Context, orderID id.ID) (*delivery.Order, error) {
	var out *delivery.Order
	err := r.s.do(ctx, func(st *state) error {
		o, ok := st.deliveries[orderID]
		if !ok {
			return apperror.NewNotFound("delivery order", orderID.String())
		}
		out = o.Clone()
		return nil
	})
	return out, err
}

func (r DeliveryRepo) GetForUpdate(ctx context.Context, orderID id.ID) (*delivery.Order, error) {
	return r.GetByID(ctx, orderID)
}

func (r DeliveryRepo) Update(ctx context.Context, o *delivery.Order) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.deliveries[o.ID]; !ok {
			return apperror.NewNotFound("delivery order", o.ID.String())
		}
		o.Version++
		st.deliveries[o.ID] = o.Clone()
		return nil
	})
}

func (r DeliveryRepo) Delete(ctx context.Context, orderID id.ID) error {
	return r.s.do(ctx, func(st *state) error {
		delete(st.deliveries, orderID)
		return nil
	})
}

func (r DeliveryRepo) List(ctx context.Context, filter delivery.ListFilter) ([]*delivery.Order, error) {
	var out []*delivery.Order
	err := r.s.do(ctx, func(st *state) error {
		for _, o := range st.deliveries {
			if filter.Status != nil && o.Status != *filter.Status {
				continue
			}
			if filter.WarehouseID != nil && o.WarehouseID != *filter.WarehouseID {
				continue
			}
			out = append(out, o.Clone())
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, filter.Limit, filter.Offset), err
}

func (r DeliveryRepo) CreatePickingList(ctx context.Context, p *delivery.PickingList) error {
	return r.s.do(ctx, func(st *state) error {
		st.pickingLists[p.ID] = *p
		return nil
	})
}

func (r DeliveryRepo) GetPickingList(ctx context.Context, pickingListID id.ID) (*delivery.PickingList, error) {
	var out *delivery.PickingList
	err := r.s.do(ctx, func(st *state) error {
		p, ok := st.pickingLists[pickingListID]
		if !ok {
			return apperror.NewNotFound("picking list", pickingListID.String())
		}
		out = &p
		return nil
	})
	return out, err
}

func (r DeliveryRepo) UpdatePickingList(ctx context.Context, p *delivery.PickingList) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.pickingLists[p.ID]; !ok {
			return apperror.NewNotFound("picking list", p.ID.String())
		}
		st.pickingLists[p.ID] = *p
		return nil
	})
}
