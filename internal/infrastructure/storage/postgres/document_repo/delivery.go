package document_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/domain/documents/delivery"
	"docflow/internal/infrastructure/storage/postgres"
)

const (
	deliveryOrdersTable = "delivery_orders"
	deliveryItemsTable  = "delivery_order_items"
	pickingListsTable   = "picking_lists"
)

var (
	deliveryItemColumns = postgres.ExtractDBColumns[delivery.Item]()
	shippingColumns     = postgres.ExtractDBColumns[delivery.Shipping]()
	pickingListColumns  = postgres.ExtractDBColumns[delivery.PickingList]()
)

// orderRow flattens Order.Shipping, which the domain type keeps nested.
type orderRow struct {
	delivery.Order
	ShippingMethod string `db:"shipping_method"`
	Carrier        string `db:"carrier"`
	TrackingNumber string `db:"tracking_number"`
}

func (row *orderRow) order() *delivery.Order {
	o := row.Order
	o.Shipping = delivery.Shipping{
		Method:         row.ShippingMethod,
		Carrier:        row.Carrier,
		TrackingNumber: row.TrackingNumber,
	}
	return &o
}

// DeliveryRepo implements delivery.Repository and delivery.PickingLists.
type DeliveryRepo struct {
	*BaseDocumentRepo[delivery.Order]
}

var (
	_ delivery.Repository   = (*DeliveryRepo)(nil)
	_ delivery.PickingLists = (*DeliveryRepo)(nil)
)

// NewDeliveryRepo creates a new delivery order repository.
func NewDeliveryRepo(txm *postgres.TxManager) *DeliveryRepo {
	return &DeliveryRepo{
		BaseDocumentRepo: NewBaseDocumentRepo[delivery.Order](txm, deliveryOrdersTable, deliveryItemsTable, "delivery_order_id", "delivery order"),
	}
}

// orderMap is the header column map including shipping details.
func orderMap(o *delivery.Order) map[string]any {
	data := postgres.StructToMap(o)
	for k, v := range postgres.StructToMap(o.Shipping) {
		data[k] = v
	}
	return data
}

// deliveryItemRows follows deliveryItemColumns.
func deliveryItemRows(o *delivery.Order) [][]any {
	rows := make([][]any, 0, len(o.Items))
	for _, it := range o.Items {
		rows = append(rows, []any{
			it.ID, o.ID, it.LineNo, it.ProductID,
			int64(it.Quantity), int64(it.QuantityShipped), int64(it.QuantityDelivered), string(it.Status),
		})
	}
	return rows
}

func (r *DeliveryRepo) Create(ctx context.Context, o *delivery.Order) error {
	if err := r.insertHeader(ctx, orderMap(o)); err != nil {
		return err
	}
	return r.insertItems(ctx, deliveryItemColumns, deliveryItemRows(o))
}

func (r *DeliveryRepo) GetByID(ctx context.Context, orderID id.ID) (*delivery.Order, error) {
	return r.get(ctx, orderID, false)
}

func (r *DeliveryRepo) GetForUpdate(ctx context.Context, orderID id.ID) (*delivery.Order, error) {
	return r.get(ctx, orderID, true)
}

func (r *DeliveryRepo) get(ctx context.Context, orderID id.ID, forUpdate bool) (*delivery.Order, error) {
	var row orderRow
	if err := r.getHeader(ctx, &row, orderID, forUpdate, shippingColumns...); err != nil {
		return nil, err
	}
	o := row.order()
	if err := r.selectRows(ctx, &o.Items, r.itemsQuery(deliveryItemColumns, orderID)); err != nil {
		return nil, err
	}
	return o, nil
}

// Update bumps o.Version on success.
func (r *DeliveryRepo) Update(ctx context.Context, o *delivery.Order) error {
	if err := r.updateHeader(ctx, o.ID, o.Version, orderMap(o)); err != nil {
		return err
	}
	if err := r.replaceItems(ctx, o.ID, deliveryItemColumns, deliveryItemRows(o)); err != nil {
		return err
	}
	o.Version++
	return nil
}

func (r *DeliveryRepo) List(ctx context.Context, filter delivery.ListFilter) ([]*delivery.Order, error) {
	var rows []*orderRow
	if err := r.selectRows(ctx, &rows, r.listQuery(filter)); err != nil {
		return nil, err
	}
	out := make([]*delivery.Order, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	ids := make([]id.ID, len(rows))
	byID := make(map[id.ID]*delivery.Order, len(rows))
	for i, row := range rows {
		o := row.order()
		out = append(out, o)
		ids[i] = o.ID
		byID[o.ID] = o
	}
	var items []delivery.Item
	if err := r.selectRows(ctx, &items, r.itemsQuery(deliveryItemColumns, ids...)); err != nil {
		return nil, err
	}
	for _, it := range items {
		if o := byID[it.OrderID]; o != nil {
			o.Items = append(o.Items, it)
		}
	}
	return out, nil
}

func (r *DeliveryRepo) listQuery(filter delivery.ListFilter) squirrel.SelectBuilder {
	q := r.headerQuery(shippingColumns...).OrderBy("created_at DESC", "id DESC")
	if filter.WarehouseID != nil {
		q = q.Where(squirrel.Eq{"warehouse_id": *filter.WarehouseID})
	}
	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": string(*filter.Status)})
	}
	return paginate(q, filter.Limit, filter.Offset)
}

func (r *DeliveryRepo) CreatePickingList(ctx context.Context, p *delivery.PickingList) error {
	sql, args, err := r.Builder().Insert(pickingListsTable).SetMap(postgres.StructToMap(p)).ToSql()
	if err != nil {
		return err
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.TranslateError(err)
	}
	return nil
}

func (r *DeliveryRepo) GetPickingList(ctx context.Context, pickingListID id.ID) (*delivery.PickingList, error) {
	var out []*delivery.PickingList
	q := r.Builder().Select(pickingListColumns...).From(pickingListsTable).Where(squirrel.Eq{"id": pickingListID})
	if err := r.selectRows(ctx, &out, q); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, notFoundPickingList(pickingListID)
	}
	return out[0], nil
}

func (r *DeliveryRepo) UpdatePickingList(ctx context.Context, p *delivery.PickingList) error {
	sql, args, err := r.Builder().Update(pickingListsTable).
		Set("status", string(p.Status)).
		Set("completed_at", p.CompletedAt).
		Where(squirrel.Eq{"id": p.ID}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.TranslateError(err)
	}
	if tag.RowsAffected() == 0 {
		return notFoundPickingList(p.ID)
	}
	return nil
}

func notFoundPickingList(pickingListID id.ID) error {
	return apperror.NewNotFound("picking list", pickingListID.String())
}
