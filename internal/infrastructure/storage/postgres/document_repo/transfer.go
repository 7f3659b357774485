package document_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"docflow/internal/core/id"
	"docflow/internal/domain/documents/transfer"
	"docflow/internal/infrastructure/storage/postgres"
)

const (
	transfersTable     = "warehouse_transfers"
	transferItemsTable = "warehouse_transfer_items"
)

var transferItemColumns = postgres.ExtractDBColumns[transfer.Item]()

// TransferRepo implements transfer.Repository.
type TransferRepo struct {
	*BaseDocumentRepo[transfer.Transfer]
}

var _ transfer.Repository = (*TransferRepo)(nil)

// NewTransferRepo creates a new transfer repository.
func NewTransferRepo(txm *postgres.TxManager) *TransferRepo {
	return &TransferRepo{
		BaseDocumentRepo: NewBaseDocumentRepo[transfer.Transfer](txm, transfersTable, transferItemsTable, "transfer_id", "warehouse transfer"),
	}
}

func (r *TransferRepo) Create(ctx context.Context, t *transfer.Transfer) error {
	if err := r.insertHeader(ctx, postgres.StructToMap(t)); err != nil {
		return err
	}
	return r.insertItems(ctx, transferItemColumns, transferItemRows(t))
}

// transferItemRows follows transferItemColumns.
func transferItemRows(t *transfer.Transfer) [][]any {
	rows := make([][]any, 0, len(t.Items))
	for _, it := range t.Items {
		rows = append(rows, []any{
			it.ID, t.ID, it.LineNo, it.ProductID,
			int64(it.QuantityRequested), int64(it.QuantityDelivered), int64(it.QuantityReceived),
		})
	}
	return rows
}

func (r *TransferRepo) GetByID(ctx context.Context, transferID id.ID) (*transfer.Transfer, error) {
	return r.get(ctx, transferID, false)
}

func (r *TransferRepo) GetForUpdate(ctx context.Context, transferID id.ID) (*transfer.Transfer, error) {
	return r.get(ctx, transferID, true)
}

func (r *TransferRepo) get(ctx context.Context, transferID id.ID, forUpdate bool) (*transfer.Transfer, error) {
	t := new(transfer.Transfer)
	if err := r.getHeader(ctx, t, transferID, forUpdate); err != nil {
		return nil, err
	}
	if err := r.selectRows(ctx, &t.Items, r.itemsQuery(transferItemColumns, transferID)); err != nil {
		return nil, err
	}
	return t, nil
}

// Update bumps t.Version on success.
func (r *TransferRepo) Update(ctx context.Context, t *transfer.Transfer) error {
	if err := r.updateHeader(ctx, t.ID, t.Version, postgres.StructToMap(t)); err != nil {
		return err
	}
	if err := r.replaceItems(ctx, t.ID, transferItemColumns, transferItemRows(t)); err != nil {
		return err
	}
	t.Version++
	return nil
}

func (r *TransferRepo) List(ctx context.Context, filter transfer.ListFilter) ([]*transfer.Transfer, error) {
	var out []*transfer.Transfer
	if err := r.selectRows(ctx, &out, r.listQuery(filter)); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]id.ID, len(out))
	byID := make(map[id.ID]*transfer.Transfer, len(out))
	for i, t := range out {
		ids[i] = t.ID
		byID[t.ID] = t
	}
	var items []transfer.Item
	if err := r.selectRows(ctx, &items, r.itemsQuery(transferItemColumns, ids...)); err != nil {
		return nil, err
	}
	for _, it := range items {
		if t := byID[it.TransferID]; t != nil {
			t.Items = append(t.Items, it)
		}
	}
	return out, nil
}

func (r *TransferRepo) listQuery(filter transfer.ListFilter) squirrel.SelectBuilder {
	q := r.headerQuery().OrderBy("created_at DESC", "id DESC")
	if filter.WarehouseID != nil {
		q = q.Where(squirrel.Or{
			squirrel.Eq{"source_warehouse_id": *filter.WarehouseID},
			squirrel.Eq{"destination_warehouse_id": *filter.WarehouseID},
		})
	}
	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": string(*filter.Status)})
	}
	return paginate(q, filter.Limit, filter.Offset)
}
