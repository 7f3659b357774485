// Package register_repo provides the PostgreSQL stock ledger repository.
package register_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/domain/registers/stock"
	"docflow/internal/infrastructure/storage/postgres"
)

const (
	stockTable     = "product_stock"
	movementsTable = "stock_movements"
)

var (
	stockColumns = []string{
		"product_id", "warehouse_id", "quantity", "reserved_quantity",
		"damaged_quantity", "bin_location", "version", "updated_at",
	}
	movementColumns = postgres.ExtractDBColumns[stock.Movement]()
)

// StockRepo implements stock.Repository.
type StockRepo struct {
	txm      *postgres.TxManager
	writer   *postgres.BatchWriter
	builder  squirrel.StatementBuilderType
}

var _ stock.Repository = (*StockRepo)(nil)

// NewStockRepo creates a new stock register repository.
func NewStockRepo(txm *postgres.TxManager) *StockRepo {
	return &StockRepo{
		txm:      txm,
		writer:   postgres.NewBatchWriter(txm),
		builder:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Lock creates the zero row if missing, then takes a row lock on it.
// The insert never blocks on an existing row, so lock order is decided
// by the SELECT alone.
func (r *StockRepo) Lock(ctx context.Context, key stock.Key) (stock.Record, error) {
	if r.txm.GetTx(ctx) == nil {
		return stock.Record{}, fmt.Errorf("stock lock requires transaction context")
	}
	q := r.txm.GetQuerier(ctx)

	insert, args, err := r.builder.Insert(stockTable).
		Columns("product_id", "warehouse_id").
		Values(key.ProductID, key.WarehouseID).
		Suffix("ON CONFLICT (product_id, warehouse_id) DO NOTHING").
		ToSql()
	if err != nil {
		return stock.Record{}, fmt.Errorf("build insert: %w", err)
	}
	if _, err := q.Exec(ctx, insert, args...); err != nil {
		return stock.Record{}, fmt.Errorf("ensure stock row: %w", postgres.TranslateError(err))
	}

	sql, args, err := r.selectKey(key).Suffix("FOR UPDATE").ToSql()
	if err != nil {
		return stock.Record{}, fmt.Errorf("build select: %w", err)
	}
	var rec stock.Record
	if err := pgxscan.Get(ctx, q, &rec, sql, args...); err != nil {
		return stock.Record{}, fmt.Errorf("lock stock row: %w", postgres.TranslateError(err))
	}
	return rec, nil
}

func (r *StockRepo) Save(ctx context.Context, rec stock.Record) error {
	if !rec.Valid() {
		return apperror.NewInternal(fmt.Errorf("product_stock check violated for %s/%s", rec.ProductID, rec.WarehouseID))
	}

	sql, args, err := r.builder.Update(stockTable).
		Set("quantity", int64(rec.Quantity)).
		Set("reserved_quantity", int64(rec.Reserved)).
		Set("damaged_quantity", int64(rec.Damaged)).
		Set("bin_location", rec.BinLocation).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"product_id": rec.ProductID, "warehouse_id": rec.WarehouseID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update stock: %w", postgres.TranslateError(err))
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("stock record", rec.ProductID.String()+"/"+rec.WarehouseID.String())
	}
	return nil
}

// AppendMovements uses COPY inside a transaction and a multi-row INSERT otherwise.
func (r *StockRepo) AppendMovements(ctx context.Context, movements []stock.Movement) error {
	rows := make([][]any, 0, len(movements))
	for _, m := range movements {
		rows = append(rows, movementValues(m))
	}
	if _, err := r.writer.WriteRows(ctx, movementsTable, movementColumns, rows); err != nil {
		return fmt.Errorf("append movements: %w", err)
	}
	return nil
}

// movementValues follows movementColumns.
func movementValues(m stock.Movement) []any {
	return []any{
		m.ID, m.ProductID, m.WarehouseID, string(m.Type),
		int64(m.QuantityChange), int64(m.PreviousQuantity), int64(m.NewQuantity),
		m.Reason, m.ActorID, m.ReferenceType, m.ReferenceID, m.ReferenceNumber, m.CreatedAt,
	}
}

func (r *StockRepo) Get(ctx context.Context, key stock.Key) (stock.Record, error) {
	return r.get(ctx, r.selectKey(key), key)
}

// GetShared takes FOR SHARE, which blocks Lock's FOR UPDATE until the
// transaction ends but never inserts.
func (r *StockRepo) GetShared(ctx context.Context, key stock.Key) (stock.Record, error) {
	if r.txm.GetTx(ctx) == nil {
		return stock.Record{}, fmt.Errorf("shared stock read requires transaction context")
	}
	return r.get(ctx, r.selectKey(key).Suffix("FOR SHARE"), key)
}

func (r *StockRepo) get(ctx context.Context, q squirrel.SelectBuilder, key stock.Key) (stock.Record, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return stock.Record{}, fmt.Errorf("build select: %w", err)
	}
	var rec stock.Record
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &rec, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return stock.Record{}, apperror.NewNotFound("stock record", key.ProductID.String()+"/"+key.WarehouseID.String())
		}
		return stock.Record{}, fmt.Errorf("get stock: %w", postgres.TranslateError(err))
	}
	return rec, nil
}

func (r *StockRepo) selectKey(key stock.Key) squirrel.SelectBuilder {
	return r.builder.Select(stockColumns...).
		From(stockTable).
		Where(squirrel.Eq{"product_id": key.ProductID, "warehouse_id": key.WarehouseID})
}

func (r *StockRepo) ListByWarehouse(ctx context.Context, warehouseID id.ID, filter stock.BalanceFilter) ([]stock.Record, error) {
	sql, args, err := r.balancesQuery(warehouseID, filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var out []stock.Record
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list stock: %w", postgres.TranslateError(err))
	}
	return out, nil
}

func (r *StockRepo) balancesQuery(warehouseID id.ID, filter stock.BalanceFilter) squirrel.SelectBuilder {
	q := r.builder.Select(stockColumns...).
		From(stockTable).
		Where(squirrel.Eq{"warehouse_id": warehouseID}).
		OrderBy("product_id")
	if len(filter.ProductIDs) > 0 {
		q = q.Where(squirrel.Eq{"product_id": filter.ProductIDs})
	}
	if filter.ExcludeZero {
		q = q.Where("(quantity <> 0 OR reserved_quantity <> 0 OR damaged_quantity <> 0)")
	}
	return paginate(q, filter.Limit, filter.Offset)
}

func (r *StockRepo) ListMovements(ctx context.Context, filter stock.MovementFilter) ([]stock.Movement, error) {
	sql, args, err := r.movementsQuery(filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var out []stock.Movement
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list movements: %w", postgres.TranslateError(err))
	}
	return out, nil
}

// movementsQuery orders by created_at then id; v7 IDs keep insertion order
// within one timestamp.
func (r *StockRepo) movementsQuery(filter stock.MovementFilter) squirrel.SelectBuilder {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		OrderBy("created_at", "id")
	if filter.ProductID != nil {
		q = q.Where(squirrel.Eq{"product_id": *filter.ProductID})
	}
	if filter.WarehouseID != nil {
		q = q.Where(squirrel.Eq{"warehouse_id": *filter.WarehouseID})
	}
	if filter.Type != nil {
		q = q.Where(squirrel.Eq{"movement_type": string(*filter.Type)})
	}
	if filter.ReferenceID != nil {
		q = q.Where(squirrel.Eq{"reference_id": *filter.ReferenceID})
	}
	if filter.From != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.From})
	}
	if filter.To != nil {
		q = q.Where(squirrel.Lt{"created_at": *filter.To})
	}
	return paginate(q, filter.Limit, filter.Offset)
}

func paginate(q squirrel.SelectBuilder, limit, offset int) squirrel.SelectBuilder {
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	if offset > 0 {
		q = q.Offset(uint64(offset))
	}
	return q
}
