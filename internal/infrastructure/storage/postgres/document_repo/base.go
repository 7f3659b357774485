// Package document_repo provides PostgreSQL implementations for document repositories.
package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/infrastructure/storage/postgres"
)

// BaseDocumentRepo stores a document header H and its item rows. Headers
// carry an optimistic "version" column; items are replaced wholesale on update.
type BaseDocumentRepo[H any] struct {
	txm        *postgres.TxManager
	batch      *postgres.BatchWriter
	tableName  string
	itemsTable string
	itemsFK    string
	entityName string
	selectCols []string
}

// NewBaseDocumentRepo creates a new base document repository.
func NewBaseDocumentRepo[H any](txm *postgres.TxManager, tableName, itemsTable, itemsFK, entityName string) *BaseDocumentRepo[H] {
	return &BaseDocumentRepo[H]{
		txm:        txm,
		batch:      postgres.NewBatchWriter(txm),
		tableName:  tableName,
		itemsTable: itemsTable,
		itemsFK:    itemsFK,
		entityName: entityName,
		selectCols: postgres.ExtractDBColumns[H](),
	}
}

// Builder returns a new squirrel builder.
func (r *BaseDocumentRepo[H]) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// insertHeader writes a header from its column map.
func (r *BaseDocumentRepo[H]) insertHeader(ctx context.Context, data map[string]any) error {
	sql, args, err := r.Builder().Insert(r.tableName).SetMap(data).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert %s: %w", r.tableName, postgres.TranslateError(err))
	}
	return nil
}

// updateHeader writes data where id and version match, so a stale copy is
// rejected with CONFLICT.
func (r *BaseDocumentRepo[H]) updateHeader(ctx context.Context, docID id.ID, version int, data map[string]any) error {
	delete(data, "id")
	delete(data, "version")

	sql, args, err := r.Builder().Update(r.tableName).
		SetMap(data).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": docID, "version": version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", r.tableName, postgres.TranslateError(err))
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConflict(r.entityName+" was modified concurrently").
			WithDetail("id", docID.String()).
			WithDetail("version", version)
	}
	return nil
}

// headerQuery selects the header columns, plus extra ones a row type needs.
func (r *BaseDocumentRepo[H]) headerQuery(extra ...string) squirrel.SelectBuilder {
	cols := append(append([]string(nil), r.selectCols...), extra...)
	return r.Builder().Select(cols...).From(r.tableName)
}

// getHeader scans one header row into dst.
func (r *BaseDocumentRepo[H]) getHeader(ctx context.Context, dst any, docID id.ID, forUpdate bool, extra ...string) error {
	q := r.headerQuery(extra...).Where(squirrel.Eq{"id": docID})
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), dst, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return apperror.NewNotFound(r.entityName, docID.String())
		}
		return fmt.Errorf("get %s: %w", r.tableName, postgres.TranslateError(err))
	}
	return nil
}

// selectRows runs q and scans every row into dst.
func (r *BaseDocumentRepo[H]) selectRows(ctx context.Context, dst any, q squirrel.SelectBuilder) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), dst, sql, args...); err != nil {
		return fmt.Errorf("select %s: %w", r.tableName, postgres.TranslateError(err))
	}
	return nil
}

// itemsQuery returns the items of the given documents in line order.
func (r *BaseDocumentRepo[H]) itemsQuery(columns []string, docIDs ...id.ID) squirrel.SelectBuilder {
	return r.Builder().Select(columns...).
		From(r.itemsTable).
		Where(squirrel.Eq{r.itemsFK: docIDs}).
		OrderBy(r.itemsFK, "line_no")
}

// insertItems writes item rows for a new document.
func (r *BaseDocumentRepo[H]) insertItems(ctx context.Context, columns []string, rows [][]any) error {
	_, err := r.batch.WriteRows(ctx, r.itemsTable, columns, rows)
	return err
}

// replaceItems deletes and re-inserts the items of one document in a
// single round trip.
func (r *BaseDocumentRepo[H]) replaceItems(ctx context.Context, docID id.ID, columns []string, rows [][]any) error {
	statements := []squirrel.Sqlizer{
		r.Builder().Delete(r.itemsTable).Where(squirrel.Eq{r.itemsFK: docID}),
	}
	if len(rows) > 0 {
		statements = append(statements, r.batch.InsertRows(r.itemsTable, columns, rows))
	}
	if err := r.batch.ExecAll(ctx, statements...); err != nil {
		return fmt.Errorf("replace %s: %w", r.itemsTable, err)
	}
	return nil
}

// Delete removes a document; items go with it by cascade.
func (r *BaseDocumentRepo[H]) Delete(ctx context.Context, docID id.ID) error {
	sql, args, err := r.Builder().Delete(r.tableName).Where(squirrel.Eq{"id": docID}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete %s: %w", r.tableName, postgres.TranslateError(err))
	}
	return nil
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
