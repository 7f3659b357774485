package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

// BatchWriter writes many rows or statements in one round trip.
type BatchWriter struct {
	txManager *TxManager
	builder   squirrel.StatementBuilderType
}

// NewBatchWriter creates a writer bound to txManager.
func NewBatchWriter(txManager *TxManager) *BatchWriter {
	return &BatchWriter{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WriteRows appends rows to table. Inside a transaction it streams them with
// COPY; outside one it sends a single multi-row INSERT, which is atomic on
// its own.
func (b *BatchWriter) WriteRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if tx := b.txManager.GetTx(ctx); tx != nil {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
		if err != nil {
			return 0, fmt.Errorf("copy into %s: %w", table, TranslateError(err))
		}
		return n, nil
	}

	sql, args, err := b.InsertRows(table, columns, rows).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert into %s: %w", table, err)
	}
	tag, err := b.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, TranslateError(err))
	}
	return tag.RowsAffected(), nil
}

// InsertRows builds one multi-row INSERT.
func (b *BatchWriter) InsertRows(table string, columns []string, rows [][]any) squirrel.InsertBuilder {
	q := b.builder.Insert(table).Columns(columns...)
	for _, row := range rows {
		q = q.Values(row...)
	}
	return q
}

// ExecAll sends statements as one pgx batch inside the transaction carried
// by ctx and stops at the first failure.
func (b *BatchWriter) ExecAll(ctx context.Context, statements ...squirrel.Sqlizer) error {
	tx := b.txManager.GetTx(ctx)
	if tx == nil {
		return fmt.Errorf("batch requires transaction context")
	}
	if len(statements) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, s := range statements {
		sql, args, err := s.ToSql()
		if err != nil {
			return fmt.Errorf("build statement %d: %w", i, err)
		}
		batch.Queue(sql, args...)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()
	for i := range statements {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("statement %d: %w", i, TranslateError(err))
		}
	}
	return nil
}
