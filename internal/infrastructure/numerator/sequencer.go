// Package numerator stores document counters in PostgreSQL. It implements
// core/numerator.Sequencer.
package numerator

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	corenumerator "docflow/internal/core/numerator"
	"docflow/internal/infrastructure/storage/postgres"
)

// Querier is the part of pgx the sequencer needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const incrementSQL = `
INSERT INTO sequence_counters (document_type, warehouse_key, year_month, prefix, current_val)
VALUES ($1, $2, $3, $4, 1)
ON CONFLICT (document_type, warehouse_key, year_month)
DO UPDATE SET current_val = sequence_counters.current_val + 1, updated_at = now()
RETURNING current_val`

// Sequencer increments counters with a single UPSERT. The row lock taken by
// the update serializes concurrent allocations for one key and is held
// until the caller's transaction ends, so a rolled back document gives its
// number back.
type Sequencer struct {
	querier func(ctx context.Context) Querier
}

var _ corenumerator.Sequencer = (*Sequencer)(nil)

// NewSequencer joins the transaction carried by ctx, or runs on the pool.
func NewSequencer(txm *postgres.TxManager) *Sequencer {
	return &Sequencer{querier: func(ctx context.Context) Querier { return txm.GetQuerier(ctx) }}
}

// NewStatic uses one querier for every call.
func NewStatic(q Querier) *Sequencer {
	return &Sequencer{querier: func(context.Context) Querier { return q }}
}

// Increment returns the new counter value; the first call for a key returns 1.
func (s *Sequencer) Increment(ctx context.Context, key corenumerator.Key, prefix string) (int64, error) {
	var v int64
	err := s.querier(ctx).QueryRow(ctx, incrementSQL,
		string(key.DocumentType), key.WarehouseKey, key.YearMonth, prefix).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("increment sequence %s: %w", key, postgres.TranslateError(err))
	}
	return v, nil
}
