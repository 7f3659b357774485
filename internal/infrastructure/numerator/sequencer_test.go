package numerator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docflow/internal/core/apperror"
	corenumerator "docflow/internal/core/numerator"
)

// fakeQuerier emulates sequence_counters for the statements the sequencer sends.
type fakeQuerier struct {
	mu       sync.Mutex
	counters map[string]int64
	err      error
	lastSQL  string
	lastArgs []any
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{counters: make(map[string]int64)}
}

type fakeRow struct {
	v   int64
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int64)) = r.v
	return nil
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastSQL, q.lastArgs = sql, args
	if q.err != nil {
		return fakeRow{err: q.err}
	}
	k := args[0].(string) + "/" + args[1].(string) + "/" + args[2].(string)
	if sql == incrementSQL {
		q.counters[k]++
	}
	return fakeRow{v: q.counters[k]}
}

func key(wh string) corenumerator.Key {
	return corenumerator.Key{DocumentType: "DELIVERY_ORDER", WarehouseKey: wh, YearMonth: "2025-11"}
}

func TestSequencer_IncrementPerKey(t *testing.T) {
	ctx := context.Background()
	q := newFakeQuerier()
	s := NewStatic(q)

	for want := int64(1); want <= 3; want++ {
		got, err := s.Increment(ctx, key("JKT"), "DO")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	got, err := s.Increment(ctx, key("SBY"), "DO")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)

	assert.Equal(t, []any{"DELIVERY_ORDER", "SBY", "2025-11", "DO"}, q.lastArgs)

	got, err = s.Increment(ctx, key("JKT"), "DO")
	require.NoError(t, err)
	assert.Equal(t, int64(4), got, "other warehouses do not touch the JKT counter")
}

func TestSequencer_LockTimeoutIsContention(t *testing.T) {
	q := newFakeQuerier()
	q.err = &pgconn.PgError{Code: "55P03", Message: "lock not available"}
	s := NewStatic(q)

	_, err := s.Increment(context.Background(), key("JKT"), "DO")
	require.Error(t, err)
	assert.True(t, apperror.IsRetryable(err))
}

func TestSequencer_PlainErrorsPassThrough(t *testing.T) {
	q := newFakeQuerier()
	q.err = errors.New("connection reset")
	s := NewStatic(q)

	_, err := s.Increment(context.Background(), key("JKT"), "DO")
	require.Error(t, err)
	assert.False(t, apperror.IsAppError(err))
	assert.Contains(t, err.Error(), "DELIVERY_ORDER/JKT/2025-11")
}

func TestSequencer_WorksWithAllocator(t *testing.T) {
	s := NewStatic(newFakeQuerier())
	alloc := corenumerator.NewAllocator(s, nil)

	n, err := alloc.NextNumber(context.Background(), corenumerator.Quotation, nil)
	require.NoError(t, err)
	assert.Regexp(t, `^PQ-001/GEN/\d{2}-\d{4}$`, n)
}
