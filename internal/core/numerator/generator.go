package numerator

import (
	"context"
	"fmt"
	"time"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
)

// Generator hands out document numbers. Domain services depend on this contract.
type Generator interface {
	// NextNumber allocates the next number for docType in the warehouse's
	// namespace; a nil warehouse allocates from the GEN namespace.
	NextNumber(ctx context.Context, docType DocumentType, warehouseID *id.ID) (string, error)
}

// Sequencer increments a counter atomically at the storage layer and returns
// the new value. The first call for a key returns 1. Implementations must
// join the transaction carried by ctx so a rolled back document releases
// its number.
type Sequencer interface {
	Increment(ctx context.Context, key Key, prefix string) (int64, error)
}

// WarehouseCodes resolves the code printed in numbers for a warehouse.
type WarehouseCodes interface {
	CodeOf(ctx context.Context, warehouseID id.ID) (string, error)
}

// Allocator is the Generator used in production.
type Allocator struct {
	seq        Sequencer
	warehouses WarehouseCodes
	prefixes   Prefixes
	policy     OverflowPolicy
	now        func() time.Time
}

var _ Generator = (*Allocator)(nil)

// Option configures an Allocator.
type Option func(*Allocator)

// WithPrefixes replaces the default prefix table.
func WithPrefixes(p Prefixes) Option {
	return func(a *Allocator) { a.prefixes = p }
}

// WithOverflowPolicy sets the behaviour past 999.
func WithOverflowPolicy(p OverflowPolicy) Option {
	return func(a *Allocator) { a.policy = p }
}

// WithClock injects the source of the current month.
func WithClock(now func() time.Time) Option {
	return func(a *Allocator) { a.now = now }
}

// NewAllocator creates an Allocator.
func NewAllocator(seq Sequencer, warehouses WarehouseCodes, opts ...Option) *Allocator {
	a := &Allocator{
		seq:        seq,
		warehouses: warehouses,
		prefixes:   DefaultPrefixes(),
		policy:     OverflowWiden,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NextNumber implements Generator.
func (a *Allocator) NextNumber(ctx context.Context, docType DocumentType, warehouseID *id.ID) (string, error) {
	prefix, ok := a.prefixes[docType]
	if !ok {
		return "", apperror.NewUnknownDocumentType(string(docType))
	}

	code := GeneralWarehouseCode
	if warehouseID != nil {
		c, err := a.warehouses.CodeOf(ctx, *warehouseID)
		if err != nil {
			return "", err
		}
		if !ValidWarehouseCode(c) {
			return "", apperror.NewConfiguration(fmt.Sprintf("warehouse code %q is not 3-4 uppercase letters", c)).
				WithDetail("warehouse_id", warehouseID.String())
		}
		code = c
	}

	period := a.now()
	key := Key{DocumentType: docType, WarehouseKey: code, YearMonth: YearMonth(period)}

	seq, err := a.seq.Increment(ctx, key, prefix)
	if err != nil {
		return "", err
	}
	if seq > MaxFixedWidth && a.policy == OverflowFail {
		return "", apperror.NewSequenceExhausted(key.String(), seq)
	}
	return Format(prefix, seq, code, period), nil
}
