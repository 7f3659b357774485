// Package memory is an in-process implementation of every repository plus a
// transaction manager. Units of work are serialized by one mutex and rolled
// back from a snapshot on error, which gives the same all-or-nothing and
// row-serialization guarantees the engine relies on from PostgreSQL. It
// backs unit tests and single-process development runs.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"docflow/internal/core/id"
	"docflow/internal/core/numerator"
	"docflow/internal/core/tx"
	"docflow/internal/domain/approval"
	"docflow/internal/domain/audit"
	"docflow/internal/domain/catalogs/warehouse"
	"docflow/internal/domain/documents/delivery"
	"docflow/internal/domain/documents/transfer"
	"docflow/internal/domain/registers/stock"
)

type state struct {
	warehouses   map[id.ID]warehouse.Warehouse
	counters     map[numerator.Key]int64
	prefixes     map[numerator.Key]string
	stock        map[stock.Key]stock.Record
	movements    []stock.Movement
	levels       map[id.ID]approval.Level
	rules        map[id.ID]approval.Rule
	approvals    map[id.ID]*approval.Approval
	transfers    map[id.ID]*transfer.Transfer
	deliveries   map[id.ID]*delivery.Order
	pickingLists map[id.ID]delivery.PickingList
	audit        []audit.Entry
	keys         map[string]idemRecord
}

func newState() *state {
	return &state{
		warehouses:   map[id.ID]warehouse.Warehouse{},
		counters:     map[numerator.Key]int64{},
		prefixes:     map[numerator.Key]string{},
		stock:        map[stock.Key]stock.Record{},
		levels:       map[id.ID]approval.Level{},
		rules:        map[id.ID]approval.Rule{},
		approvals:    map[id.ID]*approval.Approval{},
		transfers:    map[id.ID]*transfer.Transfer{},
		deliveries:   map[id.ID]*delivery.Order{},
		pickingLists: map[id.ID]delivery.PickingList{},
		keys:         map[string]idemRecord{},
	}
}

func (s *state) clone() *state {
	c := &state{
		warehouses:   maps.Clone(s.warehouses),
		counters:     maps.Clone(s.counters),
		prefixes:     maps.Clone(s.prefixes),
		stock:        maps.Clone(s.stock),
		movements:    slices.Clone(s.movements),
		levels:       maps.Clone(s.levels),
		rules:        maps.Clone(s.rules),
		approvals:    make(map[id.ID]*approval.Approval, len(s.approvals)),
		transfers:    make(map[id.ID]*transfer.Transfer, len(s.transfers)),
		deliveries:   make(map[id.ID]*delivery.Order, len(s.deliveries)),
		pickingLists: maps.Clone(s.pickingLists),
		audit:        slices.Clone(s.audit),
		keys:         maps.Clone(s.keys),
	}
	for k, v := range s.approvals {
		c.approvals[k] = v.Clone()
	}
	for k, v := range s.transfers {
		c.transfers[k] = v.Clone()
	}
	for k, v := range s.deliveries {
		c.deliveries[k] = v.Clone()
	}
	return c
}

// Store holds all tables.
type Store struct {
	mu sync.Mutex
	st *state
}

// New creates an empty store.
func New() *Store {
	return &Store{st: newState()}
}

type txKey struct{}

func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(bool)
	return ok
}

// do runs fn against the state, taking the store lock unless ctx already
// carries a unit of work.
func (s *Store) do(ctx context.Context, fn func(st *state) error) error {
	if inTx(ctx) {
		return fn(s.st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

// TxManager runs units of work against a Store.
type TxManager struct {
	store *Store
}

var _ tx.ReadOnlyManager = (*TxManager)(nil)

// TxManager returns the transaction manager of the store.
func (s *Store) TxManager() *TxManager {
	return &TxManager{store: s}
}

// RunInTransaction implements tx.Manager. Nested calls join the outer unit.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if inTx(ctx) {
		return fn(ctx)
	}
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	defer func() {
		if p := recover(); p != nil {
			s.st = snapshot
			panic(p)
		}
		if err != nil {
			s.st = snapshot
		}
	}()
	return fn(context.WithValue(ctx, txKey{}, true))
}

// ReadOnly implements tx.ReadOnlyManager. Writes made by fn are discarded.
func (m *TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	defer func() { s.st = snapshot }()
	return fn(context.WithValue(ctx, txKey{}, true))
}

func page[T any](items []T, limit, offset int) []T {
	if offset > len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
