package stock

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"docflow/internal/core/apperror"
	appctx "docflow/internal/core/context"
	"docflow/internal/core/id"
	"docflow/internal/core/tx"
	"docflow/internal/core/types"
	"docflow/pkg/logger"
)

var tracer = otel.Tracer("docflow/stock")

// Operation is a single ledger mutation kind.
type Operation string

const (
	OpReceive        Operation = "receive"
	OpReserve        Operation = "reserve"
	OpRelease        Operation = "release"
	OpAdjust         Operation = "adjust"
	OpDamage         Operation = "damage"
	OpCommitShipment Operation = "commit_shipment"
	OpTransferOut    Operation = "transfer_out"
	OpTransferIn     Operation = "transfer_in"
)

// Instruction is one line of a ledger unit of work. Quantity is positive
// for every operation except OpAdjust, where it is a signed non-zero delta.
type Instruction struct {
	Op          Operation
	ProductID   id.ID
	WarehouseID id.ID
	Quantity    types.Quantity
	Reason      string
}

func (in Instruction) key() Key {
	return Key{ProductID: in.ProductID, WarehouseID: in.WarehouseID}
}

// Ledger executes stock operations.
type Ledger struct {
	repo Repository
	txm  tx.Manager
	now  func() time.Time
}

// NewLedger creates a Ledger.
func NewLedger(repo Repository, txm tx.Manager) *Ledger {
	return &Ledger{repo: repo, txm: txm, now: time.Now}
}

// Receive books goods arriving from outside the company (movement IN).
func (l *Ledger) Receive(ctx context.Context, productID, warehouseID id.ID, qty types.Quantity, ref Reference) (Snapshot, error) {
	return l.one(ctx, ref, Instruction{Op: OpReceive, ProductID: productID, WarehouseID: warehouseID, Quantity: qty})
}

// Reserve earmarks available stock. Fails with INSUFFICIENT_STOCK when qty exceeds available.
func (l *Ledger) Reserve(ctx context.Context, productID, warehouseID id.ID, qty types.Quantity, ref Reference) (Snapshot, error) {
	return l.one(ctx, ref, Instruction{Op: OpReserve, ProductID: productID, WarehouseID: warehouseID, Quantity: qty})
}

// Release returns reserved stock to available. Fails with INVALID_RELEASE when qty exceeds reserved.
func (l *Ledger) Release(ctx context.Context, productID, warehouseID id.ID, qty types.Quantity, ref Reference) (Snapshot, error) {
	return l.one(ctx, ref, Instruction{Op: OpRelease, ProductID: productID, WarehouseID: warehouseID, Quantity: qty})
}

// Adjust changes on-hand quantity by delta, for example after a stock count.
func (l *Ledger) Adjust(ctx context.Context, productID, warehouseID id.ID, delta types.Quantity, reason string, ref Reference) (Snapshot, error) {
	return l.one(ctx, ref, Instruction{Op: OpAdjust, ProductID: productID, WarehouseID: warehouseID, Quantity: delta, Reason: reason})
}

// ReportDamage moves available stock into the damaged counter.
func (l *Ledger) ReportDamage(ctx context.Context, productID, warehouseID id.ID, qty types.Quantity, reason string, ref Reference) (Snapshot, error) {
	return l.one(ctx, ref, Instruction{Op: OpDamage, ProductID: productID, WarehouseID: warehouseID, Quantity: qty, Reason: reason})
}

// CommitShipment removes reserved goods from the warehouse.
func (l *Ledger) CommitShipment(ctx context.Context, productID, warehouseID id.ID, qty types.Quantity, ref Reference) (Snapshot, error) {
	return l.one(ctx, ref, Instruction{Op: OpCommitShipment, ProductID: productID, WarehouseID: warehouseID, Quantity: qty})
}

func (l *Ledger) one(ctx context.Context, ref Reference, in Instruction) (Snapshot, error) {
	snaps, err := l.Execute(ctx, ref, in)
	if err != nil {
		return Snapshot{}, err
	}
	return snaps[0], nil
}

// Execute applies instructions as one unit of work and returns one snapshot
// per instruction, taken right after it was applied. Records are locked in
// (warehouse, product) order before any instruction runs, so concurrent
// units of work touching overlapping rows never deadlock.
func (l *Ledger) Execute(ctx context.Context, ref Reference, instructions ...Instruction) ([]Snapshot, error) {
	if len(instructions) == 0 {
		return nil, nil
	}
	for i, in := range instructions {
		if err := validate(in); err != nil {
			return nil, err.WithDetail("line", i)
		}
	}

	ctx, span := tracer.Start(ctx, "stock.Execute", trace.WithAttributes(
		attribute.Int("stock.instructions", len(instructions)),
		attribute.String("stock.reference_type", ref.Type),
	))
	defer span.End()

	snapshots := make([]Snapshot, len(instructions))
	var movements []Movement

	err := l.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		movements = movements[:0]
		records, err := l.lockAll(ctx, instructions)
		if err != nil {
			return err
		}

		actor := appctx.GetActorID(ctx)
		now := l.now().UTC()
		for i, in := range instructions {
			rec := records[in.key()]
			m, err := apply(&rec, in)
			if err != nil {
				return err
			}
			records[in.key()] = rec

			m.ID = id.New()
			m.Reason = in.Reason
			m.ActorID = actor
			m.ReferenceType = ref.Type
			m.ReferenceID = ref.ID
			m.ReferenceNumber = ref.Number
			m.CreatedAt = now
			movements = append(movements, m)
			snapshots[i] = rec.Snapshot()
		}

		for _, rec := range records {
			rec.UpdatedAt = now
			if err := l.repo.Save(ctx, rec); err != nil {
				return fmt.Errorf("save stock %s/%s: %w", rec.ProductID, rec.WarehouseID, err)
			}
		}
		if err := l.repo.AppendMovements(ctx, movements); err != nil {
			return fmt.Errorf("append movements: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	for _, m := range movements {
		logger.Info(ctx, "stock movement recorded",
			"product_id", m.ProductID,
			"warehouse_id", m.WarehouseID,
			"movement_type", m.Type,
			"quantity_change", m.QuantityChange,
			"reference", ref.Number,
		)
	}
	return snapshots, nil
}

func (l *Ledger) lockAll(ctx context.Context, instructions []Instruction) (map[Key]Record, error) {
	keys := make([]Key, 0, len(instructions))
	seen := make(map[Key]bool, len(instructions))
	for _, in := range instructions {
		if k := in.key(); !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })

	records := make(map[Key]Record, len(keys))
	for _, k := range keys {
		rec, err := l.repo.Lock(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("lock stock %s/%s: %w", k.ProductID, k.WarehouseID, err)
		}
		records[k] = rec
	}
	return records, nil
}

func validate(in Instruction) *apperror.AppError {
	if id.IsNil(in.ProductID) || id.IsNil(in.WarehouseID) {
		return apperror.NewValidation("product_id and warehouse_id are required")
	}
	switch in.Op {
	case OpAdjust:
		if in.Quantity.IsZero() {
			return apperror.NewValidation("adjustment delta must not be zero")
		}
		if in.Reason == "" {
			return apperror.NewValidation("adjustment requires a reason")
		}
	case OpReceive, OpReserve, OpRelease, OpDamage, OpCommitShipment, OpTransferOut, OpTransferIn:
		if !in.Quantity.IsPositive() {
			return apperror.NewValidation("quantity must be positive").WithDetail("operation", string(in.Op))
		}
	default:
		return apperror.NewValidation(fmt.Sprintf("unknown stock operation %q", in.Op))
	}
	return nil
}

// apply mutates rec for one instruction and returns the matching movement
// without identity fields. rec is left untouched on error.
func apply(rec *Record, in Instruction) (Movement, error) {
	q := in.Quantity
	next := *rec
	m := Movement{ProductID: rec.ProductID, WarehouseID: rec.WarehouseID}

	insufficient := func(have types.Quantity) *apperror.AppError {
		return apperror.NewInsufficientStock(rec.ProductID.String(), rec.WarehouseID.String(), q.String(), have.String())
	}

	switch in.Op {
	case OpReceive:
		next.Quantity += q
		m.Type, m.QuantityChange = MovementIn, q
		m.PreviousQuantity, m.NewQuantity = rec.Quantity, next.Quantity

	case OpTransferIn:
		next.Quantity += q
		m.Type, m.QuantityChange = MovementTransfer, q
		m.PreviousQuantity, m.NewQuantity = rec.Quantity, next.Quantity

	case OpReserve:
		if q > rec.Available() {
			return Movement{}, insufficient(rec.Available())
		}
		next.Reserved += q
		m.Type, m.QuantityChange = MovementReserve, q
		m.PreviousQuantity, m.NewQuantity = rec.Reserved, next.Reserved

	case OpRelease:
		if q > rec.Reserved {
			return Movement{}, apperror.NewInvalidRelease(rec.ProductID.String(), rec.WarehouseID.String(), q.String(), rec.Reserved.String())
		}
		next.Reserved -= q
		m.Type, m.QuantityChange = MovementRelease, -q
		m.PreviousQuantity, m.NewQuantity = rec.Reserved, next.Reserved

	case OpAdjust:
		next.Quantity += q
		if next.Quantity < 0 || next.Available() < 0 {
			return Movement{}, insufficient(rec.Available()).
				WithDetail("reserved", rec.Reserved.String()).
				WithDetail("damaged", rec.Damaged.String())
		}
		m.Type, m.QuantityChange = MovementAdjustment, q
		m.PreviousQuantity, m.NewQuantity = rec.Quantity, next.Quantity

	case OpDamage:
		if q > rec.Available() {
			return Movement{}, insufficient(rec.Available())
		}
		next.Damaged += q
		m.Type, m.QuantityChange = MovementDamage, q
		m.PreviousQuantity, m.NewQuantity = rec.Damaged, next.Damaged

	case OpCommitShipment, OpTransferOut:
		if q > rec.Reserved {
			return Movement{}, insufficient(rec.Reserved).WithDetail("counter", "reserved_quantity")
		}
		next.Quantity -= q
		next.Reserved -= q
		m.Type, m.QuantityChange = MovementOut, -q
		if in.Op == OpTransferOut {
			m.Type = MovementTransfer
		}
		m.PreviousQuantity, m.NewQuantity = rec.Quantity, next.Quantity

	default:
		return Movement{}, apperror.NewValidation(fmt.Sprintf("unknown stock operation %q", in.Op))
	}

	if !next.Valid() {
		return Movement{}, apperror.NewInternal(fmt.Errorf("stock invariant violated for %s/%s", rec.ProductID, rec.WarehouseID))
	}
	*rec = next
	return m, nil
}

// Get returns the current snapshot. A pair that was never touched reads as zero.
func (l *Ledger) Get(ctx context.Context, productID, warehouseID id.ID) (Snapshot, error) {
	key := Key{ProductID: productID, WarehouseID: warehouseID}
	var snap Snapshot
	err := l.read(ctx, func(ctx context.Context) error {
		rec, err := l.repo.Get(ctx, key)
		if apperror.IsNotFound(err) {
			rec, err = Record{ProductID: productID, WarehouseID: warehouseID}, nil
		}
		snap = rec.Snapshot()
		return err
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// ListByWarehouse returns snapshots for a warehouse.
func (l *Ledger) ListByWarehouse(ctx context.Context, warehouseID id.ID, filter BalanceFilter) ([]Snapshot, error) {
	var out []Snapshot
	err := l.read(ctx, func(ctx context.Context) error {
		recs, err := l.repo.ListByWarehouse(ctx, warehouseID, filter)
		if err != nil {
			return fmt.Errorf("list stock: %w", err)
		}
		out = make([]Snapshot, len(recs))
		for i, r := range recs {
			out[i] = r.Snapshot()
		}
		return nil
	})
	return out, err
}

// Movements returns the movement log, oldest first.
func (l *Ledger) Movements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	var out []Movement
	err := l.read(ctx, func(ctx context.Context) (err error) {
		out, err = l.repo.ListMovements(ctx, filter)
		return err
	})
	return out, err
}

// read runs a query in a read-only unit of work when the manager offers one.
func (l *Ledger) read(ctx context.Context, fn func(ctx context.Context) error) error {
	if ro, ok := l.txm.(tx.ReadOnlyManager); ok {
		return ro.ReadOnly(ctx, fn)
	}
	return fn(ctx)
}

// Reconcile folds the movement log of a pair from zero and compares it with
// the stored record. It writes nothing; an untouched pair compares as zero.
func (l *Ledger) Reconcile(ctx context.Context, productID, warehouseID id.ID) (Drift, error) {
	key := Key{ProductID: productID, WarehouseID: warehouseID}
	drift := Drift{Key: key}

	err := l.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		rec, err := l.repo.GetShared(ctx, key)
		if apperror.IsNotFound(err) {
			rec, err = Record{ProductID: productID, WarehouseID: warehouseID}, nil
		}
		if err != nil {
			return err
		}
		movements, err := l.repo.ListMovements(ctx, MovementFilter{ProductID: &productID, WarehouseID: &warehouseID})
		if err != nil {
			return err
		}
		folded, err := Fold(movements)
		if err != nil {
			return err
		}
		drift.Stored = countersOf(rec)
		drift.Folded = folded
		drift.Movements = len(movements)
		return nil
	})
	if err != nil {
		return Drift{}, err
	}

	if !drift.Consistent() {
		logger.Error(ctx, "stock record drifted from movement log",
			"product_id", productID,
			"warehouse_id", warehouseID,
			"stored", drift.Stored,
			"folded", drift.Folded,
		)
	}
	return drift, nil
}
