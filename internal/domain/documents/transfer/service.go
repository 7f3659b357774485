package transfer

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"docflow/internal/core/apperror"
	appctx "docflow/internal/core/context"
	"docflow/internal/core/id"
	"docflow/internal/core/numerator"
	"docflow/internal/core/tx"
	"docflow/internal/core/types"
	"docflow/internal/domain/audit"
	"docflow/internal/domain/registers/stock"
	"docflow/pkg/logger"
)

var tracer = otel.Tracer("docflow/transfer")

// Service drives transfers through their lifecycle.
type Service struct {
	repo       Repository
	ledger     Ledger
	numbers    numerator.Generator
	warehouses Warehouses
	audit      audit.Recorder
	txm        tx.Manager
	now        func() time.Time
}

// NewService creates a transfer service.
func NewService(repo Repository, ledger Ledger, numbers numerator.Generator, warehouses Warehouses, recorder audit.Recorder, txm tx.Manager) *Service {
	return &Service{
		repo:       repo,
		ledger:     ledger,
		numbers:    numbers,
		warehouses: warehouses,
		audit:      recorder,
		txm:        txm,
		now:        time.Now,
	}
}

// CreateInput describes a new transfer.
type CreateInput struct {
	SourceWarehouseID      id.ID  `json:"source_warehouse_id"`
	DestinationWarehouseID id.ID  `json:"destination_warehouse_id"`
	Items                  []Line `json:"items"`
	Notes                  string `json:"notes"`
}

// Create opens a REQUESTED transfer and allocates its WT number from the
// source warehouse's sequence in the same unit of work.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Transfer, error) {
	now := s.now().UTC()
	t := &Transfer{
		ID:                     id.New(),
		SourceWarehouseID:      in.SourceWarehouseID,
		DestinationWarehouseID: in.DestinationWarehouseID,
		Status:                 Lifecycle.Initial(),
		Notes:                  in.Notes,
		RequestedBy:            appctx.GetActorID(ctx),
		CreatedAt:              now,
		UpdatedAt:              now,
		Version:                1,
	}
	for i, l := range in.Items {
		t.Items = append(t.Items, Item{
			ID:                id.New(),
			TransferID:        t.ID,
			LineNo:            i + 1,
			ProductID:         l.ProductID,
			QuantityRequested: l.Quantity,
		})
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.warehouses.RequireActive(ctx, t.SourceWarehouseID); err != nil {
			return err
		}
		if _, err := s.warehouses.RequireActive(ctx, t.DestinationWarehouseID); err != nil {
			return err
		}
		number, err := s.numbers.NextNumber(ctx, numerator.WarehouseTransfer, &t.SourceWarehouseID)
		if err != nil {
			return fmt.Errorf("allocate transfer number: %w", err)
		}
		t.Number = number
		if err := s.repo.Create(ctx, t); err != nil {
			return fmt.Errorf("create transfer: %w", err)
		}
		return s.recordCreate(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "transfer created", "transfer_id", t.ID, "number", t.Number, "items", len(t.Items))
	return t, nil
}

// Get returns a transfer with items.
func (s *Service) Get(ctx context.Context, transferID id.ID) (*Transfer, error) {
	return s.repo.GetByID(ctx, transferID)
}

// List returns transfers matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Transfer, error) {
	return s.repo.List(ctx, filter)
}

// Approve moves REQUESTED → APPROVED. The actor needs PermissionApprove on
// the source warehouse. No stock moves.
func (s *Service) Approve(ctx context.Context, transferID id.ID) (*Transfer, error) {
	return s.transition(ctx, transferID, StatusApproved, func(ctx context.Context, t *Transfer, now time.Time) (map[string]any, []string, error) {
		actor := appctx.GetActor(ctx)
		if !actor.Can(PermissionApprove, t.SourceWarehouseID.String()) {
			return nil, nil, apperror.NewForbidden("actor may not approve transfers from this warehouse").
				WithDetail("warehouse_id", t.SourceWarehouseID.String())
		}
		actorID := appctx.GetActorID(ctx)
		t.ApprovedBy = &actorID
		t.ApprovedAt = &now
		return nil, nil, nil
	})
}

// Deliver moves APPROVED → IN_TRANSIT: each delivered quantity is reserved
// and immediately shipped out of the source warehouse. lines may be empty to
// deliver everything requested; products not listed deliver nothing.
func (s *Service) Deliver(ctx context.Context, transferID id.ID, lines []Line) (*Transfer, error) {
	return s.transition(ctx, transferID, StatusInTransit, func(ctx context.Context, t *Transfer, now time.Time) (map[string]any, []string, error) {
		qty, err := quantities(t, lines, func(it Item) types.Quantity { return it.QuantityRequested })
		if err != nil {
			return nil, nil, err
		}

		var instructions []stock.Instruction
		for i := range t.Items {
			it := &t.Items[i]
			q := qty[it.ProductID]
			if q > it.QuantityRequested {
				return nil, nil, apperror.NewValidation("delivered quantity exceeds requested quantity").
					WithDetail("product_id", it.ProductID.String()).
					WithDetail("requested", it.QuantityRequested.String()).
					WithDetail("delivered", q.String())
			}
			it.QuantityDelivered = q
			if q.IsPositive() {
				instructions = append(instructions,
					stock.Instruction{Op: stock.OpReserve, ProductID: it.ProductID, WarehouseID: t.SourceWarehouseID, Quantity: q},
					stock.Instruction{Op: stock.OpTransferOut, ProductID: it.ProductID, WarehouseID: t.SourceWarehouseID, Quantity: q},
				)
			}
		}
		if len(instructions) == 0 {
			return nil, nil, apperror.NewValidation("nothing to deliver")
		}
		if _, err := s.ledger.Execute(ctx, s.reference(t), instructions...); err != nil {
			return nil, nil, err
		}
		t.DeliveredAt = &now
		return map[string]any{"delivered": deliveredLines(t)}, nil, nil
	})
}

// Receive moves IN_TRANSIT → RECEIVED and books received quantities into
// the destination warehouse. lines may be empty to receive everything
// delivered. A receipt below the delivered quantity still ends in RECEIVED;
// the shortfall stays on the items and the audit entry is flagged.
func (s *Service) Receive(ctx context.Context, transferID id.ID, lines []Line) (*Transfer, error) {
	return s.transition(ctx, transferID, StatusReceived, func(ctx context.Context, t *Transfer, now time.Time) (map[string]any, []string, error) {
		qty, err := quantities(t, lines, func(it Item) types.Quantity { return it.QuantityDelivered })
		if err != nil {
			return nil, nil, err
		}

		var instructions []stock.Instruction
		for i := range t.Items {
			it := &t.Items[i]
			q := qty[it.ProductID]
			if q > it.QuantityDelivered {
				return nil, nil, apperror.NewValidation("received quantity exceeds delivered quantity").
					WithDetail("product_id", it.ProductID.String()).
					WithDetail("delivered", it.QuantityDelivered.String()).
					WithDetail("received", q.String())
			}
			it.QuantityReceived = q
			if q.IsPositive() {
				instructions = append(instructions, stock.Instruction{
					Op: stock.OpTransferIn, ProductID: it.ProductID, WarehouseID: t.DestinationWarehouseID, Quantity: q,
				})
			}
		}
		if len(instructions) > 0 {
			if _, err := s.ledger.Execute(ctx, s.reference(t), instructions...); err != nil {
				return nil, nil, err
			}
		}
		t.ReceivedAt = &now

		changes := map[string]any{"received": receivedLines(t)}
		if !t.HasShortfall() {
			return changes, nil, nil
		}
		shortfall := map[string]string{}
		for _, it := range t.Items {
			if it.Shortfall() > 0 {
				shortfall[it.ProductID.String()] = it.Shortfall().String()
			}
		}
		changes["shortfall"] = shortfall
		logger.Warn(ctx, "transfer received with shortfall",
			"transfer_id", t.ID,
			"number", t.Number,
			"shortfall", shortfall,
		)
		return changes, []string{FlagPartialReceipt}, nil
	})
}

// Cancel moves REQUESTED or APPROVED → CANCELLED. Nothing has moved yet,
// so there is no stock to restore.
func (s *Service) Cancel(ctx context.Context, transferID id.ID, reason string) (*Transfer, error) {
	return s.transition(ctx, transferID, StatusCancelled, func(_ context.Context, t *Transfer, now time.Time) (map[string]any, []string, error) {
		t.CancelledAt = &now
		t.CancelReason = reason
		return map[string]any{"reason": reason}, nil, nil
	})
}

// Delete removes a transfer that is still REQUESTED.
func (s *Service) Delete(ctx context.Context, transferID id.ID) error {
	return s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		t, err := s.repo.GetForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		if t.Status != StatusRequested {
			return apperror.NewConflict("only requested transfers can be deleted").
				WithDetail("status", string(t.Status))
		}
		if err := s.repo.Delete(ctx, transferID); err != nil {
			return fmt.Errorf("delete transfer: %w", err)
		}
		if s.audit == nil {
			return nil
		}
		entry, err := audit.Change(ctx, EntityType, t.ID, audit.ActionDelete, map[string]any{"number": t.Number})
		if err != nil {
			return err
		}
		return s.audit.Record(ctx, entry)
	})
}

type mutation func(ctx context.Context, t *Transfer, now time.Time) (changes map[string]any, flags []string, err error)

// transition locks the transfer, checks the lifecycle, applies fn and
// persists everything in one unit of work.
func (s *Service) transition(ctx context.Context, transferID id.ID, to Status, fn mutation) (*Transfer, error) {
	ctx, span := tracer.Start(ctx, "transfer.transition", trace.WithAttributes(
		attribute.String("transfer.id", transferID.String()),
		attribute.String("transfer.to", string(to)),
	))
	defer span.End()

	var (
		out  *Transfer
		from Status
	)
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		t, err := s.repo.GetForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		from = t.Status
		if err := Lifecycle.Check(t.Status, to); err != nil {
			return err
		}

		now := s.now().UTC()
		changes, flags, err := fn(ctx, t, now)
		if err != nil {
			return err
		}
		t.Status = to
		t.UpdatedAt = now
		if err := s.repo.Update(ctx, t); err != nil {
			return fmt.Errorf("update transfer: %w", err)
		}
		if s.audit != nil {
			changes = withNumber(changes, t.Number)
			if err := audit.Transition(ctx, s.audit, EntityType, t.ID, string(from), string(to), changes, flags...); err != nil {
				return err
			}
		}
		out = t
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	logger.Info(ctx, "transfer status changed",
		"transfer_id", out.ID,
		"number", out.Number,
		"from", from,
		"to", to,
	)
	return out, nil
}

func (s *Service) reference(t *Transfer) stock.Reference {
	ref := t.ID
	return stock.Reference{Type: EntityType, ID: &ref, Number: t.Number}
}

func (s *Service) recordCreate(ctx context.Context, t *Transfer) error {
	if s.audit == nil {
		return nil
	}
	entry, err := audit.Change(ctx, EntityType, t.ID, audit.ActionCreate, map[string]any{
		"number": t.Number,
		"status": t.Status,
		"items":  len(t.Items),
	})
	if err != nil {
		return err
	}
	return s.audit.Record(ctx, entry)
}

// quantities resolves per-product quantities from lines, defaulting to def
// for every item when lines is empty.
func quantities(t *Transfer, lines []Line, def func(Item) types.Quantity) (map[id.ID]types.Quantity, error) {
	out := make(map[id.ID]types.Quantity, len(t.Items))
	if len(lines) == 0 {
		for _, it := range t.Items {
			out[it.ProductID] = def(it)
		}
		return out, nil
	}
	known := make(map[id.ID]bool, len(t.Items))
	for _, it := range t.Items {
		known[it.ProductID] = true
	}
	for _, l := range lines {
		if !known[l.ProductID] {
			return nil, apperror.NewValidation("product is not on this transfer").WithDetail("product_id", l.ProductID.String())
		}
		if _, dup := out[l.ProductID]; dup {
			return nil, apperror.NewValidation("product appears twice").WithDetail("product_id", l.ProductID.String())
		}
		if l.Quantity.IsNegative() {
			return nil, apperror.NewValidation("quantity must not be negative").WithDetail("product_id", l.ProductID.String())
		}
		out[l.ProductID] = l.Quantity
	}
	return out, nil
}

func deliveredLines(t *Transfer) map[string]string {
	out := make(map[string]string, len(t.Items))
	for _, it := range t.Items {
		out[it.ProductID.String()] = it.QuantityDelivered.String()
	}
	return out
}

func receivedLines(t *Transfer) map[string]string {
	out := make(map[string]string, len(t.Items))
	for _, it := range t.Items {
		out[it.ProductID.String()] = it.QuantityReceived.String()
	}
	return out
}

func withNumber(changes map[string]any, number string) map[string]any {
	if changes == nil {
		changes = map[string]any{}
	}
	changes["number"] = number
	return changes
}
