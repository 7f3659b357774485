package delivery

import (
	"context"
	"fmt"
	"sort"
	"strings"
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

var tracer = otel.Tracer("docflow/delivery")

// Service drives delivery orders through their lifecycle.
type Service struct {
	repo       Repository
	picking    PickingLists
	ledger     Ledger
	numbers    numerator.Generator
	warehouses Warehouses
	audit      audit.Recorder
	txm        tx.Manager
	now        func() time.Time
}

// NewService creates a delivery service.
func NewService(repo Repository, picking PickingLists, ledger Ledger, numbers numerator.Generator, warehouses Warehouses, recorder audit.Recorder, txm tx.Manager) *Service {
	return &Service{
		repo:       repo,
		picking:    picking,
		ledger:     ledger,
		numbers:    numbers,
		warehouses: warehouses,
		audit:      recorder,
		txm:        txm,
		now:        time.Now,
	}
}

// CreateInput describes a new delivery order.
type CreateInput struct {
	WarehouseID      id.ID    `json:"warehouse_id"`
	SalesOrderID     *id.ID   `json:"sales_order_id"`
	SalesOrderNumber string   `json:"sales_order_number"`
	PickingListID    *id.ID   `json:"picking_list_id"`
	ShippingAddress  string   `json:"shipping_address"`
	Shipping         Shipping `json:"shipping"`
	Items            []Line   `json:"items"`
	// ReserveStock makes the order own the reservation of its lines. When
	// false the reservation is expected to be held by the sales order.
	ReserveStock bool `json:"reserve_stock"`
}

// Create opens a PREPARING order with a DO number from the shipping
// warehouse's sequence, reserving its lines when ReserveStock is set.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Order, error) {
	now := s.now().UTC()
	o := &Order{
		ID:               id.New(),
		WarehouseID:      in.WarehouseID,
		SalesOrderID:     in.SalesOrderID,
		SalesOrderNumber: in.SalesOrderNumber,
		PickingListID:    in.PickingListID,
		ShippingAddress:  strings.TrimSpace(in.ShippingAddress),
		Shipping:         in.Shipping,
		Status:           Lifecycle.Initial(),
		ReservedStock:    in.ReserveStock,
		CreatedBy:        appctx.GetActorID(ctx),
		CreatedAt:        now,
		UpdatedAt:        now,
		Version:          1,
	}
	for i, l := range in.Items {
		o.Items = append(o.Items, Item{
			ID:        id.New(),
			OrderID:   o.ID,
			LineNo:    i + 1,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Status:    ItemPending,
		})
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.warehouses.RequireActive(ctx, o.WarehouseID); err != nil {
			return err
		}
		if o.PickingListID != nil {
			if err := s.checkPickingWarehouse(ctx, *o.PickingListID, o.WarehouseID); err != nil {
				return err
			}
		}
		number, err := s.numbers.NextNumber(ctx, numerator.DeliveryOrder, &o.WarehouseID)
		if err != nil {
			return fmt.Errorf("allocate delivery number: %w", err)
		}
		o.Number = number

		if o.ReservedStock {
			if _, err := s.ledger.Execute(ctx, s.reference(o), s.instructions(o, stock.OpReserve, func(it Item) types.Quantity { return it.Quantity })...); err != nil {
				return err
			}
		}
		if err := s.repo.Create(ctx, o); err != nil {
			return fmt.Errorf("create delivery order: %w", err)
		}
		return s.record(ctx, o, audit.ActionCreate, map[string]any{
			"number":         o.Number,
			"status":         o.Status,
			"reserved_stock": o.ReservedStock,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "delivery order created", "delivery_id", o.ID, "number", o.Number, "reserved_stock", o.ReservedStock)
	return o, nil
}

// Get returns an order with items.
func (s *Service) Get(ctx context.Context, orderID id.ID) (*Order, error) {
	return s.repo.GetByID(ctx, orderID)
}

// List returns orders matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Order, error) {
	return s.repo.List(ctx, filter)
}

// AttachPickingList links a picking list of the same warehouse while the
// order is PREPARING.
func (s *Service) AttachPickingList(ctx context.Context, orderID, pickingListID id.ID) (*Order, error) {
	var out *Order
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != StatusPreparing {
			return apperror.NewConflict("picking list can only be attached while preparing").
				WithDetail("status", string(o.Status))
		}
		if err := s.checkPickingWarehouse(ctx, pickingListID, o.WarehouseID); err != nil {
			return err
		}
		o.PickingListID = &pickingListID
		o.UpdatedAt = s.now().UTC()
		if err := s.repo.Update(ctx, o); err != nil {
			return fmt.Errorf("update delivery order: %w", err)
		}
		out = o
		return nil
	})
	return out, err
}

// SetShipping records carrier details before the order ships.
func (s *Service) SetShipping(ctx context.Context, orderID id.ID, shipping Shipping) (*Order, error) {
	var out *Order
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != StatusPreparing && o.Status != StatusReadyToShip {
			return apperror.NewConflict("shipping details are fixed once the order has shipped").
				WithDetail("status", string(o.Status))
		}
		o.Shipping = shipping
		o.UpdatedAt = s.now().UTC()
		if err := s.repo.Update(ctx, o); err != nil {
			return fmt.Errorf("update delivery order: %w", err)
		}
		out = o
		return nil
	})
	return out, err
}

// MarkReady moves PREPARING → READY_TO_SHIP once the attached picking list is COMPLETED.
func (s *Service) MarkReady(ctx context.Context, orderID id.ID) (*Order, error) {
	return s.transition(ctx, orderID, StatusReadyToShip, func(ctx context.Context, o *Order, _ time.Time) (map[string]any, error) {
		if o.PickingListID == nil {
			return nil, apperror.NewValidation("delivery order has no picking list")
		}
		pl, err := s.picking.GetPickingList(ctx, *o.PickingListID)
		if err != nil {
			return nil, err
		}
		if pl.Status != PickingCompleted {
			return nil, apperror.NewValidation("picking list is not completed").
				WithDetail("picking_list", pl.Number).
				WithDetail("picking_status", string(pl.Status))
		}
		return map[string]any{"picking_list": pl.Number}, nil
	})
}

// Ship moves READY_TO_SHIP → SHIPPED, committing the shipped quantity of
// every line out of the warehouse. lines may be empty to ship everything.
// shipping, when non-nil, replaces the stored details; a shipping method is
// required either way. When the order owns its reservation, any unshipped
// remainder is released. A line shipped with zero quantity stays PENDING.
func (s *Service) Ship(ctx context.Context, orderID id.ID, lines []Line, shipping *Shipping) (*Order, error) {
	return s.transition(ctx, orderID, StatusShipped, func(ctx context.Context, o *Order, now time.Time) (map[string]any, error) {
		if shipping != nil {
			o.Shipping = *shipping
		}
		if strings.TrimSpace(o.Shipping.Method) == "" {
			return nil, apperror.NewValidation("shipping method is required").WithDetail("field", "shipping.method")
		}

		qty, err := quantities(o, lines, func(it Item) types.Quantity { return it.Quantity })
		if err != nil {
			return nil, err
		}
		for i := range o.Items {
			it := &o.Items[i]
			q := qty[it.ProductID]
			if q > it.Quantity {
				return nil, apperror.NewValidation("shipped quantity exceeds ordered quantity").
					WithDetail("product_id", it.ProductID.String()).
					WithDetail("quantity", it.Quantity.String()).
					WithDetail("shipped", q.String())
			}
			it.QuantityShipped = q
			if q.IsPositive() {
				it.Status = ItemShipped
			}
		}

		instructions := s.instructions(o, stock.OpCommitShipment, func(it Item) types.Quantity { return it.QuantityShipped })
		if len(instructions) == 0 {
			return nil, apperror.NewValidation("nothing to ship")
		}
		if o.ReservedStock {
			instructions = append(instructions, s.instructions(o, stock.OpRelease, func(it Item) types.Quantity {
				return it.Quantity - it.QuantityShipped
			})...)
		}
		if _, err := s.ledger.Execute(ctx, s.reference(o), instructions...); err != nil {
			return nil, err
		}
		o.ShippedAt = &now
		return map[string]any{"shipping_method": o.Shipping.Method, "tracking_number": o.Shipping.TrackingNumber}, nil
	})
}

// Deliver moves SHIPPED → DELIVERED, recording per-line delivered
// quantities (defaulting to the shipped quantity). Lines delivered short
// are marked PARTIAL; lines that never shipped stay PENDING. No stock
// moves: the goods already left the warehouse.
func (s *Service) Deliver(ctx context.Context, orderID id.ID, lines []Line) (*Order, error) {
	return s.transition(ctx, orderID, StatusDelivered, func(_ context.Context, o *Order, now time.Time) (map[string]any, error) {
		qty, err := quantities(o, lines, func(it Item) types.Quantity { return it.QuantityShipped })
		if err != nil {
			return nil, err
		}
		partial := 0
		for i := range o.Items {
			it := &o.Items[i]
			q := qty[it.ProductID]
			if q > it.QuantityShipped {
				return nil, apperror.NewValidation("delivered quantity exceeds shipped quantity").
					WithDetail("product_id", it.ProductID.String()).
					WithDetail("shipped", it.QuantityShipped.String()).
					WithDetail("delivered", q.String())
			}
			it.QuantityDelivered = q
			if it.QuantityShipped.IsZero() {
				continue
			}
			it.Status = ItemDelivered
			if q < it.QuantityShipped {
				it.Status = ItemPartial
				partial++
			}
		}
		o.DeliveredAt = &now
		return map[string]any{"partial_lines": partial}, nil
	})
}

// Cancel moves PREPARING or READY_TO_SHIP → CANCELLED, releasing the
// reservation when the order owns it.
func (s *Service) Cancel(ctx context.Context, orderID id.ID, reason string) (*Order, error) {
	return s.transition(ctx, orderID, StatusCancelled, func(ctx context.Context, o *Order, now time.Time) (map[string]any, error) {
		if o.ReservedStock {
			instructions := s.instructions(o, stock.OpRelease, func(it Item) types.Quantity { return it.Quantity })
			if _, err := s.ledger.Execute(ctx, s.reference(o), instructions...); err != nil {
				return nil, err
			}
		}
		o.CancelledAt = &now
		o.CancelReason = reason
		return map[string]any{"reason": reason, "released": o.ReservedStock}, nil
	})
}

// Delete removes an order that is PREPARING and never reserved stock.
func (s *Service) Delete(ctx context.Context, orderID id.ID) error {
	return s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != StatusPreparing {
			return apperror.NewConflict("only preparing delivery orders can be deleted").
				WithDetail("status", string(o.Status))
		}
		if o.ReservedStock {
			return apperror.NewConflict("delivery order holds stock movements; cancel it instead")
		}
		if err := s.repo.Delete(ctx, orderID); err != nil {
			return fmt.Errorf("delete delivery order: %w", err)
		}
		return s.record(ctx, o, audit.ActionDelete, map[string]any{"number": o.Number})
	})
}

// CreatePickingList opens a PENDING picking list with a PL number.
func (s *Service) CreatePickingList(ctx context.Context, warehouseID id.ID) (*PickingList, error) {
	pl := &PickingList{
		ID:          id.New(),
		WarehouseID: warehouseID,
		Status:      PickingPending,
		CreatedAt:   s.now().UTC(),
	}
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.warehouses.RequireActive(ctx, warehouseID); err != nil {
			return err
		}
		number, err := s.numbers.NextNumber(ctx, numerator.PickingList, &warehouseID)
		if err != nil {
			return fmt.Errorf("allocate picking list number: %w", err)
		}
		pl.Number = number
		return s.picking.CreatePickingList(ctx, pl)
	})
	if err != nil {
		return nil, err
	}
	return pl, nil
}

// SetPickingStatus records progress reported by the warehouse floor.
func (s *Service) SetPickingStatus(ctx context.Context, pickingListID id.ID, status PickingStatus) (*PickingList, error) {
	switch status {
	case PickingPending, PickingInProgress, PickingCompleted, PickingCancelled:
	default:
		return nil, apperror.NewValidation(fmt.Sprintf("unknown picking status %q", status))
	}
	var out *PickingList
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		pl, err := s.picking.GetPickingList(ctx, pickingListID)
		if err != nil {
			return err
		}
		if pl.Status == PickingCompleted || pl.Status == PickingCancelled {
			return apperror.NewInvalidTransition("picking_list", string(pl.Status), string(status))
		}
		pl.Status = status
		if status == PickingCompleted {
			now := s.now().UTC()
			pl.CompletedAt = &now
		}
		if err := s.picking.UpdatePickingList(ctx, pl); err != nil {
			return fmt.Errorf("update picking list: %w", err)
		}
		out = pl
		return nil
	})
	return out, err
}

type mutation func(ctx context.Context, o *Order, now time.Time) (map[string]any, error)

func (s *Service) transition(ctx context.Context, orderID id.ID, to Status, fn mutation) (*Order, error) {
	ctx, span := tracer.Start(ctx, "delivery.transition", trace.WithAttributes(
		attribute.String("delivery.id", orderID.String()),
		attribute.String("delivery.to", string(to)),
	))
	defer span.End()

	var (
		out  *Order
		from Status
	)
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		from = o.Status
		if err := Lifecycle.Check(o.Status, to); err != nil {
			return err
		}
		now := s.now().UTC()
		changes, err := fn(ctx, o, now)
		if err != nil {
			return err
		}
		o.Status = to
		o.UpdatedAt = now
		if err := s.repo.Update(ctx, o); err != nil {
			return fmt.Errorf("update delivery order: %w", err)
		}
		if s.audit != nil {
			if changes == nil {
				changes = map[string]any{}
			}
			changes["number"] = o.Number
			if err := audit.Transition(ctx, s.audit, EntityType, o.ID, string(from), string(to), changes); err != nil {
				return err
			}
		}
		out = o
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	logger.Info(ctx, "delivery order status changed",
		"delivery_id", out.ID,
		"number", out.Number,
		"from", from,
		"to", to,
	)
	return out, nil
}

func (s *Service) checkPickingWarehouse(ctx context.Context, pickingListID, warehouseID id.ID) error {
	pl, err := s.picking.GetPickingList(ctx, pickingListID)
	if err != nil {
		return err
	}
	if pl.WarehouseID != warehouseID {
		return apperror.NewValidation("picking list belongs to another warehouse").
			WithDetail("picking_list", pl.Number)
	}
	return nil
}

// instructions builds one instruction per line with a positive quantity,
// ordered by product.
func (s *Service) instructions(o *Order, op stock.Operation, qty func(Item) types.Quantity) []stock.Instruction {
	items := append([]Item(nil), o.Items...)
	sort.Slice(items, func(i, j int) bool { return id.Compare(items[i].ProductID, items[j].ProductID) < 0 })

	var out []stock.Instruction
	for _, it := range items {
		if q := qty(it); q.IsPositive() {
			out = append(out, stock.Instruction{Op: op, ProductID: it.ProductID, WarehouseID: o.WarehouseID, Quantity: q})
		}
	}
	return out
}

func (s *Service) reference(o *Order) stock.Reference {
	ref := o.ID
	return stock.Reference{Type: EntityType, ID: &ref, Number: o.Number}
}

func (s *Service) record(ctx context.Context, o *Order, action audit.Action, changes map[string]any) error {
	if s.audit == nil {
		return nil
	}
	entry, err := audit.Change(ctx, EntityType, o.ID, action, changes)
	if err != nil {
		return err
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	return nil
}

func quantities(o *Order, lines []Line, def func(Item) types.Quantity) (map[id.ID]types.Quantity, error) {
	out := make(map[id.ID]types.Quantity, len(o.Items))
	if len(lines) == 0 {
		for _, it := range o.Items {
			out[it.ProductID] = def(it)
		}
		return out, nil
	}
	known := make(map[id.ID]bool, len(o.Items))
	for _, it := range o.Items {
		known[it.ProductID] = true
	}
	for _, l := range lines {
		if !known[l.ProductID] {
			return nil, apperror.NewValidation("product is not on this delivery order").WithDetail("product_id", l.ProductID.String())
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
