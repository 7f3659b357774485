// Package stock is the stock ledger: per (product, warehouse) counters for
// on-hand, reserved and damaged quantity, mutated only by operations that
// append an immutable movement in the same unit of work.
package stock

import (
	"time"

	"docflow/internal/core/id"
	"docflow/internal/core/types"
)

// MovementType classifies a ledger movement.
type MovementType string

const (
	MovementIn         MovementType = "IN"
	MovementOut        MovementType = "OUT"
	MovementAdjustment MovementType = "ADJUSTMENT"
	MovementReserve    MovementType = "RESERVE"
	MovementRelease    MovementType = "RELEASE"
	MovementDamage     MovementType = "DAMAGE"
	MovementTransfer   MovementType = "TRANSFER"
)

// Key identifies a stock record.
type Key struct {
	ProductID   id.ID
	WarehouseID id.ID
}

// less orders keys by warehouse, then product. Every multi-row operation
// locks records in this order.
func (k Key) less(o Key) bool {
	if c := id.Compare(k.WarehouseID, o.WarehouseID); c != 0 {
		return c < 0
	}
	return id.Compare(k.ProductID, o.ProductID) < 0
}

// Record holds the three primitive counters. Available is always derived.
type Record struct {
	ProductID   id.ID          `db:"product_id"`
	WarehouseID id.ID          `db:"warehouse_id"`
	Quantity    types.Quantity `db:"quantity"`
	Reserved    types.Quantity `db:"reserved_quantity"`
	Damaged     types.Quantity `db:"damaged_quantity"`
	BinLocation string         `db:"bin_location"`
	Version     int64          `db:"version"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

// Key returns the record's identity.
func (r Record) Key() Key {
	return Key{ProductID: r.ProductID, WarehouseID: r.WarehouseID}
}

// Available is on-hand stock not reserved and not damaged.
func (r Record) Available() types.Quantity {
	return r.Quantity - r.Reserved - r.Damaged
}

// Valid reports whether the ledger invariants hold.
func (r Record) Valid() bool {
	return r.Quantity >= 0 && r.Reserved >= 0 && r.Damaged >= 0 &&
		r.Reserved <= r.Quantity && r.Damaged <= r.Quantity && r.Available() >= 0
}

// Snapshot returns the externally visible state.
func (r Record) Snapshot() Snapshot {
	return Snapshot{
		ProductID:         r.ProductID,
		WarehouseID:       r.WarehouseID,
		Quantity:          r.Quantity,
		ReservedQuantity:  r.Reserved,
		DamagedQuantity:   r.Damaged,
		AvailableQuantity: r.Available(),
	}
}

// Snapshot is what every ledger operation returns.
type Snapshot struct {
	ProductID         id.ID          `json:"product_id"`
	WarehouseID       id.ID          `json:"warehouse_id"`
	Quantity          types.Quantity `json:"quantity"`
	ReservedQuantity  types.Quantity `json:"reserved_quantity"`
	DamagedQuantity   types.Quantity `json:"damaged_quantity"`
	AvailableQuantity types.Quantity `json:"available_quantity"`
}

// Reference points at the document that caused a movement.
type Reference struct {
	Type   string `json:"type,omitempty"`
	ID     *id.ID `json:"id,omitempty"`
	Number string `json:"number,omitempty"`
}

// Movement is one append-only ledger entry. PreviousQuantity and
// NewQuantity describe the counter the movement type affects: reserved for
// RESERVE and RELEASE, damaged for DAMAGE, on-hand otherwise.
type Movement struct {
	ID               id.ID          `db:"id" json:"id"`
	ProductID        id.ID          `db:"product_id" json:"product_id"`
	WarehouseID      id.ID          `db:"warehouse_id" json:"warehouse_id"`
	Type             MovementType   `db:"movement_type" json:"movement_type"`
	QuantityChange   types.Quantity `db:"quantity_change" json:"quantity_change"`
	PreviousQuantity types.Quantity `db:"previous_quantity" json:"previous_quantity"`
	NewQuantity      types.Quantity `db:"new_quantity" json:"new_quantity"`
	Reason           string         `db:"reason" json:"reason,omitempty"`
	ActorID          string         `db:"actor_id" json:"actor_id"`
	ReferenceType    string         `db:"reference_type" json:"reference_type,omitempty"`
	ReferenceID      *id.ID         `db:"reference_id" json:"reference_id,omitempty"`
	ReferenceNumber  string         `db:"reference_number" json:"reference_number,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
}

// BalanceFilter narrows ListByWarehouse.
type BalanceFilter struct {
	ProductIDs  []id.ID
	ExcludeZero bool
	Limit       int
	Offset      int
}

// MovementFilter narrows ListMovements.
type MovementFilter struct {
	ProductID   *id.ID
	WarehouseID *id.ID
	Type        *MovementType
	ReferenceID *id.ID
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
}
