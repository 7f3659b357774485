// Package transfer implements warehouse transfer documents: stock leaving
// one warehouse and arriving at another.
//
//	REQUESTED → APPROVED → IN_TRANSIT → RECEIVED
//	REQUESTED, APPROVED → CANCELLED
package transfer

import (
	"time"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/core/statemachine"
	"docflow/internal/core/types"
)

// Status of a transfer.
type Status string

const (
	StatusRequested Status = "REQUESTED"
	StatusApproved  Status = "APPROVED"
	StatusInTransit Status = "IN_TRANSIT"
	StatusReceived  Status = "RECEIVED"
	StatusCancelled Status = "CANCELLED"
)

// Lifecycle is the transition table for transfers.
var Lifecycle = statemachine.New("warehouse_transfer", StatusRequested, map[Status][]Status{
	StatusRequested: {StatusApproved, StatusCancelled},
	StatusApproved:  {StatusInTransit, StatusCancelled},
	StatusInTransit: {StatusReceived},
})

// PermissionApprove must be held for the source warehouse to approve a transfer.
const PermissionApprove = "transfer:approve"

// EntityType is used for movement references and audit entries.
const EntityType = "warehouse_transfer"

// FlagPartialReceipt marks the audit entry of a receipt with a shortfall.
const FlagPartialReceipt = "partial_receipt"

// Item is one product line.
type Item struct {
	ID                id.ID          `db:"id" json:"id"`
	TransferID        id.ID          `db:"transfer_id" json:"transfer_id"`
	LineNo            int            `db:"line_no" json:"line_no"`
	ProductID         id.ID          `db:"product_id" json:"product_id"`
	QuantityRequested types.Quantity `db:"quantity_requested" json:"quantity_requested"`
	QuantityDelivered types.Quantity `db:"quantity_delivered" json:"quantity_delivered"`
	QuantityReceived  types.Quantity `db:"quantity_received" json:"quantity_received"`
}

// Shortfall is what left the source but never arrived.
func (i Item) Shortfall() types.Quantity {
	return i.QuantityDelivered - i.QuantityReceived
}

// Transfer is the document header with its items.
type Transfer struct {
	ID                     id.ID      `db:"id" json:"id"`
	Number                 string     `db:"number" json:"number"`
	SourceWarehouseID      id.ID      `db:"source_warehouse_id" json:"source_warehouse_id"`
	DestinationWarehouseID id.ID      `db:"destination_warehouse_id" json:"destination_warehouse_id"`
	Status                 Status     `db:"status" json:"status"`
	Notes                  string     `db:"notes" json:"notes,omitempty"`
	RequestedBy            string     `db:"requested_by" json:"requested_by"`
	ApprovedBy             *string    `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt             *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	DeliveredAt            *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	ReceivedAt             *time.Time `db:"received_at" json:"received_at,omitempty"`
	CancelledAt            *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancelReason           string     `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt              time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time  `db:"updated_at" json:"updated_at"`
	Version                int        `db:"version" json:"version"`

	Items []Item `db:"-" json:"items"`
}

// HasShortfall reports whether any item was received short.
func (t *Transfer) HasShortfall() bool {
	for _, it := range t.Items {
		if it.Shortfall() > 0 {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (t *Transfer) Clone() *Transfer {
	c := *t
	c.Items = append([]Item(nil), t.Items...)
	return &c
}

// Validate checks header and lines of a new transfer.
func (t *Transfer) Validate() error {
	if id.IsNil(t.SourceWarehouseID) || id.IsNil(t.DestinationWarehouseID) {
		return apperror.NewValidation("source and destination warehouses are required")
	}
	if t.SourceWarehouseID == t.DestinationWarehouseID {
		return apperror.NewValidation("source and destination warehouses must differ")
	}
	if len(t.Items) == 0 {
		return apperror.NewValidation("transfer must have at least one item")
	}
	seen := make(map[id.ID]bool, len(t.Items))
	for i, it := range t.Items {
		if id.IsNil(it.ProductID) {
			return apperror.NewValidation("product is required").WithDetail("line", i+1)
		}
		if seen[it.ProductID] {
			return apperror.NewValidation("product appears twice").WithDetail("line", i+1)
		}
		seen[it.ProductID] = true
		if !it.QuantityRequested.IsPositive() {
			return apperror.NewValidation("requested quantity must be positive").WithDetail("line", i+1)
		}
	}
	return nil
}

// Line sets a quantity for one product in Deliver and Receive.
type Line struct {
	ProductID id.ID          `json:"product_id"`
	Quantity  types.Quantity `json:"quantity"`
}

// ListFilter narrows List.
type ListFilter struct {
	WarehouseID *id.ID // source or destination
	Status      *Status
	Limit       int
	Offset      int
}
