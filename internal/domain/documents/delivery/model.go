// Package delivery implements customer delivery orders.
//
//	PREPARING → READY_TO_SHIP → SHIPPED → DELIVERED
//	PREPARING, READY_TO_SHIP → CANCELLED
package delivery

import (
	"strings"
	"time"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/core/statemachine"
	"docflow/internal/core/types"
)

// Status of a delivery order.
type Status string

const (
	StatusPreparing   Status = "PREPARING"
	StatusReadyToShip Status = "READY_TO_SHIP"
	StatusShipped     Status = "SHIPPED"
	StatusDelivered   Status = "DELIVERED"
	StatusCancelled   Status = "CANCELLED"
)

// Lifecycle is the transition table for delivery orders.
var Lifecycle = statemachine.New("delivery_order", StatusPreparing, map[Status][]Status{
	StatusPreparing:   {StatusReadyToShip, StatusCancelled},
	StatusReadyToShip: {StatusShipped, StatusCancelled},
	StatusShipped:     {StatusDelivered},
})

// ItemStatus of one delivery line.
type ItemStatus string

const (
	ItemPending   ItemStatus = "PENDING"
	ItemShipped   ItemStatus = "SHIPPED"
	ItemDelivered ItemStatus = "DELIVERED"
	ItemPartial   ItemStatus = "PARTIAL"
)

// EntityType is used for movement references and audit entries.
const EntityType = "delivery_order"

// PickingStatus of a picking list.
type PickingStatus string

const (
	PickingPending    PickingStatus = "PENDING"
	PickingInProgress PickingStatus = "IN_PROGRESS"
	PickingCompleted  PickingStatus = "COMPLETED"
	PickingCancelled  PickingStatus = "CANCELLED"
)

// PickingList is the warehouse picking document a delivery waits for.
type PickingList struct {
	ID          id.ID         `db:"id" json:"id"`
	Number      string        `db:"number" json:"number"`
	WarehouseID id.ID         `db:"warehouse_id" json:"warehouse_id"`
	Status      PickingStatus `db:"status" json:"status"`
	CompletedAt *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
}

// Shipping holds carrier details. Method is required before shipping.
type Shipping struct {
	Method         string `db:"shipping_method" json:"method"`
	Carrier        string `db:"carrier" json:"carrier,omitempty"`
	TrackingNumber string `db:"tracking_number" json:"tracking_number,omitempty"`
}

// Item is one product line.
type Item struct {
	ID                id.ID          `db:"id" json:"id"`
	OrderID           id.ID          `db:"delivery_order_id" json:"delivery_order_id"`
	LineNo            int            `db:"line_no" json:"line_no"`
	ProductID         id.ID          `db:"product_id" json:"product_id"`
	Quantity          types.Quantity `db:"quantity" json:"quantity"`
	QuantityShipped   types.Quantity `db:"quantity_shipped" json:"quantity_shipped"`
	QuantityDelivered types.Quantity `db:"quantity_delivered" json:"quantity_delivered"`
	Status            ItemStatus     `db:"status" json:"status"`
}

// Order is the delivery order header with items.
type Order struct {
	ID               id.ID      `db:"id" json:"id"`
	Number           string     `db:"number" json:"number"`
	WarehouseID      id.ID      `db:"warehouse_id" json:"warehouse_id"`
	SalesOrderID     *id.ID     `db:"sales_order_id" json:"sales_order_id,omitempty"`
	SalesOrderNumber string     `db:"sales_order_number" json:"sales_order_number,omitempty"`
	PickingListID    *id.ID     `db:"picking_list_id" json:"picking_list_id,omitempty"`
	ShippingAddress  string     `db:"shipping_address" json:"shipping_address"`
	Shipping         Shipping   `db:"-" json:"shipping"`
	Status           Status     `db:"status" json:"status"`
	ReservedStock    bool       `db:"reserved_stock" json:"reserved_stock"`
	ShippedAt        *time.Time `db:"shipped_at" json:"shipped_at,omitempty"`
	DeliveredAt      *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	CancelledAt      *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancelReason     string     `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedBy        string     `db:"created_by" json:"created_by"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
	Version          int        `db:"version" json:"version"`

	Items []Item `db:"-" json:"items"`
}

// Clone returns a deep copy.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	return &c
}

// Validate checks a new order.
func (o *Order) Validate() error {
	if id.IsNil(o.WarehouseID) {
		return apperror.NewValidation("warehouse is required").WithDetail("field", "warehouse_id")
	}
	if strings.TrimSpace(o.ShippingAddress) == "" {
		return apperror.NewValidation("shipping address is required").WithDetail("field", "shipping_address")
	}
	if len(o.Items) == 0 {
		return apperror.NewValidation("delivery order must have at least one item")
	}
	seen := make(map[id.ID]bool, len(o.Items))
	for i, it := range o.Items {
		if id.IsNil(it.ProductID) {
			return apperror.NewValidation("product is required").WithDetail("line", i+1)
		}
		if seen[it.ProductID] {
			return apperror.NewValidation("product appears twice").WithDetail("line", i+1)
		}
		seen[it.ProductID] = true
		if !it.Quantity.IsPositive() {
			return apperror.NewValidation("quantity must be positive").WithDetail("line", i+1)
		}
	}
	return nil
}

// Line sets a quantity for one product in Ship and Deliver.
type Line struct {
	ProductID id.ID          `json:"product_id"`
	Quantity  types.Quantity `json:"quantity"`
}

// ListFilter narrows List.
type ListFilter struct {
	WarehouseID *id.ID
	Status      *Status
	Limit       int
	Offset      int
}
