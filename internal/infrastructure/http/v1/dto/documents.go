package dto

import (
	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/domain/documents/delivery"
	"docflow/internal/domain/documents/transfer"
)

// TransferLinesRequest sets per-line quantities on deliver and receive.
// Omitted lines take their default quantity.
type TransferLinesRequest struct {
	Lines []transfer.Line `json:"lines"`
}

// ShipRequest ships a delivery order, optionally updating carrier details.
type ShipRequest struct {
	Lines    []delivery.Line    `json:"lines"`
	Shipping *delivery.Shipping `json:"shipping,omitempty"`
}

// DeliveryLinesRequest confirms delivered quantities.
type DeliveryLinesRequest struct {
	Lines []delivery.Line `json:"lines"`
}

// AttachPickingListRequest links a picking list to a delivery order.
type AttachPickingListRequest struct {
	PickingListID id.ID `json:"picking_list_id"`
}

// Validate requires the picking list id.
func (r AttachPickingListRequest) Validate() error {
	if id.IsNil(r.PickingListID) {
		return apperror.NewValidation("picking_list_id is required").WithDetail("field", "picking_list_id")
	}
	return nil
}

// CreatePickingListRequest opens a picking list for a warehouse.
type CreatePickingListRequest struct {
	WarehouseID id.ID `json:"warehouse_id"`
}

// PickingStatusRequest moves a picking list to a new status.
type PickingStatusRequest struct {
	Status delivery.PickingStatus `json:"status"`
}
