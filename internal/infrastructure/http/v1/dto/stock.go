package dto

import (
	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/core/types"
	"docflow/internal/domain/registers/stock"
)

// StockKeyRequest identifies a (product, warehouse) pair.
type StockKeyRequest struct {
	ProductID   id.ID `json:"product_id"`
	WarehouseID id.ID `json:"warehouse_id"`
}

// Validate requires both ids.
func (r StockKeyRequest) Validate() error {
	if id.IsNil(r.ProductID) {
		return apperror.NewValidation("product_id is required").WithDetail("field", "product_id")
	}
	if id.IsNil(r.WarehouseID) {
		return apperror.NewValidation("warehouse_id is required").WithDetail("field", "warehouse_id")
	}
	return nil
}

// StockOperationRequest is the body of every single-line ledger operation.
// Quantity is a signed delta for adjust and positive otherwise; the ledger
// enforces the sign.
type StockOperationRequest struct {
	StockKeyRequest
	Quantity  types.Quantity  `json:"quantity"`
	Reason    string          `json:"reason,omitempty"`
	Reference stock.Reference `json:"reference"`
}

// DriftResponse is the result of a reconcile.
type DriftResponse struct {
	ProductID   id.ID          `json:"product_id"`
	WarehouseID id.ID          `json:"warehouse_id"`
	Stored      stock.Counters `json:"stored"`
	Folded      stock.Counters `json:"folded"`
	Movements   int            `json:"movements"`
	Consistent  bool           `json:"consistent"`
}

// FromDrift converts a ledger drift.
func FromDrift(d stock.Drift) DriftResponse {
	return DriftResponse{
		ProductID:   d.Key.ProductID,
		WarehouseID: d.Key.WarehouseID,
		Stored:      d.Stored,
		Folded:      d.Folded,
		Movements:   d.Movements,
		Consistent:  d.Consistent(),
	}
}
