package dto

import "docflow/internal/domain/catalogs/warehouse"

// CreateWarehouseRequest registers a warehouse.
type CreateWarehouseRequest struct {
	Code    string         `json:"code"`
	Name    string         `json:"name"`
	Type    warehouse.Type `json:"type"`
	Address *string        `json:"address,omitempty"`
}

// ToWarehouse builds the entity. Validation happens in the service.
func (r CreateWarehouseRequest) ToWarehouse() *warehouse.Warehouse {
	if r.Type == "" {
		r.Type = warehouse.TypeMain
	}
	w := warehouse.New(r.Code, r.Name, r.Type)
	w.Address = r.Address
	return w
}
