// Package warehouse is the directory of physical warehouses. A warehouse's
// code is printed in every document number allocated for it.
package warehouse

import (
	"strings"
	"time"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/core/numerator"
)

// Type is the warehouse category.
type Type string

const (
	TypeMain         Type = "main"
	TypeDistribution Type = "distribution"
	TypeRetail       Type = "retail"
	TypeTransit      Type = "transit"
)

// Warehouse is a storage location.
type Warehouse struct {
	ID        id.ID     `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Type      Type      `db:"type" json:"type"`
	Address   *string   `db:"address" json:"address,omitempty"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// New creates an active warehouse with a fresh ID.
func New(code, name string, t Type) *Warehouse {
	return &Warehouse{
		ID:        id.New(),
		Code:      strings.ToUpper(strings.TrimSpace(code)),
		Name:      strings.TrimSpace(name),
		Type:      t,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate checks the code format and required fields.
func (w *Warehouse) Validate() error {
	if !numerator.ValidWarehouseCode(w.Code) {
		return apperror.NewValidation("warehouse code must be 3-4 uppercase letters and not GEN").
			WithDetail("field", "code").
			WithDetail("value", w.Code)
	}
	if w.Name == "" {
		return apperror.NewValidation("warehouse name is required").WithDetail("field", "name")
	}
	switch w.Type {
	case TypeMain, TypeDistribution, TypeRetail, TypeTransit:
	default:
		return apperror.NewValidation("invalid warehouse type").
			WithDetail("field", "type").
			WithDetail("value", string(w.Type))
	}
	return nil
}
