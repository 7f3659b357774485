package dto

import (
	"fmt"
	"strings"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/core/numerator"
)

// NextNumberRequest asks for the next number of a document type.
// Without a warehouse the number goes to the GEN namespace.
type NextNumberRequest struct {
	DocumentType string `json:"document_type"`
	WarehouseID  *id.ID `json:"warehouse_id,omitempty"`
}

// Validate normalizes the document type.
func (r *NextNumberRequest) Validate() error {
	r.DocumentType = strings.ToUpper(strings.TrimSpace(r.DocumentType))
	if r.DocumentType == "" {
		return apperror.NewValidation("document_type is required").WithDetail("field", "document_type")
	}
	if r.WarehouseID != nil && id.IsNil(*r.WarehouseID) {
		r.WarehouseID = nil
	}
	return nil
}

// Type returns the request's document type.
func (r NextNumberRequest) Type() numerator.DocumentType {
	return numerator.DocumentType(r.DocumentType)
}

// NumberResponse returns an allocated number together with its parsed parts.
type NumberResponse struct {
	Number        string `json:"number"`
	Prefix        string `json:"prefix"`
	Sequence      int64  `json:"sequence"`
	WarehouseCode string `json:"warehouse_code"`
	Period        string `json:"period"`
}

// FromNumber builds a NumberResponse. A number that does not parse is
// returned without parts.
func FromNumber(s string) NumberResponse {
	resp := NumberResponse{Number: s}
	n, err := numerator.Parse(s)
	if err != nil {
		return resp
	}
	resp.Prefix = n.Prefix
	resp.Sequence = n.Sequence
	resp.WarehouseCode = n.WarehouseCode
	resp.Period = fmt.Sprintf("%02d-%04d", int(n.Month), n.Year)
	return resp
}
