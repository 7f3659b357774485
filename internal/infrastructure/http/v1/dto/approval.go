package dto

import (
	"strings"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/core/types"
	"docflow/internal/domain/approval"
)

// SubmitRequest submits a document for approval.
type SubmitRequest struct {
	DocumentType string         `json:"document_type"`
	DocumentID   id.ID          `json:"document_id"`
	Number       string         `json:"number,omitempty"`
	Amount       types.Money    `json:"amount"`
	WarehouseID  *id.ID         `json:"warehouse_id,omitempty"`
	Attributes   map[string]any `json:"attributes,omitempty"`
}

// ToDocument converts the request into the core's view of a document.
func (r SubmitRequest) ToDocument() approval.Document {
	return approval.Document{
		Type:        strings.ToUpper(strings.TrimSpace(r.DocumentType)),
		ID:          r.DocumentID,
		Number:      r.Number,
		Amount:      r.Amount,
		WarehouseID: r.WarehouseID,
		Attributes:  r.Attributes,
	}
}

// AdvanceRequest records a decision on a pending approval.
type AdvanceRequest struct {
	Decision approval.Decision `json:"decision"`
	Notes    string            `json:"notes,omitempty"`
}

// Validate accepts APPROVE or REJECT in any case.
func (r *AdvanceRequest) Validate() error {
	r.Decision = approval.Decision(strings.ToUpper(string(r.Decision)))
	switch r.Decision {
	case approval.DecisionApprove, approval.DecisionReject:
		return nil
	}
	return apperror.NewValidation("decision must be APPROVE or REJECT").WithDetail("field", "decision")
}

// ApprovableRequest identifies a submitted document.
type ApprovableRequest struct {
	ApprovableType string `json:"approvable_type"`
	ApprovableID   id.ID  `json:"approvable_id"`
	Reason         string `json:"reason,omitempty"`
}

// Validate requires type and id.
func (r *ApprovableRequest) Validate() error {
	r.ApprovableType = strings.ToUpper(strings.TrimSpace(r.ApprovableType))
	if r.ApprovableType == "" || id.IsNil(r.ApprovableID) {
		return apperror.NewValidation("approvable_type and approvable_id are required")
	}
	return nil
}

// StatusResponse lists every approval row of a document.
type StatusResponse struct {
	ApprovableType string               `json:"approvable_type"`
	ApprovableID   id.ID                `json:"approvable_id"`
	Approved       bool                 `json:"approved"`
	Approvals      []*approval.Approval `json:"approvals"`
}
