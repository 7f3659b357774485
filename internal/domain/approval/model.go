// Package approval resolves which approval chain a document needs and
// advances that chain one level at a time.
package approval

import (
	"time"

	"docflow/internal/core/id"
	"docflow/internal/core/types"
)

// Status is the state of one approval row.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
)

// WorkflowStatus is the state of the whole chain for a document.
type WorkflowStatus string

const (
	WorkflowInProgress WorkflowStatus = "IN_PROGRESS"
	WorkflowApproved   WorkflowStatus = "APPROVED"
	WorkflowRejected   WorkflowStatus = "REJECTED"
	WorkflowCancelled  WorkflowStatus = "CANCELLED"
)

// IsTerminal reports whether no further decision is possible.
func (w WorkflowStatus) IsTerminal() bool {
	return w != WorkflowInProgress
}

// Decision is the outcome an approver submits.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// Level is one approving role, optionally limited to an amount band.
type Level struct {
	ID        id.ID        `db:"id" json:"id"`
	Name      string       `db:"name" json:"name"`
	Role      string       `db:"role" json:"role"`
	MinAmount *types.Money `db:"min_amount" json:"min_amount,omitempty"`
	MaxAmount *types.Money `db:"max_amount" json:"max_amount,omitempty"`
	IsActive  bool         `db:"is_active" json:"is_active"`
}

// Covers reports whether amount falls into the level's band. A level
// without bounds covers every amount.
func (l Level) Covers(amount types.Money) bool {
	if l.MinAmount != nil && amount.LessThan(*l.MinAmount) {
		return false
	}
	if l.MaxAmount != nil && !amount.LessThan(*l.MaxAmount) {
		return false
	}
	return true
}

// Step is one entry of a resolved chain, snapshotted onto every approval row.
type Step struct {
	LevelID id.ID  `json:"level_id"`
	Order   int    `json:"order"`
	Name    string `json:"name"`
	Role    string `json:"role"`
}

// Chain is the result of resolving a document against the rules.
type Chain struct {
	RuleID *id.ID `json:"rule_id,omitempty"`
	Steps  []Step `json:"steps"`
}

// Required reports whether the document needs any approval at all.
func (c Chain) Required() bool {
	return len(c.Steps) > 0
}

// Document is what gets submitted for approval.
type Document struct {
	Type        string
	ID          id.ID
	Number      string
	Amount      types.Money
	WarehouseID *id.ID
	// Attributes are exposed to rule conditions as `attributes`.
	Attributes map[string]any
}

// Approval is one row per (document, level) of a chain.
type Approval struct {
	ID               id.ID          `db:"id" json:"id"`
	ApprovableType   string         `db:"approvable_type" json:"approvable_type"`
	ApprovableID     id.ID          `db:"approvable_id" json:"approvable_id"`
	ApprovableNumber string         `db:"approvable_number" json:"approvable_number,omitempty"`
	Amount           types.Money    `db:"amount" json:"amount"`
	Round            int            `db:"round" json:"round"`
	RuleID           *id.ID         `db:"rule_id" json:"rule_id,omitempty"`
	LevelID          id.ID          `db:"level_id" json:"level_id"`
	LevelOrder       int            `db:"level_order" json:"level_order"`
	Role             string         `db:"role" json:"role"`
	Status           Status         `db:"status" json:"status"`
	ApproverID       *string        `db:"approver_id" json:"approver_id,omitempty"`
	NextApprover     *string        `db:"next_approver" json:"next_approver,omitempty"`
	ApprovalChain    []Step         `db:"approval_chain" json:"approval_chain"`
	WorkflowStatus   WorkflowStatus `db:"workflow_status" json:"workflow_status"`
	Notes            string         `db:"notes" json:"notes,omitempty"`
	DecidedAt        *time.Time     `db:"decided_at" json:"decided_at,omitempty"`
	FinalApprovalAt  *time.Time     `db:"final_approval_at" json:"final_approval_at,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
}

// IsLastLevel reports whether no step follows this row's level.
func (a *Approval) IsLastLevel() bool {
	return a.LevelOrder >= len(a.ApprovalChain)
}

// Clone returns a deep copy.
func (a *Approval) Clone() *Approval {
	c := *a
	c.ApprovalChain = append([]Step(nil), a.ApprovalChain...)
	return &c
}
