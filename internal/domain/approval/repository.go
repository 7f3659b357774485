package approval

import (
	"context"
	"strings"

	"docflow/internal/core/id"
)

// RuleSource provides approval configuration.
type RuleSource interface {
	// RulesFor returns all rules for a document type, active or not.
	RulesFor(ctx context.Context, documentType string) ([]Rule, error)
	// Levels returns the levels with the given IDs, keyed by ID.
	Levels(ctx context.Context, levelIDs []id.ID) (map[id.ID]Level, error)
}

// Repository persists approval rows. Every method joins the transaction in ctx.
type Repository interface {
	Create(ctx context.Context, a *Approval) error
	Update(ctx context.Context, a *Approval) error
	Get(ctx context.Context, approvalID id.ID) (*Approval, error)
	// GetForUpdate returns the row locked until the transaction ends.
	GetForUpdate(ctx context.Context, approvalID id.ID) (*Approval, error)
	// ListByApprovable returns every row of a document, ordered by round and level.
	ListByApprovable(ctx context.Context, approvableType string, approvableID id.ID) ([]*Approval, error)
	// LockApprovable serializes submissions, decisions and cancellations for
	// one document. Take it before any row lock.
	LockApprovable(ctx context.Context, approvableType string, approvableID id.ID) error
}

// ApproverDirectory finds the user who should act on a level.
type ApproverDirectory interface {
	// ApproverFor returns "" when nobody is assigned to role.
	ApproverFor(ctx context.Context, role string, doc Document) (string, error)
}

// StaticApprovers assigns one user per role. A role missing from the map is
// looked up again in lower case.
type StaticApprovers map[string]string

// ApproverFor implements ApproverDirectory.
func (s StaticApprovers) ApproverFor(_ context.Context, role string, _ Document) (string, error) {
	if user, ok := s[role]; ok {
		return user, nil
	}
	return s[strings.ToLower(role)], nil
}
