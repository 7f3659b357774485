package approval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"docflow/internal/core/apperror"
	appctx "docflow/internal/core/context"
	"docflow/internal/core/id"
	"docflow/internal/core/tx"
	"docflow/internal/domain/audit"
	"docflow/pkg/logger"
)

var tracer = otel.Tracer("docflow/approval")

const auditEntity = "approval"

// Service drives approval chains.
type Service struct {
	resolver  *Resolver
	repo      Repository
	approvers ApproverDirectory
	audit     audit.Recorder
	txm       tx.Manager
	now       func() time.Time
}

// NewService creates a chain service. approvers may be nil.
func NewService(resolver *Resolver, repo Repository, approvers ApproverDirectory, recorder audit.Recorder, txm tx.Manager) *Service {
	return &Service{
		resolver:  resolver,
		repo:      repo,
		approvers: approvers,
		audit:     recorder,
		txm:       txm,
		now:       time.Now,
	}
}

// SubmitResult tells the caller whether the document now waits for approval.
type SubmitResult struct {
	Required bool      `json:"required"`
	Chain    Chain     `json:"chain"`
	Pending  *Approval `json:"pending,omitempty"`
}

// Submit resolves the chain for doc and opens a PENDING row at its first
// level. A document whose chain is empty needs no approval and gets no rows.
// A document with a workflow in progress is rejected with CONFLICT; an
// approved document with ALREADY_RESOLVED. After a rejection or cancellation
// the document may be submitted again, starting a new round.
func (s *Service) Submit(ctx context.Context, doc Document) (SubmitResult, error) {
	if doc.Type == "" || id.IsNil(doc.ID) {
		return SubmitResult{}, apperror.NewValidation("document type and id are required")
	}
	if doc.Amount.IsNegative() {
		return SubmitResult{}, apperror.NewValidation("amount must not be negative")
	}

	ctx, span := tracer.Start(ctx, "approval.Submit", trace.WithAttributes(
		attribute.String("approval.document_type", doc.Type),
		attribute.String("approval.document_id", doc.ID.String()),
	))
	defer span.End()

	var result SubmitResult
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.LockApprovable(ctx, doc.Type, doc.ID); err != nil {
			return err
		}
		existing, err := s.repo.ListByApprovable(ctx, doc.Type, doc.ID)
		if err != nil {
			return fmt.Errorf("list approvals: %w", err)
		}
		round := 1
		if n := len(existing); n > 0 {
			last := existing[n-1]
			switch last.WorkflowStatus {
			case WorkflowInProgress:
				return apperror.NewConflict("document already has an approval in progress").
					WithDetail("approvable_id", doc.ID.String())
			case WorkflowApproved:
				return apperror.NewAlreadyResolved(doc.ID.String(), string(last.WorkflowStatus))
			}
			round = last.Round + 1
		}

		chain, err := s.resolver.Resolve(ctx, doc)
		if err != nil {
			return err
		}
		result.Chain = chain
		if !chain.Required() {
			return nil
		}

		first := chain.Steps[0]
		pending := &Approval{
			ID:               id.New(),
			ApprovableType:   doc.Type,
			ApprovableID:     doc.ID,
			ApprovableNumber: doc.Number,
			Amount:           doc.Amount,
			Round:            round,
			RuleID:           chain.RuleID,
			LevelID:          first.LevelID,
			LevelOrder:       first.Order,
			Role:             first.Role,
			Status:           StatusPending,
			ApprovalChain:    chain.Steps,
			WorkflowStatus:   WorkflowInProgress,
			CreatedAt:        s.now().UTC(),
		}
		if pending.NextApprover, err = s.approverFor(ctx, first.Role, doc); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, pending); err != nil {
			return fmt.Errorf("create approval: %w", err)
		}
		if err := s.record(ctx, pending, audit.ActionCreate, map[string]any{
			"level_order": pending.LevelOrder,
			"round":       round,
			"steps":       len(chain.Steps),
		}); err != nil {
			return err
		}
		result.Required = true
		result.Pending = pending
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return SubmitResult{}, err
	}

	if result.Required {
		logger.Info(ctx, "approval submitted",
			"document_type", doc.Type,
			"document_id", doc.ID,
			"levels", len(result.Chain.Steps),
		)
	}
	return result, nil
}

// AdvanceResult describes the chain after a decision.
type AdvanceResult struct {
	Decided        *Approval      `json:"decided"`
	Next           *Approval      `json:"next,omitempty"`
	WorkflowStatus WorkflowStatus `json:"workflow_status"`
}

// Advance records a decision on a PENDING approval row. Approving the last
// level completes the workflow; approving any other level opens a PENDING
// row at the next level. Rejecting requires notes and ends the workflow at
// once. A row whose workflow is already terminal, or that was already
// decided, fails with ALREADY_RESOLVED.
func (s *Service) Advance(ctx context.Context, approvalID id.ID, decision Decision, notes string) (AdvanceResult, error) {
	notes = strings.TrimSpace(notes)
	switch decision {
	case DecisionApprove:
	case DecisionReject:
		if notes == "" {
			return AdvanceResult{}, apperror.NewValidation("rejection requires a reason").WithDetail("field", "notes")
		}
	default:
		return AdvanceResult{}, apperror.NewValidation(fmt.Sprintf("unknown decision %q", decision))
	}

	ctx, span := tracer.Start(ctx, "approval.Advance", trace.WithAttributes(
		attribute.String("approval.id", approvalID.String()),
		attribute.String("approval.decision", string(decision)),
	))
	defer span.End()

	var result AdvanceResult
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		peek, err := s.repo.Get(ctx, approvalID)
		if err != nil {
			return err
		}
		if err := s.repo.LockApprovable(ctx, peek.ApprovableType, peek.ApprovableID); err != nil {
			return err
		}
		current, err := s.repo.GetForUpdate(ctx, approvalID)
		if err != nil {
			return err
		}
		if current.WorkflowStatus.IsTerminal() || current.Status != StatusPending {
			return apperror.NewAlreadyResolved(current.ApprovableID.String(), string(current.WorkflowStatus))
		}

		actor := appctx.GetActor(ctx)
		if !actor.HasRole(current.Role) {
			return apperror.NewForbidden("actor does not hold the role required at this level").
				WithDetail("required_role", current.Role).
				WithDetail("level_order", current.LevelOrder)
		}

		now := s.now().UTC()
		actorID := appctx.GetActorID(ctx)
		current.ApproverID = &actorID
		current.Notes = notes
		current.DecidedAt = &now

		if decision == DecisionReject {
			current.Status = StatusRejected
			if err := s.finish(ctx, current, WorkflowRejected, nil); err != nil {
				return err
			}
		} else {
			current.Status = StatusApproved
			if current.IsLastLevel() {
				if err := s.finish(ctx, current, WorkflowApproved, &now); err != nil {
					return err
				}
			} else {
				if err := s.repo.Update(ctx, current); err != nil {
					return fmt.Errorf("update approval: %w", err)
				}
				next, err := s.openNext(ctx, current, now)
				if err != nil {
					return err
				}
				result.Next = next
			}
		}

		if err := s.record(ctx, current, audit.ActionDecision, map[string]any{
			"decision":        decision,
			"level_order":     current.LevelOrder,
			"workflow_status": current.WorkflowStatus,
			"notes":           notes,
		}); err != nil {
			return err
		}
		result.Decided = current
		result.WorkflowStatus = current.WorkflowStatus
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return AdvanceResult{}, err
	}

	logger.Info(ctx, "approval decided",
		"approval_id", approvalID,
		"decision", decision,
		"level_order", result.Decided.LevelOrder,
		"workflow_status", result.WorkflowStatus,
	)
	return result, nil
}

// Cancel withdraws a document from approval: the pending row and the
// workflow become CANCELLED.
func (s *Service) Cancel(ctx context.Context, approvableType string, approvableID id.ID, reason string) error {
	return s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.LockApprovable(ctx, approvableType, approvableID); err != nil {
			return err
		}
		rows, err := s.repo.ListByApprovable(ctx, approvableType, approvableID)
		if err != nil {
			return fmt.Errorf("list approvals: %w", err)
		}
		var pending *Approval
		for _, r := range rows {
			if r.Status == StatusPending {
				pending = r
			}
		}
		if pending == nil {
			status := "NONE"
			if n := len(rows); n > 0 {
				status = string(rows[n-1].WorkflowStatus)
			}
			return apperror.NewAlreadyResolved(approvableID.String(), status)
		}

		locked, err := s.repo.GetForUpdate(ctx, pending.ID)
		if err != nil {
			return err
		}
		if locked.Status != StatusPending || locked.WorkflowStatus != WorkflowInProgress {
			return apperror.NewAlreadyResolved(approvableID.String(), string(locked.WorkflowStatus))
		}
		now := s.now().UTC()
		locked.Status = StatusCancelled
		locked.Notes = strings.TrimSpace(reason)
		locked.DecidedAt = &now
		if err := s.finish(ctx, locked, WorkflowCancelled, nil); err != nil {
			return err
		}
		return s.record(ctx, locked, audit.ActionDecision, map[string]any{
			"decision":        "CANCEL",
			"workflow_status": WorkflowCancelled,
			"notes":           locked.Notes,
		})
	})
}

// Status returns the rows of the latest round of a document.
func (s *Service) Status(ctx context.Context, approvableType string, approvableID id.ID) ([]*Approval, error) {
	rows, err := s.repo.ListByApprovable(ctx, approvableType, approvableID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	round := rows[len(rows)-1].Round
	var out []*Approval
	for _, r := range rows {
		if r.Round == round {
			out = append(out, r)
		}
	}
	return out, nil
}

// IsApproved reports whether the latest round of a document was approved.
func (s *Service) IsApproved(ctx context.Context, approvableType string, approvableID id.ID) (bool, error) {
	rows, err := s.Status(ctx, approvableType, approvableID)
	if err != nil || len(rows) == 0 {
		return false, err
	}
	return rows[len(rows)-1].WorkflowStatus == WorkflowApproved, nil
}

// finish stamps the terminal workflow status on every row of the round.
func (s *Service) finish(ctx context.Context, current *Approval, status WorkflowStatus, finalAt *time.Time) error {
	current.WorkflowStatus = status
	current.FinalApprovalAt = finalAt
	if err := s.repo.Update(ctx, current); err != nil {
		return fmt.Errorf("update approval: %w", err)
	}

	rows, err := s.repo.ListByApprovable(ctx, current.ApprovableType, current.ApprovableID)
	if err != nil {
		return fmt.Errorf("list approvals: %w", err)
	}
	for _, r := range rows {
		if r.Round != current.Round || r.ID == current.ID {
			continue
		}
		r.WorkflowStatus = status
		r.FinalApprovalAt = finalAt
		if err := s.repo.Update(ctx, r); err != nil {
			return fmt.Errorf("update approval: %w", err)
		}
	}
	return nil
}

func (s *Service) openNext(ctx context.Context, current *Approval, now time.Time) (*Approval, error) {
	step := current.ApprovalChain[current.LevelOrder]
	next := &Approval{
		ID:               id.New(),
		ApprovableType:   current.ApprovableType,
		ApprovableID:     current.ApprovableID,
		ApprovableNumber: current.ApprovableNumber,
		Amount:           current.Amount,
		Round:            current.Round,
		RuleID:           current.RuleID,
		LevelID:          step.LevelID,
		LevelOrder:       step.Order,
		Role:             step.Role,
		Status:           StatusPending,
		ApprovalChain:    current.ApprovalChain,
		WorkflowStatus:   WorkflowInProgress,
		CreatedAt:        now,
	}
	doc := Document{Type: current.ApprovableType, ID: current.ApprovableID, Number: current.ApprovableNumber, Amount: current.Amount}
	var err error
	if next.NextApprover, err = s.approverFor(ctx, step.Role, doc); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, next); err != nil {
		return nil, fmt.Errorf("create approval: %w", err)
	}
	return next, nil
}

func (s *Service) approverFor(ctx context.Context, role string, doc Document) (*string, error) {
	if s.approvers == nil {
		return nil, nil
	}
	user, err := s.approvers.ApproverFor(ctx, role, doc)
	if err != nil {
		return nil, fmt.Errorf("find approver for %s: %w", role, err)
	}
	if user == "" {
		return nil, nil
	}
	return &user, nil
}

func (s *Service) record(ctx context.Context, a *Approval, action audit.Action, changes map[string]any) error {
	if s.audit == nil {
		return nil
	}
	changes["approvable_type"] = a.ApprovableType
	changes["approvable_id"] = a.ApprovableID.String()
	entry, err := audit.Change(ctx, auditEntity, a.ID, action, changes)
	if err != nil {
		return err
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	return nil
}
