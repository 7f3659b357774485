// Package approval_repo provides PostgreSQL storage for approval rules,
// levels and workflow rows.
package approval_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/domain/approval"
	"docflow/internal/infrastructure/storage/postgres"
)

const (
	approvalsTable = "approvals"
	rulesTable     = "approval_rules"
	levelsTable    = "approval_levels"
)

var (
	approvalColumns = postgres.ExtractDBColumns[approval.Approval]()
	ruleColumns     = postgres.ExtractDBColumns[approval.Rule]()
	levelColumns    = postgres.ExtractDBColumns[approval.Level]()
)

// Repo implements approval.Repository and the rule loading used by the
// rule cache.
type Repo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ approval.Repository = (*Repo)(nil)

// NewRepo creates a new approval repository.
func NewRepo(txm *postgres.TxManager) *Repo {
	return &Repo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create returns CONFLICT when the document already has a PENDING row.
func (r *Repo) Create(ctx context.Context, a *approval.Approval) error {
	sql, args, err := r.builder.Insert(approvalsTable).SetMap(postgres.StructToMap(a)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert approval: %w", postgres.TranslateError(err))
	}
	return nil
}

func (r *Repo) Update(ctx context.Context, a *approval.Approval) error {
	data := postgres.StructToMap(a)
	delete(data, "id")
	delete(data, "created_at")

	sql, args, err := r.builder.Update(approvalsTable).
		SetMap(data).
		Where(squirrel.Eq{"id": a.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update approval: %w", postgres.TranslateError(err))
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("approval", a.ID.String())
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, approvalID id.ID) (*approval.Approval, error) {
	return r.get(ctx, approvalID, false)
}

func (r *Repo) GetForUpdate(ctx context.Context, approvalID id.ID) (*approval.Approval, error) {
	return r.get(ctx, approvalID, true)
}

func (r *Repo) get(ctx context.Context, approvalID id.ID, lock bool) (*approval.Approval, error) {
	q := r.builder.Select(approvalColumns...).
		From(approvalsTable).
		Where(squirrel.Eq{"id": approvalID})
	if lock {
		q = q.Suffix("FOR UPDATE")
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	a := new(approval.Approval)
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), a, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("approval", approvalID.String())
		}
		return nil, fmt.Errorf("get approval: %w", postgres.TranslateError(err))
	}
	return a, nil
}

func (r *Repo) ListByApprovable(ctx context.Context, approvableType string, approvableID id.ID) ([]*approval.Approval, error) {
	sql, args, err := r.listByApprovableQuery(approvableType, approvableID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var out []*approval.Approval
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list approvals: %w", postgres.TranslateError(err))
	}
	return out, nil
}

func (r *Repo) listByApprovableQuery(approvableType string, approvableID id.ID) squirrel.SelectBuilder {
	return r.builder.Select(approvalColumns...).
		From(approvalsTable).
		Where(squirrel.Eq{"approvable_type": approvableType, "approvable_id": approvableID}).
		OrderBy("round", "level_order")
}

// LockApprovable takes a transaction-scoped advisory lock on the document,
// which also covers the case where no approval row exists yet.
func (r *Repo) LockApprovable(ctx context.Context, approvableType string, approvableID id.ID) error {
	if r.txm.GetTx(ctx) == nil {
		return fmt.Errorf("approval lock requires transaction context")
	}
	_, err := r.txm.GetQuerier(ctx).Exec(ctx,
		"SELECT pg_advisory_xact_lock(hashtext($1))", advisoryKey(approvableType, approvableID))
	if err != nil {
		return fmt.Errorf("lock approvable: %w", postgres.TranslateError(err))
	}
	return nil
}

func advisoryKey(approvableType string, approvableID id.ID) string {
	return "approval:" + approvableType + ":" + approvableID.String()
}
