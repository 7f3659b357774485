package approval_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docflow/internal/core/apperror"
	appctx "docflow/internal/core/context"
	"docflow/internal/core/id"
	"docflow/internal/core/types"
	"docflow/internal/domain/approval"
	"docflow/internal/infrastructure/storage/memory"
)

func money(s string) types.Money { return types.MustMoney(s) }

func moneyPtr(s string) *types.Money {
	m := money(s)
	return &m
}

type env struct {
	store   *memory.Store
	service *approval.Service
	l1, l2  approval.Level
}

// newEnv configures a two-level chain for quotations of 10M and above:
// a supervisor, then a manager.
func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	repo := store.Approvals()

	l1 := approval.Level{ID: id.New(), Name: "Supervisor", Role: "supervisor", IsActive: true}
	l2 := approval.Level{ID: id.New(), Name: "Manager", Role: "manager", IsActive: true}
	require.NoError(t, repo.PutLevel(ctx, l1))
	require.NoError(t, repo.PutLevel(ctx, l2))
	require.NoError(t, repo.PutRule(ctx, approval.Rule{
		ID:           id.New(),
		Name:         "large quotations",
		DocumentType: "QUOTATION",
		MinAmount:    money("10000000"),
		LevelIDs:     []id.ID{l1.ID, l2.ID},
		IsActive:     true,
	}))

	conditions, err := approval.NewConditions()
	require.NoError(t, err)
	service := approval.NewService(
		approval.NewResolver(repo, conditions),
		repo,
		approval.StaticApprovers{"supervisor": "sup-1", "manager": "mgr-1"},
		store.Audit(),
		store.TxManager(),
	)
	return &env{store: store, service: service, l1: l1, l2: l2}
}

func as(userID string, roles ...string) context.Context {
	return appctx.WithActor(context.Background(), &appctx.Actor{UserID: userID, Roles: roles})
}

func quotation(amount string) approval.Document {
	return approval.Document{Type: "QUOTATION", ID: id.New(), Number: "PQ-001/JKT/11-2025", Amount: money(amount)}
}

func TestSubmit_BelowThresholdNeedsNoApproval(t *testing.T) {
	e := newEnv(t)
	doc := quotation("9999999.99")

	res, err := e.service.Submit(as("sales"), doc)
	require.NoError(t, err)
	assert.False(t, res.Required)
	assert.Nil(t, res.Pending)

	rows, err := e.service.Status(context.Background(), doc.Type, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestChain_ApprovesLevelsInOrder(t *testing.T) {
	e := newEnv(t)
	doc := quotation("15000000")

	res, err := e.service.Submit(as("sales"), doc)
	require.NoError(t, err)
	require.True(t, res.Required)
	require.Len(t, res.Chain.Steps, 2)
	first := res.Pending
	assert.Equal(t, 1, first.LevelOrder)
	assert.Equal(t, "supervisor", first.Role)
	require.NotNil(t, first.NextApprover)
	assert.Equal(t, "sup-1", *first.NextApprover)

	// The manager cannot skip ahead.
	_, err = e.service.Advance(as("mgr-1", "manager"), first.ID, approval.DecisionApprove, "")
	assert.True(t, apperror.HasCode(err, apperror.CodeForbidden))

	step1, err := e.service.Advance(as("sup-1", "supervisor"), first.ID, approval.DecisionApprove, "ok")
	require.NoError(t, err)
	assert.Equal(t, approval.WorkflowInProgress, step1.WorkflowStatus)
	require.NotNil(t, step1.Next)
	assert.Equal(t, 2, step1.Next.LevelOrder)
	assert.Equal(t, e.l2.ID, step1.Next.LevelID)

	approved, err := e.service.IsApproved(context.Background(), doc.Type, doc.ID)
	require.NoError(t, err)
	assert.False(t, approved)

	step2, err := e.service.Advance(as("mgr-1", "manager"), step1.Next.ID, approval.DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, approval.WorkflowApproved, step2.WorkflowStatus)
	assert.Nil(t, step2.Next)
	require.NotNil(t, step2.Decided.FinalApprovalAt)

	rows, err := e.service.Status(context.Background(), doc.Type, doc.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, approval.StatusApproved, r.Status)
		assert.Equal(t, approval.WorkflowApproved, r.WorkflowStatus)
	}
	assert.Equal(t, "sup-1", *rows[0].ApproverID)
	assert.Equal(t, "mgr-1", *rows[1].ApproverID)

	approved, err = e.service.IsApproved(context.Background(), doc.Type, doc.ID)
	require.NoError(t, err)
	assert.True(t, approved)
}

func TestChain_RejectAtFirstLevelEndsWorkflow(t *testing.T) {
	e := newEnv(t)
	doc := quotation("20000000")
	res, err := e.service.Submit(as("sales"), doc)
	require.NoError(t, err)

	_, err = e.service.Advance(as("sup-1", "supervisor"), res.Pending.ID, approval.DecisionReject, "  ")
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	out, err := e.service.Advance(as("sup-1", "supervisor"), res.Pending.ID, approval.DecisionReject, "margin too low")
	require.NoError(t, err)
	assert.Equal(t, approval.WorkflowRejected, out.WorkflowStatus)
	assert.Nil(t, out.Next)

	rows, err := e.service.Status(context.Background(), doc.Type, doc.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1, "no second level row is ever created")
	assert.Equal(t, approval.StatusRejected, rows[0].Status)
	assert.Equal(t, "margin too low", rows[0].Notes)
}

func TestAdvance_AlreadyResolved(t *testing.T) {
	e := newEnv(t)
	doc := quotation("20000000")
	res, err := e.service.Submit(as("sales"), doc)
	require.NoError(t, err)

	_, err = e.service.Advance(as("sup-1", "supervisor"), res.Pending.ID, approval.DecisionReject, "no")
	require.NoError(t, err)

	_, err = e.service.Advance(as("sup-1", "supervisor"), res.Pending.ID, approval.DecisionApprove, "")
	assert.True(t, apperror.HasCode(err, apperror.CodeAlreadyResolved))

	_, err = e.service.Advance(as("admin"), id.New(), approval.DecisionApprove, "")
	assert.True(t, apperror.IsNotFound(err))
}

func TestAdvance_AdminMayActAtAnyLevel(t *testing.T) {
	e := newEnv(t)
	res, err := e.service.Submit(as("sales"), quotation("12000000"))
	require.NoError(t, err)

	admin := appctx.WithActor(context.Background(), &appctx.Actor{UserID: "root", IsAdmin: true})
	out, err := e.service.Advance(admin, res.Pending.ID, approval.DecisionApprove, "")
	require.NoError(t, err)
	assert.NotNil(t, out.Next)
}

func TestSubmit_Rounds(t *testing.T) {
	e := newEnv(t)
	doc := quotation("20000000")

	first, err := e.service.Submit(as("sales"), doc)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Pending.Round)

	_, err = e.service.Submit(as("sales"), doc)
	assert.True(t, apperror.HasCode(err, apperror.CodeConflict))

	require.NoError(t, e.service.Cancel(as("sales"), doc.Type, doc.ID, "customer changed order"))
	err = e.service.Cancel(as("sales"), doc.Type, doc.ID, "again")
	assert.True(t, apperror.HasCode(err, apperror.CodeAlreadyResolved))

	second, err := e.service.Submit(as("sales"), doc)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Pending.Round)

	rows, err := e.service.Status(context.Background(), doc.Type, doc.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Round)

	out, err := e.service.Advance(as("sup-1", "supervisor"), second.Pending.ID, approval.DecisionApprove, "")
	require.NoError(t, err)
	_, err = e.service.Advance(as("mgr-1", "manager"), out.Next.ID, approval.DecisionApprove, "")
	require.NoError(t, err)

	_, err = e.service.Submit(as("sales"), doc)
	assert.True(t, apperror.HasCode(err, apperror.CodeAlreadyResolved))
}

func TestSubmit_Validation(t *testing.T) {
	e := newEnv(t)

	_, err := e.service.Submit(as("sales"), approval.Document{Type: "QUOTATION"})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	doc := quotation("-1")
	_, err = e.service.Submit(as("sales"), doc)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = e.service.Advance(as("sup-1", "supervisor"), id.New(), "MAYBE", "")
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestDecisionsAreAudited(t *testing.T) {
	e := newEnv(t)
	res, err := e.service.Submit(as("sales"), quotation("20000000"))
	require.NoError(t, err)
	_, err = e.service.Advance(as("sup-1", "supervisor"), res.Pending.ID, approval.DecisionApprove, "fine")
	require.NoError(t, err)

	history, err := e.store.Audit().History(context.Background(), "approval", res.Pending.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "sup-1", history[0].ActorID)
	assert.Equal(t, "sales", history[1].ActorID)
}

// decidingRepo lets a final-level approval commit between Cancel's listing
// and its row lock.
type decidingRepo struct {
	approval.Repository
	once sync.Once
}

func (r *decidingRepo) GetForUpdate(ctx context.Context, approvalID id.ID) (*approval.Approval, error) {
	var err error
	r.once.Do(func() {
		var row *approval.Approval
		if row, err = r.Repository.GetForUpdate(ctx, approvalID); err != nil {
			return
		}
		row.Status = approval.StatusApproved
		row.WorkflowStatus = approval.WorkflowApproved
		err = r.Repository.Update(ctx, row)
	})
	if err != nil {
		return nil, err
	}
	return r.Repository.GetForUpdate(ctx, approvalID)
}

func TestCancel_RechecksRowAfterLocking(t *testing.T) {
	e := newEnv(t)
	doc := quotation("15000000")
	res, err := e.service.Submit(as("sales"), doc)
	require.NoError(t, err)
	_, err = e.service.Advance(as("sup-1", "supervisor"), res.Pending.ID, approval.DecisionApprove, "")
	require.NoError(t, err)

	conditions, err := approval.NewConditions()
	require.NoError(t, err)
	repo := &decidingRepo{Repository: e.store.Approvals()}
	racing := approval.NewService(approval.NewResolver(e.store.Approvals(), conditions), repo, nil, e.store.Audit(), e.store.TxManager())

	err = racing.Cancel(as("sales"), doc.Type, doc.ID, "customer withdrew")
	assert.True(t, apperror.HasCode(err, apperror.CodeAlreadyResolved), "got %v", err)
}

func TestAdvanceAndCancel_Concurrent(t *testing.T) {
	for i := 0; i < 20; i++ {
		e := newEnv(t)
		doc := quotation("15000000")
		res, err := e.service.Submit(as("sales"), doc)
		require.NoError(t, err)
		step1, err := e.service.Advance(as("sup-1", "supervisor"), res.Pending.ID, approval.DecisionApprove, "")
		require.NoError(t, err)

		var (
			wg                   sync.WaitGroup
			advanceErr, cancelErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, advanceErr = e.service.Advance(as("mgr-1", "manager"), step1.Next.ID, approval.DecisionApprove, "")
		}()
		go func() {
			defer wg.Done()
			cancelErr = e.service.Cancel(as("sales"), doc.Type, doc.ID, "withdrawn")
		}()
		wg.Wait()

		require.True(t, (advanceErr == nil) != (cancelErr == nil), "advance=%v cancel=%v", advanceErr, cancelErr)
		want := approval.WorkflowApproved
		if advanceErr != nil {
			assert.True(t, apperror.HasCode(advanceErr, apperror.CodeAlreadyResolved))
			want = approval.WorkflowCancelled
		} else {
			assert.True(t, apperror.HasCode(cancelErr, apperror.CodeAlreadyResolved))
		}

		rows, err := e.service.Status(context.Background(), doc.Type, doc.ID)
		require.NoError(t, err)
		for _, r := range rows {
			assert.Equal(t, want, r.WorkflowStatus)
			assert.NotEqual(t, approval.StatusPending, r.Status)
		}
	}
}

func TestSubmit_NextApproverComesFromDirectory(t *testing.T) {
	e := newEnv(t)
	conditions, err := approval.NewConditions()
	require.NoError(t, err)
	repo := e.store.Approvals()
	resolver := approval.NewResolver(repo, conditions)

	// Role keys arrive lower-cased from configuration.
	directory := approval.StaticApprovers{"supervisor": "sup-9"}
	svc := approval.NewService(resolver, repo, directory, e.store.Audit(), e.store.TxManager())
	res, err := svc.Submit(as("sales"), quotation("11000000"))
	require.NoError(t, err)
	require.NotNil(t, res.Pending.NextApprover)
	assert.Equal(t, "sup-9", *res.Pending.NextApprover)

	unassigned := approval.NewService(resolver, repo, approval.StaticApprovers{}, e.store.Audit(), e.store.TxManager())
	res, err = unassigned.Submit(as("sales"), quotation("11000000"))
	require.NoError(t, err)
	assert.Nil(t, res.Pending.NextApprover, "nobody holds the role")

	user, err := directory.ApproverFor(context.Background(), "Supervisor", approval.Document{})
	require.NoError(t, err)
	assert.Equal(t, "sup-9", user)
}
