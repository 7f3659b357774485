package memory

import (
	"context"
	"sort"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/domain/approval"
)

// ApprovalRepo implements approval.Repository and approval.RuleSource.
type ApprovalRepo struct{ s *Store }

var (
	_ approval.Repository = ApprovalRepo{}
	_ approval.RuleSource = ApprovalRepo{}
)

// Approvals returns the approval repository.
func (s *Store) Approvals() ApprovalRepo { return ApprovalRepo{s} }

// PutLevel inserts or replaces a level.
func (r ApprovalRepo) PutLevel(ctx context.Context, l approval.Level) error {
	return r.s.do(ctx, func(st *state) error {
		st.levels[l.ID] = l
		return nil
	})
}

// PutRule inserts or replaces a rule.
func (r ApprovalRepo) PutRule(ctx context.Context, rule approval.Rule) error {
	if err := rule.Validate(); err != nil {
		return apperror.NewValidation(err.Error())
	}
	return r.s.do(ctx, func(st *state) error {
		rule.LevelIDs = append([]id.ID(nil), rule.LevelIDs...)
		st.rules[rule.ID] = rule
		return nil
	})
}

func (r ApprovalRepo) RulesFor(ctx context.Context, documentType string) ([]approval.Rule, error) {
	var out []approval.Rule
	err := r.s.do(ctx, func(st *state) error {
		for _, rule := range st.rules {
			if rule.DocumentType == documentType {
				out = append(out, rule)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return id.Compare(out[i].ID, out[j].ID) < 0 })
	return out, err
}

// AllRules returns every rule, for ambiguity checks.
func (r ApprovalRepo) AllRules(ctx context.Context) ([]approval.Rule, error) {
	var out []approval.Rule
	err := r.s.do(ctx, func(st *state) error {
		for _, rule := range st.rules {
			out = append(out, rule)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return id.Compare(out[i].ID, out[j].ID) < 0 })
	return out, err
}

// AllLevels returns every level.
func (r ApprovalRepo) AllLevels(ctx context.Context) ([]approval.Level, error) {
	var out []approval.Level
	err := r.s.do(ctx, func(st *state) error {
		for _, l := range st.levels {
			out = append(out, l)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return id.Compare(out[i].ID, out[j].ID) < 0 })
	return out, err
}

func (r ApprovalRepo) Levels(ctx context.Context, levelIDs []id.ID) (map[id.ID]approval.Level, error) {
	out := make(map[id.ID]approval.Level, len(levelIDs))
	err := r.s.do(ctx, func(st *state) error {
		for _, lid := range levelIDs {
			if l, ok := st.levels[lid]; ok {
				out[lid] = l
			}
		}
		return nil
	})
	return out, err
}

func (r ApprovalRepo) Create(ctx context.Context, a *approval.Approval) error {
	return r.s.do(ctx, func(st *state) error {
		if a.Status == approval.StatusPending {
			for _, other := range st.approvals {
				if other.ApprovableType == a.ApprovableType && other.ApprovableID == a.ApprovableID && other.Status == approval.StatusPending {
					return apperror.NewConflict("document already has a pending approval")
				}
			}
		}
		st.approvals[a.ID] = a.Clone()
		return nil
	})
}

func (r ApprovalRepo) Update(ctx context.Context, a *approval.Approval) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.approvals[a.ID]; !ok {
			return apperror.NewNotFound("approval", a.ID.String())
		}
		st.approvals[a.ID] = a.Clone()
		return nil
	})
}

func (r ApprovalRepo) GetForUpdate(ctx context.Context, approvalID id.ID) (*approval.Approval, error) {
	return r.Get(ctx, approvalID)
}

func (r ApprovalRepo) Get(ctx context.Context, approvalID id.ID) (*approval.Approval, error) {
	var out *approval.Approval
	err := r.s.do(ctx, func(st *state) error {
		a, ok := st.approvals[approvalID]
		if !ok {
			return apperror.NewNotFound("approval", approvalID.String())
		}
		out = a.Clone()
		return nil
	})
	return out, err
}

func (r ApprovalRepo) ListByApprovable(ctx context.Context, approvableType string, approvableID id.ID) ([]*approval.Approval, error) {
	var out []*approval.Approval
	err := r.s.do(ctx, func(st *state) error {
		for _, a := range st.approvals {
			if a.ApprovableType == approvableType && a.ApprovableID == approvableID {
				out = append(out, a.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Round != out[j].Round {
			return out[i].Round < out[j].Round
		}
		return out[i].LevelOrder < out[j].LevelOrder
	})
	return out, err
}

// LockApprovable is a no-op: units of work are already serialized.
func (r ApprovalRepo) LockApprovable(context.Context, string, id.ID) error {
	return nil
}
