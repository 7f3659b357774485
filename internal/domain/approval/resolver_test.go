package approval_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/domain/approval"
	"docflow/internal/infrastructure/storage/memory"
)

type resolverEnv struct {
	repo     memory.ApprovalRepo
	resolver *approval.Resolver
}

func newResolverEnv(t *testing.T) resolverEnv {
	t.Helper()
	repo := memory.New().Approvals()
	conditions, err := approval.NewConditions()
	require.NoError(t, err)
	return resolverEnv{repo: repo, resolver: approval.NewResolver(repo, conditions)}
}

func (e resolverEnv) level(t *testing.T, role string, mutate ...func(*approval.Level)) approval.Level {
	t.Helper()
	l := approval.Level{ID: id.New(), Name: role, Role: role, IsActive: true}
	for _, m := range mutate {
		m(&l)
	}
	require.NoError(t, e.repo.PutLevel(context.Background(), l))
	return l
}

func (e resolverEnv) rule(t *testing.T, r approval.Rule) approval.Rule {
	t.Helper()
	if id.IsNil(r.ID) {
		r.ID = id.New()
	}
	if r.DocumentType == "" {
		r.DocumentType = "SALES_ORDER"
	}
	r.IsActive = true
	require.NoError(t, e.repo.PutRule(context.Background(), r))
	return r
}

func roles(chain approval.Chain) []string {
	out := make([]string, len(chain.Steps))
	for i, s := range chain.Steps {
		out[i] = s.Role
	}
	return out
}

func TestResolve_NarrowestBandWins(t *testing.T) {
	e := newResolverEnv(t)
	sup := e.level(t, "supervisor")
	mgr := e.level(t, "manager")
	dir := e.level(t, "director")

	e.rule(t, approval.Rule{Name: "all", MinAmount: money("0"), LevelIDs: []id.ID{dir.ID}})
	wide := e.rule(t, approval.Rule{Name: "wide", MinAmount: money("1000"), MaxAmount: moneyPtr("100000"), LevelIDs: []id.ID{sup.ID, mgr.ID}})
	narrow := e.rule(t, approval.Rule{Name: "narrow", MinAmount: money("5000"), MaxAmount: moneyPtr("10000"), LevelIDs: []id.ID{sup.ID}})

	cases := []struct {
		amount string
		rule   id.ID
		roles  []string
	}{
		{"7500", narrow.ID, []string{"supervisor"}},
		{"10000", wide.ID, []string{"supervisor", "manager"}},
		{"999.99", id.Nil(), []string{"director"}},
		{"100000", id.Nil(), []string{"director"}},
	}
	for _, tc := range cases {
		chain, err := e.resolver.ResolveChain(context.Background(), "SALES_ORDER", money(tc.amount))
		require.NoError(t, err, tc.amount)
		assert.Equal(t, tc.roles, roles(chain), tc.amount)
		if !id.IsNil(tc.rule) {
			require.NotNil(t, chain.RuleID)
			assert.Equal(t, tc.rule, *chain.RuleID, tc.amount)
		}
	}
}

func TestResolve_NoRuleMeansNoApproval(t *testing.T) {
	e := newResolverEnv(t)
	sup := e.level(t, "supervisor")
	e.rule(t, approval.Rule{MinAmount: money("1000"), LevelIDs: []id.ID{sup.ID}})

	chain, err := e.resolver.ResolveChain(context.Background(), "SALES_ORDER", money("10"))
	require.NoError(t, err)
	assert.False(t, chain.Required())

	chain, err = e.resolver.ResolveChain(context.Background(), "INVOICE", money("1000000"))
	require.NoError(t, err)
	assert.False(t, chain.Required())
}

func TestResolve_FiltersLevels(t *testing.T) {
	e := newResolverEnv(t)
	sup := e.level(t, "supervisor")
	retired := e.level(t, "auditor", func(l *approval.Level) { l.IsActive = false })
	big := e.level(t, "cfo", func(l *approval.Level) { l.MinAmount = moneyPtr("50000") })
	e.rule(t, approval.Rule{MinAmount: money("0"), LevelIDs: []id.ID{sup.ID, retired.ID, big.ID}})

	chain, err := e.resolver.ResolveChain(context.Background(), "SALES_ORDER", money("20000"))
	require.NoError(t, err)
	assert.Equal(t, []string{"supervisor"}, roles(chain))

	chain, err = e.resolver.ResolveChain(context.Background(), "SALES_ORDER", money("50000"))
	require.NoError(t, err)
	assert.Equal(t, []string{"supervisor", "cfo"}, roles(chain))
	assert.Equal(t, 2, chain.Steps[1].Order)
}

func TestResolve_MissingLevelIsConfigurationError(t *testing.T) {
	e := newResolverEnv(t)
	e.rule(t, approval.Rule{MinAmount: money("0"), LevelIDs: []id.ID{id.New()}})

	_, err := e.resolver.ResolveChain(context.Background(), "SALES_ORDER", money("1"))
	assert.True(t, apperror.HasCode(err, apperror.CodeConfiguration))
}

func TestResolve_Condition(t *testing.T) {
	e := newResolverEnv(t)
	sup := e.level(t, "supervisor")
	risk := e.level(t, "risk")
	e.rule(t, approval.Rule{Name: "base", MinAmount: money("0"), LevelIDs: []id.ID{sup.ID}})
	e.rule(t, approval.Rule{
		Name:      "new customers",
		MinAmount: money("0"),
		MaxAmount: moneyPtr("1000000"),
		Condition: `"customer_tier" in attributes && attributes.customer_tier == "new" && amount >= 5000.0`,
		LevelIDs:  []id.ID{risk.ID, sup.ID},
	})

	doc := approval.Document{Type: "SALES_ORDER", ID: id.New(), Amount: money("6000"), Attributes: map[string]any{"customer_tier": "new"}}
	chain, err := e.resolver.Resolve(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"risk", "supervisor"}, roles(chain))

	doc.Attributes["customer_tier"] = "gold"
	chain, err = e.resolver.Resolve(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"supervisor"}, roles(chain))

	doc.Attributes = nil
	chain, err = e.resolver.Resolve(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"supervisor"}, roles(chain))
}

func TestConditions_Compile(t *testing.T) {
	c, err := approval.NewConditions()
	require.NoError(t, err)

	assert.NoError(t, c.Compile(`amount > 10.0 && document_type == "QUOTATION"`))
	assert.True(t, apperror.HasCode(c.Compile(`amount +`), apperror.CodeConfiguration))
	assert.True(t, apperror.HasCode(c.Compile(`amount * 2.0`), apperror.CodeConfiguration))
}

func TestSortBySpecificity(t *testing.T) {
	a := approval.Rule{ID: id.New(), MinAmount: money("0"), MaxAmount: moneyPtr("100")}
	b := approval.Rule{ID: id.New(), MinAmount: money("50"), MaxAmount: moneyPtr("150")}
	unboundedLow := approval.Rule{ID: id.New(), MinAmount: money("0")}
	unboundedHigh := approval.Rule{ID: id.New(), MinAmount: money("10")}
	narrow := approval.Rule{ID: id.New(), MinAmount: money("20"), MaxAmount: moneyPtr("30")}

	rules := []approval.Rule{unboundedLow, a, unboundedHigh, b, narrow}
	approval.SortBySpecificity(rules)

	assert.Equal(t, narrow.ID, rules[0].ID)
	assert.Equal(t, b.ID, rules[1].ID, "equal width, higher min first")
	assert.Equal(t, a.ID, rules[2].ID)
	assert.Equal(t, unboundedHigh.ID, rules[3].ID)
	assert.Equal(t, unboundedLow.ID, rules[4].ID)
}

func TestDetectAmbiguity(t *testing.T) {
	a := approval.Rule{ID: id.New(), DocumentType: "QUOTATION", MinAmount: money("0"), MaxAmount: moneyPtr("100"), IsActive: true}
	b := approval.Rule{ID: id.New(), DocumentType: "QUOTATION", MinAmount: money("50"), MaxAmount: moneyPtr("150"), IsActive: true}
	adjacent := approval.Rule{ID: id.New(), DocumentType: "QUOTATION", MinAmount: money("150"), MaxAmount: moneyPtr("250"), IsActive: true}
	otherType := approval.Rule{ID: id.New(), DocumentType: "INVOICE", MinAmount: money("0"), MaxAmount: moneyPtr("100"), IsActive: true}
	inactive := approval.Rule{ID: id.New(), DocumentType: "QUOTATION", MinAmount: money("0"), MaxAmount: moneyPtr("100")}

	found := approval.DetectAmbiguity([]approval.Rule{a, b, adjacent, otherType, inactive})
	require.Len(t, found, 1)
	assert.Equal(t, a.ID, found[0].First)
	assert.Equal(t, b.ID, found[0].Second)
	assert.Contains(t, found[0].String(), "QUOTATION")
}

func TestRuleValidate(t *testing.T) {
	ok := approval.Rule{Name: "r", DocumentType: "QUOTATION", MinAmount: money("0"), LevelIDs: []id.ID{id.New()}}
	assert.NoError(t, ok.Validate())

	inverted := ok
	inverted.MinAmount = money("100")
	inverted.MaxAmount = moneyPtr("100")
	assert.Error(t, inverted.Validate())

	noLevels := ok
	noLevels.LevelIDs = nil
	assert.Error(t, noLevels.Validate())
}
