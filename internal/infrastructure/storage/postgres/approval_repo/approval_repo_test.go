package approval_repo

import (
	"testing"

	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docflow/internal/core/id"
	"docflow/internal/core/types"
	"docflow/internal/domain/approval"
	"docflow/internal/infrastructure/storage/postgres"
)

func TestListByApprovableQuery(t *testing.T) {
	r := NewRepo(nil)
	docID := id.New()

	sql, args, err := r.listByApprovableQuery("QUOTATION", docID).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "FROM approvals WHERE approvable_id = $1 AND approvable_type = $2 ORDER BY round, level_order")
	assert.Equal(t, []any{docID.String(), "QUOTATION"}, args)
}

func TestAdvisoryKeyIsPerDocument(t *testing.T) {
	a, b := id.New(), id.New()
	assert.Equal(t, advisoryKey("QUOTATION", a), advisoryKey("QUOTATION", a))
	assert.NotEqual(t, advisoryKey("QUOTATION", a), advisoryKey("QUOTATION", b))
	assert.NotEqual(t, advisoryKey("QUOTATION", a), advisoryKey("INVOICE", a))
}

func TestUpsertQuery(t *testing.T) {
	rule := approval.Rule{
		ID: id.New(), Name: "quotes", DocumentType: "QUOTATION",
		MinAmount: types.MustMoney("0"), LevelIDs: []id.ID{id.New()}, IsActive: true,
	}
	builder := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	sql, args, err := upsertQuery(builder, rulesTable, postgres.StructToMap(rule), ruleColumns).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "INSERT INTO approval_rules (id,name,document_type,min_amount,max_amount,level_ids,condition,is_active)")
	assert.Contains(t, sql, "ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name")
	assert.NotContains(t, sql, "id = EXCLUDED.id")
	assert.Len(t, args, len(ruleColumns))
}

func TestApprovalColumns(t *testing.T) {
	assert.Contains(t, approvalColumns, "approval_chain")
	assert.Contains(t, approvalColumns, "workflow_status")
	assert.Equal(t, "created_at", approvalColumns[len(approvalColumns)-1])
}
