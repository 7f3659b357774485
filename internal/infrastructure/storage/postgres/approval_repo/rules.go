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

var _ approval.RuleSource = (*Repo)(nil)

func (r *Repo) RulesFor(ctx context.Context, documentType string) ([]approval.Rule, error) {
	return r.selectRules(ctx, r.builder.Select(ruleColumns...).
		From(rulesTable).
		Where(squirrel.Eq{"document_type": documentType}).
		OrderBy("id"))
}

// AllRules returns every rule, active or not.
func (r *Repo) AllRules(ctx context.Context) ([]approval.Rule, error) {
	return r.selectRules(ctx, r.builder.Select(ruleColumns...).From(rulesTable).OrderBy("document_type", "id"))
}

func (r *Repo) selectRules(ctx context.Context, q squirrel.SelectBuilder) ([]approval.Rule, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var out []approval.Rule
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list rules: %w", postgres.TranslateError(err))
	}
	return out, nil
}

func (r *Repo) Levels(ctx context.Context, levelIDs []id.ID) (map[id.ID]approval.Level, error) {
	out := make(map[id.ID]approval.Level, len(levelIDs))
	if len(levelIDs) == 0 {
		return out, nil
	}
	levels, err := r.selectLevels(ctx, r.builder.Select(levelColumns...).
		From(levelsTable).
		Where(squirrel.Eq{"id": levelIDs}))
	if err != nil {
		return nil, err
	}
	for _, l := range levels {
		out[l.ID] = l
	}
	return out, nil
}

// AllLevels returns every level.
func (r *Repo) AllLevels(ctx context.Context) ([]approval.Level, error) {
	return r.selectLevels(ctx, r.builder.Select(levelColumns...).From(levelsTable).OrderBy("id"))
}

func (r *Repo) selectLevels(ctx context.Context, q squirrel.SelectBuilder) ([]approval.Level, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var out []approval.Level
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list levels: %w", postgres.TranslateError(err))
	}
	return out, nil
}

// PutLevel inserts or replaces a level.
func (r *Repo) PutLevel(ctx context.Context, l approval.Level) error {
	return r.upsert(ctx, levelsTable, postgres.StructToMap(l), levelColumns)
}

// PutRule validates and inserts or replaces a rule.
func (r *Repo) PutRule(ctx context.Context, rule approval.Rule) error {
	if err := rule.Validate(); err != nil {
		return apperror.NewValidation(err.Error())
	}
	return r.upsert(ctx, rulesTable, postgres.StructToMap(rule), ruleColumns)
}

func (r *Repo) upsert(ctx context.Context, table string, data map[string]any, columns []string) error {
	sql, args, err := upsertQuery(r.builder, table, data, columns).ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert %s: %w", table, postgres.TranslateError(err))
	}
	return nil
}

func upsertQuery(b squirrel.StatementBuilderType, table string, data map[string]any, columns []string) squirrel.InsertBuilder {
	suffix := "ON CONFLICT (id) DO UPDATE SET "
	first := true
	for _, c := range columns {
		if c == "id" {
			continue
		}
		if !first {
			suffix += ", "
		}
		suffix += c + " = EXCLUDED." + c
		first = false
	}
	return b.Insert(table).
		Columns(columns...).
		Values(postgres.Values(data, columns)...).
		Suffix(suffix)
}
