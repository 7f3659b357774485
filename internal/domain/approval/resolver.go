package approval

import (
	"context"
	"fmt"

	"docflow/internal/core/apperror"
	"docflow/internal/core/types"
)

// Resolver selects the applicable rule and expands it into steps.
type Resolver struct {
	rules      RuleSource
	conditions *Conditions
}

// NewResolver creates a Resolver.
func NewResolver(rules RuleSource, conditions *Conditions) *Resolver {
	return &Resolver{rules: rules, conditions: conditions}
}

// ResolveChain returns the ordered levels for a document type and amount.
// An empty chain means no approval is required.
func (r *Resolver) ResolveChain(ctx context.Context, documentType string, amount types.Money) (Chain, error) {
	return r.Resolve(ctx, Document{Type: documentType, Amount: amount})
}

// Resolve is ResolveChain with rule conditions evaluated against doc.
func (r *Resolver) Resolve(ctx context.Context, doc Document) (Chain, error) {
	rules, err := r.rules.RulesFor(ctx, doc.Type)
	if err != nil {
		return Chain{}, fmt.Errorf("load approval rules: %w", err)
	}

	var candidates []Rule
	for _, rule := range rules {
		if !rule.IsActive || rule.DocumentType != doc.Type || !rule.Contains(doc.Amount) {
			continue
		}
		ok, err := r.conditions.Matches(rule.Condition, doc)
		if err != nil {
			return Chain{}, err
		}
		if ok {
			candidates = append(candidates, rule)
		}
	}
	if len(candidates) == 0 {
		return Chain{}, nil
	}
	SortBySpecificity(candidates)
	rule := candidates[0]

	levels, err := r.rules.Levels(ctx, rule.LevelIDs)
	if err != nil {
		return Chain{}, fmt.Errorf("load approval levels: %w", err)
	}

	ruleID := rule.ID
	chain := Chain{RuleID: &ruleID}
	for _, levelID := range rule.LevelIDs {
		level, ok := levels[levelID]
		if !ok {
			return Chain{}, apperror.NewConfiguration("approval rule references a missing level").
				WithDetail("rule_id", rule.ID.String()).
				WithDetail("level_id", levelID.String())
		}
		if !level.IsActive || !level.Covers(doc.Amount) {
			continue
		}
		chain.Steps = append(chain.Steps, Step{
			LevelID: level.ID,
			Order:   len(chain.Steps) + 1,
			Name:    level.Name,
			Role:    level.Role,
		})
	}
	return chain, nil
}
