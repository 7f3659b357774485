package approval

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"docflow/internal/core/id"
	"docflow/internal/core/types"
)

// Rule maps a document type and amount band [MinAmount, MaxAmount) to an
// ordered list of levels. A nil MaxAmount means unbounded.
type Rule struct {
	ID           id.ID        `db:"id" json:"id"`
	Name         string       `db:"name" json:"name"`
	DocumentType string       `db:"document_type" json:"document_type"`
	MinAmount    types.Money  `db:"min_amount" json:"min_amount"`
	MaxAmount    *types.Money `db:"max_amount" json:"max_amount,omitempty"`
	LevelIDs     []id.ID      `db:"level_ids" json:"level_ids"`
	// Condition is an optional CEL expression that must evaluate to true.
	Condition string `db:"condition" json:"condition,omitempty"`
	IsActive  bool   `db:"is_active" json:"is_active"`
}

// Contains reports whether amount lies in the rule's band.
func (r Rule) Contains(amount types.Money) bool {
	if amount.LessThan(r.MinAmount) {
		return false
	}
	return r.MaxAmount == nil || amount.LessThan(*r.MaxAmount)
}

// width returns the band width, or ok=false for an unbounded band.
func (r Rule) width() (w decimal.Decimal, ok bool) {
	if r.MaxAmount == nil {
		return decimal.Zero, false
	}
	return r.MaxAmount.Sub(r.MinAmount), true
}

// overlaps reports whether two bands share at least one amount.
func (r Rule) overlaps(o Rule) bool {
	// r.min < o.max && o.min < r.max, with nil max as +inf
	if o.MaxAmount != nil && !r.MinAmount.LessThan(*o.MaxAmount) {
		return false
	}
	if r.MaxAmount != nil && !o.MinAmount.LessThan(*r.MaxAmount) {
		return false
	}
	return true
}

// Validate checks band sanity.
func (r Rule) Validate() error {
	if r.DocumentType == "" {
		return fmt.Errorf("rule %s: document_type is required", r.Name)
	}
	if r.MinAmount.IsNegative() {
		return fmt.Errorf("rule %s: min_amount must not be negative", r.Name)
	}
	if r.MaxAmount != nil && !r.MinAmount.LessThan(*r.MaxAmount) {
		return fmt.Errorf("rule %s: min_amount must be below max_amount", r.Name)
	}
	if len(r.LevelIDs) == 0 {
		return fmt.Errorf("rule %s: at least one level is required", r.Name)
	}
	return nil
}

// moreSpecific orders rules for selection: narrowest band first, bounded
// before unbounded, then higher MinAmount, then ID.
func moreSpecific(a, b Rule) bool {
	wa, boundedA := a.width()
	wb, boundedB := b.width()
	switch {
	case boundedA && !boundedB:
		return true
	case !boundedA && boundedB:
		return false
	case boundedA && boundedB && !wa.Equal(wb):
		return wa.LessThan(wb)
	}
	if !a.MinAmount.Equal(b.MinAmount) {
		return a.MinAmount.GreaterThan(b.MinAmount)
	}
	return id.Compare(a.ID, b.ID) < 0
}

// SortBySpecificity sorts rules so the one that wins selection comes first.
func SortBySpecificity(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool { return moreSpecific(rules[i], rules[j]) })
}

// Ambiguity is a pair of active rules the narrowest-band policy cannot order
// by band alone.
type Ambiguity struct {
	DocumentType string `json:"document_type"`
	First        id.ID  `json:"first"`
	Second       id.ID  `json:"second"`
}

func (a Ambiguity) String() string {
	return fmt.Sprintf("%s: rules %s and %s overlap with equal band width", a.DocumentType, a.First, a.Second)
}

// DetectAmbiguity reports overlapping active rules of the same document
// type with equal band width. Selection still picks one of them
// deterministically, but the configuration is probably a mistake.
func DetectAmbiguity(rules []Rule) []Ambiguity {
	var out []Ambiguity
	for i := 0; i < len(rules); i++ {
		for j := i + 1; j < len(rules); j++ {
			a, b := rules[i], rules[j]
			if !a.IsActive || !b.IsActive || a.DocumentType != b.DocumentType || !a.overlaps(b) {
				continue
			}
			wa, boundedA := a.width()
			wb, boundedB := b.width()
			if boundedA != boundedB || (boundedA && !wa.Equal(wb)) {
				continue
			}
			if !boundedA && !a.MinAmount.Equal(b.MinAmount) {
				continue
			}
			out = append(out, Ambiguity{DocumentType: a.DocumentType, First: a.ID, Second: b.ID})
		}
	}
	return out
}
