// Package statemachine provides a transition table type used by every
// document kind. The table is the only place that knows which status
// changes are legal.
package statemachine

import (
	"docflow/internal/core/apperror"
)

// Machine is an immutable transition table over a string-backed status enum.
type Machine[S ~string] struct {
	entity      string
	initial     S
	transitions map[S][]S
}

// New builds a machine for entity starting at initial.
// transitions maps each status to the statuses reachable from it in one step.
func New[S ~string](entity string, initial S, transitions map[S][]S) *Machine[S] {
	return &Machine[S]{entity: entity, initial: initial, transitions: transitions}
}

// Initial returns the status every new document starts in.
func (m *Machine[S]) Initial() S {
	return m.initial
}

// Can reports whether from → to is a legal step.
func (m *Machine[S]) Can(from, to S) bool {
	for _, next := range m.transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Check returns INVALID_TRANSITION when from → to is not legal.
// Re-applying a transition that already happened is illegal too, since no
// status lists itself as a successor.
func (m *Machine[S]) Check(from, to S) error {
	if m.Can(from, to) {
		return nil
	}
	return apperror.NewInvalidTransition(m.entity, string(from), string(to))
}

// IsTerminal reports whether nothing is reachable from s.
func (m *Machine[S]) IsTerminal(s S) bool {
	return len(m.transitions[s]) == 0
}

// Next lists the statuses reachable from s.
func (m *Machine[S]) Next(s S) []S {
	out := make([]S, len(m.transitions[s]))
	copy(out, m.transitions[s])
	return out
}
