package memory

import (
	"context"

	"docflow/internal/core/numerator"
)

// Sequencer implements numerator.Sequencer.
type Sequencer struct{ s *Store }

var _ numerator.Sequencer = Sequencer{}

// Sequencer returns the document counter store.
func (s *Store) Sequencer() Sequencer { return Sequencer{s} }

// Increment adds one to the counter of key, creating it at 1.
func (q Sequencer) Increment(ctx context.Context, key numerator.Key, prefix string) (int64, error) {
	var v int64
	err := q.s.do(ctx, func(st *state) error {
		st.counters[key]++
		if _, ok := st.prefixes[key]; !ok {
			st.prefixes[key] = prefix
		}
		v = st.counters[key]
		return nil
	})
	return v, err
}
