// Package tx defines the unit-of-work contract used by every core operation.
package tx

import (
	"context"
)

// Manager runs a unit of work atomically: every storage write made through
// the context passed to fn commits together or not at all.
// Nested calls join the transaction already carried by ctx.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager adds read-only units of work for queries.
type ReadOnlyManager interface {
	Manager
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
