// Package context carries request-scoped values into the core: the acting
// user and tracing identifiers.
package context

import (
	"context"
	"slices"
)

// Actor is the caller as asserted by the surrounding application.
type Actor struct {
	UserID      string
	Roles       []string
	Permissions []string
	// Warehouses the actor may act on; empty means no warehouse scope.
	Warehouses []string
	IsAdmin    bool
}

type actorKey struct{}

// WithActor stores the actor in ctx.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// GetActor returns the actor from ctx or nil.
func GetActor(ctx context.Context) *Actor {
	if v, ok := ctx.Value(actorKey{}).(*Actor); ok {
		return v
	}
	return nil
}

// GetActorID returns the acting user id or "system" when none is set.
func GetActorID(ctx context.Context) string {
	if a := GetActor(ctx); a != nil && a.UserID != "" {
		return a.UserID
	}
	return "system"
}

// HasRole reports whether the actor holds role.
func (a *Actor) HasRole(role string) bool {
	if a == nil {
		return false
	}
	return a.IsAdmin || slices.Contains(a.Roles, role)
}

// Can reports whether the actor holds permission for the given warehouse.
// A permission without warehouse scope applies to every warehouse.
func (a *Actor) Can(permission, warehouseID string) bool {
	if a == nil {
		return false
	}
	if a.IsAdmin {
		return true
	}
	if !slices.Contains(a.Permissions, permission) {
		return false
	}
	return len(a.Warehouses) == 0 || slices.Contains(a.Warehouses, warehouseID)
}
