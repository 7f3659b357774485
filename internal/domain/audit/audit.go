// Package audit records who changed the status of a document and how.
// Entries are written in the same unit of work as the change they describe.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	appctx "docflow/internal/core/context"
	"docflow/internal/core/id"
)

// Action is the kind of audited change.
type Action string

const (
	ActionCreate     Action = "create"
	ActionTransition Action = "transition"
	ActionDecision   Action = "decision"
	ActionDelete     Action = "delete"
)

// Entry is one audit record.
type Entry struct {
	ID         id.ID           `json:"id"`
	EntityType string          `json:"entity_type"`
	EntityID   id.ID           `json:"entity_id"`
	Action     Action          `json:"action"`
	ActorID    string          `json:"actor_id"`
	Changes    json.RawMessage `json:"changes"`
	Flags      []string        `json:"flags,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// HasFlag reports whether the entry carries flag.
func (e Entry) HasFlag(flag string) bool {
	for _, f := range e.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Recorder persists entries.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
	History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]Entry, error)
}

// Change builds an entry for entity from a change set, filling identity,
// actor and time.
func Change(ctx context.Context, entityType string, entityID id.ID, action Action, changes map[string]any, flags ...string) (Entry, error) {
	raw, err := json.Marshal(changes)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal audit changes: %w", err)
	}
	return Entry{
		ID:         id.New(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		ActorID:    appctx.GetActorID(ctx),
		Changes:    raw,
		Flags:      flags,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// Transition is a helper for status changes.
func Transition(ctx context.Context, r Recorder, entityType string, entityID id.ID, from, to string, extra map[string]any, flags ...string) error {
	changes := map[string]any{"status": map[string]string{"from": from, "to": to}}
	for k, v := range extra {
		changes[k] = v
	}
	entry, err := Change(ctx, entityType, entityID, ActionTransition, changes, flags...)
	if err != nil {
		return err
	}
	if err := r.Record(ctx, entry); err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	return nil
}

// Diff returns the keys whose values differ between two states.
func Diff(before, after map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range after {
		old, ok := before[k]
		if !ok || fmt.Sprint(old) != fmt.Sprint(v) {
			out[k] = map[string]any{"from": old, "to": v}
		}
	}
	for k, v := range before {
		if _, ok := after[k]; !ok {
			out[k] = map[string]any{"from": v, "to": nil}
		}
	}
	return out
}
