package audit

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "docflow/internal/core/context"
	"docflow/internal/core/id"
)

func TestChange_FillsActorAndPayload(t *testing.T) {
	ctx := appctx.WithActor(context.Background(), &appctx.Actor{UserID: "clerk"})
	entityID := id.New()

	e, err := Change(ctx, "warehouse_transfer", entityID, ActionTransition, map[string]any{"note": "x"}, "partial_receipt")
	require.NoError(t, err)

	assert.Equal(t, "clerk", e.ActorID)
	assert.Equal(t, entityID, e.EntityID)
	assert.True(t, e.HasFlag("partial_receipt"))
	assert.False(t, e.HasFlag("other"))

	var payload map[string]string
	require.NoError(t, json.Unmarshal(e.Changes, &payload))
	assert.Equal(t, "x", payload["note"])
}

func TestDiff(t *testing.T) {
	before := map[string]any{"status": "REQUESTED", "qty": 5, "gone": true}
	after := map[string]any{"status": "APPROVED", "qty": 5, "new": "y"}

	d := Diff(before, after)

	assert.Len(t, d, 3)
	assert.Equal(t, map[string]any{"from": "REQUESTED", "to": "APPROVED"}, d["status"])
	assert.Equal(t, map[string]any{"from": nil, "to": "y"}, d["new"])
	assert.Equal(t, map[string]any{"from": true, "to": nil}, d["gone"])
}
