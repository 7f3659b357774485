package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docflow/internal/core/apperror"
	"docflow/internal/core/idempotency"
)

func TestIdempotencyStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 11, 14, 9, 0, 0, 0, time.UTC)
	keys := New().Idempotency(time.Hour)
	keys.now = func() time.Time { return now }

	req := idempotency.Request{Key: "k1", ActorID: "u1", Operation: "POST /api/v1/numbers", RequestHash: "h"}

	replay, err := keys.Acquire(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, replay, "first caller owns the key")

	_, err = keys.Acquire(ctx, req)
	assert.True(t, apperror.HasCode(err, apperror.CodeIdempotencyConflict))

	other := req
	other.RequestHash = "different"
	_, err = keys.Acquire(ctx, other)
	assert.True(t, apperror.HasCode(err, apperror.CodeIdempotencyMismatch))

	require.NoError(t, keys.Complete(ctx, "k1", idempotency.StatusSuccess, idempotency.Replay{StatusCode: 201, Body: []byte(`{"n":1}`)}))
	replay, err = keys.Acquire(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Equal(t, 201, replay.StatusCode)
	assert.Equal(t, "application/json", replay.ContentType)
	assert.JSONEq(t, `{"n":1}`, string(replay.Body))

	now = now.Add(2 * time.Hour)
	n, err := keys.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestIdempotencyStore_ReleaseAndStaleReclaim(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 11, 14, 9, 0, 0, 0, time.UTC)
	keys := New().Idempotency(time.Hour)
	keys.now = func() time.Time { return now }
	req := idempotency.Request{Key: "k2", ActorID: "u1", Operation: "POST /x", RequestHash: "h"}

	_, err := keys.Acquire(ctx, req)
	require.NoError(t, err)
	require.NoError(t, keys.Release(ctx, "k2"))

	replay, err := keys.Acquire(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, replay, "released key can be acquired again")

	now = now.Add(idempotency.StaleAfter + time.Second)
	replay, err = keys.Acquire(ctx, req)
	require.NoError(t, err, "stale pending key is reclaimed")
	assert.Nil(t, replay)
}
