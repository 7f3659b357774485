package postgres

import (
	"context"
	"fmt"
	"time"

	"docflow/internal/core/apperror"
	"docflow/internal/core/idempotency"
)

// IdempotencyStore keeps idempotency keys in sys_idempotency.
type IdempotencyStore struct {
	txManager *TxManager
	ttl       time.Duration
}

var _ idempotency.Store = (*IdempotencyStore)(nil)

// NewIdempotencyStore creates a store whose keys expire after ttl.
func NewIdempotencyStore(txManager *TxManager, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{txManager: txManager, ttl: ttl}
}

// An expired row is taken over as if it did not exist. xmax = 0 marks a
// freshly inserted row.
const acquireSQL = `
	INSERT INTO sys_idempotency (idempotency_key, actor_id, operation, status, request_hash, created_at, updated_at, expires_at)
	VALUES ($1, $2, $3, $4, $5, $6, $6, $7)
	ON CONFLICT (idempotency_key) DO UPDATE SET
		actor_id     = CASE WHEN sys_idempotency.expires_at < $6 THEN EXCLUDED.actor_id ELSE sys_idempotency.actor_id END,
		operation    = CASE WHEN sys_idempotency.expires_at < $6 THEN EXCLUDED.operation ELSE sys_idempotency.operation END,
		request_hash = CASE WHEN sys_idempotency.expires_at < $6 THEN EXCLUDED.request_hash ELSE sys_idempotency.request_hash END,
		status       = CASE WHEN sys_idempotency.expires_at < $6 THEN EXCLUDED.status ELSE sys_idempotency.status END,
		response     = CASE WHEN sys_idempotency.expires_at < $6 THEN NULL ELSE sys_idempotency.response END,
		created_at   = CASE WHEN sys_idempotency.expires_at < $6 THEN $6 ELSE sys_idempotency.created_at END,
		updated_at   = CASE WHEN sys_idempotency.expires_at < $6 THEN $6 ELSE sys_idempotency.updated_at END,
		expires_at   = CASE WHEN sys_idempotency.expires_at < $6 THEN $7 ELSE sys_idempotency.expires_at END
	RETURNING (xmax = 0) OR created_at = $6, actor_id, operation, status, request_hash,
		response, response_status, response_content_type, updated_at`

// Acquire implements idempotency.Store.
func (s *IdempotencyStore) Acquire(ctx context.Context, req idempotency.Request) (*idempotency.Replay, error) {
	// TIMESTAMPTZ keeps microseconds; created_at = $6 must compare equal.
	now := time.Now().UTC().Truncate(time.Microsecond)

	var (
		owned     bool
		stored    idempotency.Request
		status    idempotency.Status
		replay    idempotency.Replay
		updatedAt time.Time
	)
	stored.Key = req.Key
	err := s.txManager.GetQuerier(ctx).QueryRow(ctx, acquireSQL,
		req.Key, req.ActorID, req.Operation, idempotency.StatusPending, req.RequestHash, now, now.Add(s.ttl),
	).Scan(&owned, &stored.ActorID, &stored.Operation, &status, &stored.RequestHash,
		&replay.Body, &replay.StatusCode, &replay.ContentType, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("acquire idempotency key: %w", TranslateError(err))
	}
	if owned {
		return nil, nil
	}

	if stored != req {
		return nil, apperror.NewIdempotencyMismatch(req.Key).
			WithDetail("stored_operation", stored.Operation).
			WithDetail("request_operation", req.Operation)
	}

	switch status {
	case idempotency.StatusPending:
		if now.Sub(updatedAt) <= idempotency.StaleAfter {
			return nil, apperror.NewIdempotencyConflict(req.Key)
		}
		// Reclaim a key left behind by a crashed request.
		tag, err := s.txManager.GetQuerier(ctx).Exec(ctx,
			`UPDATE sys_idempotency SET updated_at = $1 WHERE idempotency_key = $2 AND status = $3 AND updated_at = $4`,
			now, req.Key, idempotency.StatusPending, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("reclaim stale key: %w", TranslateError(err))
		}
		if tag.RowsAffected() == 0 {
			return nil, apperror.NewIdempotencyConflict(req.Key)
		}
		return nil, nil
	default:
		replay.Normalize()
		return &replay, nil
	}
}

// Complete implements idempotency.Store.
func (s *IdempotencyStore) Complete(ctx context.Context, key string, status idempotency.Status, resp idempotency.Replay) error {
	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE sys_idempotency
		SET status = $1,
		    response = $2,
		    response_status = $3,
		    response_content_type = $4,
		    updated_at = $5
		WHERE idempotency_key = $6`,
		status, resp.Body, resp.StatusCode, resp.ContentType, time.Now().UTC(), key)
	if err != nil {
		return fmt.Errorf("complete idempotency key: %w", TranslateError(err))
	}
	return nil
}

// Release implements idempotency.Store.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	_, err := s.txManager.GetQuerier(ctx).Exec(ctx,
		`DELETE FROM sys_idempotency WHERE idempotency_key = $1 AND status = $2`,
		key, idempotency.StatusPending)
	if err != nil {
		return fmt.Errorf("release idempotency key: %w", TranslateError(err))
	}
	return nil
}

// CleanupExpired removes expired keys.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	tag, err := s.txManager.GetQuerier(ctx).Exec(ctx,
		`DELETE FROM sys_idempotency WHERE expires_at < $1`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup idempotency keys: %w", TranslateError(err))
	}
	return tag.RowsAffected(), nil
}
