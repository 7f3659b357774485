package memory

import (
	"context"
	"time"

	"docflow/internal/core/apperror"
	"docflow/internal/core/idempotency"
)

type idemRecord struct {
	req       idempotency.Request
	status    idempotency.Status
	replay    idempotency.Replay
	updatedAt time.Time
	expiresAt time.Time
}

// IdempotencyStore implements idempotency.Store.
type IdempotencyStore struct {
	s   *Store
	ttl time.Duration
	now func() time.Time
}

var _ idempotency.Store = (*IdempotencyStore)(nil)

// Idempotency returns a key store whose entries live for ttl.
func (s *Store) Idempotency(ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{s: s, ttl: ttl, now: time.Now}
}

func (i *IdempotencyStore) Acquire(ctx context.Context, req idempotency.Request) (*idempotency.Replay, error) {
	var replay *idempotency.Replay
	err := i.s.do(ctx, func(st *state) error {
		now := i.now()
		rec, ok := st.keys[req.Key]
		if !ok || now.After(rec.expiresAt) {
			st.keys[req.Key] = idemRecord{
				req: req, status: idempotency.StatusPending,
				updatedAt: now, expiresAt: now.Add(i.ttl),
			}
			return nil
		}
		if rec.req != req {
			return apperror.NewIdempotencyMismatch(req.Key)
		}
		switch rec.status {
		case idempotency.StatusPending:
			if now.Sub(rec.updatedAt) <= idempotency.StaleAfter {
				return apperror.NewIdempotencyConflict(req.Key)
			}
			rec.updatedAt = now
			st.keys[req.Key] = rec
		default:
			r := rec.replay
			r.Normalize()
			replay = &r
		}
		return nil
	})
	return replay, err
}

func (i *IdempotencyStore) Complete(ctx context.Context, key string, status idempotency.Status, resp idempotency.Replay) error {
	return i.s.do(ctx, func(st *state) error {
		rec, ok := st.keys[key]
		if !ok {
			return nil
		}
		rec.status, rec.replay, rec.updatedAt = status, resp, i.now()
		st.keys[key] = rec
		return nil
	})
}

func (i *IdempotencyStore) Release(ctx context.Context, key string) error {
	return i.s.do(ctx, func(st *state) error {
		if rec, ok := st.keys[key]; ok && rec.status == idempotency.StatusPending {
			delete(st.keys, key)
		}
		return nil
	})
}

func (i *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	var n int64
	err := i.s.do(ctx, func(st *state) error {
		now := i.now()
		for k, rec := range st.keys {
			if now.After(rec.expiresAt) {
				delete(st.keys, k)
				n++
			}
		}
		return nil
	})
	return n, err
}
