// Package idempotency describes client-supplied idempotency keys. A key
// binds one actor and one operation to one request body; repeating the
// request replays the first response instead of running the operation again.
package idempotency

import (
	"context"
	"net/http"
	"time"
)

// Status is the lifecycle state of a key.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// StaleAfter is how long a pending key may sit before another request may
// reclaim it.
const StaleAfter = time.Minute

// Request identifies one keyed call.
type Request struct {
	Key         string
	ActorID     string
	Operation   string
	RequestHash string
}

// Replay is a stored response.
type Replay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Normalize fills defaults for replays written without status or type.
func (r *Replay) Normalize() {
	if r.StatusCode == 0 {
		r.StatusCode = http.StatusOK
	}
	if r.ContentType == "" {
		r.ContentType = "application/json"
	}
}

// Store persists keys.
//
// Acquire returns (nil, nil) when the caller now owns the key, a Replay when
// the key already finished, IDEMPOTENCY_CONFLICT while another request holds
// it and IDEMPOTENCY_MISMATCH when the key was used for a different request.
type Store interface {
	Acquire(ctx context.Context, req Request) (*Replay, error)
	Complete(ctx context.Context, key string, status Status, resp Replay) error
	// Release forgets a pending key so the client can retry.
	Release(ctx context.Context, key string) error
	CleanupExpired(ctx context.Context) (int64, error)
}
