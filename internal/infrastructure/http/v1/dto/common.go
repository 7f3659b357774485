// Package dto holds request and response bodies of the HTTP adapter.
// Domain types that already carry JSON tags are used as-is.
package dto

import "docflow/internal/core/id"

// ListResponse wraps a page of results.
type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// NewListResponse never returns a null items array.
func NewListResponse[T any](items []T, limit, offset int) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Limit: limit, Offset: offset}
}

// IDResponse is returned by create operations without a richer body.
type IDResponse struct {
	ID string `json:"id"`
}

// NewIDResponse creates an IDResponse.
func NewIDResponse(v id.ID) IDResponse {
	return IDResponse{ID: v.String()}
}

// ReasonRequest carries a free-text reason, e.g. for cancellation.
type ReasonRequest struct {
	Reason string `json:"reason"`
}
