// Package id provides identifiers for documents, warehouses, products and ledger rows.
package id

import (
	"bytes"

	"github.com/google/uuid"
)

// ID is the identifier type shared by every aggregate.
type ID = uuid.UUID

// New returns a time-ordered UUIDv7, falling back to v4 if the clock source fails.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v
}

// Parse converts a string to an ID.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// MustParse is Parse for constants and tests.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// Nil returns the zero ID.
func Nil() ID {
	return uuid.Nil
}

// IsNil reports whether v is the zero ID.
func IsNil(v ID) bool {
	return v == uuid.Nil
}

// Compare orders IDs bytewise. Row locks spanning several stock records are
// always taken in this order.
func Compare(a, b ID) int {
	return bytes.Compare(a[:], b[:])
}
