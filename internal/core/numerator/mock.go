package numerator

import (
	"context"
	"fmt"
	"sync"

	"docflow/internal/core/id"
)

// MockGenerator is a Generator for unit tests of document services.
type MockGenerator struct {
	NextNumberFunc func(ctx context.Context, docType DocumentType, warehouseID *id.ID) (string, error)

	mu    sync.Mutex
	calls int
}

// NextNumber implements Generator. Without NextNumberFunc it returns
// predictable numbers such as "MOCK-001".
func (m *MockGenerator) NextNumber(ctx context.Context, docType DocumentType, warehouseID *id.ID) (string, error) {
	m.mu.Lock()
	m.calls++
	n := m.calls
	m.mu.Unlock()

	if m.NextNumberFunc != nil {
		return m.NextNumberFunc(ctx, docType, warehouseID)
	}
	return fmt.Sprintf("MOCK-%03d", n), nil
}

// Calls returns how many numbers were requested.
func (m *MockGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ Generator = (*MockGenerator)(nil)
