package postgres

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docflow/internal/core/id"
	"docflow/internal/domain/audit"
)

func TestAuditService_CompressesLargeChanges(t *testing.T) {
	s, err := NewAuditService(nil)
	require.NoError(t, err)

	large, err := json.Marshal(map[string]string{"notes": string(bytes.Repeat([]byte("a"), DefaultCompressThreshold+1))})
	require.NoError(t, err)
	entry := audit.Entry{EntityType: "warehouse_transfer", EntityID: id.New(), Action: audit.ActionTransition, Changes: large}

	row := s.encode(entry)
	assert.Equal(t, CompressionZstd, row.CompressionAlgo)
	assert.Nil(t, row.Changes)
	assert.Less(t, len(row.ChangesCompressed), len(large))
	assert.False(t, id.IsNil(row.ID))
	assert.Equal(t, []string{}, row.Flags)

	back, err := s.decode(row)
	require.NoError(t, err)
	assert.JSONEq(t, string(large), string(back.Changes))
}

func TestAuditService_SmallChangesStayPlain(t *testing.T) {
	s, err := NewAuditService(nil)
	require.NoError(t, err)

	entry := audit.Entry{Changes: json.RawMessage(`{"status":{"from":"REQUESTED","to":"APPROVED"}}`), Flags: []string{"partial_receipt"}}
	row := s.encode(entry)
	assert.Equal(t, CompressionNone, row.CompressionAlgo)
	assert.Nil(t, row.ChangesCompressed)

	back, err := s.decode(row)
	require.NoError(t, err)
	assert.Equal(t, entry.Changes, back.Changes)
	assert.True(t, back.HasFlag("partial_receipt"))
}
