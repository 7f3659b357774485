package numerator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	period := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "WT-007/JKT/03-2025", Format("WT", 7, "JKT", period))
	assert.Equal(t, "GR-120/GEN/03-2025", Format("GR", 120, "", period))
	assert.Equal(t, "DO-1234/SUBY/03-2025", Format("DO", 1234, "SUBY", period))
}

func TestParse(t *testing.T) {
	n, err := Parse("PQ-042/JKT/11-2025")
	require.NoError(t, err)
	assert.Equal(t, Number{Prefix: "PQ", Sequence: 42, WarehouseCode: "JKT", Year: 2025, Month: time.November}, n)
	assert.False(t, n.IsGeneral())

	n, err = Parse("SO-1000/GEN/01-2026")
	require.NoError(t, err)
	assert.EqualValues(t, 1000, n.Sequence)
	assert.True(t, n.IsGeneral())

	for _, bad := range []string{"PQ-1/JKT/11-2025", "pq-001/JKT/11-2025", "PQ-001/JK/11-2025", "PQ-001/JKT/13-2025", ""} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}

func TestPrefixes_Validate(t *testing.T) {
	require.NoError(t, DefaultPrefixes().Validate())

	dup := DefaultPrefixes().Merge(map[string]string{"CREDIT_NOTE": "PQ"})
	assert.Error(t, dup.Validate())

	bad := DefaultPrefixes().Merge(map[string]string{"CREDIT_NOTE": "cn"})
	assert.Error(t, bad.Validate())

	ok := DefaultPrefixes().Merge(map[string]string{"CREDIT_NOTE": "CN"})
	require.NoError(t, ok.Validate())
	assert.Equal(t, "CN", ok["CREDIT_NOTE"])
}

func TestValidWarehouseCode(t *testing.T) {
	assert.True(t, ValidWarehouseCode("JKT"))
	assert.True(t, ValidWarehouseCode("SUBY"))
	assert.False(t, ValidWarehouseCode("GEN"))
	assert.False(t, ValidWarehouseCode("jkt"))
	assert.False(t, ValidWarehouseCode("JAKAR"))
}
