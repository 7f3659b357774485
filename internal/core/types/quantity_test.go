package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docflow/internal/core/apperror"
)

func TestQuantity_String(t *testing.T) {
	assert.Equal(t, "12", Units(12).String())
	assert.Equal(t, "0.5", Quantity(5000).String())
	assert.Equal(t, "-3.25", Quantity(-32500).String())
	assert.Equal(t, "0", Quantity(0).String())
}

func TestParseQuantity(t *testing.T) {
	cases := map[string]Quantity{
		"30":      Units(30),
		"+1.5":    Quantity(15000),
		"-0.0001": Quantity(-1),
		".25":     Quantity(2500),
	}
	for in, want := range cases {
		got, err := ParseQuantity(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "1e3", "1.23456", "abc", "-", ".", "+-5", "1.-5", "1 000"} {
		_, err := ParseQuantity(bad)
		assert.True(t, apperror.HasCode(err, apperror.CodeValidation), bad)
	}
}

func TestParseQuantity_Range(t *testing.T) {
	largest, err := ParseQuantity("922337203685477.5807")
	require.NoError(t, err)
	assert.Equal(t, MaxQuantity, largest)

	smallest, err := ParseQuantity("-922337203685477.5807")
	require.NoError(t, err)
	assert.Equal(t, -MaxQuantity, smallest)

	for _, huge := range []string{"1844674407370956", "922337203685477.5808", "-922337203685478", "99999999999999999999"} {
		q, err := ParseQuantity(huge)
		assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "%s parsed as %s", huge, q)
	}

	var body struct {
		Q Quantity `json:"q"`
	}
	err = json.Unmarshal([]byte(`{"q": 1844674407370956}`), &body)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "wrapped quantities never reach the ledger")
}

func TestQuantity_JSON(t *testing.T) {
	var body struct {
		A Quantity `json:"a"`
		B Quantity `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 2.5, "b": "7"}`), &body))
	assert.Equal(t, Quantity(25000), body.A)
	assert.Equal(t, Units(7), body.B)

	out, err := json.Marshal(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 2.5, "b": 7}`, string(out))
}
