package jsonutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexibleID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      FlexibleID
		expectErr bool
	}{
		{name: "number", input: `42`, want: FlexibleID{Value: 42, Valid: true}},
		{name: "numeric string", input: `"42"`, want: FlexibleID{Value: 42, Valid: true}},
		{name: "numeric string with whitespace", input: `" 42 "`, want: FlexibleID{Value: 42, Valid: true}},
		{name: "null", input: `null`, want: FlexibleID{}},
		{name: "empty string", input: `""`, want: FlexibleID{}},
		{name: "zero", input: `0`, want: FlexibleID{Value: 0, Valid: true}},
		{name: "negative number", input: `-7`, want: FlexibleID{Value: -7, Valid: true}},
		{name: "non-numeric string", input: `"abc"`, expectErr: true},
		{name: "float", input: `1.5`, expectErr: true},
		{name: "object", input: `{}`, expectErr: true},
		{name: "bool", input: `true`, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got FlexibleID
			err := json.Unmarshal([]byte(tt.input), &got)
			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFlexibleID_MarshalJSON(t *testing.T) {
	out, err := json.Marshal(ID(7))
	require.NoError(t, err)
	assert.Equal(t, "7", string(out))

	out, err = json.Marshal(FlexibleID{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))
}

func TestFlexibleID_InStruct(t *testing.T) {
	// Mixed representations in one document must normalize identically.
	var doc struct {
		A FlexibleID `json:"a"`
		B FlexibleID `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 10, "b": "10"}`), &doc))
	assert.Equal(t, doc.A, doc.B)
}
