package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainsFunc(t *testing.T) {
	tests := []struct {
		name       string
		collection interface{}
		target     interface{}
		want       bool
	}{
		{"slice match", []interface{}{"a", "b"}, "b", true},
		{"slice no match", []interface{}{"a", "b"}, "c", false},
		{"typed slice", []int{1, 2, 3}, 2, true},
		{"nil collection", nil, "a", false},
		{"map key present", map[string]interface{}{"k": 1}, "k", true},
		{"map key absent", map[string]interface{}{"k": 1}, "z", false},
		{"string substring", "workflow", "flow", true},
		{"string no substring", "workflow", "xyz", false},
		{"unsupported type", 42, 4, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := containsFunc(tt.collection, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestContainsFuncArity(t *testing.T) {
	_, err := containsFunc("only one")
	require.Error(t, err)
}

func TestLenFunc(t *testing.T) {
	tests := []struct {
		name    string
		arg     interface{}
		want    interface{}
		wantErr bool
	}{
		{"slice", []interface{}{1, 2, 3}, 3, false},
		{"string", "abcd", 4, false},
		{"map", map[string]interface{}{"a": 1}, 1, false},
		{"nil", nil, 0, false},
		{"unsupported", 7, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := lenFunc(tt.arg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
