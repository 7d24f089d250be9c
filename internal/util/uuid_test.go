package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntityID(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"canonical", "3f2504e0-4f89-11d3-9a0c-0305e82c3301", false},
		{"braced", "{3f2504e0-4f89-11d3-9a0c-0305e82c3301}", false},
		{"padded", "  3f2504e0-4f89-11d3-9a0c-0305e82c3301 ", false},
		{"nil uuid", "00000000-0000-0000-0000-000000000000", true},
		{"garbage", "not-a-guid", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParseEntityID(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "3f2504e0-4f89-11d3-9a0c-0305e82c3301", id.String())
		})
	}
}

func TestNewIDIsMonotonic(t *testing.T) {
	prev := NewID()
	for i := 0; i < 100; i++ {
		next := NewID()
		assert.Len(t, next, 26)
		assert.Greater(t, next, prev)
		prev = next
	}
}
