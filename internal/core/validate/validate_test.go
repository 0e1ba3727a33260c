package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akx/talsi/internal/core/kv"
)

func TestName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain", "users", false},
		{"empty", "", false},
		{"sql keyword", "select", false},
		{"punctuation", `a"b'c;--`, false},
		{"multibyte", "名前", false},
		{"invalid byte", "bad\xff", true},
		{"truncated sequence", "\xe5\x90", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Name("key", tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, kv.ErrSerialization)
				assert.Contains(t, err.Error(), "key")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestNames(t *testing.T) {
	require.NoError(t, Names("ns", "a", "b"))
	require.NoError(t, Names("ns"))

	err := Names("bad\xff", "a")
	require.ErrorIs(t, err, kv.ErrSerialization)
	assert.Contains(t, err.Error(), "namespace")

	err = Names("ns", "a", "bad\xff")
	require.ErrorIs(t, err, kv.ErrSerialization)
	assert.Contains(t, err.Error(), "key")
}
