package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvironmentVariableResolver(t *testing.T) {
	t.Parallel()

	r := NewEnvironmentVariableResolver([]string{"A=1", "B=two=2", "EMPTY=", "junk"})

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "literal", want: "literal"},
		{in: "$A", want: "1"},
		{in: "${A}", want: "1"},
		{in: "$B", want: "two=2"},
		{in: "$EMPTY", wantErr: true},
		{in: "$MISSING", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := r.ResolveValue(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestResolveMap(t *testing.T) {
	t.Parallel()

	r := NewEnvironmentVariableResolver([]string{"TOKEN=abc"})
	got, err := ResolveMap(r, map[string]string{"X-Token": "$TOKEN", "X-Plain": "p"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"X-Token": "abc", "X-Plain": "p"}, got)

	_, err = ResolveMap(r, map[string]string{"X": "$NOPE"})
	require.Error(t, err)
}
