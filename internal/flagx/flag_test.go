package flagx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{
			name:    "separate value",
			args:    []string{"-d", "postgres://x", "-z", "nope"},
			allowed: []string{"-d"},
			want:    []string{"-d", "postgres://x"},
		},
		{
			name:    "equals form",
			args:    []string{"--dsn=postgres://x", "--other=1"},
			allowed: []string{"--dsn"},
			want:    []string{"--dsn=postgres://x"},
		},
		{
			name:    "flag followed by another flag keeps no value",
			args:    []string{"-v", "-d", "x"},
			allowed: []string{"-v"},
			want:    []string{"-v"},
		},
		{
			name:    "nothing allowed",
			args:    []string{"-a", "1"},
			allowed: []string{},
			want:    []string{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, FilterArgs(tc.args, tc.allowed))
		})
	}
}
