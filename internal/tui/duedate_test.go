package tui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDueDate(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "iso date passes through", input: "2026-04-01", want: "2026-04-01"},
		{name: "empty clears", input: "", want: ""},
		{name: "whitespace clears", input: "   ", want: ""},
		{name: "tomorrow", input: "tomorrow", want: "2026-03-11"},
		{name: "today", input: "today", want: "2026-03-10"},
		{name: "gibberish", input: "xyzzy", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDueDate(tt.input, now)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
