package display

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVirtualEnvsTable(t *testing.T) {
	var buf bytes.Buffer
	err := VirtualEnvs(&buf, []VirtualEnv{
		{Name: "docs", Path: "/cache/docs", Healthy: true, SizeBytes: 2048, Modified: time.Now().Add(-2 * time.Hour)},
		{Name: "lint", Path: "/cache/lint"},
	}, OutputTable)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))
	assert.Contains(t, lines[1], "docs")
	assert.Contains(t, lines[1], "2.0 KiB")
	assert.Contains(t, lines[1], "2 hours ago")
	assert.Contains(t, lines[2], "broken")
	assert.Contains(t, lines[2], "-")
}

func TestVirtualEnvsEmpty(t *testing.T) {
	tests := []struct {
		output string
		want   string
	}{
		{OutputTable, "No virtualenvs found\n"},
		{OutputJSON, "[]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.output, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, VirtualEnvs(&buf, nil, tt.output))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestVirtualEnvsJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, VirtualEnvs(&buf, []VirtualEnv{{Name: "docs", Path: "/cache/docs", Healthy: true, CacheKey: "abc"}}, OutputJSON))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "docs", decoded[0]["name"])
	assert.Equal(t, true, decoded[0]["healthy"])
	assert.Equal(t, "abc", decoded[0]["cache_key"])
}
