package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"table", FormatTable, false},
		{"", FormatTable, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, map[string]int{"files": 3}))
	assert.Contains(t, buf.String(), `"files": 3`)
}

func TestPrintYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintYAML(&buf, map[string]int{"files": 3}))
	assert.Contains(t, buf.String(), "files: 3")
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	err := PrintTable(&buf, []string{"status", "count"}, [][]string{
		{"COMPLETED", "4"},
		{"FAILED", "1"},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "COMPLETED")
	assert.Equal(t, 3, len(strings.Split(strings.TrimSpace(out), "\n")))
}

func TestKeyValueTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, KeyValueTable(&buf, [][2]string{{"Status", "Running"}}))
	assert.Contains(t, buf.String(), "Running")
}
