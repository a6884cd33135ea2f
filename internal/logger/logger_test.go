package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextOutput(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "DEBUG", "text")
	defer InitWithWriter(&buf, "INFO", "text")

	Info("copy started", "path", "/src/a.mxf", "size", 1024)

	out := buf.String()
	assert.Contains(t, out, "[INFO]")
	assert.Contains(t, out, "copy started")
	assert.Contains(t, out, "path=/src/a.mxf")
	assert.Contains(t, out, "size=1024")
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json")
	defer InitWithWriter(&buf, "INFO", "text")

	Warn("destination degraded", "status", "WARNING")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "destination degraded", entry["msg"])
	assert.Equal(t, "WARNING", entry["status"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text")
	defer InitWithWriter(&buf, "INFO", "text")

	Debug("not shown")
	Info("not shown either")
	Warn("shown")

	lines := strings.Count(buf.String(), "\n")
	assert.Equal(t, 1, lines)
	assert.Contains(t, buf.String(), "shown")
}

func TestSetLevelIgnoresInvalid(t *testing.T) {
	SetLevel("INFO")
	SetLevel("NOISY")
	assert.Equal(t, LevelInfo, GetLevel())
}
