package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogError_WritesJSONWithError(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "info")
	t.Cleanup(func() { Logger = nil })

	LogError("render failed", errors.New("boom"), "statement_id", 7)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "render failed", entry["msg"])
	assert.Equal(t, "boom", entry["error"])
	assert.EqualValues(t, 7, entry["statement_id"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "warn")
	t.Cleanup(func() { Logger = nil })

	LogInfo("hidden")
	LogDebug("hidden")
	assert.Zero(t, buf.Len())

	LogWarn("shown")
	assert.Contains(t, buf.String(), "shown")
}
