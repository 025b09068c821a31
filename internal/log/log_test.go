package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for _, name := range []string{"error", "WARN", "warning", "info", "", "debug", "trace"} {
		_, err := ParseLevel(name)
		assert.NoError(t, err, name)
	}
	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestConfigureJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		_ = Configure("info", "text")
	})

	require.NoError(t, Configure("trace", "json"))
	assert.Equal(t, "trace", GetLogLevel())

	LogTraceWithFields("session", "session renewed", map[string]any{"user_id": "42"})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "TRACE", entry["level"])
	assert.Equal(t, "session", entry["component"])
	assert.Equal(t, "42", entry["user_id"])
	assert.Contains(t, entry, "timestamp")
}

func TestConfigureRejectsUnknownFormat(t *testing.T) {
	assert.Error(t, Configure("", "xml"))
}
