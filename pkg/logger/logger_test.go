package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	prevLevel := GetLevel()
	SetOutput(buf)
	t.Cleanup(func() {
		SetOutput(nil)
		SetLevel(prevLevel)
		_ = SetFormat("text")
	})
	return buf
}

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"":        INFO,
		"debug":   DEBUG,
		"WARNING": WARN,
		" error ": ERROR,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("chatty")
	assert.Error(t, err)
}

func TestLevelFiltersDebug(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(INFO)

	DebugC("bot", "hidden")
	InfoC("bot", "visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, "component=bot")
}

func TestJSONFormatIncludesFields(t *testing.T) {
	buf := captureOutput(t)
	require.NoError(t, SetFormat("json"))

	WarnCF("cooldown", "Cooling down", map[string]any{"minutes": 2})

	line := strings.TrimSpace(buf.String())
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &payload))
	assert.Equal(t, "cooldown", payload["component"])
	assert.Equal(t, "Cooling down", payload["msg"])
	assert.Equal(t, "WARN", payload["level"])
	assert.EqualValues(t, 2, payload["minutes"])
}

func TestSetFormatRejectsUnknown(t *testing.T) {
	assert.Error(t, SetFormat("xml"))
}
