/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package logger

import (
	"bytes"
	"encoding/json"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{TraceLevel, "TRACE"},
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{Level(999), "UNKNOWN"},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, test.level.String())
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, TraceLevel, ParseLevel("trace"))
	assert.Equal(t, DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLevel("warning"))
	assert.Equal(t, ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, InfoLevel, ParseLevel("bogus"))
}

func TestInitializeDefaultsComponent(t *testing.T) {
	require.NoError(t, Initialize(Config{Level: InfoLevel}))
	require.NotNil(t, defaultLogger)
	assert.Equal(t, "bundlepress", defaultLogger.config.Component)
}

func TestPrettyFormattingSortsFields(t *testing.T) {
	l := &Logger{config: Config{Component: "bundlepress", Phase: "upload"}, logger: log.New(&bytes.Buffer{}, "", 0)}
	entry := LogEntry{
		Time:      time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		Level:     "INFO",
		Message:   "uploaded",
		Component: "bundlepress",
		Phase:     "upload",
		Fields:    map[string]interface{}{"zeta": 1, "alpha": "a"},
	}

	out := l.formatPretty(entry)
	assert.Equal(t, "2025-01-01 12:00:00 [INFO] bundlepress/upload: uploaded {alpha=a, zeta=1}", out)
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: InfoLevel, JSON: true, Component: "bundlepress"}, &buf)

	l.Log(InfoLevel, "chunk committed", String("range", "0-9"), Int("count", 10))
	l.Log(DebugLevel, "suppressed")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "chunk committed", entry.Message)
	assert.Equal(t, "0-9", entry.Fields["range"])
	assert.EqualValues(t, 10, entry.Fields["count"])
}

func TestErrFieldNil(t *testing.T) {
	assert.Equal(t, "<nil>", Err(nil).Value)
}
