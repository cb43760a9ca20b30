package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}

func TestLogger_JSONEntryCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelDebug}).With(Component("attendance"))

	log.Info("credited", StudentID("s-1"), Hours(2))

	var entry Entry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "credited", entry.Message)
	assert.Equal(t, "attendance", entry.Fields["component"])
	assert.Equal(t, "s-1", entry.Fields["student_id"])
	assert.Equal(t, 2.0, entry.Fields["hours"])
}

func TestLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelWarn})

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")

	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	assert.True(t, log.Enabled(LevelError))
	assert.False(t, log.Enabled(LevelInfo))
}

func TestLogger_TextFormatSortsKeys(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Format: FormatText})

	log.Info("schedule extended", String("z", "last"), String("a", "first"))

	line := buf.String()
	assert.Contains(t, line, "INFO schedule extended")
	assert.Less(t, strings.Index(line, "a=first"), strings.Index(line, "z=last"))
}

func TestLogger_ChildSharesOutput(t *testing.T) {
	var buf bytes.Buffer
	parent := New(Options{Output: &buf})
	child := parent.WithRequestID("req-1")

	child.Info("one")
	parent.Info("two")

	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), `"request_id":"req-1"`)
}

func TestFromContext(t *testing.T) {
	log := Nop()
	ctx := WithContext(context.Background(), log)

	assert.Same(t, log, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}
