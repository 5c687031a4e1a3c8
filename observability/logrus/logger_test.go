package logrus

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	lr "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Swind/go-cycle-dispatcher/core"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLogger_FieldsAndLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOptions(&buf, core.LevelInfo, "json")

	logger.Debug("hidden")
	logger.Info("drained", core.F("cycle", "Update"), core.F("items", 3))
	logger.Error("failed", core.F("error", errors.New("boom")))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "drained", lines[0]["msg"])
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "Update", lines[0]["cycle"])
	assert.EqualValues(t, 3, lines[0]["items"])
	assert.Equal(t, "error", lines[1]["level"])
	assert.Equal(t, "boom", lines[1]["error"])
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	base := lr.New()
	base.SetOutput(&buf)
	base.SetFormatter(&lr.JSONFormatter{DisableTimestamp: true})
	base.SetLevel(lr.DebugLevel)

	logger := New(base).With(core.F("dispatcher", "main"))
	logger.Debug("step")
	logger.Warn("slow")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Equal(t, "main", line["dispatcher"])
	}
	assert.Equal(t, "warning", lines[1]["level"])
}

// TestLogger_WiredIntoDispatcher verifies dispatcher diagnostics reach logrus
func TestLogger_WiredIntoDispatcher(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOptions(&buf, core.LevelInfo, "text")

	cfg := core.DefaultDispatcherConfig()
	cfg.Name = "logged"
	cfg.Logger = logger
	d := core.NewDispatcher(cfg)
	d.Shutdown()

	// Shutdown logs at Info through the configured logger.
	assert.Contains(t, buf.String(), "logged")
}

func TestToLogrusLevel(t *testing.T) {
	cases := map[core.LogLevel]lr.Level{
		core.LevelDebug: lr.DebugLevel,
		core.LevelInfo:  lr.InfoLevel,
		core.LevelWarn:  lr.WarnLevel,
		core.LevelError: lr.ErrorLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, toLogrusLevel(in), in.String())
	}
}
