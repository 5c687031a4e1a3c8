package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// TestRunCommand_ShortRun verifies the demo drains producer work and reports
// destroyed owners
func TestRunCommand_ShortRun(t *testing.T) {
	t.Setenv("DISPATCHER_METRICS_ENABLED", "false")
	t.Setenv("DISPATCHER_FRAME_INTERVAL", "2ms")

	out, err := execute(t, "run",
		"--duration", "300ms",
		"--producers", "3",
		"--produce-interval", "5ms",
		"--spawn-interval", "40ms",
	)

	require.NoError(t, err)
	assert.Contains(t, out, "frames=")
	assert.NotContains(t, out, "executed=0 ")
	assert.NotContains(t, out, "owner_gone=0\n")
}

func TestRunCommand_BadConfig(t *testing.T) {
	t.Setenv("DISPATCHER_FIXED_STEP", "never")

	_, err := execute(t, "run", "--duration", "10ms")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "DISPATCHER_FIXED_STEP")
}

func TestConfigCommand_PrintsEffectiveConfig(t *testing.T) {
	t.Setenv("DISPATCHER_NAME", "printed")

	out, err := execute(t, "config")

	require.NoError(t, err)
	assert.Contains(t, out, "name: printed")
	assert.Contains(t, out, "frame_interval: 16ms")
}
