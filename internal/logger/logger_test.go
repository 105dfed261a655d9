package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWritesLevelFiles(t *testing.T) {
	var console bytes.Buffer
	SetOutput(&console)
	t.Cleanup(func() { SetOutput(os.Stdout) })

	dir := t.TempDir()
	require.NoError(t, Setup(dir))

	Infof("hello %s", "info")
	Warnf("careful %d", 1)
	Errorf("broken")
	DispatchDebugf("session %s opened", "abc")
	CloseLogFile()

	errorLog, err := os.ReadFile(filepath.Join(dir, "error.log"))
	require.NoError(t, err)
	assert.Contains(t, string(errorLog), "careful 1")
	assert.Contains(t, string(errorLog), "broken")
	assert.NotContains(t, string(errorLog), "hello info")
	assert.NotContains(t, string(errorLog), "session abc opened")

	dispatchLog, err := os.ReadFile(filepath.Join(dir, "dispatch.log"))
	require.NoError(t, err)
	assert.Contains(t, string(dispatchLog), "session abc opened")

	assert.Contains(t, console.String(), "hello info")
}

func TestSetDebugSilencesConsole(t *testing.T) {
	var console bytes.Buffer
	SetOutput(&console)
	SetDebug(false)
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		SetDebug(true)
	})

	Debugf("hidden")
	DispatchDebugf("hidden too")
	Infof("shown")

	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "shown")
}

func TestGetColorFuncFallsBackToWhite(t *testing.T) {
	fn := GetColorFunc("no-such-color")
	require.NotNil(t, fn)
	assert.Contains(t, fn("text"), "text")
}
