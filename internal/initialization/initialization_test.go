package initialization

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"talkbot/internal/ai"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	t.Setenv("TALKBOT_DATA_DIR", filepath.Join(dir, "data"))
	return path
}

func TestInitialize(t *testing.T) {
	path := writeConfig(t, `
[ai]
provider = "anthropic"
manager_model = "claude-sonnet-4-5"
worker_model = "claude-haiku-4-5"

[dialogue]
schema = "flat"
`)
	t.Setenv("ANTHROPIC_API_KEY", "test-key")

	app, err := Initialize(path, "terminal")
	require.NoError(t, err)
	defer app.Close()

	assert.Equal(t, "anthropic", app.Provider.Name())
	assert.NotNil(t, app.Archive)
	assert.FileExists(t, app.Config.ArchivePath())
	assert.FileExists(t, filepath.Join(app.Config.DataDir, "error.log"))

	tool, err := app.Registry.GetTool("talk_to_ai")
	require.NoError(t, err)
	assert.Contains(t, tool.Parameters().Required, "continue")

	runner := app.Runner()
	assert.Equal(t, 20, runner.Dialogue.MaxTurns)
	assert.Same(t, app.Dispatcher, runner.Dispatcher)
}

func TestInitializeWithoutAPIKey(t *testing.T) {
	path := writeConfig(t, "[archive]\nenabled = false\n")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := Initialize(path, "terminal")
	assert.ErrorIs(t, err, ai.ErrMissingAPIKey)
}

func TestLoadConfigRejectsInvalidFile(t *testing.T) {
	path := writeConfig(t, "[dialogue]\nmax_turns = 0\n")
	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "dialogue.max_turns")
}
