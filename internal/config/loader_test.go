package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderMissingFile(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "coda.json"))

	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Provider.Name)
	assert.Equal(t, 10, cfg.Session.MaxRounds)
	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, filepath.Join(cfg.DataDir, "coda.log"), cfg.Logging.File)
	assert.Equal(t, filepath.Join(cfg.DataDir, "sessions"), cfg.Session.HistoryDir)
	assert.Equal(t, filepath.Join(cfg.DataDir, "tasks.db"), cfg.Tasks.DBPath)
}

func TestLoaderReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coda.json")

	content := `{
		"provider": {"name": "openai", "api_key": "sk-test", "model": "gpt-4o"},
		"session": {"max_rounds": 25},
		"data_dir": "` + dir + `"
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider.Name)
	assert.Equal(t, "gpt-4o", cfg.Provider.Model)
	assert.Equal(t, 25, cfg.Session.MaxRounds)
	// Unset fields fall back to defaults.
	assert.Equal(t, 3, cfg.Session.MaxRetries)
	assert.Equal(t, "@hourly", cfg.Agents.CleanupSchedule)
	// Derived paths hang off the configured data dir.
	assert.Equal(t, filepath.Join(dir, "agents.json"), cfg.Agents.RegistryPath)
	assert.Equal(t, filepath.Join(dir, "approvals.json"), cfg.Permissions.StorePath)
}

func TestLoaderInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coda.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoaderAPIKeyFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coda.json")
	content := `{"provider": {"name": "anthropic", "model": "claude-sonnet-4"}, "data_dir": "` + dir + `"}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Setenv("CODA_API_KEY", "sk-ant-from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-from-env", cfg.Provider.APIKey)
}

func TestLoaderSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "coda.json")
	loader := NewLoader(path)

	cfg := DefaultConfig()
	cfg.Provider.APIKey = "sk-ant-save-test"
	cfg.Provider.Model = "claude-opus-4"
	cfg.Session.MaxRounds = 15
	cfg.DataDir = dir

	require.NoError(t, loader.Save(cfg))
	require.FileExists(t, path)

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "claude-opus-4", loaded.Provider.Model)
	assert.Equal(t, 15, loaded.Session.MaxRounds)
	assert.Equal(t, dir, loaded.DataDir)
}

func TestGetConfigPath(t *testing.T) {
	t.Run("explicit path", func(t *testing.T) {
		loader := NewLoader("/tmp/custom.json")
		assert.Equal(t, "/tmp/custom.json", loader.GetConfigPath())
	})

	t.Run("default path", func(t *testing.T) {
		loader := NewLoader("")
		path := loader.GetConfigPath()
		assert.Contains(t, path, ".coda")
		assert.Contains(t, path, "coda.json")
	})
}
